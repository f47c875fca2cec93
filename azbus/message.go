package azbus

import (
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
)

// Message is the flat record handed to callers for each received message. It
// carries copies of the vendor message fields plus the lock token used to
// address subsequent settlement operations.
type Message struct {
	// Body is the payload of an AMQP data-typed message, passed through
	// unchanged. Nil when the message carried an AMQP value instead.
	Body []byte

	// Value is the payload of an AMQP value-typed message. Only scalar values
	// survive translation - see scalarValue. Nil when the message carried a
	// data payload.
	Value any

	ContentType      string
	MessageID        string
	To               string
	ReplyTo          string
	ReplyToSessionID string
	Subject          string
	SessionID        string
	CorrelationID    string
	PartitionKey     string

	TimeToLive             time.Duration
	SequenceNumber         int64
	EnqueuedSequenceNumber int64
	EnqueuedTime           time.Time
	DeliveryCount          uint32

	// LockToken addresses Complete, Abandon, Defer, DeadLetter and RenewLock
	// calls on the receiver that produced this message.
	LockToken string

	DeadLetterReason           string
	DeadLetterErrorDescription string
	DeadLetterSource           string

	State string

	ApplicationProperties map[string]any
}

// MessageBatch is the result of a batch receive. MessageCount is the number of
// messages actually received, which may be less than requested.
type MessageBatch struct {
	MessageCount int
	Messages     []*Message
}

// newMessage translates a vendor message into the flat Message record.
func newMessage(m *ReceivedMessage) *Message {
	msg := &Message{
		ContentType:      orEmpty(m.ContentType),
		MessageID:        m.MessageID,
		To:               orEmpty(m.To),
		ReplyTo:          orEmpty(m.ReplyTo),
		ReplyToSessionID: orEmpty(m.ReplyToSessionID),
		Subject:          orEmpty(m.Subject),
		SessionID:        orEmpty(m.SessionID),
		CorrelationID:    orEmpty(m.CorrelationID),
		PartitionKey:     orEmpty(m.PartitionKey),

		SequenceNumber:         orZero(m.SequenceNumber),
		EnqueuedSequenceNumber: orZero(m.EnqueuedSequenceNumber),
		DeliveryCount:          m.DeliveryCount,

		LockToken: uuid.UUID(m.LockToken).String(),

		DeadLetterReason:           orEmpty(m.DeadLetterReason),
		DeadLetterErrorDescription: orEmpty(m.DeadLetterErrorDescription),
		DeadLetterSource:           orEmpty(m.DeadLetterSource),

		State: stateString(m.State),

		ApplicationProperties: translateProperties(m.ApplicationProperties),
	}
	if m.TimeToLive != nil {
		msg.TimeToLive = *m.TimeToLive
	}
	if m.EnqueuedTime != nil {
		msg.EnqueuedTime = *m.EnqueuedTime
	}
	msg.Body, msg.Value = messageBody(m)
	return msg
}

// messageBody dispatches on the AMQP body type. A data payload is passed
// through as raw bytes. A value payload is narrowed to the scalar allow-list.
func messageBody(m *ReceivedMessage) ([]byte, any) {
	raw := m.RawAMQPMessage
	if raw != nil {
		if raw.Body.Value != nil {
			return nil, scalarValue(raw.Body.Value)
		}
		if len(raw.Body.Data) > 0 {
			return raw.Body.Data[0], nil
		}
	}
	return m.Body, nil
}

// scalarValue passes an AMQP value payload through only if it is one of the
// recognised scalar types. Anything else - lists, maps, described types - is
// dropped and translates to nil. This is a deliberate lossy narrowing: the
// alternative is leaking arbitrary vendor object graphs to callers.
func scalarValue(v any) any {
	switch v.(type) {
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		string,
		time.Time,
		amqp.UUID, uuid.UUID:
		return v
	default:
		return nil
	}
}

// translateProperties copies application properties with type-preserving
// dispatch. Recognised scalar values pass through natively, everything else is
// coerced to its string form.
func translateProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v.(type) {
		case bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64,
			string:
			out[k] = v
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

func stateString(s azservicebus.MessageState) string {
	switch s {
	case azservicebus.MessageStateActive:
		return "active"
	case azservicebus.MessageStateDeferred:
		return "deferred"
	case azservicebus.MessageStateScheduled:
		return "scheduled"
	}
	return fmt.Sprintf("unknown%d", s)
}

func orEmpty(s *string) string {
	if s != nil {
		return *s
	}
	return ""
}

func orZero(n *int64) int64 {
	if n != nil {
		return *n
	}
	return 0
}
