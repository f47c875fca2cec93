package azbus

import (
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMessageBodyData(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	m := &ReceivedMessage{
		MessageID: "m1",
		RawAMQPMessage: &azservicebus.AMQPAnnotatedMessage{
			Body: azservicebus.AMQPAnnotatedMessageBody{
				Data: [][]byte{payload},
			},
		},
	}
	msg := newMessage(m)
	assert.Equal(t, payload, msg.Body)
	assert.Nil(t, msg.Value)
}

func TestMessageBodyValueScalars(t *testing.T) {
	id := uuid.New()
	now := time.Now().UTC()
	tests := []struct {
		name     string
		value    any
		expected any
	}{
		{"bool", true, true},
		{"int64", int64(42), int64(42)},
		{"uint32", uint32(7), uint32(7)},
		{"float64", 3.14, 3.14},
		{"string", "hello", "hello"},
		{"timestamp", now, now},
		{"amqp uuid", amqp.UUID(id), amqp.UUID(id)},
		{"uuid", id, id},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := &ReceivedMessage{
				RawAMQPMessage: &azservicebus.AMQPAnnotatedMessage{
					Body: azservicebus.AMQPAnnotatedMessageBody{
						Value: test.value,
					},
				},
			}
			msg := newMessage(m)
			assert.Nil(t, msg.Body)
			assert.Equal(t, test.expected, msg.Value)
		})
	}
}

// Non-scalar value payloads are dropped rather than leaked through.
func TestMessageBodyValueNonScalar(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"map", map[string]any{"a": 1}},
		{"list", []any{"a", "b"}},
		{"bytes", []byte{1, 2, 3}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := &ReceivedMessage{
				RawAMQPMessage: &azservicebus.AMQPAnnotatedMessage{
					Body: azservicebus.AMQPAnnotatedMessageBody{
						Value: test.value,
					},
				},
			}
			msg := newMessage(m)
			assert.Nil(t, msg.Body)
			assert.Nil(t, msg.Value)
		})
	}
}

func TestMessageBodyWithoutRawAMQP(t *testing.T) {
	m := &ReceivedMessage{Body: []byte("plain")}
	msg := newMessage(m)
	assert.Equal(t, []byte("plain"), msg.Body)
	assert.Nil(t, msg.Value)
}

func TestTranslateProperties(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	props := map[string]any{
		"str":   "value",
		"count": int64(3),
		"flag":  true,
		"ratio": 0.5,
		"when":  now,
		"blob":  []byte("abc"),
	}
	out := translateProperties(props)

	// scalars keep their native type
	assert.Equal(t, "value", out["str"])
	assert.Equal(t, int64(3), out["count"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, 0.5, out["ratio"])

	// everything else arrives as its string form
	assert.Equal(t, now.String(), out["when"])
	assert.Equal(t, "[97 98 99]", out["blob"])
}

func TestTranslatePropertiesNil(t *testing.T) {
	assert.Nil(t, translateProperties(nil))
}

func TestNewMessageFields(t *testing.T) {
	token := uuid.New()
	enqueued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &ReceivedMessage{
		MessageID:              "m1",
		ContentType:            to.Ptr("application/json"),
		CorrelationID:          to.Ptr("corr"),
		Subject:                to.Ptr("subj"),
		To:                     to.Ptr("dest"),
		ReplyTo:                to.Ptr("reply"),
		SessionID:              to.Ptr("sess"),
		PartitionKey:           to.Ptr("part"),
		TimeToLive:             to.Ptr(5 * time.Minute),
		SequenceNumber:         to.Ptr(int64(101)),
		EnqueuedSequenceNumber: to.Ptr(int64(99)),
		EnqueuedTime:           &enqueued,
		DeliveryCount:          3,
		LockToken:              [16]byte(token),
		DeadLetterReason:       to.Ptr("badjson"),
		State:                  azservicebus.MessageStateDeferred,
	}
	msg := newMessage(m)

	assert.Equal(t, "m1", msg.MessageID)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "corr", msg.CorrelationID)
	assert.Equal(t, "subj", msg.Subject)
	assert.Equal(t, "dest", msg.To)
	assert.Equal(t, "reply", msg.ReplyTo)
	assert.Equal(t, "sess", msg.SessionID)
	assert.Equal(t, "part", msg.PartitionKey)
	assert.Equal(t, 5*time.Minute, msg.TimeToLive)
	assert.Equal(t, int64(101), msg.SequenceNumber)
	assert.Equal(t, int64(99), msg.EnqueuedSequenceNumber)
	assert.Equal(t, enqueued, msg.EnqueuedTime)
	assert.Equal(t, uint32(3), msg.DeliveryCount)
	assert.Equal(t, token.String(), msg.LockToken)
	assert.Equal(t, "badjson", msg.DeadLetterReason)
	assert.Equal(t, "deferred", msg.State)
}

// Nil pointer fields on the vendor message translate to zero values.
func TestNewMessageZeroValues(t *testing.T) {
	msg := newMessage(&ReceivedMessage{MessageID: "m1"})
	assert.Equal(t, "", msg.ContentType)
	assert.Equal(t, int64(0), msg.SequenceNumber)
	assert.True(t, msg.EnqueuedTime.IsZero())
	assert.Equal(t, time.Duration(0), msg.TimeToLive)
	assert.Equal(t, "active", msg.State)
	assert.Nil(t, msg.ApplicationProperties)
}
