package azbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"

	"github.com/asbconnect/go-asbconnect/tracing"
)

// SenderConfig configuration for an azure servicebus namespace and queue
type SenderConfig struct {
	ConnectionString string

	// TopicOrQueueName is the name of the queue or topic to send to.
	TopicOrQueueName string

	// RetryOptions overrides the SDK retry policy configured on the
	// connection. Nil selects DefaultRetryOptions.
	RetryOptions *RetryOptions
}

// azSender is the part of the azservicebus.Sender API this package calls,
// narrowed so it can be faked in tests.
type azSender interface {
	SendMessage(ctx context.Context, message *OutMessage, options *azservicebus.SendMessageOptions) error
	SendMessageBatch(ctx context.Context, batch *OutMessageBatch, options *azservicebus.SendMessageBatchOptions) error
	NewMessageBatch(ctx context.Context, options *azservicebus.MessageBatchOptions) (*OutMessageBatch, error)
	Close(ctx context.Context) error
}

var _ azSender = (*azservicebus.Sender)(nil)

// Sender sends messages to a queue or topic.
type Sender struct {
	azClient AZClient

	Cfg SenderConfig

	log                   Logger
	mtx                   sync.Mutex
	sender                azSender
	maxMessageSizeInBytes int64
}

// NewSender creates a new Sender. The sender is opened lazily on first use if
// Open is not called explicitly.
func NewSender(log Logger, cfg SenderConfig) *Sender {

	s := &Sender{
		Cfg:      cfg,
		azClient: NewAZClient(cfg.ConnectionString, cfg.RetryOptions),
	}
	s.log = log.WithIndex("sender", s.String())
	return s
}

func (s *Sender) String() string {
	return s.Cfg.TopicOrQueueName
}

func (s *Sender) Close(ctx context.Context) {

	var err error
	if s != nil && s.sender != nil {
		s.log.Debugf("Close")
		s.mtx.Lock()
		defer s.mtx.Unlock()
		err = s.sender.Close(ctx)
		if err != nil {
			azerr := fmt.Errorf("%s: Error closing sender: %w", s, NewAzbusError(err))
			s.log.Infof("%s", azerr)
		}
		s.sender = nil // not going to attempt to close again on error
	}
}

func (s *Sender) Open() error {
	var err error

	if s.sender != nil {
		return nil
	}

	client, err := s.azClient.azClient()
	if err != nil {
		return err
	}

	admin := NewAZAdminClient(s.log, s.Cfg.ConnectionString)
	s.maxMessageSizeInBytes, err = admin.GetQueueMaxMessageSize(s.Cfg.TopicOrQueueName)
	if err != nil {
		// sending to a topic rather than a queue
		s.maxMessageSizeInBytes, err = admin.GetTopicMaxMessageSize(s.Cfg.TopicOrQueueName)
	}
	if err != nil {
		azerr := fmt.Errorf("%s: failed to get sender properties: %w", s, NewAzbusError(err))
		s.log.Infof("%s", azerr)
		return azerr
	}
	s.log.Debugf("Maximum message size is %d bytes", s.maxMessageSizeInBytes)

	sender, err := client.NewSender(s.Cfg.TopicOrQueueName, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: failed to open sender: %w", s, NewAzbusError(err))
		s.log.Infof("%s", azerr)
		return azerr
	}

	s.log.Debugf("Open")
	s.sender = sender
	return nil
}

// Send submits a message to the queue or topic. Ignores cancellation.
func (s *Sender) Send(ctx context.Context, message *OutMessage) error {

	// Retries inside the SDK are better than repeated cancel/restart cycles
	// in the caller, so suppress any deadline.
	ctx = context.WithoutCancel(ctx)

	var err error

	span, ctx := tracing.StartSpanFromContext(ctx, s.log, "Sender.Send")
	defer span.Close()

	// Get the logging context after we create the span as that may have
	// created a new trace and stashed the traceid in the metadata.
	log := s.log.FromContext(ctx)
	defer log.Close()

	// boots & braces
	if s.sender == nil {
		err = s.Open()
		if err != nil {
			return err
		}
	}

	// We set and log a message ID so we can trace the message through the bus
	id := uuid.New().String()
	message.MessageID = &id

	span.LogField("sender", s.Cfg.TopicOrQueueName)
	span.LogField("message id", id)

	size := int64(len(message.Body))
	if size > s.maxMessageSizeInBytes {
		return fmt.Errorf("%s: Msg Sized %d > limit %d: %w", s, size, s.maxMessageSizeInBytes, ErrMessageOversized)
	}
	now := time.Now()

	for k, v := range span.Attributes(log) {
		OutMessageSetProperty(message, k, v)
	}

	err = s.sender.SendMessage(ctx, message, nil)
	if err != nil {
		azerr := fmt.Errorf("Send message id %s failed in %s: %w", id, time.Since(now), NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	log.Debugf("Sending message id %s took %s", id, time.Since(now))
	return nil
}

func (s *Sender) NewMessageBatch(ctx context.Context) (*OutMessageBatch, error) {
	var err error
	if s.sender == nil {
		err = s.Open()
		if err != nil {
			return nil, err
		}
	}
	return s.sender.NewMessageBatch(ctx, nil)
}

// BatchAddMessage calls AddMessage on batch.
// Note: this method is a direct pass through and exists only to provide a
// mockable interface for adding messages to a batch.
func (s *Sender) BatchAddMessage(batch *OutMessageBatch, m *OutMessage, options *azservicebus.AddMessageOptions) error {
	return batch.AddMessage(m, options)
}

// SendBatch submits a message batch to the broker. Ignores cancellation.
//
// Note: sizing must be dealt with as the batch is created and accumulated -
// AddMessage fails when the batch would exceed the entity limit.
func (s *Sender) SendBatch(ctx context.Context, batch *OutMessageBatch) error {

	ctx = context.WithoutCancel(ctx)

	var err error

	now := time.Now()

	span, ctx := tracing.StartSpanFromContext(ctx, s.log, "Sender.SendBatch")
	defer span.Close()

	span.LogField("sender", s.Cfg.TopicOrQueueName)

	log := s.log.FromContext(ctx)
	defer log.Close()

	// boots & braces
	if s.sender == nil {
		err = s.Open()
		if err != nil {
			return err
		}
	}

	err = s.sender.SendMessageBatch(ctx, batch, nil)
	if err != nil {
		azerr := fmt.Errorf("SendMessageBatch failed in %s: %w", time.Since(now), NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	return nil
}
