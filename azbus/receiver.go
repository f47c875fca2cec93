package azbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// ReceiveMode selects the message settlement model for a receiver.
type ReceiveMode int

const (
	// PeekLock locks each delivered message until it is settled or its lock
	// expires. The message stays invisible but unconsumed until then.
	PeekLock ReceiveMode = iota

	// ReceiveAndDelete removes each message from the entity as soon as it is
	// delivered. Settlement operations and lock renewal do not apply.
	ReceiveAndDelete
)

func (m ReceiveMode) String() string {
	switch m {
	case PeekLock:
		return "PeekLock"
	case ReceiveAndDelete:
		return "ReceiveAndDelete"
	}
	return fmt.Sprintf("Unknown%d", int(m))
}

func (m ReceiveMode) azMode() azservicebus.ReceiveMode {
	if m == ReceiveAndDelete {
		return azservicebus.ReceiveModeReceiveAndDelete
	}
	return azservicebus.ReceiveModePeekLock
}

const (
	// DefaultRenewalTime is how often we renew the message PEEK lock.
	//
	// Note that the default aligns with the default lock duration for topics
	// and queues in Azure Service Bus, which is one minute. Unless the topic
	// or queue has been configured with a different value there should be no
	// need to change this.
	//
	// Set to 50 seconds, well within the 60 seconds peek lock timeout.
	DefaultRenewalTime = 50 * time.Second
)

// ReceiverConfig configuration for an azure servicebus queue or subscription.
type ReceiverConfig struct {
	ConnectionString string

	// TopicOrQueueName is the name of the queue or topic.
	TopicOrQueueName string

	// SubscriptionName is the name of the topic subscription.
	// If blank then messages are received from a Queue.
	SubscriptionName string

	// Mode selects PeekLock or ReceiveAndDelete behaviour.
	Mode ReceiveMode

	// If a deadletter receiver then this is true.
	Deadletter bool

	// RenewMessageLock enables the automatic peek lock renewal loop for
	// subscribe-mode handlers. It has no effect under ReceiveAndDelete.
	RenewMessageLock bool

	// RenewMessageTime is how often the message PEEK lock is renewed.
	// Defaults to DefaultRenewalTime. Ignored under ReceiveAndDelete.
	RenewMessageTime time.Duration

	// RetryOptions overrides the SDK retry policy configured on the
	// connection. Nil selects DefaultRetryOptions.
	RetryOptions *RetryOptions
}

// settler is the part of the azservicebus.Receiver API this package calls.
// Having the narrow interface means the vendor client can be faked in tests.
type settler interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*ReceivedMessage, error)
	ReceiveDeferredMessages(ctx context.Context, sequenceNumbers []int64, options *azservicebus.ReceiveDeferredMessagesOptions) ([]*ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	DeadLetterMessage(ctx context.Context, message *ReceivedMessage, options *azservicebus.DeadLetterOptions) error
	DeferMessage(ctx context.Context, message *ReceivedMessage, options *azservicebus.DeferMessageOptions) error
	RenewMessageLock(ctx context.Context, message *ReceivedMessage, options *azservicebus.RenewMessageLockOptions) error
	Close(ctx context.Context) error
}

var _ settler = (*azservicebus.Receiver)(nil)

// Receiver receives messages from a queue or a topic subscription.
//
// Receive, settle and close are all synchronous calls into the vendor client.
// This layer adds no thread safety beyond the vendor client's own guarantees;
// the lock table is the only shared state and is independently guarded.
type Receiver struct {
	azClient AZClient

	Cfg ReceiverConfig

	log      Logger
	mtx      sync.Mutex
	receiver settler
	options  *azservicebus.ReceiverOptions
	inflight *lockTable
	handlers []Handler
	cancel   context.CancelFunc
}

type ReceiverOption func(*Receiver)

// WithHandlers adds individual message handlers for subscribe mode. Each
// handler executes in its own goroutine. Pull-mode callers do not need
// handlers.
func WithHandlers(h ...Handler) ReceiverOption {
	return func(r *Receiver) {
		r.handlers = append(r.handlers, h...)
	}
}

// WithRenewalTime takes an optional time in seconds to renew the peek lock.
// This should be comfortably less than the peek lock timeout. For example: the
// default peek lock timeout is 60s and the default renewal time is 50s.
//
// Note! Only use this if you know what you're doing and you require custom
// timeout behaviour.
func WithRenewalTime(t int) ReceiverOption {
	return func(r *Receiver) {
		r.Cfg.RenewMessageTime = time.Duration(t) * time.Second
	}
}

// NewReceiver creates a new Receiver. The receiver must be opened before use.
func NewReceiver(log Logger, cfg ReceiverConfig, opts ...ReceiverOption) *Receiver {
	var r Receiver
	return newReceiver(&r, log, cfg, opts...)
}

// function outlining.
func newReceiver(r *Receiver, log Logger, cfg ReceiverConfig, opts ...ReceiverOption) *Receiver {

	// Construct the vendor options up front rather than branching on the
	// config per operation. The dead-letter binding is independent of the
	// receive mode - draining a DLQ with ReceiveAndDelete is routine.
	options := &azservicebus.ReceiverOptions{
		ReceiveMode: cfg.Mode.azMode(),
	}
	if cfg.Deadletter {
		options.SubQueue = azservicebus.SubQueueDeadLetter
	}

	r.Cfg = cfg
	r.azClient = NewAZClient(cfg.ConnectionString, cfg.RetryOptions)
	r.options = options
	r.inflight = newLockTable()
	r.handlers = []Handler{}
	r.log = log.WithIndex("receiver", r.String())
	for _, opt := range opts {
		opt(r)
	}

	// Renewal is meaningless when messages are consumed on delivery.
	if r.Cfg.Mode == ReceiveAndDelete {
		r.Cfg.RenewMessageLock = false
		r.Cfg.RenewMessageTime = 0
	} else if r.Cfg.RenewMessageTime == 0 {
		r.Cfg.RenewMessageTime = DefaultRenewalTime
	}

	return r
}

// String - returns string representation of receiver.
func (r *Receiver) String() string {
	// No log function calls in this method please.
	if r.Cfg.SubscriptionName != "" {
		if r.Cfg.Deadletter {
			return fmt.Sprintf("%s.%s.deadletter", r.Cfg.TopicOrQueueName, r.Cfg.SubscriptionName)
		}
		return fmt.Sprintf("%s.%s", r.Cfg.TopicOrQueueName, r.Cfg.SubscriptionName)
	}
	if r.Cfg.Deadletter {
		return fmt.Sprintf("%s.deadletter", r.Cfg.TopicOrQueueName)
	}
	return r.Cfg.TopicOrQueueName
}

// Open binds the receiver to its queue or topic subscription. It is an error
// if no entity name is configured or the service rejects the connection.
func (r *Receiver) Open() error {
	var err error

	if r.receiver != nil {
		return nil
	}

	if r.Cfg.TopicOrQueueName == "" {
		return fmt.Errorf("failed to open receiver: no queue or topic name configured")
	}

	client, err := r.azClient.azClient()
	if err != nil {
		return err
	}

	var receiver *azservicebus.Receiver
	if r.Cfg.SubscriptionName != "" {
		receiver, err = client.NewReceiverForSubscription(r.Cfg.TopicOrQueueName, r.Cfg.SubscriptionName, r.options)
	} else {
		receiver, err = client.NewReceiverForQueue(r.Cfg.TopicOrQueueName, r.options)
	}
	if err != nil {
		azerr := fmt.Errorf("%s: failed to open receiver: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return azerr
	}

	r.log.Debugf("Open receiver in %s mode", r.Cfg.Mode)
	r.receiver = receiver

	for j := 0; j < len(r.handlers); j++ {
		err = r.handlers[j].Open()
		if err != nil {
			return fmt.Errorf("failed to open handler: %w", err)
		}
	}
	return nil
}

// Close releases the vendor receiver and drops all in-flight lock tokens.
// Operations attempted after Close return ErrReceiverClosed rather than
// silently doing nothing. Close itself is idempotent.
func (r *Receiver) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.receiver == nil {
		return nil
	}

	r.log.Debugf("Close")
	for j := 0; j < len(r.handlers); j++ {
		r.handlers[j].Close()
	}

	err := r.receiver.Close(ctx)
	r.receiver = nil
	r.inflight.clear()
	r.cancel = nil
	if err != nil {
		azerr := fmt.Errorf("%s: Error closing receiver: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return azerr
	}
	return nil
}

// currentSettler snapshots the vendor receiver under the mutex. The listener
// goroutines race with Shutdown nilling r.receiver; callers must check for nil
// rather than touching the field directly.
func (r *Receiver) currentSettler() settler {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.receiver
}

func (r *Receiver) GetAZClient() AZClient {
	return r.azClient
}
