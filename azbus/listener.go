package azbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asbconnect/go-asbconnect/tracing"
)

var (
	ErrNoHandler = errors.New("no handler defined")
)

// Handler processes a ReceivedMessage in subscribe mode. Use this style of
// handler to take advantage of the automatic peek lock renewal and disposal
// of messages. The handler sees the vendor message directly and reports its
// fate with a Disposition; the lock table is not involved.
type Handler interface {
	Handle(context.Context, *ReceivedMessage) (Disposition, context.Context, error)
	Open() error
	Close()
}

// Disposition describes the eventual demise of the message after processing.
// Upstream is notified whether the message can be deleted, deadlettered or
// will be reprocessed later.
type Disposition int

const (
	DeadletterDisposition Disposition = iota
	AbandonDisposition
	RescheduleDisposition
	CompleteDisposition
)

func (d Disposition) String() string {
	switch d {
	case DeadletterDisposition:
		return "DeadLetter"
	case AbandonDisposition:
		return "Abandon"
	case RescheduleDisposition:
		return "Reschedule"
	case CompleteDisposition:
		return "Complete"
	}
	return fmt.Sprintf("Unknown%d", int(d))
}

var (
	ErrPeekLockTimeout = errors.New("peeklock deadline reached")
)

// setTimeout imposes a processing deadline no later than the message lock
// expiry. If the lock deadline cannot be read from the message the configured
// renewal time is used as a fixed timeout.
func (r *Receiver) setTimeout(ctx context.Context, log Logger, msg *ReceivedMessage) (context.Context, context.CancelFunc, time.Duration) {

	var cancel context.CancelFunc

	if msg.LockedUntil != nil {
		msgLockedUntil := *msg.LockedUntil
		ctx, cancel = context.WithDeadlineCause(ctx, msgLockedUntil, ErrPeekLockTimeout)
		maxDuration := time.Until(msgLockedUntil)
		log.Debugf("msg must be processed in %s", maxDuration)
		return ctx, cancel, maxDuration
	}

	ctx, cancel = context.WithTimeoutCause(ctx, r.Cfg.RenewMessageTime, ErrPeekLockTimeout)
	log.Infof("could not get lock deadline from message, using fixed timeout %v", r.Cfg.RenewMessageTime)
	return ctx, cancel, r.Cfg.RenewMessageTime
}

// renewMessageLock renews the given message's peek lock so it doesn't lose
// the lock and get re-added to the message queue.
//
// Stop the message lock renewal by cancelling the passed in context.
func (r *Receiver) renewMessageLock(ctx context.Context, count int, msg *ReceivedMessage) {
	var err error

	ticker := time.NewTicker(r.Cfg.RenewMessageTime)

	var counter int
	r.log.Debugf("RenewMessageLock %d started", count)
	for {
		select {
		case <-ctx.Done():
			r.log.Debugf("RenewMessageLock %d stopped after %d executions", count, counter)
			ticker.Stop()
			return
		case t := <-ticker.C:
			counter++
			receiver := r.currentSettler()
			if receiver == nil {
				r.log.Debugf("RenewMessageLock %d stopped, receiver closed", count)
				ticker.Stop()
				return
			}
			err = receiver.RenewMessageLock(ctx, msg, nil)
			// if we cannot renew the message, we can't do much but log it
			//
			// worst case scenario, we lose the message peek lock and it gets
			// put back on the message queue and is received again.
			if err != nil {
				azerr := fmt.Errorf("RenewMessageLock %d: failed to renew message lock at %v: %w", count, t, NewAzbusError(err))
				r.log.Infof("%s", azerr)
			}
		}
	}
}

// processMessage disposes of a message and logs how long processing took.
func (r *Receiver) processMessage(ctx context.Context, count int, maxDuration time.Duration, msg *ReceivedMessage, handler Handler) {
	now := time.Now()

	// the context wont have a trace span on it yet, so stick with the receiver logger instance
	r.log.Debugf("Processing message %d id %s", count, msg.MessageID)

	span, ctx := tracing.NewSpanWithAttributes(ctx, "Receiver", r.log, msg.ApplicationProperties)
	disp, ctx, err := handler.Handle(ctx, msg)
	span.Close()

	r.dispose(ctx, disp, err, msg)

	duration := time.Since(now)

	// Now we do have a tracing context we can use it for logging
	log := r.log.FromContext(ctx)
	defer log.Close()

	log.Debugf("Processing message %d id %s took %s", count, msg.MessageID, duration)

	// This is safe because maxDuration is only defined if RenewMessageLock is false.
	if !r.Cfg.RenewMessageLock && duration >= maxDuration {
		log.Infof("WARNING: processing msg %d id %s duration %v took more than %v", count, msg.MessageID, duration, maxDuration)
		log.Infof("WARNING: please either enable RenewMessageLock or reduce the handler count")
	}
	if errors.Is(err, ErrPeekLockTimeout) {
		log.Infof("WARNING: processing msg %d id %s duration %s returned error: %v", count, msg.MessageID, duration, err)
	}
}

// dispose settles a handled message according to its disposition. All paths
// return nil-or-logged: a settlement failure here means the message will be
// redelivered after its lock expires, which is the desired fallback.
func (r *Receiver) dispose(ctx context.Context, d Disposition, err error, msg *ReceivedMessage) {
	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	switch d {
	case DeadletterDisposition:
		r.deadLetterMessage(ctx, log, err, msg)
	case AbandonDisposition:
		r.abandonMessage(ctx, log, err, msg)
	case RescheduleDisposition:
		// Simply not settling causes azservicebus to resubmit the message
		// once its lock expires, which is exactly the reschedule we want.
		log.Infof("Reschedule Message on DeliveryCount %d: %v", msg.DeliveryCount, err)
	case CompleteDisposition:
		r.completeMessage(ctx, log, err, msg)
	}
}

func (r *Receiver) completeMessage(ctx context.Context, log Logger, err error, msg *ReceivedMessage) {
	span, ctx := tracing.StartSpanFromContext(ctx, log, "Message.Complete")
	defer span.Close()

	if err != nil {
		log.Infof("Complete Message %v", err)
	}
	receiver := r.currentSettler()
	if receiver == nil {
		log.Infof("Complete: receiver closed, message will be redelivered")
		return
	}
	err1 := receiver.CompleteMessage(ctx, msg, nil)
	if err1 != nil {
		// If the completion fails then the message will get rescheduled, but
		// its effect will have been made, so we could get duplication issues.
		azerr := fmt.Errorf("Complete: failed to settle message: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
}

func (r *Receiver) abandonMessage(ctx context.Context, log Logger, err error, msg *ReceivedMessage) {
	span, ctx := tracing.StartSpanFromContext(ctx, log, "Message.Abandon")
	defer span.Close()

	log.Infof("Abandon Message on DeliveryCount %d: %v", msg.DeliveryCount, err)
	receiver := r.currentSettler()
	if receiver == nil {
		log.Infof("Abandon: receiver closed, message will be redelivered")
		return
	}
	err1 := receiver.AbandonMessage(ctx, msg, nil)
	if err1 != nil {
		azerr := fmt.Errorf("Abandon Message failure: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
}

func (r *Receiver) deadLetterMessage(ctx context.Context, log Logger, err error, msg *ReceivedMessage) {
	span, ctx := tracing.StartSpanFromContext(ctx, log, "Message.DeadLetter")
	defer span.Close()

	log.Infof("DeadLetter Message: %v", err)
	var reason string
	if err != nil {
		reason = err.Error()
	}
	receiver := r.currentSettler()
	if receiver == nil {
		log.Infof("DeadLetter: receiver closed, message will be redelivered")
		return
	}
	err1 := receiver.DeadLetterMessage(ctx, msg, deadLetterOptions(reason, ""))
	if err1 != nil {
		azerr := fmt.Errorf("DeadLetter Message failure: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
}

func (r *Receiver) receiveMessages(ctx context.Context) error {

	numberOfReceivedMessages := len(r.handlers)
	if numberOfReceivedMessages == 0 {
		return ErrNoHandler
	}
	r.log.Debugf(
		"NumberOfReceivedMessages %d, RenewMessageLock: %v",
		numberOfReceivedMessages,
		r.Cfg.RenewMessageLock,
	)

	// Start all the workers. Each worker runs forever waiting on a channel for
	// received messages. The waitgroup semantics is used to indicate whether
	// the current message has been processed. The worker goroutines terminate
	// on a context.cancel between processing any messages. If there are any
	// unprocessed messages then these will eventually timeout and azure
	// servicebus will re-schedule them for processing.
	msgs := make(chan *ReceivedMessage, numberOfReceivedMessages)
	var wg sync.WaitGroup
	for i := 0; i < numberOfReceivedMessages; i++ {
		go func(rctx context.Context, ii int, rr *Receiver) {
			rr.log.Debugf("Start worker %d", ii)
			for {
				select {
				case <-rctx.Done():
					rr.log.Debugf("Stop worker %d", ii)
					return
				case msg := <-msgs:
					func(rrctx context.Context) {
						var renewCtx context.Context
						var renewCancel context.CancelFunc
						var maxDuration time.Duration
						if rr.Cfg.RenewMessageLock {
							renewCtx, renewCancel = context.WithCancel(rrctx)
							go rr.renewMessageLock(renewCtx, ii+1, msg)
							defer renewCancel()
						} else {
							// we need a timeout if RenewMessageLock is disabled
							renewCtx, renewCancel, maxDuration = rr.setTimeout(rrctx, rr.log, msg)
							defer renewCancel()
						}
						rr.processMessage(renewCtx, ii+1, maxDuration, msg, rr.handlers[ii])
					}(rctx)
					wg.Done()
				}
			}
		}(ctx, i, r)
	}

	// Use the waitgroup to indicate when all messages of each read have been
	// processed before asking for more.
	for {
		var err error
		var messages []*ReceivedMessage
		receiver := r.currentSettler()
		if receiver == nil {
			return ErrReceiverClosed
		}
		messages, err = receiver.ReceiveMessages(ctx, numberOfReceivedMessages, nil)
		if err != nil {
			azerr := fmt.Errorf("%s: ReceiveMessages failure: %w", r, NewAzbusError(err))
			r.log.Infof("%s", azerr)
			return azerr
		}
		total := len(messages)

		for i := 0; i < total; i++ {
			wg.Add(1)
			msgs <- messages[i]
		}
		wg.Wait()
		r.log.Debugf("Processed %d messages", total)
	}
}

// The following 2 methods satisfy the startup.Listener interface.
func (r *Receiver) Listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	err := r.Open()
	if err != nil {
		azerr := fmt.Errorf("%s: Listen failure: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return azerr
	}
	return r.receiveMessages(ctx)
}

func (r *Receiver) Shutdown(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.Close(ctx)
}
