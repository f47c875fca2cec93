package azbus

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/asbconnect/go-asbconnect/tracing"
)

// The settlement methods are addressed by the lock token issued with each
// received message. Settling is terminal: a message may be completed,
// abandoned, deferred or dead-lettered exactly once. The winning settlement
// removes the lock table entry so a second attempt fails with
// ErrLockTokenUnknown. RenewLock is not a settlement and leaves the entry in
// place.
//
// The azservicebus calls obey a context deadline if present. We have learned
// that retries are better, so settlement suppresses any deadline in the
// context. This has the added benefit of not reusing a context that has
// already cancelled - otherwise settlement code would exit immediately.

// Complete settles the message identified by lockToken as successfully
// processed, removing it from the entity.
func (r *Receiver) Complete(ctx context.Context, lockToken string) error {
	msg, err := r.resolve(lockToken)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	span, ctx := tracing.StartSpanFromContext(ctx, r.log, "Message.Complete")
	defer span.Close()
	log := r.log.FromContext(ctx)
	defer log.Close()

	err = r.receiver.CompleteMessage(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: Complete failure: %w", r, NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	r.inflight.remove(lockToken)
	log.Debugf("Completed message id %s with lock token %s", msg.MessageID, lockToken)
	return nil
}

// Abandon releases the lock on the message identified by lockToken, making it
// immediately available for redelivery and incrementing its delivery count.
func (r *Receiver) Abandon(ctx context.Context, lockToken string) error {
	msg, err := r.resolve(lockToken)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	span, ctx := tracing.StartSpanFromContext(ctx, r.log, "Message.Abandon")
	defer span.Close()
	log := r.log.FromContext(ctx)
	defer log.Close()

	err = r.receiver.AbandonMessage(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: Abandon failure: %w", r, NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	r.inflight.remove(lockToken)
	log.Debugf("Abandoned message id %s on DeliveryCount %d", msg.MessageID, msg.DeliveryCount)
	return nil
}

// Defer moves the message identified by lockToken aside so that it can only
// be retrieved again by its sequence number, via ReceiveDeferred.
func (r *Receiver) Defer(ctx context.Context, lockToken string) error {
	msg, err := r.resolve(lockToken)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	span, ctx := tracing.StartSpanFromContext(ctx, r.log, "Message.Defer")
	defer span.Close()
	log := r.log.FromContext(ctx)
	defer log.Close()

	err = r.receiver.DeferMessage(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: Defer failure: %w", r, NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	r.inflight.remove(lockToken)
	log.Debugf("Deferred message id %s", msg.MessageID)
	return nil
}

// DeadLetter moves the message identified by lockToken to the dead-letter
// sub-queue. The reason and description travel with the message; empty strings
// are omitted.
func (r *Receiver) DeadLetter(ctx context.Context, lockToken string, reason string, description string) error {
	msg, err := r.resolve(lockToken)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	span, ctx := tracing.StartSpanFromContext(ctx, r.log, "Message.DeadLetter")
	defer span.Close()
	log := r.log.FromContext(ctx)
	defer log.Close()

	err = r.receiver.DeadLetterMessage(ctx, msg, deadLetterOptions(reason, description))
	if err != nil {
		azerr := fmt.Errorf("%s: DeadLetter failure: %w", r, NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	r.inflight.remove(lockToken)
	log.Debugf("Dead-lettered message id %s: %s", msg.MessageID, reason)
	return nil
}

// RenewLock extends the peek lock on the message identified by lockToken. The
// lock token remains valid afterwards.
func (r *Receiver) RenewLock(ctx context.Context, lockToken string) error {
	msg, err := r.resolve(lockToken)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	err = r.receiver.RenewMessageLock(ctx, msg, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: RenewLock failure: %w", r, NewAzbusError(err))
		log.Infof("%s", azerr)
		return azerr
	}
	log.Debugf("Renewed lock on message id %s", msg.MessageID)
	return nil
}

func deadLetterOptions(reason, description string) *azservicebus.DeadLetterOptions {
	options := azservicebus.DeadLetterOptions{}
	if reason != "" {
		options.Reason = to.Ptr(reason)
	}
	if description != "" {
		options.ErrorDescription = to.Ptr(description)
	}
	return &options
}

// resolve maps a lock token back to the vendor message it was issued with.
func (r *Receiver) resolve(lockToken string) (*ReceivedMessage, error) {
	if r.receiver == nil {
		return nil, ErrReceiverClosed
	}
	msg, ok := r.inflight.get(lockToken)
	if !ok {
		return nil, fmt.Errorf("%s: %w", lockToken, ErrLockTokenUnknown)
	}
	return msg, nil
}
