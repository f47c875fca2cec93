package azbus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type receiveOptions struct {
	waitTime time.Duration
}

type ReceiveOption func(*receiveOptions)

// WithWaitTime bounds how long a receive call waits for messages to arrive.
// When the wait expires with nothing received the call returns an empty
// result, not an error. Without this option the call waits until at least one
// message arrives or the caller's context is cancelled.
func WithWaitTime(d time.Duration) ReceiveOption {
	return func(o *receiveOptions) {
		o.waitTime = d
	}
}

// ReceiveMessage receives at most one message. A nil message with a nil error
// means nothing arrived before the wait time expired. The returned message's
// lock token addresses the settlement methods on this receiver.
func (r *Receiver) ReceiveMessage(ctx context.Context, opts ...ReceiveOption) (*Message, error) {
	batch, err := r.ReceiveBatch(ctx, 1, opts...)
	if err != nil {
		return nil, err
	}
	if batch.MessageCount == 0 {
		return nil, nil
	}
	return batch.Messages[0], nil
}

// ReceiveBatch receives up to maxMessages messages. The returned batch holds
// the count actually received - possibly zero, possibly less than requested -
// and the translated records in delivery order. Expiry of the wait time is an
// empty batch; cancellation of the caller's context is returned as that
// context's error. The two are deliberately distinct.
func (r *Receiver) ReceiveBatch(ctx context.Context, maxMessages int, opts ...ReceiveOption) (*MessageBatch, error) {
	if r.receiver == nil {
		return nil, ErrReceiverClosed
	}
	if maxMessages < 1 {
		return nil, fmt.Errorf("maxMessages must be greater than zero")
	}

	o := receiveOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	rctx := ctx
	if o.waitTime > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, o.waitTime)
		defer cancel()
	}

	messages, err := r.receiver.ReceiveMessages(rctx, maxMessages, nil)
	if err != nil {
		if ctx.Err() != nil {
			// the caller cancelled, don't mask it as emptiness
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// our own wait timer fired before anything arrived
			return &MessageBatch{Messages: []*Message{}}, nil
		}
		azerr := fmt.Errorf("%s: ReceiveMessages failure: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return nil, azerr
	}

	batch := &MessageBatch{
		MessageCount: len(messages),
		Messages:     make([]*Message, 0, len(messages)),
	}
	for _, m := range messages {
		msg := newMessage(m)
		r.register(msg.LockToken, m)
		batch.Messages = append(batch.Messages, msg)
	}
	r.log.Debugf("Received %d messages", batch.MessageCount)
	return batch, nil
}

// ReceiveDeferred retrieves a message previously deferred, addressed by the
// sequence number the broker assigned at accept time. A nil message with a nil
// error means no deferred message exists for that sequence number. On success
// the message's lock token is registered so it can subsequently be settled.
func (r *Receiver) ReceiveDeferred(ctx context.Context, sequenceNumber int64) (*Message, error) {
	if r.receiver == nil {
		return nil, ErrReceiverClosed
	}

	messages, err := r.receiver.ReceiveDeferredMessages(ctx, []int64{sequenceNumber}, nil)
	if err != nil {
		azerr := fmt.Errorf("%s: ReceiveDeferredMessages failure: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return nil, azerr
	}
	if len(messages) == 0 {
		return nil, nil
	}

	msg := newMessage(messages[0])
	r.register(msg.LockToken, messages[0])
	r.log.Debugf("Received deferred message with sequence number %d", sequenceNumber)
	return msg, nil
}

// register records the lock token to vendor message association. Nothing is
// tracked under ReceiveAndDelete as there is nothing left to settle.
func (r *Receiver) register(token string, m *ReceivedMessage) {
	if r.Cfg.Mode == ReceiveAndDelete {
		return
	}
	r.inflight.add(token, m)
}
