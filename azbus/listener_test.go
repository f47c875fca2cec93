package azbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbconnect/go-asbconnect/logger"
)

type testHandler struct {
	disposition Disposition
	err         error
	handled     chan string
}

func newTestHandler(d Disposition, err error) *testHandler {
	return &testHandler{disposition: d, err: err, handled: make(chan string, 1)}
}

func (h *testHandler) Handle(ctx context.Context, msg *ReceivedMessage) (Disposition, context.Context, error) {
	h.handled <- msg.MessageID
	return h.disposition, ctx, h.err
}

func (h *testHandler) Open() error { return nil }
func (h *testHandler) Close()      {}

func TestDispositionString(t *testing.T) {
	assert.Equal(t, "DeadLetter", DeadletterDisposition.String())
	assert.Equal(t, "Abandon", AbandonDisposition.String())
	assert.Equal(t, "Reschedule", RescheduleDisposition.String())
	assert.Equal(t, "Complete", CompleteDisposition.String())
}

func TestDispose(t *testing.T) {
	tests := []struct {
		name        string
		disposition Disposition
		err         error
		settledAs   string
	}{
		{"complete", CompleteDisposition, nil, "complete"},
		{"abandon", AbandonDisposition, errors.New("try again"), "abandon"},
		{"deadletter", DeadletterDisposition, errors.New("unparseable"), "deadletter"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			vendor := vendorMessage("m1")
			fake := newFakeSettler()
			r := newTestReceiver(fake)

			r.dispose(context.Background(), test.disposition, test.err, vendor)
			assert.Equal(t, test.settledAs, fake.settled["m1"])
		})
	}
}

// Rescheduling settles nothing: the lock is simply left to expire.
func TestDisposeReschedule(t *testing.T) {
	fake := newFakeSettler()
	r := newTestReceiver(fake)

	r.dispose(context.Background(), RescheduleDisposition, errors.New("later"), vendorMessage("m1"))
	assert.Empty(t, fake.settled)
}

// Dead-lettering from a handler carries the handler error as the reason.
func TestDisposeDeadLetterReason(t *testing.T) {
	fake := newFakeSettler()
	r := newTestReceiver(fake)

	r.dispose(context.Background(), DeadletterDisposition, errors.New("unparseable"), vendorMessage("m1"))
	require.NotNil(t, fake.lastDeadLetter)
	require.NotNil(t, fake.lastDeadLetter.Reason)
	assert.Equal(t, "unparseable", *fake.lastDeadLetter.Reason)
}

func TestReceiveMessagesNoHandler(t *testing.T) {
	r := newTestReceiver(newFakeSettler())
	err := r.receiveMessages(context.Background())
	assert.ErrorIs(t, err, ErrNoHandler)
}

// Shutdown nils the vendor receiver while the receive loop may be between
// iterations; the loop must observe the closed receiver and stop instead of
// calling through a nil interface.
func TestReceiveMessagesStopsWhenClosed(t *testing.T) {
	handler := newTestHandler(CompleteDisposition, nil)
	fake := newFakeSettler()
	r := NewReceiver(logger.Sugar, ReceiverConfig{
		ConnectionString: "Endpoint=sb://test/;SharedAccessKeyName=x;SharedAccessKey=y",
		TopicOrQueueName: "testq",
		Mode:             PeekLock,
	}, WithHandlers(handler))
	r.receiver = fake

	require.NoError(t, r.Close(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := r.receiveMessages(ctx)
	assert.ErrorIs(t, err, ErrReceiverClosed)
}

// Settling a handled message after the receiver has been torn down is a no-op,
// not a panic; the message is left to be redelivered.
func TestDisposeAfterClose(t *testing.T) {
	fake := newFakeSettler()
	r := newTestReceiver(fake)
	require.NoError(t, r.Close(context.Background()))

	r.dispose(context.Background(), CompleteDisposition, nil, vendorMessage("m1"))
	r.dispose(context.Background(), AbandonDisposition, errors.New("later"), vendorMessage("m2"))
	r.dispose(context.Background(), DeadletterDisposition, errors.New("bad"), vendorMessage("m3"))
	assert.Empty(t, fake.settled)
}

// End to end through the worker loop: a message is handed to the handler and
// settled according to its disposition, then the loop stops on cancellation.
func TestReceiveMessagesDispatch(t *testing.T) {
	handler := newTestHandler(CompleteDisposition, nil)
	fake := newFakeSettler(vendorMessage("m1"))
	r := NewReceiver(logger.Sugar, ReceiverConfig{
		ConnectionString: "Endpoint=sb://test/;SharedAccessKeyName=x;SharedAccessKey=y",
		TopicOrQueueName: "testq",
		Mode:             PeekLock,
	}, WithHandlers(handler))
	r.receiver = fake

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.receiveMessages(ctx)
	}()

	select {
	case id := <-handler.handled:
		assert.Equal(t, "m1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("receive loop did not stop")
	}

	assert.Equal(t, "complete", fake.settled["m1"])
}
