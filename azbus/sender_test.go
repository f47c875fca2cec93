package azbus

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbconnect/go-asbconnect/logger"
)

type fakeAzSender struct {
	sent    []*OutMessage
	sendErr error
	closed  bool
}

func (f *fakeAzSender) SendMessage(ctx context.Context, message *OutMessage, _ *azservicebus.SendMessageOptions) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeAzSender) SendMessageBatch(ctx context.Context, batch *OutMessageBatch, _ *azservicebus.SendMessageBatchOptions) error {
	return f.sendErr
}

func (f *fakeAzSender) NewMessageBatch(ctx context.Context, _ *azservicebus.MessageBatchOptions) (*OutMessageBatch, error) {
	return &OutMessageBatch{}, nil
}

func (f *fakeAzSender) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func newTestSender(fake azSender, maxSize int64) *Sender {
	s := NewSender(logger.Sugar, SenderConfig{
		ConnectionString: "Endpoint=sb://test/;SharedAccessKeyName=x;SharedAccessKey=y",
		TopicOrQueueName: "testq",
	})
	s.sender = fake
	s.maxMessageSizeInBytes = maxSize
	return s
}

func TestSendSetsMessageID(t *testing.T) {
	fake := &fakeAzSender{}
	s := newTestSender(fake, defaultMaxMessageSize)

	msg := NewOutMessage([]byte("hello"))
	err := s.Send(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, fake.sent, 1)
	require.NotNil(t, fake.sent[0].MessageID)
	assert.NotEmpty(t, *fake.sent[0].MessageID)
}

func TestSendOversizedMessage(t *testing.T) {
	fake := &fakeAzSender{}
	s := newTestSender(fake, 4)

	err := s.Send(context.Background(), NewOutMessage([]byte("too big")))
	assert.ErrorIs(t, err, ErrMessageOversized)
	assert.Empty(t, fake.sent)
}

// A cancelled caller context does not abort the send; delivery retries are the
// SDK's job once a send has been committed to.
func TestSendIgnoresCancellation(t *testing.T) {
	fake := &fakeAzSender{}
	s := newTestSender(fake, defaultMaxMessageSize)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Send(ctx, NewOutMessage([]byte("hello")))
	assert.NoError(t, err)
	assert.Len(t, fake.sent, 1)
}

func TestSenderClose(t *testing.T) {
	fake := &fakeAzSender{}
	s := newTestSender(fake, defaultMaxMessageSize)

	s.Close(context.Background())
	assert.True(t, fake.closed)

	// second close is a no-op
	s.Close(context.Background())
}

func TestSenderString(t *testing.T) {
	s := NewSender(logger.Sugar, SenderConfig{TopicOrQueueName: "orders"})
	assert.Equal(t, "orders", s.String())
}

func TestOutMessageProperties(t *testing.T) {
	msg := NewOutMessage([]byte("hello"))
	OutMessageSetProperty(msg, "traceid", "abc123")
	props := OutMessageProperties(msg)
	assert.Equal(t, "abc123", props["traceid"])
}
