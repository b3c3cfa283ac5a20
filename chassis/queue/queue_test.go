package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Config Tests
// ============================================================================

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	assert.Equal(t, DefaultRegion, cfg.Region)
	assert.Equal(t, DefaultName, cfg.Name)
	assert.False(t, cfg.Fifo)
	assert.Equal(t, 10, cfg.MaxMessages)
	assert.Equal(t, 20*time.Second, cfg.WaitTime)
}

func TestConfig_MaxMessagesClamp(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"above cap", 25, 10},
		{"at cap", 10, 10},
		{"below cap", 3, 3},
		{"one", 1, 1},
		{"unset", 0, 10},
		{"negative", -4, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Name: "orders", MaxMessages: tt.requested}.WithDefaults()
			assert.Equal(t, tt.want, cfg.MaxMessages)
			assert.Equal(t, "orders", cfg.Name)
		})
	}
}

func TestConfig_WaitTimeClamp(t *testing.T) {
	assert.Equal(t, WaitTimeCap, Config{WaitTime: time.Minute}.WithDefaults().WaitTime)
	assert.Equal(t, 5*time.Second, Config{WaitTime: 5 * time.Second}.WithDefaults().WaitTime)
}

func TestConfig_FifoSuffix(t *testing.T) {
	assert.Equal(t, "orders.fifo", Config{Name: "orders", Fifo: true}.WithDefaults().Name)
	assert.Equal(t, "orders.fifo", Config{Name: "orders.fifo", Fifo: true}.WithDefaults().Name)
	assert.Equal(t, "orders", Config{Name: "orders"}.WithDefaults().Name)
}

func TestConfig_WithDefaultsDoesNotMutate(t *testing.T) {
	cfg := Config{MaxMessages: 25}
	_ = cfg.WithDefaults()
	assert.Equal(t, 25, cfg.MaxMessages)
	assert.Empty(t, cfg.Name)
}

func TestInboundMessage_ReceiveCount(t *testing.T) {
	msg := InboundMessage{Attributes: map[string]string{AttrReceiveCount: "3"}}
	assert.Equal(t, 3, msg.ReceiveCount())

	msg = InboundMessage{}
	assert.Equal(t, 0, msg.ReceiveCount())
}

// ============================================================================
// AWSQueue Tests
// ============================================================================

type mockSQS struct {
	sqsiface.SQSAPI
	mock.Mock
}

func (m *mockSQS) GetQueueUrlWithContext(_ aws.Context, in *sqs.GetQueueUrlInput, _ ...request.Option) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*sqs.GetQueueUrlOutput)
	return out, args.Error(1)
}

func (m *mockSQS) SendMessageWithContext(_ aws.Context, in *sqs.SendMessageInput, _ ...request.Option) (*sqs.SendMessageOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*sqs.SendMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) ReceiveMessageWithContext(_ aws.Context, in *sqs.ReceiveMessageInput, _ ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*sqs.ReceiveMessageOutput)
	return out, args.Error(1)
}

func (m *mockSQS) DeleteMessageWithContext(_ aws.Context, in *sqs.DeleteMessageInput, _ ...request.Option) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(in)
	out, _ := args.Get(0).(*sqs.DeleteMessageOutput)
	return out, args.Error(1)
}

const testURL = "https://sqs.us-east-1.amazonaws.com/123456789012/orders"

func TestAWSQueue_ResolveQueue(t *testing.T) {
	api := &mockSQS{}
	api.On("GetQueueUrlWithContext", &sqs.GetQueueUrlInput{QueueName: aws.String("orders")}).
		Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(testURL)}, nil)

	q := NewAWSQueue(api, 0)
	handle, err := q.ResolveQueue(context.Background(), "orders")

	require.NoError(t, err)
	assert.Equal(t, Handle(testURL), handle)
}

func TestAWSQueue_ResolveQueueFailure(t *testing.T) {
	api := &mockSQS{}
	api.On("GetQueueUrlWithContext", mock.Anything).
		Return(nil, errors.New("AWS.SimpleQueueService.NonExistentQueue"))

	q := NewAWSQueue(api, 0)
	_, err := q.ResolveQueue(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueResolution))
	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "missing", resErr.Name)
}

func TestAWSQueue_Send(t *testing.T) {
	api := &mockSQS{}
	api.On("SendMessageWithContext", mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.StringValue(in.QueueUrl) == testURL &&
			aws.StringValue(in.MessageBody) == `{"pattern":"a"}` &&
			in.MessageGroupId == nil &&
			in.MessageDeduplicationId == nil
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil)

	q := NewAWSQueue(api, 0)
	id, err := q.Send(context.Background(), testURL, OutboundMessage{Body: `{"pattern":"a"}`})

	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	api.AssertExpectations(t)
}

func TestAWSQueue_SendFifo(t *testing.T) {
	api := &mockSQS{}
	api.On("SendMessageWithContext", mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.StringValue(in.MessageGroupId) == "g" && aws.StringValue(in.MessageDeduplicationId) == "d"
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("m-2")}, nil)

	q := NewAWSQueue(api, 0)
	_, err := q.Send(context.Background(), testURL, OutboundMessage{Body: "{}", GroupID: "g", DeduplicationID: "d"})

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestAWSQueue_SendFailure(t *testing.T) {
	api := &mockSQS{}
	api.On("SendMessageWithContext", mock.Anything).Return(nil, errors.New("throttled"))

	q := NewAWSQueue(api, 0)
	_, err := q.Send(context.Background(), testURL, OutboundMessage{Body: "{}"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSend))
	assert.False(t, errors.Is(err, ErrDelete))
}

func TestAWSQueue_Receive(t *testing.T) {
	api := &mockSQS{}
	api.On("ReceiveMessageWithContext", mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return aws.Int64Value(in.MaxNumberOfMessages) == 7 &&
			aws.Int64Value(in.WaitTimeSeconds) == 20 &&
			aws.Int64Value(in.VisibilityTimeout) == 45 &&
			len(in.AttributeNames) == 1 && *in.AttributeNames[0] == AttrReceiveCount &&
			len(in.MessageAttributeNames) == 1 && *in.MessageAttributeNames[0] == AttrAll
	})).Return(&sqs.ReceiveMessageOutput{Messages: []*sqs.Message{
		{
			MessageId:     aws.String("m-1"),
			Body:          aws.String("body"),
			ReceiptHandle: aws.String("r-1"),
			Attributes:    map[string]*string{AttrReceiveCount: aws.String("2")},
			MessageAttributes: map[string]*sqs.MessageAttributeValue{
				"tenant": {DataType: aws.String("String"), StringValue: aws.String("acme")},
			},
		},
	}}, nil)

	q := NewAWSQueue(api, 45)
	messages, err := q.Receive(context.Background(), testURL, ReceiveParams{
		MaxMessages:           7,
		WaitTime:              20 * time.Second,
		AttributeNames:        []string{AttrReceiveCount},
		MessageAttributeNames: []string{AttrAll},
	})

	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m-1", messages[0].ID)
	assert.Equal(t, "body", messages[0].Body)
	assert.Equal(t, "r-1", messages[0].ReceiptHandle)
	assert.Equal(t, 2, messages[0].ReceiveCount())
	assert.Equal(t, "acme", messages[0].Attributes["tenant"])
	api.AssertExpectations(t)
}

func TestAWSQueue_ReceiveEmpty(t *testing.T) {
	api := &mockSQS{}
	api.On("ReceiveMessageWithContext", mock.Anything).Return(&sqs.ReceiveMessageOutput{}, nil)

	q := NewAWSQueue(api, 0)
	messages, err := q.Receive(context.Background(), testURL, ReceiveParams{MaxMessages: 10})

	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestAWSQueue_Delete(t *testing.T) {
	api := &mockSQS{}
	api.On("DeleteMessageWithContext", &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(testURL),
		ReceiptHandle: aws.String("r-1"),
	}).Return(&sqs.DeleteMessageOutput{}, nil).Once()
	api.On("DeleteMessageWithContext", mock.Anything).Return(nil, errors.New("invalid receipt"))

	q := NewAWSQueue(api, 0)
	require.NoError(t, q.Delete(context.Background(), testURL, "r-1"))

	err := q.Delete(context.Background(), testURL, "r-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDelete))
}

// ============================================================================
// Memory Tests
// ============================================================================

func TestMemory_ResolveUnknownQueue(t *testing.T) {
	m := NewMemory(time.Second)
	_, err := m.ResolveQueue(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueResolution))
}

func TestMemory_SendReceiveDelete(t *testing.T) {
	m := NewMemory(time.Minute)
	created := m.CreateQueue("orders")
	handle, err := m.ResolveQueue(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, created, handle)

	for _, body := range []string{"a", "b", "c"} {
		_, err := m.Send(context.Background(), handle, OutboundMessage{Body: body})
		require.NoError(t, err)
	}

	messages, err := m.Receive(context.Background(), handle, ReceiveParams{MaxMessages: 2})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "a", messages[0].Body)
	assert.Equal(t, "b", messages[1].Body)
	assert.Equal(t, 1, messages[0].ReceiveCount())

	visible, inFlight := m.Depth(handle)
	assert.Equal(t, 1, visible)
	assert.Equal(t, 2, inFlight)

	require.NoError(t, m.Delete(context.Background(), handle, messages[0].ReceiptHandle))
	err = m.Delete(context.Background(), handle, messages[0].ReceiptHandle)
	assert.True(t, errors.Is(err, ErrDelete))

	visible, inFlight = m.Depth(handle)
	assert.Equal(t, 1, visible)
	assert.Equal(t, 1, inFlight)
}

func TestMemory_EmptyReceiveAfterWait(t *testing.T) {
	m := NewMemory(time.Minute)
	handle := m.CreateQueue("empty")

	start := time.Now()
	messages, err := m.Receive(context.Background(), handle, ReceiveParams{MaxMessages: 10, WaitTime: 50 * time.Millisecond})

	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.GreaterOrEqual(t, int64(time.Since(start)), int64(50*time.Millisecond))
}

func TestMemory_LongPollWakesOnSend(t *testing.T) {
	m := NewMemory(time.Minute)
	handle := m.CreateQueue("orders")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = m.Send(context.Background(), handle, OutboundMessage{Body: "late"})
	}()

	messages, err := m.Receive(context.Background(), handle, ReceiveParams{MaxMessages: 10, WaitTime: 5 * time.Second})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "late", messages[0].Body)
}

func TestMemory_VisibilityTimeoutRedelivers(t *testing.T) {
	m := NewMemory(30 * time.Millisecond)
	handle := m.CreateQueue("orders")
	_, err := m.Send(context.Background(), handle, OutboundMessage{Body: "x", GroupID: "g"})
	require.NoError(t, err)

	first, err := m.Receive(context.Background(), handle, ReceiveParams{MaxMessages: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "g", first[0].Attributes[AttrGroupID])

	second, err := m.Receive(context.Background(), handle, ReceiveParams{MaxMessages: 1, WaitTime: time.Second})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 2, second[0].ReceiveCount())
	assert.NotEqual(t, first[0].ReceiptHandle, second[0].ReceiptHandle)

	// the stale receipt no longer acknowledges the delivery
	assert.Error(t, m.Delete(context.Background(), handle, first[0].ReceiptHandle))
	assert.NoError(t, m.Delete(context.Background(), handle, second[0].ReceiptHandle))
}

func TestMemory_ReceiveCanceled(t *testing.T) {
	m := NewMemory(time.Minute)
	handle := m.CreateQueue("orders")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Receive(ctx, handle, ReceiveParams{MaxMessages: 1, WaitTime: time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReceive))
	assert.True(t, errors.Is(err, context.Canceled))
}
