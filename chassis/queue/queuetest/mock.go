// Package queuetest provides a testify mock of queue.Backend.
package queuetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/freundallein/sqstransport/chassis/queue"
)

// MockBackend is a mock implementation of queue.Backend.
type MockBackend struct {
	mock.Mock
}

var _ queue.Backend = (*MockBackend)(nil)

func (m *MockBackend) ResolveQueue(ctx context.Context, name string) (queue.Handle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(queue.Handle), args.Error(1)
}

func (m *MockBackend) Send(ctx context.Context, handle queue.Handle, message queue.OutboundMessage) (string, error) {
	args := m.Called(ctx, handle, message)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Receive(ctx context.Context, handle queue.Handle, params queue.ReceiveParams) ([]queue.InboundMessage, error) {
	args := m.Called(ctx, handle, params)
	messages, _ := args.Get(0).([]queue.InboundMessage)
	return messages, args.Error(1)
}

func (m *MockBackend) Delete(ctx context.Context, handle queue.Handle, receiptHandle string) error {
	args := m.Called(ctx, handle, receiptHandle)
	return args.Error(0)
}
