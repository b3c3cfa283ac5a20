package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryScheme = "memory://"

// DefaultVisibilityTimeout mirrors the SQS queue default.
const DefaultVisibilityTimeout = 30 * time.Second

var errUnknownReceipt = errors.New("receipt handle is invalid")

type memMessage struct {
	id             string
	body           string
	groupID        string
	receipt        string
	receiveCount   int
	invisibleUntil time.Time
}

type memQueue struct {
	messages []*memMessage
	notify   chan struct{}
}

// Memory is an in-process Backend with long polling and visibility timeouts.
// Queues must be created before they can be resolved.
type Memory struct {
	mu         sync.Mutex
	queues     map[Handle]*memQueue
	visibility time.Duration
	now        func() time.Time
}

// NewMemory ...
func NewMemory(visibility time.Duration) *Memory {
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	return &Memory{
		queues:     map[Handle]*memQueue{},
		visibility: visibility,
		now:        time.Now,
	}
}

// CreateQueue registers a queue and returns its handle. Creating twice is a no-op.
func (m *Memory) CreateQueue(name string) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := Handle(memoryScheme + name)
	if _, ok := m.queues[handle]; !ok {
		m.queues[handle] = &memQueue{notify: make(chan struct{})}
	}
	return handle
}

// ResolveQueue ...
func (m *Memory) ResolveQueue(ctx context.Context, name string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", &ResolutionError{Name: name, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	handle := Handle(memoryScheme + name)
	if _, ok := m.queues[handle]; !ok {
		return "", &ResolutionError{Name: name, Err: errors.New("queue does not exist")}
	}
	return handle, nil
}

// Send ...
func (m *Memory) Send(ctx context.Context, handle Handle, message OutboundMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[handle]
	if !ok {
		return "", opError(ErrSend, handle, errors.New("queue does not exist"))
	}
	msg := &memMessage{
		id:      uuid.New().String(),
		body:    message.Body,
		groupID: message.GroupID,
	}
	q.messages = append(q.messages, msg)
	close(q.notify)
	q.notify = make(chan struct{})
	return msg.id, nil
}

// Receive waits up to params.WaitTime for visible messages.
func (m *Memory) Receive(ctx context.Context, handle Handle, params ReceiveParams) ([]InboundMessage, error) {
	if params.MaxMessages <= 0 {
		params.MaxMessages = 1
	}
	deadline := m.now().Add(params.WaitTime)
	for {
		m.mu.Lock()
		q, ok := m.queues[handle]
		if !ok {
			m.mu.Unlock()
			return nil, opError(ErrReceive, handle, errors.New("queue does not exist"))
		}
		messages, nextVisible := m.take(q, params.MaxMessages)
		notify := q.notify
		m.mu.Unlock()

		if len(messages) > 0 {
			return messages, nil
		}
		wait := deadline.Sub(m.now())
		if wait <= 0 {
			return []InboundMessage{}, nil
		}
		if !nextVisible.IsZero() {
			if untilVisible := nextVisible.Sub(m.now()); untilVisible < wait {
				wait = untilVisible
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, opError(ErrReceive, handle, ctx.Err())
		case <-notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// take marks up to max visible messages in flight. It also reports when the
// earliest in-flight message becomes visible again.
func (m *Memory) take(q *memQueue, max int) ([]InboundMessage, time.Time) {
	now := m.now()
	var messages []InboundMessage
	var nextVisible time.Time
	for _, msg := range q.messages {
		if now.Before(msg.invisibleUntil) {
			if nextVisible.IsZero() || msg.invisibleUntil.Before(nextVisible) {
				nextVisible = msg.invisibleUntil
			}
			continue
		}
		if len(messages) >= max {
			break
		}
		msg.receipt = uuid.New().String()
		msg.receiveCount++
		msg.invisibleUntil = now.Add(m.visibility)
		attributes := map[string]string{
			AttrReceiveCount: strconv.Itoa(msg.receiveCount),
		}
		if msg.groupID != "" {
			attributes[AttrGroupID] = msg.groupID
		}
		messages = append(messages, InboundMessage{
			ID:            msg.id,
			Body:          msg.body,
			ReceiptHandle: msg.receipt,
			Attributes:    attributes,
		})
	}
	return messages, nextVisible
}

// Delete ...
func (m *Memory) Delete(ctx context.Context, handle Handle, receiptHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[handle]
	if !ok {
		return opError(ErrDelete, handle, errors.New("queue does not exist"))
	}
	for i, msg := range q.messages {
		if msg.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return opError(ErrDelete, handle, errUnknownReceipt)
}

// Depth reports the number of visible and in-flight messages.
func (m *Memory) Depth(handle Handle) (visible int, inFlight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[handle]
	if !ok {
		return 0, 0
	}
	now := m.now()
	for _, msg := range q.messages {
		if now.Before(msg.invisibleUntil) {
			inFlight++
		} else {
			visible++
		}
	}
	return visible, inFlight
}
