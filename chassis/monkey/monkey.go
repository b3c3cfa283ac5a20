package monkey

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/freundallein/sqstransport/chassis/queue"
)

// ErrMonkey is the injected failure.
var ErrMonkey = errors.New("monkey error")

// Backend wraps a queue backend and fails send, receive and delete calls
// with the configured probability. Queue resolution is never disturbed.
type Backend struct {
	queue.Backend

	chance float64
	mu     sync.Mutex
	rnd    *rand.Rand
}

// Wrap returns backend unchanged when chance is zero or negative.
func Wrap(backend queue.Backend, chance float64) queue.Backend {
	if chance <= 0 {
		return backend
	}
	return New(backend, chance, time.Now().UnixNano())
}

// New ...
func New(backend queue.Backend, chance float64, seed int64) *Backend {
	return &Backend{
		Backend: backend,
		chance:  chance,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// RandomizeError with some probability generates a random "monkey" error.
func (b *Backend) RandomizeError(err error) error {
	if err != nil {
		return err
	}
	b.mu.Lock()
	roll := b.rnd.Float64()
	b.mu.Unlock()
	if roll >= b.chance {
		return nil
	}
	return ErrMonkey
}

// Send ...
func (b *Backend) Send(ctx context.Context, handle queue.Handle, message queue.OutboundMessage) (string, error) {
	if err := b.RandomizeError(nil); err != nil {
		return "", err
	}
	return b.Backend.Send(ctx, handle, message)
}

// Receive ...
func (b *Backend) Receive(ctx context.Context, handle queue.Handle, params queue.ReceiveParams) ([]queue.InboundMessage, error) {
	if err := b.RandomizeError(nil); err != nil {
		return nil, err
	}
	return b.Backend.Receive(ctx, handle, params)
}

// Delete ...
func (b *Backend) Delete(ctx context.Context, handle queue.Handle, receiptHandle string) error {
	if err := b.RandomizeError(nil); err != nil {
		return err
	}
	return b.Backend.Delete(ctx, handle, receiptHandle)
}
