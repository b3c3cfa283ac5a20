package producer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	log "github.com/freundallein/sqstransport/chassis/logging"
	"github.com/freundallein/sqstransport/chassis/metrics"
	"github.com/freundallein/sqstransport/chassis/protocol"
	"github.com/freundallein/sqstransport/chassis/queue"
	"github.com/freundallein/sqstransport/lifecycle"
	"github.com/freundallein/sqstransport/response"
)

var (
	// ErrNotConnected is returned by Publish before Connect succeeded or after Close.
	ErrNotConnected = errors.New("producer is not connected")
	// ErrRequestUnsupported is returned by Send: replies never travel back through the queue.
	ErrRequestUnsupported = errors.New("request/response dispatch is not supported by the sqs transport")
)

// Config ...
type Config struct {
	Queue   queue.Config
	Backend queue.Backend
	Metrics *metrics.Metrics
}

// Client publishes envelopes to a single queue, fire-and-forget.
type Client struct {
	cfg     queue.Config
	backend queue.Backend
	metrics *metrics.Metrics
	state   lifecycle.Machine

	mu     sync.RWMutex
	handle queue.Handle
}

// New ...
func New(cfg *Config) *Client {
	return &Client{
		cfg:     cfg.Queue.WithDefaults(),
		backend: cfg.Backend,
		metrics: cfg.Metrics,
	}
}

// Connect resolves the queue handle. Calling it on a ready client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if c.state.State() == lifecycle.Ready {
		return nil
	}
	if err := c.state.Begin(); err != nil {
		return err
	}
	handle, err := c.backend.ResolveQueue(ctx, c.cfg.Name)
	if err != nil {
		c.state.Fail()
		log.WithFields(log.Fields{
			"event": "resolve_queue_failed",
			"queue": c.cfg.Name,
		}).Error(err)
		return err
	}
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	if err := c.state.Transition(lifecycle.Ready, lifecycle.Connecting); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"event":  "producer_connected",
		"queue":  c.cfg.Name,
		"handle": handle,
	}).Info("producer connected")
	return nil
}

// Handle returns the resolved queue handle, empty before Connect.
func (c *Client) Handle() queue.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// Emit wraps data into an envelope and publishes it.
func (c *Client) Emit(ctx context.Context, pattern protocol.Pattern, data interface{}) (string, error) {
	envelope, err := protocol.NewEnvelope(pattern, data)
	if err != nil {
		return "", err
	}
	return c.Publish(ctx, envelope)
}

// Publish sends one envelope and returns the backend message id. Failures are
// returned as is; retrying is up to the caller.
func (c *Client) Publish(ctx context.Context, envelope *protocol.Envelope) (string, error) {
	handle := c.Handle()
	if handle == "" || c.state.State() != lifecycle.Ready {
		return "", ErrNotConnected
	}
	body, err := envelope.JSON()
	if err != nil {
		log.WithFields(log.Fields{
			"event":   "envelope_serialize_failed",
			"pattern": envelope.Pattern.Key(),
		}).Error(err)
		return "", err
	}
	message := queue.OutboundMessage{Body: body}
	if c.cfg.Fifo {
		message.GroupID = c.cfg.GroupID
		if message.GroupID == "" {
			message.GroupID = envelope.Pattern.Key()
		}
		message.DeduplicationID = uuid.New().String()
	}
	id, err := c.backend.Send(ctx, handle, message)
	if err != nil {
		c.metrics.BackendError(metrics.OpSend)
		log.WithFields(log.Fields{
			"event":   "publish_failed",
			"pattern": envelope.Pattern.Key(),
		}).Error(err)
		return "", err
	}
	c.metrics.Published()
	log.WithFields(log.Fields{
		"event":     "publish_message",
		"pattern":   envelope.Pattern.Key(),
		"messageID": id,
	}).Debug(envelope)
	return id, nil
}

// Send is the request/response path. The queue never carries replies, so it
// always fails with ErrRequestUnsupported without contacting the backend.
func (c *Client) Send(ctx context.Context, pattern protocol.Pattern, data interface{}) (*response.Stream, error) {
	return nil, ErrRequestUnsupported
}

// Close always succeeds. The handle is dropped; Connect resolves it again.
func (c *Client) Close() error {
	if c.state.Close() {
		c.mu.Lock()
		c.handle = ""
		c.mu.Unlock()
		log.WithFields(log.Fields{
			"event": "producer_closed",
			"queue": c.cfg.Name,
		}).Info("producer closed")
	}
	return nil
}

// State ...
func (c *Client) State() lifecycle.State {
	return c.state.State()
}
