package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	log "github.com/freundallein/sqstransport/chassis/logging"
	"github.com/freundallein/sqstransport/chassis/metrics"
	"github.com/freundallein/sqstransport/chassis/protocol"
	"github.com/freundallein/sqstransport/chassis/queue"
	"github.com/freundallein/sqstransport/lifecycle"
	"github.com/freundallein/sqstransport/response"
	"github.com/freundallein/sqstransport/router"
)

// A persistent receive failure is logged once per this many attempts.
const receiveErrorLogEvery = 100

var (
	// ErrNotStarted is returned by Poll before Start succeeded.
	ErrNotStarted = errors.New("consumer is not started")
	// ErrClosed is returned by Listen after Close. Reopening takes an explicit Start.
	ErrClosed = errors.New("consumer is closed")
)

// HandlerError wraps a failure returned (or panicked) by a handler.
type HandlerError struct {
	Pattern string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Pattern, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ObserverFunc returns the observer attached to one message's response stream.
type ObserverFunc func(msg *queue.InboundMessage, envelope *protocol.Envelope) response.Observer

// Config ...
type Config struct {
	Queue    queue.Config
	Backend  queue.Backend
	Registry *router.Registry
	Metrics  *metrics.Metrics
	Observer ObserverFunc
}

// Server long-polls one queue and dispatches every message to the handler
// registered for its pattern. A message is deleted only after the handler's
// response stream completes; every other outcome leaves it for redelivery.
type Server struct {
	cfg      queue.Config
	backend  queue.Backend
	registry *router.Registry
	metrics  *metrics.Metrics
	observer ObserverFunc

	state   lifecycle.Machine
	running int32

	// set once by Start, read-only afterwards
	handle queue.Handle
	params queue.ReceiveParams
	slots  *semaphore.Weighted

	inflight sync.WaitGroup
}

// New ...
func New(cfg *Config) *Server {
	registry := cfg.Registry
	if registry == nil {
		registry = router.NewRegistry()
	}
	return &Server{
		cfg:      cfg.Queue.WithDefaults(),
		backend:  cfg.Backend,
		registry: registry,
		metrics:  cfg.Metrics,
		observer: cfg.Observer,
	}
}

// Start resolves the queue, builds the receive parameters and raises the
// running flag. It does not poll; see Listen and Poll.
func (s *Server) Start(ctx context.Context) error {
	if err := s.state.Begin(); err != nil {
		return err
	}
	handle, err := s.backend.ResolveQueue(ctx, s.cfg.Name)
	if err != nil {
		s.state.Fail()
		log.WithFields(log.Fields{
			"event": "resolve_queue_failed",
			"queue": s.cfg.Name,
		}).Error(err)
		return err
	}
	s.handle = handle
	s.params = queue.ReceiveParams{
		MaxMessages:           s.cfg.MaxMessages,
		WaitTime:              s.cfg.WaitTime,
		AttributeNames:        []string{queue.AttrReceiveCount},
		MessageAttributeNames: []string{queue.AttrAll},
	}
	s.slots = semaphore.NewWeighted(int64(s.cfg.MaxMessages))
	atomic.StoreInt32(&s.running, 1)
	if err := s.state.Transition(lifecycle.Ready, lifecycle.Connecting); err != nil {
		atomic.StoreInt32(&s.running, 0)
		return err
	}
	log.WithFields(log.Fields{
		"event":       "consumer_started",
		"queue":       s.cfg.Name,
		"handle":      handle,
		"maxMessages": s.cfg.MaxMessages,
		"waitTime":    s.cfg.WaitTime,
		"patterns":    s.registry.Len(),
	}).Info("consumer started")
	return nil
}

// Listen starts a created or stopped consumer and polls until Close is
// called or ctx is done, then waits for dispatched handlers to finish.
// Receive failures are logged and polling continues. A closed consumer
// returns ErrClosed without polling; reopening takes an explicit Start.
func (s *Server) Listen(ctx context.Context) error {
	switch s.state.State() {
	case lifecycle.Closed:
		return ErrClosed
	case lifecycle.Created, lifecycle.Stopped:
		if err := s.Start(ctx); err != nil {
			if s.state.State() == lifecycle.Closed {
				return ErrClosed
			}
			return err
		}
	}
	if err := s.state.Transition(lifecycle.Polling, lifecycle.Ready); err != nil {
		if s.state.State() == lifecycle.Closed {
			return ErrClosed
		}
		return err
	}
	failures := 0
	for s.Running() {
		if ctx.Err() != nil {
			break
		}
		_, err := s.Poll(ctx)
		if err == nil {
			if failures > 0 {
				log.WithFields(log.Fields{
					"event":    "receive_recovered",
					"queue":    s.cfg.Name,
					"failures": failures,
				}).Info("receive succeeded again")
			}
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			break
		}
		failures++
		if failures%receiveErrorLogEvery == 1 {
			log.WithFields(log.Fields{
				"event":    "receive_failed",
				"queue":    s.cfg.Name,
				"failures": failures,
			}).Error(err)
		}
	}
	atomic.StoreInt32(&s.running, 0)
	log.WithFields(log.Fields{
		"event": "consumer_stopping",
		"queue": s.cfg.Name,
	}).Info("waiting for in-flight handlers")
	s.Wait()
	if s.state.State() != lifecycle.Closed {
		if err := s.state.Transition(lifecycle.Stopped, lifecycle.Polling); err != nil {
			log.WithFields(log.Fields{
				"event": "consumer_stop_failed",
				"queue": s.cfg.Name,
			}).Error(err)
		}
	}
	log.WithFields(log.Fields{
		"event": "consumer_stopped",
		"queue": s.cfg.Name,
	}).Info("consumer stopped")
	return nil
}

// Poll runs one iteration: wait for a free dispatch slot, receive at most as
// many messages as there are free slots and hand each one to its own
// goroutine. It returns the number of messages dispatched; an empty receive
// is not an error.
func (s *Server) Poll(ctx context.Context) (int, error) {
	slots := s.slots
	if slots == nil {
		return 0, ErrNotStarted
	}
	if err := slots.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	reserved := 1
	for reserved < s.params.MaxMessages && slots.TryAcquire(1) {
		reserved++
	}
	params := s.params
	params.MaxMessages = reserved

	messages, err := s.backend.Receive(ctx, s.handle, params)
	if err != nil {
		slots.Release(int64(reserved))
		s.metrics.BackendError(metrics.OpReceive)
		return 0, err
	}
	if len(messages) > reserved {
		log.WithFields(log.Fields{
			"event":    "receive_overflow",
			"queue":    s.cfg.Name,
			"received": len(messages),
			"reserved": reserved,
		}).Warn("backend returned more messages than requested, extra messages left for redelivery")
		messages = messages[:reserved]
	}
	slots.Release(int64(reserved - len(messages)))
	s.metrics.Received(len(messages))

	// handlers outlive ctx: stopping the loop never interrupts them
	for i := range messages {
		msg := messages[i]
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer slots.Release(1)
			s.handleMessage(context.Background(), &msg)
		}()
	}
	return len(messages), nil
}

func (s *Server) handleMessage(ctx context.Context, msg *queue.InboundMessage) {
	envelope, err := protocol.Decode(msg.Body)
	if err != nil {
		s.metrics.Malformed()
		log.WithFields(log.Fields{
			"event":        "malformed_envelope",
			"messageID":    msg.ID,
			"receiveCount": msg.ReceiveCount(),
		}).Error(err)
		return
	}
	handler, err := s.registry.Route(envelope)
	if err != nil {
		s.metrics.NoHandler()
		log.WithFields(log.Fields{
			"event":     "handler_not_found",
			"messageID": msg.ID,
			"pattern":   envelope.Pattern.Key(),
		}).Error(router.ErrNoHandler)
		return
	}
	log.WithFields(log.Fields{
		"event":        "receive_message",
		"messageID":    msg.ID,
		"pattern":      envelope.Pattern.Key(),
		"receiveCount": msg.ReceiveCount(),
	}).Debug(envelope)

	finish := s.metrics.HandlerStarted()
	defer finish()

	value, err := invoke(ctx, handler, envelope)
	stream := response.Adapt(value, err)
	var observer response.Observer = response.Discard
	if s.observer != nil {
		observer = s.observer(msg, envelope)
	}
	err = response.Send(ctx, stream, observer, func() {
		s.acknowledge(ctx, msg, envelope)
	})
	if err != nil {
		s.metrics.HandlerError()
		log.WithFields(log.Fields{
			"event":     "handler_failed",
			"messageID": msg.ID,
			"pattern":   envelope.Pattern.Key(),
		}).Error(err)
	}
}

func invoke(ctx context.Context, handler router.Handler, envelope *protocol.Envelope) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &HandlerError{Pattern: envelope.Pattern.Key(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	value, err = handler(ctx, envelope.Data)
	if err != nil {
		return nil, &HandlerError{Pattern: envelope.Pattern.Key(), Err: err}
	}
	return value, nil
}

func (s *Server) acknowledge(ctx context.Context, msg *queue.InboundMessage, envelope *protocol.Envelope) {
	err := s.backend.Delete(ctx, s.handle, msg.ReceiptHandle)
	if err != nil {
		s.metrics.BackendError(metrics.OpDelete)
		log.WithFields(log.Fields{
			"event":     "ack_message_failed",
			"messageID": msg.ID,
			"pattern":   envelope.Pattern.Key(),
		}).Error(err)
		return
	}
	s.metrics.Acknowledged()
	log.WithFields(log.Fields{
		"event":     "message_acknowledged",
		"messageID": msg.ID,
		"pattern":   envelope.Pattern.Key(),
	}).Debug("message deleted")
}

// Close lowers the running flag. It never interrupts an in-flight receive or
// handler; the loop exits after the current iteration. Safe to call twice.
func (s *Server) Close() error {
	// state first: a concurrent Start then fails its Ready transition
	closed := s.state.Close()
	atomic.StoreInt32(&s.running, 0)
	if closed {
		log.WithFields(log.Fields{
			"event": "consumer_closed",
			"queue": s.cfg.Name,
		}).Info("consumer closed")
	}
	return nil
}

// Wait blocks until every dispatched handler has finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Running ...
func (s *Server) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Handle returns the resolved queue handle.
func (s *Server) Handle() queue.Handle {
	return s.handle
}

// ReceiveParams returns the receive request built by Start.
func (s *Server) ReceiveParams() queue.ReceiveParams {
	return s.params
}

// State ...
func (s *Server) State() lifecycle.State {
	return s.state.State()
}
