package response

import (
	"context"
)

// Result is one element of a response stream. A non-nil Err terminates the
// stream as failed.
type Result struct {
	Value interface{}
	Err   error
}

// Stream is a pull-based sequence of handler responses that ends either in
// completion or in a failure.
type Stream struct {
	next func(ctx context.Context) (Result, bool)
}

// Of returns a stream emitting values then completing.
func Of(values ...interface{}) *Stream {
	i := 0
	return &Stream{next: func(ctx context.Context) (Result, bool) {
		if i >= len(values) {
			return Result{}, false
		}
		v := values[i]
		i++
		return Result{Value: v}, true
	}}
}

// Fail returns a stream that fails immediately with err.
func Fail(err error) *Stream {
	return New(func(ctx context.Context) (Result, bool) {
		return Result{Err: err}, true
	})
}

// New builds a stream from a pull function returning false once exhausted.
func New(next func(ctx context.Context) (Result, bool)) *Stream {
	return &Stream{next: next}
}

// FromChannel emits every value received from ch and completes when ch is closed.
func FromChannel(ch <-chan interface{}) *Stream {
	return New(func(ctx context.Context) (Result, bool) {
		select {
		case <-ctx.Done():
			return Result{Err: ctx.Err()}, true
		case v, ok := <-ch:
			if !ok {
				return Result{}, false
			}
			return Result{Value: v}, true
		}
	})
}

// FromResults is FromChannel for channels that can carry failures.
func FromResults(ch <-chan Result) *Stream {
	return New(func(ctx context.Context) (Result, bool) {
		select {
		case <-ctx.Done():
			return Result{Err: ctx.Err()}, true
		case r, ok := <-ch:
			return r, ok
		}
	})
}

// Adapt turns a handler's return into a Stream. A nil channel is an empty
// stream that completes at once.
func Adapt(value interface{}, err error) *Stream {
	if err != nil {
		return Fail(err)
	}
	switch v := value.(type) {
	case *Stream:
		if v == nil {
			return Of(nil)
		}
		return v
	case <-chan Result:
		if v == nil {
			return Of()
		}
		return FromResults(v)
	case chan Result:
		if v == nil {
			return Of()
		}
		return FromResults(v)
	case <-chan interface{}:
		if v == nil {
			return Of()
		}
		return FromChannel(v)
	case chan interface{}:
		if v == nil {
			return Of()
		}
		return FromChannel(v)
	default:
		return Of(value)
	}
}

// Observer receives the values and the terminal event of a stream.
type Observer interface {
	Next(value interface{})
	Error(err error)
	Complete()
}

// Funcs adapts plain functions to Observer. Nil functions are skipped.
type Funcs struct {
	OnNext     func(value interface{})
	OnError    func(err error)
	OnComplete func()
}

func (f Funcs) Next(value interface{}) {
	if f.OnNext != nil {
		f.OnNext(value)
	}
}

func (f Funcs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

func (f Funcs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

// Discard ignores everything.
var Discard Observer = Funcs{}

// Send drains the stream into observer. On normal completion it calls
// observer.Complete and then onComplete exactly once and returns nil. On
// failure, including ctx cancellation, the error goes to observer.Error,
// onComplete is not called and the error is returned.
func Send(ctx context.Context, s *Stream, observer Observer, onComplete func()) error {
	if observer == nil {
		observer = Discard
	}
	for {
		if err := ctx.Err(); err != nil {
			observer.Error(err)
			return err
		}
		r, ok := s.next(ctx)
		if !ok {
			observer.Complete()
			if onComplete != nil {
				onComplete()
			}
			return nil
		}
		if r.Err != nil {
			observer.Error(r.Err)
			return r.Err
		}
		observer.Next(r.Value)
	}
}
