package response

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	values    []interface{}
	errs      []error
	completed int
}

func (r *recorder) Next(v interface{}) { r.values = append(r.values, v) }
func (r *recorder) Error(err error)    { r.errs = append(r.errs, err) }
func (r *recorder) Complete()          { r.completed++ }

func TestSend_SingleValue(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Send(context.Background(), Adapt("ok", nil), rec, func() { calls++ })

	require.NoError(t, err)
	assert.Equal(t, []interface{}{"ok"}, rec.values)
	assert.Equal(t, 1, rec.completed)
	assert.Equal(t, 1, calls)
}

func TestSend_NilValue(t *testing.T) {
	rec := &recorder{}
	calls := 0
	require.NoError(t, Send(context.Background(), Adapt(nil, nil), rec, func() { calls++ }))
	assert.Equal(t, []interface{}{nil}, rec.values)
	assert.Equal(t, 1, calls)
}

func TestSend_NilChannelCompletes(t *testing.T) {
	var values <-chan interface{}
	var results chan Result
	for _, value := range []interface{}{values, results, (chan interface{})(nil), (<-chan Result)(nil)} {
		rec := &recorder{}
		calls := 0
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := Send(ctx, Adapt(value, nil), rec, func() { calls++ })
		cancel()

		require.NoError(t, err)
		assert.Empty(t, rec.values)
		assert.Equal(t, 1, rec.completed)
		assert.Equal(t, 1, calls)
	}
}

func TestSend_HandlerError(t *testing.T) {
	rec := &recorder{}
	calls := 0
	cause := errors.New("boom")
	err := Send(context.Background(), Adapt("ignored", cause), rec, func() { calls++ })

	assert.Equal(t, cause, err)
	assert.Empty(t, rec.values)
	assert.Equal(t, []error{cause}, rec.errs)
	assert.Equal(t, 0, rec.completed)
	assert.Equal(t, 0, calls)
}

func TestSend_ChannelStream(t *testing.T) {
	ch := make(chan interface{})
	go func() {
		for i := 1; i <= 3; i++ {
			ch <- i
		}
		close(ch)
	}()

	rec := &recorder{}
	calls := 0
	require.NoError(t, Send(context.Background(), Adapt(ch, nil), rec, func() { calls++ }))
	assert.Equal(t, []interface{}{1, 2, 3}, rec.values)
	assert.Equal(t, 1, calls)
}

func TestSend_CompletionOnlyAfterLastValue(t *testing.T) {
	ch := make(chan interface{})
	completed := make(chan struct{})
	go func() {
		_ = Send(context.Background(), Adapt((<-chan interface{})(ch), nil), Discard, func() { close(completed) })
	}()

	ch <- "first"
	select {
	case <-completed:
		t.Fatal("completed before stream closed")
	case <-time.After(20 * time.Millisecond):
	}
	close(ch)
	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("not completed after stream closed")
	}
}

func TestSend_ResultStreamFailure(t *testing.T) {
	ch := make(chan Result, 2)
	cause := errors.New("partial failure")
	ch <- Result{Value: "a"}
	ch <- Result{Err: cause}

	rec := &recorder{}
	calls := 0
	err := Send(context.Background(), Adapt(ch, nil), rec, func() { calls++ })

	assert.Equal(t, cause, err)
	assert.Equal(t, []interface{}{"a"}, rec.values)
	assert.Equal(t, 0, calls)
}

func TestSend_StreamPassThrough(t *testing.T) {
	s := Of("x", "y")
	assert.Same(t, s, Adapt(s, nil))

	rec := &recorder{}
	require.NoError(t, Send(context.Background(), s, rec, nil))
	assert.Equal(t, []interface{}{"x", "y"}, rec.values)
}

func TestSend_SliceIsSingleValue(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, Send(context.Background(), Adapt([]int{1, 2}, nil), rec, nil))
	assert.Equal(t, []interface{}{[]int{1, 2}}, rec.values)
}

func TestSend_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan interface{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	rec := &recorder{}
	calls := 0
	err := Send(ctx, FromChannel(ch), rec, func() { calls++ })

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, calls)
	assert.Len(t, rec.errs, 1)
}

func TestFuncs_NilSafe(t *testing.T) {
	var got interface{}
	obs := Funcs{OnNext: func(v interface{}) { got = v }}
	assert.NotPanics(t, func() {
		require.NoError(t, Send(context.Background(), Of(7), obs, nil))
	})
	assert.Equal(t, 7, got)
	assert.NotPanics(t, func() {
		_ = Send(context.Background(), Fail(errors.New("x")), nil, nil)
	})
}
