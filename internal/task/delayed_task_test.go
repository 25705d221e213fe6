package task

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayedTask_DeliversResult(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 2)
	o := newOutcome()

	d := attach(Value(e, 42).Delayed(), o)
	require.NoError(t, d.Execute())

	waitFor(t, o.done, "completion listener")
	assert.Equal(t, []string{"result", "at_last"}, o.snapshot())
	assert.Equal(t, []any{42}, o.results)
}

func TestDelayedTask_DeliversError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 2)
	o := newOutcome()
	boom := errors.New("boom")

	d := attach(Fail[int](e, boom).Delayed(), o)
	require.NoError(t, d.Execute())

	waitFor(t, o.done, "completion listener")
	assert.Equal(t, []string{"error", "at_last"}, o.snapshot())
	require.Len(t, o.errs, 1)
	assert.ErrorIs(t, o.errs[0], boom)
}

func TestDelayedTask_CancelBeforeExecute(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	c := &countingCallable{value: 1}
	o := newOutcome()

	d := attach(New[int](e, c).Delayed(), o)
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel(), "only the first cancel transitions")
	assert.True(t, d.IsCancelled())

	require.NoError(t, d.Execute())

	// Neither result nor error, but the completion listener still runs once
	assert.Equal(t, []string{"at_last"}, o.snapshot())
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestDelayedTask_CancelWhileRunning(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 2)
	b := newBlockingCallable(9)
	o := newOutcome()

	d := attach(New[int](e, b).Delayed(), o)
	require.NoError(t, d.Execute())

	waitFor(t, b.started, "callable to start")
	assert.True(t, d.Cancel())

	waitFor(t, o.done, "completion listener")
	assert.Equal(t, []string{"at_last"}, o.snapshot())
	assert.Equal(t, int32(1), b.cancelCalls.Load())
}

func TestDelayedTask_CancelNil(t *testing.T) {
	t.Parallel()

	var d *DelayedTask[int]
	assert.False(t, d.Cancel())
}

func TestDelayedTask_ExecuteTwice(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	c := &countingCallable{value: 1}
	d := New[int](e, c).Delayed()

	require.NoError(t, d.Execute())
	assert.ErrorIs(t, d.Execute(), ErrAlreadyExecuted)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestDelayedTask_ExecutorRejects(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	rejected := errors.New("rejected")
	o := newOutcome()

	d := attach(Value(e, 1).Delayed(), o)
	err := d.ExecuteOn(ExecutorFunc(func(func()) error { return rejected }))

	assert.ErrorIs(t, err, rejected)
	assert.Empty(t, o.snapshot())
}

func TestDelayedTask_MissingListeners(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 1)
	done := make(chan struct{})

	// A failure without an error listener is logged, and completion still fires
	d := Fail[int](e, errors.New("unheard")).Delayed().AtLast(func() { close(done) })
	require.NoError(t, d.Execute())

	waitFor(t, done, "completion listener")
}

func TestDelayedTask_PanickingListener(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 1)
	done := make(chan struct{})

	d := Value(e, 1).Delayed().
		OnResult(func(int) { panic("listener failure") }).
		AtLast(func() { close(done) })
	require.NoError(t, d.Execute())

	waitFor(t, done, "completion listener after panic")
}

func TestDelayedTask_ListenersAreSerialized(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 8)
	const count = 50

	var (
		inFlight atomic.Int32
		overlap  atomic.Bool
		wg       sync.WaitGroup
	)
	wg.Add(count)

	for i := 0; i < count; i++ {
		d := Value(e, i).Delayed().
			OnResult(func(int) {
				if inFlight.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
			}).
			AtLast(wg.Done)
		require.NoError(t, d.Execute())
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	waitFor(t, done, "all completion listeners")

	assert.False(t, overlap.Load(), "listeners ran concurrently")
}

func TestDelayedTask_Clone(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	c := &countingCallable{value: 5}
	first := newOutcome()

	d := attach(New[int](e, c).Delayed(), first)
	require.NoError(t, d.Execute())
	d.Cancel()

	// The clone has its own listeners and cancellation state
	second := newOutcome()
	clone := attach(d.Clone(), second)
	assert.False(t, clone.IsCancelled())
	assert.NotEqual(t, d.ID(), clone.ID())

	require.NoError(t, clone.Execute())
	assert.Equal(t, []string{"result", "at_last"}, second.snapshot())
	assert.Equal(t, []any{5}, second.results)
	assert.Equal(t, int32(2), c.calls.Load())
}
