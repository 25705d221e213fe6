package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_RemovesOnCompletion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		task func(e *Engine) *Task[int]
	}{
		{name: "success", task: func(e *Engine) *Task[int] { return Value(e, 1) }},
		{name: "failure", task: func(e *Engine) *Task[int] { return Fail[int](e, errors.New("boom")) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(t, 2)
			q := NewTaskQueue(setupTestLogger())
			o := newOutcome()

			d := attach(Enqueue(q, "job", tc.task(e)), o)
			assert.True(t, q.Exist("job"))

			require.NoError(t, d.Execute())
			waitFor(t, o.done, "completion listener")

			// The entry is removed before the outcome is posted
			assert.False(t, q.Exist("job"))
			assert.Equal(t, 0, q.Len())
		})
	}
}

func TestTaskQueue_CancelByTag(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 2)
	q := NewTaskQueue(setupTestLogger())
	b := newBlockingCallable(1)
	o := newOutcome()

	d := attach(Enqueue(q, "job", New[int](e, b)), o)
	require.NoError(t, d.Execute())
	waitFor(t, b.started, "callable to start")

	assert.True(t, q.Cancel("job"))
	assert.False(t, q.Exist("job"))
	assert.False(t, q.Cancel("job"), "second cancel finds nothing")

	waitFor(t, o.done, "completion listener")
	assert.Equal(t, []string{"at_last"}, o.snapshot())
	assert.True(t, d.IsCancelled())
}

func TestTaskQueue_CancelBeforeStart(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	q := NewTaskQueue(setupTestLogger())
	c := &countingCallable{value: 1}
	o := newOutcome()

	d := attach(Enqueue(q, "job", New[int](e, c)), o)
	assert.True(t, q.Cancel("job"))

	require.NoError(t, d.Execute())
	assert.Equal(t, []string{"at_last"}, o.snapshot())
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestTaskQueue_CancelMatching(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	q := NewTaskQueue(setupTestLogger())

	handles := map[string]*DelayedTask[int]{}
	for _, tag := range []string{"fetch:a", "fetch:b", "digest:a"} {
		handles[tag] = Enqueue(q, tag, Value(e, 1))
	}

	n := q.CancelMatching(func(_ Handle, tag string) bool {
		return strings.HasPrefix(tag, "fetch:")
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"digest:a"}, q.Tags())
	assert.True(t, handles["fetch:a"].IsCancelled())
	assert.True(t, handles["fetch:b"].IsCancelled())
	assert.False(t, handles["digest:a"].IsCancelled())
}

func TestTaskQueue_CancelAll(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 4)
	q := NewTaskQueue(setupTestLogger())

	var callables []*blockingCallable
	var outcomes []*outcome
	for i := 0; i < 3; i++ {
		b := newBlockingCallable(i)
		o := newOutcome()
		callables = append(callables, b)
		outcomes = append(outcomes, o)

		// Each entry is a mapped chain, so cancellation must walk it
		chain := Map(New[int](e, b), func(v int) (string, error) { return fmt.Sprint(v), nil })
		d := attach(Enqueue(q, fmt.Sprintf("job-%d", i), chain), o)
		require.NoError(t, d.Execute())
	}
	for _, b := range callables {
		waitFor(t, b.started, "callable to start")
	}

	assert.Equal(t, 3, q.CancelAll())
	assert.Equal(t, 0, q.Len())

	for i, o := range outcomes {
		waitFor(t, o.done, "completion listener")
		assert.Equal(t, []string{"at_last"}, o.snapshot())
		assert.Equal(t, int32(1), callables[i].cancelCalls.Load())
	}
}

func TestTaskQueue_ReplacedEntrySurvivesPredecessor(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	q := NewTaskQueue(setupTestLogger())

	older := Enqueue(q, "job", Value(e, 1))
	newer := Enqueue(q, "job", Value(e, 2))

	// The older task completing must not de-register its successor
	require.NoError(t, older.Execute())
	assert.True(t, q.Exist("job"))

	require.NoError(t, newer.Execute())
	assert.False(t, q.Exist("job"))
}

func TestTaskQueue_EmptyTag(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	q := NewTaskQueue(setupTestLogger())
	o := newOutcome()

	d := attach(Enqueue(q, "", Value(e, 1)), o)
	assert.Equal(t, 0, q.Len())

	require.NoError(t, d.Execute())
	assert.Equal(t, []string{"result", "at_last"}, o.snapshot())
}

func TestTaskQueue_CloneIsNotTracked(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	q := NewTaskQueue(setupTestLogger())

	d := Enqueue(q, "job", Value(e, 1))
	clone := d.Clone()

	require.NoError(t, clone.Execute())
	assert.True(t, q.Exist("job"), "a clone does not remove the original entry")

	require.NoError(t, d.Execute())
	assert.False(t, q.Exist("job"))
}

func TestTaskQueue_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 4)
	q := NewTaskQueue(setupTestLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := fmt.Sprintf("job-%d", i%5)
			d := Enqueue(q, tag, Value(e, i))
			_ = d.Execute()
			q.Exist(tag)
			if i%3 == 0 {
				q.Cancel(tag)
			}
		}(i)
	}
	wg.Wait()

	q.CancelAll()
	assert.Equal(t, 0, q.Len())
}
