package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sliceTasks(e *Engine, count int) []*Task[[]int] {
	tasks := make([]*Task[[]int], count)
	for i := range tasks {
		tasks[i] = Value(e, []int{i * 10, i*10 + 1})
	}
	return tasks
}

func TestSerialTyped(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	results, err := SerialTyped(e, []*Task[string]{Value(e, "a"), Value(e, "b")}).Get()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, results)
}

func TestSerialTypedCollection_KeepsNils(t *testing.T) {
	t.Parallel()

	e := newSyncEngine()
	tasks := []*Task[[]*int]{
		Value(e, []*int{nil}),
		Value[[]*int](e, nil),
		Value(e, []*int{nil, nil}),
	}

	results, err := SerialTypedCollection(e, tasks).Get()
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestParallelTyped_FailsOnFirstError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 4)
	boom := errors.New("boom")

	_, err := ParallelTyped(e, []*Task[int]{Value(e, 1), Fail[int](e, boom), Value(e, 3)}).Get()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "parallel slot 1")

	results, err := ParallelTyped(e, []*Task[int]{Value(e, 1), Value(e, 2)}).Get()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, results)
}

func TestParallelTypedCollectionN(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 4)

	testCases := []struct {
		name   string
		count  int
		shards int
	}{
		{name: "remainder goes to last shard", count: 10, shards: 3},
		{name: "even split", count: 8, shards: 4},
		{name: "fewer tasks than shards", count: 2, shards: 5},
		{name: "single shard falls back to serial", count: 5, shards: 1},
		{name: "zero shards falls back to serial", count: 5, shards: 0},
		{name: "no tasks", count: 0, shards: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			expected, err := SerialTypedCollection(e, sliceTasks(e, tc.count)).Get()
			require.NoError(t, err)

			got, err := ParallelTypedCollectionN(e, sliceTasks(e, tc.count), tc.shards).Get()
			require.NoError(t, err)

			assert.Equal(t, expected, got)
			assert.Len(t, got, tc.count*2)
		})
	}
}

func TestParallelTypedCollectionN_PropagatesFailure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, 4)
	boom := errors.New("boom")

	tasks := sliceTasks(e, 6)
	tasks[4] = Fail[[]int](e, boom)

	_, err := ParallelTypedCollectionN(e, tasks, 3).Get()
	assert.ErrorIs(t, err, boom)
}
