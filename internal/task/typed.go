package task

import "fmt"

// SerialTyped runs homogeneous tasks in order and collects their results.
func SerialTyped[T any](e *Engine, tasks []*Task[T]) *Task[[]T] {
	return Map(Serial(e, runnables(tasks)...), collect[T])
}

// SerialTypedCollection runs tasks that each produce a slice, in order, and
// flattens the slices into one. Nil slices and zero values are kept as-is.
func SerialTypedCollection[T any](e *Engine, tasks []*Task[[]T]) *Task[[]T] {
	return Map(Serial(e, runnables(tasks)...), flatten[T])
}

// ParallelTyped runs homogeneous tasks in parallel and collects their results
// in constituent order. Since a []T cannot hold an error, the first failed
// slot fails the aggregate.
func ParallelTyped[T any](e *Engine, tasks []*Task[T]) *Task[[]T] {
	return Map(newParallelTask(e, true, runnables(tasks)), collect[T])
}

// ParallelTypedCollection runs slice-producing tasks in parallel and
// flattens their results in constituent order.
func ParallelTypedCollection[T any](e *Engine, tasks []*Task[[]T]) *Task[[]T] {
	return Map(newParallelTask(e, true, runnables(tasks)), flatten[T])
}

// ParallelTypedCollectionN splits tasks into n contiguous shards, runs each
// shard sequentially and the shards in parallel, which bounds the number of
// busy workers to n. The flattened result has the same order as a serial run.
// It falls back to SerialTypedCollection when n < 2 and to an unsharded
// ParallelTypedCollection when there are fewer tasks than shards.
func ParallelTypedCollectionN[T any](e *Engine, tasks []*Task[[]T], n int) *Task[[]T] {
	if n < 2 {
		return SerialTypedCollection(e, tasks)
	}
	total := len(tasks)
	if total < n {
		return ParallelTypedCollection(e, tasks)
	}

	size := total / n
	shards := make([]*Task[[]T], 0, n)
	for i := 0; i < n; i++ {
		start, end := i*size, (i+1)*size
		if i == n-1 {
			// last shard takes the remainder
			end = total
		}
		shards = append(shards, SerialTypedCollection(e, tasks[start:end]))
	}
	return ParallelTypedCollection(e, shards)
}

func runnables[T any](tasks []*Task[T]) []Runnable {
	out := make([]Runnable, len(tasks))
	for i, t := range tasks {
		out[i] = t
	}
	return out
}

func collect[T any](results []any) ([]T, error) {
	out := make([]T, len(results))
	for i, r := range results {
		if r == nil {
			continue
		}
		v, ok := r.(T)
		if !ok {
			return nil, fmt.Errorf("result %d: unexpected type %T", i, r)
		}
		out[i] = v
	}
	return out, nil
}

func flatten[T any](results []any) ([]T, error) {
	var out []T
	for i, r := range results {
		if r == nil {
			continue
		}
		part, ok := r.([]T)
		if !ok {
			return nil, fmt.Errorf("result %d: unexpected type %T", i, r)
		}
		out = append(out, part...)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
