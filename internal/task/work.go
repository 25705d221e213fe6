package task

import (
	"github.com/sourcegraph/conc/pool"
)

// WorkParallelLimit runs tasks on at most limit goroutines of its own,
// outside any engine, and blocks until all of them finish. Results keep
// constituent order and failed slots hold their error. A limit below 1
// runs the tasks one at a time.
//
// Constituents still post their listeners to their own engine's dispatcher.
func WorkParallelLimit(limit int, tasks ...Runnable) []any {
	if limit < 1 {
		limit = 1
	}
	results := make([]any, len(tasks))

	p := pool.New().WithMaxGoroutines(limit)
	for i, t := range tasks {
		p.Go(func() {
			v, err := t.getAny()
			if err != nil {
				results[i] = err
				return
			}
			results[i] = v
		})
	}
	p.Wait()
	return results
}
