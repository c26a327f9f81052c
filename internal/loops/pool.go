package loops

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrTaskPanic wraps a panic recovered inside a pool task
var ErrTaskPanic = errors.New("task panicked")

// TaskResult is the outcome of one pool task
type TaskResult[R any] struct {
	Value R
	Err   error
}

// RunOrdered calls fn once per input on at most workers goroutines
// (GOMAXPROCS when workers <= 0) and returns the results indexed like inputs.
// A failing or panicking task only fills its own slot; the others still run.
func RunOrdered[T, R any](workers int, inputs []T, fn func(int, T) (R, error)) []TaskResult[R] {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]TaskResult[R], len(inputs))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = runTask(i, in, fn)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func runTask[T, R any](i int, in T, fn func(int, T) (R, error)) (res TaskResult[R]) {
	defer func() {
		if r := recover(); r != nil {
			res = TaskResult[R]{Err: fmt.Errorf("%w: %v", ErrTaskPanic, r)}
		}
	}()

	v, err := fn(i, in)
	return TaskResult[R]{Value: v, Err: err}
}
