package condmutex

import (
	"context"
	"fmt"

	"github.com/anacrolix/chansync"
	g "github.com/anacrolix/generics"
	"github.com/anacrolix/log"
	"github.com/pkg/errors"
)

// Future is the eventual result of a function running in its own goroutine.
type Future[T any] struct {
	done   chansync.SetOnce
	result g.Option[T]
	err    error
}

// PanicError carries a value recovered from a Future's function.
type PanicError struct {
	Value any
}

func (me *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", me.Value)
}

// Go starts f and returns a Future for its outcome.
func Go[T any](f func() (T, error)) *Future[T] {
	fut := &Future[T]{}
	go fut.run(f)
	return fut
}

func (fut *Future[T]) run(f func() (T, error)) {
	defer fut.done.Set()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fut.err = &PanicError{r}
		defaultLogger.Levelf(log.Debug, "future recovered panic: %v", r)
	}()
	v, err := f()
	if err != nil {
		fut.err = err
		return
	}
	fut.result = g.Some(v)
}

// Done is closed when the function has returned.
func (fut *Future[T]) Done() <-chan struct{} {
	return fut.done.Done()
}

// Wait suspends until the function has returned or ctx is done. It doesn't report the function's
// error, see Unwrap.
func (fut *Future[T]) Wait(ctx context.Context) error {
	select {
	case <-fut.done.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for future")
	}
}

// Unwrap returns the function's value or its failure. It panics if the function hasn't returned.
func (fut *Future[T]) Unwrap() (T, error) {
	if !fut.done.IsSet() {
		panic("condmutex: unwrap of pending future")
	}
	return fut.result.Value, fut.err
}
