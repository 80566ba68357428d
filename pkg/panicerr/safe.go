// Package panicerr converts panics into errors so that one failing unit of
// work cannot take down the loop that scheduled it.
package panicerr

import (
	"context"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Try runs fn and returns its error, or the recovered panic as an error.
func Try(fn func() error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn()
	})
	if err != nil {
		return err
	}
	return catcher.Recovered().AsError()
}

// Go schedules fn on wg without waiting for it. A returned error or a panic is
// handed to onErr instead of propagating to wg.Wait.
func Go(ctx context.Context, wg *conc.WaitGroup, fn func(context.Context) error, onErr func(error)) {
	wg.Go(func() {
		if err := Try(func() error { return fn(ctx) }); err != nil && onErr != nil {
			onErr(err)
		}
	})
}
