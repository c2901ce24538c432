package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that returns an error into an fsm.Callback.
// In a before_ callback the error cancels the transition.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// IsNoop reports whether err only says the event did not change the state.
func IsNoop(err error) bool {
	var noTransition fsm.NoTransitionError
	return err == nil || errors.As(err, &noTransition)
}
