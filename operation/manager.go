// Package operation tracks the single in-flight command of each joint and the background
// moves of the arm.
package operation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

type opKey struct{}

type op struct {
	cancel context.CancelFunc
}

// SingleOperationManager lets one command own a joint at a time. Starting a new command
// cancels the previous one. Calls made with a context that already belongs to the current
// command run nested and cancel nothing.
type SingleOperationManager struct {
	mu      sync.Mutex
	current *op
}

// New starts a command and returns its context plus the function that releases it.
func (sm *SingleOperationManager) New(ctx context.Context) (context.Context, func()) {
	if ctx.Value(opKey{}) != nil {
		return ctx, func() {}
	}
	o := &op{}
	ctx, o.cancel = context.WithCancel(context.WithValue(ctx, opKey{}, o))

	sm.mu.Lock()
	sm.cancelCurrent(nil)
	sm.current = o
	sm.mu.Unlock()

	return ctx, func() {
		sm.mu.Lock()
		if sm.current == o {
			sm.current = nil
		}
		sm.mu.Unlock()
		o.cancel()
	}
}

// CancelRunning cancels the current command unless ctx belongs to it.
func (sm *SingleOperationManager) CancelRunning(ctx context.Context) {
	if ctx.Value(opKey{}) != nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cancelCurrent(nil)
}

// OpRunning reports whether a command currently owns the joint.
func (sm *SingleOperationManager) OpRunning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current != nil
}

// WaitForSuccess polls check every pollTime as a new command until it reports true or
// fails. It returns ctx.Err() once the command is canceled.
func (sm *SingleOperationManager) WaitForSuccess(
	ctx context.Context,
	pollTime time.Duration,
	check func(ctx context.Context) (bool, error),
) error {
	ctx, finish := sm.New(ctx)
	defer finish()

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !utils.SelectContextOrWait(ctx, pollTime) {
			return ctx.Err()
		}
	}
}

// WaitTillDone is WaitForSuccess for a motion. When the caller gives up on the wait, stop is
// invoked. When another command supersedes it, stop is not invoked since that command now
// owns the joint.
func (sm *SingleOperationManager) WaitTillDone(ctx context.Context, pollTime time.Duration,
	done func(context.Context) (bool, error),
	stop func(context.Context) error,
) error {
	err := sm.WaitForSuccess(ctx, pollTime, done)
	if err != nil && ctx.Err() != nil {
		err = multierr.Combine(err, stop(context.Background()))
	}
	return err
}

func (sm *SingleOperationManager) cancelCurrent(keep *op) {
	if sm.current == nil || sm.current == keep {
		return
	}
	sm.current.cancel()
	sm.current = nil
}
