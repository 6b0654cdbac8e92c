package operation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Task is a function running in the background, such as an arm move issued without waiting.
type Task struct {
	ID      uuid.UUID
	Method  string
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Go runs f in the background with a context derived from ctx. A panic in f is reported
// as the task's error.
func Go(ctx context.Context, method string, f func(ctx context.Context) error) *Task {
	t := &Task{
		ID:      uuid.New(),
		Method:  method,
		Started: time.Now(),
		done:    make(chan struct{}),
	}
	ctx, t.cancel = context.WithCancel(ctx)
	theGlobal.add(t)

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			t.err = err
			t.cancel()
			theGlobal.remove(t.ID)
			close(t.done)
		})
	}
	goutils.PanicCapturingGoWithCallback(func() {
		finish(f(ctx))
	}, func(p interface{}) {
		finish(errors.Errorf("%s panicked: %v", method, p))
	})
	return t
}

// Cancel cancels the context the task runs with. It does not wait for it to return.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Running reports whether the task has not yet returned.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Err returns the task's result. It is nil while the task is running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task returns or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("%s(%s)", t.Method, t.ID)
}

var theGlobal = &global{tasks: map[uuid.UUID]*Task{}}

type global struct {
	lock  sync.Mutex
	tasks map[uuid.UUID]*Task
}

func (g *global) add(t *Task) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.tasks[t.ID] = t
}

func (g *global) remove(id uuid.UUID) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.tasks, id)
}

// CurrentTasks returns all of the tasks still running.
func CurrentTasks() []*Task {
	theGlobal.lock.Lock()
	defer theGlobal.lock.Unlock()
	all := make([]*Task, 0, len(theGlobal.tasks))
	for _, t := range theGlobal.tasks {
		all = append(all, t)
	}
	return all
}

// FindTask finds a running task by id, could return nil.
func FindTask(id uuid.UUID) *Task {
	theGlobal.lock.Lock()
	defer theGlobal.lock.Unlock()
	return theGlobal.tasks[id]
}
