package operation

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestTask(t *testing.T) {
	ctx := context.Background()

	t.Run("result", func(t *testing.T) {
		release := make(chan struct{})
		task := Go(ctx, "move", func(ctx context.Context) error {
			<-release
			return errors.New("joint fault")
		})
		test.That(t, task.Running(), test.ShouldBeTrue)
		test.That(t, task.Err(), test.ShouldBeNil)
		test.That(t, FindTask(task.ID), test.ShouldEqual, task)

		close(release)
		err := task.Wait(ctx)
		test.That(t, err, test.ShouldBeError, errors.New("joint fault"))
		test.That(t, task.Running(), test.ShouldBeFalse)
		test.That(t, task.Err(), test.ShouldBeError, errors.New("joint fault"))
		test.That(t, FindTask(task.ID), test.ShouldBeNil)
	})

	t.Run("cancel", func(t *testing.T) {
		task := Go(ctx, "move", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		task.Cancel()
		test.That(t, errors.Is(task.Wait(ctx), context.Canceled), test.ShouldBeTrue)
	})

	t.Run("wait bounded by caller", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		task := Go(ctx, "move", func(ctx context.Context) error {
			<-release
			return nil
		})
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
		defer cancel()
		test.That(t, errors.Is(task.Wait(waitCtx), context.DeadlineExceeded), test.ShouldBeTrue)
		test.That(t, task.Running(), test.ShouldBeTrue)
	})

	t.Run("panic", func(t *testing.T) {
		task := Go(ctx, "home", func(ctx context.Context) error {
			panic("boom")
		})
		err := task.Wait(ctx)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "boom")
	})
}
