package operation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestSingleOperationManager(t *testing.T) {
	ctx := context.Background()
	som := SingleOperationManager{}

	t.Run("nested operation does not cancel parent", func(t *testing.T) {
		ctx1, close1 := som.New(ctx)
		defer close1()
		_, close2 := som.New(ctx1)
		close2()
		test.That(t, ctx1.Err(), test.ShouldBeNil)
		test.That(t, som.OpRunning(), test.ShouldBeTrue)
	})

	t.Run("cancelling on different context works", func(t *testing.T) {
		res := int32(0)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := som.WaitForSuccess(context.Background(), 10*time.Millisecond,
				func(ctx context.Context) (bool, error) { return false, nil })
			if err == nil {
				atomic.StoreInt32(&res, 1)
			}
		}()

		for !som.OpRunning() {
			time.Sleep(time.Millisecond)
		}

		_, finish := som.New(ctx)
		wg.Wait()
		finish()
		test.That(t, som.OpRunning(), test.ShouldBeFalse)
		test.That(t, res, test.ShouldEqual, 0)
	})

	t.Run("WaitForSuccess", func(t *testing.T) {
		count := int64(0)

		err := som.WaitForSuccess(
			ctx,
			time.Millisecond,
			func(ctx context.Context) (bool, error) {
				if atomic.AddInt64(&count, 1) == 5 {
					return true, nil
				}
				return false, nil
			},
		)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, count, test.ShouldEqual, int64(5))
	})
}

func TestWaitTillDone(t *testing.T) {
	ctx := context.Background()
	som := SingleOperationManager{}

	t.Run("done", func(t *testing.T) {
		stops := int32(0)
		polls := int32(0)
		err := som.WaitTillDone(ctx, time.Millisecond,
			func(ctx context.Context) (bool, error) {
				return atomic.AddInt32(&polls, 1) == 3, nil
			},
			func(ctx context.Context) error {
				atomic.AddInt32(&stops, 1)
				return nil
			})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, atomic.LoadInt32(&stops), test.ShouldEqual, int32(0))
	})

	t.Run("canceled stops", func(t *testing.T) {
		stops := int32(0)
		cancelCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		var err error
		wg.Add(1)
		go func() {
			defer wg.Done()
			err = som.WaitTillDone(cancelCtx, time.Millisecond,
				func(ctx context.Context) (bool, error) { return false, nil },
				func(ctx context.Context) error {
					atomic.AddInt32(&stops, 1)
					return nil
				})
		}()
		for !som.OpRunning() {
			time.Sleep(time.Millisecond)
		}
		cancel()
		wg.Wait()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, atomic.LoadInt32(&stops), test.ShouldEqual, int32(1))
	})

	t.Run("superseded does not stop", func(t *testing.T) {
		stops := int32(0)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:errcheck
			som.WaitTillDone(ctx, time.Millisecond,
				func(ctx context.Context) (bool, error) { return false, nil },
				func(ctx context.Context) error {
					atomic.AddInt32(&stops, 1)
					return nil
				})
		}()
		for !som.OpRunning() {
			time.Sleep(time.Millisecond)
		}
		_, finish := som.New(ctx)
		wg.Wait()
		finish()
		test.That(t, atomic.LoadInt32(&stops), test.ShouldEqual, int32(0))
	})

	t.Run("CancelRunning does not stop", func(t *testing.T) {
		stops := int32(0)
		var wg sync.WaitGroup
		var err error
		wg.Add(1)
		go func() {
			defer wg.Done()
			err = som.WaitTillDone(ctx, time.Millisecond,
				func(ctx context.Context) (bool, error) { return false, nil },
				func(ctx context.Context) error {
					atomic.AddInt32(&stops, 1)
					return nil
				})
		}()
		for !som.OpRunning() {
			time.Sleep(time.Millisecond)
		}
		som.CancelRunning(ctx)
		wg.Wait()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, atomic.LoadInt32(&stops), test.ShouldEqual, int32(0))
	})
}
