package store

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"
)

func TestMemory(t *testing.T) {
	s := NewMemory()
	_, ok := s.Get(KeySetup)
	test.That(t, ok, test.ShouldBeFalse)

	s.Put(KeySetup, true)
	s.Put(KeyMoving, false)
	v, ok := s.Get(KeySetup)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, true)
	test.That(t, s.Keys(), test.ShouldResemble, []string{KeyMoving, KeySetup})

	snap := s.Snapshot()
	s.Put(KeySetup, false)
	test.That(t, cmp.Diff(map[string]interface{}{KeySetup: true, KeyMoving: false}, snap), test.ShouldBeEmpty)
}

func TestTypedReads(t *testing.T) {
	s := NewMemory()
	test.That(t, Bool(s, KeyShutdown, true), test.ShouldBeTrue)
	s.Put(KeyShutdown, "false")
	test.That(t, Bool(s, KeyShutdown, true), test.ShouldBeFalse)
	s.Put(KeyShutdown, []int{1})
	test.That(t, Bool(s, KeyShutdown, true), test.ShouldBeTrue)

	test.That(t, Number(s, KeyPercentageSpeed, 100), test.ShouldEqual, 100.0)
	s.Put(KeyPercentageSpeed, 40)
	test.That(t, Number(s, KeyPercentageSpeed, 100), test.ShouldEqual, 40.0)
	s.Put(KeyPercentageSpeed, "fast")
	test.That(t, Number(s, KeyPercentageSpeed, 100), test.ShouldEqual, 100.0)
}

func TestFloats(t *testing.T) {
	s := NewMemory()
	fs, err := Floats(s, KeyTargetPosition)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs, test.ShouldBeNil)

	s.Put(KeyTargetPosition, []float64{1, 2, 3})
	fs, err = Floats(s, KeyTargetPosition)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs, test.ShouldResemble, []float64{1, 2, 3})

	s.Put(KeyTargetPosition, []interface{}{1, "2.5", 3.0})
	fs, err = Floats(s, KeyTargetPosition)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs, test.ShouldResemble, []float64{1, 2.5, 3})

	s.Put(KeyTargetPosition, []int{4, 5})
	fs, err = Floats(s, KeyTargetPosition)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fs, test.ShouldResemble, []float64{4, 5})

	s.Put(KeyTargetPosition, []interface{}{1, "x"})
	_, err = Floats(s, KeyTargetPosition)
	test.That(t, err, test.ShouldNotBeNil)

	s.Put(KeyTargetPosition, "1 2 3")
	_, err = Floats(s, KeyTargetPosition)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStrings(t *testing.T) {
	s := NewMemory()
	ss, err := Strings(s, KeyRestrictedAreas)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ss, test.ShouldBeNil)

	s.Put(KeyRestrictedAreas, []interface{}{"0 0 0 1 1 1"})
	ss, err = Strings(s, KeyRestrictedAreas)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ss, test.ShouldResemble, []string{"0 0 0 1 1 1"})
}

func TestConcurrentAccess(t *testing.T) {
	s := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				s.Put(KeyServerRefreshRate, n)
				Number(s, KeyServerRefreshRate, 0)
			}
		}()
	}
	wg.Wait()
	test.That(t, s.Keys(), test.ShouldHaveLength, 1)
}
