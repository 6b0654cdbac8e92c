package gpiostepper

import (
	"testing"
	"time"

	"go.viam.com/test"
)

type tickRecord struct {
	speed  float64
	pulses int64
}

func simulate(t *testing.T, p Profile, tick time.Duration) []tickRecord {
	t.Helper()
	var (
		pos     int64
		speed   = p.StartingSpeed
		records []tickRecord
	)
	for i := 0; i < 100000; i++ {
		var pulses int64
		speed, pulses = p.Next(pos, speed, tick)
		if pulses == 0 {
			return records
		}
		pos += pulses
		records = append(records, tickRecord{speed, pulses})
	}
	t.Fatal("profile did not terminate")
	return nil
}

func emitted(records []tickRecord) int64 {
	var total int64
	for _, r := range records {
		total += r.pulses
	}
	return total
}

func TestTriangularProfile(t *testing.T) {
	p, err := NewProfile(100, 2000, 4000, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Triangular, test.ShouldBeTrue)
	test.That(t, p.AccelEnd, test.ShouldEqual, 50.0)

	records := simulate(t, p, 10*time.Millisecond)
	test.That(t, emitted(records), test.ShouldEqual, int64(100))
	for _, r := range records {
		test.That(t, r.speed, test.ShouldBeLessThan, p.MaxSpeed)
	}
}

func TestTrapezoidalProfile(t *testing.T) {
	p, err := NewProfile(10000, 2000, 4000, 100)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Triangular, test.ShouldBeFalse)
	// (2000-100)/4000 s of acceleration from 100 steps/s
	test.That(t, p.AccelEnd, test.ShouldAlmostEqual, 498.75, 1e-9)
	test.That(t, p.DecelStart, test.ShouldAlmostEqual, 10000-498.75, 1e-9)

	records := simulate(t, p, 10*time.Millisecond)
	test.That(t, emitted(records), test.ShouldEqual, int64(10000))

	atMax := 0
	sawDecel := false
	for i, r := range records {
		test.That(t, r.speed, test.ShouldBeLessThanOrEqualTo, p.MaxSpeed)
		if r.speed == p.MaxSpeed {
			atMax++
			test.That(t, sawDecel, test.ShouldBeFalse)
		}
		if i > 0 && r.speed < records[i-1].speed {
			sawDecel = true
		}
	}
	test.That(t, atMax, test.ShouldBeGreaterThan, 0)
	test.That(t, sawDecel, test.ShouldBeTrue)
	test.That(t, records[len(records)-1].speed, test.ShouldBeLessThan, p.MaxSpeed)
}

func TestProfileStartsFromRest(t *testing.T) {
	p, err := NewProfile(3, 1000, 10, 0)
	test.That(t, err, test.ShouldBeNil)
	records := simulate(t, p, time.Millisecond)
	test.That(t, emitted(records), test.ShouldEqual, int64(3))
	for _, r := range records {
		test.That(t, r.pulses, test.ShouldEqual, int64(1))
	}
}

func TestConstantSpeedProfile(t *testing.T) {
	p, err := NewProfile(50, 500, 0, 500)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.AccelEnd, test.ShouldEqual, 0.0)
	records := simulate(t, p, 10*time.Millisecond)
	test.That(t, emitted(records), test.ShouldEqual, int64(50))
	test.That(t, records[0].pulses, test.ShouldEqual, int64(5))
}

func TestProfileValidation(t *testing.T) {
	_, err := NewProfile(-1, 100, 100, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewProfile(10, 0, 100, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewProfile(10, 100, 0, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewProfile(10, 100, 100, 200)
	test.That(t, err, test.ShouldNotBeNil)

	p, err := NewProfile(0, 100, 100, 0)
	test.That(t, err, test.ShouldBeNil)
	speed, pulses := p.Next(0, 0, time.Millisecond)
	test.That(t, speed, test.ShouldEqual, 0.0)
	test.That(t, pulses, test.ShouldEqual, int64(0))
}

func TestPulseDelay(t *testing.T) {
	test.That(t, PulseDelay(0), test.ShouldEqual, time.Duration(0))
	test.That(t, PulseDelay(-5), test.ShouldEqual, time.Duration(0))
	test.That(t, PulseDelay(500), test.ShouldEqual, time.Millisecond)
}
