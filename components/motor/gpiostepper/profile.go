package gpiostepper

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Profile is the speed plan for one move, in steps, steps/s and steps/s². Phases are chosen
// by how many steps have been emitted, never by elapsed time, so late ticks do not shift the
// profile relative to the pulses actually sent.
type Profile struct {
	Steps         int64
	MaxSpeed      float64
	Acceleration  float64
	StartingSpeed float64

	// AccelEnd is the step count where acceleration stops.
	AccelEnd float64
	// DecelStart is the step count where deceleration begins.
	DecelStart float64
	// Triangular is set when the move is too short to reach MaxSpeed.
	Triangular bool
}

// NewProfile plans a move of steps (absolute) pulses.
func NewProfile(steps int64, maxSpeed, acceleration, startingSpeed float64) (Profile, error) {
	if steps < 0 {
		return Profile{}, errors.Errorf("step count must not be negative, got %d", steps)
	}
	if maxSpeed <= 0 {
		return Profile{}, errors.Errorf("max speed must be positive, got %v", maxSpeed)
	}
	if startingSpeed < 0 || startingSpeed > maxSpeed {
		return Profile{}, errors.Errorf("starting speed %v must be in [0, %v]", startingSpeed, maxSpeed)
	}
	if acceleration <= 0 && startingSpeed < maxSpeed {
		return Profile{}, errors.Errorf("acceleration must be positive, got %v", acceleration)
	}

	p := Profile{
		Steps:         steps,
		MaxSpeed:      maxSpeed,
		Acceleration:  acceleration,
		StartingSpeed: startingSpeed,
	}
	var accelDistance float64
	if startingSpeed < maxSpeed {
		accelTime := (maxSpeed - startingSpeed) / acceleration
		accelDistance = startingSpeed*accelTime + 0.5*acceleration*accelTime*accelTime
	}
	total := float64(steps)
	if 2*accelDistance > total {
		p.Triangular = true
		p.AccelEnd = total / 2
		p.DecelStart = total / 2
	} else {
		p.AccelEnd = accelDistance
		p.DecelStart = total - accelDistance
	}
	return p, nil
}

// Next returns the speed for the tick starting at position, given the previous tick's speed,
// and how many pulses to emit during it. Zero pulses means the move is over.
func (p Profile) Next(position int64, speed float64, tick time.Duration) (float64, int64) {
	remaining := p.Steps - position
	if remaining <= 0 {
		return 0, 0
	}
	dt := tick.Seconds()
	pos := float64(position)

	switch {
	case pos < p.AccelEnd:
		speed = math.Min(math.Max(speed, p.StartingSpeed)+p.Acceleration*dt, p.MaxSpeed)
	case pos < p.DecelStart:
		speed = p.MaxSpeed
	default:
		limit := math.Sqrt(p.StartingSpeed*p.StartingSpeed + 2*p.Acceleration*float64(remaining))
		speed = math.Min(speed, limit)
	}
	if speed <= 0 {
		return 0, 0
	}

	pulses := int64(math.Round(speed * dt))
	if pulses < 1 {
		pulses = 1
	}
	if pulses > remaining {
		pulses = remaining
	}
	return speed, pulses
}

// PulseDelay is the time spent at each level of a step pulse at speed steps/s. A
// non-positive speed yields zero.
func PulseDelay(speed float64) time.Duration {
	if speed <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / (2 * speed))
}
