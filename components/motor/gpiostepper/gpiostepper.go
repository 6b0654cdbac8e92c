// Package gpiostepper implements an open-loop stepper joint driven by step and direction pins.
package gpiostepper

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"

	"github.com/scythe-robotics/armctl/components/board"
	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/operation"
	"github.com/scythe-robotics/armctl/registry"
	armutils "github.com/scythe-robotics/armctl/utils"
)

// Model is the registry name of this driver.
const Model = "gpiostepper"

const (
	defaultDegreesPerStep = 1.8
	defaultMaxSpeed       = 360.0
	defaultAcceleration   = 720.0
	defaultTickMs         = 10
)

// microstepLevels maps a microstepping divisor to the MS1 and MS2 pin levels.
var microstepLevels = map[int][2]bool{
	8:  {false, false},
	16: {true, true},
	32: {true, false},
	64: {false, true},
}

// PinConfig defines the mapping of where motor are wired.
type PinConfig struct {
	Step          string `json:"step"`
	Direction     string `json:"dir"`
	EnablePinHigh string `json:"en_high,omitempty"`
	EnablePinLow  string `json:"en_low,omitempty"`
	Microstep1    string `json:"ms1,omitempty"`
	Microstep2    string `json:"ms2,omitempty"`
}

// Config describes the configuration of a stepper joint. Speeds are motor shaft degrees
// per second.
type Config struct {
	Pins           PinConfig `json:"pins"`
	GearRatio      float64   `json:"gear_ratio,omitempty"`
	Reversed       bool      `json:"reversed,omitempty"`
	Microstepping  int       `json:"microstepping,omitempty"`
	DegreesPerStep float64   `json:"degrees_per_step,omitempty"`
	MaxSpeed       float64   `json:"max_speed_dps,omitempty"`
	Acceleration   float64   `json:"acceleration_dps2,omitempty"`
	StartingSpeed  float64   `json:"starting_speed_dps,omitempty"`
	TickMs         int       `json:"tick_ms,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.Pins.Step == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pins.step")
	}
	if cfg.Pins.Direction == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pins.dir")
	}
	if cfg.GearRatio == 0 {
		cfg.GearRatio = 1
	}
	if cfg.Microstepping == 0 {
		cfg.Microstepping = 1
	}
	if cfg.DegreesPerStep == 0 {
		cfg.DegreesPerStep = defaultDegreesPerStep
	}
	if cfg.MaxSpeed == 0 {
		cfg.MaxSpeed = defaultMaxSpeed
	}
	if cfg.Acceleration == 0 {
		cfg.Acceleration = defaultAcceleration
	}
	if cfg.TickMs == 0 {
		cfg.TickMs = defaultTickMs
	}

	if cfg.GearRatio < 0 || cfg.Microstepping < 0 || cfg.DegreesPerStep < 0 {
		return utils.NewConfigValidationError(path,
			errors.New("gear_ratio, microstepping and degrees_per_step must be positive"))
	}
	if (cfg.Pins.Microstep1 == "") != (cfg.Pins.Microstep2 == "") {
		return utils.NewConfigValidationError(path, errors.New("pins.ms1 and pins.ms2 must be set together"))
	}
	if cfg.Pins.Microstep1 != "" {
		if _, ok := microstepLevels[cfg.Microstepping]; !ok {
			return utils.NewConfigValidationError(path,
				errors.Errorf("microstepping %d cannot be selected with pins, use 8, 16, 32 or 64", cfg.Microstepping))
		}
	}
	if cfg.StartingSpeed < 0 || cfg.StartingSpeed > cfg.MaxSpeed {
		return utils.NewConfigValidationError(path, errors.New("starting_speed_dps must be between 0 and max_speed_dps"))
	}
	if cfg.Acceleration < 0 || cfg.MaxSpeed < 0 || cfg.TickMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("speeds, acceleration and tick_ms must be positive"))
	}
	return nil
}

func init() {
	registry.RegisterJoint(Model, func(
		ctx context.Context,
		deps registry.Dependencies,
		conf config.Joint,
		logger logging.Logger,
	) (motor.Joint, error) {
		if deps.Board == nil {
			return nil, errors.New("expected a board for stepper joints")
		}
		mc, err := config.TransformAttributeMap[*Config](conf.Attributes)
		if err != nil {
			return nil, err
		}
		if err := mc.Validate("joints." + conf.Name); err != nil {
			return nil, err
		}
		return NewGPIOStepper(ctx, deps.Board, *mc, conf.Name, logger)
	})
}

// NewGPIOStepper returns a stepper joint on the given board. mc must already be validated.
func NewGPIOStepper(ctx context.Context, b board.Board, mc Config, name string, logger logging.Logger) (motor.Joint, error) {
	return newGPIOStepper(ctx, b, mc, name, logger, time.Sleep)
}

func newGPIOStepper(
	ctx context.Context,
	b board.Board,
	mc Config,
	name string,
	logger logging.Logger,
	sleep func(time.Duration),
) (*gpioStepper, error) {
	if mc.GearRatio <= 0 || mc.Microstepping <= 0 || mc.DegreesPerStep <= 0 || mc.TickMs <= 0 {
		return nil, errors.Errorf("stepper joint %q config was not validated", name)
	}

	m := &gpioStepper{
		name:       name,
		cfg:        mc,
		stepAngle:  mc.DegreesPerStep / float64(mc.Microstepping),
		tick:       time.Duration(mc.TickMs) * time.Millisecond,
		logger:     logger,
		sleep:      sleep,
		speedScale: 1,
	}
	m.cancelCtx, m.cancel = context.WithCancel(context.Background())

	var err error
	if mc.Pins.EnablePinHigh != "" {
		if m.enablePinHigh, err = b.GPIOPinByName(mc.Pins.EnablePinHigh); err != nil {
			return nil, err
		}
	}
	if mc.Pins.EnablePinLow != "" {
		if m.enablePinLow, err = b.GPIOPinByName(mc.Pins.EnablePinLow); err != nil {
			return nil, err
		}
	}
	if m.stepPin, err = b.GPIOPinByName(mc.Pins.Step); err != nil {
		return nil, err
	}
	if m.dirPin, err = b.GPIOPinByName(mc.Pins.Direction); err != nil {
		return nil, err
	}

	if mc.Pins.Microstep1 != "" {
		levels := microstepLevels[mc.Microstepping]
		for i, pinName := range []string{mc.Pins.Microstep1, mc.Pins.Microstep2} {
			pin, err := b.GPIOPinByName(pinName)
			if err != nil {
				return nil, err
			}
			if err := pin.Set(ctx, levels[i], nil); err != nil {
				return nil, errors.Wrapf(err, "cannot select microstepping on stepper joint %q", name)
			}
		}
	}

	// start de-energized
	if err := m.setEnable(ctx, false); err != nil {
		return nil, err
	}
	return m, nil
}

type gpioStepper struct {
	// config
	name                        string
	cfg                         Config
	stepAngle                   float64 // motor shaft degrees per microstep
	tick                        time.Duration
	enablePinHigh, enablePinLow board.GPIOPin
	stepPin, dirPin             board.GPIOPin
	logger                      logging.Logger
	sleep                       func(time.Duration)

	// written only by the running move
	stepPosition atomic.Int64
	currentSpeed atomic.Float64
	enabled      atomic.Bool

	mu         sync.Mutex
	commanded  float64
	speedScale float64
	move       *operation.Task
	cancelCtx  context.Context
	cancel     context.CancelFunc
}

func (m *gpioStepper) Name() string {
	return m.name
}

func (m *gpioStepper) Enable(ctx context.Context) error {
	if err := m.setEnable(ctx, true); err != nil {
		return err
	}
	m.enabled.Store(true)
	return nil
}

func (m *gpioStepper) Disable(ctx context.Context) error {
	if err := m.setEnable(ctx, false); err != nil {
		return err
	}
	m.enabled.Store(false)
	return nil
}

// GoToAngle plans a move from the counted position and runs it in the background. A move
// still in progress is canceled first.
func (m *gpioStepper) GoToAngle(ctx context.Context, angleDeg, speedFraction float64) error {
	if err := motor.CheckSpeedFraction(m.name, speedFraction); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.stopInLock(ctx); err != nil {
		return err
	}

	target := m.angleToSteps(angleDeg)
	delta := target - m.stepPosition.Load()
	m.commanded = angleDeg
	if delta == 0 {
		return nil
	}

	scale := speedFraction * m.speedScale
	prof, err := NewProfile(
		armutils.AbsInt64(delta),
		m.cfg.MaxSpeed/m.stepAngle*scale,
		m.cfg.Acceleration/m.stepAngle*scale*m.speedScale,
		m.cfg.StartingSpeed/m.stepAngle*scale,
	)
	if err != nil {
		return errors.Wrapf(err, "cannot plan move for joint %q", m.name)
	}
	m.logger.Debugw("move",
		"target", angleDeg, "steps", delta, "max_speed", prof.MaxSpeed, "triangular", prof.Triangular)

	forward := delta > 0
	m.move = operation.Go(m.cancelCtx, "gpiostepper.move", func(ctx context.Context) error {
		return m.run(ctx, forward, prof)
	})
	return nil
}

// run emits the pulses of one move. The direction is set once before the first pulse.
func (m *gpioStepper) run(ctx context.Context, forward bool, prof Profile) error {
	defer m.currentSpeed.Store(0)
	if err := m.dirPin.Set(ctx, forward, nil); err != nil {
		return errors.Wrapf(err, "cannot set direction of joint %q", m.name)
	}
	dir := int64(1)
	if !forward {
		dir = -1
	}

	var emitted int64
	speed := prof.StartingSpeed
	for {
		var pulses int64
		speed, pulses = prof.Next(emitted, speed, m.tick)
		if pulses == 0 {
			return nil
		}
		m.currentSpeed.Store(speed)
		delay := PulseDelay(speed)
		for i := int64(0); i < pulses; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.doStep(ctx, delay); err != nil {
				return errors.Wrapf(err, "error stepping joint %q", m.name)
			}
			emitted++
			m.stepPosition.Add(dir)
		}
	}
}

func (m *gpioStepper) doStep(ctx context.Context, delay time.Duration) error {
	if err := m.stepPin.Set(ctx, true, nil); err != nil {
		return err
	}
	m.sleep(delay)
	if err := m.stepPin.Set(ctx, false, nil); err != nil {
		return err
	}
	m.sleep(delay)
	return nil
}

func (m *gpioStepper) WaitForMove(ctx context.Context) error {
	m.mu.Lock()
	move := m.move
	m.mu.Unlock()
	if move == nil {
		return nil
	}
	return move.Wait(ctx)
}

func (m *gpioStepper) Angle(ctx context.Context) (float64, error) {
	return m.stepsToAngle(m.stepPosition.Load()), nil
}

func (m *gpioStepper) CommandedAngle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commanded
}

func (m *gpioStepper) IsMoving(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move != nil && m.move.Running(), nil
}

// Stop cancels the running move. The driver stays energized and holds position.
func (m *gpioStepper) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopInLock(ctx)
}

func (m *gpioStepper) stopInLock(ctx context.Context) error {
	if m.move == nil {
		return nil
	}
	move := m.move
	m.move = nil
	if !move.Running() {
		return nil
	}
	move.Cancel()
	if err := move.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	m.commanded = m.stepsToAngle(m.stepPosition.Load())
	m.logger.Debugw("stopped", "angle", m.commanded)
	return nil
}

func (m *gpioStepper) SetSpeedScale(ctx context.Context, scale float64) error {
	if err := motor.CheckSpeedFraction(m.name, scale); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speedScale = scale
	return nil
}

func (m *gpioStepper) State(ctx context.Context) (motor.JointState, error) {
	moving, err := m.IsMoving(ctx)
	if err != nil {
		return motor.JointState{}, err
	}
	measured, err := m.Angle(ctx)
	if err != nil {
		return motor.JointState{}, err
	}
	return motor.JointState{
		Name:           m.name,
		NodeID:         -1,
		GearRatio:      m.cfg.GearRatio,
		CommandedAngle: m.CommandedAngle(),
		MeasuredAngle:  measured,
		Enabled:        m.enabled.Load(),
		Moving:         moving,
	}, nil
}

// Close stops any move and de-energizes the driver.
func (m *gpioStepper) Close(ctx context.Context) error {
	err := m.Stop(ctx)
	m.cancel()
	if errDisable := m.Disable(ctx); errDisable != nil && err == nil {
		err = errDisable
	}
	return err
}

func (m *gpioStepper) angleToSteps(angleDeg float64) int64 {
	steps := int64(math.Round(angleDeg * m.cfg.GearRatio / m.stepAngle))
	if m.cfg.Reversed {
		return -steps
	}
	return steps
}

func (m *gpioStepper) stepsToAngle(steps int64) float64 {
	angle := float64(steps) * m.stepAngle / m.cfg.GearRatio
	if m.cfg.Reversed {
		return -angle
	}
	return angle
}

// setEnable drives whichever enable pins exist. A driver without enable pins is always on.
func (m *gpioStepper) setEnable(ctx context.Context, on bool) error {
	if m.enablePinHigh != nil {
		if err := m.enablePinHigh.Set(ctx, on, nil); err != nil {
			return err
		}
	}
	if m.enablePinLow != nil {
		if err := m.enablePinLow.Set(ctx, !on, nil); err != nil {
			return err
		}
	}
	return nil
}
