// Package odrive implements a closed-loop servo joint commanded over the field bus.
package odrive

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/fieldbus"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/operation"
	"github.com/scythe-robotics/armctl/registry"
)

// Model is the registry name of this driver.
const Model = "odrive"

// Endpoint paths used by the driver.
const (
	pathBusVoltage     = "vbus_voltage"
	pathClearErrors    = "clear_errors"
	pathRequestedState = "axis0.requested_state"
	pathCurrentState   = "axis0.current_state"
	pathActiveErrors   = "axis0.active_errors"
	pathPosEstimate    = "axis0.pos_estimate"
	pathSetAbsPos      = "axis0.set_abs_pos"
	pathInputPos       = "axis0.controller.input_pos"
	pathTrajectoryDone = "axis0.controller.trajectory_done"
	pathInputMode      = "axis0.controller.config.input_mode"
	pathVelLimit       = "axis0.trap_traj.config.vel_limit"
	pathAccelLimit     = "axis0.trap_traj.config.accel_limit"
	pathDecelLimit     = "axis0.trap_traj.config.decel_limit"
)

const (
	axisStateIdle       = 1
	axisStateClosedLoop = 8
	inputModeTrapTraj   = 5

	maxNodeID = 63

	defaultMaxSpeed          = 5.0
	defaultAcceleration      = 0.6
	defaultPositionTolerance = 0.1
	defaultPollIntervalMs    = 20
	defaultMinBusVoltage     = 40.0

	busVoltageTimeout = 30 * time.Second
	enableTimeout     = 2 * time.Second
)

// Config describes one servo joint. Speeds are motor turns per second.
type Config struct {
	NodeID            int     `json:"node_id"`
	GearRatio         float64 `json:"gear_ratio,omitempty"`
	Reversed          bool    `json:"reversed,omitempty"`
	MaxSpeed          float64 `json:"max_speed_rps,omitempty"`
	Acceleration      float64 `json:"accel_rps2,omitempty"`
	Deceleration      float64 `json:"decel_rps2,omitempty"`
	PositionTolerance float64 `json:"position_tolerance_rev,omitempty"`
	PollIntervalMs    int     `json:"poll_interval_ms,omitempty"`
	MinBusVoltage     float64 `json:"min_bus_voltage,omitempty"`
}

// Validate ensures all parts of the config are valid and fills in defaults.
func (cfg *Config) Validate(path string) error {
	if cfg.NodeID < 0 || cfg.NodeID > maxNodeID {
		return utils.NewConfigValidationError(path, errors.Errorf("node_id must be between 0 and %d", maxNodeID))
	}
	if cfg.GearRatio == 0 {
		cfg.GearRatio = 1
	}
	if cfg.MaxSpeed == 0 {
		cfg.MaxSpeed = defaultMaxSpeed
	}
	if cfg.Acceleration == 0 {
		cfg.Acceleration = defaultAcceleration
	}
	if cfg.Deceleration == 0 {
		cfg.Deceleration = cfg.Acceleration
	}
	if cfg.PositionTolerance == 0 {
		cfg.PositionTolerance = defaultPositionTolerance
	}
	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = defaultPollIntervalMs
	}
	if cfg.MinBusVoltage == 0 {
		cfg.MinBusVoltage = defaultMinBusVoltage
	}
	if cfg.GearRatio < 0 || cfg.MaxSpeed < 0 || cfg.Acceleration < 0 || cfg.Deceleration < 0 ||
		cfg.PositionTolerance < 0 || cfg.PollIntervalMs < 0 {
		return utils.NewConfigValidationError(path, errors.New("gear ratio, limits and intervals must be positive"))
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
		if deps.Bus == nil {
			return nil, errors.New("expected a field bus for servo joints")
		}
		mc, err := config.TransformAttributeMap[*Config](conf.Attributes)
		if err != nil {
			return nil, err
		}
		if err := mc.Validate("joints." + conf.Name); err != nil {
			return nil, err
		}
		return NewServo(ctx, deps.Bus, *mc, conf.Name, logger)
	})
}

// NewServo connects to the node, verifies its firmware against the endpoint directory and
// prepares it for trapezoidal position moves. The axis is left idle and zeroed at its
// current position. mc must already be validated.
func NewServo(ctx context.Context, bus *fieldbus.Channel, mc Config, name string, logger logging.Logger) (motor.Joint, error) {
	s := &servo{
		name:         name,
		cfg:          mc,
		bus:          bus,
		node:         uint8(mc.NodeID),
		pollInterval: time.Duration(mc.PollIntervalMs) * time.Millisecond,
		logger:       logger,
		speedScale:   1,
	}
	if err := s.setup(ctx); err != nil {
		return nil, errors.Wrapf(err, "cannot set up servo joint %q", name)
	}
	return s, nil
}

type servo struct {
	name         string
	cfg          Config
	bus          *fieldbus.Channel
	node         uint8
	pollInterval time.Duration
	logger       logging.Logger

	opMgr   operation.SingleOperationManager
	enabled atomic.Bool

	mu          sync.Mutex
	commanded   float64
	targetTurns float64
	speedScale  float64
	moving      bool
	commandedAt time.Time
}

func (s *servo) has(path string) bool {
	return s.bus.Directory().Has(path)
}

func (s *servo) setup(ctx context.Context) error {
	if err := s.waitForBusVoltage(ctx); err != nil {
		return err
	}
	if _, err := s.bus.CheckVersion(ctx, s.node); err != nil {
		return err
	}
	if s.has(pathClearErrors) {
		if _, err := s.bus.Call(ctx, s.node, pathClearErrors); err != nil {
			return err
		}
	}
	if err := s.bus.Write(ctx, s.node, pathInputMode, inputModeTrapTraj); err != nil {
		return err
	}
	if err := s.applyLimits(ctx, 1); err != nil {
		return err
	}
	if s.has(pathSetAbsPos) {
		if _, err := s.bus.Call(ctx, s.node, pathSetAbsPos, 0.0); err != nil {
			return err
		}
	}
	s.logger.Infow("servo ready", "node", s.node, "gear_ratio", s.cfg.GearRatio)
	return nil
}

// waitForBusVoltage blocks until the node reports enough DC bus voltage to drive the motor.
func (s *servo) waitForBusVoltage(ctx context.Context) error {
	if !s.has(pathBusVoltage) || s.cfg.MinBusVoltage <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, busVoltageTimeout)
	defer cancel()

	var last float64
	logged := false
	err := s.opMgr.WaitForSuccess(ctx, s.pollInterval, func(ctx context.Context) (bool, error) {
		v, err := s.bus.ReadFloat(ctx, s.node, pathBusVoltage)
		if err != nil {
			return false, err
		}
		last = v
		if v < s.cfg.MinBusVoltage && !logged {
			s.logger.Infow("waiting for bus power", "node", s.node, "voltage", v, "min", s.cfg.MinBusVoltage)
			logged = true
		}
		return v >= s.cfg.MinBusVoltage, nil
	})
	if err != nil && ctx.Err() != nil {
		return errors.Wrapf(err, "bus voltage %.1fV never reached %.1fV", last, s.cfg.MinBusVoltage)
	}
	return err
}

// applyLimits scales the trapezoidal trajectory limits. A fraction shortens the travel of this
// joint, so velocity and acceleration scale with it linearly and the move takes as long as the
// longest one. The speed scale stretches the profile in time, so acceleration takes its square.
func (s *servo) applyLimits(ctx context.Context, fraction float64) error {
	velScale := fraction * s.speedScale
	accelScale := fraction * s.speedScale * s.speedScale
	if err := s.bus.Write(ctx, s.node, pathVelLimit, s.cfg.MaxSpeed*velScale); err != nil {
		return err
	}
	if err := s.bus.Write(ctx, s.node, pathAccelLimit, s.cfg.Acceleration*accelScale); err != nil {
		return err
	}
	return s.bus.Write(ctx, s.node, pathDecelLimit, s.cfg.Deceleration*accelScale)
}

func (s *servo) Name() string {
	return s.name
}

// Enable puts the axis in closed loop control and waits for it to get there.
func (s *servo) Enable(ctx context.Context) error {
	if err := s.bus.Write(ctx, s.node, pathRequestedState, axisStateClosedLoop); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, enableTimeout)
	defer cancel()
	err := s.opMgr.WaitForSuccess(ctx, s.pollInterval, func(ctx context.Context) (bool, error) {
		state, err := s.bus.Read(ctx, s.node, pathCurrentState)
		if err != nil {
			return false, err
		}
		return cast.ToUint8(state) == axisStateClosedLoop, nil
	})
	if err != nil {
		return errors.Wrapf(err, "servo joint %q did not enter closed loop control", s.name)
	}
	s.enabled.Store(true)
	return nil
}

func (s *servo) Disable(ctx context.Context) error {
	s.opMgr.CancelRunning(ctx)
	if err := s.bus.Write(ctx, s.node, pathRequestedState, axisStateIdle); err != nil {
		return err
	}
	s.enabled.Store(false)
	s.mu.Lock()
	s.moving = false
	s.mu.Unlock()
	return nil
}

func (s *servo) angleToTurns(angleDeg float64) float64 {
	turns := angleDeg / 360 * s.cfg.GearRatio
	if s.cfg.Reversed {
		return -turns
	}
	return turns
}

func (s *servo) turnsToAngle(turns float64) float64 {
	angle := turns * 360 / s.cfg.GearRatio
	if s.cfg.Reversed {
		return -angle
	}
	return angle
}

// GoToAngle sends the new limits and the position setpoint. It does not wait.
func (s *servo) GoToAngle(ctx context.Context, angleDeg, speedFraction float64) error {
	if err := motor.CheckSpeedFraction(s.name, speedFraction); err != nil {
		return err
	}
	s.opMgr.CancelRunning(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyLimits(ctx, speedFraction); err != nil {
		return err
	}
	turns := s.angleToTurns(angleDeg)
	if err := s.bus.Write(ctx, s.node, pathInputPos, turns); err != nil {
		return err
	}
	s.commanded = angleDeg
	s.targetTurns = turns
	s.moving = true
	s.commandedAt = time.Now()
	s.logger.Debugw("move", "node", s.node, "target", angleDeg, "turns", turns, "fraction", speedFraction)
	return nil
}

// WaitForMove polls the node until the trajectory completes. Canceling ctx stops the axis.
func (s *servo) WaitForMove(ctx context.Context) error {
	s.mu.Lock()
	moving := s.moving
	s.mu.Unlock()
	if !moving {
		return nil
	}
	return s.opMgr.WaitTillDone(ctx, s.pollInterval, s.moveDone, s.Stop)
}

// moveDone reports whether the last move has finished. A nonzero axis error is a HardwareFault.
func (s *servo) moveDone(ctx context.Context) (bool, error) {
	if s.has(pathActiveErrors) {
		v, err := s.bus.Read(ctx, s.node, pathActiveErrors)
		if err != nil {
			return false, err
		}
		if code := cast.ToUint32(v); code != 0 {
			return false, motor.NewHardwareFault(s.name, code)
		}
	}

	pos, err := s.bus.ReadFloat(ctx, s.node, pathPosEstimate)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	target := s.targetTurns
	settled := time.Since(s.commandedAt) >= s.pollInterval
	s.mu.Unlock()

	done := math.Abs(pos-target) <= s.cfg.PositionTolerance
	// the flag can still be set from the previous move right after a new setpoint
	if !done && settled && s.has(pathTrajectoryDone) {
		v, err := s.bus.Read(ctx, s.node, pathTrajectoryDone)
		if err != nil {
			return false, err
		}
		done = cast.ToBool(v)
	}
	if done {
		s.mu.Lock()
		s.moving = false
		s.mu.Unlock()
	}
	return done, nil
}

func (s *servo) Angle(ctx context.Context) (float64, error) {
	pos, err := s.bus.ReadFloat(ctx, s.node, pathPosEstimate)
	if err != nil {
		return 0, err
	}
	return s.turnsToAngle(pos), nil
}

func (s *servo) CommandedAngle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commanded
}

func (s *servo) IsMoving(ctx context.Context) (bool, error) {
	s.mu.Lock()
	moving := s.moving
	s.mu.Unlock()
	if !moving {
		return false, nil
	}
	done, err := s.moveDone(ctx)
	if err != nil {
		return true, err
	}
	return !done, nil
}

// Stop zeroes the velocity limit and then holds the estimated position. The limit is
// restored by the next move.
func (s *servo) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := s.bus.Write(ctx, s.node, pathVelLimit, 0.0)
	pos, err := s.bus.ReadFloat(ctx, s.node, pathPosEstimate)
	if err != nil {
		return multierr.Combine(errs, err)
	}
	errs = multierr.Append(errs, s.bus.Write(ctx, s.node, pathInputPos, pos))
	s.targetTurns = pos
	s.commanded = s.turnsToAngle(pos)
	s.moving = false
	s.logger.Debugw("stopped", "node", s.node, "angle", s.commanded)
	return errs
}

func (s *servo) SetSpeedScale(ctx context.Context, scale float64) error {
	if err := motor.CheckSpeedFraction(s.name, scale); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speedScale = scale
	return nil
}

func (s *servo) State(ctx context.Context) (motor.JointState, error) {
	measured, err := s.Angle(ctx)
	if err != nil {
		return motor.JointState{}, err
	}
	moving, err := s.IsMoving(ctx)
	if err != nil {
		return motor.JointState{}, err
	}
	return motor.JointState{
		Name:           s.name,
		NodeID:         int(s.node),
		GearRatio:      s.cfg.GearRatio,
		CommandedAngle: s.CommandedAngle(),
		MeasuredAngle:  measured,
		Enabled:        s.enabled.Load(),
		Moving:         moving,
	}, nil
}

// Close ends any wait in progress. The axis keeps its state.
func (s *servo) Close(ctx context.Context) error {
	s.opMgr.CancelRunning(ctx)
	return nil
}
