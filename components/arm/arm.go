// Package arm coordinates the joints of the arm into pose moves.
package arm

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/kinematics"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/motionplan"
	"github.com/scythe-robotics/armctl/operation"
	"github.com/scythe-robotics/armctl/spatialmath"
)

// Arm drives five joints as one arm. Moves are not reentrant: a move is rejected while
// another is in flight, and only EmergencyStop interrupts one.
type Arm struct {
	model  *kinematics.Model
	joints [kinematics.NumJoints]motor.Joint
	logger logging.Logger

	mu       sync.Mutex
	state    State
	homed    bool
	keepOut  []spatialmath.Box
	speedPct float64
	pending  *operation.Task
	moveSeq  uint64
}

// NewArm builds an arm from joints keyed by joint name. The joints are assumed to be at
// their zero position, which counts as homed.
func NewArm(
	model *kinematics.Model,
	joints map[string]motor.Joint,
	keepOut []spatialmath.Box,
	logger logging.Logger,
) (*Arm, error) {
	a := &Arm{
		model:    model,
		logger:   logger,
		state:    StateDisabled,
		homed:    true,
		keepOut:  keepOut,
		speedPct: 100,
	}
	for i, name := range kinematics.JointNames {
		j, ok := joints[name]
		if !ok || j == nil {
			return nil, errors.Errorf("missing joint %q", name)
		}
		a.joints[i] = j
	}
	if len(joints) != kinematics.NumJoints {
		return nil, errors.Errorf("expected %d joints, got %d", kinematics.NumJoints, len(joints))
	}
	return a, nil
}

// State returns the current lifecycle state.
func (a *Arm) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Homed reports whether the joint zero positions can be trusted.
func (a *Arm) Homed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.homed
}

// Model returns the kinematic model.
func (a *Arm) Model() *kinematics.Model {
	return a.model
}

func (a *Arm) setState(s State) {
	if a.state != s {
		a.logger.Infow("state change", "from", a.state.String(), "to", s.String())
	}
	a.state = s
}

// forEachJoint runs f on every joint concurrently and returns the first error.
func (a *Arm) forEachJoint(ctx context.Context, f func(ctx context.Context, i int, j motor.Joint) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, j := range a.joints {
		i, j := i, j
		g.Go(func() error {
			return errors.Wrapf(f(ctx, i, j), "joint %q", j.Name())
		})
	}
	return g.Wait()
}

// EnableAll energizes every joint. Enabling an enabled arm is a no-op. Enabling after an
// emergency stop clears it, but pose moves stay refused until Home succeeds.
func (a *Arm) EnableAll(ctx context.Context) error {
	a.mu.Lock()
	if a.state.Enabled() {
		a.mu.Unlock()
		return nil
	}
	if a.state == StateEnabling {
		a.mu.Unlock()
		return errors.New("arm is already being enabled")
	}
	a.setState(StateEnabling)
	a.mu.Unlock()

	err := a.forEachJoint(ctx, func(ctx context.Context, _ int, j motor.Joint) error {
		return j.Enable(ctx)
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateEnabling {
		// stopped or disabled while the joints were being enabled
		return multierr.Combine(err, a.interruptedError())
	}
	if err != nil {
		a.setState(StateDisabled)
		return multierr.Combine(err, a.disableJoints(context.Background()))
	}
	a.setState(StateIdle)
	return nil
}

// interruptedError explains why a command that gave up the lock found the arm changed.
func (a *Arm) interruptedError() error {
	if a.state == StateEmergencyStopped {
		return ErrEmergencyStopped
	}
	return ErrNotEnabled
}

// DisableAll de-energizes every joint. A move in flight is abandoned. Disabling a disabled
// arm is a no-op.
func (a *Arm) DisableAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateDisabled {
		return nil
	}
	if a.pending != nil {
		a.pending.Cancel()
		a.pending = nil
	}
	a.moveSeq++
	err := a.disableJoints(ctx)
	if a.state != StateEmergencyStopped {
		a.setState(StateDisabled)
	}
	return err
}

func (a *Arm) disableJoints(ctx context.Context) error {
	var errs error
	for _, j := range a.joints {
		errs = multierr.Append(errs, errors.Wrapf(j.Disable(ctx), "joint %q", j.Name()))
	}
	return errs
}

// Move solves for the joint angles that put the tool tip at target with the given
// orientation and moves every joint there so that they finish together. A target inside a
// keep-out volume or out of reach is rejected with a kinematics.DomainError before any
// joint is commanded. When wait is false Move returns once every joint is commanded.
func (a *Arm) Move(ctx context.Context, target r3.Vector, orientation kinematics.Orientation, wait bool) error {
	a.mu.Lock()
	keepOut := a.keepOut
	a.mu.Unlock()

	angles, err := a.model.Inverse(target, orientation, keepOut)
	if err != nil {
		a.logger.Warnw("rejected move", "target", spatialmath.VectorString(target), "error", err)
		return err
	}
	a.logger.Debugw("solved move", "target", spatialmath.VectorString(target), "angles", angles)
	return a.dispatch(ctx, "arm.move", angles, wait, true)
}

// MoveToJointAngles moves every joint to the given angles. The resulting tool position
// must be outside every keep-out volume.
func (a *Arm) MoveToJointAngles(ctx context.Context, angles kinematics.JointAngles, wait bool) error {
	a.mu.Lock()
	keepOut := a.keepOut
	a.mu.Unlock()

	if tip := a.model.Forward(angles); spatialmath.AnyContains(keepOut, tip) {
		err := kinematics.NewKeepOutError(tip)
		a.logger.Warnw("rejected move", "angles", angles, "error", err)
		return err
	}
	return a.dispatch(ctx, "arm.move_joints", angles, wait, true)
}

// Home moves every joint to zero, waits for it to get there and marks the arm homed.
func (a *Arm) Home(ctx context.Context) error {
	if err := a.dispatch(ctx, "arm.home", kinematics.JointAngles{}, true, false); err != nil {
		return errors.Wrap(err, "homing failed")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.homed = true
	a.logger.Info("homed")
	return nil
}

// dispatch checks that the arm can move, commands every joint and then waits for them in
// a background task. requireHomed is false only for Home itself.
func (a *Arm) dispatch(ctx context.Context, method string, angles kinematics.JointAngles, wait, requireHomed bool) error {
	a.mu.Lock()
	switch {
	case a.state == StateEmergencyStopped:
		a.mu.Unlock()
		return ErrEmergencyStopped
	case !a.state.Enabled():
		a.mu.Unlock()
		return ErrNotEnabled
	case a.state == StateMoving || (a.pending != nil && a.pending.Running()):
		a.mu.Unlock()
		return ErrMoveInProgress
	case requireHomed && !a.homed:
		a.mu.Unlock()
		return ErrNotHomed
	}
	a.setState(StateMoving)
	a.moveSeq++
	seq := a.moveSeq
	a.mu.Unlock()

	targets := angles.Slice()
	current := lo.Map(a.joints[:], func(j motor.Joint, _ int) float64 {
		return j.CommandedAngle()
	})
	fractions, err := motionplan.SpeedFractions(targets, current)
	if err != nil {
		a.abortDispatch(seq, err)
		return err
	}

	err = a.forEachJoint(ctx, func(ctx context.Context, i int, j motor.Joint) error {
		return j.GoToAngle(ctx, targets[i], fractions[i])
	})

	a.mu.Lock()
	if a.moveSeq != seq || a.state != StateMoving {
		// An emergency stop or disable landed during the fan-out. Joints commanded after
		// it went out must not keep moving.
		interrupted := a.interruptedError()
		a.mu.Unlock()
		a.logger.Warnw("move interrupted while dispatching, stopping again", "method", method)
		return multierr.Combine(interrupted, a.stopJoints(context.Background()))
	}
	if err != nil {
		a.mu.Unlock()
		a.abortDispatch(seq, err)
		return err
	}
	task := operation.Go(context.Background(), method, func(ctx context.Context) error {
		err := a.forEachJoint(ctx, func(ctx context.Context, _ int, j motor.Joint) error {
			return j.WaitForMove(ctx)
		})
		a.moveFinished(seq, err)
		return err
	})
	a.pending = task
	a.mu.Unlock()
	a.logger.Debugw("move dispatched", "method", method, "task", task.ID, "fractions", fractions)

	if !wait {
		return nil
	}
	return task.Wait(ctx)
}

// abortDispatch stops every joint after some of them failed to take a command.
func (a *Arm) abortDispatch(seq uint64, cause error) {
	a.logger.Errorw("move could not be dispatched, stopping", "error", cause)
	errs := a.stopJoints(context.Background())
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.moveSeq == seq && a.state == StateMoving {
		a.setState(StateIdle)
	}
	if errs != nil {
		a.logger.Errorw("stopping after failed dispatch", "error", errs)
	}
}

// moveFinished runs at the end of every move task. A hardware fault on any joint
// triggers an emergency stop. Tasks of superseded moves change nothing.
func (a *Arm) moveFinished(seq uint64, err error) {
	if motor.IsHardwareFault(err) {
		a.logger.Errorw("hardware fault, emergency stopping", "error", err)
		if stopErr := a.EmergencyStop(context.Background()); stopErr != nil {
			a.logger.Errorw("emergency stop failed", "error", stopErr)
		}
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warnw("move failed", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.moveSeq == seq && a.state == StateMoving {
		a.setState(StateIdle)
	}
}

// EmergencyStop halts every joint where it is. The arm then refuses motion until it is
// enabled again, and refuses pose moves until it is homed again.
func (a *Arm) EmergencyStop(ctx context.Context) error {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.homed = false
	a.moveSeq++
	a.setState(StateEmergencyStopped)
	a.mu.Unlock()

	if pending != nil {
		pending.Cancel()
	}
	err := a.stopJoints(ctx)
	a.logger.Warnw("emergency stop", "error", err)
	return err
}

func (a *Arm) stopJoints(ctx context.Context) error {
	var errs error
	for _, j := range a.joints {
		errs = multierr.Append(errs, errors.Wrapf(j.Stop(ctx), "joint %q", j.Name()))
	}
	return errs
}

// WaitForMove blocks until the current move, if any, finishes.
func (a *Arm) WaitForMove(ctx context.Context) error {
	a.mu.Lock()
	pending := a.pending
	a.mu.Unlock()
	if pending == nil {
		return nil
	}
	return pending.Wait(ctx)
}

// IsMoving is true while a move task runs or any joint reports motion.
func (a *Arm) IsMoving(ctx context.Context) (bool, error) {
	a.mu.Lock()
	pending := a.pending
	a.mu.Unlock()
	if pending != nil && pending.Running() {
		return true, nil
	}
	for _, j := range a.joints {
		moving, err := j.IsMoving(ctx)
		if err != nil {
			return false, errors.Wrapf(err, "joint %q", j.Name())
		}
		if moving {
			return true, nil
		}
	}
	return false, nil
}

// JointAngles returns the measured joint angles.
func (a *Arm) JointAngles(ctx context.Context) (kinematics.JointAngles, error) {
	measured := make([]float64, 0, kinematics.NumJoints)
	for _, j := range a.joints {
		angle, err := j.Angle(ctx)
		if err != nil {
			return kinematics.JointAngles{}, errors.Wrapf(err, "joint %q", j.Name())
		}
		measured = append(measured, angle)
	}
	return kinematics.JointAnglesFromSlice(measured)
}

// Position estimates the tool tip position from the measured joint angles.
func (a *Arm) Position(ctx context.Context) (r3.Vector, error) {
	angles, err := a.JointAngles(ctx)
	if err != nil {
		return r3.Vector{}, err
	}
	return a.model.Forward(angles), nil
}

// JointStates returns a snapshot of every joint in joint order.
func (a *Arm) JointStates(ctx context.Context) ([]motor.JointState, error) {
	states := make([]motor.JointState, 0, kinematics.NumJoints)
	for _, j := range a.joints {
		s, err := j.State(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "joint %q", j.Name())
		}
		states = append(states, s)
	}
	return states, nil
}

// SetSpeedPercent scales every joint's speed. pct is in (0, 100] and takes effect on the
// next move.
func (a *Arm) SetSpeedPercent(ctx context.Context, pct float64) error {
	if pct <= 0 || pct > 100 {
		return errors.Errorf("speed percentage %v must be in (0, 100]", pct)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if pct == a.speedPct {
		return nil
	}
	for _, j := range a.joints {
		if err := j.SetSpeedScale(ctx, pct/100); err != nil {
			return errors.Wrapf(err, "joint %q", j.Name())
		}
	}
	a.speedPct = pct
	a.logger.Infow("speed changed", "percent", pct)
	return nil
}

// SpeedPercent returns the current speed percentage.
func (a *Arm) SpeedPercent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speedPct
}

// SetKeepOutVolumes replaces the keep-out volumes checked by later moves.
func (a *Arm) SetKeepOutVolumes(boxes []spatialmath.Box) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keepOut = append([]spatialmath.Box(nil), boxes...)
	a.logger.Infow("keep-out volumes changed", "count", len(boxes))
}

// KeepOutVolumes returns the keep-out volumes in force.
func (a *Arm) KeepOutVolumes() []spatialmath.Box {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]spatialmath.Box(nil), a.keepOut...)
}

// Shutdown parks the arm at zero when it can and then disables it.
func (a *Arm) Shutdown(ctx context.Context) error {
	var errs error
	if a.State() == StateIdle {
		errs = a.Home(ctx)
	}
	return multierr.Combine(errs, a.DisableAll(ctx))
}

// Close abandons any move and releases every joint.
func (a *Arm) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.pending != nil {
		a.pending.Cancel()
		a.pending = nil
	}
	a.mu.Unlock()

	var errs error
	for _, j := range a.joints {
		errs = multierr.Append(errs, errors.Wrapf(j.Close(ctx), "joint %q", j.Name()))
	}
	return errs
}
