package robot

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/scythe-robotics/armctl/components/arm"
	"github.com/scythe-robotics/armctl/kinematics"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/spatialmath"
	"github.com/scythe-robotics/armctl/store"
	"github.com/scythe-robotics/armctl/utils"
)

// KeyRequestHome asks the loop to home the arm, which is required after an emergency stop.
const KeyRequestHome = "request_home"

// refreshWindow is how many tick periods the published refresh rate averages over.
const refreshWindow = 10

// Loop connects an arm to a store. Every tick it applies the operator's requests to the arm
// and publishes the arm's status.
type Loop struct {
	arm      *arm.Arm
	store    store.Store
	clock    clock.Clock
	interval time.Duration
	logger   logging.Logger

	lastTick    time.Time
	periods     []float64
	enabled     bool
	estopLatch  bool
	lastErrText string
	warnLimit   rate.Sometimes
}

// NewLoop returns a loop ticking every interval on clk.
func NewLoop(a *arm.Arm, s store.Store, interval time.Duration, clk clock.Clock, logger logging.Logger) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		arm:       a,
		store:     s,
		clock:     clk,
		interval:  interval,
		logger:    logger,
		warnLimit: rate.Sometimes{Interval: time.Second},
	}
}

// Run waits for setup and then steps every interval until shutdown is requested or ctx
// ends.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.WaitForSetup(ctx); err != nil {
		return err
	}
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		done, err := l.Step(ctx)
		if err != nil {
			l.warnLimit.Do(func() {
				l.logger.Warnw("control step failed", "error", err)
			})
		}
		if done {
			return nil
		}
	}
}

// WaitForSetup polls until the operator sets the setup flag. It then installs the
// restricted areas as keep-out volumes and clears the flag to acknowledge.
func (l *Loop) WaitForSetup(ctx context.Context) error {
	l.logger.Info("waiting for setup")
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()
	for !store.Bool(l.store, store.KeySetup, false) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	encoded, err := store.Strings(l.store, store.KeyRestrictedAreas)
	if err != nil {
		return errors.Wrap(err, "reading restricted areas")
	}
	if encoded != nil {
		boxes, err := spatialmath.ParseBoxes(encoded)
		if err != nil {
			return errors.Wrap(err, "decoding restricted areas")
		}
		l.arm.SetKeepOutVolumes(boxes)
	}
	l.store.Put(store.KeySetup, false)
	l.lastTick = l.clock.Now()
	l.logger.Infow("setup complete", "keep_out", len(l.arm.KeepOutVolumes()))
	return nil
}

// Step runs one control cycle. It reports done once the arm has been shut down. The
// returned error aggregates everything that failed during the cycle and is also
// published as last_error.
func (l *Loop) Step(ctx context.Context) (done bool, err error) {
	now := l.clock.Now()
	defer func() {
		l.publish(ctx, now, err)
	}()

	if store.Bool(l.store, store.KeyShutdown, false) {
		l.logger.Info("shutting down")
		l.store.Put(store.KeyShutdown, false)
		return true, l.arm.Shutdown(ctx)
	}

	estop := store.Bool(l.store, store.KeyEmergencyStop, false)
	if estop && !l.estopLatch {
		l.logger.Warn("emergency stop requested")
		err = multierr.Append(err, l.arm.EmergencyStop(ctx))
		l.enabled = false
		l.store.Put(store.KeyEnableMotors, false)
	}
	l.estopLatch = estop
	if estop {
		return false, err
	}

	err = multierr.Append(err, l.applyEnable(ctx))
	err = multierr.Append(err, l.applySpeed(ctx))

	if store.Bool(l.store, KeyRequestHome, false) {
		l.store.Put(KeyRequestHome, false)
		err = multierr.Append(err, l.arm.Home(ctx))
	}
	err = multierr.Append(err, l.applyMove(ctx))
	return false, err
}

// applyEnable follows edges of enable_motors so that an emergency stop is only undone by
// the operator raising the flag again.
func (l *Loop) applyEnable(ctx context.Context) error {
	want := store.Bool(l.store, store.KeyEnableMotors, false)
	if want == l.enabled {
		return nil
	}
	l.enabled = want
	if want {
		return l.arm.EnableAll(ctx)
	}
	return l.arm.DisableAll(ctx)
}

func (l *Loop) applySpeed(ctx context.Context) error {
	pct := store.Number(l.store, store.KeyPercentageSpeed, 0)
	if pct == 0 || pct == l.arm.SpeedPercent() {
		return nil
	}
	return l.arm.SetSpeedPercent(ctx, pct)
}

// applyMove dispatches a requested move without waiting. A request made while the arm is
// still moving stays pending until the arm is free.
func (l *Loop) applyMove(ctx context.Context) error {
	if !store.Bool(l.store, store.KeyRequestMove, false) {
		return nil
	}
	moving, err := l.arm.IsMoving(ctx)
	if err != nil {
		return err
	}
	if moving {
		return nil
	}
	l.store.Put(store.KeyRequestMove, false)

	target, orientation, err := l.readTarget()
	if err != nil {
		return err
	}
	l.logger.Infow("moving", "target", spatialmath.VectorString(target), "pitch", orientation.Pitch, "yaw", orientation.Yaw)
	return l.arm.Move(ctx, target, orientation, false)
}

func (l *Loop) readTarget() (r3.Vector, kinematics.Orientation, error) {
	pos, err := store.Floats(l.store, store.KeyTargetPosition)
	if err != nil {
		return r3.Vector{}, kinematics.Orientation{}, err
	}
	if len(pos) != 3 {
		return r3.Vector{}, kinematics.Orientation{}, errors.Errorf("%s needs 3 values, got %d", store.KeyTargetPosition, len(pos))
	}
	rot, err := store.Floats(l.store, store.KeyTargetRotations)
	if err != nil {
		return r3.Vector{}, kinematics.Orientation{}, err
	}
	var orientation kinematics.Orientation
	switch len(rot) {
	case 0:
	case 2:
		orientation = kinematics.Orientation{Pitch: rot[0], Yaw: rot[1]}
	default:
		return r3.Vector{}, kinematics.Orientation{}, errors.Errorf("%s needs 2 values, got %d", store.KeyTargetRotations, len(rot))
	}
	return r3.Vector{X: pos[0], Y: pos[1], Z: pos[2]}, orientation, nil
}

// publish writes the arm's status and the cycle's outcome.
func (l *Loop) publish(ctx context.Context, now time.Time, stepErr error) {
	moving, err := l.arm.IsMoving(ctx)
	if err != nil {
		stepErr = multierr.Append(stepErr, err)
	}
	l.store.Put(store.KeyMoving, moving)

	pos, err := l.arm.Position(ctx)
	if err != nil {
		stepErr = multierr.Append(stepErr, err)
	} else {
		l.store.Put(store.KeyCurrentPosition, []float64{
			utils.Round(pos.X, 3), utils.Round(pos.Y, 3), utils.Round(pos.Z, 3),
		})
	}
	l.store.Put(store.KeyArmState, l.arm.State().String())
	l.store.Put(store.KeyServerHeartbeat, float64(now.UnixNano())/float64(time.Second))

	if elapsed := now.Sub(l.lastTick); !l.lastTick.IsZero() && elapsed > 0 {
		l.periods = append(l.periods, elapsed.Seconds())
		if len(l.periods) > refreshWindow {
			l.periods = l.periods[len(l.periods)-refreshWindow:]
		}
		if mean, err := stats.Mean(l.periods); err == nil && mean > 0 {
			l.store.Put(store.KeyServerRefreshRate, utils.Round(1/mean, 2))
		}
	}
	l.lastTick = now

	errText := ""
	if stepErr != nil {
		errText = stepErr.Error()
	}
	if errText != l.lastErrText && errText != "" {
		l.logger.Warnw("rejected request", "error", errText)
	}
	l.lastErrText = errText
	l.store.Put(store.KeyLastError, errText)
}
