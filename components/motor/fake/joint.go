// Package fake implements a fake joint whose moves complete instantly or on demand.
package fake

import (
	"context"
	"sync"

	"github.com/scythe-robotics/armctl/components/motor"
	"github.com/scythe-robotics/armctl/config"
	"github.com/scythe-robotics/armctl/logging"
	"github.com/scythe-robotics/armctl/registry"
	"github.com/scythe-robotics/armctl/utils"
)

// Model is the registered name of the fake joint.
const Model = "fake"

func init() {
	registry.RegisterJoint(Model, func(
		ctx context.Context,
		deps registry.Dependencies,
		conf config.Joint,
		logger logging.Logger,
	) (motor.Joint, error) {
		return NewJoint(conf.Name), nil
	})
}

// Move is one recorded GoToAngle call.
type Move struct {
	Angle    float64
	Fraction float64
}

// Joint is a fake joint.
type Joint struct {
	name string

	mu        sync.Mutex
	enabled   bool
	angle     float64
	commanded float64
	scale     float64
	hold      bool
	done      chan struct{}
	moving    bool
	moves     []Move
	stops     int
	enableErr error
	gotoErr   error
	waitErr   error
	closed    bool

	enableGate *gate
	gotoGate   *gate
}

// gate holds one call until it is opened. entered closes once the call is waiting.
type gate struct {
	open    <-chan struct{}
	entered chan struct{}
}

func newGate(open <-chan struct{}) *gate {
	return &gate{open: open, entered: make(chan struct{})}
}

// pass blocks until the gate opens. The context is ignored like a command already on the wire.
func (g *gate) pass() {
	if g == nil {
		return
	}
	close(g.entered)
	<-g.open
}

var _ motor.Joint = (*Joint)(nil)

// NewJoint returns a disabled fake joint at zero.
func NewJoint(name string) *Joint {
	return &Joint{name: name, scale: 1}
}

func (j *Joint) Name() string {
	return j.name
}

// Hold makes later moves stay in progress until Release.
func (j *Joint) Hold(hold bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.hold = hold
}

// Release completes the move in progress.
func (j *Joint) Release() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishInLock()
}

func (j *Joint) finishInLock() {
	if !j.moving {
		return
	}
	j.moving = false
	j.angle = j.commanded
	close(j.done)
}

// BlockEnable makes the next Enable wait until open is closed. The returned channel closes
// once Enable is waiting.
func (j *Joint) BlockEnable(open <-chan struct{}) <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enableGate = newGate(open)
	return j.enableGate.entered
}

// BlockGoTo makes the next GoToAngle wait until open is closed before it takes the command.
// The returned channel closes once GoToAngle is waiting.
func (j *Joint) BlockGoTo(open <-chan struct{}) <-chan struct{} {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.gotoGate = newGate(open)
	return j.gotoGate.entered
}

// FailEnable makes Enable return err.
func (j *Joint) FailEnable(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enableErr = err
}

// FailGoTo makes GoToAngle return err.
func (j *Joint) FailGoTo(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.gotoErr = err
}

// FailNextWait makes the next WaitForMove return err.
func (j *Joint) FailNextWait(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.waitErr = err
}

// Moves returns every commanded move.
func (j *Joint) Moves() []Move {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Move(nil), j.moves...)
}

// Stops counts calls to Stop.
func (j *Joint) Stops() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stops
}

// Enabled reports the enable state.
func (j *Joint) Enabled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enabled
}

// SpeedScale returns the last speed scale set.
func (j *Joint) SpeedScale() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.scale
}

// Closed reports whether Close was called.
func (j *Joint) Closed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closed
}

func (j *Joint) Enable(ctx context.Context) error {
	j.mu.Lock()
	g := j.enableGate
	j.enableGate = nil
	j.mu.Unlock()
	g.pass()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enableErr != nil {
		return j.enableErr
	}
	j.enabled = true
	return nil
}

func (j *Joint) Disable(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enabled = false
	return nil
}

func (j *Joint) GoToAngle(ctx context.Context, angleDeg, speedFraction float64) error {
	if err := motor.CheckSpeedFraction(j.name, speedFraction); err != nil {
		return err
	}
	j.mu.Lock()
	g := j.gotoGate
	j.gotoGate = nil
	j.mu.Unlock()
	g.pass()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.gotoErr != nil {
		return j.gotoErr
	}
	j.finishInLock()
	j.moves = append(j.moves, Move{Angle: angleDeg, Fraction: speedFraction})
	j.commanded = angleDeg
	j.moving = true
	j.done = make(chan struct{})
	if !j.hold {
		j.finishInLock()
	}
	return nil
}

func (j *Joint) WaitForMove(ctx context.Context) error {
	j.mu.Lock()
	done := j.done
	err := j.waitErr
	j.waitErr = nil
	j.mu.Unlock()
	if err != nil {
		return err
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Joint) Angle(ctx context.Context) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.angle, nil
}

func (j *Joint) CommandedAngle() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.commanded
}

func (j *Joint) IsMoving(ctx context.Context) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.moving, nil
}

// Stop ends the move in progress where it is.
func (j *Joint) Stop(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stops++
	if j.moving {
		j.commanded = j.angle
		j.finishInLock()
	}
	return nil
}

func (j *Joint) SetSpeedScale(ctx context.Context, scale float64) error {
	if err := motor.CheckSpeedFraction(j.name, scale); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.scale = scale
	return nil
}

func (j *Joint) State(ctx context.Context) (motor.JointState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return motor.JointState{
		Name:           j.name,
		NodeID:         -1,
		GearRatio:      1,
		CommandedAngle: j.commanded,
		MeasuredAngle:  utils.Round(j.angle, 6),
		Enabled:        j.enabled,
		Moving:         j.moving,
	}, nil
}

func (j *Joint) Close(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}
