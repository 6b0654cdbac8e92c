// Package motor defines the joint actuators an arm is built from.
package motor

import (
	"context"
)

// A Joint is one rotary axis of the arm. Angles are joint output angles in degrees.
type Joint interface {
	Name() string

	// Enable energizes the joint. Enabling an enabled joint is a no-op.
	Enable(ctx context.Context) error

	// Disable de-energizes the joint. Disabling a disabled joint is a no-op.
	Disable(ctx context.Context) error

	// GoToAngle starts a move to angleDeg and returns once the move is commanded.
	// speedFraction in (0, 1] scales the joint's configured speed so that joints of a
	// coordinated move finish together.
	GoToAngle(ctx context.Context, angleDeg, speedFraction float64) error

	// WaitForMove blocks until the last commanded move completes or fails.
	WaitForMove(ctx context.Context) error

	// Angle returns the measured angle.
	Angle(ctx context.Context) (float64, error)

	// CommandedAngle returns the target of the last move.
	CommandedAngle() float64

	IsMoving(ctx context.Context) (bool, error)

	// Stop halts motion immediately and holds the current position.
	Stop(ctx context.Context) error

	// SetSpeedScale scales the joint's configured speed and acceleration. scale is in (0, 1].
	SetSpeedScale(ctx context.Context, scale float64) error

	State(ctx context.Context) (JointState, error)

	Close(ctx context.Context) error
}

// JointState is a snapshot of one joint.
type JointState struct {
	Name           string
	NodeID         int
	GearRatio      float64
	CommandedAngle float64
	MeasuredAngle  float64
	Enabled        bool
	Moving         bool
}
