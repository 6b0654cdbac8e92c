package arm

import "github.com/pkg/errors"

// State is the coordinator's position in its enable/move lifecycle.
type State int

// The arm states. EmergencyStopped behaves like Disabled except that the arm must also be
// homed again before it accepts pose moves.
const (
	StateDisabled State = iota
	StateEnabling
	StateIdle
	StateMoving
	StateEmergencyStopped
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateEnabling:
		return "enabling"
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StateEmergencyStopped:
		return "emergency_stopped"
	default:
		return "unknown"
	}
}

// Enabled reports whether the joints are energized.
func (s State) Enabled() bool {
	return s == StateIdle || s == StateMoving
}

var (
	// ErrNotEnabled is returned for motion requested while the joints are off.
	ErrNotEnabled = errors.New("arm is not enabled")
	// ErrNotHomed is returned for pose moves after an emergency stop until Home succeeds.
	ErrNotHomed = errors.New("arm must be homed after an emergency stop")
	// ErrMoveInProgress is returned when a move is requested while one is still running.
	ErrMoveInProgress = errors.New("a move is already in progress")
	// ErrEmergencyStopped is returned for motion requested after an emergency stop until re-enabled.
	ErrEmergencyStopped = errors.New("arm is emergency stopped, enable it again first")
)
