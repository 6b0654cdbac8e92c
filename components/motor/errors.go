package motor

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/utils"
)

// HardwareFault is raised when a joint reports a condition it cannot recover from on its
// own, such as a servo axis error. The arm treats it as a reason to emergency stop.
type HardwareFault struct {
	Joint string
	Code  uint32
}

func (f *HardwareFault) Error() string {
	return fmt.Sprintf("joint %q reported hardware fault 0x%08x", f.Joint, f.Code)
}

// NewHardwareFault returns a fault for the given joint and device error code.
func NewHardwareFault(joint string, code uint32) error {
	return &HardwareFault{Joint: joint, Code: code}
}

// IsHardwareFault reports whether err wraps a HardwareFault.
func IsHardwareFault(err error) bool {
	var f *HardwareFault
	return errors.As(err, &f)
}

// NewSpeedFractionError returns an error for a speed fraction outside (0, 1].
func NewSpeedFractionError(jointName string, fraction float64) error {
	return errors.Wrapf(utils.NewOutOfRangeError("speed fraction", fraction, 0, 1), "joint %q", jointName)
}

// CheckSpeedFraction validates a speed fraction or scale.
func CheckSpeedFraction(jointName string, fraction float64) error {
	if fraction <= 0 || fraction > 1 {
		return NewSpeedFractionError(jointName, fraction)
	}
	return nil
}
