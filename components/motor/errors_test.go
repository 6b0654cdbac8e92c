package motor

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestHardwareFault(t *testing.T) {
	err := errors.Wrap(NewHardwareFault("elbow", 0x40), "move failed")
	test.That(t, IsHardwareFault(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "0x00000040")
	test.That(t, IsHardwareFault(errors.New("other")), test.ShouldBeFalse)
}

func TestCheckSpeedFraction(t *testing.T) {
	test.That(t, CheckSpeedFraction("base", 1), test.ShouldBeNil)
	test.That(t, CheckSpeedFraction("base", 0.01), test.ShouldBeNil)
	test.That(t, CheckSpeedFraction("base", 0), test.ShouldNotBeNil)
	test.That(t, CheckSpeedFraction("base", 1.5), test.ShouldNotBeNil)
}
