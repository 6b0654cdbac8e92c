package kinematics

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/scythe-robotics/armctl/spatialmath"
)

// DomainError reports a target the arm must not or cannot reach. No joint is
// commanded when one is returned.
type DomainError struct {
	Target r3.Vector
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("target %s rejected: %s", spatialmath.VectorString(e.Target), e.Reason)
}

// NewKeepOutError is returned for a target inside a keep-out volume.
func NewKeepOutError(target r3.Vector) error {
	return &DomainError{Target: target, Reason: "inside a keep-out volume"}
}

// NewUnreachableError is returned for a target the links cannot span.
func NewUnreachableError(target r3.Vector, reason string) error {
	return &DomainError{Target: target, Reason: reason}
}

// IsDomainError reports whether err is or wraps a DomainError.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
