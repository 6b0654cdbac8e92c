// Package spatialmath implements the rigid-link vector algebra and keep-out geometry used by the arm kinematics.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Vector3 is a rigid link: a start point, a directional component and the
// accumulated orientation of its own frame. Vector3 holds no references, so a
// plain assignment is an independent copy.
type Vector3 struct {
	Start     r3.Vector
	Component r3.Vector

	initial     r3.Vector
	orientation RotationMatrix
}

// NewVector3 returns a link starting at start with the given component and an identity orientation.
func NewVector3(start, component r3.Vector) Vector3 {
	return Vector3{
		Start:       start,
		Component:   component,
		initial:     component,
		orientation: IdentityRotation(),
	}
}

// End returns Start + Component.
func (v Vector3) End() r3.Vector {
	return v.Start.Add(v.Component)
}

// Length returns the norm of the component.
func (v Vector3) Length() float64 {
	return v.Component.Norm()
}

// Orientation returns the accumulated local frame.
func (v Vector3) Orientation() RotationMatrix {
	return v.orientation
}

// RotateGlobal rotates both endpoints about pivot.
func (v *Vector3) RotateGlobal(pivot r3.Vector, angles Angles, order AxisOrder) {
	rot := NewRotationMatrix(angles, order)
	start := rot.Apply(v.Start.Sub(pivot)).Add(pivot)
	end := rot.Apply(v.End().Sub(pivot)).Add(pivot)
	v.Start = start
	v.Component = end.Sub(start)
}

// RotateLocal composes a rotation into the vector's own frame and re-derives the
// component from the frame and the component the vector was created with.
func (v *Vector3) RotateLocal(angles Angles, order AxisOrder) {
	v.orientation = NewRotationMatrix(angles, order).Mul(v.orientation)
	v.Component = v.orientation.Apply(v.initial)
}

// MoveAbsolute relocates the start point, keeping the component.
func (v *Vector3) MoveAbsolute(point r3.Vector) {
	v.Start = point
}

// RotateAroundAxis rotates both endpoints by angle radians about the line from
// axisStart to axisEnd, right handed about that direction. A degenerate axis is a no-op.
func (v *Vector3) RotateAroundAxis(axisStart, axisEnd r3.Vector, angle float64) {
	axis := axisEnd.Sub(axisStart)
	if axis.Norm() == 0 {
		return
	}
	k := axis.Normalize()
	start := rotateAroundAxis(v.Start, axisStart, k, angle)
	end := rotateAroundAxis(v.End(), axisStart, k, angle)
	v.Start = start
	v.Component = end.Sub(start)
}

// rotateAroundAxis applies Rodrigues' rotation formula to p about the unit axis k through origin.
func rotateAroundAxis(p, origin, k r3.Vector, angle float64) r3.Vector {
	rel := p.Sub(origin)
	s, c := math.Sincos(angle)
	rotated := rel.Mul(c).
		Add(k.Cross(rel).Mul(s)).
		Add(k.Mul(k.Dot(rel) * (1 - c)))
	return rotated.Add(origin)
}
