// Package kinematics maps between the five arm joint angles and the end effector position.
//
// Conventions: lengths are millimeters, public angles are degrees. The arm stands along +z
// at zero angles. Base yaw is right handed about +z. Shoulder, elbow and wrist pitch are
// positive when they tilt the following link toward -x of the arm plane. Wrist yaw is right
// handed about the forearm axis.
package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/scythe-robotics/armctl/spatialmath"
)

// Geometry holds the fixed link dimensions of the arm.
type Geometry struct {
	// BaseHeight is the distance from the base to the shoulder anchor.
	BaseHeight float64 `json:"base_height"`
	// UpperArmLength is the main upper-arm member, shoulder anchor to the offset bracket.
	UpperArmLength float64 `json:"upper_arm_length"`
	// UpperArmOffset is the bracket that moves the elbow anchor off the upper-arm axis.
	UpperArmOffset float64 `json:"upper_arm_offset"`
	ForearmLength  float64 `json:"forearm_length"`
	// EndEffectorLength is wrist center to tool tip.
	EndEffectorLength float64 `json:"end_effector_length"`
}

// DefaultGeometry returns the dimensions of the production arm.
func DefaultGeometry() Geometry {
	return Geometry{
		BaseHeight:        230,
		UpperArmLength:    380,
		UpperArmOffset:    20,
		ForearmLength:     445,
		EndEffectorLength: 130,
	}
}

// Validate ensures all parts of the geometry are valid.
func (g *Geometry) Validate(path string) error {
	if g.UpperArmLength <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "upper_arm_length")
	}
	if g.ForearmLength <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "forearm_length")
	}
	if g.BaseHeight < 0 || g.EndEffectorLength < 0 || g.UpperArmOffset < 0 {
		return errors.Errorf("%s: base_height, upper_arm_offset and end_effector_length must not be negative", path)
	}
	return nil
}

// JointAngles are the five joint positions in degrees.
type JointAngles struct {
	Base       float64 `json:"base"`
	Shoulder   float64 `json:"shoulder"`
	Elbow      float64 `json:"elbow"`
	WristYaw   float64 `json:"wrist_yaw"`
	WristPitch float64 `json:"wrist_pitch"`
}

// NumJoints is the number of actuated joints.
const NumJoints = 5

// Joint names in joint order.
const (
	JointBase       = "base"
	JointShoulder   = "shoulder"
	JointElbow      = "elbow"
	JointWristYaw   = "wrist_yaw"
	JointWristPitch = "wrist_pitch"
)

// JointNames lists the joint names in joint order.
var JointNames = [NumJoints]string{JointBase, JointShoulder, JointElbow, JointWristYaw, JointWristPitch}

// Slice returns the angles in joint order: base, shoulder, elbow, wrist yaw, wrist pitch.
func (ja JointAngles) Slice() []float64 {
	return []float64{ja.Base, ja.Shoulder, ja.Elbow, ja.WristYaw, ja.WristPitch}
}

// JointAnglesFromSlice is the inverse of Slice.
func JointAnglesFromSlice(angles []float64) (JointAngles, error) {
	if len(angles) != NumJoints {
		return JointAngles{}, errors.Errorf("expected %d joint angles, got %d", NumJoints, len(angles))
	}
	return JointAngles{angles[0], angles[1], angles[2], angles[3], angles[4]}, nil
}

// Orientation is the requested tool direction in degrees. At zero pitch the tool points
// straight down. Pitch tilts the wrist away from vertical toward -x, then yaw turns that
// tilt about +z.
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// links is the zero-pose chain. It is copied by value on every solve.
type links struct {
	base           spatialmath.Vector3
	upperArm       spatialmath.Vector3
	upperArmOffset spatialmath.Vector3
	forearm        spatialmath.Vector3
	endEffector    spatialmath.Vector3
}

// Model solves forward and inverse kinematics for one arm geometry.
type Model struct {
	geometry Geometry
	zero     links

	// projectedUpperArm is the straight shoulder-to-elbow distance.
	projectedUpperArm float64
	// correction is the angle between the true upper arm and the projected one, radians.
	correction float64
}

// NewModel builds a Model from a validated geometry.
func NewModel(g Geometry) (*Model, error) {
	if err := g.Validate("geometry"); err != nil {
		return nil, err
	}

	shoulder := r3.Vector{Z: g.BaseHeight}
	bracket := shoulder.Add(r3.Vector{Z: g.UpperArmLength})
	elbow := bracket.Add(r3.Vector{X: g.UpperArmOffset})
	wrist := elbow.Add(r3.Vector{Z: g.ForearmLength})

	return &Model{
		geometry: g,
		zero: links{
			base:           spatialmath.NewVector3(r3.Vector{}, shoulder),
			upperArm:       spatialmath.NewVector3(shoulder, r3.Vector{Z: g.UpperArmLength}),
			upperArmOffset: spatialmath.NewVector3(bracket, r3.Vector{X: g.UpperArmOffset}),
			forearm:        spatialmath.NewVector3(elbow, r3.Vector{Z: g.ForearmLength}),
			endEffector:    spatialmath.NewVector3(wrist, r3.Vector{Z: g.EndEffectorLength}),
		},
		projectedUpperArm: math.Hypot(g.UpperArmLength, g.UpperArmOffset),
		correction:        math.Atan2(g.UpperArmOffset, g.UpperArmLength),
	}, nil
}

// Geometry returns the dimensions the model was built with.
func (m *Model) Geometry() Geometry {
	return m.geometry
}

// ShoulderAnchor returns the fixed shoulder pivot.
func (m *Model) ShoulderAnchor() r3.Vector {
	return m.zero.base.End()
}

// Reach is the longest possible shoulder-to-wrist distance.
func (m *Model) Reach() float64 {
	return m.projectedUpperArm + m.geometry.ForearmLength
}
