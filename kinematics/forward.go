package kinematics

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/scythe-robotics/armctl/spatialmath"
	"github.com/scythe-robotics/armctl/utils"
)

// forwardPrecision is the number of decimal places of a Forward result.
const forwardPrecision = 4

// Forward returns the tool tip position for the given joint angles.
func (m *Model) Forward(angles JointAngles) r3.Vector {
	pos, _ := m.ForwardPose(angles)
	return pos
}

// pose rotates a copy of the zero-pose chain into the given joint angles.
func (m *Model) pose(angles JointAngles) links {
	chain := m.zero

	// Wrist pitch is set while the forearm is still vertical so it is relative to the forearm.
	chain.endEffector.RotateGlobal(chain.endEffector.Start, spatialmath.Angles{Y: utils.DegToRad(angles.WristPitch)}, spatialmath.XYZ)

	shoulder := chain.upperArm.Start
	shoulderRot := spatialmath.Angles{Y: utils.DegToRad(angles.Shoulder)}
	for _, link := range []*spatialmath.Vector3{&chain.upperArm, &chain.upperArmOffset, &chain.forearm, &chain.endEffector} {
		link.RotateGlobal(shoulder, shoulderRot, spatialmath.XYZ)
	}

	elbow := chain.forearm.Start
	elbowRot := spatialmath.Angles{Y: utils.DegToRad(angles.Elbow)}
	chain.forearm.RotateGlobal(elbow, elbowRot, spatialmath.XYZ)
	chain.endEffector.RotateGlobal(elbow, elbowRot, spatialmath.XYZ)

	baseRot := spatialmath.Angles{Z: utils.DegToRad(angles.Base)}
	chain.base.RotateLocal(baseRot, spatialmath.XYZ)
	for _, link := range []*spatialmath.Vector3{&chain.upperArm, &chain.upperArmOffset, &chain.forearm, &chain.endEffector} {
		link.RotateGlobal(r3.Vector{}, baseRot, spatialmath.XYZ)
	}

	chain.endEffector.RotateAroundAxis(chain.forearm.Start, chain.forearm.End(), utils.DegToRad(angles.WristYaw))
	return chain
}

// ForwardPose is Forward plus the orientation of the tool, in the same convention Inverse accepts.
func (m *Model) ForwardPose(angles JointAngles) (r3.Vector, Orientation) {
	chain := m.pose(angles)
	approach := chain.endEffector.Component.Mul(-1)
	planar := math.Hypot(approach.X, approach.Y)
	orientation := Orientation{Pitch: utils.RadToDeg(math.Atan2(planar, approach.Z))}
	if !utils.AlmostZero(planar / math.Max(approach.Norm(), 1)) {
		orientation.Yaw = utils.NormalizeDeg(utils.RadToDeg(math.Atan2(-approach.Y, -approach.X)))
	}
	end := chain.endEffector.End()
	return r3.Vector{
		X: utils.Round(end.X, forwardPrecision),
		Y: utils.Round(end.Y, forwardPrecision),
		Z: utils.Round(end.Z, forwardPrecision),
	}, orientation
}
