package kinematics

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/scythe-robotics/armctl/spatialmath"
	"github.com/scythe-robotics/armctl/utils"
)

// Inverse returns the joint angles that put the tool tip at target with the given
// orientation. The elbow-up solution is returned. A *DomainError is returned for
// targets inside any keep-out volume and for targets the links cannot reach.
func (m *Model) Inverse(target r3.Vector, orientation Orientation, keepOut []spatialmath.Box) (JointAngles, error) {
	if spatialmath.AnyContains(keepOut, target) {
		return JointAngles{}, NewKeepOutError(target)
	}

	// Walk back from the tool tip along the requested approach to find the wrist center.
	approach := spatialmath.NewVector3(target, r3.Vector{Z: m.geometry.EndEffectorLength})
	approach.RotateGlobal(target, spatialmath.Angles{
		Y: utils.DegToRad(orientation.Pitch),
		Z: utils.DegToRad(orientation.Yaw),
	}, spatialmath.ZXY)
	wrist := approach.End()

	shoulder := m.ShoulderAnchor()
	toWrist := wrist.Sub(shoulder)
	dist := toWrist.Norm()
	forearm := m.geometry.ForearmLength
	if dist > m.Reach() {
		return JointAngles{}, NewUnreachableError(target, "beyond the combined link length")
	}
	if dist < math.Abs(m.projectedUpperArm-forearm) || dist == 0 {
		return JointAngles{}, NewUnreachableError(target, "too close to the shoulder")
	}

	base := 0.0
	if wrist.X != 0 || wrist.Y != 0 {
		base = math.Atan2(wrist.Y, wrist.X)
	}
	planar := math.Hypot(toWrist.X, toWrist.Y)
	// lean is the angle of shoulder-to-wrist measured from vertical toward the target.
	lean := math.Atan2(planar, toWrist.Z)

	upper := m.projectedUpperArm
	atShoulder := lawOfCosines(upper, dist, forearm)
	atElbow := lawOfCosines(upper, forearm, dist)

	shoulderAngle := atShoulder - lean + m.correction
	elbowAngle := atElbow - math.Pi - m.correction

	wristYaw, wristPitch := m.wristAngles(wrist, target, base, shoulderAngle+elbowAngle)

	return JointAngles{
		Base:       utils.RadToDeg(base),
		Shoulder:   utils.RadToDeg(shoulderAngle),
		Elbow:      utils.RadToDeg(elbowAngle),
		WristYaw:   wristYaw,
		WristPitch: wristPitch,
	}, nil
}

// wristAngles expresses the wrist-to-tip direction in the forearm frame by undoing the
// base yaw and the summed shoulder and elbow pitch, then reads yaw and pitch from it.
// Results are degrees, yaw in (-180, 180].
func (m *Model) wristAngles(wrist, target r3.Vector, base, armPitch float64) (float64, float64) {
	tool := spatialmath.NewVector3(wrist, target.Sub(wrist))
	tool.RotateGlobal(wrist, spatialmath.Angles{Z: -base}, spatialmath.XYZ)
	tool.RotateGlobal(wrist, spatialmath.Angles{Y: -armPitch}, spatialmath.XYZ)
	local := tool.Component

	planar := math.Hypot(local.X, local.Y)
	pitch := math.Atan2(planar, local.Z)
	if utils.AlmostZero(planar / math.Max(local.Norm(), 1)) {
		return 0, utils.RadToDeg(pitch)
	}
	yaw := math.Atan2(-local.Y, -local.X)
	return utils.NormalizeDeg(utils.RadToDeg(yaw)), utils.RadToDeg(pitch)
}

// lawOfCosines returns the angle opposite side c of a triangle with sides a, b, c.
func lawOfCosines(a, b, c float64) float64 {
	return math.Acos(utils.Clamp((a*a+b*b-c*c)/(2*a*b), -1, 1))
}
