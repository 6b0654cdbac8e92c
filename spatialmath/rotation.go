package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/scythe-robotics/armctl/utils"
)

// matrixPrecision is the number of decimal places every composed rotation matrix is rounded to.
const matrixPrecision = 5

// Angles is a rotation about each global axis, in radians.
type Angles struct {
	X, Y, Z float64
}

// NewAnglesFromDegrees builds Angles from degree values.
func NewAnglesFromDegrees(x, y, z float64) Angles {
	return Angles{utils.DegToRad(x), utils.DegToRad(y), utils.DegToRad(z)}
}

// AxisOrder names the matrix product of the three elemental rotations, read left
// to right. XYZ is Rx*Ry*Rz, so a vector is rotated about z first and x last.
type AxisOrder string

// The six possible axis orders.
const (
	XYZ AxisOrder = "xyz"
	XZY AxisOrder = "xzy"
	YXZ AxisOrder = "yxz"
	YZX AxisOrder = "yzx"
	ZXY AxisOrder = "zxy"
	ZYX AxisOrder = "zyx"
)

// ParseAxisOrder validates an axis order string.
func ParseAxisOrder(s string) (AxisOrder, error) {
	switch order := AxisOrder(s); order {
	case XYZ, XZY, YXZ, YZX, ZXY, ZYX:
		return order, nil
	default:
		return "", errors.Errorf("invalid axis order %q, must be a permutation of xyz", s)
	}
}

// RotationMatrix is a row-major 3x3 rotation.
type RotationMatrix [9]float64

// IdentityRotation is the rotation that does nothing.
func IdentityRotation() RotationMatrix {
	return RotationMatrix{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func elementalX(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{1, 0, 0, 0, c, -s, 0, s, c}
}

func elementalY(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{c, 0, s, 0, 1, 0, -s, 0, c}
}

func elementalZ(a float64) RotationMatrix {
	s, c := math.Sincos(a)
	return RotationMatrix{c, -s, 0, s, c, 0, 0, 0, 1}
}

// NewRotationMatrix composes the elemental rotations of angles in the given order.
// The y angle is negated so that a positive pitch tilts +z toward -x, which keeps
// "up" consistent with how the arm is mounted. The result is rounded to five places.
func NewRotationMatrix(angles Angles, order AxisOrder) RotationMatrix {
	rot := IdentityRotation()
	for _, axis := range order {
		var elemental RotationMatrix
		switch axis {
		case 'x':
			elemental = elementalX(angles.X)
		case 'y':
			elemental = elementalY(-angles.Y)
		case 'z':
			elemental = elementalZ(angles.Z)
		default:
			continue
		}
		rot = rot.Mul(elemental)
	}
	return rot.Round(matrixPrecision)
}

func (m RotationMatrix) dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, m[:])
	return mat.NewDense(3, 3, data)
}

// Mul returns m*o.
func (m RotationMatrix) Mul(o RotationMatrix) RotationMatrix {
	var out mat.Dense
	out.Mul(m.dense(), o.dense())
	var ret RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ret[i*3+j] = out.At(i, j)
		}
	}
	return ret
}

// Apply rotates v by m.
func (m RotationMatrix) Apply(v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m.dense(), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Transpose returns the inverse rotation.
func (m RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}
}

// Round rounds every element to the given number of decimal places.
func (m RotationMatrix) Round(places int) RotationMatrix {
	for i := range m {
		m[i] = utils.Round(m[i], places)
	}
	return m
}
