package spatialmath

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Box is an axis-aligned keep-out volume the end effector must never enter.
type Box struct {
	Min r3.Vector
	Max r3.Vector
}

// NewBox builds a box from any two opposite corners.
func NewBox(corner1, corner2 r3.Vector) Box {
	return Box{
		Min: r3.Vector{X: math.Min(corner1.X, corner2.X), Y: math.Min(corner1.Y, corner2.Y), Z: math.Min(corner1.Z, corner2.Z)},
		Max: r3.Vector{X: math.Max(corner1.X, corner2.X), Y: math.Max(corner1.Y, corner2.Y), Z: math.Max(corner1.Z, corner2.Z)},
	}
}

// Contains reports whether pt is inside the box. Points on a face are inside.
func (b Box) Contains(pt r3.Vector) bool {
	return pt.X >= b.Min.X && pt.X <= b.Max.X &&
		pt.Y >= b.Min.Y && pt.Y <= b.Max.Y &&
		pt.Z >= b.Min.Z && pt.Z <= b.Max.Z
}

// String encodes the box as "minX minY minZ maxX maxY maxZ".
func (b Box) String() string {
	return strings.Join([]string{
		formatFloat(b.Min.X), formatFloat(b.Min.Y), formatFloat(b.Min.Z),
		formatFloat(b.Max.X), formatFloat(b.Max.Y), formatFloat(b.Max.Z),
	}, " ")
}

// AnyContains reports whether any box contains pt, stopping at the first match.
func AnyContains(boxes []Box, pt r3.Vector) bool {
	for _, b := range boxes {
		if b.Contains(pt) {
			return true
		}
	}
	return false
}

// ParseBox decodes six space separated floats, two corners in any order.
func ParseBox(s string) (Box, error) {
	vals := spaceDelimitedStringToSlice(s)
	if len(vals) != 6 {
		return Box{}, errors.Errorf("keep-out volume %q must have 6 values, has %d", s, len(vals))
	}
	for _, v := range vals {
		if math.IsNaN(v) {
			return Box{}, errors.Errorf("keep-out volume %q has a non-numeric value", s)
		}
	}
	return NewBox(r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]}, r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]}), nil
}

// ParseBoxes decodes a list of encoded boxes.
func ParseBoxes(encoded []string) ([]Box, error) {
	boxes := make([]Box, 0, len(encoded))
	for i, s := range encoded {
		b, err := ParseBox(s)
		if err != nil {
			return nil, errors.Wrapf(err, "keep-out volume %d", i)
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

// EncodeBoxes is the inverse of ParseBoxes.
func EncodeBoxes(boxes []Box) []string {
	encoded := make([]string, 0, len(boxes))
	for _, b := range boxes {
		encoded = append(encoded, b.String())
	}
	return encoded
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func spaceDelimitedStringToSlice(s string) []float64 {
	var converted []float64
	for _, value := range strings.Fields(s) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			f = math.NaN()
		}
		converted = append(converted, f)
	}
	return converted
}

// VectorString formats a point for logs.
func VectorString(v r3.Vector) string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
