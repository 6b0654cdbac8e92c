// Package motionplan scales per-joint speeds so a coordinated move finishes on every joint together.
package motionplan

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// SpeedFractions returns, per joint, the fraction of its full speed that makes every
// joint travel for the same time: delta/maxDelta, or 1 for a joint that does not move.
// When no joint moves every fraction is 1.
func SpeedFractions(targets, current []float64) ([]float64, error) {
	if len(targets) != len(current) {
		return nil, errors.Errorf("have %d targets but %d current angles", len(targets), len(current))
	}

	deltas := lo.Map(targets, func(target float64, i int) float64 {
		return math.Abs(target - current[i])
	})
	maxDelta := lo.Max(deltas)

	return lo.Map(deltas, func(delta float64, _ int) float64 {
		if delta == 0 || maxDelta == 0 {
			return 1
		}
		return delta / maxDelta
	}), nil
}
