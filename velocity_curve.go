// velocity_curve.go - note-on velocity to gain mapping, spec.md §4.1
// "Velocity Curves".
//
// Grounded on original_source/minibae's velocity table generators
// (the miniBAE and "Peaky" S-curve tables referenced by spec.md §4.1):
// reimplemented as closed-form functions instead of the original's
// precomputed 128-entry tables, since a float64 curve evaluated once
// per note-on needs no lookup table in Go.

package bae

import "math"

// VelocityCurve names one of the curve shapes a bank or instrument may
// select (spec.md §4.1).
type VelocityCurve int

const (
	VelocityMiniBAES VelocityCurve = iota
	VelocityPeakyS
	VelocityWebTV
	VelocityExponential
	VelocityLinear
)

// ApplyVelocityCurve maps a MIDI velocity (0..127) to a gain in 0..1
// using the named curve. Every curve satisfies curve(0)==0,
// curve(127)==1, and is monotonically non-decreasing (spec.md §8).
func ApplyVelocityCurve(curve VelocityCurve, velocity int) float64 {
	v := clampI(velocity, 0, 127)
	x := float64(v) / 127

	switch curve {
	case VelocityMiniBAES:
		return sCurve(x, 3.0)
	case VelocityPeakyS:
		return sCurve(x, 6.0)
	case VelocityWebTV:
		// WebTV's table favours low velocities, approximated with a
		// square-root response.
		return math.Sqrt(x)
	case VelocityExponential:
		return exponentialCurve(x, 2.0)
	default: // VelocityLinear
		return x
	}
}

// sCurve is a logistic-style S shape normalised so that s(0)==0 and
// s(1)==1, steepened by k.
func sCurve(x, k float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	raw := 1 / (1 + math.Exp(-k*(x-0.5)))
	lo := 1 / (1 + math.Exp(-k*(0-0.5)))
	hi := 1 / (1 + math.Exp(-k*(1-0.5)))
	return (raw - lo) / (hi - lo)
}

// exponentialCurve raises x to a power > 1, biasing gain toward
// higher velocities (spec.md §4.1's "2x exponential").
func exponentialCurve(x, power float64) float64 {
	return math.Pow(x, power)
}
