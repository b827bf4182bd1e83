// filter.go - per-voice low-pass filtering, spec.md §3 "Filter".
//
// Grounded on the teacher's CombFilter coefficient update in
// audio_chip.go (recomputing a feedback coefficient from a cutoff-like
// parameter once per block rather than per sample): the same
// recompute-on-change discipline, applied here to a one-pole or
// biquad low-pass instead of a comb.

package bae

import "math"

// FilterKind selects the low-pass topology an instrument declares.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterOnePole
	FilterBiquad
)

// Filter is a per-voice low-pass filter with a modulatable cutoff
// (driven by LFODestFilterCutoff and/or the filter envelope).
type Filter struct {
	Kind       FilterKind
	Resonance  float64 // biquad Q, ignored by FilterOnePole
	sampleRate int

	cutoffHz float64

	// one-pole state, indexed by output channel (0=left/mono, 1=right)
	// so a stereo voice doesn't share one pole's memory across ears.
	onePoleState [2]float64

	// biquad state (Direct Form I) and cached coefficients, likewise
	// per output channel.
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [2]float64
}

// NewFilter constructs a Filter for the given topology.
func NewFilter(kind FilterKind, resonance float64, sampleRate int) *Filter {
	f := &Filter{Kind: kind, Resonance: resonance, sampleRate: sampleRate}
	f.SetCutoff(float64(sampleRate) / 2)
	return f
}

// SetCutoff recomputes the filter's coefficients for a new cutoff
// frequency. Cheap enough to call once per block when modulated by an
// LFO or envelope (spec.md §4.2.3), not required per-sample.
func (f *Filter) SetCutoff(hz float64) {
	if hz < 20 {
		hz = 20
	}
	nyquist := float64(f.sampleRate) / 2
	if hz > nyquist {
		hz = nyquist
	}
	f.cutoffHz = hz

	switch f.Kind {
	case FilterOnePole:
		x := math.Exp(-2 * math.Pi * hz / float64(f.sampleRate))
		f.a1 = x
		f.b0 = 1 - x
	case FilterBiquad:
		f.setBiquadCoeffs(hz)
	}
}

func (f *Filter) setBiquadCoeffs(hz float64) {
	q := f.Resonance
	if q <= 0 {
		q = 0.707
	}
	w0 := 2 * math.Pi * hz / float64(f.sampleRate)
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)
	alpha := sinW0 / (2 * q)

	b0 := (1 - cosW0) / 2
	b1 := 1 - cosW0
	b2 := (1 - cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	f.b0 = b0 / a0
	f.b1 = b1 / a0
	f.b2 = b2 / a0
	f.a1 = a1 / a0
	f.a2 = a2 / a0
}

// Process filters one sample belonging to output channel ch (0 or 1),
// keeping that channel's filter memory independent of its sibling.
func (f *Filter) Process(ch int, in float64) float64 {
	switch f.Kind {
	case FilterOnePole:
		f.onePoleState[ch] = f.b0*in + f.a1*f.onePoleState[ch]
		return f.onePoleState[ch]
	case FilterBiquad:
		out := f.b0*in + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
		f.x2[ch], f.x1[ch] = f.x1[ch], in
		f.y2[ch], f.y1[ch] = f.y1[ch], out
		return out
	default:
		return in
	}
}

// Reset clears filter memory. Voices build a fresh Filter on every
// trigger, so voice re-allocation does not go through Reset.
func (f *Filter) Reset() {
	f.onePoleState = [2]float64{}
	f.x1, f.x2, f.y1, f.y2 = [2]float64{}, [2]float64{}, [2]float64{}, [2]float64{}
}
