// reverb_neo_tap.go - the Neo tap-delay reverb backend, spec.md
// §4.4.3: a single long delay line read at four fixed taps with
// descending gain, rather than the classic comb/allpass network.
//
// No teacher file does this; the single-line/multi-tap structure is
// authored from spec.md's own description, keeping the denormal
// killer and one-pole damping idiom the classic backend uses so the
// two backends read as siblings rather than unrelated code.

package bae

import "math"

// neoTapDelaysRef gives each tap's delay in frames at the 44.1kHz
// reference rate (spec.md §4.4.3's four fixed tap positions).
var neoTapDelaysRef = [neoTapCount]int{4410, 8820, 13230, 17640}

// neoTapGains is the descending per-tap gain table.
var neoTapGains = [neoTapCount]float64{1.0, 0.8, 0.6, 0.4}

const neoTapDampingHz = 6000
const neoTapWetGain = 0.5

type neoTapReverb struct {
	buf       []float64
	writePos  int
	tapDelays [neoTapCount]int
	dampState float64
	dampCoef  float64
	wetGain   float64
}

func newNeoTapReverb(sampleRate int) *neoTapReverb {
	scale := float64(sampleRate) / 44100
	size := maxInt(int(math.Round(float64(neoTapDelaysRef[neoTapCount-1]+256)*scale)), 1)
	r := &neoTapReverb{
		buf:      make([]float64, size),
		dampCoef: math.Exp(-2 * math.Pi * neoTapDampingHz / float64(sampleRate)),
		wetGain:  neoTapWetGain,
	}
	for i, d := range neoTapDelaysRef {
		n := int(math.Round(float64(d) * scale))
		r.tapDelays[i] = clampI(n, 1, size-1)
	}
	return r
}

// Process implements Reverb: write the input into the delay line, read
// back each tap, sum with its gain, damp and attenuate.
func (r *neoTapReverb) Process(send, wetL, wetR []float64) {
	n := len(r.buf)
	for i, in := range send {
		r.buf[r.writePos] = in

		var out float64
		for t, delay := range r.tapDelays {
			idx := r.writePos - delay
			for idx < 0 {
				idx += n
			}
			out += r.buf[idx] * neoTapGains[t]
		}

		r.dampState = r.dampState*r.dampCoef + out*(1-r.dampCoef)
		wet := r.dampState * r.wetGain
		if math.Abs(wet) < silenceThreshold {
			wet = 0
		}
		wetL[i] = wet
		wetR[i] = wet

		r.writePos++
		if r.writePos >= n {
			r.writePos = 0
		}
	}
}
