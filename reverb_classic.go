// reverb_classic.go - the ten "classic" reverb presets, all sharing one
// delay network: pre-delay, four parallel combs, two series allpass
// filters, one damping low-pass on the wet tail.
//
// Grounded directly on the teacher's SoundChip reverb
// (_examples/IntuitionAmiga-IntuitionEngine/audio_chip.go:505-610 for
// the comb/allpass field layout, 1084-1155 for applyReverb itself):
// the per-sample loop below is that function with the arithmetic kept
// in float64 instead of float32 and the fixed REVERB_ATTENUATION
// replaced by a per-preset wetGain.

package bae

import "math"

// classicPreset is a reference-rate (44.1kHz) description of one
// preset's delay network. Actual delay-line lengths are scaled to the
// engine's sample rate at construction time.
type classicPreset struct {
	combDelays    [4]int
	combFeedback  [4]float64
	allpassDelays [2]int
	allpassCoef   float64
	dampingHz     float64
	wetGain       float64
}

// classicPresets mirrors the teacher's own comb/allpass constants
// (NewSoundChip's delay and decay arrays), varied per preset the way
// the miniBAE lineage names its rooms: small dry spaces get short
// delays and heavy damping, cavernous ones get long delays, heavy
// feedback and a dark damping filter.
var classicPresets = map[ReverbType]classicPreset{
	ReverbCloset: {
		combDelays:    [4]int{801, 919, 997, 1123},
		combFeedback:  [4]float64{0.42, 0.39, 0.36, 0.33},
		allpassDelays: [2]int{113, 163},
		allpassCoef:   0.5,
		dampingHz:     3500,
		wetGain:       0.12,
	},
	ReverbGarage: {
		combDelays:    [4]int{1116, 1277, 1401, 1553},
		combFeedback:  [4]float64{0.55, 0.52, 0.49, 0.46},
		allpassDelays: [2]int{131, 191},
		allpassCoef:   0.5,
		dampingHz:     3200,
		wetGain:       0.18,
	},
	ReverbAcousticLab: {
		combDelays:    [4]int{1557, 1617, 1491, 1422},
		combFeedback:  [4]float64{0.6, 0.58, 0.55, 0.53},
		allpassDelays: [2]int{225, 556},
		allpassCoef:   0.5,
		dampingHz:     5000,
		wetGain:       0.22,
	},
	ReverbSmallReflections: {
		combDelays:    [4]int{689, 743, 821, 877},
		combFeedback:  [4]float64{0.3, 0.28, 0.26, 0.24},
		allpassDelays: [2]int{89, 127},
		allpassCoef:   0.5,
		dampingHz:     6000,
		wetGain:       0.1,
	},
	ReverbEarlyReflections: {
		combDelays:    [4]int{449, 523, 607, 661},
		combFeedback:  [4]float64{0.2, 0.18, 0.16, 0.14},
		allpassDelays: [2]int{59, 97},
		allpassCoef:   0.5,
		dampingHz:     7500,
		wetGain:       0.15,
	},
	ReverbBasement: {
		combDelays:    [4]int{1789, 1901, 1663, 2017},
		combFeedback:  [4]float64{0.62, 0.59, 0.57, 0.54},
		allpassDelays: [2]int{241, 367},
		allpassCoef:   0.5,
		dampingHz:     2400,
		wetGain:       0.25,
	},
	ReverbBanquetHall: {
		combDelays:    [4]int{2205, 2381, 2557, 2741},
		combFeedback:  [4]float64{0.7, 0.68, 0.65, 0.63},
		allpassDelays: [2]int{317, 433},
		allpassCoef:   0.5,
		dampingHz:     4200,
		wetGain:       0.3,
	},
	ReverbCavern: {
		combDelays:    [4]int{3217, 3571, 3919, 4273},
		combFeedback:  [4]float64{0.78, 0.76, 0.74, 0.72},
		allpassDelays: [2]int{431, 601},
		allpassCoef:   0.5,
		dampingHz:     1800,
		wetGain:       0.38,
	},
	ReverbDungeon: {
		combDelays:    [4]int{2687, 2953, 3229, 3511},
		combFeedback:  [4]float64{0.74, 0.72, 0.7, 0.68},
		allpassDelays: [2]int{379, 523},
		allpassCoef:   0.5,
		dampingHz:     1500,
		wetGain:       0.34,
	},
	ReverbCatacombs: {
		combDelays:    [4]int{4051, 4409, 4721, 5087},
		combFeedback:  [4]float64{0.8, 0.78, 0.76, 0.74},
		allpassDelays: [2]int{487, 641},
		allpassCoef:   0.5,
		dampingHz:     1200,
		wetGain:       0.4,
	},
}

// classicReverbPreDelayMs matches the teacher's fixed 8ms pre-delay
// buffer (audio_chip.go's preDelayBuf sizing).
const classicReverbPreDelayMs = 8

type classicComb struct {
	buf      []float64
	pos      int
	feedback float64
}

func (c *classicComb) step(in float64) float64 {
	delayed := c.buf[c.pos]
	out := in + delayed*c.feedback
	if math.Abs(out) < silenceThreshold {
		out = 0
	}
	c.buf[c.pos] = out
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return delayed
}

type classicAllpass struct {
	buf  []float64
	pos  int
	coef float64
}

func (a *classicAllpass) step(in float64) float64 {
	delayed := a.buf[a.pos]
	a.buf[a.pos] = in + delayed*a.coef
	out := delayed - in
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

type classicReverb struct {
	preDelay    []float64
	preDelayPos int
	combs       [4]classicComb
	allpass     [2]classicAllpass
	dampState   float64
	dampCoef    float64
	wetGain     float64
}

func newClassicReverb(typ ReverbType, sampleRate int) *classicReverb {
	preset, ok := classicPresets[typ]
	if !ok {
		preset = classicPresets[ReverbCloset]
	}
	scale := float64(sampleRate) / 44100

	r := &classicReverb{
		wetGain: preset.wetGain,
		dampCoef: math.Exp(-2 * math.Pi * preset.dampingHz / float64(sampleRate)),
	}
	r.preDelay = make([]float64, maxInt(int(classicReverbPreDelayMs*float64(sampleRate)/1000), 1))
	for i := range r.combs {
		n := maxInt(int(math.Round(float64(preset.combDelays[i])*scale)), 1)
		r.combs[i] = classicComb{buf: make([]float64, n), feedback: clampF64(preset.combFeedback[i], 0, maxCombFeedback)}
	}
	for i := range r.allpass {
		n := maxInt(int(math.Round(float64(preset.allpassDelays[i])*scale)), 1)
		r.allpass[i] = classicAllpass{buf: make([]float64, n), coef: preset.allpassCoef}
	}
	return r
}

// Process implements Reverb. Per-sample flow: pre-delay, four parallel
// combs summed, two series allpass stages, then a one-pole damping
// filter and the preset's wet gain. Mono tail duplicated to both
// channels, matching the teacher's single-accumulator reverb bus.
func (r *classicReverb) Process(send, wetL, wetR []float64) {
	for i, in := range send {
		delayed := r.preDelay[r.preDelayPos]
		r.preDelay[r.preDelayPos] = in
		r.preDelayPos++
		if r.preDelayPos >= len(r.preDelay) {
			r.preDelayPos = 0
		}

		var out float64
		for c := range r.combs {
			out += r.combs[c].step(delayed)
		}
		for a := range r.allpass {
			out = r.allpass[a].step(out)
		}

		r.dampState = r.dampState*r.dampCoef + out*(1-r.dampCoef)
		wet := r.dampState * r.wetGain
		if math.Abs(wet) < silenceThreshold {
			wet = 0
		}
		wetL[i] = wet
		wetR[i] = wet
	}
}
