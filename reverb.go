// reverb.go - reverb type enum, the Reverb dispatch interface, and the
// factory that builds one of the three backends spec.md §4.4.3
// describes (classic delay network, Neo tap-delay, Neo parallel-comb).
//
// Grounded on the teacher's applyReverb/CombFilter (audio_chip.go:
// 513-524, 1091-1154): a classic Schroeder network of parallel combs
// feeding series allpass stages. reverb_classic.go keeps that shape
// almost unchanged and table-drives it across ten presets;
// reverb_neo_comb.go and reverb_neo_tap.go implement spec.md's two
// additional "Neo" backends the teacher has no equivalent for, so they
// are authored directly from spec.md §4.4.3.

package bae

import "math"

// ReverbType selects which preset/backend the Mixer's reverb unit runs
// (spec.md §4.4.3).
type ReverbType int

const (
	ReverbNone ReverbType = iota
	ReverbCloset
	ReverbGarage
	ReverbAcousticLab
	ReverbCavern
	ReverbDungeon
	ReverbSmallReflections
	ReverbEarlyReflections
	ReverbBasement
	ReverbBanquetHall
	ReverbCatacombs
	ReverbNeoRoom
	ReverbNeoHall
	ReverbNeoCavern
	ReverbNeoDungeon
	ReverbNeoTapDelay
	ReverbNeoCustom
)

// maxNeoCombs bounds the Neo comb backend's parallel comb count
// (spec.md §3 "MAX_NEO_COMBS=4").
const maxNeoCombs = 4

// neoTapCount is the fixed number of read taps the tap-delay backend
// uses (spec.md §4.4.3 "NEO_TAP_COUNT").
const neoTapCount = 4

// neoSilenceThresholdRaw is the int16-domain denormal killer threshold
// from spec.md §3's Reverb Parameters invariant ("|sample| < 8 -> 0").
// silenceThreshold is the same threshold expressed in this engine's
// -1..1 float domain, used by every reverb backend in this file's
// siblings.
const neoSilenceThresholdRaw = 8

var silenceThreshold = float64(neoSilenceThresholdRaw) / 32768

// maxCombFeedback is the hard feedback ceiling spec.md §3 requires
// ("clamped strictly below 1.0; the engine uses <= ~0.85").
const maxCombFeedback = 0.85

// Reverb is the mono-send -> stereo-wet unit the Mixer calls once per
// block (spec.md §4.4.2 step 4). Implementations own their own scratch
// buffers; wetL/wetR are caller-owned and sized to the block, so no
// backend allocates on the hot path.
type Reverb interface {
	Process(send, wetL, wetR []float64)
}

// NewReverb builds the Reverb backend for typ, sized for sampleRate
// (spec.md §9: delay-line lengths are "recomputed as round(ref_frames
// * sample_rate / 44100)" relative to a 44.1kHz reference). Returns nil
// for ReverbNone, in which case the Mixer skips step 4 entirely.
func NewReverb(typ ReverbType, sampleRate, framesPerBlock int) Reverb {
	switch typ {
	case ReverbNone:
		return nil
	case ReverbNeoTapDelay:
		return newNeoTapReverb(sampleRate)
	case ReverbNeoRoom, ReverbNeoHall, ReverbNeoCavern, ReverbNeoDungeon, ReverbNeoCustom:
		return newNeoCombReverb(typ, sampleRate)
	default:
		return newClassicReverb(typ, sampleRate)
	}
}

// midiToHz maps a 0..127 MIDI-style control value to a damping cutoff
// frequency, logarithmically from 200Hz (dark) to 12kHz (bright),
// matching the "_midi" unit spec.md's Neo comb setters use for
// everything except delay (which is milliseconds).
func midiToHz(midi int) float64 {
	midi = clampI(midi, 0, 127)
	const lo, hi = 200.0, 12000.0
	t := float64(midi) / 127
	return lo * math.Pow(hi/lo, t)
}

// midiToUnit maps 0..127 linearly to 0..1, used for gain and wet-mix
// "_midi" fields.
func midiToUnit(midi int) float64 {
	return float64(clampI(midi, 0, 127)) / 127
}

// midiToFeedback maps 0..127 linearly to 0..maxCombFeedback.
func midiToFeedback(midi int) float64 {
	return midiToUnit(midi) * maxCombFeedback
}
