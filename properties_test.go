// properties_test.go - property-based laws from spec.md §8, run with
// pgregory.net/rapid the way doismellburning/samoyed's
// src/fx25_send_test.go drives bitStuff: generate inputs across the
// parameter space instead of a handful of fixed examples.

package bae

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Every velocity curve must satisfy curve(0)==0, curve(127)==max, and
// monotonic non-decrease across the whole 0..127 range (spec.md §8).
func TestVelocityCurve_MonotonicAndBounded(t *testing.T) {
	curves := []VelocityCurve{
		VelocityMiniBAES, VelocityPeakyS, VelocityWebTV,
		VelocityExponential, VelocityLinear,
	}

	rapid.Check(t, func(t *rapid.T) {
		curve := curves[rapid.IntRange(0, len(curves)-1).Draw(t, "curve")]

		require.Equal(t, 0.0, ApplyVelocityCurve(curve, 0))
		require.InDelta(t, 1.0, ApplyVelocityCurve(curve, 127), 1e-9)

		a := rapid.IntRange(0, 126).Draw(t, "a")
		b := rapid.IntRange(a+1, 127).Draw(t, "b")
		require.LessOrEqual(t, ApplyVelocityCurve(curve, a), ApplyVelocityCurve(curve, b))
	})
}

// Out-of-range velocities must clamp into 0..127 rather than panic or
// extrapolate past the curve's bounds.
func TestVelocityCurve_ClampsOutOfRangeVelocity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.IntRange(-1000, 1000).Draw(t, "velocity")
		got := ApplyVelocityCurve(VelocityLinear, v)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
	})
}

// Any Neo comb feedback coefficient the MIDI-range setter can produce
// stays strictly below 1.0 (spec.md §3's reverb invariant).
func TestNeoCombReverb_FeedbackAlwaysBelowOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := newNeoCombReverb(ReverbNeoRoom, 44100)
		midi := rapid.IntRange(0, 127).Draw(t, "feedbackMidi")
		r.SetCombFeedbackMidi(0, midi)
		r.rebuild()
		require.Less(t, r.combs[0].feedback, 1.0)
	})
}

// With silence on the send bus, the comb reverb's wet output must
// decay to exactly zero within a bounded number of blocks, never
// ringing forever on denormal tails (spec.md §8 scenario 5).
func TestNeoCombReverb_SilenceConvergesToExactZero(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		typ := []ReverbType{ReverbNeoRoom, ReverbNeoHall, ReverbNeoCavern, ReverbNeoDungeon}[rapid.IntRange(0, 3).Draw(t, "type")]
		r := newNeoCombReverb(typ, 44100)

		const blockLen = 64
		send := make([]float64, blockLen)
		wetL := make([]float64, blockLen)
		wetR := make([]float64, blockLen)

		// One impulse block, then pure silence.
		send[0] = 1.0
		r.Process(send, wetL, wetR)
		for i := range send {
			send[i] = 0
		}

		maxComb := 0
		for _, c := range r.combs[:r.combCount] {
			if cap(c.buf) > maxComb {
				maxComb = cap(c.buf)
			}
		}
		maxBlocks := (5*maxComb)/blockLen + 2

		converged := false
		for b := 0; b < maxBlocks; b++ {
			r.Process(send, wetL, wetR)
			allZero := true
			for i := range wetL {
				if wetL[i] != 0 || wetR[i] != 0 {
					allZero = false
					break
				}
			}
			if allZero {
				converged = true
				break
			}
		}
		require.True(t, converged, "reverb wet output did not converge to exact zero within %d blocks", maxBlocks)
	})
}

// Round-trip law: a custom reverb preset survives marshal->unmarshal
// with no drift in any field, for arbitrary valid parameter values
// (spec.md §8).
func TestNeoPresetRoundTrip_ArbitraryValues(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var p NeoCustomPreset
		p.Name = rapid.StringMatching(`[A-Za-z0-9 ]{0,16}`).Draw(t, "name")
		p.CombCount = rapid.IntRange(1, maxNeoCombs).Draw(t, "combCount")
		// Only active combs are part of a preset; the rest stay zero.
		for i := 0; i < p.CombCount; i++ {
			p.DelaysMs[i] = rapid.IntRange(1, 500).Draw(t, "delayMs")
			p.FeedbackMidi[i] = rapid.IntRange(0, 127).Draw(t, "feedbackMidi")
			p.GainMidi[i] = rapid.IntRange(0, 127).Draw(t, "gainMidi")
		}
		p.LowpassMidi = rapid.IntRange(0, 127).Draw(t, "lowpassMidi")
		p.WetMixMidi = rapid.IntRange(0, 127).Draw(t, "wetMixMidi")

		data, err := MarshalNeoPreset(p)
		require.NoError(t, err)
		roundTripped, err := UnmarshalNeoPreset(data)
		require.NoError(t, err)
		require.Equal(t, p, roundTripped)
	})
}

// Idempotence: a second NoteOff on an already-released (song, ch,
// note) does not change the live voice count (spec.md §8).
func TestVoicePool_NoteOffIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := NewVoicePool(8)
		ch := NewChannel(0)
		sample := &Sample{
			PCM:        make([]int16, 4410),
			Channels:   1,
			FrameCount: 4410,
			SampleRate: 44100,
			RootPitch:  60,
		}
		leaf := &InstrumentLeaf{
			ADSRStages: []ADSRStage{
				{TargetLevel: VolumeRange, DurationTicks: 100, Flag: FlagSustainUntilNoteOff},
				{TargetLevel: 0, DurationTicks: 100, Flag: FlagTerminate},
			},
		}
		songVol := newAtomicFloat64(1)
		songSend := newAtomicFloat64(0)

		note := rapid.IntRange(0, 127).Draw(t, "note")
		_, err := pool.Allocate(0, ch, note, 100, sample, leaf, 44100, 0, 220, songVol, songSend)
		require.NoError(t, err)

		pool.NoteOff(ch, note)
		before := pool.ActiveCount()
		pool.NoteOff(ch, note)
		after := pool.ActiveCount()
		require.Equal(t, before, after, "a repeated NoteOff must not change the live voice count")
	})
}
