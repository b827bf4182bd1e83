package bae

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReverb_NoneIsNil(t *testing.T) {
	r := NewReverb(ReverbNone, 44100, 512)
	require.Nil(t, r)
}

func TestNewReverb_EveryTypeProducesOutput(t *testing.T) {
	types := []ReverbType{
		ReverbCloset, ReverbGarage, ReverbAcousticLab, ReverbCavern, ReverbDungeon,
		ReverbSmallReflections, ReverbEarlyReflections, ReverbBasement, ReverbBanquetHall,
		ReverbCatacombs, ReverbNeoRoom, ReverbNeoHall, ReverbNeoCavern, ReverbNeoDungeon,
		ReverbNeoTapDelay, ReverbNeoCustom,
	}
	// Every backend delays its first output (classic pre-delay plus comb,
	// Neo comb delay, Neo first tap at ~100ms), so the buffer must be
	// longer than the longest of those.
	for _, typ := range types {
		r := NewReverb(typ, 44100, 8192)
		require.NotNil(t, r, "type %d", typ)

		send := make([]float64, 8192)
		send[0] = 1.0
		wetL := make([]float64, 8192)
		wetR := make([]float64, 8192)
		r.Process(send, wetL, wetR)

		var energy float64
		for i := range wetL {
			energy += math.Abs(wetL[i]) + math.Abs(wetR[i])
		}
		require.Greater(t, energy, 0.0, "reverb type %d produced silence for an impulse", typ)
	}
}

func TestNeoRoomReverb_TailDecays(t *testing.T) {
	r := NewReverb(ReverbNeoRoom, 44100, 4096)
	send := make([]float64, 4096)
	send[0] = 1.0
	wetL := make([]float64, 4096)
	wetR := make([]float64, 4096)
	r.Process(send, wetL, wetR)

	// The Room combs' first echoes arrive at ~1014 and ~1279 frames, so
	// the early window starts after the first comb delay.
	var early, late float64
	for i := 1024; i < 1536; i++ {
		early += math.Abs(wetL[i])
	}
	for i := 3584; i < 4096; i++ {
		late += math.Abs(wetL[i])
	}
	require.Less(t, late, early, "reverb tail should decay toward silence, not grow or sustain")
}

func TestMidiHelpers_Monotonic(t *testing.T) {
	require.Less(t, midiToHz(0), midiToHz(127))
	require.Less(t, midiToUnit(0), midiToUnit(127))
	require.InDelta(t, 0.0, midiToUnit(0), 1e-9)
	require.InDelta(t, 1.0, midiToUnit(127), 1e-9)
	require.Less(t, midiToFeedback(127), maxCombFeedback+1e-9)
	require.GreaterOrEqual(t, midiToFeedback(127), 0.0)
}
