package bae

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeoCombReverb_SetterMarksDirtyAndRebuildsLazily(t *testing.T) {
	r := newNeoCombReverb(ReverbNeoRoom, 44100)
	require.False(t, r.dirty.Load())

	r.SetCombCount(3)
	require.True(t, r.dirty.Load(), "a setter must raise the dirty flag rather than rebuild inline")
	require.Equal(t, 2, r.combCount, "live comb count must not change until the next Process call")

	send := make([]float64, 4)
	wetL := make([]float64, 4)
	wetR := make([]float64, 4)
	r.Process(send, wetL, wetR)

	require.False(t, r.dirty.Load())
	require.Equal(t, 3, r.combCount)
}

func TestNeoCombReverb_GrowingDelayNeverReallocatesBuffer(t *testing.T) {
	r := newNeoCombReverb(ReverbNeoRoom, 44100)
	originalCap := cap(r.combs[0].buf)

	r.SetCombDelayMs(0, 400) // under the 500ms cap, should fit the preallocated buffer
	send := make([]float64, 8)
	wetL := make([]float64, 8)
	wetR := make([]float64, 8)
	r.Process(send, wetL, wetR)

	require.Equal(t, originalCap, cap(r.combs[0].buf), "comb buffers must be fixed-capacity; rebuild only adjusts activeLen")
}

func TestNeoCombReverb_FeedbackNeverReachesOrExceedsOne(t *testing.T) {
	r := newNeoCombReverb(ReverbNeoRoom, 44100)
	r.SetCombFeedbackMidi(0, 127)
	r.rebuild()
	require.Less(t, r.combs[0].feedback, 1.0)
	require.LessOrEqual(t, r.combs[0].feedback, maxCombFeedback)
}

func TestNeoCombReverb_ConfigRoundTripsThroughLoadConfig(t *testing.T) {
	r := newNeoCombReverb(ReverbNeoHall, 44100)
	original := r.Config()

	other := newNeoCombReverb(ReverbNeoCavern, 44100)
	other.LoadConfig(original)
	require.Equal(t, original, other.Config())
}
