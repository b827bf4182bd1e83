package bae

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeoPresetRoundTrip_NoDrift(t *testing.T) {
	original := NeoCustomPreset{
		Name:         "Test Chamber",
		CombCount:    4,
		DelaysMs:     [maxNeoCombs]int{23, 29, 37, 41},
		FeedbackMidi: [maxNeoCombs]int{60, 65, 70, 75},
		GainMidi:     [maxNeoCombs]int{100, 95, 90, 85},
		LowpassMidi:  80,
		WetMixMidi:   40,
	}

	data, err := MarshalNeoPreset(original)
	require.NoError(t, err)

	roundTripped, err := UnmarshalNeoPreset(data)
	require.NoError(t, err)
	require.Equal(t, original, roundTripped)

	// Re-marshal and re-parse once more: the law is that this converges,
	// not just that one pass survives.
	data2, err := MarshalNeoPreset(roundTripped)
	require.NoError(t, err)
	require.Equal(t, data, data2)
}

func TestNeoPresetRoundTrip_ViaReverbConfig(t *testing.T) {
	r := newNeoCombReverb(ReverbNeoDungeon, 44100)
	saved := neoCustomPresetFromConfig("Dungeon Snapshot", r.Config())

	data, err := MarshalNeoPreset(saved)
	require.NoError(t, err)

	loaded, err := UnmarshalNeoPreset(data)
	require.NoError(t, err)

	r2 := newNeoCombReverb(ReverbNeoRoom, 44100)
	r2.LoadConfig(loaded.toConfig())
	require.Equal(t, r.Config(), r2.Config())
}

func TestUnmarshalNeoPreset_ClampsOutOfRangeFields(t *testing.T) {
	p, err := UnmarshalNeoPreset([]byte(`<neoreverb version="1">
		<name>Bad</name>
		<combCount>99</combCount>
		<lowpass>200</lowpass>
		<wetMix>-5</wetMix>
		<comb index="0" delayMs="10" feedback="200" gain="-1"/>
	</neoreverb>`))
	require.NoError(t, err)
	require.Equal(t, maxNeoCombs, p.CombCount)
	require.Equal(t, 127, p.LowpassMidi)
	require.Equal(t, 0, p.WetMixMidi)
	require.Equal(t, 127, p.FeedbackMidi[0])
	require.Equal(t, 0, p.GainMidi[0])
}
