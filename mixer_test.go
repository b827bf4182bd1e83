package bae

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// constSound is a fixed-amplitude mono Sound used to drive Mixer tests
// without needing a real decoder.
type constSound struct {
	amplitude float32
	frames    int
	pos       int
	rate      int
}

func (s *constSound) Fill(out []float32) (int, FillStatus) {
	n := 0
	for n < len(out) && s.pos < s.frames {
		out[n] = s.amplitude
		n++
		s.pos++
	}
	if s.pos >= s.frames {
		return n, FillDone
	}
	return n, FillOK
}

func (s *constSound) Channels() int   { return 1 }
func (s *constSound) SampleRate() int { return s.rate }
func (s *constSound) Reset()          { s.pos = 0 }

func openTestMixer(t *testing.T) *Mixer {
	t.Helper()
	m, err := Open(Config{
		SampleRate:     44100,
		Channels:       2,
		FramesPerBlock: 64,
		MaxSongVoices:  8,
		MaxSoundVoices: 4,
		MasterVolume:   1,
		ReverbType:     ReverbNone,
	})
	require.NoError(t, err)
	return m
}

func TestRenderBlock_SilentWithNoActiveSources(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	out := make([]int16, 64*2)
	for i := range out {
		out[i] = 1234 // poison, so we can tell RenderBlock actually wrote zeros
	}
	m.RenderBlock(out)
	for i, v := range out {
		require.Equal(t, int16(0), v, "sample %d should be silent", i)
	}
}

func TestRenderBlock_SoundPlayerContributesAudio(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	sp, err := m.CreateSound(&constSound{amplitude: 0.5, frames: 1000, rate: 44100}, 1.0, 0)
	require.NoError(t, err)
	sp.Start()

	out := make([]int16, 64*2)
	m.RenderBlock(out)

	var nonZero bool
	for _, v := range out {
		if v != 0 {
			nonZero = true
			break
		}
	}
	require.True(t, nonZero, "a playing SoundPlayer should produce non-silent output")
}

func TestRenderBlock_MasterMuteSilencesEverything(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	sp, err := m.CreateSound(&constSound{amplitude: 1.0, frames: 1000, rate: 44100}, 1.0, 0)
	require.NoError(t, err)
	sp.Start()
	m.SetMasterMute(true)

	out := make([]int16, 64*2)
	m.RenderBlock(out)
	for _, v := range out {
		require.Equal(t, int16(0), v)
	}
}

func TestCreateSound_RespectsMaxSoundVoices(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	for i := 0; i < 4; i++ {
		_, err := m.CreateSound(&constSound{amplitude: 0.1, frames: 100, rate: 44100}, 1, 0)
		require.NoError(t, err)
	}
	_, err := m.CreateSound(&constSound{amplitude: 0.1, frames: 100, rate: 44100}, 1, 0)
	require.Error(t, err)
	require.True(t, IsKind(err, KindNoVoice))
}

func TestSoundPlayer_StopEndsPlayback(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	sp, err := m.CreateSound(&constSound{amplitude: 1.0, frames: 1000, rate: 44100}, 1, 0)
	require.NoError(t, err)
	sp.Start()
	sp.Stop()

	l, r, send := sp.renderFrame()
	require.Equal(t, 0.0, l)
	require.Equal(t, 0.0, r)
	require.Equal(t, 0.0, send)
}

func TestFloatToInt16_Clamps(t *testing.T) {
	require.Equal(t, int16(32767), floatToInt16(10))
	require.Equal(t, int16(-32768), floatToInt16(-10))
	require.Equal(t, int16(0), floatToInt16(0))
}
