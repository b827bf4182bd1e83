// song_test.go - the concrete end-to-end scenarios spec.md §8 names,
// driven through the real Mixer/Song/VoicePool pipeline rather than
// unit-testing any one piece in isolation.

package bae

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newInertStream returns an EventStream that fires one no-op event far
// in the future, so a Song built on it never reaches EventEndOfTrack
// during a short test — only live-injected events (NoteOn/NoteOff/
// Controller/ProgramChange) drive it.
func newInertStream() EventStream {
	return newSliceEventStream([]scheduledEvent{
		{delta: 100_000_000, event: Event{Kind: EventChannelPressure}},
	})
}

// buildPianoKickBank returns a Bank with one melodic GM-piano-like
// instrument at (bank 0, program 0) and one non-looping percussion
// instrument at note 36 (kick), for the scenarios in spec.md §8.
func buildPianoKickBank() *Bank {
	falseVal := false

	pianoSample := Sample{
		PCM:        constPCM(20000, 8820), // 200ms @ 44100, loops
		Channels:   1,
		FrameCount: 8820,
		SampleRate: 44100,
		RootPitch:  60,
		LoopStart:  0,
		LoopEnd:    8820,
	}
	kickSample := Sample{
		PCM:        constPCM(20000, 4410), // 100ms @ 44100, no loop
		Channels:   1,
		FrameCount: 4410,
		SampleRate: 44100,
		RootPitch:  36,
	}

	piano := &Instrument{
		Name: "GM Piano",
		Default: &InstrumentLeaf{
			Sample: SampleRef{index: 0},
			ADSRStages: []ADSRStage{
				{TargetLevel: VolumeRange, DurationTicks: 100, Flag: FlagLinearRamp},
				{TargetLevel: VolumeRange * 7 / 10, DurationTicks: 200, Flag: FlagLinearRamp},
				{TargetLevel: VolumeRange * 7 / 10, DurationTicks: 0, Flag: FlagSustainUntilNoteOff},
			},
			VelocityCurve: VelocityLinear,
		},
	}
	kick := &Instrument{
		Name: "Kick",
		Default: &InstrumentLeaf{
			Sample: SampleRef{index: 1},
			ADSRStages: []ADSRStage{
				{TargetLevel: VolumeRange, DurationTicks: 50, Flag: FlagLinearRamp},
				{TargetLevel: VolumeRange * 5 / 10, DurationTicks: 100, Flag: FlagLinearRamp},
				{TargetLevel: VolumeRange * 5 / 10, DurationTicks: 0, Flag: FlagSustainUntilNoteOff},
			},
			VelocityCurve:    VelocityLinear,
			PlayAtSampleRate: true,
			LoopOverride:     &falseVal,
		},
	}

	return &Bank{
		Format:      BankFormatNative,
		Samples:     []Sample{pianoSample, kickSample},
		Instruments: map[instrumentKey]*Instrument{{BankMSB: 0, BankLSB: 0, Program: 0}: piano},
		Percussion:  map[int]*Instrument{36: kick},
	}
}

func constPCM(value int16, frames int) []int16 {
	pcm := make([]int16, frames)
	for i := range pcm {
		pcm[i] = value
	}
	return pcm
}

// loadTestBank registers bank directly into cache's bank table,
// bypassing the file-format parsers (bank_native.go/bank_dls.go/
// bank_sf2.go) that scenario tests don't need to exercise.
func loadTestBank(cache *SampleCache, bank *Bank) BankToken {
	tok := newBankToken()
	bank.assignToken(tok)
	cache.mu.Lock()
	cache.banks[tok] = bank
	cache.mu.Unlock()
	return tok
}

func blocksFor(seconds float64, sampleRate, framesPerBlock int) int {
	frames := int(seconds * float64(sampleRate))
	return frames/framesPerBlock + 1
}

// Scenario 1 (spec.md §8): GM Piano note sustains above 10% full scale,
// then after note-off the final 100ms settles below 0.1% full scale.
func TestSong_GMPianoNote_SustainThenRelease(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	tok := loadTestBank(m.Cache(), buildPianoKickBank())
	song := m.CreateSong(newInertStream(), tok, 480, LoopInfinite)
	song.Start()
	song.NoteOn(0, 60, 100)

	const blockFrames = 64
	out := make([]int16, blockFrames*2)

	var peak int16
	for i := 0; i < blocksFor(0.5, 44100, blockFrames); i++ {
		m.RenderBlock(out)
		for _, v := range out {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	require.Greater(t, float64(peak)/32768, 0.10, "peak output during sustain should exceed 10%% of full scale")

	song.NoteOff(0, 60, 0)
	for i := 0; i < blocksFor(0.9, 44100, blockFrames); i++ {
		m.RenderBlock(out)
	}

	var sum float64
	var count int
	for i := 0; i < blocksFor(0.1, 44100, blockFrames); i++ {
		m.RenderBlock(out)
		for _, v := range out {
			av := float64(v)
			if av < 0 {
				av = -av
			}
			sum += av
			count++
		}
	}
	require.Less(t, sum/float64(count)/32768, 0.001, "final 100ms average should be below 0.1%% of full scale")
}

// Scenario 2 (spec.md §8): a non-looping drum hit runs attacking ->
// decaying -> sustaining -> idle without ever entering releasing,
// because the sample's own end terminates the voice.
func TestSong_DrumHit_NeverEntersReleasing(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	tok := loadTestBank(m.Cache(), buildPianoKickBank())
	song := m.CreateSong(newInertStream(), tok, 480, LoopInfinite)
	song.Start()
	song.ProgramChange(9, 0)
	song.NoteOn(9, 36, 127)

	const blockFrames = 64
	out := make([]int16, blockFrames*2)

	sawSounding := false
	for i := 0; i < blocksFor(0.3, 44100, blockFrames); i++ {
		m.RenderBlock(out)
		for j := range m.songVoices.voices {
			v := &m.songVoices.voices[j]
			if v.state == VoiceIdle {
				continue
			}
			sawSounding = true
			require.NotEqual(t, VoiceReleasing, v.state, "a non-looping percussion hit must never enter releasing")
		}
	}
	require.True(t, sawSounding, "the kick voice should have been audible at some point")
	require.Equal(t, 0, m.songVoices.ActiveCount(), "the kick voice should have terminated by itself")
}

// Scenario 3 (spec.md §8): a held sustain pedal keeps a released note
// sounding; lifting the pedal lets it finish releasing to idle.
func TestSong_SustainPedal_HoldsThenReleases(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	tok := loadTestBank(m.Cache(), buildPianoKickBank())
	song := m.CreateSong(newInertStream(), tok, 480, LoopInfinite)
	song.Start()

	song.Controller(0, 64, 127)
	song.NoteOn(0, 60, 100)
	song.NoteOff(0, 60, 0)

	const blockFrames = 64
	out := make([]int16, blockFrames*2)

	for i := 0; i < blocksFor(0.5, 44100, blockFrames); i++ {
		m.RenderBlock(out)
	}
	require.Equal(t, 1, m.songVoices.ActiveCount(), "voice must remain live while the sustain pedal is held")

	song.Controller(0, 64, 0)
	for i := 0; i < blocksFor(0.2, 44100, blockFrames); i++ {
		m.RenderBlock(out)
	}
	require.Equal(t, 0, m.songVoices.ActiveCount(), "voice must reach idle once the sustain pedal is lifted")
}

// Scenario 4 (spec.md §8): with a 4-voice pool, a 5th simultaneous
// note-on steals the lowest-priority voice instead of growing past the
// pool size.
func TestVoicePool_StealingCapsActiveCount(t *testing.T) {
	m, err := Open(Config{
		SampleRate:     44100,
		Channels:       2,
		FramesPerBlock: 64,
		MaxSongVoices:  4,
		MaxSoundVoices: 1,
		MasterVolume:   1,
		ReverbType:     ReverbNone,
	})
	require.NoError(t, err)
	defer m.Close()

	tok := loadTestBank(m.Cache(), buildPianoKickBank())
	song := m.CreateSong(newInertStream(), tok, 480, LoopInfinite)
	song.Start()
	for _, note := range []int{60, 62, 64, 65, 67} {
		song.NoteOn(0, note, 100)
	}

	out := make([]int16, 64*2)
	m.RenderBlock(out)

	require.LessOrEqual(t, m.songVoices.ActiveCount(), 4)
	require.Equal(t, 4, m.songVoices.ActiveCount(), "the stolen voice should have been retriggered, not dropped")
}

// Scenario 5 (spec.md §8): selecting Neo Room and triggering a single
// percussion note, the wet reverb bus decays to exact zero within the
// documented bounded block count once the voice itself has terminated.
func TestMixer_NeoRoomReverbTail_ConvergesToZero(t *testing.T) {
	m, err := Open(Config{
		SampleRate:     44100,
		Channels:       2,
		FramesPerBlock: 64,
		MaxSongVoices:  4,
		MaxSoundVoices: 1,
		MasterVolume:   1,
		ReverbType:     ReverbNeoRoom,
	})
	require.NoError(t, err)
	defer m.Close()

	tok := loadTestBank(m.Cache(), buildPianoKickBank())
	song := m.CreateSong(newInertStream(), tok, 480, LoopInfinite)
	song.Start()
	song.Controller(9, 91, 127) // full reverb send on the percussion channel
	song.ProgramChange(9, 0)
	song.NoteOn(9, 36, 127)

	const blockFrames = 64
	out := make([]int16, blockFrames*2)

	// Run past the kick's own ~100ms lifetime so only the reverb tail
	// remains, then watch for exact silence within the documented bound.
	for i := 0; i < blocksFor(0.2, 44100, blockFrames); i++ {
		m.RenderBlock(out)
	}
	require.Equal(t, 0, m.songVoices.ActiveCount(), "the kick voice should have terminated before measuring the tail")

	nc := m.NeoComb()
	require.NotNil(t, nc, "Neo Room should back the active reverb")
	maxComb := 0
	for _, c := range nc.combs[:nc.combCount] {
		if cap(c.buf) > maxComb {
			maxComb = cap(c.buf)
		}
	}
	maxBlocks := (5*maxComb)/blockFrames + 2

	converged := false
	for b := 0; b < maxBlocks; b++ {
		m.RenderBlock(out)
		allZero := true
		for _, v := range out {
			if v != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			converged = true
			break
		}
	}
	require.True(t, converged, "reverb tail did not converge to exact zero within %d blocks", maxBlocks)
}

// Scenario 6 (spec.md §8): changing tempo mid-song halves the per-
// block time advance, scales get_length_us accordingly, and leaves the
// playhead-as-a-fraction-of-length unchanged.
func TestSong_TempoChange_PreservesPlayheadFraction(t *testing.T) {
	m := openTestMixer(t)
	defer m.Close()

	tok := loadTestBank(m.Cache(), buildPianoKickBank())
	song := m.CreateSong(newInertStream(), tok, 480, LoopInfinite)
	song.SetLengthUs(20_000_000)
	song.Start()

	song.framesForTicks(480*10_000, 100)

	posBefore := song.GetPositionUs()
	lenBefore := song.GetLengthUs()
	fracBefore := float64(posBefore) / float64(lenBefore)

	song.SetTempoPercent(50)

	posAfter := song.GetPositionUs()
	lenAfter := song.GetLengthUs()
	fracAfter := float64(posAfter) / float64(lenAfter)

	require.InDelta(t, float64(lenBefore)*2, float64(lenAfter), 1)
	require.InDelta(t, float64(posBefore)*2, float64(posAfter), 1)
	require.InDelta(t, fracBefore, fracAfter, 1e-9, "playhead as a fraction of length must survive a tempo change")
}
