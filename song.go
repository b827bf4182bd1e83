// song.go - Song playback: event dispatch, tempo/transpose, looping,
// live MIDI injection and transport, spec.md §4.3 "Songs, Sounds &
// Event Scheduling" and §6.1 "Host API (Song)".
//
// Grounded on the teacher's AHXReplayer row-advance loop
// (ahx_replayer.go): a per-tick "owe N frames before the next row"
// counter driving dispatch, generalised from AHX's fixed PAL/NTSC
// frame rate to an arbitrary output sample rate and a tempo that can
// change mid-song via EventTempoChange or the host's SetTempoPercent.
//
// Simple scalar control fields (spec.md §5: "a single non-blocking
// update of atomic fields") are plain atomics; live MIDI events, which
// carry a payload, go through the commandRing (spec.md §5's SPSC ring)
// declared in command_ring.go.

package bae

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// DefaultMicrosPerQuarterNote is 120 BPM, the MIDI default tempo
// before any EventTempoChange is seen.
const DefaultMicrosPerQuarterNote = 500000

// LoopInfinite plays a Song forever until explicitly stopped.
const LoopInfinite = -1

// PlayState is a Song's coarse transport state (spec.md §6.1: start,
// pause, resume, stop).
type PlayState int32

const (
	StateStopped PlayState = iota
	StatePlaying
	StatePaused
)

// liveEventCapacity bounds how many live-injected MIDI events may be
// queued between two RenderTick calls before Push starts reporting
// backpressure (spec.md §5: "the audio thread never blocks").
const liveEventCapacity = 256

// Song drives one EventStream against a shared VoicePool, owning its
// own 16 MIDI channels and tempo/transpose state. Multiple Songs may
// share one VoicePool and SampleCache (spec.md §4.4: the Mixer holds a
// slot table of Songs); voices disambiguate ownership by each Song's
// distinct *Channel pointers, not by channel index alone.
type Song struct {
	stream    EventStream
	cache     *SampleCache
	bankToken BankToken
	voices    *VoicePool
	log       *log.Logger

	channels [16]*Channel

	outputRate int
	ppqn       int

	microsPerQuarterNote int
	frameCarry           float64
	framesUntilNext      int

	// positionBaselineUs/lengthBaselineUs accumulate at the song's own
	// declared tempo, unscaled by tempoPercent; GetPositionUs/
	// GetLengthUs apply the current tempoPercent at read time so the
	// playhead-as-a-fraction-of-length ratio survives a tempo change
	// (spec.md §8 scenario 6) without recomputing history.
	positionBaselineUs atomic.Uint64
	lengthBaselineUs   atomic.Uint64

	tempoPercent       atomic.Int32 // 25..200, default 100
	transposeSemitones atomic.Int32
	muteMask           atomic.Uint32 // bit i set => channel i muted
	volume             atomic.Int32  // 0..127, default 127
	reverbSendLevel    *atomicFloat64
	volumeGain         *atomicFloat64 // derived from volume, read by voices
	loopEnabled        atomic.Bool
	state              atomic.Int32 // PlayState

	fastReleaseTicks int

	loopCount      int
	loopsRemaining int

	tick          uint64
	finished      atomic.Bool
	finishedFired bool
	onFinished    func()
	onMeta        func(metaType byte, payload []byte)
	onLyric       func(text string)

	live *commandRing[Event]

	meters [16]Meter

	// defaultCurve, when non-nil, is the Mixer-wide fallback velocity
	// curve (spec.md §4.4.4 "set_default_velocity_curve"): applied to
	// new note-ons whose resolved instrument leaf left VelocityCurve at
	// its zero value (VelocityMiniBAES), which doubles as the "bank
	// didn't specify one" sentinel.
	defaultCurve *atomic.Int32

	onMidiEvent func(ev Event)
}

// NewSong builds a Song ready to Start playing stream against bank
// via cache, allocating voices from pool. defaultCurve may be nil, in
// which case leaf.VelocityCurve is always used as-is.
func NewSong(stream EventStream, bankToken BankToken, cache *SampleCache, pool *VoicePool, outputRate, ppqn, loopCount int, defaultCurve *atomic.Int32, logger *log.Logger) *Song {
	if logger == nil {
		logger = discardLogger()
	}
	s := &Song{
		stream:               stream,
		cache:                cache,
		bankToken:            bankToken,
		voices:                pool,
		log:                  logger,
		outputRate:           outputRate,
		ppqn:                 ppqn,
		microsPerQuarterNote: DefaultMicrosPerQuarterNote,
		loopCount:            loopCount,
		loopsRemaining:       loopCount,
		fastReleaseTicks:     ticksFromMicros(5000, outputRate),
		reverbSendLevel:      newAtomicFloat64(1),
		volumeGain:           newAtomicFloat64(1),
		live:                 newCommandRing[Event](liveEventCapacity),
		defaultCurve:         defaultCurve,
	}
	s.tempoPercent.Store(100)
	s.volume.Store(127)
	s.state.Store(int32(StateStopped))
	for i := range s.channels {
		s.channels[i] = NewChannel(i)
	}
	return s
}

// SetTranspose shifts every subsequent note-on by semitones (spec.md
// §6.1, -24..+24).
func (s *Song) SetTranspose(semitones int) {
	s.transposeSemitones.Store(int32(semitones))
}

// SetTempoPercent scales the song's own declared tempo (spec.md §6.1,
// 25..200). Values outside that range are clamped.
func (s *Song) SetTempoPercent(pct int) {
	s.tempoPercent.Store(int32(clampI(pct, 25, 200)))
}

// SetLoop toggles whether the song restarts from the beginning when its
// event stream is exhausted (spec.md §6.1).
func (s *Song) SetLoop(on bool) {
	s.loopEnabled.Store(on)
	if on {
		s.loopCount = LoopInfinite
	} else {
		s.loopCount = 0
		s.loopsRemaining = 0
	}
}

// SetVolume sets the master song volume, 0..127 (spec.md §6.1).
func (s *Song) SetVolume(v int) {
	v = clampI(v, 0, 127)
	s.volume.Store(int32(v))
	s.volumeGain.Store(float64(v) / 127)
}

// MuteChannel/UnmuteChannel implement the Song-level mute bitmask
// (spec.md §3 Song: "mute bitmask").
func (s *Song) MuteChannel(ch int) {
	if ch < 0 || ch > 15 {
		return
	}
	for {
		old := s.muteMask.Load()
		if !s.setChannelMuted(old, ch, true) {
			return
		}
	}
}

func (s *Song) UnmuteChannel(ch int) {
	if ch < 0 || ch > 15 {
		return
	}
	for {
		old := s.muteMask.Load()
		if !s.setChannelMuted(old, ch, false) {
			return
		}
	}
}

func (s *Song) setChannelMuted(old uint32, ch int, muted bool) bool {
	next := old
	if muted {
		next |= 1 << uint(ch)
	} else {
		next &^= 1 << uint(ch)
	}
	if next == old {
		s.channels[ch].Muted = muted
		return false
	}
	if !s.muteMask.CompareAndSwap(old, next) {
		return true // retry
	}
	s.channels[ch].Muted = muted
	return false
}

// SetReverbSend scales every channel's CC91 send for this song as a
// whole (spec.md §3 Song: "song-local reverb send level"), 0..1.
func (s *Song) SetReverbSend(level float64) {
	s.reverbSendLevel.Store(clampF64(level, 0, 1))
}

// OnFinished registers a callback fired exactly once when the song's
// event stream is exhausted and no loop remains (spec.md §8 property).
func (s *Song) OnFinished(fn func()) {
	s.onFinished = fn
}

// OnMeta registers a callback for generic Meta events (spec.md §4.3).
func (s *Song) OnMeta(fn func(metaType byte, payload []byte)) {
	s.onMeta = fn
}

// OnLyric registers a callback for lyric (0x05) and text (0x01) meta
// events specifically, for a host's karaoke display (SPEC_FULL.md §C
// supplement, grounded on the original engine's dropped karaoke GUI).
func (s *Song) OnLyric(fn func(text string)) {
	s.onLyric = fn
}

// OnMidiEvent registers a callback fired for every dispatched event,
// live-injected or stream-sourced, for a host's MIDI-thru (spec.md
// §6.1's on_midi_event callback).
func (s *Song) OnMidiEvent(fn func(ev Event)) {
	s.onMidiEvent = fn
}

// Finished reports whether the song has completed all its loops.
func (s *Song) Finished() bool { return s.finished.Load() }

// Channel exposes one of the song's 16 MIDI channels, for hosts that
// want to inspect or preset controller state before playback starts.
func (s *Song) Channel(i int) *Channel {
	if i < 0 || i > 15 {
		return nil
	}
	return s.channels[i]
}

// Preroll prepares the song for playback without advancing time:
// channel programs are left as the stream or prior live injection set
// them, but every channel's volatile controller state resets to MIDI
// power-on defaults (spec.md glossary: "Preroll").
func (s *Song) Preroll() {
	for _, ch := range s.channels {
		program := ch.Program
		bankMSB, bankLSB := ch.BankMSB, ch.BankLSB
		*ch = *NewChannel(ch.Index)
		ch.Program = program
		ch.BankMSB, ch.BankLSB = bankMSB, bankLSB
	}
}

// Start begins playback from the song's current position (spec.md
// §6.1). Calling Start while stopped rewinds to the beginning.
func (s *Song) Start() {
	if PlayState(s.state.Load()) == StateStopped {
		s.stream.Reset()
		s.tick = 0
		s.framesUntilNext = 0
		s.positionBaselineUs.Store(0)
		s.finished.Store(false)
		s.finishedFired = false
	}
	s.state.Store(int32(StatePlaying))
}

// Pause suspends event dispatch; RenderTick becomes a no-op until
// Resume (spec.md §6.1).
func (s *Song) Pause() {
	if PlayState(s.state.Load()) == StatePlaying {
		s.state.Store(int32(StatePaused))
	}
}

// Resume continues a paused song (spec.md §6.1).
func (s *Song) Resume() {
	if PlayState(s.state.Load()) == StatePaused {
		s.state.Store(int32(StatePlaying))
	}
}

// Stop halts playback and force-terminates every voice bound to this
// song's channels immediately (spec.md §3 Song/Sound lifecycle:
// "destruction forces all voices bound to it to terminate
// immediately" — Stop applies the same policy without destroying the
// Song object).
func (s *Song) Stop() {
	s.state.Store(int32(StateStopped))
	for _, ch := range s.channels {
		s.voices.StopChannel(ch)
	}
}

// SeekUs repositions the event stream's declared position. Native
// EventStream implementations that support random access may implement
// an optional Seeker; others simply reset and re-dispatch is left to
// the host-supplied stream (the core never invents seek semantics a
// format parser didn't provide).
func (s *Song) SeekUs(us uint64) {
	type seeker interface{ SeekUs(uint64) }
	if sk, ok := s.stream.(seeker); ok {
		sk.SeekUs(us)
		s.positionBaselineUs.Store(us)
		s.framesUntilNext = 0
	}
}

// SetLengthUs records the song's total declared duration at its own
// (unscaled) tempo, used by GetLengthUs. The core does not compute
// this itself (spec.md §1: file parsing is a collaborator); the host
// sets it once after parsing.
func (s *Song) SetLengthUs(us uint64) {
	s.lengthBaselineUs.Store(us)
}

// GetPositionUs returns the current playhead, scaled by the song's
// current tempoPercent so host progress bars stay consistent across a
// mid-song tempo change (spec.md §8 scenario 6).
func (s *Song) GetPositionUs() uint64 {
	return scaleByTempo(s.positionBaselineUs.Load(), s.tempoPercent.Load())
}

// GetLengthUs returns the song's total declared duration, scaled by
// the current tempoPercent (spec.md §8 scenario 6: "tempo=50% ->
// get_length_us scales by 2").
func (s *Song) GetLengthUs() uint64 {
	return scaleByTempo(s.lengthBaselineUs.Load(), s.tempoPercent.Load())
}

func scaleByTempo(baselineUs uint64, tempoPercent int32) uint64 {
	if tempoPercent <= 0 {
		tempoPercent = 100
	}
	return baselineUs * 100 / uint64(tempoPercent)
}

// --- Live MIDI injection (spec.md §6.1, §4.3) ---

// NoteOn queues a live note-on for dispatch on the next RenderTick.
func (s *Song) NoteOn(ch, note, velocity int) {
	s.pushLive(Event{Kind: EventNoteOn, Channel: ch, Note: note, Velocity: velocity})
}

// NoteOff queues a live note-off.
func (s *Song) NoteOff(ch, note, velocity int) {
	s.pushLive(Event{Kind: EventNoteOff, Channel: ch, Note: note, Velocity: velocity})
}

// Controller queues a live MIDI CC change.
func (s *Song) Controller(ch, cc, value int) {
	s.pushLive(Event{Kind: EventControlChange, Channel: ch, Controller: cc, Value: value})
}

// ProgramChange queues a live program change.
func (s *Song) ProgramChange(ch, program int) {
	s.pushLive(Event{Kind: EventProgramChange, Channel: ch, Program: program})
}

// PitchBend queues a live pitch-bend update. bend is -8192..8191.
func (s *Song) PitchBend(ch, bend int) {
	s.pushLive(Event{Kind: EventPitchBend, Channel: ch, PitchBend: bend})
}

// Sysex accepts a raw system-exclusive message. The core has no
// synthesis behaviour keyed off sysex (spec.md doesn't define one), so
// it is only forwarded to the meta callback for host-side handling
// (e.g. a GM/GS/XG reset the host wants to react to).
func (s *Song) Sysex(data []byte) {
	if s.onMeta != nil {
		cp := append([]byte(nil), data...)
		s.onMeta(0xF0, cp)
	}
}

// Meta injects a meta event directly (spec.md §4.3: "Meta: callback to
// host if registered"), used by hosts that parse meta events out of
// band from the main EventStream (e.g. a karaoke lyric track read
// separately).
func (s *Song) Meta(metaType byte, payload []byte) {
	s.dispatchMeta(metaType, payload)
}

func (s *Song) pushLive(ev Event) {
	if !s.live.Push(ev) {
		s.log.Warn("live event dropped, ring full", "channel", ev.Channel, "kind", ev.Kind)
	}
}

// RenderTick advances the song's timeline by exactly one output
// frame, draining any live-injected events and dispatching any
// scheduled events now due. Called once per frame from
// Mixer.RenderBlock, on the audio thread.
func (s *Song) RenderTick() {
	s.live.Drain(func(ev Event) { s.dispatch(ev) })

	if PlayState(s.state.Load()) != StatePlaying || s.finished.Load() {
		return
	}
	s.tick++

	tempoPercent := s.tempoPercent.Load()
	for s.framesUntilNext <= 0 {
		ev, delta, ok := s.stream.Next()
		if !ok {
			s.finish()
			return
		}
		s.dispatch(ev)
		if ev.Kind == EventEndOfTrack {
			s.finish()
			return
		}
		s.framesUntilNext += s.framesForTicks(delta, tempoPercent)
	}
	s.framesUntilNext--
}

// accumulateMeters folds this frame's per-channel voice contribution
// into the song's meters; called once per frame from Mixer.RenderBlock
// after the shared VoicePool has rendered the frame.
func (s *Song) accumulateMeters() {
	for i, ch := range s.channels {
		s.voices.AccumulateChannelMeter(ch, &s.meters[i])
	}
}

// endMeterBlock finalises this block's per-channel peak/VU; called
// once per block.
func (s *Song) endMeterBlock() {
	for i := range s.meters {
		s.meters[i].EndBlock()
	}
}

// PeakLevel/VULevel expose a channel's most recent block-level meter
// reading to the host (spec.md §4.2.4).
func (s *Song) PeakLevel(ch int) float64 {
	if ch < 0 || ch > 15 {
		return 0
	}
	return s.meters[ch].Peak()
}

func (s *Song) VULevel(ch int) float64 {
	if ch < 0 || ch > 15 {
		return 0
	}
	return s.meters[ch].VU()
}

func (s *Song) finish() {
	if s.loopCount == LoopInfinite || s.loopsRemaining > 0 {
		if s.loopsRemaining > 0 {
			s.loopsRemaining--
		}
		s.stream.Reset()
		s.framesUntilNext = 0
		for _, ch := range s.channels {
			s.voices.ReleaseChannel(ch)
		}
		return
	}
	s.finished.Store(true)
	if !s.finishedFired {
		s.finishedFired = true
		if s.onFinished != nil {
			s.onFinished()
		}
	}
}

// framesForTicks converts a MIDI tick delta to output frames at the
// song's declared tempo, then applies tempoPercent: halving tempoPercent
// doubles the frames needed for the same number of ticks, i.e. halves
// the musical ticks consumed per fixed-size block (spec.md §8 scenario
// 6). It also accumulates positionBaselineUs at the *unscaled* tempo so
// GetPositionUs/GetLengthUs can apply tempoPercent uniformly.
func (s *Song) framesForTicks(ticks uint32, tempoPercent int32) int {
	baselineUs := float64(ticks) * float64(s.microsPerQuarterNote) / float64(s.ppqn)
	s.positionBaselineUs.Add(uint64(baselineUs))

	if tempoPercent <= 0 {
		tempoPercent = 100
	}
	exact := baselineUs*100/float64(tempoPercent)*float64(s.outputRate)/1_000_000 + s.frameCarry
	frames := int(exact)
	s.frameCarry = exact - float64(frames)
	return frames
}

func (s *Song) dispatch(ev Event) {
	if s.onMidiEvent != nil {
		s.onMidiEvent(ev)
	}
	if ev.Channel < 0 || ev.Channel > 15 {
		return
	}
	ch := s.channels[ev.Channel]
	transpose := int(s.transposeSemitones.Load())

	switch ev.Kind {
	case EventNoteOn:
		if ev.Velocity == 0 {
			s.voices.NoteOff(ch, ev.Note+transpose)
			return
		}
		s.triggerNote(ev.Channel, ch, ev.Note, ev.Velocity)

	case EventNoteOff:
		s.voices.NoteOff(ch, ev.Note+transpose)

	case EventControlChange:
		wasSustain := ch.Sustain
		ch.HandleControlChange(ev.Controller, ev.Value)
		switch ev.Controller {
		case 64:
			if wasSustain && !ch.Sustain {
				s.voices.ReleaseSustained(ch)
			}
		case 120:
			s.voices.StopChannel(ch)
		case 123:
			s.voices.ReleaseChannel(ch)
		}

	case EventProgramChange:
		ch.Program = ev.Program

	case EventPitchBend:
		ch.PitchBend = ev.PitchBend

	case EventChannelPressure:
		// Channel (mono) aftertouch is accepted and ignored: no
		// synthesis parameter reads it.

	case EventTempoChange:
		if ev.TempoMicrosPerQuarterNote > 0 {
			s.microsPerQuarterNote = ev.TempoMicrosPerQuarterNote
		}
	}
}

// dispatchMeta forwards a meta event to the registered callbacks,
// routing lyric (0x05) and generic text (0x01) to OnLyric in addition
// to the general OnMeta callback (SPEC_FULL.md §C karaoke supplement).
func (s *Song) dispatchMeta(metaType byte, payload []byte) {
	if s.onMeta != nil {
		s.onMeta(metaType, payload)
	}
	if (metaType == 0x05 || metaType == 0x01) && s.onLyric != nil {
		s.onLyric(string(payload))
	}
}

func (s *Song) triggerNote(channelIdx int, ch *Channel, note, velocity int) {
	note += int(s.transposeSemitones.Load())
	percussion := ch.IsPercussion()

	leaf, err := s.cache.Resolve(s.bankToken, ch.BankMSB, ch.BankLSB, ch.Program, note, velocity, percussion)
	if err != nil {
		s.log.Debug("resolve miss", "channel", channelIdx, "bank", ch.BankNumber(), "note", note, "err", err)
		return
	}
	if leaf == nil || !leaf.Sample.Valid() {
		return
	}
	sample, err := s.cache.Sample(leaf.Sample)
	if err != nil {
		s.log.Debug("sample miss", "channel", channelIdx, "note", note, "err", err)
		return
	}

	if s.defaultCurve != nil && leaf.VelocityCurve == VelocityMiniBAES {
		overridden := *leaf
		overridden.VelocityCurve = VelocityCurve(s.defaultCurve.Load())
		leaf = &overridden
	}

	if _, err := s.voices.Allocate(channelIdx, ch, note, velocity, sample, leaf, s.outputRate, int(s.tick), s.fastReleaseTicks, s.volumeGain, s.reverbSendLevel); err != nil {
		s.log.Debug("voice allocate failed", "channel", channelIdx, "note", note, "err", err)
	}
}
