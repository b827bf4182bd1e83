// mixer.go - the Mixer & Master Bus, spec.md §4.4: owns the Song/Sound
// slot tables, runs the per-block render loop, applies master
// volume/mute and the reverb return, and converts the float accumulator
// to the final interleaved int16 output.
//
// Grounded on the teacher's SoundChip (audio_chip.go's NewSoundChip /
// GenerateSample): one struct owning every live voice plus shared
// per-block scratch buffers, mutating a mutex-guarded slot table from
// the control side while a single generate-loop walks it each block.
// This mixer keeps that shape - a control-thread RWMutex around the
// Song/Sound slot tables, a lock-free hot path through the VoicePool
// and every per-voice/per-slot atomic - generalised from the teacher's
// fixed four hardware voices to dynamically created Songs and Sounds.
package bae

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Config is the immutable configuration a Mixer is opened with (spec.md
// §4.4.1). Changing any of these fields requires Close + Open with a
// new Config; the Mixer itself never reconfigures live.
type Config struct {
	SampleRate int
	// Channels is 1 (mono) or 2 (stereo); spec.md §6.3.
	Channels int
	// FramesPerBlock is One_Loop: the frame count RenderBlock produces
	// per call.
	FramesPerBlock int

	MaxSongVoices  int
	MaxSoundVoices int

	// MasterVolume is the initial linear master gain, 0..1.
	MasterVolume float64
	ReverbType   ReverbType

	Logger *log.Logger
}

// Mixer is the top-level object a host constructs once per audio
// session (spec.md §9: "a Mixer object owning everything, passed by
// reference to Song/Sound/Voice operations").
type Mixer struct {
	cfg Config
	log *log.Logger

	cache      *SampleCache
	songVoices *VoicePool

	mu     sync.RWMutex
	songs  map[*Song]struct{}
	sounds map[*SoundPlayer]struct{}

	masterVolume         *atomicFloat64
	masterMute           atomic.Bool
	defaultVelocityCurve atomic.Int32

	reverbMu   sync.Mutex
	reverb     Reverb
	reverbType ReverbType

	// Per-block scratch, reused across RenderBlock calls so the audio
	// thread never allocates (spec.md §5).
	dryL, dryR    []float64
	reverbSendBuf []float64
	wetL, wetR    []float64

	// songsScratch/soundsScratch hold RenderBlock's snapshot of the live
	// slot tables. Reset with [:0] instead of make() each block; the
	// backing array only grows while append needs more room than the
	// historical high-water mark of concurrently active Songs/Sounds,
	// then never allocates again.
	songsScratch  []*Song
	soundsScratch []*SoundPlayer

	captureMu   sync.Mutex
	captureSink CaptureSink

	onSongFinished   atomic.Pointer[func(*Song)]
	onMetaEvent      atomic.Pointer[func(*Song, byte, []byte)]
	onMidiEvent      atomic.Pointer[func(*Song, Event)]
	onBufferCaptured atomic.Pointer[func([]int16)]
}

// Open allocates the voice pool, scratch buffers and reverb unit for
// cfg (spec.md §4.4.1).
func Open(cfg Config) (*Mixer, error) {
	if cfg.SampleRate <= 0 {
		return nil, newError(KindInvalidState, "Open", fmt.Errorf("sample rate must be positive"))
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		cfg.Channels = 2
	}
	if cfg.FramesPerBlock <= 0 {
		cfg.FramesPerBlock = 512
	}
	if cfg.MasterVolume <= 0 {
		cfg.MasterVolume = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}

	m := &Mixer{
		cfg:          cfg,
		log:          logger,
		cache:        NewSampleCache(logger),
		songVoices:   NewVoicePool(cfg.MaxSongVoices),
		songs:        make(map[*Song]struct{}),
		sounds:       make(map[*SoundPlayer]struct{}),
		masterVolume: newAtomicFloat64(cfg.MasterVolume),
		reverbType:   cfg.ReverbType,

		dryL:          make([]float64, cfg.FramesPerBlock),
		dryR:          make([]float64, cfg.FramesPerBlock),
		reverbSendBuf: make([]float64, cfg.FramesPerBlock),
		wetL:          make([]float64, cfg.FramesPerBlock),
		wetR:          make([]float64, cfg.FramesPerBlock),
	}
	m.reverb = NewReverb(cfg.ReverbType, cfg.SampleRate, cfg.FramesPerBlock)
	return m, nil
}

// Close tears down the Mixer in reverse of Open: every active Song and
// Sound is stopped, the capture sink (if any) is closed, and the slot
// tables are emptied (spec.md §4.4.1).
func (m *Mixer) Close() error {
	m.mu.Lock()
	for s := range m.songs {
		s.Stop()
	}
	for sp := range m.sounds {
		sp.Stop()
	}
	m.songs = make(map[*Song]struct{})
	m.sounds = make(map[*SoundPlayer]struct{})
	m.mu.Unlock()

	m.captureMu.Lock()
	defer m.captureMu.Unlock()
	if m.captureSink != nil {
		err := m.captureSink.Close()
		m.captureSink = nil
		return err
	}
	return nil
}

// Cache exposes the Mixer's SampleCache so a host can LoadBank/
// UnloadBank before creating Songs against it.
func (m *Mixer) Cache() *SampleCache { return m.cache }

// SampleRate reports the output rate Open configured.
func (m *Mixer) SampleRate() int { return m.cfg.SampleRate }

// CreateSong builds a Song bound to this Mixer's shared voice pool and
// sample cache, registers it in the active-song slot table, and wires
// the Mixer-level callbacks (on_song_finished, on_meta_event,
// on_midi_event) to fire through whatever the host has registered via
// SetOnSongFinished/SetOnMetaEvent/SetOnMidiEvent (spec.md §6.1).
func (m *Mixer) CreateSong(stream EventStream, bank BankToken, ppqn, loopCount int) *Song {
	song := NewSong(stream, bank, m.cache, m.songVoices, m.cfg.SampleRate, ppqn, loopCount, &m.defaultVelocityCurve, m.log)

	song.OnFinished(func() {
		if fn := m.onSongFinished.Load(); fn != nil {
			(*fn)(song)
		}
	})
	song.OnMeta(func(metaType byte, payload []byte) {
		if fn := m.onMetaEvent.Load(); fn != nil {
			(*fn)(song, metaType, payload)
		}
	})
	song.OnMidiEvent(func(ev Event) {
		if fn := m.onMidiEvent.Load(); fn != nil {
			(*fn)(song, ev)
		}
	})

	m.mu.Lock()
	m.songs[song] = struct{}{}
	m.mu.Unlock()
	return song
}

// DeleteSong stops song and removes it from the active-song slot table
// (spec.md §3: "destruction forces all voices bound to it to terminate
// immediately").
func (m *Mixer) DeleteSong(song *Song) {
	song.Stop()
	m.mu.Lock()
	delete(m.songs, song)
	m.mu.Unlock()
}

// CreateSound registers src as a new active Sound (spec.md §4.3
// "Sound"), returning a SoundPlayer the host uses for transport and
// per-slot volume/pan/rate control. Returns KindNoVoice if the
// configured MaxSoundVoices slot count is already full.
func (m *Mixer) CreateSound(src Sound, volume, pan float64) (*SoundPlayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sounds) >= m.cfg.MaxSoundVoices {
		return nil, newError(KindNoVoice, "CreateSound", nil)
	}
	sp := newSoundPlayer(src, m.cfg.SampleRate, volume, pan)
	m.sounds[sp] = struct{}{}
	return sp, nil
}

// DeleteSound stops sp and removes it from the active-sound slot table.
func (m *Mixer) DeleteSound(sp *SoundPlayer) {
	sp.Stop()
	m.mu.Lock()
	delete(m.sounds, sp)
	m.mu.Unlock()
}

// SetMasterVolume sets the linear master gain, 0..1 (spec.md §6.1).
func (m *Mixer) SetMasterVolume(v float64) {
	m.masterVolume.Store(clampF64(v, 0, 1))
}

// SetMasterMute toggles silencing the entire mix without touching
// per-song/per-sound state (spec.md §6.1).
func (m *Mixer) SetMasterMute(mute bool) {
	m.masterMute.Store(mute)
}

// SetDefaultVelocityCurve sets the fallback curve new note-ons use when
// their resolved instrument leaf doesn't specify one (spec.md §4.4.4).
func (m *Mixer) SetDefaultVelocityCurve(curve VelocityCurve) {
	m.defaultVelocityCurve.Store(int32(curve))
}

// SetReverbType swaps the active reverb unit (spec.md §4.4.3). Building
// a fresh backend takes the reverb lock so a concurrent RenderBlock
// call either uses the old unit for the rest of its block or the new
// one, never a half-built one.
func (m *Mixer) SetReverbType(typ ReverbType) {
	next := NewReverb(typ, m.cfg.SampleRate, m.cfg.FramesPerBlock)
	m.reverbMu.Lock()
	m.reverb = next
	m.reverbType = typ
	m.reverbMu.Unlock()
}

// NeoComb returns the active reverb's Neo comb backend for the runtime
// parameter setters (spec.md §4.4.3), or nil if the current reverb
// isn't a Neo comb preset.
func (m *Mixer) NeoComb() *neoCombReverb {
	m.reverbMu.Lock()
	defer m.reverbMu.Unlock()
	nc, _ := m.reverb.(*neoCombReverb)
	return nc
}

// LoadNeoCustomPreset applies a previously saved custom Neo comb preset
// (spec.md §6.4) to the active reverb, if it is a Neo comb backend.
func (m *Mixer) LoadNeoCustomPreset(p NeoCustomPreset) {
	if nc := m.NeoComb(); nc != nil {
		nc.LoadConfig(p.toConfig())
	}
}

// SaveNeoCustomPreset snapshots the active Neo comb reverb's current
// parameters, or ok=false if the current reverb isn't a Neo comb
// backend.
func (m *Mixer) SaveNeoCustomPreset(name string) (p NeoCustomPreset, ok bool) {
	nc := m.NeoComb()
	if nc == nil {
		return NeoCustomPreset{}, false
	}
	return neoCustomPresetFromConfig(name, nc.Config()), true
}

// SetOnSongFinished/SetOnMetaEvent/SetOnMidiEvent/SetOnBufferCaptured
// register the Mixer-level host callbacks spec.md §6.1 lists. Each may
// be called at any time from the control thread; CreateSong's wiring
// and RenderBlock's capture path read the current value lock-free.
func (m *Mixer) SetOnSongFinished(fn func(song *Song)) {
	m.onSongFinished.Store(&fn)
}

func (m *Mixer) SetOnMetaEvent(fn func(song *Song, metaType byte, payload []byte)) {
	m.onMetaEvent.Store(&fn)
}

func (m *Mixer) SetOnMidiEvent(fn func(song *Song, ev Event)) {
	m.onMidiEvent.Store(&fn)
}

func (m *Mixer) SetOnBufferCaptured(fn func(samples []int16)) {
	m.onBufferCaptured.Store(&fn)
}

// BeginCapture redirects the final int16 mix to sink in addition to
// the normal RenderBlock output buffer (spec.md §4.4.5). Replaces any
// sink already capturing.
func (m *Mixer) BeginCapture(sink CaptureSink) {
	m.captureMu.Lock()
	prev := m.captureSink
	m.captureSink = sink
	m.captureMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// EndCapture stops the active capture, closing its sink.
func (m *Mixer) EndCapture() error {
	m.captureMu.Lock()
	sink := m.captureSink
	m.captureSink = nil
	m.captureMu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}

// RenderBlock fills out (interleaved int16, cfg.Channels per frame)
// with one block of mixed audio (spec.md §4.4.2). Called once per
// host audio callback from the audio thread. The mixing itself reuses
// the scratch slices above; a note-on that triggers a voice allocates,
// because VoicePool.Allocate builds a new envelope, LFOs and filter for
// that voice.
func (m *Mixer) RenderBlock(out []int16) {
	frames := m.cfg.FramesPerBlock
	if max := len(out) / m.cfg.Channels; max < frames {
		frames = max
	}
	if frames <= 0 {
		return
	}

	for i := 0; i < frames; i++ {
		m.dryL[i] = 0
		m.dryR[i] = 0
		m.reverbSendBuf[i] = 0
	}

	m.mu.RLock()
	m.songsScratch = m.songsScratch[:0]
	for s := range m.songs {
		m.songsScratch = append(m.songsScratch, s)
	}
	m.soundsScratch = m.soundsScratch[:0]
	for sp := range m.sounds {
		m.soundsScratch = append(m.soundsScratch, sp)
	}
	songs := m.songsScratch
	sounds := m.soundsScratch
	m.mu.RUnlock()

	m.reverbMu.Lock()
	reverb := m.reverb
	m.reverbMu.Unlock()
	hasReverb := reverb != nil

	for f := 0; f < frames; f++ {
		for _, s := range songs {
			s.RenderTick()
		}
		l, r, send := m.songVoices.Render()

		for _, sp := range sounds {
			sl, sr, sendSample := sp.renderFrame()
			l += sl
			r += sr
			send += sendSample
		}

		m.dryL[f] = l
		m.dryR[f] = r
		if hasReverb {
			m.reverbSendBuf[f] = send
		}

		for _, s := range songs {
			s.accumulateMeters()
		}
		for _, sp := range sounds {
			sp.accumulateMeter()
		}
	}

	for _, s := range songs {
		s.endMeterBlock()
	}
	for _, sp := range sounds {
		sp.endMeterBlock()
	}

	if hasReverb {
		reverb.Process(m.reverbSendBuf[:frames], m.wetL[:frames], m.wetR[:frames])
		for i := 0; i < frames; i++ {
			m.dryL[i] += m.wetL[i]
			m.dryR[i] += m.wetR[i]
		}
	}

	masterVolume := m.masterVolume.Load()
	muted := m.masterMute.Load()
	channels := m.cfg.Channels

	for i := 0; i < frames; i++ {
		l, r := m.dryL[i], m.dryR[i]
		if muted {
			l, r = 0, 0
		} else {
			l *= masterVolume
			r *= masterVolume
		}
		if channels == 1 {
			out[i] = floatToInt16((l + r) / 2)
		} else {
			out[i*2] = floatToInt16(l)
			out[i*2+1] = floatToInt16(r)
		}
	}

	m.captureMu.Lock()
	sink := m.captureSink
	m.captureMu.Unlock()
	if sink != nil {
		n := frames * channels
		if err := sink.Write(out[:n]); err != nil {
			m.log.Warn("capture sink write failed", "err", err)
		}
	}
	if fn := m.onBufferCaptured.Load(); fn != nil {
		n := frames * channels
		(*fn)(out[:n])
	}
}

// floatToInt16 converts a -1..1 sample to int16 with a symmetric clamp
// (spec.md §3: "clipping happens only at the i32->i16 conversion" -
// this engine's accumulator is float64 rather than literal int32, but
// the same single clamp-at-conversion discipline applies; see
// DESIGN.md).
func floatToInt16(v float64) int16 {
	s := v * 32767
	if s > 32767 {
		s = 32767
	}
	if s < -32768 {
		s = -32768
	}
	return int16(s)
}

// --- Sound slot (spec.md §4.3 "Sound", §4.4 "dedicated voice slots") ---

// SoundPlayer is the Mixer-owned handle for one active Sound: it pulls
// PCM from the Sound adapter, resamples it to the Mixer's output rate,
// and applies per-slot volume/pan/rate/reverb-send, all independent of
// the Song voice pool (spec.md §3: "Sounds never share a Voice pool
// entry with Song voices").
type SoundPlayer struct {
	id     uuid.UUID
	sound  Sound
	chans  int
	srcRate int
	baseRatio float64 // srcRate/outputRate, before rateMul

	volume     *atomicFloat64
	pan        *atomicFloat64
	rateMul    *atomicFloat64
	reverbSend *atomicFloat64
	loop       atomic.Bool

	state atomic.Int32 // PlayState

	pending []float64 // interleaved stereo at the source rate
	readIdx float64   // fractional frame index into pending

	done    bool
	errored bool

	lastL, lastR float64
	meter        Meter

	scratch []float32
}

func newSoundPlayer(src Sound, outputRate int, volume, pan float64) *SoundPlayer {
	srcRate := src.SampleRate()
	if srcRate <= 0 {
		srcRate = outputRate
	}
	sp := &SoundPlayer{
		id:         uuid.New(),
		sound:      src,
		chans:      src.Channels(),
		srcRate:    srcRate,
		baseRatio:  float64(srcRate) / float64(outputRate),
		volume:     newAtomicFloat64(clampF64(volume, 0, 1)),
		pan:        newAtomicFloat64(clampF64(pan, -1, 1)),
		rateMul:    newAtomicFloat64(1),
		reverbSend: newAtomicFloat64(0),
	}
	sp.state.Store(int32(StateStopped))
	return sp
}

// ID returns the slot's stable identity, useful for host-side logging.
func (sp *SoundPlayer) ID() uuid.UUID { return sp.id }

// Start begins (or restarts, if stopped) playback (spec.md §6.1 Sound
// transport).
func (sp *SoundPlayer) Start() {
	if PlayState(sp.state.Load()) == StateStopped {
		sp.sound.Reset()
		sp.pending = sp.pending[:0]
		sp.readIdx = 0
		sp.done = false
		sp.errored = false
	}
	sp.state.Store(int32(StatePlaying))
}

// Pause suspends rendering without losing position.
func (sp *SoundPlayer) Pause() {
	if PlayState(sp.state.Load()) == StatePlaying {
		sp.state.Store(int32(StatePaused))
	}
}

// Resume continues a paused Sound.
func (sp *SoundPlayer) Resume() {
	if PlayState(sp.state.Load()) == StatePaused {
		sp.state.Store(int32(StatePlaying))
	}
}

// Stop halts playback immediately; a subsequent Start rewinds.
func (sp *SoundPlayer) Stop() {
	sp.state.Store(int32(StateStopped))
}

// SetVolume sets this sound's linear gain, 0..1.
func (sp *SoundPlayer) SetVolume(v float64) { sp.volume.Store(clampF64(v, 0, 1)) }

// SetPan sets this sound's stereo pan, -1..1.
func (sp *SoundPlayer) SetPan(p float64) { sp.pan.Store(clampF64(p, -1, 1)) }

// SetRate sets a playback rate multiplier on top of the sound's own
// declared sample rate (spec.md §4.3: "host can override").
func (sp *SoundPlayer) SetRate(mul float64) {
	if mul <= 0 {
		mul = 1
	}
	sp.rateMul.Store(mul)
}

// SetReverbSend sets this sound's send level into the Mixer's reverb
// bus, 0..1.
func (sp *SoundPlayer) SetReverbSend(level float64) { sp.reverbSend.Store(clampF64(level, 0, 1)) }

// SetLoop toggles whether reaching end-of-stream restarts the sound
// instead of terminating it.
func (sp *SoundPlayer) SetLoop(on bool) { sp.loop.Store(on) }

// PeakLevel/VULevel expose this slot's most recent block-level meter
// reading (spec.md §4.2.4).
func (sp *SoundPlayer) PeakLevel() float64 { return sp.meter.Peak() }
func (sp *SoundPlayer) VULevel() float64   { return sp.meter.VU() }

// ensure tops up pending until at least minFrames are available past
// readIdx, or the source is exhausted.
func (sp *SoundPlayer) ensure(minFrames int) {
	for !sp.done && len(sp.pending)/2-int(sp.readIdx) < minFrames {
		chans := sp.chans
		if chans < 1 {
			chans = 1
		}
		want := minFrames * chans
		if cap(sp.scratch) < want {
			sp.scratch = make([]float32, want)
		}
		buf := sp.scratch[:want]
		n, status := sp.sound.Fill(buf)
		for i := 0; i < n; i++ {
			if chans >= 2 {
				sp.pending = append(sp.pending, float64(buf[i*chans]), float64(buf[i*chans+1]))
			} else {
				v := float64(buf[i*chans])
				sp.pending = append(sp.pending, v, v)
			}
		}
		switch status {
		case FillDone:
			if sp.loop.Load() {
				sp.sound.Reset()
			} else {
				sp.done = true
			}
		case FillError:
			sp.errored = true
			sp.done = true
		}
		if n == 0 {
			break
		}
	}
}

// renderFrame advances the sound by one output frame, returning its
// contribution to the dry mix and its reverb-send sample.
func (sp *SoundPlayer) renderFrame() (l, r, reverbSend float64) {
	if PlayState(sp.state.Load()) != StatePlaying {
		return 0, 0, 0
	}

	frameIdx := int(sp.readIdx)
	sp.ensure(frameIdx + 2)
	avail := len(sp.pending) / 2
	if frameIdx+1 >= avail {
		if sp.done {
			sp.state.Store(int32(StateStopped))
		}
		return 0, 0, 0
	}

	frac := sp.readIdx - float64(frameIdx)
	l0, r0 := sp.pending[frameIdx*2], sp.pending[frameIdx*2+1]
	l1, r1 := sp.pending[(frameIdx+1)*2], sp.pending[(frameIdx+1)*2+1]
	sl := l0*(1-frac) + l1*frac
	sr := r0*(1-frac) + r1*frac

	step := sp.baseRatio * sp.rateMul.Load()
	sp.readIdx += step

	if consumed := int(sp.readIdx); consumed > 0 && consumed*2 <= len(sp.pending) {
		sp.pending = sp.pending[consumed*2:]
		sp.readIdx -= float64(consumed)
	}

	pan := clampF64(sp.pan.Load(), -1, 1)
	gl, gr := panGains(pan)
	gain := sp.volume.Load()

	sp.lastL, sp.lastR = sl*gain*gl, sr*gain*gr

	send := sp.reverbSend.Load()
	if send > 0 {
		reverbSend = (sp.lastL + sp.lastR) / 2 * send
	}
	return sp.lastL, sp.lastR, reverbSend
}

func (sp *SoundPlayer) accumulateMeter() {
	if PlayState(sp.state.Load()) == StatePlaying {
		sp.meter.Accumulate(sp.lastL, sp.lastR)
	}
}

func (sp *SoundPlayer) endMeterBlock() {
	sp.meter.EndBlock()
}
