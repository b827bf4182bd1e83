// voice.go - voice pool, allocation/stealing, and the per-voice DSP
// pipeline, spec.md §4.2 "Voice & Envelope Engine".
//
// Grounded on the teacher's Channel.generateSample (audio_chip.go):
// one function per tick that reads the sample position, advances the
// envelope, applies LFO modulation and writes a stereo frame, all
// without allocating. This file keeps that shape; it generalises the
// teacher's fixed four chip voices into a dynamically sized, stealable
// pool and its single envelope shape into the arbitrary per-instrument
// ADSR/LFO/filter graph instrument.go describes.

package bae

import "math"

// VoiceState mirrors an Envelope's Mode plus the idle state a voice
// sits in while unallocated (spec.md §4.2.2).
type VoiceState int

const (
	VoiceIdle VoiceState = iota
	VoiceAttacking
	VoiceDecaying
	VoiceSustaining
	VoiceReleasing
	VoiceTerminating
)

// stealRank orders VoiceStates by how acceptable they are to steal
// from, lowest first (spec.md §4.2.1: "releasing voices are stolen
// before sustaining, sustaining before decaying, decaying before
// attacking").
func stealRank(s VoiceState) int {
	switch s {
	case VoiceReleasing, VoiceTerminating:
		return 0
	case VoiceSustaining:
		return 1
	case VoiceDecaying:
		return 2
	case VoiceAttacking:
		return 3
	default:
		return 4
	}
}

// Voice is one sounding (or idle) note. The audio thread owns Voice
// entirely; VoicePool.Allocate moves a Voice from idle to playing, and
// Render (when the note ends) or VoicePool.StopChannel moves it back.
type Voice struct {
	id uint64

	channel      int
	channelState *Channel
	note         int
	velocity     int
	noteOnTick   uint64

	sample *Sample
	leaf   *InstrumentLeaf

	// songVolume/songReverbSend are owned by the Song that triggered
	// this voice (spec.md §3 Song: "master song volume", "song-local
	// reverb send level") and read every frame without locking.
	songVolume     *atomicFloat64
	songReverbSend *atomicFloat64

	env       *Envelope
	pitchLFO  *LFO
	volumeLFO *LFO
	filterLFO *LFO
	panLFO    *LFO
	filter    *Filter

	pos  fixed // playback position, in sample frames, Q16.16
	step fixed

	baseSemitones float64
	velocityGain  float64
	pan           float64

	sampleRate int // the voice's own sample's rate
	outputRate int

	state         VoiceState
	looping       bool
	peakLevel     float64
	heldBySustain bool

	lastL, lastR float64 // this frame's output, cached for ReverbSend
}

// ID returns the identity VoicePool assigned at the voice's most
// recent trigger.
func (v *Voice) ID() uint64 { return v.id }

// State reports the voice's current coarse lifecycle state.
func (v *Voice) State() VoiceState { return v.state }

// Trigger (re)initializes a voice for a new note-on. Called both for
// a freshly idle voice and for one being stolen.
func (v *Voice) Trigger(id uint64, channel int, chState *Channel, note, velocity int, sample *Sample, leaf *InstrumentLeaf, outputRate int, tick uint64, songVolume, songReverbSend *atomicFloat64) {
	v.id = id
	v.channel = channel
	v.channelState = chState
	v.note = note
	v.velocity = velocity
	v.noteOnTick = tick
	v.sample = sample
	v.leaf = leaf
	v.songVolume = songVolume
	v.songReverbSend = songReverbSend
	v.sampleRate = sample.SampleRate
	v.outputRate = outputRate
	v.pos = 0

	v.env = NewEnvelope(leaf.ADSRStages, outputRate)
	v.pitchLFO = buildLFO(leaf.PitchLFO, LFODestPitch, outputRate)
	v.volumeLFO = buildLFO(leaf.VolumeLFO, LFODestVolume, outputRate)
	v.filterLFO = buildLFO(leaf.FilterLFO, LFODestFilterCutoff, outputRate)
	v.panLFO = buildLFO(leaf.PanLFO, LFODestPan, outputRate)

	if leaf.Filter.Kind != FilterNone {
		v.filter = NewFilter(leaf.Filter.Kind, leaf.Filter.Resonance, outputRate)
		v.filter.SetCutoff(leaf.Filter.CutoffHz)
	} else {
		v.filter = nil
	}

	v.looping = sample.HasLoop()
	if leaf.LoopOverride != nil {
		v.looping = *leaf.LoopOverride
	}

	v.baseSemitones = float64(note-sample.RootPitch) - float64(sample.FineTuneCents)/100 + float64(leaf.TuneCents)/100
	v.velocityGain = ApplyVelocityCurve(leaf.VelocityCurve, velocity)
	v.pan = leaf.PanDefault

	v.state = VoiceAttacking
	v.peakLevel = 0
	v.heldBySustain = false
}

func buildLFO(p *LFOParams, dest LFODestination, sampleRate int) *LFO {
	if p == nil {
		return nil
	}
	return NewLFO(p.Shape, dest, p.Rate, p.Depth, p.DelayTicks, sampleRate)
}

// NoteOff releases the voice (spec.md §4.2.2: attacking/decaying/
// sustaining -> releasing). While the channel's sustain pedal (CC64)
// is down, the voice is held instead and released when the pedal
// lifts (spec.md §4.3 edge case).
func (v *Voice) NoteOff() {
	if v.state == VoiceIdle {
		return
	}
	if v.channelState != nil && v.channelState.Sustain {
		v.heldBySustain = true
		return
	}
	v.env.NoteOff()
}

// Steal forces the voice's envelope into a fast release (spec.md
// §4.2.1 step 3). VoicePool.Allocate re-triggers a stolen voice in the
// same call, which replaces that envelope, so the release ramp is not
// rendered and the old note stops at once.
func (v *Voice) Steal(fastReleaseTicks int) {
	v.env.ForceRelease(fastReleaseTicks)
}

func (v *Voice) syncState() {
	switch v.env.Mode() {
	case EnvRunning:
		if v.env.Level() >= v.peakLevel {
			v.state = VoiceAttacking
		} else {
			v.state = VoiceDecaying
		}
	case EnvSustainHeld:
		v.state = VoiceSustaining
	case EnvReleasing:
		v.state = VoiceReleasing
	case EnvTerminated:
		v.state = VoiceTerminating
	}
}

func semitoneRatio(semitones float64) float64 {
	return math.Pow(2, semitones/12)
}

// Render advances the voice by one output frame and adds its
// contribution (already velocity/envelope/pan scaled) into l/r. It
// returns false once the voice has fully terminated, signalling the
// caller to return it to the pool.
func (v *Voice) Render() (l, r float64, alive bool) {
	if v.state == VoiceIdle {
		return 0, 0, false
	}

	v.env.Advance()
	v.syncState()
	if v.env.Mode() == EnvTerminated {
		v.state = VoiceIdle
		return 0, 0, false
	}
	envLevel := v.env.Level()
	if envLevel > v.peakLevel {
		v.peakLevel = envLevel
	}

	pitchMod := 0.0
	if v.pitchLFO != nil {
		pitchMod = v.pitchLFO.Advance()
	}
	volMod := 1.0
	if v.volumeLFO != nil {
		volMod = 1 + v.volumeLFO.Advance()
	}
	panMod := 0.0
	if v.panLFO != nil {
		panMod = v.panLFO.Advance()
	}

	ratio := 1.0
	if !v.leaf.PlayAtSampleRate {
		bend := 0.0
		if v.channelState != nil {
			bend = v.channelState.PitchBendSemitones()
		}
		ratio = semitoneRatio(v.baseSemitones + bend + pitchMod)
	}
	v.step = floatToFixed(float64(v.sampleRate) * ratio / float64(v.outputRate))

	sl, sr, ok := v.readInterpolated()
	if !ok {
		v.state = VoiceIdle
		return 0, 0, false
	}

	if v.filter != nil {
		if v.filterLFO != nil {
			v.filter.SetCutoff(v.leaf.Filter.CutoffHz + v.filterLFO.Advance()*1000)
		}
		sl = v.filter.Process(0, sl)
		sr = v.filter.Process(1, sr)
	}

	gain := envLevel * v.velocityGain * volMod
	if v.channelState != nil {
		if v.channelState.Muted {
			gain = 0
		}
		gain *= v.channelState.Volume * v.channelState.Expression
	}
	if v.songVolume != nil {
		gain *= v.songVolume.Load()
	}

	pan := clampF64(v.pan+panMod, -1, 1)
	gl, gr := panGains(pan)

	v.pos += v.step
	v.lastL, v.lastR = sl*gain*gl, sr*gain*gr
	return v.lastL, v.lastR, true
}

// ReverbSend returns this voice's contribution to the mono reverb-send
// bus for the frame most recently produced by Render (spec.md §4.2.3
// step 6: "if the channel's reverb send > 0, also accumulate a scaled
// mono copy into the reverb-send accumulator").
func (v *Voice) ReverbSend() float64 {
	if v.state == VoiceIdle {
		return 0
	}
	send := 0.0
	if v.channelState != nil {
		send = v.channelState.ReverbSend
	}
	if v.songReverbSend != nil {
		send *= v.songReverbSend.Load()
	}
	if send <= 0 {
		return 0
	}
	return (v.lastL + v.lastR) / 2 * send
}

// readInterpolated reads a linearly-interpolated stereo frame at the
// voice's current fractional position, handling loop wraparound and
// end-of-sample (spec.md §4.2.4).
func (v *Voice) readInterpolated() (l, r float64, ok bool) {
	s := v.sample
	frame := int(v.pos.intPart())
	frac := v.pos.frac().toFloat()

	if v.looping && s.LoopEnd > s.LoopStart {
		loopLen := s.LoopEnd - s.LoopStart
		if frame >= s.LoopEnd {
			frame = s.LoopStart + (frame-s.LoopStart)%loopLen
			v.pos = floatToFixed(float64(frame) + frac)
		}
	} else if frame >= s.FrameCount {
		return 0, 0, false
	}

	nextFrame := frame + 1
	if v.looping && s.LoopEnd > s.LoopStart && nextFrame >= s.LoopEnd {
		nextFrame = s.LoopStart
	}

	l0, r0 := s.FrameAt(frame)
	l1, r1 := s.FrameAt(nextFrame)

	l = (float64(l0)*(1-frac) + float64(l1)*frac) / 32768
	r = (float64(r0)*(1-frac) + float64(r1)*frac) / 32768
	return l, r, true
}

func panGains(pan float64) (l, r float64) {
	// equal-power pan law
	angle := (pan + 1) * math.Pi / 4
	return math.Cos(angle), math.Sin(angle)
}

func clampF64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VoicePool owns a fixed-size set of Voices and implements spec.md
// §4.2.1's allocate-or-steal algorithm. Its methods run on the audio
// thread. The voice slots are fixed, but Allocate builds a new
// envelope, LFOs and filter for each triggered voice, so it allocates.
type VoicePool struct {
	voices []Voice
	nextID uint64
}

// NewVoicePool builds a pool of n voices, all initially idle.
func NewVoicePool(n int) *VoicePool {
	return &VoicePool{voices: make([]Voice, n)}
}

// Len reports the pool's fixed voice count.
func (p *VoicePool) Len() int { return len(p.voices) }

// Allocate finds an idle voice or steals the best candidate per
// spec.md §4.2.1, triggers it, and returns it. Returns KindNoVoice
// only when the pool has zero voices. chState's pointer identity (not
// the bare channel index) is what disambiguates voices between
// multiple concurrently-playing Songs that both use, say, channel 0.
func (p *VoicePool) Allocate(channel int, chState *Channel, note, velocity int, sample *Sample, leaf *InstrumentLeaf, outputRate int, tick int, fastReleaseTicks int, songVolume, songReverbSend *atomicFloat64) (*Voice, error) {
	if len(p.voices) == 0 {
		return nil, newError(KindNoVoice, "Allocate", nil)
	}

	if leaf.MonoVoiceOnly {
		for i := range p.voices {
			v := &p.voices[i]
			if v.state != VoiceIdle && v.channelState == chState && v.note == note {
				v.velocity = velocity
				v.velocityGain = ApplyVelocityCurve(leaf.VelocityCurve, velocity)
				v.env.Retrigger()
				v.state = VoiceAttacking
				v.noteOnTick = uint64(tick)
				return v, nil
			}
		}
	}

	for i := range p.voices {
		if p.voices[i].state == VoiceIdle {
			p.nextID++
			p.voices[i].Trigger(p.nextID, channel, chState, note, velocity, sample, leaf, outputRate, uint64(tick), songVolume, songReverbSend)
			return &p.voices[i], nil
		}
	}

	best := 0
	for i := 1; i < len(p.voices); i++ {
		if voiceStealsBefore(&p.voices[i], &p.voices[best]) {
			best = i
		}
	}

	p.voices[best].Steal(fastReleaseTicks)
	p.nextID++
	p.voices[best].Trigger(p.nextID, channel, chState, note, velocity, sample, leaf, outputRate, uint64(tick), songVolume, songReverbSend)
	return &p.voices[best], nil
}

// voiceStealsBefore reports whether candidate a should be preferred
// over b as the next voice to steal (spec.md §4.2.1: state rank, then
// lower envelope level, then older note-on tick).
func voiceStealsBefore(a, b *Voice) bool {
	ra, rb := stealRank(a.state), stealRank(b.state)
	if ra != rb {
		return ra < rb
	}
	la, lb := a.env.Level(), b.env.Level()
	if la != lb {
		return la < lb
	}
	return a.noteOnTick < b.noteOnTick
}

// ReleaseChannel sends NoteOff to every sounding voice owned by chState
// (used by CC123 "all notes off" and when a looping Song restarts).
func (p *VoicePool) ReleaseChannel(chState *Channel) {
	for i := range p.voices {
		if p.voices[i].state != VoiceIdle && p.voices[i].channelState == chState {
			p.voices[i].NoteOff()
		}
	}
}

// ReleaseSustained releases every voice on chState that was held past
// its own note-off by a down sustain pedal (spec.md §4.3: called when
// CC64 transitions to off).
func (p *VoicePool) ReleaseSustained(chState *Channel) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.state != VoiceIdle && v.channelState == chState && v.heldBySustain {
			v.heldBySustain = false
			v.env.NoteOff()
		}
	}
}

// StopChannel immediately silences every voice on chState without a
// release tail (CC120 "all sound off", spec.md §8 property: exactly
// every voice on the channel returns to idle).
func (p *VoicePool) StopChannel(chState *Channel) {
	for i := range p.voices {
		if p.voices[i].state != VoiceIdle && p.voices[i].channelState == chState {
			p.voices[i].state = VoiceIdle
		}
	}
}

// NoteOff releases the most recently triggered sounding voice matching
// (chState, note) (spec.md §4.2.1's voice-binding invariant: a note-off
// always targets the newest matching note-on still sounding).
func (p *VoicePool) NoteOff(chState *Channel, note int) {
	var newest *Voice
	for i := range p.voices {
		v := &p.voices[i]
		if v.state == VoiceIdle || v.channelState != chState || v.note != note {
			continue
		}
		if v.state == VoiceReleasing || v.state == VoiceTerminating {
			continue
		}
		if newest == nil || v.noteOnTick > newest.noteOnTick {
			newest = v
		}
	}
	if newest != nil {
		newest.NoteOff()
	}
}

// Render sums every sounding voice's contribution into l/r/reverbSend
// (one output frame).
func (p *VoicePool) Render() (l, r, reverbSend float64) {
	for i := range p.voices {
		vl, vr, alive := p.voices[i].Render()
		if !alive {
			continue
		}
		l += vl
		r += vr
		reverbSend += p.voices[i].ReverbSend()
	}
	return l, r, reverbSend
}

// AccumulateChannelMeter folds every sounding voice owned by chState's
// most recent Render output into m, for Song-level per-channel
// metering (spec.md §4.2.4).
func (p *VoicePool) AccumulateChannelMeter(chState *Channel, m *Meter) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.state != VoiceIdle && v.channelState == chState {
			m.Accumulate(v.lastL, v.lastR)
		}
	}
}

// ActiveCount reports how many voices are currently not idle, for
// metering/diagnostics.
func (p *VoicePool) ActiveCount() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].state != VoiceIdle {
			n++
		}
	}
	return n
}
