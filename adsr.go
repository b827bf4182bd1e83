// adsr.go - multi-stage ADSR envelope, spec.md §3 "ADSR" and §4.2.2.
//
// Grounded on the teacher's updateEnvelope (audio_chip.go:739-842): the
// same per-tick linear-ramp-toward-target shape, generalised from the
// teacher's fixed four-phase attack/decay/sustain/release to spec.md's
// ordered list of up to MaxADSRStages stages with explicit flags.

package bae

// VolumeRange is the nominal peak level an ADSR stage target is
// expressed in (spec.md §3).
const VolumeRange int32 = 4096

// MaxADSRStages is the largest number of stages a bank may declare for
// one envelope (spec.md §3 requires "at least 8").
const MaxADSRStages = 8

// MaxEnvFailTicks bounds how long a malformed envelope (one with no
// reachable terminate/release stage) is allowed to sit idle before the
// owning voice force-terminates it (spec.md §4.2.5).
const MaxEnvFailTicks = 8

// StageFlag selects how a stage behaves once its ramp completes.
type StageFlag int

const (
	FlagLinearRamp StageFlag = iota
	FlagSustainUntilNoteOff
	FlagRelease
	FlagTerminate
)

// ADSRStage is one entry of an envelope's stage list.
type ADSRStage struct {
	// TargetLevel is 0..VolumeRange normally. A negative value on a
	// stage reached while FlagSustainUntilNoteOff is held means
	// "sustaining decay": the level keeps decaying toward zero at the
	// rate implied by DurationTicks instead of holding flat, until
	// note-off arrives (spec.md §3).
	TargetLevel  int32
	DurationTicks int
	Flag         StageFlag
}

// EnvelopeMode is the coarse state of an Envelope, independent of the
// owning voice's own state machine (spec.md §4.2.2 layers the voice
// state machine on top of this).
type EnvelopeMode int

const (
	EnvRunning EnvelopeMode = iota
	EnvSustainHeld
	EnvReleasing
	EnvTerminated
)

// Envelope drives one ADSR through its stage list, one tick per call
// to Advance. Advance never allocates (spec.md §4.2.5). NoteOff (when
// no release stage is reachable) and ForceRelease append a synthetic
// release stage to this envelope's own stage list, which can allocate;
// that cost is paid per voice at note-off or steal, not per audio frame.
type Envelope struct {
	stages []ADSRStage

	stageIdx     int
	ticksInStage int
	level        float64 // 0..VolumeRange
	startLevel   float64
	mode         EnvelopeMode
	failTicks    int

	// fallbackReleaseTicks sizes the synthetic release stage appended
	// when NoteOff can't find one (spec.md §4.2.1's "fast 5ms linear to
	// zero" steal release reused here for malformed envelopes).
	fallbackReleaseTicks int
}

// NewEnvelope builds an Envelope bound to stages (not copied; callers
// must not mutate it afterward) at the given sample rate, used only to
// size the fallback release stage.
func NewEnvelope(stages []ADSRStage, sampleRate int) *Envelope {
	e := &Envelope{
		stages:               stages,
		fallbackReleaseTicks: ticksFromMicros(5000, sampleRate),
	}
	if len(e.stages) == 0 {
		e.mode = EnvTerminated
	}
	return e
}

func (e *Envelope) stage() *ADSRStage {
	return &e.stages[e.stageIdx]
}

// Mode reports the envelope's current coarse state.
func (e *Envelope) Mode() EnvelopeMode { return e.mode }

// Level returns the current gain in 0..1.
func (e *Envelope) Level() float64 {
	return e.level / float64(VolumeRange)
}

// Retrigger restarts the envelope at stage 0 without resetting the
// current level — used for mono_voice_only re-trigger (spec.md §4.2.1
// step 1), where the instrument wants a new attack but not a volume
// jump.
func (e *Envelope) Retrigger() {
	if len(e.stages) == 0 {
		e.mode = EnvTerminated
		return
	}
	e.stageIdx = 0
	e.ticksInStage = 0
	e.startLevel = e.level
	e.mode = EnvRunning
	e.failTicks = 0
}

// Advance moves the envelope forward by one engine tick.
func (e *Envelope) Advance() {
	switch e.mode {
	case EnvTerminated:
		return
	case EnvSustainHeld:
		e.advanceSustain()
		return
	default:
		e.advanceRamp()
	}
}

func (e *Envelope) advanceSustain() {
	st := e.stage()
	if st.TargetLevel >= 0 {
		return // flat hold
	}
	rate := float64(-st.TargetLevel) / float64(maxInt(st.DurationTicks, 1))
	e.level -= rate
	if e.level < 0 {
		e.level = 0
	}
}

func (e *Envelope) advanceRamp() {
	st := e.stage()
	if st.Flag == FlagSustainUntilNoteOff && st.TargetLevel < 0 {
		// Sustaining decay: no ramp toward the negative target; decay
		// from the current level straight away.
		e.mode = EnvSustainHeld
		e.ticksInStage = 0
		e.advanceSustain()
		return
	}
	e.ticksInStage++

	if st.DurationTicks <= 0 {
		e.level = float64(st.TargetLevel)
	} else {
		frac := float64(e.ticksInStage) / float64(st.DurationTicks)
		if frac > 1 {
			frac = 1
		}
		e.level = e.startLevel + (float64(st.TargetLevel)-e.startLevel)*frac
	}

	if st.DurationTicks > 0 && e.ticksInStage < st.DurationTicks {
		return
	}

	switch st.Flag {
	case FlagSustainUntilNoteOff:
		e.mode = EnvSustainHeld
		e.ticksInStage = 0
	case FlagRelease, FlagTerminate:
		e.mode = EnvTerminated
	default: // FlagLinearRamp: advance to the next stage
		e.stageIdx++
		e.ticksInStage = 0
		e.startLevel = e.level
		if e.stageIdx >= len(e.stages) {
			// Malformed envelope: nothing declared past the last ramp
			// stage. Hold level flat for a bounded number of ticks,
			// then force-terminate (spec.md §4.2.5).
			e.stageIdx = len(e.stages) - 1
			e.failTicks++
			if e.failTicks >= MaxEnvFailTicks {
				e.mode = EnvTerminated
			}
		}
	}
}

// NoteOff transitions the envelope into its release stage, starting
// from whatever level is current (spec.md §3 invariant). Idempotent:
// calling it again while already releasing or terminated is a no-op
// (spec.md §8).
func (e *Envelope) NoteOff() {
	if e.mode == EnvReleasing || e.mode == EnvTerminated {
		return
	}
	idx := -1
	for i := e.stageIdx; i < len(e.stages); i++ {
		if e.stages[i].Flag == FlagRelease {
			idx = i
			break
		}
	}
	if idx == -1 {
		e.stages = append(e.stages, ADSRStage{
			TargetLevel:   0,
			DurationTicks: e.fallbackReleaseTicks,
			Flag:          FlagRelease,
		})
		idx = len(e.stages) - 1
	}
	e.stageIdx = idx
	e.ticksInStage = 0
	e.startLevel = e.level
	e.mode = EnvReleasing
}

// ForceRelease is used by voice stealing (spec.md §4.2.1 step 3): a
// fast fixed-duration linear ramp to zero regardless of the declared
// release stage, independent of NoteOff's stage search.
func (e *Envelope) ForceRelease(ticks int) {
	e.stages = append(e.stages, ADSRStage{
		TargetLevel:   0,
		DurationTicks: ticks,
		Flag:          FlagRelease,
	})
	e.stageIdx = len(e.stages) - 1
	e.ticksInStage = 0
	e.startLevel = e.level
	e.mode = EnvReleasing
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
