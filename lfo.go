// lfo.go - low-frequency oscillator modulation, spec.md §3 "LFO".
//
// Grounded on the teacher's AHX replayer vibrato (ahx_replayer.go's
// AHXVoice.vibratoSpeed/vibratoDepth driving pitch with a table-free
// running phase): same running-phase-plus-shape-function approach,
// generalised from AHX's pitch-only vibrato to spec.md's four
// selectable destinations and two waveform shapes.

package bae

import "math"

// LFOShape selects the oscillator waveform.
type LFOShape int

const (
	LFOSine LFOShape = iota
	LFOTriangle
)

// LFODestination selects what an LFO modulates.
type LFODestination int

const (
	LFODestPitch LFODestination = iota
	LFODestVolume
	LFODestFilterCutoff
	LFODestPan
)

// LFO is a free-running oscillator with an optional delay before it
// ramps up to full depth, matching spec.md's "LFO fades in over
// DelayTicks rather than starting at full depth immediately" note.
type LFO struct {
	Shape       LFOShape
	Destination LFODestination

	// Rate is the oscillator frequency in Hz.
	Rate float64
	// Depth is the modulation depth in the destination's own units
	// (semitones for pitch, linear gain for volume, kHz for cutoff,
	// since the voice scales the cutoff LFO by 1000, -1..1 for pan).
	Depth float64
	// DelayTicks is how many ticks after note-on before the LFO begins
	// ramping from zero depth to full Depth.
	DelayTicks int

	sampleRate int
	phase      float64 // 0..1
	ticks      int
}

// NewLFO constructs an LFO ticking at sampleRate.
func NewLFO(shape LFOShape, dest LFODestination, rate, depth float64, delayTicks, sampleRate int) *LFO {
	return &LFO{
		Shape:       shape,
		Destination: dest,
		Rate:        rate,
		Depth:       depth,
		DelayTicks:  delayTicks,
		sampleRate:  sampleRate,
	}
}

// Advance moves the LFO forward by one tick and returns the current
// modulation value, already scaled by Depth and any delay ramp.
func (l *LFO) Advance() float64 {
	l.ticks++

	l.phase += l.Rate / float64(l.sampleRate)
	if l.phase >= 1 {
		l.phase -= math.Floor(l.phase)
	}

	shape := l.shapeValue()

	ramp := 1.0
	if l.DelayTicks > 0 {
		if l.ticks < l.DelayTicks {
			ramp = 0
		} else if l.ticks < l.DelayTicks*2 {
			ramp = float64(l.ticks-l.DelayTicks) / float64(l.DelayTicks)
		}
	}

	return shape * l.Depth * ramp
}

func (l *LFO) shapeValue() float64 {
	switch l.Shape {
	case LFOTriangle:
		// 0..1 phase to a -1..1 triangle.
		if l.phase < 0.5 {
			return 4*l.phase - 1
		}
		return 3 - 4*l.phase
	default: // LFOSine
		return math.Sin(2 * math.Pi * l.phase)
	}
}

// Reset restarts the phase and delay ramp. Voices build fresh LFOs on
// every note-on, so note-on does not go through Reset.
func (l *LFO) Reset() {
	l.phase = 0
	l.ticks = 0
}
