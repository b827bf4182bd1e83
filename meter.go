// meter.go - per-channel and per-sound-slot level metering, spec.md
// §4.2.4 "Level tracking and metering": computed from each block's
// actual accumulator contribution, not resynthesized from the sample
// source.

package bae

import "math"

// vuSmoothing is the one-pole coefficient pulling the running VU
// estimate toward each new block's peak.
const vuSmoothing = 0.3

// Meter tracks a block-level peak and a smoothed VU estimate for one
// channel or sound slot.
type Meter struct {
	blockPeak float64
	lastPeak  float64
	vu        float64
}

// Accumulate folds one output frame's magnitude into the current
// block's running peak. Called once per frame per channel/slot from
// the audio thread.
func (m *Meter) Accumulate(l, r float64) {
	mag := math.Abs(l)
	if rm := math.Abs(r); rm > mag {
		mag = rm
	}
	if mag > m.blockPeak {
		m.blockPeak = mag
	}
}

// EndBlock folds this block's peak into the smoothed VU estimate and
// resets the running peak for the next block. Called once per block.
func (m *Meter) EndBlock() {
	m.vu += (m.blockPeak - m.vu) * vuSmoothing
	m.lastPeak = m.blockPeak
	m.blockPeak = 0
}

// Peak returns the most recently completed block's peak magnitude,
// 0..~1 (clipping can push it briefly above 1 before the i32->i16
// conversion clamps the actual output).
func (m *Meter) Peak() float64 { return m.lastPeak }

// VU returns the current smoothed level estimate.
func (m *Meter) VU() float64 { return m.vu }
