// sample.go - immutable PCM sample storage, spec.md §3 "Sample".

package bae

// Sample is immutable once constructed. The Sample Cache exclusively
// owns the PCM bytes; voices only ever hold a read-only *Sample scoped
// to the voice's lifetime (spec.md §3 Ownership).
type Sample struct {
	// PCM holds 16-bit signed samples, mono or interleaved stereo,
	// always normalised to this layout regardless of the bank's native
	// bit depth (8-bit sources are upconverted at load time).
	PCM []int16

	Channels   int
	FrameCount int
	SampleRate int

	// RootPitch is the MIDI note this sample was recorded at.
	RootPitch int
	// FineTuneCents adjusts RootPitch for sources tuned slightly off
	// the nearest semitone.
	FineTuneCents int

	// LoopStart/LoopEnd describe [LoopStart, LoopEnd) in frames. A
	// zero-length region (LoopEnd <= LoopStart) means no loop.
	LoopStart int
	LoopEnd   int
}

// HasLoop reports whether the sample declares a non-empty loop region.
func (s *Sample) HasLoop() bool {
	return s.LoopEnd > s.LoopStart
}

// FrameAt returns the left/right values (right==left for mono) for a
// whole-frame index, with zero past the end. Voice.readInterpolated
// reads both interpolation endpoints through it on every frame.
func (s *Sample) FrameAt(frame int) (l, r int16) {
	if frame < 0 || frame >= s.FrameCount {
		return 0, 0
	}
	if s.Channels == 2 {
		i := frame * 2
		return s.PCM[i], s.PCM[i+1]
	}
	v := s.PCM[frame]
	return v, v
}

// upconvert8 converts unsigned 8-bit PCM (as stored in 8-bit DLS wave
// data) to signed 16-bit.
func upconvert8(src []uint8) []int16 {
	out := make([]int16, len(src))
	for i, b := range src {
		out[i] = (int16(b) - 128) << 8
	}
	return out
}
