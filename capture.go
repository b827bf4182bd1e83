// capture.go - Mixer output capture, spec.md §4.4.5: begin_capture
// redirects the final int16 mix to a sink in addition to the device
// buffer; during capture the engine must not drop frames, blocking on
// a slow sink rather than skipping it.
//
// Grounded on go-audio/wav (already pulled in for sound_wav.go's WAV
// Sound adapter) for the file-backed sink, and on the host
// callback shape spec.md §4.5 lists ("on_buffer_captured(samples)")
// for the callback-backed sink used when a host wants the frames
// in-process rather than written to disk.
package bae

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// CaptureSink receives every block of interleaved int16 frames the
// Mixer renders while a capture is active. Write must not retain the
// slice past the call; RenderBlock reuses its backing array.
type CaptureSink interface {
	Write(samples []int16) error
	Close() error
}

// WavCaptureSink writes captured frames to a WAV file via
// github.com/go-audio/wav, the same library sound_wav.go uses to read
// WAV Sounds.
type WavCaptureSink struct {
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	channels int
}

// NewWavCaptureSink opens a streaming WAV encoder over w. Close must
// be called to finalize the header once capture ends.
func NewWavCaptureSink(w io.WriteSeeker, sampleRate, channels int) *WavCaptureSink {
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	return &WavCaptureSink{
		enc:      enc,
		channels: channels,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
			SourceBitDepth: 16,
		},
	}
}

// Write implements CaptureSink.
func (s *WavCaptureSink) Write(samples []int16) error {
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]
	for i, v := range samples {
		s.buf.Data[i] = int(v)
	}
	if err := s.enc.Write(s.buf); err != nil {
		return newError(KindDeviceError, "WavCaptureSink.Write", err)
	}
	return nil
}

// Close implements CaptureSink, finalizing the WAV header.
func (s *WavCaptureSink) Close() error {
	if err := s.enc.Close(); err != nil {
		return newError(KindDeviceError, "WavCaptureSink.Close", err)
	}
	return nil
}

// CallbackCaptureSink forwards each captured block to a host function,
// backing the on_buffer_captured(samples) callback spec.md §4.5 lists
// for hosts that want frames in-process instead of written to disk.
type CallbackCaptureSink struct {
	fn func(samples []int16)
}

// NewCallbackCaptureSink wraps fn as a CaptureSink. fn must not retain
// the slice past the call.
func NewCallbackCaptureSink(fn func(samples []int16)) *CallbackCaptureSink {
	return &CallbackCaptureSink{fn: fn}
}

// Write implements CaptureSink.
func (s *CallbackCaptureSink) Write(samples []int16) error {
	if s.fn != nil {
		s.fn(samples)
	}
	return nil
}

// Close implements CaptureSink.
func (s *CallbackCaptureSink) Close() error { return nil }
