// sound_wav.go - WAV Sound adapter, spec.md §4.3/§6.2.
//
// Grounded on go-audio/wav, the same decoder go-audio/riff's own
// module family ships for RIFF "WAVE" files.

package bae

import (
	"io"

	"github.com/go-audio/wav"
)

// NewWAVSound decodes r fully as a WAV file and returns a Sound over
// it.
func NewWAVSound(r io.Reader) (Sound, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, newError(KindUnsupported, "NewWAVSound", errNeedsSeeker)
	}
	dec := wav.NewDecoder(rs)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, newError(KindBadFile, "NewWAVSound", err)
	}

	channels := buf.Format.NumChannels
	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = int16(v)
	}

	return &pcmSound{
		pcm:        pcm,
		channels:   channels,
		sampleRate: buf.Format.SampleRate,
	}, nil
}
