// sound_vorbis.go - Ogg Vorbis Sound adapter, spec.md §4.3/§6.2.
//
// Grounded on github.com/jfreymuth/oggvorbis, a pure-Go decoder
// exposing a Reader with a streaming float32 Read method plus
// SampleRate/Channels accessors.

package bae

import (
	"io"

	"github.com/jfreymuth/oggvorbis"
)

// NewVorbisSound decodes r fully as an Ogg Vorbis stream.
func NewVorbisSound(r io.Reader) (Sound, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, newError(KindBadFile, "NewVorbisSound", err)
	}

	channels := dec.Channels()
	var floats []float32
	buf := make([]float32, 4096)
	for {
		n, err := dec.Read(buf)
		floats = append(floats, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newError(KindBadFile, "NewVorbisSound", err)
		}
		if n == 0 {
			break
		}
	}

	pcm := make([]int16, len(floats))
	for i, f := range floats {
		pcm[i] = int16(clampF32(f, -1, 1) * 32767)
	}

	return &pcmSound{
		pcm:        pcm,
		channels:   channels,
		sampleRate: dec.SampleRate(),
	}, nil
}
