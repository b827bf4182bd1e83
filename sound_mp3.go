// sound_mp3.go - MP3 Sound adapter, spec.md §4.3/§6.2.
//
// Grounded on github.com/hajimehoshi/go-mp3, a pure-Go streaming
// decoder exposing itself as an io.Reader of signed 16-bit LE stereo
// PCM.

package bae

import (
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// NewMP3Sound decodes r fully as an MP3 stream.
func NewMP3Sound(r io.Reader) (Sound, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, newError(KindBadFile, "NewMP3Sound", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, newError(KindBadFile, "NewMP3Sound", err)
	}

	pcm := bytesToPCM16(raw)
	return &pcmSound{
		pcm:        pcm,
		channels:   2, // go-mp3 always decodes to stereo
		sampleRate: dec.SampleRate(),
	}, nil
}
