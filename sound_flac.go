// sound_flac.go - FLAC Sound adapter, spec.md §4.3/§6.2.
//
// Grounded on github.com/mewkiz/flac, a pure-Go FLAC decoder exposing
// frame-at-a-time parsing (Stream.ParseNext) with already
// channel-decorrelated per-subframe sample slices.

package bae

import (
	"io"

	"github.com/mewkiz/flac"
)

// NewFLACSound decodes r fully as a FLAC stream.
func NewFLACSound(r io.Reader) (Sound, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, newError(KindUnsupported, "NewFLACSound", errNeedsSeeker)
	}
	stream, err := flac.New(rs)
	if err != nil {
		return nil, newError(KindBadFile, "NewFLACSound", err)
	}

	channels := int(stream.Info.NChannels)
	bps := int(stream.Info.BitsPerSample)
	shift := bps - 16
	if shift < 0 {
		shift = 0
	}

	var pcm []int16
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newError(KindBadFile, "NewFLACSound", err)
		}
		n := len(f.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				v := f.Subframes[ch].Samples[i] >> shift
				pcm = append(pcm, int16(v))
			}
		}
	}

	return &pcmSound{
		pcm:        pcm,
		channels:   channels,
		sampleRate: int(stream.Info.SampleRate),
	}, nil
}
