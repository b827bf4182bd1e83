// sound_au.go - Sun/NeXT .au Sound adapter, spec.md §4.3/§6.2.
//
// Like AIFF, no example repo carries an .au decoder; this is
// hand-rolled against the format's fixed 24-byte big-endian header
// (magic ".snd", data offset/size, encoding, rate, channels).

package bae

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	auEncodingPCM8  = 2
	auEncodingPCM16 = 3
)

// NewAUSound decodes r fully as a .au stream.
func NewAUSound(r io.Reader) (Sound, error) {
	var hdr struct {
		Magic      [4]byte
		DataOffset uint32
		DataSize   uint32
		Encoding   uint32
		SampleRate uint32
		Channels   uint32
	}
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, newError(KindBadFile, "NewAUSound", err)
	}
	if string(hdr.Magic[:]) != ".snd" {
		return nil, newError(KindBadFile, "NewAUSound", fmt.Errorf("missing .snd magic"))
	}

	// DataOffset counts from the start of the file; the fixed header
	// above is 24 bytes, so skip any annotation field beyond it.
	if extra := int64(hdr.DataOffset) - 24; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return nil, newError(KindBadFile, "NewAUSound", err)
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, newError(KindBadFile, "NewAUSound", err)
	}

	var pcm []int16
	switch hdr.Encoding {
	case auEncodingPCM8:
		pcm = make([]int16, len(raw))
		for i, b := range raw {
			pcm[i] = int16(int8(b)) << 8
		}
	case auEncodingPCM16:
		pcm = make([]int16, len(raw)/2)
		for i := range pcm {
			pcm[i] = int16(binary.BigEndian.Uint16(raw[i*2:]))
		}
	default:
		return nil, newError(KindUnsupported, "NewAUSound", fmt.Errorf("unsupported .au encoding %d", hdr.Encoding))
	}

	channels := int(hdr.Channels)
	if channels == 0 {
		channels = 1
	}

	return &pcmSound{pcm: pcm, channels: channels, sampleRate: int(hdr.SampleRate)}, nil
}
