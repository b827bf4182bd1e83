// sound_aiff.go - AIFF Sound adapter, spec.md §4.3/§6.2.
//
// No example repo in the retrieval pack carries an AIFF decoder, so
// this is hand-rolled against the format's own chunk layout (a
// big-endian RIFF-alike: "FORM"/"AIFF" container, "COMM" for
// channels/rate/bit depth, "SSND" for sample data) rather than a
// third-party library — one of the two Sound adapters in this engine
// (with sound_au.go) built on the standard library alone.

package bae

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

func decodeAIFFExtended(b [10]byte) float64 {
	sign := 1.0
	if b[0]&0x80 != 0 {
		sign = -1.0
	}
	exponent := int((uint16(b[0])&0x7f)<<8|uint16(b[1])) - 16383
	mantissa := binary.BigEndian.Uint64(b[2:10])
	return sign * float64(mantissa) * math.Pow(2, float64(exponent-63))
}

// NewAIFFSound decodes r fully as an AIFF/AIFC file.
func NewAIFFSound(r io.Reader) (Sound, error) {
	var form [4]byte
	var size uint32
	var formType [4]byte
	if err := binary.Read(r, binary.BigEndian, &form); err != nil {
		return nil, newError(KindBadFile, "NewAIFFSound", err)
	}
	if string(form[:]) != "FORM" {
		return nil, newError(KindBadFile, "NewAIFFSound", fmt.Errorf("not a FORM container"))
	}
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, newError(KindBadFile, "NewAIFFSound", err)
	}
	if err := binary.Read(r, binary.BigEndian, &formType); err != nil {
		return nil, newError(KindBadFile, "NewAIFFSound", err)
	}
	if string(formType[:]) != "AIFF" && string(formType[:]) != "AIFC" {
		return nil, newError(KindBadFile, "NewAIFFSound", fmt.Errorf("unexpected form type %q", formType[:]))
	}

	var channels int
	var sampleRate int
	var bitsPerSample int
	var raw []byte

	for {
		var id [4]byte
		var chunkSize uint32
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			break
		}
		if err := binary.Read(r, binary.BigEndian, &chunkSize); err != nil {
			return nil, newError(KindBadFile, "NewAIFFSound", err)
		}

		switch string(id[:]) {
		case "COMM":
			var hdr struct {
				NumChannels     int16
				NumSampleFrames uint32
				SampleSize      int16
			}
			if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
				return nil, newError(KindBadFile, "NewAIFFSound", err)
			}
			var ext [10]byte
			if err := binary.Read(r, binary.BigEndian, &ext); err != nil {
				return nil, newError(KindBadFile, "NewAIFFSound", err)
			}
			channels = int(hdr.NumChannels)
			bitsPerSample = int(hdr.SampleSize)
			sampleRate = int(decodeAIFFExtended(ext))
			remaining := int64(chunkSize) - 18 - 10
			if remaining > 0 {
				if _, err := io.CopyN(io.Discard, r, remaining); err != nil {
					return nil, newError(KindBadFile, "NewAIFFSound", err)
				}
			}
		case "SSND":
			var offset, blockSize uint32
			if err := binary.Read(r, binary.BigEndian, &offset); err != nil {
				return nil, newError(KindBadFile, "NewAIFFSound", err)
			}
			if err := binary.Read(r, binary.BigEndian, &blockSize); err != nil {
				return nil, newError(KindBadFile, "NewAIFFSound", err)
			}
			dataLen := int64(chunkSize) - 8
			buf := make([]byte, dataLen)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, newError(KindBadFile, "NewAIFFSound", err)
			}
			raw = buf
		default:
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil && err != io.EOF {
				return nil, newError(KindBadFile, "NewAIFFSound", err)
			}
		}
	}

	if channels == 0 {
		return nil, newError(KindBadFile, "NewAIFFSound", fmt.Errorf("missing COMM chunk"))
	}

	var pcm []int16
	switch bitsPerSample {
	case 8:
		pcm = make([]int16, len(raw))
		for i, b := range raw {
			pcm[i] = int16(int8(b)) << 8
		}
	case 16:
		pcm = make([]int16, len(raw)/2)
		for i := range pcm {
			pcm[i] = int16(binary.BigEndian.Uint16(raw[i*2:]))
		}
	case 24:
		n := len(raw) / 3
		pcm = make([]int16, n)
		for i := 0; i < n; i++ {
			v := int32(raw[i*3])<<16 | int32(raw[i*3+1])<<8 | int32(raw[i*3+2])
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			pcm[i] = int16(v >> 8)
		}
	default:
		return nil, newError(KindUnsupported, "NewAIFFSound", fmt.Errorf("unsupported bit depth %d", bitsPerSample))
	}

	return &pcmSound{pcm: pcm, channels: channels, sampleRate: sampleRate}, nil
}
