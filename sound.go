// sound.go - Sound pull-stream interface, spec.md §4.3 "Sounds".
//
// Grounded on the oto/v2 player.Read pull-model in
// other_examples/7a4f0047_aaliyan1230-midi-mixer (audio-engine.go's
// audioStream.Read filling a host-requested buffer on demand): the
// same "host asks, Sound fills what it can" shape, generalised from
// that file's single hardcoded engine into a Sound interface any
// decoder (WAV/AIFF/AU/MP3/Vorbis/FLAC) can implement.

package bae

import "errors"

// errNeedsSeeker is returned by adapters whose underlying decoder
// requires random access (go-audio/wav, mewkiz/flac) when given a
// plain io.Reader.
var errNeedsSeeker = errors.New("sound: source does not support seeking")

// FillStatus reports the outcome of a Sound.Fill call.
type FillStatus int

const (
	FillOK FillStatus = iota
	FillDone
	FillError
)

// Sound is a pull source of interleaved float32 PCM in -1..1, used by
// the Mixer's sound slot table (spec.md §4.4) for anything that isn't
// synthesized from a bank: pre-rendered stingers, ambience loops,
// voiceovers.
type Sound interface {
	// Fill writes up to len(out)/Channels() frames into out, returns
	// the number of frames actually written and whether the sound has
	// more data after this call.
	Fill(out []float32) (frames int, status FillStatus)
	Channels() int
	SampleRate() int
	// Reset rewinds to the first frame, used for looping sound slots.
	Reset()
}

// pcmSound is the shared backing for every format adapter in this
// file's siblings: each decodes its source eagerly into PCM at
// construction (mirroring Sample's own eager-decode discipline in
// sample.go) and Fill just walks a cursor over it.
type pcmSound struct {
	pcm        []int16
	channels   int
	sampleRate int
	pos        int // frame index
}

func (p *pcmSound) Channels() int    { return p.channels }
func (p *pcmSound) SampleRate() int  { return p.sampleRate }
func (p *pcmSound) Reset()           { p.pos = 0 }
func (p *pcmSound) totalFrames() int { return len(p.pcm) / p.channels }

func (p *pcmSound) Fill(out []float32) (int, FillStatus) {
	if p.channels == 0 {
		return 0, FillError
	}
	frames := len(out) / p.channels
	total := p.totalFrames()

	n := 0
	for n < frames && p.pos < total {
		for ch := 0; ch < p.channels; ch++ {
			out[n*p.channels+ch] = float32(p.pcm[p.pos*p.channels+ch]) / 32768
		}
		p.pos++
		n++
	}
	status := FillOK
	if p.pos >= total {
		status = FillDone
	}
	return n, status
}
