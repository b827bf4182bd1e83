//go:build !headless

// hostoutput_oto.go - ebitengine/oto v3 audio output, adapted from the
// teacher's audio_backend_oto.go: same atomic-pointer hot path and
// pre-allocated sample buffer, retargeted from SoundChip.ReadSampleFromRing
// (a single float32 per call) to Mixer.RenderBlock (a whole int16 block
// per oto Read callback).
package main

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"github.com/beatcraft/baesynth"
)

// OtoPlayer drives an oto.Player from a bae.Mixer, pulling one block at
// a time on oto's callback goroutine.
type OtoPlayer struct {
	ctx     *oto.Context
	player  *oto.Player
	mixer   atomic.Pointer[bae.Mixer]
	channels int

	pcm   []int16   // scratch, reused across Read calls
	fbuf  []float32 // converted output handed to oto

	started bool
	mutex   sync.Mutex
}

// NewOtoPlayer opens an oto context at sampleRate/channels.
func NewOtoPlayer(sampleRate, channels int) (*OtoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	return &OtoPlayer{ctx: ctx, channels: channels}, nil
}

// SetupPlayer binds m as the source RenderBlock pulls from; lock-free
// for the Read hot path via the atomic.Pointer swap.
func (op *OtoPlayer) SetupPlayer(m *bae.Mixer) {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	op.mixer.Store(m)
	op.player = op.ctx.NewPlayer(op)
}

// Read implements io.Reader for oto.Player: fills p with the next block
// of interleaved float32 samples from the bound Mixer.
func (op *OtoPlayer) Read(p []byte) (n int, err error) {
	m := op.mixer.Load()
	if m == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	frameBytes := 4 * op.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	need := frames * op.channels
	if cap(op.pcm) < need {
		op.pcm = make([]int16, need)
	}
	pcm := op.pcm[:need]
	m.RenderBlock(pcm)

	if cap(op.fbuf) < need {
		op.fbuf = make([]float32, need)
	}
	fbuf := op.fbuf[:need]
	for i, s := range pcm {
		fbuf[i] = float32(s) / 32768
	}

	for i, s := range fbuf {
		bits := math.Float32bits(s)
		p[i*4+0] = byte(bits)
		p[i*4+1] = byte(bits >> 8)
		p[i*4+2] = byte(bits >> 16)
		p[i*4+3] = byte(bits >> 24)
	}
	return frames * frameBytes, nil
}

func (op *OtoPlayer) Start() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if !op.started && op.player != nil {
		op.player.Play()
		op.started = true
	}
}

func (op *OtoPlayer) Stop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.started && op.player != nil {
		op.player.Pause()
		op.started = false
	}
}

func (op *OtoPlayer) Close() {
	op.Stop()
	op.mutex.Lock()
	defer op.mutex.Unlock()
	if op.player != nil {
		op.player.Close()
		op.player = nil
	}
}

func (op *OtoPlayer) IsStarted() bool {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.started
}
