//go:build headless

// hostoutput_headless.go - no-op audio output for tests/CI, adapted
// from the teacher's audio_backend_headless.go.
package main

import "github.com/beatcraft/baesynth"

type OtoPlayer struct {
	started bool
	mixer   *bae.Mixer
}

func NewOtoPlayer(sampleRate, channels int) (*OtoPlayer, error) {
	return &OtoPlayer{}, nil
}

func (op *OtoPlayer) SetupPlayer(m *bae.Mixer) {
	op.mixer = m
}

func (op *OtoPlayer) Read(p []byte) (n int, err error) {
	return len(p), nil
}

func (op *OtoPlayer) Start() { op.started = true }
func (op *OtoPlayer) Stop()  { op.started = false }
func (op *OtoPlayer) Close() { op.started = false }

func (op *OtoPlayer) IsStarted() bool { return op.started }
