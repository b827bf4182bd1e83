// log.go - shared structured logger wiring.
//
// The teacher logs ad-hoc with the standard library (audio_chip.go's
// HandleRegisterWrite: log.Printf("invalid register address: 0x%X", addr)).
// This engine instead threads one charmbracelet/log logger down from
// Mixer.Open, the way doismellburning/samoyed wires its daemon logger,
// so per-voice and mixer-wide diagnostics (spec.md §7) carry structured
// fields instead of formatted strings.

package bae

import (
	"io"

	"github.com/charmbracelet/log"
)

// NewLogger builds the engine's default logger, writing to w at the
// given level. Mixer.Open accepts one of these (or nil, in which case
// a silent logger is used) via Config.Logger.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "bae",
	})
	l.SetLevel(level)
	return l
}

func discardLogger() *log.Logger {
	l := log.New(io.Discard)
	return l
}
