package bae

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// minimalSMF builds a hand-rolled format-0 Standard MIDI File with one
// track: a tempo meta event, a note-on, a note-off one quarter note
// later, and an end-of-track meta event. Built directly from the SMF
// byte format rather than via a writer API, so the test exercises
// LoadSMF's real parsing path against bytes whose meaning is plain to
// read here.
func minimalSMF(ppqn uint16) []byte {
	var track bytes.Buffer
	track.Write([]byte{0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}) // tempo: 500000us/quarter (120bpm)
	track.Write([]byte{0x00, 0x90, 0x3C, 0x64})                   // note on, ch0, note 60, vel 100
	track.Write([]byte{0x60, 0x80, 0x3C, 0x00})                   // note off after 96 ticks
	track.Write([]byte{0x00, 0xFF, 0x2F, 0x00})                   // end of track

	var buf bytes.Buffer
	buf.WriteString("MThd")
	buf.Write([]byte{0x00, 0x00, 0x00, 0x06})
	buf.Write([]byte{0x00, 0x00}) // format 0
	buf.Write([]byte{0x00, 0x01}) // 1 track
	buf.Write([]byte{byte(ppqn >> 8), byte(ppqn)})

	buf.WriteString("MTrk")
	trackLen := track.Len()
	buf.Write([]byte{byte(trackLen >> 24), byte(trackLen >> 16), byte(trackLen >> 8), byte(trackLen)})
	buf.Write(track.Bytes())

	return buf.Bytes()
}

func TestLoadSMF_ParsesNoteAndTempo(t *testing.T) {
	stream, ppqn, err := LoadSMF(bytes.NewReader(minimalSMF(96)))
	require.NoError(t, err)
	require.Equal(t, 96, ppqn)

	ev, delta, ok := stream.Next()
	require.True(t, ok)
	require.Equal(t, EventTempoChange, ev.Kind)
	require.Equal(t, 500000, ev.TempoMicrosPerQuarterNote)
	require.Equal(t, uint32(0), delta)

	ev, delta, ok = stream.Next()
	require.True(t, ok)
	require.Equal(t, EventNoteOn, ev.Kind)
	require.Equal(t, 60, ev.Note)
	require.Equal(t, 100, ev.Velocity)
	require.Equal(t, uint32(0), delta)

	ev, delta, ok = stream.Next()
	require.True(t, ok)
	require.Equal(t, EventNoteOff, ev.Kind)
	require.Equal(t, 60, ev.Note)
	require.Equal(t, uint32(96), delta)

	ev, _, ok = stream.Next()
	require.True(t, ok)
	require.Equal(t, EventEndOfTrack, ev.Kind)

	_, _, ok = stream.Next()
	require.False(t, ok)
}

func TestLoadSMF_ResetReplaysIdentically(t *testing.T) {
	stream, _, err := LoadSMF(bytes.NewReader(minimalSMF(96)))
	require.NoError(t, err)

	var first []Event
	for {
		ev, _, ok := stream.Next()
		if !ok {
			break
		}
		first = append(first, ev)
	}

	stream.Reset()
	var second []Event
	for {
		ev, _, ok := stream.Next()
		if !ok {
			break
		}
		second = append(second, ev)
	}

	require.Equal(t, first, second)
}

func TestDecodeChannelMessage_NoteOnVelocityZeroIsNoteOff(t *testing.T) {
	ev, ok := decodeChannelMessage(2, 0x90, 64, 0)
	require.True(t, ok)
	require.Equal(t, EventNoteOff, ev.Kind)
	require.Equal(t, 2, ev.Channel)
	require.Equal(t, 64, ev.Note)
}

func TestDecodeChannelMessage_PitchBendCentersAtZero(t *testing.T) {
	ev, ok := decodeChannelMessage(0, 0xE0, 0x00, 0x40) // 0x40<<7 | 0 = 8192 -> centered
	require.True(t, ok)
	require.Equal(t, EventPitchBend, ev.Kind)
	require.Equal(t, 0, ev.PitchBend)
}
