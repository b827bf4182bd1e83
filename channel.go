// channel.go - per-channel MIDI controller cache, spec.md §4.3
// "Channel State".
//
// Grounded on the teacher's per-voice register cache in audio_chip.go
// (each Channel struct caching its own volume/pan/waveform rather than
// re-deriving them from register writes each sample): the same
// cache-on-write approach, applied to the 16 MIDI channels a Song
// multiplexes instead of the teacher's 4 chip voices.

package bae

// PercussionChannel is the zero-based MIDI channel reserved for
// percussion (channel 10 in 1-based MIDI terminology).
const PercussionChannel = 9

// Channel caches the state the MIDI spec says must persist across
// events on one channel: bank/program selection, the coarse
// controllers synthesis depends on every tick, and raw CC values for
// anything else an instrument wants to read.
type Channel struct {
	Index int

	BankMSB uint8
	BankLSB uint8
	Program int

	Volume     float64 // CC7, 0..1, default 1
	Pan        float64 // CC10, -1..1, default 0 (center)
	Expression float64 // CC11, 0..1, default 1
	Sustain    bool    // CC64 >= 64
	ReverbSend float64 // CC91, 0..1, default 0
	ChorusSend float64 // CC93, 0..1, default 0 (cached only; no chorus send is mixed)

	Muted bool

	PitchBend               int     // -8192..8191
	PitchBendRangeSemitones float64 // RPN 0,0, default 2

	rpnMSB, rpnLSB     uint8
	rpnDataEntryActive bool

	CC [128]uint8
}

// NewChannel builds a Channel at its MIDI power-on defaults.
func NewChannel(index int) *Channel {
	c := &Channel{
		Index:                   index,
		Volume:                  1,
		Expression:              1,
		PitchBendRangeSemitones: 2,
		rpnMSB:                  0x7F,
		rpnLSB:                  0x7F,
	}
	return c
}

// IsPercussion reports whether this channel resolves instruments by
// note instead of program (spec.md §4.1).
func (c *Channel) IsPercussion() bool {
	return c.Index == PercussionChannel
}

// HandleControlChange updates cached state for a CC value, per the
// standard MIDI controller numbers (spec.md §4.3).
func (c *Channel) HandleControlChange(controller, value int) {
	if controller < 0 || controller > 127 {
		return
	}
	c.CC[controller] = uint8(value)

	switch controller {
	case 0:
		c.BankMSB = uint8(value)
	case 32:
		c.BankLSB = uint8(value)
	case 7:
		c.Volume = float64(value) / 127
	case 10:
		c.Pan = float64(value)/63.5 - 1
	case 11:
		c.Expression = float64(value) / 127
	case 64:
		c.Sustain = value >= 64
	case 91:
		c.ReverbSend = float64(value) / 127
	case 93:
		c.ChorusSend = float64(value) / 127
	case 6: // Data Entry MSB
		c.handleDataEntry(value, -1)
	case 38: // Data Entry LSB
		c.handleDataEntry(-1, value)
	case 100:
		c.rpnLSB = uint8(value)
		c.rpnDataEntryActive = true
	case 101:
		c.rpnMSB = uint8(value)
		c.rpnDataEntryActive = true
	case 98, 99: // NRPN selects disable RPN data entry
		c.rpnDataEntryActive = false
	case 121: // Reset All Controllers
		c.resetControllers()
	}
}

func (c *Channel) handleDataEntry(msb, lsb int) {
	if !c.rpnDataEntryActive {
		return
	}
	if c.rpnMSB == 0 && c.rpnLSB == 0 && msb >= 0 {
		// RPN 0,0: pitch bend sensitivity, semitones in the data MSB.
		c.PitchBendRangeSemitones = float64(msb)
	}
}

// resetControllers implements CC121 (spec.md §4.3 edge case): pitch
// bend, expression and sustain return to default; volume, pan and
// program are left untouched, matching the MIDI 1.0 recommendation.
func (c *Channel) resetControllers() {
	c.PitchBend = 0
	c.Expression = 1
	c.Sustain = false
}

// HandlePitchBend updates the cached bend value from raw 7-bit LSB/MSB
// bytes, centered at zero (spec.md §4.3: "14-bit value, 0x2000 center").
func (c *Channel) HandlePitchBend(lsb, msb int) {
	raw := (msb << 7) | lsb
	c.PitchBend = raw - 8192
}

// PitchBendSemitones converts the cached 14-bit bend to semitones
// using the channel's RPN-configured sensitivity.
func (c *Channel) PitchBendSemitones() float64 {
	return float64(c.PitchBend) / 8192 * c.PitchBendRangeSemitones
}

// BankNumber combines MSB/LSB into one 14-bit bank number, for logging.
// Instrument lookup keys on BankMSB and BankLSB separately.
func (c *Channel) BankNumber() int {
	return int(c.BankMSB)<<7 | int(c.BankLSB)
}
