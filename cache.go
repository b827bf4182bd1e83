// cache.go - Sample Cache & Instrument Resolver, spec.md §4.1.
//
// Grounded on the teacher's SoundChip register file as the "one global
// owner of loaded state" pattern (audio_chip.go holds every channel's
// state behind a single struct guarded at the register-write
// boundary); here the boundary is LoadBank/UnloadBank/Resolve instead
// of register writes, guarded by a sync.RWMutex since bank loads are a
// control-thread operation spec.md §5 allows to block.

package bae

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// BankToken identifies a loaded bank. The zero value never refers to a
// real bank.
type BankToken uuid.UUID

func newBankToken() BankToken {
	return BankToken(uuid.New())
}

// BankFormat selects which parser LoadBank dispatches to.
type BankFormat int

const (
	BankFormatNative BankFormat = iota
	BankFormatDLS
	BankFormatSF2
)

// instrumentKey identifies one bank entry by the MIDI bank select
// (7-bit MSB + 7-bit LSB, spec.md §3 "bank select MSB+LSB") and
// program a channel selected it with (spec.md §4.1: "Encodes
// program+bank into an internal key"). Keying solely by program, as an
// earlier revision of this file did, silently collided two
// same-program instruments declared under different banks within one
// file.
type instrumentKey struct {
	BankMSB uint8
	BankLSB uint8
	Program int
}

// Bank is a fully decoded collection of samples and instruments, as
// produced by bank_native.go, bank_dls.go or bank_sf2.go.
type Bank struct {
	Name    string
	Format  BankFormat
	Samples []Sample

	// Instruments is keyed by (bank_msb, bank_lsb, program).
	Instruments map[instrumentKey]*Instrument

	// Percussion is keyed by MIDI note number, used instead of
	// Instruments when the resolving channel is routed to percussion
	// (spec.md §4.1: "routes to the drum kit for the given note").
	Percussion map[int]*Instrument

	// PercussionAliases maps a percussion note with no direct entry to
	// the nearest declared note carrying a usable instrument, as some
	// banks only populate a handful of keys. Only the native bank
	// parser fills it, from the file's "alia" chunk; DLS and SF2 banks
	// leave it empty.
	PercussionAliases map[int]int
}

// isPercussionBank reports whether bankMSB, under this bank's file
// format convention, selects the percussion kit rather than a melodic
// program (spec.md §4.1: "bank 120 for DLS, 127 for SF2, or the legacy
// odd-bank percussion encoding of the native format").
func isPercussionBank(format BankFormat, bankMSB uint8) bool {
	switch format {
	case BankFormatDLS:
		return bankMSB == 120
	case BankFormatSF2:
		return bankMSB == 127
	default: // BankFormatNative
		return bankMSB%2 == 1
	}
}

// lookup implements spec.md §4.1's melodic fallback chain: exact
// (bank, program) match -> program in GM bank 0 -> any bank with the
// same program -> piano (program 0) in any bank. Returns nil only when
// the bank declares no melodic instruments at all, so Resolve can
// report "bank is empty" per spec.md's documented contract.
func (b *Bank) lookup(bankMSB, bankLSB uint8, program int) *Instrument {
	if ins, ok := b.Instruments[instrumentKey{bankMSB, bankLSB, program}]; ok {
		return ins
	}
	if ins, ok := b.Instruments[instrumentKey{0, 0, program}]; ok {
		return ins
	}
	for k, ins := range b.Instruments {
		if k.Program == program {
			return ins
		}
	}
	for k, ins := range b.Instruments {
		if k.Program == 0 {
			return ins
		}
	}
	for _, ins := range b.Instruments {
		return ins
	}
	return nil
}

// assignToken stamps every SampleRef reachable from this bank's
// instruments with tok, so Resolve's returned InstrumentLeaf can be
// dereferenced via SampleCache.Sample without the caller tracking
// which bank it came from. Parsers build SampleRefs with only the
// sample index populated; this is the one point where the token is
// known.
func (b *Bank) assignToken(tok BankToken) {
	stamp := func(ins *Instrument) {
		if ins == nil {
			return
		}
		if ins.Default != nil {
			ins.Default.Sample.bank = tok
		}
		for i := range ins.Zones {
			if ins.Zones[i].Leaf != nil {
				ins.Zones[i].Leaf.Sample.bank = tok
			}
		}
	}
	for _, ins := range b.Instruments {
		stamp(ins)
	}
	for _, ins := range b.Percussion {
		stamp(ins)
	}
}

// SampleCache owns every loaded Bank and resolves note-on events to
// InstrumentLeaf/SampleRef pairs. One SampleCache is shared read-only
// by every voice; only LoadBank/UnloadBank mutate it.
type SampleCache struct {
	mu    sync.RWMutex
	banks map[BankToken]*Bank
	log   *log.Logger
}

// NewSampleCache builds an empty cache. A nil logger gets a discard
// logger.
func NewSampleCache(logger *log.Logger) *SampleCache {
	if logger == nil {
		logger = discardLogger()
	}
	return &SampleCache{
		banks: make(map[BankToken]*Bank),
		log:   logger,
	}
}

// LoadBank decodes r as format and registers the result, returning a
// token for later Resolve/UnloadBank calls.
func (c *SampleCache) LoadBank(r io.Reader, format BankFormat) (BankToken, error) {
	var bank *Bank
	var err error

	switch format {
	case BankFormatNative:
		bank, err = decodeNativeBank(r)
	case BankFormatDLS:
		bank, err = decodeDLSBank(r)
	case BankFormatSF2:
		bank, err = decodeSF2Bank(r)
	default:
		return BankToken{}, newError(KindUnsupported, "LoadBank", fmt.Errorf("unknown bank format %d", format))
	}
	if err != nil {
		return BankToken{}, newError(KindBadFile, "LoadBank", err)
	}

	tok := newBankToken()
	bank.assignToken(tok)
	c.mu.Lock()
	c.banks[tok] = bank
	c.mu.Unlock()

	c.log.Debug("bank loaded", "token", uuid.UUID(tok), "name", bank.Name, "samples", len(bank.Samples))
	return tok, nil
}

// UnloadBank discards a previously loaded bank. Voices already holding
// a *Sample from it keep playing; only new Resolve calls are affected
// (spec.md §3 Ownership).
func (c *SampleCache) UnloadBank(tok BankToken) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.banks[tok]; !ok {
		return newError(KindInvalidState, "UnloadBank", fmt.Errorf("unknown bank token"))
	}
	delete(c.banks, tok)
	return nil
}

// Resolve finds the InstrumentLeaf for a note-on, per spec.md §4.1:
// bankMSB/bankLSB and channelIsPercussion together decide whether the
// lookup routes to the drum kit (keyed by note) or the melodic
// fallback chain (keyed by bank+program). channelIsPercussion carries
// the GM convention that channel 10 always plays percussion even when
// no bank-select message names the format's own drum-bank number
// (spec.md §4.1 and §9's note on percussion remapping).
func (c *SampleCache) Resolve(tok BankToken, bankMSB, bankLSB uint8, program, note, velocity int, channelIsPercussion bool) (*InstrumentLeaf, error) {
	c.mu.RLock()
	bank, ok := c.banks[tok]
	c.mu.RUnlock()
	if !ok {
		return nil, newError(KindInvalidState, "Resolve", fmt.Errorf("unknown bank token"))
	}

	if channelIsPercussion || isPercussionBank(bank.Format, bankMSB) {
		if ins := bank.Percussion[note]; ins != nil {
			return ins.Resolve(note, velocity), nil
		}
		if aliased := c.maybeApplyAliasing(bank, note); aliased != note {
			if ins := bank.Percussion[aliased]; ins != nil {
				return ins.Resolve(aliased, velocity), nil
			}
		}
		if len(bank.Percussion) == 0 && len(bank.Instruments) == 0 {
			return nil, newError(KindUnsupported, "Resolve", fmt.Errorf("bank is empty"))
		}
		return nil, newError(KindUnsupported, "Resolve", fmt.Errorf("no percussion instrument for note %d", note))
	}

	ins := bank.lookup(bankMSB, bankLSB, program)
	if ins == nil {
		if len(bank.Instruments) == 0 && len(bank.Percussion) == 0 {
			return nil, newError(KindUnsupported, "Resolve", fmt.Errorf("bank is empty"))
		}
		return nil, newError(KindUnsupported, "Resolve", fmt.Errorf("no instrument for bank %d/%d program %d", bankMSB, bankLSB, program))
	}
	return ins.Resolve(note, velocity), nil
}

// maybeApplyAliasing follows a bank's declared percussion alias table
// (spec.md §4.1: "a percussion note with no direct articulation falls
// back to the nearest declared note") and returns the note to actually
// look up. Returns note unchanged if no alias applies.
func (c *SampleCache) maybeApplyAliasing(bank *Bank, note int) int {
	if alias, ok := bank.PercussionAliases[note]; ok {
		return alias
	}
	return note
}

// Sample dereferences a SampleRef produced by a previous Resolve call.
func (c *SampleCache) Sample(ref SampleRef) (*Sample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bank, ok := c.banks[ref.bank]
	if !ok {
		return nil, newError(KindInvalidState, "Sample", fmt.Errorf("unknown bank token"))
	}
	if ref.index < 0 || ref.index >= len(bank.Samples) {
		return nil, newError(KindInvalidState, "Sample", fmt.Errorf("sample index %d out of range", ref.index))
	}
	return &bank.Samples[ref.index], nil
}
