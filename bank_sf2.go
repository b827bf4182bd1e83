// bank_sf2.go - SoundFont 2 (SF2) bank loading, spec.md §6.2.
//
// SF2's "pdta" chunk needs random access across nine parallel bag/
// generator arrays (phdr/pbag/pgen and inst/ibag/igen, cross-indexed
// by delta-to-next-bag), which a forward-only chunk reader like
// go-audio/riff doesn't help with once buffered — so this is a
// hand-rolled RIFF walk instead, grounded directly on
// original_source/minibae's GenSF2_BassMidi.c traversal of the same
// nine arrays. bank_native.go and bank_dls.go use go-audio/riff;
// this file does not, and that is the one place in the bank loaders
// where the standard library alone is used for container framing.

package bae

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

const (
	sfGenKeyRange   = 43
	sfGenVelRange   = 44
	sfGenInstrument = 41
	sfGenSampleID   = 53
)

type sfGen struct {
	Oper   uint16
	Amount [2]byte
}

func (g sfGen) asInt16() int16 {
	return int16(binary.LittleEndian.Uint16(g.Amount[:]))
}

func (g sfGen) asRange() (lo, hi int) {
	return int(g.Amount[0]), int(g.Amount[1])
}

type sfBag struct {
	GenNdx uint16
	ModNdx uint16
}

type sfPresetHeader struct {
	Name          [20]byte
	Preset        uint16
	Bank          uint16
	PresetBagNdx  uint16
	Library       uint32
	Genre         uint32
	Morphology    uint32
}

type sfInst struct {
	Name       [20]byte
	InstBagNdx uint16
}

type sfSampleHeader struct {
	Name            [20]byte
	Start, End      uint32
	StartLoop       uint32
	EndLoop         uint32
	SampleRate      uint32
	OriginalPitch   uint8
	PitchCorrection int8
	SampleLink      uint16
	SampleType      uint16
}

func decodeSF2Bank(r io.Reader) (*Bank, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sf2 bank: %w", err)
	}
	if len(all) < 12 || string(all[0:4]) != "RIFF" || string(all[8:12]) != "sfbk" {
		return nil, fmt.Errorf("sf2 bank: not an sfbk RIFF file")
	}

	var rawPCM []int16
	var phdrs []sfPresetHeader
	var pbags, ibags []sfBag
	var pgens, igens []sfGen
	var insts []sfInst
	var shdrs []sfSampleHeader

	pos := 12
	for pos+8 <= len(all) {
		id := string(all[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(all[pos+4 : pos+8]))
		body := all[pos+8 : pos+8+size]
		pos += 8 + size
		if size%2 == 1 {
			pos++ // RIFF chunks pad to even size
		}

		if id != "LIST" || len(body) < 4 {
			continue
		}
		form := string(body[0:4])
		sub := body[4:]

		switch form {
		case "sdta":
			if err := walkSF2Chunks(sub, func(cid string, cbody []byte) error {
				if cid == "smpl" {
					rawPCM = bytesToPCM16(cbody)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		case "pdta":
			if err := walkSF2Chunks(sub, func(cid string, cbody []byte) error {
				switch cid {
				case "phdr":
					phdrs = decodeSF2Records(cbody, sfPresetHeader{}).([]sfPresetHeader)
				case "pbag":
					pbags = decodeSF2Bags(cbody)
				case "pgen":
					pgens = decodeSF2Gens(cbody)
				case "inst":
					insts = decodeSF2Records(cbody, sfInst{}).([]sfInst)
				case "ibag":
					ibags = decodeSF2Bags(cbody)
				case "igen":
					igens = decodeSF2Gens(cbody)
				case "shdr":
					shdrs = decodeSF2Records(cbody, sfSampleHeader{}).([]sfSampleHeader)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
	}

	bank := &Bank{
		Format:      BankFormatSF2,
		Instruments: make(map[instrumentKey]*Instrument),
		Percussion:  make(map[int]*Instrument),
	}

	// Every shdrs entry slices its own disjoint range of the
	// already-fully-buffered rawPCM, so decoding each one is
	// independent and safe to fan out across goroutines, unlike
	// bank_native.go/bank_dls.go's single sequential stream readers
	// (SPEC_FULL.md §B: the one place the bank loaders parallelise
	// per-sample PCM conversion).
	bank.Samples = make([]Sample, len(shdrs))
	var g errgroup.Group
	for i, sh := range shdrs {
		i, sh := i, sh
		g.Go(func() error {
			start, end := int(sh.Start), int(sh.End)
			if start < 0 || end > len(rawPCM) || end <= start {
				return nil
			}
			pcm := append([]int16(nil), rawPCM[start:end]...)
			bank.Samples[i] = Sample{
				PCM:           pcm,
				Channels:      1,
				FrameCount:    len(pcm),
				SampleRate:    int(sh.SampleRate),
				RootPitch:     int(sh.OriginalPitch),
				FineTuneCents: int(sh.PitchCorrection),
				LoopStart:     int(sh.StartLoop) - start,
				LoopEnd:       int(sh.EndLoop) - start,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sf2 bank: decoding samples: %w", err)
	}

	// instrument index -> zones, built from inst/ibag/igen.
	instZones := make([][]InstrumentZone, len(insts))
	for i := range insts {
		bagLo := int(insts[i].InstBagNdx)
		bagHi := len(ibags) - 1
		if i+1 < len(insts) {
			bagHi = int(insts[i+1].InstBagNdx)
		}
		for b := bagLo; b < bagHi && b+1 < len(ibags); b++ {
			genLo := int(ibags[b].GenNdx)
			genHi := int(ibags[b+1].GenNdx)
			zone := InstrumentZone{LowKey: 0, HighKey: 127, LowVelocity: 0, HighVelocity: 127}
			leaf := &InstrumentLeaf{VelocityCurve: VelocityMiniBAES}
			hasSample := false
			for g := genLo; g < genHi && g < len(igens); g++ {
				switch igens[g].Oper {
				case sfGenKeyRange:
					lo, hi := igens[g].asRange()
					zone.LowKey, zone.HighKey = lo, hi
				case sfGenVelRange:
					lo, hi := igens[g].asRange()
					zone.LowVelocity, zone.HighVelocity = lo, hi
				case sfGenSampleID:
					leaf.Sample = SampleRef{index: int(igens[g].asInt16())}
					hasSample = true
				}
			}
			if !hasSample {
				continue
			}
			if idx := leaf.Sample.index; idx >= 0 && idx < len(bank.Samples) {
				leaf.ADSRStages = defaultDLSEnvelope()
			}
			zone.Leaf = leaf
			instZones[i] = append(instZones[i], zone)
		}
	}

	// presets -> bank.Instruments, built from phdr/pbag/pgen.
	for p := range phdrs {
		bagLo := int(phdrs[p].PresetBagNdx)
		bagHi := len(pbags) - 1
		if p+1 < len(phdrs) {
			bagHi = int(phdrs[p+1].PresetBagNdx)
		}
		ins := &Instrument{Name: cString(phdrs[p].Name[:])}
		for b := bagLo; b < bagHi && b+1 < len(pbags); b++ {
			genLo := int(pbags[b].GenNdx)
			genHi := int(pbags[b+1].GenNdx)
			for g := genLo; g < genHi && g < len(pgens); g++ {
				if pgens[g].Oper != sfGenInstrument {
					continue
				}
				idx := int(pgens[g].asInt16())
				if idx >= 0 && idx < len(instZones) {
					ins.Zones = append(ins.Zones, instZones[idx]...)
				}
			}
		}
		if len(ins.Zones) > 0 {
			ins.Default = ins.Zones[len(ins.Zones)-1].Leaf
		}
		if phdrs[p].Bank == 128 {
			for _, z := range ins.Zones {
				bank.Percussion[z.LowKey] = &Instrument{Name: ins.Name, Default: z.Leaf}
			}
		} else {
			bank.Instruments[instrumentKey{BankMSB: uint8(phdrs[p].Bank), Program: int(phdrs[p].Preset)}] = ins
		}
	}

	return bank, nil
}

func walkSF2Chunks(data []byte, fn func(id string, body []byte) error) error {
	pos := 0
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		if pos+8+size > len(data) {
			return fmt.Errorf("sf2 bank: chunk %q overruns parent", id)
		}
		body := data[pos+8 : pos+8+size]
		if err := fn(id, body); err != nil {
			return err
		}
		pos += 8 + size
		if size%2 == 1 {
			pos++
		}
	}
	return nil
}

func decodeSF2Bags(body []byte) []sfBag {
	n := len(body) / 4
	out := make([]sfBag, n)
	for i := 0; i < n; i++ {
		out[i] = sfBag{
			GenNdx: binary.LittleEndian.Uint16(body[i*4:]),
			ModNdx: binary.LittleEndian.Uint16(body[i*4+2:]),
		}
	}
	return out
}

func decodeSF2Gens(body []byte) []sfGen {
	n := len(body) / 4
	out := make([]sfGen, n)
	for i := 0; i < n; i++ {
		out[i] = sfGen{
			Oper:   binary.LittleEndian.Uint16(body[i*4:]),
			Amount: [2]byte{body[i*4+2], body[i*4+3]},
		}
	}
	return out
}

// decodeSF2Records decodes a fixed-size-record chunk via
// encoding/binary.Read into a slice of the same type as sample,
// returned as interface{} since phdr/inst/shdr each have distinct
// record layouts.
func decodeSF2Records(body []byte, sample interface{}) interface{} {
	r := bytes.NewReader(body)
	switch sample.(type) {
	case sfPresetHeader:
		var out []sfPresetHeader
		for {
			var rec sfPresetHeader
			if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
				break
			}
			out = append(out, rec)
		}
		return out
	case sfInst:
		var out []sfInst
		for {
			var rec sfInst
			if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
				break
			}
			out = append(out, rec)
		}
		return out
	case sfSampleHeader:
		var out []sfSampleHeader
		for {
			var rec sfSampleHeader
			if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
				break
			}
			out = append(out, rec)
		}
		return out
	default:
		return nil
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
