// bank_native.go - native RIFF-chunked bank format, spec.md §6.1.
//
// Grounded on go-audio/riff's forward-only chunk walk (the same
// pattern go-audio/wav uses to read "fmt "/"data" chunks): the native
// format reuses RIFF framing purely for free chunk alignment/sizing,
// with engine-specific "smpl"/"inst"/"perc"/"alia" chunk payloads.

package bae

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/riff"
)

func decodeNativeBank(r io.Reader) (*Bank, error) {
	container, err := riff.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("native bank: %w", err)
	}
	if string(container.Format[:]) != "BAEB" {
		return nil, fmt.Errorf("native bank: unexpected form type %q", container.Format[:])
	}

	bank := &Bank{
		Format:      BankFormatNative,
		Instruments: make(map[instrumentKey]*Instrument),
		Percussion:  make(map[int]*Instrument),
	}

	for {
		chunk, err := container.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("native bank: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "smpl":
			if err := decodeNativeSamples(chunk, bank); err != nil {
				return nil, err
			}
		case "inst":
			if err := decodeNativeInstruments(chunk, bank, false); err != nil {
				return nil, err
			}
		case "perc":
			if err := decodeNativeInstruments(chunk, bank, true); err != nil {
				return nil, err
			}
		case "alia":
			if err := decodeNativeAliases(chunk, bank); err != nil {
				return nil, err
			}
		default:
			if err := chunk.Drain(); err != nil {
				return nil, fmt.Errorf("native bank: draining chunk %q: %w", chunk.ID[:], err)
			}
		}
	}

	return bank, nil
}

func decodeNativeSamples(chunk *riff.Chunk, bank *Bank) error {
	var count uint32
	if err := binary.Read(chunk, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("native bank: sample count: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		var hdr struct {
			SampleRate    uint32
			Channels      uint16
			RootPitch     uint16
			FineTuneCents int16
			LoopStart     uint32
			LoopEnd       uint32
			FrameCount    uint32
		}
		if err := binary.Read(chunk, binary.LittleEndian, &hdr); err != nil {
			return fmt.Errorf("native bank: sample %d header: %w", i, err)
		}

		pcm := make([]int16, int(hdr.FrameCount)*int(hdr.Channels))
		if err := binary.Read(chunk, binary.LittleEndian, &pcm); err != nil {
			return fmt.Errorf("native bank: sample %d data: %w", i, err)
		}

		bank.Samples = append(bank.Samples, Sample{
			PCM:           pcm,
			Channels:      int(hdr.Channels),
			FrameCount:    int(hdr.FrameCount),
			SampleRate:    int(hdr.SampleRate),
			RootPitch:     int(hdr.RootPitch),
			FineTuneCents: int(hdr.FineTuneCents),
			LoopStart:     int(hdr.LoopStart),
			LoopEnd:       int(hdr.LoopEnd),
		})
	}
	return nil
}

func decodeNativeInstruments(chunk *riff.Chunk, bank *Bank, percussion bool) error {
	var count uint32
	if err := binary.Read(chunk, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("native bank: instrument count: %w", err)
	}

	for i := uint32(0); i < count; i++ {
		// percussion entries are keyed by note number alone; melodic
		// entries additionally carry the bank select (MSB, LSB) this
		// program was declared under, so bank.Instruments can be keyed
		// by (bank, program) instead of program alone (spec.md §4.1).
		var key uint16
		if err := binary.Read(chunk, binary.LittleEndian, &key); err != nil {
			return fmt.Errorf("native bank: instrument %d key: %w", i, err)
		}
		var bankMSB, bankLSB uint8
		if !percussion {
			var bankSel struct{ MSB, LSB uint8 }
			if err := binary.Read(chunk, binary.LittleEndian, &bankSel); err != nil {
				return fmt.Errorf("native bank: instrument %d bank select: %w", i, err)
			}
			bankMSB, bankLSB = bankSel.MSB, bankSel.LSB
		}

		var nameLen uint16
		if err := binary.Read(chunk, binary.LittleEndian, &nameLen); err != nil {
			return fmt.Errorf("native bank: instrument %d name length: %w", i, err)
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(chunk, nameBuf); err != nil {
			return fmt.Errorf("native bank: instrument %d name: %w", i, err)
		}

		ins := &Instrument{Name: string(nameBuf)}

		var zoneCount uint16
		if err := binary.Read(chunk, binary.LittleEndian, &zoneCount); err != nil {
			return fmt.Errorf("native bank: instrument %d zone count: %w", i, err)
		}
		for z := uint16(0); z < zoneCount; z++ {
			var zoneHdr struct {
				LowKey, HighKey         uint8
				LowVelocity, HighVelocity uint8
			}
			if err := binary.Read(chunk, binary.LittleEndian, &zoneHdr); err != nil {
				return fmt.Errorf("native bank: instrument %d zone %d: %w", i, z, err)
			}
			leaf, err := decodeNativeLeaf(chunk, bank)
			if err != nil {
				return err
			}
			ins.Zones = append(ins.Zones, InstrumentZone{
				LowKey:        int(zoneHdr.LowKey),
				HighKey:       int(zoneHdr.HighKey),
				LowVelocity:   int(zoneHdr.LowVelocity),
				HighVelocity:  int(zoneHdr.HighVelocity),
				Leaf:          leaf,
			})
		}

		defLeaf, err := decodeNativeLeaf(chunk, bank)
		if err != nil {
			return err
		}
		ins.Default = defLeaf

		if percussion {
			bank.Percussion[int(key)] = ins
		} else {
			bank.Instruments[instrumentKey{bankMSB, bankLSB, int(key)}] = ins
		}
	}
	return nil
}

func decodeNativeLeaf(chunk *riff.Chunk, bank *Bank) (*InstrumentLeaf, error) {
	var hdr struct {
		SampleIndex   uint32
		StageCount    uint8
		PanDefault    int16 // -32768..32767 mapped to -1..1
		TuneCents     int16
		VelocityCurve uint8
		LoopOverride  int8 // -1 nil, 0 false, 1 true
		FilterKind    uint8
		FilterReso    float32
		FilterCutoff  float32
	}
	if err := binary.Read(chunk, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("native bank: leaf header: %w", err)
	}

	stages := make([]ADSRStage, hdr.StageCount)
	for i := range stages {
		var s struct {
			TargetLevel   int32
			DurationTicks uint32
			Flag          uint8
		}
		if err := binary.Read(chunk, binary.LittleEndian, &s); err != nil {
			return nil, fmt.Errorf("native bank: leaf stage %d: %w", i, err)
		}
		stages[i] = ADSRStage{
			TargetLevel:   s.TargetLevel,
			DurationTicks: int(s.DurationTicks),
			Flag:          StageFlag(s.Flag),
		}
	}

	leaf := &InstrumentLeaf{
		Sample:        SampleRef{index: int(hdr.SampleIndex)},
		ADSRStages:    stages,
		PanDefault:    float64(hdr.PanDefault) / 32767,
		TuneCents:     int(hdr.TuneCents),
		VelocityCurve: VelocityCurve(hdr.VelocityCurve),
		Filter: FilterParams{
			Kind:      FilterKind(hdr.FilterKind),
			Resonance: float64(hdr.FilterReso),
			CutoffHz:  float64(hdr.FilterCutoff),
		},
	}
	switch hdr.LoopOverride {
	case 0:
		f := false
		leaf.LoopOverride = &f
	case 1:
		t := true
		leaf.LoopOverride = &t
	}
	return leaf, nil
}

func decodeNativeAliases(chunk *riff.Chunk, bank *Bank) error {
	var count uint32
	if err := binary.Read(chunk, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("native bank: alias count: %w", err)
	}
	bank.PercussionAliases = make(map[int]int, count)
	for i := uint32(0); i < count; i++ {
		var pair struct{ From, To uint16 }
		if err := binary.Read(chunk, binary.LittleEndian, &pair); err != nil {
			return fmt.Errorf("native bank: alias %d: %w", i, err)
		}
		bank.PercussionAliases[int(pair.From)] = int(pair.To)
	}
	return nil
}
