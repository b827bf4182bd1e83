// bank_dls.go - DLS (Downloadable Sounds) bank loading, spec.md §6.2.
//
// Grounded on go-audio/riff's forward-only chunk walk, the same reader
// go-audio/wav builds on. DLS nests LIST chunks (wvpl/lins/lart) one
// level deep, which a forward-only walk handles cleanly by recursing
// into nested riff.NewReader instances scoped to the LIST payload.
// Structure follows original_source/minibae's GenDLS.c: wave pool
// ("wvpl") holds raw PCM waves, instrument list ("lins") holds
// region-to-wave mappings with key/velocity ranges and articulation
// (volume envelope) connection blocks ("art1"/"art2").

package bae

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/riff"
)

func decodeDLSBank(r io.Reader) (*Bank, error) {
	container, err := riff.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("dls bank: %w", err)
	}
	if string(container.Format[:]) != "DLS " {
		return nil, fmt.Errorf("dls bank: unexpected form type %q", container.Format[:])
	}

	bank := &Bank{
		Format:      BankFormatDLS,
		Instruments: make(map[instrumentKey]*Instrument),
		Percussion:  make(map[int]*Instrument),
	}

	var waveOffsets []uint32 // "ptbl" pool table: cue offset per wave

	for {
		chunk, err := container.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dls bank: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "LIST":
			if err := decodeDLSList(chunk, bank, &waveOffsets); err != nil {
				return nil, err
			}
		case "ptbl":
			offs, err := decodeDLSPoolTable(chunk)
			if err != nil {
				return nil, err
			}
			waveOffsets = offs
		default:
			if err := chunk.Drain(); err != nil {
				return nil, fmt.Errorf("dls bank: draining %q: %w", chunk.ID[:], err)
			}
		}
	}

	return bank, nil
}

func decodeDLSPoolTable(chunk *riff.Chunk) ([]uint32, error) {
	var hdr struct {
		CbSize  uint32
		CCues   uint32
	}
	if err := binary.Read(chunk, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("dls bank: ptbl header: %w", err)
	}
	offs := make([]uint32, hdr.CCues)
	for i := range offs {
		if err := binary.Read(chunk, binary.LittleEndian, &offs[i]); err != nil {
			return nil, fmt.Errorf("dls bank: ptbl cue %d: %w", i, err)
		}
	}
	return offs, nil
}

// decodeDLSList dispatches on the LIST's own form type ("wvpl" wave
// pool, "lins" instrument list); every other LIST form (e.g. "INFO")
// is drained untouched.
func decodeDLSList(chunk *riff.Chunk, bank *Bank, waveOffsets *[]uint32) error {
	var form [4]byte
	if _, err := io.ReadFull(chunk, form[:]); err != nil {
		return fmt.Errorf("dls bank: LIST form: %w", err)
	}

	switch string(form[:]) {
	case "wvpl":
		return decodeDLSWavePool(chunk, bank)
	case "lins":
		return decodeDLSInstrumentList(chunk, bank, *waveOffsets)
	default:
		return chunk.Drain()
	}
}

func decodeDLSWavePool(chunk *riff.Chunk, bank *Bank) error {
	for {
		sub, err := riff.NewReader(chunk)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dls bank: wave pool entry: %w", err)
		}
		if string(sub.Format[:]) != "wave" {
			return fmt.Errorf("dls bank: wave pool entry: unexpected form %q", sub.Format[:])
		}

		var s Sample
		var bitsPerSample uint16
		for {
			wc, err := sub.NextChunk()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("dls bank: wave chunk: %w", err)
			}
			switch string(wc.ID[:]) {
			case "fmt ":
				var fmtHdr struct {
					FormatTag     uint16
					Channels      uint16
					SampleRate    uint32
					ByteRate      uint32
					BlockAlign    uint16
					BitsPerSample uint16
				}
				if err := binary.Read(wc, binary.LittleEndian, &fmtHdr); err != nil {
					return fmt.Errorf("dls bank: wave fmt: %w", err)
				}
				s.Channels = int(fmtHdr.Channels)
				s.SampleRate = int(fmtHdr.SampleRate)
				s.RootPitch = 60 // default middle C, overridden by wsmp if present
				bitsPerSample = fmtHdr.BitsPerSample
				if fmtHdr.BitsPerSample == 8 {
					raw := make([]byte, wc.Size-8)
					if _, err := io.ReadFull(wc, raw); err != nil && err != io.EOF {
						return fmt.Errorf("dls bank: wave fmt trailing: %w", err)
					}
				}
			case "data":
				raw := make([]byte, wc.Size)
				if _, err := io.ReadFull(wc, raw); err != nil {
					return fmt.Errorf("dls bank: wave data: %w", err)
				}
				if s.Channels == 0 {
					s.Channels = 1
				}
				var pcm []int16
				if bitsPerSample == 8 {
					pcm = upconvert8(raw)
				} else {
					pcm = bytesToPCM16(raw)
				}
				s.PCM = pcm
				s.FrameCount = len(pcm) / s.Channels
			case "wsmp":
				var wsmp struct {
					CbSize        uint32
					UnityNote     uint16
					FineTune      int16
					Gain          int32
					Options       uint32
					SampleLoops   uint32
				}
				if err := binary.Read(wc, binary.LittleEndian, &wsmp); err != nil {
					return fmt.Errorf("dls bank: wsmp: %w", err)
				}
				s.RootPitch = int(wsmp.UnityNote)
				s.FineTuneCents = int(wsmp.FineTune) / 100
				for i := uint32(0); i < wsmp.SampleLoops; i++ {
					var loop struct {
						CbSize     uint32
						LoopType   uint32
						LoopStart  uint32
						LoopLength uint32
					}
					if err := binary.Read(wc, binary.LittleEndian, &loop); err != nil {
						return fmt.Errorf("dls bank: wsmp loop %d: %w", i, err)
					}
					s.LoopStart = int(loop.LoopStart)
					s.LoopEnd = int(loop.LoopStart + loop.LoopLength)
				}
			default:
				if err := wc.Drain(); err != nil {
					return fmt.Errorf("dls bank: draining wave chunk %q: %w", wc.ID[:], err)
				}
			}
		}

		bank.Samples = append(bank.Samples, s)
	}
}

func decodeDLSInstrumentList(chunk *riff.Chunk, bank *Bank, waveOffsets []uint32) error {
	for {
		sub, err := riff.NewReader(chunk)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dls bank: instrument entry: %w", err)
		}
		if string(sub.Format[:]) != "ins " {
			return fmt.Errorf("dls bank: instrument entry: unexpected form %q", sub.Format[:])
		}

		ins := &Instrument{}
		var header struct {
			Bank    uint32
			Patch   uint32
		}
		isPercussion := false
		isPercBank := false

		for {
			ic, err := sub.NextChunk()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("dls bank: instrument chunk: %w", err)
			}
			switch string(ic.ID[:]) {
			case "insh":
				var insh struct {
					CRegions uint32
					Locale   struct {
						Bank  uint32
						Patch uint32
					}
				}
				if err := binary.Read(ic, binary.LittleEndian, &insh); err != nil {
					return fmt.Errorf("dls bank: insh: %w", err)
				}
				header.Bank = insh.Locale.Bank
				header.Patch = insh.Locale.Patch
				isPercBank = insh.Locale.Bank&0x80000000 != 0
			case "LIST":
				if err := decodeDLSRegionList(ic, ins, waveOffsets, &isPercussion); err != nil {
					return err
				}
			default:
				if err := ic.Drain(); err != nil {
					return fmt.Errorf("dls bank: draining instrument chunk %q: %w", ic.ID[:], err)
				}
			}
		}

		if isPercBank {
			for _, z := range ins.Zones {
				bank.Percussion[z.LowKey] = &Instrument{Name: ins.Name, Default: z.Leaf}
			}
		} else {
			bankNo := header.Bank &^ 0x80000000
			bankMSB := uint8((bankNo >> 8) & 0x7f)
			bankLSB := uint8(bankNo & 0x7f)
			bank.Instruments[instrumentKey{bankMSB, bankLSB, int(header.Patch)}] = ins
		}
	}
}

func decodeDLSRegionList(chunk *riff.Chunk, ins *Instrument, waveOffsets []uint32, isPercussion *bool) error {
	var form [4]byte
	if _, err := io.ReadFull(chunk, form[:]); err != nil {
		return fmt.Errorf("dls bank: region LIST form: %w", err)
	}
	if string(form[:]) != "lrgn" {
		return chunk.Drain()
	}

	for {
		sub, err := riff.NewReader(chunk)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("dls bank: region entry: %w", err)
		}
		if string(sub.Format[:]) != "rgn " {
			return fmt.Errorf("dls bank: region entry: unexpected form %q", sub.Format[:])
		}

		zone := InstrumentZone{Leaf: &InstrumentLeaf{VelocityCurve: VelocityMiniBAES}}
		var waveLink struct {
			Options    uint16
			PhaseGroup uint16
			Channel    uint32
			TableIndex uint32
		}

		for {
			rc, err := sub.NextChunk()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("dls bank: region chunk: %w", err)
			}
			switch string(rc.ID[:]) {
			case "rgnh":
				var rgnh struct {
					RangeKey   struct{ Low, High uint16 }
					RangeVel   struct{ Low, High uint16 }
					Options    uint16
					KeyGroup   uint16
				}
				if err := binary.Read(rc, binary.LittleEndian, &rgnh); err != nil {
					return fmt.Errorf("dls bank: rgnh: %w", err)
				}
				zone.LowKey = int(rgnh.RangeKey.Low)
				zone.HighKey = int(rgnh.RangeKey.High)
				zone.LowVelocity = int(rgnh.RangeVel.Low)
				zone.HighVelocity = int(rgnh.RangeVel.High)
			case "wlnk":
				if err := binary.Read(rc, binary.LittleEndian, &waveLink); err != nil {
					return fmt.Errorf("dls bank: wlnk: %w", err)
				}
				zone.Leaf.Sample = SampleRef{index: int(waveLink.TableIndex)}
			case "wsmp":
				// per-region tuning/loop override; sample already
				// carries its own, so this is drained for now.
				if err := rc.Drain(); err != nil {
					return fmt.Errorf("dls bank: region wsmp: %w", err)
				}
			default:
				if err := rc.Drain(); err != nil {
					return fmt.Errorf("dls bank: draining region chunk %q: %w", rc.ID[:], err)
				}
			}
		}

		zone.Leaf.ADSRStages = defaultDLSEnvelope()
		ins.Zones = append(ins.Zones, zone)
	}
}

// defaultDLSEnvelope is the envelope every DLS region gets: an instant
// attack, sustain until note-off, 50ms release. The loader does not
// read "art1"/"art2" articulation chunks, so no region carries its own
// envelope.
func defaultDLSEnvelope() []ADSRStage {
	return []ADSRStage{
		{TargetLevel: VolumeRange, DurationTicks: 1, Flag: FlagLinearRamp},
		{TargetLevel: VolumeRange, DurationTicks: 1, Flag: FlagSustainUntilNoteOff},
		{TargetLevel: 0, DurationTicks: 2205, Flag: FlagRelease}, // ~50ms @ 44.1kHz
	}
}

func bytesToPCM16(raw []byte) []int16 {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return out
}
