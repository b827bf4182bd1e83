// reverb_preset.go - save/load of custom Neo comb reverb presets,
// spec.md §6.4 and §8's round-trip law ("loading an XML preset,
// serializing it back out, and reloading it must reproduce an
// identical parameter set: comb_count, delays_ms, feedback_midi,
// gain_midi, lowpass_midi and wet_mix_midi, all integers, with no
// floating point drift").
//
// Grounded on the teacher's own XML usage pattern (encoding/xml struct
// tags) nowhere in audio_chip.go itself, but consistent with the
// ambient choice recorded in SPEC_FULL.md/DESIGN.md to use the
// standard library's encoding/xml rather than reach for a third-party
// XML library none of the example repos pull in for anything this
// small.
package bae

import "encoding/xml"

// NeoCustomPreset is the host-facing, already-decoded form of a custom
// Neo reverb preset.
type NeoCustomPreset struct {
	Name         string
	CombCount    int
	DelaysMs     [maxNeoCombs]int
	FeedbackMidi [maxNeoCombs]int
	GainMidi     [maxNeoCombs]int
	LowpassMidi  int
	WetMixMidi   int
}

func (p NeoCustomPreset) toConfig() neoCombConfig {
	return neoCombConfig{
		combCount:    p.CombCount,
		delayMs:      p.DelaysMs,
		feedbackMidi: p.FeedbackMidi,
		gainMidi:     p.GainMidi,
		lowpassMidi:  p.LowpassMidi,
		wetMixMidi:   p.WetMixMidi,
	}
}

func neoCustomPresetFromConfig(name string, cfg neoCombConfig) NeoCustomPreset {
	return NeoCustomPreset{
		Name:         name,
		CombCount:    cfg.combCount,
		DelaysMs:     cfg.delayMs,
		FeedbackMidi: cfg.feedbackMidi,
		GainMidi:     cfg.gainMidi,
		LowpassMidi:  cfg.lowpassMidi,
		WetMixMidi:   cfg.wetMixMidi,
	}
}

// neoPresetXML is the on-disk schema: <neoreverb version="1"> with
// <name>, <combCount>, <lowpass>, <wetMix> and one <comb> element per
// active comb (spec.md §6.4's "simple <neoreverb version=\"1\"> schema"
// — wetMix is carried as an extra element beyond what §6.4 names
// explicitly, since §8's round-trip law requires it; see DESIGN.md).
type neoPresetXML struct {
	XMLName   xml.Name     `xml:"neoreverb"`
	Version   string       `xml:"version,attr"`
	Name      string       `xml:"name"`
	CombCount int          `xml:"combCount"`
	Lowpass   int          `xml:"lowpass"`
	WetMix    int          `xml:"wetMix"`
	Combs     []neoCombXML `xml:"comb"`
}

type neoCombXML struct {
	Index    int `xml:"index,attr"`
	DelayMs  int `xml:"delayMs,attr"`
	Feedback int `xml:"feedback,attr"`
	Gain     int `xml:"gain,attr"`
}

// MarshalNeoPreset serializes a custom Neo reverb preset to the XML
// schema described above.
func MarshalNeoPreset(p NeoCustomPreset) ([]byte, error) {
	doc := neoPresetXML{
		Version:   "1",
		Name:      p.Name,
		CombCount: p.CombCount,
		Lowpass:   p.LowpassMidi,
		WetMix:    p.WetMixMidi,
	}
	n := clampI(p.CombCount, 0, maxNeoCombs)
	for i := 0; i < n; i++ {
		doc.Combs = append(doc.Combs, neoCombXML{
			Index:    i,
			DelayMs:  p.DelaysMs[i],
			Feedback: p.FeedbackMidi[i],
			Gain:     p.GainMidi[i],
		})
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, newError(KindBadFile, "MarshalNeoPreset", err)
	}
	return out, nil
}

// UnmarshalNeoPreset parses a custom Neo reverb preset previously
// written by MarshalNeoPreset.
func UnmarshalNeoPreset(data []byte) (NeoCustomPreset, error) {
	var doc neoPresetXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return NeoCustomPreset{}, newError(KindBadFile, "UnmarshalNeoPreset", err)
	}
	p := NeoCustomPreset{
		Name:        doc.Name,
		CombCount:   clampI(doc.CombCount, 1, maxNeoCombs),
		LowpassMidi: clampI(doc.Lowpass, 0, 127),
		WetMixMidi:  clampI(doc.WetMix, 0, 127),
	}
	for _, c := range doc.Combs {
		if c.Index < 0 || c.Index >= maxNeoCombs {
			continue
		}
		p.DelaysMs[c.Index] = c.DelayMs
		p.FeedbackMidi[c.Index] = clampI(c.Feedback, 0, 127)
		p.GainMidi[c.Index] = clampI(c.Gain, 0, 127)
	}
	return p, nil
}
