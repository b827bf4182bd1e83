// instrument.go - key/velocity-split instrument definitions, spec.md
// §4.1 "Instrument Resolution".
//
// Grounded on the DLS region model read by bank_dls.go (each DLS
// "rgn" chunk carries its own key range, velocity range and sample
// reference, exactly the zone shape used here) and on the teacher's
// flat per-channel instrument selection in audio_chip.go, generalised
// from "one instrument per channel" to "one zone tree per instrument".
package bae

// SampleRef is an opaque handle into a SampleCache, returned by
// Resolve and consumed by Voice construction. The zero value refers
// to no sample.
type SampleRef struct {
	bank  BankToken
	index int
}

// Valid reports whether the reference points at a real slot.
func (r SampleRef) Valid() bool { return r.bank != (BankToken{}) }

// InstrumentZone maps a closed key range and closed velocity range to
// one leaf. Zones within an Instrument must not overlap in both key
// and velocity simultaneously; Resolve takes the first match (spec.md
// §4.1 edge case: overlapping zones resolve in declaration order).
type InstrumentZone struct {
	LowKey, HighKey         int
	LowVelocity, HighVelocity int
	Leaf                    *InstrumentLeaf
}

func (z InstrumentZone) matches(note, velocity int) bool {
	return note >= z.LowKey && note <= z.HighKey &&
		velocity >= z.LowVelocity && velocity <= z.HighVelocity
}

// InstrumentLeaf carries every per-note synthesis parameter a zone can
// override relative to the instrument's defaults.
type InstrumentLeaf struct {
	Sample SampleRef

	ADSRStages []ADSRStage

	PitchLFO    *LFOParams
	VolumeLFO   *LFOParams
	FilterLFO   *LFOParams
	PanLFO      *LFOParams

	Filter FilterParams

	// PanDefault is -1 (hard left) .. 1 (hard right).
	PanDefault float64
	// TuneCents shifts playback pitch independent of the sample's own
	// RootPitch/FineTuneCents.
	TuneCents int
	// VelocityCurve selects how note-on velocity maps to gain.
	VelocityCurve VelocityCurve
	// LoopOverride, when non-nil, forces looping on or off regardless
	// of the sample's own loop points (spec.md §3 flag disable_looping).
	LoopOverride *bool
	// PlayAtSampleRate disables pitch transposition entirely: the voice
	// always plays at the sample's native rate regardless of the
	// triggering note (spec.md §3 flag play_at_sample_rate).
	PlayAtSampleRate bool
	// MonoVoiceOnly means a second note-on for the same (song, channel,
	// note) while the first is still sounding re-triggers that voice in
	// place instead of allocating a new one (spec.md §4.2.1 step 1).
	MonoVoiceOnly bool
}

// LFOParams describes an LFO an instrument leaf wants constructed per
// voice (each voice gets its own LFO instance, never shared).
type LFOParams struct {
	Shape      LFOShape
	Rate       float64
	Depth      float64
	DelayTicks int
}

// FilterParams describes the per-voice filter an instrument leaf
// wants constructed.
type FilterParams struct {
	Kind      FilterKind
	Resonance float64
	CutoffHz  float64
}

// Instrument is a tree of zones plus a fallback leaf used when no zone
// matches (spec.md §4.1's "fallback chain": zone miss falls back to
// the instrument default; an unresolved instrument is replaced by
// another instrument through Bank.lookup's fallback chain).
type Instrument struct {
	Name    string
	Zones   []InstrumentZone
	Default *InstrumentLeaf
}

// Resolve finds the leaf to use for a note-on at the given key and
// velocity, applying the zone-then-default fallback chain.
func (ins *Instrument) Resolve(note, velocity int) *InstrumentLeaf {
	for _, z := range ins.Zones {
		if z.matches(note, velocity) {
			return z.Leaf
		}
	}
	return ins.Default
}
