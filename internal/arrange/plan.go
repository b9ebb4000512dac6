// Package arrange turns a sample catalog into finished song audio: it picks a
// section structure, selects and fits a sample per layer, balances and mixes
// each section, and concatenates the result.
package arrange

import "slices"

// Section kinds used by DefaultPlan.
const (
	KindIntro  = "intro"
	KindLoopA  = "loop_a"
	KindLoopB  = "loop_b"
	KindBridge = "bridge"
	KindOutro  = "outro"
)

// Policy says whether a layer's sample is drawn once per section kind or
// re-drawn on every occurrence.
type Policy int

const (
	Fresh Policy = iota
	Cached
)

func (p Policy) String() string {
	if p == Cached {
		return "cached"
	}
	return "fresh"
}

// LayerSpec describes one layer of a section.
type LayerSpec struct {
	Name   string
	Policy Policy

	// Shared layers draw from the catalog's key-independent kit for the
	// song tempo instead of the compatible collections.
	Shared bool

	// Percussive layers are level-matched against the rest of the mix.
	Percussive bool

	// ReuseFrom lists section kinds whose cached sample for this layer is
	// borrowed when present. The earliest rendered one wins.
	ReuseFrom []string

	// Duck plays the sample DuckMinDB to DuckMaxDB quieter whenever it comes
	// from cache, so a repeated part sits behind fresh material.
	Duck bool
}

// SectionSpec describes one section kind.
type SectionSpec struct {
	Kind   string
	Short  bool // short sections last Timing.ShortBars instead of Timing.Bars
	Loop   bool // loop kinds fill the body of a song and repeat
	Layers []LayerSpec
}

// LayerNames returns the layer names in mix order.
func (s SectionSpec) LayerNames() []string {
	out := make([]string, len(s.Layers))
	for i, l := range s.Layers {
		out[i] = l.Name
	}
	return out
}

// Plan maps section kinds to their layer configuration.
type Plan struct {
	Intro    string
	Outro    string
	Sections map[string]SectionSpec

	// IntroCarry names cacheable layers whose intro sample also opens the
	// first loop of the song.
	IntroCarry []string

	order []string
}

// NewPlan builds a plan from specs. The first spec is the intro and the last
// the outro; loop kinds keep their given order.
func NewPlan(specs ...SectionSpec) Plan {
	p := Plan{Sections: make(map[string]SectionSpec, len(specs))}
	for _, s := range specs {
		p.Sections[s.Kind] = s
		p.order = append(p.order, s.Kind)
	}
	if len(specs) > 0 {
		p.Intro = specs[0].Kind
		p.Outro = specs[len(specs)-1].Kind
	}
	return p
}

// Spec returns the configuration for kind.
func (p Plan) Spec(kind string) (SectionSpec, bool) {
	s, ok := p.Sections[kind]
	return s, ok
}

// firstLoop returns spec with the IntroCarry layers borrowing the intro's
// cached sample.
func (p Plan) firstLoop(spec SectionSpec) SectionSpec {
	if len(p.IntroCarry) == 0 || p.Intro == "" {
		return spec
	}
	spec.Layers = slices.Clone(spec.Layers)
	for i, ls := range spec.Layers {
		if ls.Policy == Cached && slices.Contains(p.IntroCarry, ls.Name) {
			spec.Layers[i].ReuseFrom = append(slices.Clone(ls.ReuseFrom), p.Intro)
		}
	}
	return spec
}

// LoopKinds returns the kinds marked Loop, in plan order.
func (p Plan) LoopKinds() []string {
	var out []string
	for _, k := range p.order {
		if p.Sections[k].Loop {
			out = append(out, k)
		}
	}
	return out
}

// DefaultPlan is the lofi arrangement: a chords-only intro whose chords carry
// into the first loop, three full loop kinds and an outro that brings back the
// first loop's drums and chords. Repeated chords are ducked.
func DefaultPlan() Plan {
	drums := LayerSpec{Name: "drums", Policy: Cached, Shared: true, Percussive: true}
	chords := LayerSpec{Name: "chords", Policy: Cached, Duck: true}
	bass := LayerSpec{Name: "bass", Policy: Fresh}
	melody := LayerSpec{Name: "melody", Policy: Fresh}

	loop := func(kind string) SectionSpec {
		return SectionSpec{Kind: kind, Loop: true, Layers: []LayerSpec{drums, chords, bass, melody}}
	}
	loops := []string{KindLoopA, KindLoopB, KindBridge}

	outroDrums, outroChords := drums, chords
	outroDrums.ReuseFrom = slices.Clone(loops)
	outroChords.ReuseFrom = slices.Clone(loops)

	p := NewPlan(
		SectionSpec{Kind: KindIntro, Short: true, Layers: []LayerSpec{chords}},
		loop(KindLoopA),
		loop(KindLoopB),
		loop(KindBridge),
		SectionSpec{Kind: KindOutro, Layers: []LayerSpec{outroDrums, outroChords, bass}},
	)
	p.IntroCarry = []string{"chords"}
	return p
}
