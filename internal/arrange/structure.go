package arrange

import (
	"math/rand/v2"
	"slices"
)

// StructureOptions bounds the generated song form.
type StructureOptions struct {
	MinSeconds  float64 // lower bound of the random target length, default 150
	MaxSeconds  float64 // upper bound of the random target length, default 240
	LoopSeconds float64 // approximate length of one loop occurrence, default 60

	Intro     string
	Outro     string
	LoopKinds []string
}

func (o StructureOptions) withDefaults() StructureOptions {
	if o.MinSeconds <= 0 {
		o.MinSeconds = 150
	}
	if o.MaxSeconds < o.MinSeconds {
		o.MaxSeconds = max(o.MinSeconds, 240)
	}
	if o.LoopSeconds <= 0 {
		o.LoopSeconds = 60
	}
	if o.Intro == "" {
		o.Intro = KindIntro
	}
	if o.Outro == "" {
		o.Outro = KindOutro
	}
	return o
}

// GenerateStructure returns the ordered section kinds of one song: the
// intro, at least one loop occurrence, more loop occurrences while the running
// length stays under a target drawn uniformly from [MinSeconds, MaxSeconds],
// then the outro. A loop kind never directly follows itself unless it is the
// only loop kind. Each loop entry stands for Timing.LoopRepeats chained
// sections.
func GenerateStructure(rng *rand.Rand, t Timing, opts StructureOptions) []string {
	opts = opts.withDefaults()
	target := opts.MinSeconds + rng.Float64()*(opts.MaxSeconds-opts.MinSeconds)
	occurrence := float64(t.LoopRepeats(opts.LoopSeconds)) * t.SectionSeconds(false)

	structure := []string{opts.Intro}
	if len(opts.LoopKinds) > 0 {
		current := t.SectionSeconds(true)
		prev := ""
		for first := true; first || current+occurrence < target; first = false {
			prev = pickLoop(rng, opts.LoopKinds, prev)
			structure = append(structure, prev)
			current += occurrence
		}
	}
	return append(structure, opts.Outro)
}

func pickLoop(rng *rand.Rand, kinds []string, prev string) string {
	choices := slices.DeleteFunc(slices.Clone(kinds), func(k string) bool { return k == prev })
	if len(choices) == 0 {
		choices = kinds
	}
	return choices[rng.IntN(len(choices))]
}
