package arrange

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/catalog"
)

// Drum balance limits.
const (
	MaxDrumCutDB   = 6.0
	MaxDrumBoostDB = 4.0
	quietDrumRatio = 0.7 // boost below this share of the mean
	drumTarget     = 0.8 // boost toward this share of the mean
)

// Attenuation range for ducked layers played from cache.
const (
	DuckMinDB = 3.0
	DuckMaxDB = 6.0
)

// Section is one rendered section.
type Section struct {
	Kind       string
	Audio      audio.Buffer
	Layers     []*LayerBuffer
	GainDB     float64 // per-layer gain applied before mixing
	DrumTrimDB float64 // balance correction applied to percussive layers
}

// Used returns the identities of the samples that made it into the mix.
func (s *Section) Used() []string {
	out := make([]string, 0, len(s.Layers))
	for _, lb := range s.Layers {
		out = append(out, lb.Ref.String())
	}
	return out
}

// LayerGainDB is the fixed pre-mix gain for a section with n layers.
func LayerGainDB(n int) float64 {
	if n >= 4 {
		return -3
	}
	return -2
}

// BalanceDrums returns the gain in dB to apply to a percussive layer with RMS
// drum, given the RMS of every other layer. A drum louder than the mean of the
// others is cut by 20·log10(sqrt(drum/mean)), at most MaxDrumCutDB. With boost
// set, a drum below 70% of the mean is raised toward 80% of it by at most
// MaxDrumBoostDB. Otherwise the result is 0.
func BalanceDrums(drum float64, others []float64, boost bool) float64 {
	if len(others) == 0 || drum <= 0 {
		return 0
	}
	var sum float64
	for _, o := range others {
		sum += o
	}
	mean := sum / float64(len(others))
	if mean <= 0 {
		return 0
	}

	switch {
	case drum > mean:
		return -math.Min(MaxDrumCutDB, 20*math.Log10(math.Sqrt(drum/mean)))
	case boost && drum < quietDrumRatio*mean:
		return math.Min(MaxDrumBoostDB, 20*math.Log10(math.Sqrt(drumTarget*mean/drum)))
	}
	return 0
}

// Compositor renders sections.
type Compositor struct {
	Selector        *Selector
	BoostQuietDrums bool
}

// Compose renders spec at tempo into exactly frames frames. Cacheable layers
// are stored in cache under spec.Kind, including ones borrowed from another
// kind; missing layers are left out. A fresh ducked layer draws the level its
// later reuses will play at.
func (c *Compositor) Compose(ctx context.Context, spec SectionSpec, tempo, frames int, collections []*catalog.Collection, cache *Cache) (*Section, error) {
	sec := &Section{Kind: spec.Kind, GainDB: LayerGainDB(len(spec.Layers))}

	var percussive []int
	for _, ls := range spec.Layers {
		lb, err := c.Selector.Select(ctx, spec.Kind, ls, tempo, frames, collections, cache)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", spec.Kind, ls.Name, err)
		}
		if lb == nil {
			continue
		}
		if ls.Duck && !lb.FromCache {
			lb.DuckDB = DuckMinDB + c.Selector.Rand.Float64()*(DuckMaxDB-DuckMinDB)
		}
		if ls.Policy == Cached && cache != nil {
			cache.Put(spec.Kind, lb)
		}
		lb.GainDB = sec.GainDB
		if lb.FromCache {
			lb.GainDB -= lb.DuckDB
		}
		lb.Audio = lb.Audio.Gain(lb.GainDB)
		if ls.Percussive {
			percussive = append(percussive, len(sec.Layers))
		}
		sec.Layers = append(sec.Layers, lb)
	}

	c.balance(sec, percussive)

	mix := audio.Silence(frames)
	for _, lb := range sec.Layers {
		mix = mix.Overlay(lb.Audio)
	}
	sec.Audio = mix
	return sec, nil
}

func (c *Compositor) balance(sec *Section, percussive []int) {
	if len(percussive) == 0 {
		return
	}
	var drumRMS float64
	var others []float64
	for i, lb := range sec.Layers {
		if slices.Contains(percussive, i) {
			drumRMS = math.Max(drumRMS, lb.Audio.RMS())
			continue
		}
		if lb.Silent {
			continue
		}
		others = append(others, lb.Audio.RMS())
	}

	trim := BalanceDrums(drumRMS, others, c.BoostQuietDrums)
	if trim == 0 {
		return
	}
	sec.DrumTrimDB = trim
	for _, i := range percussive {
		lb := sec.Layers[i]
		lb.GainDB += trim
		lb.Audio = lb.Audio.Gain(trim)
	}
	slog.Debug("drums balanced", "section", sec.Kind, "db", trim)
}
