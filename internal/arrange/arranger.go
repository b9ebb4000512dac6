package arrange

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/catalog"
	"github.com/satindergrewal/loopforge/internal/ledger"
)

// Resolver lists the collections allowed to supply layers for a song.
type Resolver interface {
	ResolveCompatible(tempo int, key string) []*catalog.Collection
}

// Song is a fully arranged, unmastered track.
type Song struct {
	Tempo       int
	Key         string
	Root        string   // collection that set tempo and key
	Structure   []string // one entry per loop occurrence
	Sections    []*Section
	Audio       audio.Buffer
	Fingerprint string
}

// Duration is the length of the mixed audio.
func (s *Song) Duration() time.Duration {
	return s.Audio.Duration()
}

// Used returns the per-section sample identities that make up the fingerprint.
func (s *Song) Used() [][]string {
	out := make([][]string, len(s.Sections))
	for i, sec := range s.Sections {
		out[i] = sec.Used()
	}
	return out
}

// Arranger renders whole songs. It is not safe for concurrent use; give each
// worker its own Arranger and Rand.
type Arranger struct {
	Plan       Plan
	Compositor *Compositor
	Resolver   Resolver
	Rand       *rand.Rand

	Bars      int
	ShortBars int
	Structure StructureOptions
}

// Timing returns the section timing for tempo.
func (a *Arranger) Timing(tempo int) Timing {
	return Timing{Tempo: tempo, Bars: a.Bars, ShortBars: a.ShortBars}
}

// Render arranges one song rooted at root's tempo and key.
func (a *Arranger) Render(ctx context.Context, root *catalog.Collection) (*Song, error) {
	timing := a.Timing(root.Tempo)

	collections := a.Resolver.ResolveCompatible(root.Tempo, root.Key)
	if len(collections) == 0 {
		collections = []*catalog.Collection{root}
	}

	opts := a.Structure
	if opts.LoopKinds == nil {
		opts.LoopKinds = a.Plan.LoopKinds()
	}
	if opts.Intro == "" {
		opts.Intro = a.Plan.Intro
	}
	if opts.Outro == "" {
		opts.Outro = a.Plan.Outro
	}
	opts = opts.withDefaults()

	song := &Song{
		Tempo:     root.Tempo,
		Key:       root.Key,
		Root:      root.Name,
		Structure: GenerateStructure(a.Rand, timing, opts),
	}
	repeats := timing.LoopRepeats(opts.LoopSeconds)
	cache := NewCache()

	parts := make([]audio.Buffer, 0, len(song.Structure)*repeats)
	firstLoop := true
	for _, kind := range song.Structure {
		spec, ok := a.Plan.Spec(kind)
		if !ok {
			return nil, fmt.Errorf("arrange: no section spec for %q", kind)
		}
		n := 1
		if spec.Loop {
			n = repeats
		}
		frames := timing.SectionFrames(spec.Short)
		for i := range n {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			use := spec
			if spec.Loop && firstLoop && i == 0 {
				use = a.Plan.firstLoop(spec)
				firstLoop = false
			}
			sec, err := a.Compositor.Compose(ctx, use, root.Tempo, frames, collections, cache)
			if err != nil {
				return nil, err
			}
			song.Sections = append(song.Sections, sec)
			parts = append(parts, sec.Audio)
		}
	}

	song.Audio = audio.Concat(parts...)
	song.Fingerprint = ledger.Fingerprint(song.Used())

	slog.Info("song arranged",
		"root", root.Name,
		"tempo", song.Tempo,
		"key", song.Key,
		"sections", len(song.Sections),
		"duration", song.Duration().Round(time.Second),
	)
	return song, nil
}
