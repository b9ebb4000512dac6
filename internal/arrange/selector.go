package arrange

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/catalog"
	"github.com/satindergrewal/loopforge/internal/stretch"
)

// Loader decodes a sample file recorded at srcTempo and conforms it to
// dstTempo. stretch.Conformer is the production implementation.
type Loader interface {
	Load(ctx context.Context, path string, srcTempo, dstTempo int) (audio.Buffer, error)
}

// KitSource supplies the key-independent kits used by Shared layers.
type KitSource interface {
	Shared(layer string, tempo int) *catalog.Collection
}

// placeholderSeconds is the length of the silent stand-in for a sample that
// cannot be conformed to the song tempo.
const placeholderSeconds = 1.0

// Selector picks the sample for one layer of one section.
type Selector struct {
	Loader Loader
	Kits   KitSource
	Rand   *rand.Rand
}

// Select returns the fitted layer for spec within a section of kind, or nil
// when there is nothing to play. Cached layers are served verbatim from cache
// without touching the catalog or the loader. A sample whose tempo ratio is
// out of range becomes silence; any other load failure is returned.
func (s *Selector) Select(ctx context.Context, kind string, spec LayerSpec, tempo, frames int, collections []*catalog.Collection, cache *Cache) (*LayerBuffer, error) {
	if spec.Policy == Cached && cache != nil {
		if lb, ok := cache.Get(kind, spec.Name); ok {
			slog.Debug("layer cache hit", "section", kind, "layer", spec.Name, "file", lb.Ref.String())
			lb.Audio = lb.Audio.Fit(frames)
			return lb, nil
		}
		if len(spec.ReuseFrom) > 0 {
			if lb, from, ok := cache.Earliest(spec.Name, spec.ReuseFrom); ok {
				slog.Debug("layer reused", "section", kind, "from", from, "layer", spec.Name, "file", lb.Ref.String())
				lb.Audio = lb.Audio.Fit(frames)
				return lb, nil
			}
		}
	}

	ref, ok := s.pick(spec, tempo, collections)
	if !ok {
		slog.Warn("no samples for layer", "section", kind, "layer", spec.Name)
		return nil, nil
	}

	lb := &LayerBuffer{Layer: spec.Name, Ref: ref}
	b, err := s.Loader.Load(ctx, ref.Path, ref.Tempo, tempo)
	switch {
	case errors.Is(err, stretch.ErrRatioOutOfRange):
		slog.Warn("sample tempo out of range, using silence", "section", kind, "layer", spec.Name, "file", ref.String(), "err", err)
		b = audio.Silence(audio.FramesFor(placeholderSeconds))
		lb.Silent = true
	case err != nil:
		return nil, err
	}
	lb.Audio = b.Fit(frames)
	return lb, nil
}

func (s *Selector) pick(spec LayerSpec, tempo int, collections []*catalog.Collection) (catalog.SampleRef, bool) {
	var col *catalog.Collection
	if spec.Shared {
		if s.Kits != nil {
			col = s.Kits.Shared(spec.Name, tempo)
		}
	} else if len(collections) > 0 {
		col = collections[s.Rand.IntN(len(collections))]
	}
	if col == nil {
		return catalog.SampleRef{}, false
	}
	files := col.Candidates(spec.Name)
	if len(files) == 0 {
		return catalog.SampleRef{}, false
	}
	return files[s.Rand.IntN(len(files))], true
}
