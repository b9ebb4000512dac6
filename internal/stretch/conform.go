package stretch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// Conformer loads a sample file and brings it to a target tempo.
type Conformer struct {
	Codec     audio.Codec
	Stretcher Stretcher
	Cache     *Cache // optional
}

// Load decodes path, recorded at srcTempo, and stretches it to dstTempo.
// Ratios outside [MinRatio, MaxRatio] fail with ErrRatioOutOfRange before any
// decode happens.
func (c *Conformer) Load(ctx context.Context, path string, srcTempo, dstTempo int) (audio.Buffer, error) {
	ratio := Ratio(srcTempo, dstTempo)
	if err := CheckRatio(ratio); err != nil {
		return audio.Buffer{}, fmt.Errorf("%s: %w", path, err)
	}

	if srcTempo == dstTempo || srcTempo <= 0 {
		return c.Codec.Decode(path)
	}

	if c.Cache != nil {
		b, err := c.Cache.Get(path, dstTempo)
		if err == nil {
			slog.Debug("stretch cache hit", "file", path, "tempo", dstTempo)
			return b, nil
		}
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("stretch cache read failed", "file", path, "err", err)
		}
	}

	src, err := c.Codec.Decode(path)
	if err != nil {
		return audio.Buffer{}, err
	}
	out, err := c.Stretcher.Stretch(ctx, src, ratio)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("stretch %s %d->%d: %w", path, srcTempo, dstTempo, err)
	}

	if c.Cache != nil {
		if err := c.Cache.Put(path, dstTempo, out); err != nil {
			slog.Warn("stretch cache write failed", "file", path, "err", err)
		}
	}
	return out, nil
}
