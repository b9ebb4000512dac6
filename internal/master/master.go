// Package master finishes an arranged song: fades, peak normalization, a
// brick-wall limiter pass, and an atomic move into the output directory.
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// ErrLimiter wraps any failure of the limiter stage.
var ErrLimiter = errors.New("master: limiter failed")

// Options controls the mastering chain.
type Options struct {
	FadeIn     time.Duration // default 3s
	FadeOut    time.Duration // default 5s
	HeadroomDB float64       // peak target below full scale, default 0.1
	Threshold  float64       // limiter ceiling as a linear ratio, default 0.8
}

// DefaultOptions returns the standard chain settings.
func DefaultOptions() Options {
	return Options{
		FadeIn:     3 * time.Second,
		FadeOut:    5 * time.Second,
		HeadroomDB: 0.1,
		Threshold:  0.8,
	}
}

// Master runs the chain.
type Master struct {
	Codec   audio.Codec
	Limiter Limiter // nil skips limiting
	Opts    Options
}

// Process applies fades and normalization in memory.
func (m *Master) Process(b audio.Buffer) audio.Buffer {
	return b.FadeIn(m.Opts.FadeIn).FadeOut(m.Opts.FadeOut).Normalize(m.Opts.HeadroomDB)
}

// Finish masters b and writes it to finalPath in the container its extension
// names. Without a Limiter the codec encodes that container directly. Intermediate
// files live next to finalPath under hidden temporary names, and finalPath only
// appears once every stage has succeeded. Temporaries are removed either way.
func (m *Master) Finish(ctx context.Context, b audio.Buffer, finalPath string) error {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("master: %w", err)
	}

	base := filepath.Base(finalPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	id := uuid.NewString()
	mixed := filepath.Join(dir, "."+stem+"."+id+".tmp.wav")
	staged := filepath.Join(dir, "."+stem+"."+id+".staged"+ext)
	defer os.Remove(mixed)
	defer os.Remove(staged)

	processed := m.Process(b)
	if m.Limiter == nil {
		if err := m.Codec.Encode(processed, staged); err != nil {
			return fmt.Errorf("master: %w", err)
		}
	} else {
		if err := m.Codec.Encode(processed, mixed); err != nil {
			return fmt.Errorf("master: %w", err)
		}
		if err := m.Limiter.Limit(ctx, mixed, staged, m.Opts.Threshold); err != nil {
			return fmt.Errorf("%w: %w", ErrLimiter, err)
		}
	}

	if err := os.Rename(staged, finalPath); err != nil {
		return fmt.Errorf("master: %w", err)
	}
	slog.Debug("mastered", "file", finalPath)
	return nil
}
