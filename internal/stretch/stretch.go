// Package stretch conforms samples to a target tempo through an external
// time-stretch service and memoises the results.
package stretch

import (
	"context"
	"errors"
	"fmt"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// Tempo ratios outside [MinRatio, MaxRatio] are refused.
const (
	MinRatio = 0.5
	MaxRatio = 2.0
)

// ErrRatioOutOfRange is returned for tempo changes too extreme to sound usable.
var ErrRatioOutOfRange = errors.New("stretch: ratio out of range")

// Stretcher is an external time-stretch and pitch-shift service.
type Stretcher interface {
	// Stretch changes tempo by ratio without changing pitch. A ratio of 2
	// halves the duration.
	Stretch(ctx context.Context, b audio.Buffer, ratio float64) (audio.Buffer, error)
	PitchShift(ctx context.Context, b audio.Buffer, semitones float64) (audio.Buffer, error)
}

// Ratio is the tempo factor that takes srcTempo to dstTempo.
func Ratio(srcTempo, dstTempo int) float64 {
	if srcTempo <= 0 {
		return 1
	}
	return float64(dstTempo) / float64(srcTempo)
}

// CheckRatio returns ErrRatioOutOfRange unless MinRatio <= r <= MaxRatio.
func CheckRatio(r float64) error {
	if r < MinRatio || r > MaxRatio {
		return fmt.Errorf("%w: %.2f", ErrRatioOutOfRange, r)
	}
	return nil
}
