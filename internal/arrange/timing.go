package arrange

import (
	"math"

	"github.com/satindergrewal/loopforge/internal/audio"
)

const beatsPerBar = 4

// Timing derives section lengths from a tempo.
type Timing struct {
	Tempo     int
	Bars      int // bars in a regular section, default 8
	ShortBars int // bars in a short section, default 4
}

func (t Timing) bars(short bool) int {
	if short {
		if t.ShortBars > 0 {
			return t.ShortBars
		}
		return 4
	}
	if t.Bars > 0 {
		return t.Bars
	}
	return 8
}

// BarSeconds is the length of one 4/4 bar.
func (t Timing) BarSeconds() float64 {
	return 60 / float64(t.Tempo) * beatsPerBar
}

// SectionSeconds is the length of a regular or short section.
func (t Timing) SectionSeconds(short bool) float64 {
	return t.BarSeconds() * float64(t.bars(short))
}

// SectionFrames is SectionSeconds rounded to whole frames. Every section of
// the same length renders exactly this many frames.
func (t Timing) SectionFrames(short bool) int {
	return audio.FramesFor(t.SectionSeconds(short))
}

// LoopRepeats is how many regular sections are chained to make one loop
// occurrence of roughly loopSeconds.
func (t Timing) LoopRepeats(loopSeconds float64) int {
	n := int(math.Round(loopSeconds / t.SectionSeconds(false)))
	return max(1, n)
}
