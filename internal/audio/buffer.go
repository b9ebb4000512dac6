package audio

import (
	"math"
	"time"
)

// Buffer is interleaved stereo PCM at SampleRate, nominally in [-1, 1].
//
// Operations that change loudness or length return a new Buffer; the
// receiver is never modified, so a buffer held by the arrangement cache
// can be shared with any number of sections.
type Buffer struct {
	Samples []float32
}

// FramesFor returns the exact frame count of a duration given in seconds.
// All section lengths are computed through this so tiling never drifts.
func FramesFor(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds * SampleRate))
}

// Silence returns a zeroed buffer of the given number of frames.
func Silence(frames int) Buffer {
	if frames < 0 {
		frames = 0
	}
	return Buffer{Samples: make([]float32, frames*Channels)}
}

// Frames returns the number of sample frames (one sample per channel).
func (b Buffer) Frames() int {
	return len(b.Samples) / Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / SampleRate
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := make([]float32, len(b.Samples))
	copy(out, b.Samples)
	return Buffer{Samples: out}
}

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainToDB converts a linear amplitude ratio to decibels.
func GainToDB(ratio float64) float64 {
	return 20 * math.Log10(ratio)
}

// Gain returns a copy scaled by db decibels.
func (b Buffer) Gain(db float64) Buffer {
	if db == 0 {
		return b.Clone()
	}
	g := float32(DBToGain(db))
	out := make([]float32, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = s * g
	}
	return Buffer{Samples: out}
}

// RMS returns the root mean square over all samples. An empty buffer has RMS 0.
func (b Buffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Peak returns the largest absolute sample value.
func (b Buffer) Peak() float64 {
	var peak float32
	for _, s := range b.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return float64(peak)
}

// Fit returns a buffer of exactly frames frames. A shorter source is tiled
// end to end from its first frame and the tiling is cut at the boundary; a
// longer source is truncated. An empty source yields silence.
func (b Buffer) Fit(frames int) Buffer {
	out := Silence(frames)
	src := b.Frames() * Channels
	if src == 0 || frames == 0 {
		return out
	}
	for pos := 0; pos < len(out.Samples); pos += src {
		copy(out.Samples[pos:], b.Samples[:src])
	}
	return out
}

// Overlay returns b with other summed on top, sample by sample, starting at
// frame zero. The result keeps b's length; any excess of other is dropped.
func (b Buffer) Overlay(other Buffer) Buffer {
	out := b.Clone()
	n := min(len(out.Samples), len(other.Samples))
	for i := 0; i < n; i++ {
		out.Samples[i] += other.Samples[i]
	}
	return out
}

// Append returns the concatenation of b and other.
func (b Buffer) Append(other Buffer) Buffer {
	out := make([]float32, 0, len(b.Samples)+len(other.Samples))
	out = append(out, b.Samples...)
	out = append(out, other.Samples...)
	return Buffer{Samples: out}
}

// Concat joins buffers in order.
func Concat(parts ...Buffer) Buffer {
	n := 0
	for _, p := range parts {
		n += len(p.Samples)
	}
	out := make([]float32, 0, n)
	for _, p := range parts {
		out = append(out, p.Samples...)
	}
	return Buffer{Samples: out}
}

// FadeIn returns a copy with a linear gain ramp from silence over d.
func (b Buffer) FadeIn(d time.Duration) Buffer {
	out := b.Clone()
	n := min(FramesFor(d.Seconds()), out.Frames())
	for f := 0; f < n; f++ {
		g := float32(f) / float32(n)
		for c := 0; c < Channels; c++ {
			out.Samples[f*Channels+c] *= g
		}
	}
	return out
}

// FadeOut returns a copy with a linear gain ramp to silence over the last d.
func (b Buffer) FadeOut(d time.Duration) Buffer {
	out := b.Clone()
	frames := out.Frames()
	n := min(FramesFor(d.Seconds()), frames)
	start := frames - n
	for f := start; f < frames; f++ {
		g := float32(frames-1-f) / float32(n)
		for c := 0; c < Channels; c++ {
			out.Samples[f*Channels+c] *= g
		}
	}
	return out
}

// Normalize scales the buffer so its peak sits headroomDB below full scale.
// Silent buffers are returned unchanged.
func (b Buffer) Normalize(headroomDB float64) Buffer {
	peak := b.Peak()
	if peak == 0 {
		return b.Clone()
	}
	target := DBToGain(-headroomDB)
	return b.Gain(GainToDB(target / peak))
}

// Int16 converts to interleaved 16-bit PCM, clipping out-of-range samples.
func (b Buffer) Int16() []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		v := float64(s) * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// FromInt16 converts interleaved 16-bit PCM to a Buffer.
func FromInt16(samples []int16) Buffer {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return Buffer{Samples: out}
}
