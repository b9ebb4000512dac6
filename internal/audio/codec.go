package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrInvalidWAV is returned when a file does not carry a readable RIFF/WAVE header.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// ErrUnsupportedFormat is returned when WAVCodec is asked to write a
// non-WAV container without a Fallback.
var ErrUnsupportedFormat = errors.New("audio: unsupported output format")

// Codec decodes sample files into Buffers and encodes Buffers to disk.
type Codec interface {
	Decode(path string) (Buffer, error)
	Encode(b Buffer, path string) error
}

// WAVCodec reads and writes uncompressed WAV. Decoded audio is conformed to
// SampleRate and Channels. Files with any other extension are handed to
// Fallback when it is set.
type WAVCodec struct {
	Fallback Codec
}

// Decode reads a sample file into a Buffer at the canonical rate and layout.
func (c WAVCodec) Decode(path string) (Buffer, error) {
	if !strings.EqualFold(filepath.Ext(path), ".wav") && c.Fallback != nil {
		return c.Fallback.Decode(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Buffer{}, fmt.Errorf("decode %s: %w", path, ErrInvalidWAV)
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if pcm == nil || pcm.Format == nil {
		return Buffer{}, fmt.Errorf("decode %s: %w", path, ErrInvalidWAV)
	}

	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	stereo := toStereo(pcm.Data, pcm.Format.NumChannels, depth)
	return Conform(stereo, pcm.Format.SampleRate)
}

// Encode writes b as a 16-bit PCM WAV file. Other extensions go to Fallback.
func (c WAVCodec) Encode(b Buffer, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		if c.Fallback == nil {
			return fmt.Errorf("encode %s: %w", path, ErrUnsupportedFormat)
		}
		return c.Fallback.Encode(b, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, SampleRate, BitDepth, Channels, 1)
	samples := b.Int16()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(ib); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}

// toStereo scales integer PCM to float and lays it out as interleaved stereo.
// Mono is duplicated; anything above two channels keeps the first two. 8-bit
// WAV data is unsigned and is re-centred on zero.
func toStereo(data []int, channels, depth int) []float32 {
	if channels < 1 {
		channels = 1
	}
	if depth <= 0 {
		depth = BitDepth
	}
	scale := float32(int64(1) << (depth - 1))
	var offset float32
	if depth == 8 {
		offset = scale
	}
	frames := len(data) / channels
	out := make([]float32, frames*Channels)
	for f := 0; f < frames; f++ {
		l := (float32(data[f*channels]) - offset) / scale
		r := l
		if channels > 1 {
			r = (float32(data[f*channels+1]) - offset) / scale
		}
		out[f*Channels] = l
		out[f*Channels+1] = r
	}
	return out
}

// Conform resamples interleaved stereo audio from rate to SampleRate.
func Conform(stereo []float32, rate int) (Buffer, error) {
	if rate == SampleRate || rate <= 0 || len(stereo) == 0 {
		return Buffer{Samples: stereo}, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(rate),
		OutputRate: float64(SampleRate),
		Channels:   Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Buffer{}, fmt.Errorf("create resampler %d->%d: %w", rate, SampleRate, err)
	}

	in := make([]float64, len(stereo))
	for i, s := range stereo {
		in[i] = float64(s)
	}
	out, err := rs.Process(in)
	if err != nil {
		return Buffer{}, fmt.Errorf("resample %d->%d: %w", rate, SampleRate, err)
	}

	frames := len(out) / Channels
	samples := make([]float32, frames*Channels)
	for i := range samples {
		samples[i] = float32(out[i])
	}
	return Buffer{Samples: samples}, nil
}
