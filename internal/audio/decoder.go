package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
)

// FFmpegCodec decodes any container FFmpeg understands into canonical PCM.
// It is the WAVCodec fallback for compressed sample libraries.
type FFmpegCodec struct {
	Binary string // defaults to "ffmpeg"
}

func (c FFmpegCodec) binary() string {
	if c.Binary == "" {
		return "ffmpeg"
	}
	return c.Binary
}

// Decode runs FFmpeg to decode an audio file to interleaved stereo at SampleRate.
func (c FFmpegCodec) Decode(path string) (Buffer, error) {
	samples, err := DecodeFile(context.Background(), c.binary(), path)
	if err != nil {
		return Buffer{}, err
	}
	return FromInt16(samples), nil
}

// Encode pipes raw PCM into FFmpeg, which picks the container from path's extension.
func (c FFmpegCodec) Encode(b Buffer, path string) error {
	cmd := exec.Command(c.binary(),
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-i", "pipe:0",
		"-loglevel", "error",
		path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w", path, err)
	}
	_, werr := stdin.Write(SamplesToBytes(b.Int16()))
	stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w", path, err)
	}
	if werr != nil {
		return fmt.Errorf("ffmpeg encode %s: %w", path, werr)
	}
	return nil
}

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at SampleRate.
func DecodeFile(ctx context.Context, ffmpeg, path string) ([]int16, error) {
	cmd := exec.CommandContext(ctx, ffmpeg,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
