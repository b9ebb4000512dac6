package stretch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// Rubberband runs the rubberband command line tool on temporary WAV files.
type Rubberband struct {
	Binary string // defaults to "rubberband" on PATH
	Codec  audio.Codec
	TmpDir string
}

func (r Rubberband) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "rubberband"
}

func (r Rubberband) codec() audio.Codec {
	if r.Codec != nil {
		return r.Codec
	}
	return audio.WAVCodec{}
}

// Stretch runs rubberband with the R3 engine and formant preservation.
func (r Rubberband) Stretch(ctx context.Context, b audio.Buffer, ratio float64) (audio.Buffer, error) {
	if err := CheckRatio(ratio); err != nil {
		return audio.Buffer{}, err
	}
	return r.run(ctx, b, stretchArgs(ratio))
}

// PitchShift transposes by semitones while keeping duration.
func (r Rubberband) PitchShift(ctx context.Context, b audio.Buffer, semitones float64) (audio.Buffer, error) {
	return r.run(ctx, b, pitchArgs(semitones))
}

func stretchArgs(ratio float64) []string {
	return []string{"--tempo", strconv.FormatFloat(ratio, 'f', 6, 64), "--fine", "--formant", "-q"}
}

func pitchArgs(semitones float64) []string {
	return []string{"--pitch", strconv.FormatFloat(semitones, 'f', 4, 64), "--fine", "--formant", "-q"}
}

func (r Rubberband) run(ctx context.Context, b audio.Buffer, args []string) (audio.Buffer, error) {
	dir, err := os.MkdirTemp(r.TmpDir, "stretch-")
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("stretch: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")
	if err := r.codec().Encode(b, in); err != nil {
		return audio.Buffer{}, fmt.Errorf("stretch: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.binary(), append(args, in, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return audio.Buffer{}, fmt.Errorf("rubberband: %w: %s", err, stderr.String())
	}

	res, err := r.codec().Decode(out)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("stretch: %w", err)
	}
	return res, nil
}
