package master

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Limiter applies brick-wall limiting to the file at in and writes out.
// threshold is the output ceiling as a linear ratio of full scale.
type Limiter interface {
	Limit(ctx context.Context, in, out string, threshold float64) error
}

// FFmpegLimiter limits with ffmpeg's alimiter filter. The output container
// follows the extension of out, so a .mp3 destination is transcoded as well.
type FFmpegLimiter struct {
	Binary string
}

func (l FFmpegLimiter) binary() string {
	if l.Binary != "" {
		return l.Binary
	}
	return "ffmpeg"
}

func limiterArgs(in, out string, threshold float64) []string {
	return []string{
		"-y", "-loglevel", "error",
		"-i", in,
		"-af", "alimiter=limit=" + strconv.FormatFloat(threshold, 'f', -1, 64),
		out,
	}
}

func (l FFmpegLimiter) Limit(ctx context.Context, in, out string, threshold float64) error {
	cmd := exec.CommandContext(ctx, l.binary(), limiterArgs(in, out, threshold)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}
	return nil
}
