// Package batch drives song generation: pick a root collection, arrange,
// gate on the fingerprint ledger, master, and optionally export.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/loopforge/internal/arrange"
	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/catalog"
	"github.com/satindergrewal/loopforge/internal/ledger"
)

// Policy decides what happens to a song whose fingerprint was seen before.
type Policy string

const (
	// Strict discards duplicates before anything is written.
	Strict Policy = "strict"
	// Lenient logs duplicates and exports them anyway.
	Lenient Policy = "lenient"
)

// ParsePolicy validates a policy name. The empty string means Strict.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Strict:
		return Strict, nil
	case Lenient:
		return Lenient, nil
	}
	return "", fmt.Errorf("batch: unknown duplicate policy %q", s)
}

// DefaultAttemptFactor bounds a run to this many attempts per requested song.
const DefaultAttemptFactor = 5

// RootPicker chooses the collection that anchors a song.
type RootPicker interface {
	PickRoot(rng *rand.Rand) (*catalog.Collection, error)
}

// Renderer arranges a song around a root collection.
type Renderer interface {
	Render(ctx context.Context, root *catalog.Collection) (*arrange.Song, error)
}

// Finisher masters audio into a final file.
type Finisher interface {
	Finish(ctx context.Context, b audio.Buffer, path string) error
}

// Uploader copies a finished file to remote storage.
type Uploader interface {
	Upload(ctx context.Context, localPath, dest string) error
}

// Driver generates songs one at a time.
type Driver struct {
	Catalog  RootPicker
	Arranger Renderer
	Ledger   *ledger.Ledger
	Master   Finisher
	Sink     Uploader // optional
	Rand     *rand.Rand

	Policy        Policy
	AttemptFactor int
	OutputDir     string
	Prefix        string // file name prefix, default "song"
	Ext           string // output extension, default ".wav"

	// RunID tags log lines and export paths; generated when empty.
	RunID string
}

// Outcome describes one generation attempt.
type Outcome struct {
	Accepted    bool // written to OutputDir
	Duplicate   bool // fingerprint was already in the ledger
	Path        string
	Fingerprint string
	Song        *arrange.Song
}

// Attempt is reported to Run's callback after every try.
type Attempt struct {
	N       int
	Outcome Outcome
	Err     error
}

// Report summarizes a run.
type Report struct {
	Accepted int
	Rejected int
	Failed   int
	Attempts int
}

func (d *Driver) runID() string {
	if d.RunID == "" {
		d.RunID = uuid.NewString()
	}
	return d.RunID
}

// FileName is the output name of the index-th song.
func (d *Driver) FileName(index int) string {
	prefix, ext := d.Prefix, d.Ext
	if prefix == "" {
		prefix = "song"
	}
	if ext == "" {
		ext = ".wav"
	}
	return fmt.Sprintf("%s_%03d%s", prefix, index, ext)
}

// GenerateSong makes one attempt at the index-th song. A duplicate under the
// Strict policy is not an error: it returns an Outcome with Duplicate set
// and nothing written. Errors from the arranger or mastering fail the
// attempt; export errors are logged and ignored.
func (d *Driver) GenerateSong(ctx context.Context, index int) (Outcome, error) {
	return d.GenerateFrom(ctx, index, d.Catalog)
}

// GenerateFrom is GenerateSong with the root chosen by picker instead of the
// driver's catalog.
func (d *Driver) GenerateFrom(ctx context.Context, index int, picker RootPicker) (Outcome, error) {
	root, err := picker.PickRoot(d.Rand)
	if err != nil {
		return Outcome{}, err
	}

	song, err := d.Arranger.Render(ctx, root)
	if err != nil {
		return Outcome{}, fmt.Errorf("render %s: %w", root.Name, err)
	}
	out := Outcome{Fingerprint: song.Fingerprint, Song: song}

	if !d.Ledger.Accept(song.Fingerprint) {
		out.Duplicate = true
		if d.Policy != Lenient {
			slog.Info("duplicate pattern skipped", "run", d.runID(), "index", index, "fingerprint", song.Fingerprint)
			return out, nil
		}
		slog.Warn("duplicate pattern exported", "run", d.runID(), "index", index, "fingerprint", song.Fingerprint)
	}

	name := d.FileName(index)
	out.Path = filepath.Join(d.OutputDir, name)
	if err := d.Master.Finish(ctx, song.Audio, out.Path); err != nil {
		return out, fmt.Errorf("master %s: %w", name, err)
	}
	out.Accepted = true

	if d.Sink != nil {
		if err := d.Sink.Upload(ctx, out.Path, d.runID()+"/"+name); err != nil {
			slog.Warn("export failed", "file", out.Path, "err", err)
		}
	}
	return out, nil
}

// Run generates until target songs are accepted or the attempt budget of
// target × AttemptFactor is spent. onAttempt, when set, sees every attempt.
// Only cancellation of ctx stops the run early.
func (d *Driver) Run(ctx context.Context, target int, onAttempt func(Attempt)) (Report, error) {
	factor := d.AttemptFactor
	if factor <= 0 {
		factor = DefaultAttemptFactor
	}
	start := time.Now()
	slog.Info("run started", "run", d.runID(), "target", target, "policy", d.Policy)

	var rep Report
	for rep.Accepted < target && rep.Attempts < target*factor {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Attempts++
		out, err := d.GenerateSong(ctx, rep.Accepted+1)
		switch {
		case err != nil:
			rep.Failed++
			slog.Warn("attempt failed", "run", d.runID(), "attempt", rep.Attempts, "err", err)
		case out.Accepted:
			rep.Accepted++
			slog.Info("song generated", "run", d.runID(), "attempt", rep.Attempts, "file", out.Path)
		default:
			rep.Rejected++
		}
		if onAttempt != nil {
			onAttempt(Attempt{N: rep.Attempts, Outcome: out, Err: err})
		}
	}

	slog.Info("run finished",
		"run", d.runID(),
		"accepted", rep.Accepted,
		"rejected", rep.Rejected,
		"failed", rep.Failed,
		"attempts", rep.Attempts,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return rep, nil
}
