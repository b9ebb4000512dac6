package batch

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/satindergrewal/loopforge/internal/arrange"
	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/catalog"
	"github.com/satindergrewal/loopforge/internal/ledger"
)

type oneRoot struct{ err error }

func (o oneRoot) PickRoot(*rand.Rand) (*catalog.Collection, error) {
	if o.err != nil {
		return nil, o.err
	}
	return &catalog.Collection{Name: "90_c", Tempo: 90, Key: "c"}, nil
}

// scriptedRenderer returns songs with the given fingerprints in order; an
// empty fingerprint means a render failure.
type scriptedRenderer struct {
	fps []string
	n   int
}

func (s *scriptedRenderer) Render(context.Context, *catalog.Collection) (*arrange.Song, error) {
	fp := s.fps[s.n%len(s.fps)]
	s.n++
	if fp == "" {
		return nil, errors.New("rubberband exited 1")
	}
	return &arrange.Song{Fingerprint: fp, Audio: audio.Silence(10)}, nil
}

type fakeMaster struct {
	paths []string
	err   error
}

func (f *fakeMaster) Finish(_ context.Context, _ audio.Buffer, path string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

type fakeSink struct {
	dests []string
	err   error
}

func (f *fakeSink) Upload(_ context.Context, _, dest string) error {
	f.dests = append(f.dests, dest)
	return f.err
}

func driver(policy Policy, fps ...string) (*Driver, *fakeMaster) {
	m := &fakeMaster{}
	return &Driver{
		Catalog:   oneRoot{},
		Arranger:  &scriptedRenderer{fps: fps},
		Ledger:    ledger.New(),
		Master:    m,
		Rand:      rand.New(rand.NewPCG(1, 1)),
		Policy:    policy,
		OutputDir: "/out",
		Prefix:    "lofi",
		RunID:     "run1",
	}, m
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Strict, "strict": Strict, "lenient": Lenient} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParsePolicy("loose"); err == nil {
		t.Error("ParsePolicy(loose) should fail")
	}
}

func TestFileName(t *testing.T) {
	d := &Driver{}
	if got := d.FileName(7); got != "song_007.wav" {
		t.Errorf("FileName(7) = %q", got)
	}
	d = &Driver{Prefix: "lofi", Ext: ".mp3"}
	if got := d.FileName(1234); got != "lofi_1234.mp3" {
		t.Errorf("FileName(1234) = %q", got)
	}
}

// --- GenerateSong ---

func TestGenerateSongStrictDuplicateNotExported(t *testing.T) {
	d, m := driver(Strict, "a", "a")

	out, err := d.GenerateSong(context.Background(), 1)
	if err != nil || !out.Accepted || out.Duplicate {
		t.Fatalf("first = %+v, %v", out, err)
	}
	if out.Path != filepath.Join("/out", "lofi_001.wav") {
		t.Errorf("Path = %q", out.Path)
	}

	out, err = d.GenerateSong(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Accepted || !out.Duplicate || out.Path != "" {
		t.Errorf("duplicate = %+v, want rejected with no path", out)
	}
	if len(m.paths) != 1 {
		t.Errorf("Finish calls = %d, want 1", len(m.paths))
	}
	if d.Ledger.Len() != 1 {
		t.Errorf("ledger size = %d, want 1", d.Ledger.Len())
	}
}

func TestGenerateSongLenientDuplicateExported(t *testing.T) {
	d, m := driver(Lenient, "a", "a")
	d.GenerateSong(context.Background(), 1)
	out, err := d.GenerateSong(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Accepted || !out.Duplicate {
		t.Errorf("lenient duplicate = %+v, want accepted and flagged", out)
	}
	if len(m.paths) != 2 {
		t.Errorf("Finish calls = %d, want 2", len(m.paths))
	}
}

func TestGenerateSongMasterFailure(t *testing.T) {
	d, m := driver(Strict, "a")
	m.err = errors.New("ffmpeg exited 1")
	out, err := d.GenerateSong(context.Background(), 1)
	if err == nil || !errors.Is(err, m.err) {
		t.Fatalf("err = %v, want wrapped master error", err)
	}
	if out.Accepted {
		t.Error("failed master reported as accepted")
	}
}

func TestGenerateSongExportFailureKeepsSong(t *testing.T) {
	d, _ := driver(Strict, "a")
	sink := &fakeSink{err: errors.New("bucket unreachable")}
	d.Sink = sink
	out, err := d.GenerateSong(context.Background(), 3)
	if err != nil || !out.Accepted {
		t.Fatalf("out = %+v, err = %v; want accepted despite export failure", out, err)
	}
	if len(sink.dests) != 1 || sink.dests[0] != "run1/lofi_003.wav" {
		t.Errorf("dests = %v", sink.dests)
	}
}

func TestGenerateSongNoCollections(t *testing.T) {
	d, _ := driver(Strict, "a")
	d.Catalog = oneRoot{err: catalog.ErrNoCollections}
	if _, err := d.GenerateSong(context.Background(), 1); !errors.Is(err, catalog.ErrNoCollections) {
		t.Errorf("err = %v, want ErrNoCollections", err)
	}
}

// --- Run ---

func TestRunRetriesDuplicates(t *testing.T) {
	d, m := driver(Strict, "a", "a", "b", "c")
	var seen []Attempt
	rep, err := d.Run(context.Background(), 3, func(a Attempt) { seen = append(seen, a) })
	if err != nil {
		t.Fatal(err)
	}
	want := Report{Accepted: 3, Rejected: 1, Attempts: 4}
	if rep != want {
		t.Errorf("Report = %+v, want %+v", rep, want)
	}
	if len(seen) != 4 || !seen[1].Outcome.Duplicate {
		t.Errorf("attempts = %+v", seen)
	}
	for i, p := range m.paths {
		if !strings.HasSuffix(p, []string{"lofi_001.wav", "lofi_002.wav", "lofi_003.wav"}[i]) {
			t.Errorf("path %d = %q", i, p)
		}
	}
}

func TestRunAttemptBudget(t *testing.T) {
	d, _ := driver(Strict, "same")
	rep, err := d.Run(context.Background(), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Report{Accepted: 1, Rejected: 9, Attempts: 10}
	if rep != want {
		t.Errorf("Report = %+v, want %+v", rep, want)
	}
}

func TestRunCustomAttemptFactor(t *testing.T) {
	d, _ := driver(Strict, "same")
	d.AttemptFactor = 2
	rep, _ := d.Run(context.Background(), 3, nil)
	if rep.Attempts != 6 {
		t.Errorf("Attempts = %d, want 6", rep.Attempts)
	}
}

func TestRunFailureDoesNotStopBatch(t *testing.T) {
	d, _ := driver(Strict, "", "a", "", "b")
	rep, err := d.Run(context.Background(), 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := Report{Accepted: 2, Failed: 2, Attempts: 4}
	if rep != want {
		t.Errorf("Report = %+v, want %+v", rep, want)
	}
}

func TestRunCanceled(t *testing.T) {
	d, _ := driver(Strict, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := d.Run(ctx, 2, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if rep.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", rep.Attempts)
	}
}

func TestGenerateFromUsesPicker(t *testing.T) {
	d, m := driver(Strict, "a")
	errEmpty := errors.New("no collections in key")

	if _, err := d.GenerateFrom(context.Background(), 1, oneRoot{err: errEmpty}); !errors.Is(err, errEmpty) {
		t.Fatalf("GenerateFrom err = %v, want %v", err, errEmpty)
	}
	if len(m.paths) != 0 {
		t.Errorf("mastered %v after picker failure", m.paths)
	}

	out, err := d.GenerateFrom(context.Background(), 1, oneRoot{})
	if err != nil || !out.Accepted {
		t.Errorf("GenerateFrom = %+v, %v", out, err)
	}
}
