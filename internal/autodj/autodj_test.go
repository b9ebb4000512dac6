package autodj

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/satindergrewal/loopforge/internal/arrange"
	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/batch"
	"github.com/satindergrewal/loopforge/internal/catalog"
)

type fakeLibrary map[string][]*catalog.Collection

func (l fakeLibrary) Keys() []string {
	var out []string
	for k := range l {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (l fakeLibrary) InKey(key string) []*catalog.Collection { return l[key] }

func newLibrary(keys ...string) fakeLibrary {
	lib := fakeLibrary{}
	for _, k := range keys {
		lib[k] = []*catalog.Collection{{Name: "90_" + k, Tempo: 90, Key: k}}
	}
	return lib
}

type fakeGenerator struct {
	mu    sync.Mutex
	out   batch.Outcome
	err   error
	roots []string
}

func (g *fakeGenerator) GenerateFrom(ctx context.Context, index int, picker batch.RootPicker) (batch.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	root, err := picker.PickRoot(rand.New(rand.NewPCG(1, uint64(index))))
	if err != nil {
		return batch.Outcome{}, err
	}
	g.roots = append(g.roots, root.Name)
	return g.out, g.err
}

func newScheduler(gen Generator, lib Library, cfg SchedulerConfig) *Scheduler {
	p := audio.NewPipeline(audio.WAVCodec{}, 0)
	return NewScheduler(gen, lib, p, rand.New(rand.NewPCG(7, 7)), cfg)
}

func accepted() batch.Outcome {
	return batch.Outcome{
		Accepted:    true,
		Path:        "/tmp/preview_001.wav",
		Fingerprint: "0123456789abcdef0123",
		Song:        &arrange.Song{Tempo: 90},
	}
}

// --- Names ---

func TestKeyLabel(t *testing.T) {
	tests := map[string]string{
		"c":   "C major",
		"f#m": "F# minor",
		"Bb":  "Bb major",
		"am":  "A minor",
		"":    "",
	}
	for in, want := range tests {
		if got := KeyLabel(in); got != want {
			t.Errorf("KeyLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTrackNameDeterministic(t *testing.T) {
	a := TrackName("am", "abc123")
	b := TrackName("am", "abc123")
	if a != b {
		t.Errorf("TrackName not deterministic: %q vs %q", a, b)
	}
	if !strings.HasSuffix(a, " A minor") {
		t.Errorf("TrackName = %q, want A minor suffix", a)
	}
}

func TestTrackNameMode(t *testing.T) {
	name := TrackName("c", "track-1")
	adj := strings.TrimSuffix(name, " C major")
	if !slices.Contains(majorAdjectives, adj) {
		t.Errorf("TrackName(c) = %q, adjective %q not in major pool", name, adj)
	}
	name = TrackName("em", "track-1")
	adj = strings.TrimSuffix(name, " E minor")
	if !slices.Contains(minorAdjectives, adj) {
		t.Errorf("TrackName(em) = %q, adjective %q not in minor pool", name, adj)
	}
}

func TestTrackNameEmpty(t *testing.T) {
	if got := TrackName("", "x"); got != "" {
		t.Errorf("TrackName(\"\", x) = %q", got)
	}
	if got := TrackName("c", ""); got != "" {
		t.Errorf("TrackName(c, \"\") = %q", got)
	}
}

// --- Key walk ---

func TestNextKeyStaysInLibrary(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	available := []string{"am", "c", "d"}
	for range 50 {
		if got := NextKey("c", available, rng); got != "am" {
			t.Fatalf("NextKey(c) = %q, want am", got)
		}
	}
}

func TestNextKeyNoNeighbour(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	if got := NextKey("d", []string{"c", "d"}, rng); got != "d" {
		t.Errorf("NextKey(d) = %q, want d", got)
	}
}

func TestNextKeyUnavailableCurrent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	available := []string{"c", "d"}
	for range 20 {
		if got := NextKey("bb", available, rng); !slices.Contains(available, got) {
			t.Fatalf("NextKey(bb) = %q, want one of %v", got, available)
		}
	}
	if got := NextKey("c", nil, rng); got != "" {
		t.Errorf("NextKey on empty library = %q", got)
	}
}

func TestNextKeyFollowsTable(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	available := catalog.KeyNames()
	for range 200 {
		got := NextKey("g", available, rng)
		if !slices.Contains(catalog.KeyTable["g"].Compatible, got) {
			t.Fatalf("NextKey(g) = %q, not a neighbour", got)
		}
	}
}

// --- Scheduler ---

func TestSetKey(t *testing.T) {
	s := newScheduler(&fakeGenerator{}, newLibrary("am", "c"), SchedulerConfig{StartingKey: "c"})
	if err := s.SetKey("Bb"); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("SetKey(Bb) err = %v, want ErrKeyUnavailable", err)
	}
	if err := s.SetKey("AM"); err != nil {
		t.Fatalf("SetKey(AM): %v", err)
	}
	select {
	case k := <-s.keyOverrideCh:
		if k != "am" {
			t.Errorf("override = %q, want am", k)
		}
	default:
		t.Error("SetKey did not queue an override")
	}
}

func TestGenerateTrackEnqueues(t *testing.T) {
	gen := &fakeGenerator{out: accepted()}
	s := newScheduler(gen, newLibrary("am", "c"), SchedulerConfig{StartingKey: "am", BufferAhead: 2})
	s.generateTrack(context.Background())

	if got := s.pipeline.QueueSize(); got != 1 {
		t.Errorf("QueueSize = %d, want 1", got)
	}
	if !slices.Equal(gen.roots, []string{"90_am"}) {
		t.Errorf("roots = %v, want [90_am]", gen.roots)
	}
	st := s.Status()
	if st.Generated != 1 || st.Duplicates != 0 {
		t.Errorf("Status = %+v", st)
	}
	if st.CurrentKey != "am" || st.KeyLabel != "A minor" {
		t.Errorf("Status key = %q (%q)", st.CurrentKey, st.KeyLabel)
	}
}

func TestGenerateTrackDuplicate(t *testing.T) {
	gen := &fakeGenerator{out: batch.Outcome{Duplicate: true, Fingerprint: "ff"}}
	s := newScheduler(gen, newLibrary("c"), SchedulerConfig{StartingKey: "c"})
	s.generateTrack(context.Background())

	if got := s.pipeline.QueueSize(); got != 0 {
		t.Errorf("QueueSize = %d, want 0", got)
	}
	if got := s.Status().Duplicates; got != 1 {
		t.Errorf("Duplicates = %d, want 1", got)
	}
}

func TestGenerateTrackError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("render failed")}
	s := newScheduler(gen, newLibrary("c"), SchedulerConfig{StartingKey: "c", RetryDelay: time.Millisecond})
	s.generateTrack(context.Background())

	if got := s.pipeline.QueueSize(); got != 0 {
		t.Errorf("QueueSize = %d, want 0", got)
	}
	if got := s.Status().Generated; got != 0 {
		t.Errorf("Generated = %d, want 0", got)
	}
}

func TestKeyPickerUnavailable(t *testing.T) {
	p := keyPicker{lib: newLibrary("c"), key: "bb"}
	if _, err := p.PickRoot(rand.New(rand.NewPCG(1, 1))); !errors.Is(err, ErrKeyUnavailable) {
		t.Errorf("PickRoot err = %v, want ErrKeyUnavailable", err)
	}
}

func TestRunFillsBuffer(t *testing.T) {
	gen := &fakeGenerator{out: accepted()}
	s := newScheduler(gen, newLibrary("am"), SchedulerConfig{
		StartingKey: "bb",
		BufferAhead: 2,
		DwellMin:    300,
		DwellMax:    900,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if got := s.pipeline.QueueSize(); got != 2 {
		t.Errorf("QueueSize = %d, want 2", got)
	}
	st := s.Status()
	if st.CurrentKey != "am" {
		t.Errorf("CurrentKey = %q, want am", st.CurrentKey)
	}
	if st.DwellRemaining < 200 {
		t.Errorf("DwellRemaining = %v, want at least 200s", st.DwellRemaining)
	}
}

func TestSetAutoDJ(t *testing.T) {
	s := newScheduler(&fakeGenerator{}, newLibrary("c"), SchedulerConfig{DwellMin: 10, DwellMax: 20})
	s.SetAutoDJ(false)
	if s.Status().AutoDJ {
		t.Error("AutoDJ still enabled")
	}
	s.SetAutoDJ(true)
	st := s.Status()
	if !st.AutoDJ || st.DwellRemaining < 9 {
		t.Errorf("Status = %+v", st)
	}
}
