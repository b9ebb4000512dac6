// Package autodj keeps a preview queue filled with freshly assembled songs,
// wandering between harmonically related keys over time.
package autodj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/batch"
	"github.com/satindergrewal/loopforge/internal/catalog"
)

// ErrKeyUnavailable is returned when no collection in the library is in the
// requested key.
var ErrKeyUnavailable = errors.New("autodj: key not in library")

// SchedulerConfig holds auto-DJ parameters.
type SchedulerConfig struct {
	StartingKey string
	BufferAhead int // songs to pre-render
	DwellMin    int // min seconds per key
	DwellMax    int // max seconds per key
	RetryDelay  time.Duration
}

// SchedulerStatus is the current state of the auto-DJ.
type SchedulerStatus struct {
	CurrentKey     string  `json:"key"`
	KeyLabel       string  `json:"key_label"`
	AutoDJ         bool    `json:"auto_dj"`
	DwellRemaining float64 `json:"dwell_remaining"` // seconds
	QueueSize      int     `json:"queue_size"`
	Generated      int     `json:"generated"`
	Duplicates     int     `json:"duplicates"`
}

// Generator renders one song anchored on a root chosen by picker.
type Generator interface {
	GenerateFrom(ctx context.Context, index int, picker batch.RootPicker) (batch.Outcome, error)
}

// Library is the part of the catalog the key walk needs.
type Library interface {
	Keys() []string
	InKey(key string) []*catalog.Collection
}

// Scheduler manages key transitions and song generation for the preview.
type Scheduler struct {
	gen      Generator
	lib      Library
	pipeline *audio.Pipeline
	cfg      SchedulerConfig

	mu         sync.Mutex
	rng        *rand.Rand
	currentKey string
	autoDJ     bool
	dwellEnd   time.Time
	index      int
	generated  int
	duplicates int

	keyOverrideCh chan string
}

// NewScheduler creates an auto-DJ scheduler.
func NewScheduler(gen Generator, lib Library, pipeline *audio.Pipeline, rng *rand.Rand, cfg SchedulerConfig) *Scheduler {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.BufferAhead <= 0 {
		cfg.BufferAhead = 1
	}
	return &Scheduler{
		gen:           gen,
		lib:           lib,
		pipeline:      pipeline,
		cfg:           cfg,
		rng:           rng,
		currentKey:    catalog.NormalizeKey(cfg.StartingKey),
		autoDJ:        true,
		keyOverrideCh: make(chan string, 1),
	}
}

// Status returns the current DJ state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := time.Until(s.dwellEnd).Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return SchedulerStatus{
		CurrentKey:     s.currentKey,
		KeyLabel:       KeyLabel(s.currentKey),
		AutoDJ:         s.autoDJ,
		DwellRemaining: remaining,
		QueueSize:      s.pipeline.QueueSize(),
		Generated:      s.generated,
		Duplicates:     s.duplicates,
	}
}

// SetKey asks the scheduler to move to key before the next song.
func (s *Scheduler) SetKey(key string) error {
	key = catalog.NormalizeKey(key)
	if !slices.Contains(s.lib.Keys(), key) {
		return fmt.Errorf("%w: %q", ErrKeyUnavailable, key)
	}
	select {
	case s.keyOverrideCh <- key:
	default:
	}
	return nil
}

// Skip skips the current song.
func (s *Scheduler) Skip() {
	s.pipeline.Skip()
}

// SetAutoDJ enables or disables automatic key transitions.
func (s *Scheduler) SetAutoDJ(enabled bool) {
	s.mu.Lock()
	s.autoDJ = enabled
	if enabled {
		s.resetDwell()
	}
	s.mu.Unlock()
}

// Run starts the auto-DJ loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	if !slices.Contains(s.lib.Keys(), s.currentKey) {
		s.currentKey = NextKey(s.currentKey, s.lib.Keys(), s.rng)
	}
	s.resetDwell()
	start := s.currentKey
	s.mu.Unlock()

	slog.Info("auto-dj started", "key", start)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case key := <-s.keyOverrideCh:
			s.mu.Lock()
			s.currentKey = key
			s.resetDwell()
			s.mu.Unlock()
			slog.Info("key set manually", "key", key)
		default:
		}

		s.mu.Lock()
		autoDJ := s.autoDJ
		expired := time.Now().After(s.dwellEnd)
		s.mu.Unlock()

		if autoDJ && expired {
			s.transitionKey()
		}

		if s.pipeline.QueueSize() < s.cfg.BufferAhead {
			s.generateTrack(ctx)
		} else {
			sleep(ctx, time.Second)
		}
	}
}

func (s *Scheduler) generateTrack(ctx context.Context) {
	s.mu.Lock()
	key := s.currentKey
	s.index++
	index := s.index
	s.mu.Unlock()

	slog.Debug("generating song", "key", key, "index", index)

	out, err := s.gen.GenerateFrom(ctx, index, keyPicker{lib: s.lib, key: key})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("preview generation failed", "key", key, "err", err)
			sleep(ctx, s.cfg.RetryDelay)
		}
		return
	}
	if !out.Accepted {
		s.mu.Lock()
		s.duplicates++
		s.mu.Unlock()
		return
	}

	id := out.Fingerprint
	if len(id) > 12 {
		id = id[:12]
	}
	track := audio.TrackInfo{
		ID:   id,
		Key:  key,
		Path: out.Path,
		Name: TrackName(key, id),
	}
	if out.Song != nil {
		track.Tempo = out.Song.Tempo
	}

	s.mu.Lock()
	s.generated++
	s.mu.Unlock()

	slog.Info("song ready", "name", track.Name, "id", track.ID, "key", key, "tempo", track.Tempo)
	s.pipeline.Enqueue(track)
}

func (s *Scheduler) transitionKey() {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NextKey(s.currentKey, s.lib.Keys(), s.rng)
	if next != s.currentKey {
		slog.Info("auto-dj transition", "from", s.currentKey, "to", next)
		s.currentKey = next
	}
	s.resetDwell()
}

// resetDwell sets a new random dwell timer. Must be called with mu held.
func (s *Scheduler) resetDwell() {
	spread := s.cfg.DwellMax - s.cfg.DwellMin
	if spread <= 0 {
		spread = 1
	}
	dwell := s.cfg.DwellMin + s.rng.IntN(spread)
	s.dwellEnd = time.Now().Add(time.Duration(dwell) * time.Second)
}

// NextKey picks a neighbour of current from KeyTable that the library can
// play. When current has no playable neighbour it stays put; when current is
// not playable at all, any available key is chosen. Returns "" only for an
// empty library.
func NextKey(current string, available []string, rng *rand.Rand) string {
	if len(available) == 0 {
		return ""
	}
	current = catalog.NormalizeKey(current)
	if !slices.Contains(available, current) {
		return available[rng.IntN(len(available))]
	}
	var options []string
	if k, ok := catalog.KeyTable[current]; ok {
		for _, c := range k.Compatible {
			if slices.Contains(available, c) {
				options = append(options, c)
			}
		}
	}
	if len(options) == 0 {
		return current
	}
	return options[rng.IntN(len(options))]
}

// keyPicker anchors songs on collections in a single key.
type keyPicker struct {
	lib Library
	key string
}

func (p keyPicker) PickRoot(rng *rand.Rand) (*catalog.Collection, error) {
	cols := p.lib.InKey(p.key)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrKeyUnavailable, p.key)
	}
	return cols[rng.IntN(len(cols))], nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
