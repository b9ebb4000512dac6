package stretch

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// ErrNotFound is returned by Cache.Get on a miss.
var ErrNotFound = errors.New("stretch: not in cache")

// CacheOptions configures the on-disk stretch cache.
type CacheOptions struct {
	// Dir holds the badger files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory; used by tests.
	InMemory bool

	Logger *slog.Logger
}

// Cache stores conformed sample audio keyed by source path and target tempo,
// so a sample is stretched once per tempo across runs.
type Cache struct {
	db *badger.DB
}

type entry struct {
	Source  string    `msgpack:"source"`
	Tempo   int       `msgpack:"tempo"`
	Samples []float32 `msgpack:"samples"`
}

// OpenCache opens or creates the cache.
func OpenCache(opts CacheOptions) (*Cache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("stretch: CacheOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("stretch: open cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func cacheKey(source string, tempo int) []byte {
	return []byte("stretch:" + strconv.Itoa(tempo) + ":" + source)
}

// Get returns the cached audio for source at tempo, or ErrNotFound.
func (c *Cache) Get(source string, tempo int) (audio.Buffer, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(source, tempo))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return audio.Buffer{}, ErrNotFound
	}
	if err != nil {
		return audio.Buffer{}, err
	}
	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return audio.Buffer{}, fmt.Errorf("stretch: decode cache entry: %w", err)
	}
	return audio.Buffer{Samples: e.Samples}, nil
}

// Put stores b as the conformed audio of source at tempo.
func (c *Cache) Put(source string, tempo int, b audio.Buffer) error {
	raw, err := msgpack.Marshal(entry{Source: source, Tempo: tempo, Samples: b.Samples})
	if err != nil {
		return fmt.Errorf("stretch: encode cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(source, tempo), raw)
	})
}

// Close flushes and closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger output to slog, dropping info and debug chatter.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn(fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}
