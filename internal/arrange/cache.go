package arrange

import (
	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/catalog"
)

// LayerBuffer is a fitted layer ready to mix.
type LayerBuffer struct {
	Layer     string
	Ref       catalog.SampleRef
	Audio     audio.Buffer
	GainDB    float64
	FromCache bool
	Silent    bool // placeholder for a sample that could not be conformed

	// DuckDB is the attenuation applied whenever this sample is played back
	// from cache. It travels with the cache entry.
	DuckDB float64
}

type cacheKey struct {
	kind  string
	layer string
}

type cacheEntry struct {
	ref   catalog.SampleRef
	audio audio.Buffer
	duck  float64
	seq   int
}

// Cache remembers the sample chosen for each cacheable (kind, layer) within
// one song. The first Put for a key wins; later Puts are ignored. Stored and
// returned buffers are copies. A Cache belongs to a single song and is not
// safe for concurrent use.
type Cache struct {
	entries map[cacheKey]cacheEntry
	seq     int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]cacheEntry)}
}

// Get returns the cached layer for (kind, layer).
func (c *Cache) Get(kind, layer string) (*LayerBuffer, bool) {
	e, ok := c.entries[cacheKey{kind, layer}]
	if !ok {
		return nil, false
	}
	return e.layer(layer), true
}

// Earliest returns the first cached layer stored under any of kinds.
func (c *Cache) Earliest(layer string, kinds []string) (*LayerBuffer, string, bool) {
	var (
		best     cacheEntry
		bestKind string
		found    bool
	)
	for _, k := range kinds {
		e, ok := c.entries[cacheKey{k, layer}]
		if ok && (!found || e.seq < best.seq) {
			best, bestKind, found = e, k, true
		}
	}
	if !found {
		return nil, "", false
	}
	return best.layer(layer), bestKind, true
}

func (e cacheEntry) layer(name string) *LayerBuffer {
	return &LayerBuffer{Layer: name, Ref: e.ref, Audio: e.audio.Clone(), FromCache: true, DuckDB: e.duck}
}

// Put stores lb under (kind, lb.Layer) unless the key is already populated.
func (c *Cache) Put(kind string, lb *LayerBuffer) {
	k := cacheKey{kind, lb.Layer}
	if _, ok := c.entries[k]; ok {
		return
	}
	c.seq++
	c.entries[k] = cacheEntry{ref: lb.Ref, audio: lb.Audio.Clone(), duck: lb.DuckDB, seq: c.seq}
}

// Len returns the number of cached layers.
func (c *Cache) Len() int {
	return len(c.entries)
}
