// Package ledger remembers the structural fingerprints of accepted songs so a
// batch never emits the same arrangement twice.
package ledger

import (
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"sync"
)

// Fingerprint hashes the sample identities used by each section of a song.
// Order inside a section does not matter; order of sections does.
func Fingerprint(sections [][]string) string {
	h := sha1.New()
	for _, refs := range sections {
		sorted := slices.Clone(refs)
		slices.Sort(sorted)
		for _, r := range sorted {
			h.Write([]byte(r))
			h.Write([]byte{0})
		}
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Ledger is a set of accepted fingerprints, safe for concurrent use. It
// lives for one generation run and is never written to disk.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func New() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Accept records fp and returns true, or returns false and leaves the ledger
// unchanged if fp was already recorded.
func (l *Ledger) Accept(fp string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[fp]; ok {
		return false
	}
	l.seen[fp] = struct{}{}
	return true
}

// Contains reports whether fp was accepted earlier.
func (l *Ledger) Contains(fp string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[fp]
	return ok
}

// Len returns the number of accepted fingerprints.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
