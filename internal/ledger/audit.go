package ledger

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// AudioDigest hashes decoded PCM. Two files share a digest only when their
// samples are bit-identical, whatever container they were stored in.
func AudioDigest(b audio.Buffer) string {
	h := sha1.New()
	var word [4]byte
	for _, s := range b.Samples {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(s))
		h.Write(word[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Duplicate pairs a file with the earlier file holding the same audio.
type Duplicate struct {
	File     string
	Original string
}

// FindDuplicates decodes every file in dir whose extension is in exts and
// reports those whose audio matches an earlier file in name order. Files that
// fail to decode are logged and skipped.
func FindDuplicates(ctx context.Context, codec audio.Codec, dir string, exts []string) ([]Duplicate, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: read %s: %w", dir, err)
	}

	var (
		dups    []Duplicate
		scanned int
		seen    = make(map[string]string)
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return dups, scanned, err
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(e.Name())), ".")
		if e.IsDir() || !slices.Contains(exts, ext) {
			continue
		}
		b, err := codec.Decode(filepath.Join(dir, e.Name()))
		if err != nil {
			slog.Warn("skipping undecodable file", "file", e.Name(), "err", err)
			continue
		}
		scanned++
		digest := AudioDigest(b)
		if orig, ok := seen[digest]; ok {
			dups = append(dups, Duplicate{File: e.Name(), Original: orig})
			continue
		}
		seen[digest] = e.Name()
	}
	return dups, scanned, nil
}
