// Package catalog discovers sample collections on disk and filters them by
// tempo and harmonic compatibility.
//
// A sample library is laid out as
//
//	<root>/<tempo>_<key>/<layer>/*.wav   keyed collections
//	<root>/<layer>/<tempo>/*.wav         shared kits usable in any key (e.g. drums)
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrNoCollections is returned when a scan finds no keyed collection.
	ErrNoCollections = errors.New("catalog: no sample collections")

	// ErrBadFolderName is returned by ParseFolder for names not shaped <tempo>_<key>.
	ErrBadFolderName = errors.New("catalog: folder name is not <tempo>_<key>")
)

// DefaultSharedLayers are layer folders at the library root that hold
// per-tempo kits shared across all keys.
var DefaultSharedLayers = []string{"drums"}

var sampleExts = []string{".wav", ".flac", ".mp3"}

// SampleRef points at one candidate sample file.
type SampleRef struct {
	Collection string // collection name, e.g. "90_c" or "drums/90"
	Layer      string
	Name       string // file name
	Path       string // path handed to the codec
	Tempo      int    // tempo the file was recorded at
}

// String is the identity used when fingerprinting a song.
func (r SampleRef) String() string {
	return r.Collection + "/" + r.Layer + "/" + r.Name
}

// Collection is the set of samples sharing one tempo and key. Shared kits
// have an empty Key.
type Collection struct {
	Name   string
	Tempo  int
	Key    string
	Layers map[string][]SampleRef
}

// Candidates returns the files available for a layer, possibly none.
func (c *Collection) Candidates(layer string) []SampleRef {
	return c.Layers[layer]
}

// Shared reports whether the collection is a key-independent kit.
func (c *Collection) Shared() bool {
	return c.Key == ""
}

// Catalog is an immutable snapshot of a sample library. Rescan to refresh.
type Catalog struct {
	keyed  []*Collection
	shared map[string]*Collection // "<layer>/<tempo>"
}

// ParseFolder splits a "<tempo>_<key>" folder name.
func ParseFolder(name string) (tempo int, key string, err error) {
	t, k, ok := strings.Cut(name, "_")
	if !ok || k == "" {
		return 0, "", fmt.Errorf("%q: %w", name, ErrBadFolderName)
	}
	tempo, err = strconv.Atoi(t)
	if err != nil || tempo <= 0 {
		return 0, "", fmt.Errorf("%q: %w", name, ErrBadFolderName)
	}
	return tempo, NormalizeKey(k), nil
}

var (
	digitRun = regexp.MustCompile(`\d+`)
	bpmRun   = regexp.MustCompile(`(?i)(\d{2,3})\s*bpm`)
)

// Plausible loop tempos. Numbers outside this range are sample indices.
const (
	MinNameTempo = 40
	MaxNameTempo = 250
)

// TempoFromName extracts a tempo from a file name, e.g. "keys_85bpm_am.wav"
// -> 85. A number followed by "bpm" wins; otherwise the first standalone 2 or
// 3 digit run without a leading zero and within [MinNameTempo, MaxNameTempo]
// is used. It returns fallback when none is found.
func TempoFromName(name string, fallback int) int {
	for _, m := range bpmRun.FindAllStringSubmatch(name, -1) {
		if v, ok := nameTempo(m[1]); ok {
			return v
		}
	}
	for _, run := range digitRun.FindAllString(name, -1) {
		if len(run) != 2 && len(run) != 3 {
			continue
		}
		if v, ok := nameTempo(run); ok {
			return v
		}
	}
	return fallback
}

func nameTempo(run string) (int, bool) {
	if run[0] == '0' {
		return 0, false
	}
	v, err := strconv.Atoi(run)
	if err != nil || v < MinNameTempo || v > MaxNameTempo {
		return 0, false
	}
	return v, true
}

// Scan walks a sample library rooted at dir on the local filesystem.
func Scan(dir string) (*Catalog, error) {
	return ScanFS(os.DirFS(dir), dir)
}

// ScanFS walks a sample library in fsys. Paths in the returned SampleRefs are
// joined onto root so a codec can open them.
func ScanFS(fsys fs.FS, root string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("catalog: read root: %w", err)
	}

	c := &Catalog{shared: make(map[string]*Collection)}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if slices.Contains(DefaultSharedLayers, name) {
			if err := c.scanShared(fsys, root, name); err != nil {
				return nil, err
			}
			continue
		}
		tempo, key, err := ParseFolder(name)
		if err != nil {
			slog.Debug("skipping folder", "folder", name, "err", err)
			continue
		}
		col := &Collection{Name: name, Tempo: tempo, Key: key, Layers: make(map[string][]SampleRef)}
		layers, err := fs.ReadDir(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", name, err)
		}
		for _, l := range layers {
			if !l.IsDir() {
				continue
			}
			refs, err := scanFiles(fsys, root, col, l.Name(), path.Join(name, l.Name()))
			if err != nil {
				return nil, err
			}
			col.Layers[l.Name()] = refs
		}
		c.keyed = append(c.keyed, col)
	}

	if len(c.keyed) == 0 {
		return c, ErrNoCollections
	}
	slices.SortFunc(c.keyed, func(a, b *Collection) int { return strings.Compare(a.Name, b.Name) })
	slog.Debug("catalog scanned", "collections", len(c.keyed), "shared", len(c.shared))
	return c, nil
}

func (c *Catalog) scanShared(fsys fs.FS, root, layer string) error {
	tempos, err := fs.ReadDir(fsys, layer)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", layer, err)
	}
	for _, t := range tempos {
		if !t.IsDir() {
			continue
		}
		tempo, err := strconv.Atoi(t.Name())
		if err != nil {
			slog.Debug("skipping shared folder", "folder", path.Join(layer, t.Name()))
			continue
		}
		col := &Collection{
			Name:   layer + "/" + t.Name(),
			Tempo:  tempo,
			Layers: make(map[string][]SampleRef),
		}
		refs, err := scanFiles(fsys, root, col, layer, path.Join(layer, t.Name()))
		if err != nil {
			return err
		}
		col.Layers[layer] = refs
		c.shared[sharedKey(layer, tempo)] = col
	}
	return nil
}

func scanFiles(fsys fs.FS, root string, col *Collection, layer, dir string) ([]SampleRef, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", dir, err)
	}
	var refs []SampleRef
	for _, f := range files {
		if f.IsDir() || !slices.Contains(sampleExts, strings.ToLower(path.Ext(f.Name()))) {
			continue
		}
		refs = append(refs, SampleRef{
			Collection: col.Name,
			Layer:      layer,
			Name:       f.Name(),
			Path:       filepath.Join(root, filepath.FromSlash(path.Join(dir, f.Name()))),
			Tempo:      TempoFromName(f.Name(), col.Tempo),
		})
	}
	return refs, nil
}

func sharedKey(layer string, tempo int) string {
	return layer + "/" + strconv.Itoa(tempo)
}

// Collections returns every keyed collection, sorted by name.
func (c *Catalog) Collections() []*Collection {
	return slices.Clone(c.keyed)
}

// Shared returns the key-independent kit for a layer at a tempo, or nil.
func (c *Catalog) Shared(layer string, tempo int) *Collection {
	return c.shared[sharedKey(layer, tempo)]
}

// ResolveCompatible returns the keyed collections at exactly tempo whose key
// is key itself or listed for key in KeyTable. Keys absent from the table
// match only themselves. An empty result is not an error.
func (c *Catalog) ResolveCompatible(tempo int, key string) []*Collection {
	var out []*Collection
	for _, col := range c.keyed {
		if col.Tempo == tempo && IsCompatible(key, col.Key) {
			out = append(out, col)
		}
	}
	return out
}

// PickRoot chooses the collection whose tempo and key will anchor a song.
func (c *Catalog) PickRoot(rng *rand.Rand) (*Collection, error) {
	if len(c.keyed) == 0 {
		return nil, ErrNoCollections
	}
	return c.keyed[rng.IntN(len(c.keyed))], nil
}

// Tempos returns the distinct tempos of keyed collections, ascending.
func (c *Catalog) Tempos() []int {
	var out []int
	for _, col := range c.keyed {
		if !slices.Contains(out, col.Tempo) {
			out = append(out, col.Tempo)
		}
	}
	slices.Sort(out)
	return out
}

// Keys returns the distinct keys of keyed collections, sorted.
func (c *Catalog) Keys() []string {
	var out []string
	for _, col := range c.keyed {
		if !slices.Contains(out, col.Key) {
			out = append(out, col.Key)
		}
	}
	slices.Sort(out)
	return out
}

// InKey returns the keyed collections whose key is exactly key.
func (c *Catalog) InKey(key string) []*Collection {
	key = NormalizeKey(key)
	var out []*Collection
	for _, col := range c.keyed {
		if col.Key == key {
			out = append(out, col)
		}
	}
	return out
}
