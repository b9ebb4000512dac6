package catalog

import (
	"slices"
	"strings"
)

// Key is a node in the harmonic compatibility table.
type Key struct {
	Name       string
	Compatible []string // relative and adjacent keys on the circle of fifths, in preference order
}

// KeyTable maps a lower-case key name ("c", "f#m", "bb") to the keys whose
// samples may be layered alongside it. Edges are not required to be
// symmetric: "ab" lists "bbm", which has no entry of its own.
var KeyTable = map[string]*Key{
	"c":   {Name: "c", Compatible: []string{"am", "em", "f", "g", "dm"}},
	"g":   {Name: "g", Compatible: []string{"em", "bm", "c", "d", "am"}},
	"d":   {Name: "d", Compatible: []string{"bm", "f#m", "g", "a", "em"}},
	"a":   {Name: "a", Compatible: []string{"f#m", "c#m", "d", "e", "bm"}},
	"e":   {Name: "e", Compatible: []string{"c#m", "g#m", "a", "b", "f#m"}},
	"b":   {Name: "b", Compatible: []string{"g#m", "d#m", "e", "f#", "c#m"}},
	"f#":  {Name: "f#", Compatible: []string{"d#m", "a#m", "b", "c#", "g#m"}},
	"f":   {Name: "f", Compatible: []string{"dm", "am", "bb", "c", "gm"}},
	"bb":  {Name: "bb", Compatible: []string{"gm", "cm", "eb", "f", "dm"}},
	"eb":  {Name: "eb", Compatible: []string{"cm", "fm", "ab", "bb", "gm"}},
	"ab":  {Name: "ab", Compatible: []string{"fm", "bbm", "db", "eb", "cm"}},
	"am":  {Name: "am", Compatible: []string{"c", "f", "g", "em", "dm"}},
	"em":  {Name: "em", Compatible: []string{"g", "c", "d", "bm", "am"}},
	"bm":  {Name: "bm", Compatible: []string{"d", "g", "a", "f#m", "em"}},
	"f#m": {Name: "f#m", Compatible: []string{"a", "d", "e", "c#m", "bm"}},
	"c#m": {Name: "c#m", Compatible: []string{"e", "a", "b", "g#m", "f#m"}},
	"g#m": {Name: "g#m", Compatible: []string{"b", "e", "f#", "d#m", "c#m"}},
	"d#m": {Name: "d#m", Compatible: []string{"f#", "b", "c#", "a#m", "g#m"}},
	"dm":  {Name: "dm", Compatible: []string{"f", "bb", "c", "am", "gm"}},
	"gm":  {Name: "gm", Compatible: []string{"bb", "eb", "f", "dm", "cm"}},
	"cm":  {Name: "cm", Compatible: []string{"eb", "ab", "bb", "gm", "fm"}},
	"fm":  {Name: "fm", Compatible: []string{"ab", "db", "eb", "cm", "bbm"}},
}

// NormalizeKey lower-cases and trims a key name as it appears in folder names.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// KeyNames returns every key with an entry in the table, sorted.
func KeyNames() []string {
	names := make([]string, 0, len(KeyTable))
	for name := range KeyTable {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsKnownKey reports whether the key has an entry in the table.
func IsKnownKey(name string) bool {
	_, ok := KeyTable[NormalizeKey(name)]
	return ok
}

// CompatibleKeys returns the key itself followed by its table entry. A key
// without an entry is compatible with itself only.
func CompatibleKeys(name string) []string {
	name = NormalizeKey(name)
	out := []string{name}
	if k, ok := KeyTable[name]; ok {
		out = append(out, k.Compatible...)
	}
	return out
}

// IsCompatible reports whether material in key other may accompany root.
func IsCompatible(root, other string) bool {
	return slices.Contains(CompatibleKeys(root), NormalizeKey(other))
}
