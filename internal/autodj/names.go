package autodj

import (
	"strings"

	"github.com/satindergrewal/loopforge/internal/catalog"
)

// majorAdjectives and minorAdjectives name preview tracks by mode.
var (
	majorAdjectives = []string{"sunlit", "warm", "open", "golden", "breezy", "easy", "glowing", "mellow"}
	minorAdjectives = []string{"rainy", "dusty", "smoky", "midnight", "hazy", "faded", "quiet", "velvet"}
)

// KeyLabel spells a key the way a musician would: "f#m" becomes "F# minor",
// "bb" becomes "Bb major".
func KeyLabel(key string) string {
	key = catalog.NormalizeKey(key)
	if key == "" {
		return ""
	}
	mode := "major"
	if strings.HasSuffix(key, "m") {
		mode = "minor"
		key = strings.TrimSuffix(key, "m")
	}
	return strings.ToUpper(key[:1]) + key[1:] + " " + mode
}

// TrackName derives a stable display name from a key and a track ID.
func TrackName(key, trackID string) string {
	if key == "" || trackID == "" {
		return ""
	}
	adjs := majorAdjectives
	if strings.HasSuffix(catalog.NormalizeKey(key), "m") {
		adjs = minorAdjectives
	}

	var h int
	for i := 0; i < len(trackID) && i < 8; i++ {
		h = h*31 + int(trackID[i])
	}
	if h < 0 {
		h = -h
	}
	return adjs[h%len(adjs)] + " " + KeyLabel(key)
}
