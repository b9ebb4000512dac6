package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/satindergrewal/loopforge/internal/audio"
)

func tone(frames int, v float32) audio.Buffer {
	b := audio.Silence(frames)
	for i := range b.Samples {
		b.Samples[i] = v * float32(i%7) / 7
	}
	return b
}

func TestAudioDigest(t *testing.T) {
	a, b := tone(100, 0.5), tone(100, 0.5)
	if AudioDigest(a) != AudioDigest(b) {
		t.Error("identical audio, different digests")
	}
	b.Samples[40] += 1e-6
	if AudioDigest(a) == AudioDigest(b) {
		t.Error("one changed sample kept the digest")
	}
}

func TestFindDuplicates(t *testing.T) {
	dir := t.TempDir()
	codec := audio.WAVCodec{}
	for name, b := range map[string]audio.Buffer{
		"song_001.wav": tone(2000, 0.5),
		"song_002.wav": tone(2000, 0.25),
		"song_003.wav": tone(2000, 0.5),
		"song_004.wav": tone(2000, 0.25),
	} {
		if err := codec.Encode(b, filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "song_005.wav"), []byte("not audio"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	dups, scanned, err := FindDuplicates(context.Background(), codec, dir, []string{"wav"})
	if err != nil {
		t.Fatal(err)
	}
	if scanned != 4 {
		t.Errorf("scanned = %d, want 4", scanned)
	}
	want := []Duplicate{
		{File: "song_003.wav", Original: "song_001.wav"},
		{File: "song_004.wav", Original: "song_002.wav"},
	}
	if len(dups) != len(want) {
		t.Fatalf("dups = %v, want %v", dups, want)
	}
	for i := range want {
		if dups[i] != want[i] {
			t.Errorf("dups[%d] = %v, want %v", i, dups[i], want[i])
		}
	}
}

func TestFindDuplicatesMissingDir(t *testing.T) {
	if _, _, err := FindDuplicates(context.Background(), audio.WAVCodec{}, filepath.Join(t.TempDir(), "nope"), []string{"wav"}); err == nil {
		t.Error("expected error for a missing directory")
	}
}
