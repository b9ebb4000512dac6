package stretch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/satindergrewal/loopforge/internal/audio"
)

type fakeCodec struct {
	decodes int
	buf     audio.Buffer
}

func (f *fakeCodec) Decode(string) (audio.Buffer, error) {
	f.decodes++
	return f.buf.Clone(), nil
}

func (f *fakeCodec) Encode(audio.Buffer, string) error { return nil }

type fakeStretcher struct {
	calls  int
	ratios []float64
	err    error
}

func (f *fakeStretcher) Stretch(_ context.Context, b audio.Buffer, ratio float64) (audio.Buffer, error) {
	f.calls++
	f.ratios = append(f.ratios, ratio)
	if f.err != nil {
		return audio.Buffer{}, f.err
	}
	return b.Fit(int(math.Round(float64(b.Frames()) / ratio))), nil
}

func (f *fakeStretcher) PitchShift(_ context.Context, b audio.Buffer, _ float64) (audio.Buffer, error) {
	return b, nil
}

func tone(frames int) audio.Buffer {
	b := audio.Silence(frames)
	for i := range b.Samples {
		b.Samples[i] = float32(i%100) / 100
	}
	return b
}

// --- Ratio ---

func TestRatio(t *testing.T) {
	if got := Ratio(90, 120); got != 120.0/90.0 {
		t.Errorf("Ratio(90, 120) = %v", got)
	}
	if got := Ratio(0, 120); got != 1 {
		t.Errorf("Ratio(0, 120) = %v, want 1", got)
	}
}

func TestCheckRatio(t *testing.T) {
	for _, r := range []float64{0.5, 1, 1.33, 2} {
		if err := CheckRatio(r); err != nil {
			t.Errorf("CheckRatio(%v) = %v, want nil", r, err)
		}
	}
	for _, r := range []float64{0.49, 2.01, 0} {
		if err := CheckRatio(r); !errors.Is(err, ErrRatioOutOfRange) {
			t.Errorf("CheckRatio(%v) = %v, want ErrRatioOutOfRange", r, err)
		}
	}
}

func TestRubberbandArgs(t *testing.T) {
	got := stretchArgs(1.5)
	want := []string{"--tempo", "1.500000", "--fine", "--formant", "-q"}
	if !slices.Equal(got, want) {
		t.Errorf("stretchArgs(1.5) = %v, want %v", got, want)
	}
	if got := pitchArgs(-2); got[0] != "--pitch" || got[1] != "-2.0000" {
		t.Errorf("pitchArgs(-2) = %v", got)
	}
}

func TestRubberbandRejectsExtremeRatio(t *testing.T) {
	r := Rubberband{Binary: "/nonexistent/rubberband"}
	_, err := r.Stretch(context.Background(), tone(100), 3)
	if !errors.Is(err, ErrRatioOutOfRange) {
		t.Errorf("err = %v, want ErrRatioOutOfRange", err)
	}
}

func TestRubberbandMissingBinary(t *testing.T) {
	r := Rubberband{Binary: filepath.Join(t.TempDir(), "missing"), TmpDir: t.TempDir()}
	if _, err := r.Stretch(context.Background(), tone(100), 1.2); err == nil {
		t.Error("expected error from missing binary")
	}
}

// --- Conformer ---

func TestConformerSameTempoSkipsStretch(t *testing.T) {
	codec := &fakeCodec{buf: tone(1000)}
	st := &fakeStretcher{}
	c := &Conformer{Codec: codec, Stretcher: st}

	b, err := c.Load(context.Background(), "a.wav", 90, 90)
	if err != nil {
		t.Fatal(err)
	}
	if b.Frames() != 1000 {
		t.Errorf("frames = %d, want 1000", b.Frames())
	}
	if st.calls != 0 {
		t.Errorf("stretch calls = %d, want 0", st.calls)
	}
}

func TestConformerStretchesToTarget(t *testing.T) {
	codec := &fakeCodec{buf: tone(1200)}
	st := &fakeStretcher{}
	c := &Conformer{Codec: codec, Stretcher: st}

	b, err := c.Load(context.Background(), "a.wav", 90, 120)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.ratios) != 1 || st.ratios[0] != 120.0/90.0 {
		t.Errorf("ratios = %v", st.ratios)
	}
	if b.Frames() != 900 {
		t.Errorf("frames = %d, want 900", b.Frames())
	}
}

func TestConformerOutOfRangeNeverDecodes(t *testing.T) {
	codec := &fakeCodec{buf: tone(10)}
	st := &fakeStretcher{}
	c := &Conformer{Codec: codec, Stretcher: st}

	_, err := c.Load(context.Background(), "a.wav", 60, 130)
	if !errors.Is(err, ErrRatioOutOfRange) {
		t.Fatalf("err = %v, want ErrRatioOutOfRange", err)
	}
	if codec.decodes != 0 || st.calls != 0 {
		t.Errorf("decodes = %d, stretches = %d, want 0, 0", codec.decodes, st.calls)
	}
}

func TestConformerStretchFailure(t *testing.T) {
	boom := errors.New("exit status 1")
	c := &Conformer{Codec: &fakeCodec{buf: tone(10)}, Stretcher: &fakeStretcher{err: boom}}
	if _, err := c.Load(context.Background(), "a.wav", 90, 100); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestConformerUsesCache(t *testing.T) {
	cache := openMem(t)
	codec := &fakeCodec{buf: tone(1000)}
	st := &fakeStretcher{}
	c := &Conformer{Codec: codec, Stretcher: st, Cache: cache}

	first, err := c.Load(context.Background(), "a.wav", 100, 80)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Load(context.Background(), "a.wav", 100, 80)
	if err != nil {
		t.Fatal(err)
	}
	if st.calls != 1 || codec.decodes != 1 {
		t.Errorf("stretches = %d, decodes = %d, want 1, 1", st.calls, codec.decodes)
	}
	if !slices.Equal(first.Samples, second.Samples) {
		t.Error("cached audio differs from first result")
	}

	if _, err := c.Load(context.Background(), "a.wav", 100, 90); err != nil {
		t.Fatal(err)
	}
	if st.calls != 2 {
		t.Errorf("different tempo should miss the cache, stretches = %d", st.calls)
	}
}

// --- Cache ---

func openMem(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(CacheOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheMiss(t *testing.T) {
	c := openMem(t)
	if _, err := c.Get("nope.wav", 90); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCachePutGet(t *testing.T) {
	c := openMem(t)
	in := tone(500)
	if err := c.Put("x.wav", 90, in); err != nil {
		t.Fatal(err)
	}
	out, err := c.Get("x.wav", 90)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(in.Samples, out.Samples) {
		t.Error("samples changed through cache")
	}
}

func TestCacheRequiresDir(t *testing.T) {
	if _, err := OpenCache(CacheOptions{}); err == nil {
		t.Error("expected error without Dir")
	}
}

func TestCachePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCache(CacheOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put("y.wav", 110, tone(64)); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}

	c, err = OpenCache(CacheOptions{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	out, err := c.Get("y.wav", 110)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if out.Frames() != 64 {
		t.Errorf("frames = %d, want 64", out.Frames())
	}
}
