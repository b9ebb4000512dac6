package stream

import (
	"context"
	"testing"
	"time"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// pcm returns one pipeline-sized frame whose first sample is seq.
func pcm(seq int) []int16 {
	f := make([]int16, audio.FrameSamples)
	f[0] = int16(seq)
	return f
}

// receive reads n frames from l or fails after a second without one.
func receive(t *testing.T, l *Listener, n int) []int {
	t.Helper()
	var seqs []int
	for len(seqs) < n {
		select {
		case f := <-l.C:
			seqs = append(seqs, int(f[0]))
		case <-time.After(time.Second):
			t.Fatalf("%s listener: got %d of %d frames", l.Kind, len(seqs), n)
		}
	}
	return seqs
}

func startBroadcast(t *testing.T, b *Broadcaster, buffered int) chan<- []int16 {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	source := make(chan []int16, buffered)
	go b.Run(ctx, source)
	return source
}

// --- Listeners ---

func TestSubscribeByKind(t *testing.T) {
	b := NewBroadcaster(0)
	mp3a := b.Subscribe(KindMP3)
	mp3b := b.Subscribe(KindMP3)
	rtc := b.Subscribe(KindWebRTC)

	if got := b.ListenerCount(KindMP3); got != 2 {
		t.Errorf("mp3 listeners = %d, want 2", got)
	}
	if got := b.ListenerCount(""); got != 3 {
		t.Errorf("all listeners = %d, want 3", got)
	}
	if cap(rtc.C) != DefaultListenerBuffer {
		t.Errorf("buffer = %d, want %d", cap(rtc.C), DefaultListenerBuffer)
	}
	if rtc.Since.IsZero() {
		t.Error("Since not set")
	}

	b.Unsubscribe(mp3a)
	b.Unsubscribe(mp3a)
	st := b.Stats()
	if st.Listeners[KindMP3] != 1 || st.Listeners[KindWebRTC] != 1 {
		t.Errorf("Stats listeners = %v, want one of each", st.Listeners)
	}
	select {
	case <-mp3a.done:
	default:
		t.Error("done not closed after Unsubscribe")
	}

	b.Unsubscribe(mp3b)
	b.Unsubscribe(rtc)
	if got := b.ListenerCount(""); got != 0 {
		t.Errorf("listeners after unsubscribe = %d", got)
	}
}

// --- Fan-out ---

func TestRunDeliversFramesInOrderToEveryKind(t *testing.T) {
	b := NewBroadcaster(0)
	listeners := []*Listener{b.Subscribe(KindMP3), b.Subscribe(KindWebRTC), b.Subscribe(KindMP3)}
	source := startBroadcast(t, b, 8)

	for seq := 1; seq <= 5; seq++ {
		source <- pcm(seq)
	}
	for _, l := range listeners {
		got := receive(t, l, 5)
		for i, seq := range got {
			if seq != i+1 {
				t.Fatalf("%s listener frame %d = %d, want %d", l.Kind, i, seq, i+1)
			}
		}
	}
	if st := b.Stats(); st.Frames != 5 || st.Dropped != 0 {
		t.Errorf("Stats = %+v, want 5 frames and none dropped", st)
	}
}

func TestSlowListenerLosesFramesOthersDoNot(t *testing.T) {
	const sent = 12
	b := NewBroadcaster(4)
	slow := b.Subscribe(KindWebRTC)
	fast := b.Subscribe(KindMP3)

	got := make(chan []int, 1)
	go func() {
		var seqs []int
		for len(seqs) < sent {
			f := <-fast.C
			seqs = append(seqs, int(f[0]))
		}
		got <- seqs
	}()

	source := startBroadcast(t, b, 0)
	for seq := 1; seq <= sent; seq++ {
		source <- pcm(seq)
		// let the reader keep up so only the slow listener overflows
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case seqs := <-got:
		if len(seqs) != sent || seqs[sent-1] != sent {
			t.Errorf("fast listener got %v", seqs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast listener stalled")
	}

	// The slow listener kept the oldest frames that fit its buffer.
	if seqs := receive(t, slow, 4); seqs[0] != 1 || seqs[3] != 4 {
		t.Errorf("slow listener kept %v, want [1 2 3 4]", seqs)
	}
	if slow.Dropped() != sent-4 || fast.Dropped() != 0 {
		t.Errorf("dropped slow=%d fast=%d, want %d and 0", slow.Dropped(), fast.Dropped(), sent-4)
	}
	if st := b.Stats(); st.Dropped != sent-4 || st.Frames != sent {
		t.Errorf("Stats = %+v", st)
	}
}

// --- Shutdown ---

func TestRunReturns(t *testing.T) {
	tests := []struct {
		name string
		stop func(cancel context.CancelFunc, source chan []int16)
	}{
		{"context cancelled", func(cancel context.CancelFunc, _ chan []int16) { cancel() }},
		{"pipeline closed", func(_ context.CancelFunc, source chan []int16) { close(source) }},
	}
	for _, tt := range tests {
		b := NewBroadcaster(0)
		ctx, cancel := context.WithCancel(context.Background())
		source := make(chan []int16)
		done := make(chan struct{})
		go func() {
			b.Run(ctx, source)
			close(done)
		}()

		tt.stop(cancel, source)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("%s: Run did not return", tt.name)
		}
		cancel()
	}
}
