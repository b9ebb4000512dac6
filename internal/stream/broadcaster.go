// Package stream carries the preview pipeline's PCM to listeners over
// chunked HTTP MP3 and WebRTC Opus.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultListenerBuffer is about three seconds of 20ms frames.
const DefaultListenerBuffer = 150

// Listener kinds.
const (
	KindMP3    = "mp3"
	KindWebRTC = "webrtc"
)

// Broadcaster fans out the pipeline's 20ms PCM frames to every listener.
// A listener that falls behind loses frames; the broadcast never waits.
type Broadcaster struct {
	bufferFrames int
	frames       atomic.Int64
	dropped      atomic.Int64

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	Kind  string
	Since time.Time
	C     chan []int16 // buffered channel of 20ms PCM frames

	done    chan struct{}
	dropped atomic.Int64
}

// Dropped returns how many frames this listener missed for being slow.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// Stats is a snapshot of the broadcast.
type Stats struct {
	Listeners map[string]int `json:"listeners"` // by kind
	Frames    int64          `json:"frames"`    // frames read from the pipeline
	Dropped   int64          `json:"dropped"`   // frames lost to slow listeners
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to
// bufferFrames frames. Zero or less means DefaultListenerBuffer.
func NewBroadcaster(bufferFrames int) *Broadcaster {
	if bufferFrames <= 0 {
		bufferFrames = DefaultListenerBuffer
	}
	return &Broadcaster{
		bufferFrames: bufferFrames,
		listeners:    make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener of the given kind.
func (b *Broadcaster) Subscribe(kind string) *Listener {
	l := &Listener{
		Kind:  kind,
		Since: time.Now(),
		C:     make(chan []int16, b.bufferFrames),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes l and closes its done channel. Repeated calls are no-ops.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of listeners of kind, or of every kind
// when kind is empty.
func (b *Broadcaster) ListenerCount(kind string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if kind == "" {
		return len(b.listeners)
	}
	n := 0
	for l := range b.listeners {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

// Stats returns listener counts by kind and the frame counters.
func (b *Broadcaster) Stats() Stats {
	s := Stats{
		Listeners: make(map[string]int),
		Frames:    b.frames.Load(),
		Dropped:   b.dropped.Load(),
	}
	b.mu.RLock()
	for l := range b.listeners {
		s.Listeners[l.Kind]++
	}
	b.mu.RUnlock()
	return s
}

// Run copies frames from source to every listener until ctx ends or source
// closes.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.frames.Add(1)
			b.fanOut(frame)
		}
	}
}

func (b *Broadcaster) fanOut(frame []int16) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			l.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}
