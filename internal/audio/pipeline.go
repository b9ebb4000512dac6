package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// deck is a decoded song and the next frame to play from it.
type deck struct {
	info  TrackInfo
	buf   Buffer
	pos   int // in 20ms frames
	total int
}

func newDeck(info TrackInfo, buf Buffer) *deck {
	return &deck{
		info:  info,
		buf:   buf,
		total: (buf.Frames() + FrameSize - 1) / FrameSize,
	}
}

// frame returns the i-th 20ms frame, zero-padded past the end of the song.
func (d *deck) frame(i int) []float32 {
	out := make([]float32, FrameSamples)
	start := i * FrameSamples
	if start < len(d.buf.Samples) {
		copy(out, d.buf.Samples[start:min(start+FrameSamples, len(d.buf.Samples))])
	}
	return out
}

// Pipeline decodes rendered songs, crossfades between them, and outputs PCM
// frames at real-time rate for preview listeners.
type Pipeline struct {
	codec   Codec
	trackCh chan TrackInfo
	frameCh chan []int16
	skipCh  chan struct{}
	retire  func(TrackInfo)

	mu           sync.RWMutex
	crossfadeDur time.Duration
	current      TrackInfo
	position     time.Duration
	duration     time.Duration
}

// NewPipeline creates a preview pipeline that decodes queued songs with codec.
func NewPipeline(codec Codec, crossfade time.Duration) *Pipeline {
	return &Pipeline{
		codec:        codec,
		trackCh:      make(chan TrackInfo, 8),
		frameCh:      make(chan []int16, 100),
		skipCh:       make(chan struct{}, 1),
		crossfadeDur: crossfade,
	}
}

// OnRetire registers fn to run once per song the pipeline is done with:
// played out, crossfaded away, skipped, interrupted or undecodable. Call it
// before Run.
func (p *Pipeline) OnRetire(fn func(TrackInfo)) {
	p.retire = fn
}

func (p *Pipeline) done(infos ...TrackInfo) {
	if p.retire == nil {
		return
	}
	for _, t := range infos {
		p.retire(t)
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Enqueue adds a song to the playback queue. It blocks while the queue is full.
func (p *Pipeline) Enqueue(t TrackInfo) {
	p.trackCh <- t
}

// SetCrossfade changes the crossfade length used for the next transition.
func (p *Pipeline) SetCrossfade(d time.Duration) {
	p.mu.Lock()
	p.crossfadeDur = d
	p.mu.Unlock()
}

// CrossfadeDuration returns the current crossfade length.
func (p *Pipeline) CrossfadeDuration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.crossfadeDur
}

// QueueSize returns the number of songs waiting to be decoded.
func (p *Pipeline) QueueSize() int {
	return len(p.trackCh)
}

// Skip interrupts the current song.
func (p *Pipeline) Skip() {
	select {
	case p.skipCh <- struct{}{}:
	default:
	}
}

// Status returns current playback info.
func (p *Pipeline) Status() (track TrackInfo, position, duration time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.position, p.duration
}

// Run starts the pipeline. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	decoded := make(chan *deck, 4)
	go p.decode(ctx, decoded)

	var d *deck
	for {
		if d == nil {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-decoded:
				if !ok {
					return
				}
				d = next
			}
		}
		d = p.play(ctx, ticker, decoded, d)
	}
}

// decode turns queued file paths into decks until ctx ends.
func (p *Pipeline) decode(ctx context.Context, out chan<- *deck) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.trackCh:
			buf, err := p.codec.Decode(t.Path)
			if err != nil {
				slog.Warn("preview decode failed", "path", t.Path, "err", err)
				p.done(t)
				continue
			}
			select {
			case out <- newDeck(t, buf):
			case <-ctx.Done():
				p.done(t)
				return
			}
		}
	}
}

// crossfadeFrames is the crossfade length in 20ms frames, at most half of
// a song of total frames.
func (p *Pipeline) crossfadeFrames(total int) int {
	n := FramesFor(p.CrossfadeDuration().Seconds()) / FrameSize
	return min(n, total/2)
}

// play runs d to its end, or into a crossfade with the next decoded song,
// and returns the deck that should keep playing (nil if none).
func (p *Pipeline) play(ctx context.Context, ticker *time.Ticker, decoded <-chan *deck, d *deck) *deck {
	cf := p.crossfadeFrames(d.total)
	cfStart := d.total - cf

	if d.pos == 0 {
		p.setCurrent(d.info, d.total)
		slog.Info("now playing", "song", d.info.Name, "id", d.info.ID, "key", d.info.Key, "tempo", d.info.Tempo, "frames", d.total)
	}

	for ; d.pos < cfStart; d.pos++ {
		if !p.send(ctx, ticker, Buffer{Samples: d.frame(d.pos)}.Int16()) {
			p.done(d.info)
			return nil
		}
		p.setPosition(d.pos)
	}

	var next *deck
	select {
	case next = <-decoded:
	default:
	}

	if next == nil {
		for ; d.pos < d.total; d.pos++ {
			if !p.send(ctx, ticker, Buffer{Samples: d.frame(d.pos)}.Int16()) {
				break
			}
			p.setPosition(d.pos)
		}
		p.done(d.info)
		return nil
	}

	for i := 0; i < cf && next.pos < next.total; i++ {
		frame := CrossfadeFrames(d.frame(d.pos), next.frame(next.pos), float64(i)/float64(cf))
		if !p.send(ctx, ticker, frame) {
			p.done(d.info, next.info)
			return nil
		}
		p.setPosition(d.pos)
		d.pos++
		next.pos++
	}

	p.done(d.info)
	p.setCurrent(next.info, next.total)
	p.setPosition(next.pos)
	slog.Info("crossfaded", "song", next.info.Name, "id", next.info.ID, "key", next.info.Key)
	return next
}

// send waits for the ticker then emits a frame. Returns false on skip or cancel.
func (p *Pipeline) send(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.skipCh:
		slog.Info("song skipped")
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pipeline) setCurrent(info TrackInfo, frames int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = info
	p.position = 0
	p.duration = time.Duration(frames) * FrameDuration
}

func (p *Pipeline) setPosition(frame int) {
	p.mu.Lock()
	p.position = time.Duration(frame) * FrameDuration
	p.mu.Unlock()
}
