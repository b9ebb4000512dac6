package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// NowPlayingLabel is the data channel a client opens to receive song changes.
const NowPlayingLabel = "now-playing"

// WebRTCConfig controls the Opus track offered to peers.
type WebRTCConfig struct {
	Bitrate    int      // Opus bits per second, default 128000
	ICEServers []string // STUN/TURN URLs; empty means host candidates only
	StreamID   string

	// NowPlaying reports the song on air. When set, peers that open a
	// NowPlayingLabel data channel get a message on every song change.
	NowPlaying func() audio.TrackInfo
}

// PeerInfo describes one connected WebRTC listener.
type PeerInfo struct {
	ID     string    `json:"id"`
	Remote string    `json:"remote"`
	Since  time.Time `json:"since"`
	Frames int64     `json:"frames"`
}

type peer struct {
	id     string
	remote string
	since  time.Time
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	frames atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	meta   *webrtc.DataChannel
	lastID string
}

func (p *peer) close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *peer) info() PeerInfo {
	return PeerInfo{ID: p.id, Remote: p.remote, Since: p.since, Frames: p.frames.Load()}
}

// WebRTCHandler negotiates WebRTC sessions and streams the preview as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	cfg         WebRTCConfig

	mu    sync.Mutex
	peers map[string]*peer
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster, cfg WebRTCConfig) *WebRTCHandler {
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = 128000
	}
	if cfg.StreamID == "" {
		cfg.StreamID = "loopforge-preview"
	}
	return &WebRTCHandler{broadcaster: b, cfg: cfg, peers: make(map[string]*peer)}
}

// PeerCount returns the number of connected peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Peers lists connected peers, oldest first.
func (h *WebRTCHandler) Peers() []PeerInfo {
	h.mu.Lock()
	out := make([]PeerInfo, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p.info())
	}
	h.mu.Unlock()
	slices.SortFunc(out, func(a, b PeerInfo) int { return a.Since.Compare(b.Since) })
	return out
}

func (h *WebRTCHandler) configuration() webrtc.Configuration {
	var c webrtc.Configuration
	if len(h.cfg.ICEServers) > 0 {
		c.ICEServers = []webrtc.ICEServer{{URLs: h.cfg.ICEServers}}
	}
	return c
}

// signalError carries the HTTP status for a failed negotiation step.
type signalError struct {
	status int
	step   string
	err    error
}

func (e *signalError) Error() string { return e.step + ": " + e.err.Error() }
func (e *signalError) Unwrap() error { return e.err }

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	p, err := h.negotiate(offer, r.RemoteAddr)
	if err != nil {
		var se *signalError
		status := http.StatusInternalServerError
		if errors.As(err, &se) {
			status = se.status
		}
		slog.Warn("webrtc negotiation failed", "remote", r.RemoteAddr, "err", err)
		http.Error(w, err.Error(), status)
		return
	}

	h.addPeer(p)
	select {
	case <-p.stop:
		// disconnected while negotiating
		if h.removePeer(p.id) {
			p.pc.Close()
		}
		http.Error(w, "peer disconnected", http.StatusGone)
		return
	default:
	}
	slog.Info("webrtc peer connected", "peer", p.id, "remote", p.remote, "total", h.PeerCount())
	go h.stream(p)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p.pc.LocalDescription())
}

// negotiate answers offer with a send-only Opus track and waits for ICE
// gathering so the answer carries every candidate.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription, remote string) (*peer, error) {
	pc, err := webrtc.NewPeerConnection(h.configuration())
	if err != nil {
		return nil, &signalError{http.StatusInternalServerError, "create peer connection", err}
	}
	p := &peer{
		id:     uuid.NewString(),
		remote: remote,
		since:  time.Now(),
		pc:     pc,
		stop:   make(chan struct{}),
	}

	fail := func(status int, step string, err error) (*peer, error) {
		pc.Close()
		return nil, &signalError{status, step, err}
	}

	p.track, err = webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: audio.Channels},
		"audio",
		h.cfg.StreamID,
	)
	if err != nil {
		return fail(http.StatusInternalServerError, "create audio track", err)
	}
	if _, err := pc.AddTrack(p.track); err != nil {
		return fail(http.StatusInternalServerError, "add track", err)
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != NowPlayingLabel {
			return
		}
		dc.OnOpen(func() {
			p.mu.Lock()
			p.meta, p.lastID = dc, ""
			p.mu.Unlock()
		})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			p.close()
			if h.removePeer(p.id) {
				pc.Close()
				slog.Info("webrtc peer disconnected", "peer", p.id, "state", s.String(), "frames", p.frames.Load(), "remaining", h.PeerCount())
			}
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(http.StatusBadRequest, "set remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(http.StatusInternalServerError, "create answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(http.StatusInternalServerError, "set local description", err)
	}
	<-gathered
	return p, nil
}

// stream encodes broadcast frames to Opus for p until p disconnects.
func (h *WebRTCHandler) stream(p *peer) {
	listener := h.broadcaster.Subscribe(KindWebRTC)
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		slog.Error("webrtc: opus encoder", "err", err)
		return
	}
	if err := enc.SetBitrate(h.cfg.Bitrate); err != nil {
		slog.Warn("webrtc: opus bitrate", "bitrate", h.cfg.Bitrate, "err", err)
	}

	buf := make([]byte, 4000)
	for {
		select {
		case <-p.stop:
			return
		case <-listener.done:
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, buf)
			if err != nil {
				slog.Debug("webrtc: opus encode", "peer", p.id, "err", err)
				continue
			}
			if err := p.track.WriteSample(media.Sample{Data: buf[:n], Duration: audio.FrameDuration}); err != nil {
				return
			}
			p.frames.Add(1)
			h.announce(p)
		}
	}
}

// announce sends the song on air to p's now-playing channel when it changed
// since the last message.
func (h *WebRTCHandler) announce(p *peer) {
	if h.cfg.NowPlaying == nil {
		return
	}
	t := h.cfg.NowPlaying()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.meta == nil || t.ID == "" || t.ID == p.lastID {
		return
	}
	if err := p.meta.SendText(string(nowPlayingMessage(t))); err != nil {
		slog.Debug("webrtc: now playing", "peer", p.id, "err", err)
		return
	}
	p.lastID = t.ID
}

func nowPlayingMessage(t audio.TrackInfo) []byte {
	msg, _ := json.Marshal(struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Name  string `json:"name,omitempty"`
		Key   string `json:"key"`
		Tempo int    `json:"tempo"`
	}{"now_playing", t.ID, t.Name, t.Key, t.Tempo})
	return msg
}

func (h *WebRTCHandler) addPeer(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()
}

// removePeer reports whether id was still registered.
func (h *WebRTCHandler) removePeer(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[id]; !ok {
		return false
	}
	delete(h.peers, id)
	return true
}
