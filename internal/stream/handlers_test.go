package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// --- HTTP MP3 ---

func TestMP3Args(t *testing.T) {
	args := mp3Args("256k")
	i := slices.Index(args, "-b:a")
	if i < 0 || args[i+1] != "256k" {
		t.Errorf("bitrate not set: %v", args)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
	for _, want := range []string{"48000", "s16le", "libmp3lame"} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q: %v", want, args)
		}
	}
}

func TestHTTPHandlerDefaults(t *testing.T) {
	h := NewHTTPHandler(NewBroadcaster(0), HTTPConfig{})
	if h.cfg.FFmpeg != "ffmpeg" || h.cfg.Bitrate != "192k" || h.cfg.Station == "" {
		t.Errorf("defaults = %+v", h.cfg)
	}
}

func TestHTTPHandlerMissingEncoder(t *testing.T) {
	b := NewBroadcaster(0)
	h := NewHTTPHandler(b, HTTPConfig{FFmpeg: "/nonexistent/ffmpeg"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if n := b.ListenerCount(""); n != 0 {
		t.Errorf("ListenerCount = %d, want 0", n)
	}
}

// --- WebRTC signalling ---

func TestWebRTCOptions(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(0), WebRTCConfig{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/offer", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Errorf("Allow-Methods = %q, want POST", got)
	}
}

func TestWebRTCRejectsGet(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(0), WebRTCConfig{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWebRTCRejectsBadOffer(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(0), WebRTCConfig{})
	for _, body := range []string{"not json", `{"type":"offer"}`} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offer", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", h.PeerCount())
	}
}

func TestWebRTCConfiguration(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(0), WebRTCConfig{ICEServers: []string{"stun:stun.example.org:3478"}})
	c := h.configuration()
	if len(c.ICEServers) != 1 || c.ICEServers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Errorf("ICEServers = %+v", c.ICEServers)
	}
	if h.cfg.Bitrate != 128000 {
		t.Errorf("Bitrate = %d, want 128000", h.cfg.Bitrate)
	}
}

func TestNowPlayingMessage(t *testing.T) {
	msg := nowPlayingMessage(audio.TrackInfo{ID: "3f9a", Name: "Dusty A minor", Key: "am", Tempo: 90, Path: "/tmp/p.wav"})
	var got map[string]any
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "now_playing" || got["id"] != "3f9a" || got["key"] != "am" || got["tempo"] != float64(90) {
		t.Errorf("message = %s", msg)
	}
	if _, ok := got["path"]; ok {
		t.Errorf("message leaks the file path: %s", msg)
	}
}

func TestPeerRegistry(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(0), WebRTCConfig{})
	now := time.Now()
	late := &peer{id: "late", remote: "10.0.0.2:5000", since: now}
	early := &peer{id: "early", remote: "10.0.0.1:5000", since: now.Add(-time.Minute)}
	early.frames.Add(3000)
	h.addPeer(late)
	h.addPeer(early)

	peers := h.Peers()
	if len(peers) != 2 || peers[0].ID != "early" || peers[1].ID != "late" {
		t.Fatalf("Peers = %+v, want early then late", peers)
	}
	if peers[0].Frames != 3000 {
		t.Errorf("early frames = %d, want 3000", peers[0].Frames)
	}
	if !h.removePeer("early") || h.removePeer("early") {
		t.Error("removePeer should succeed once")
	}
	if h.PeerCount() != 1 {
		t.Errorf("PeerCount = %d, want 1", h.PeerCount())
	}
}

func TestAnnounceWithoutChannel(t *testing.T) {
	calls := 0
	h := NewWebRTCHandler(NewBroadcaster(0), WebRTCConfig{NowPlaying: func() audio.TrackInfo {
		calls++
		return audio.TrackInfo{ID: "a"}
	}})
	p := &peer{id: "p", stop: make(chan struct{})}
	h.announce(p)
	if calls != 1 || p.lastID != "" {
		t.Errorf("calls = %d lastID = %q, want 1 and nothing sent", calls, p.lastID)
	}

	p.close()
	p.close()
	select {
	case <-p.stop:
	default:
		t.Error("stop not closed")
	}
}
