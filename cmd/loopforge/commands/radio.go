package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/autodj"
	"github.com/satindergrewal/loopforge/internal/stream"
)

// radio holds the preview components the HTTP API reports on and controls.
type radio struct {
	sched       *autodj.Scheduler
	pipeline    *audio.Pipeline
	broadcaster *stream.Broadcaster
	mp3         *stream.HTTPHandler
	webrtc      *stream.WebRTCHandler
	keys        func() []string
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (rd *radio) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/stream", rd.mp3)
	mux.Handle("/offer", rd.webrtc)
	mux.HandleFunc("/api/status", rd.handleStatus)
	mux.HandleFunc("/api/keys", rd.handleKeys)
	mux.HandleFunc("/api/key", rd.handleKey)
	mux.HandleFunc("/api/skip", rd.handleSkip)
	mux.HandleFunc("/api/autodj", rd.handleAutoDJ)
	mux.HandleFunc("/api/config", rd.handleConfig)
	mux.HandleFunc("/api/save", rd.handleSave)
	return mux
}

func (rd *radio) handleStatus(w http.ResponseWriter, r *http.Request) {
	dj := rd.sched.Status()
	track, pos, dur := rd.pipeline.Status()
	bc := rd.broadcaster.Stats()
	name := track.Name
	if name == "" {
		name = autodj.TrackName(track.Key, track.ID)
	}
	writeJSON(w, map[string]any{
		"key":              dj.CurrentKey,
		"key_label":        dj.KeyLabel,
		"auto_dj":          dj.AutoDJ,
		"dwell_remaining":  dj.DwellRemaining,
		"queue_size":       dj.QueueSize,
		"generated":        dj.Generated,
		"duplicates":       dj.Duplicates,
		"track_id":         track.ID,
		"track_name":       name,
		"track_key":        track.Key,
		"track_tempo":      track.Tempo,
		"position":         pos.Seconds(),
		"duration":         dur.Seconds(),
		"http_listeners":   bc.Listeners[stream.KindMP3],
		"webrtc_listeners": bc.Listeners[stream.KindWebRTC],
		"webrtc_peers":     rd.webrtc.Peers(),
		"frames_sent":      bc.Frames,
		"dropped_frames":   bc.Dropped,
		"crossfade":        rd.pipeline.CrossfadeDuration().Seconds(),
	})
}

func (rd *radio) handleKeys(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Key   string `json:"key"`
		Label string `json:"label"`
	}
	keys := rd.keys()
	out := make([]entry, len(keys))
	for i, k := range keys {
		out[i] = entry{Key: k, Label: autodj.KeyLabel(k)}
	}
	writeJSON(w, out)
}

func (rd *radio) handleKey(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	if err := rd.sched.SetKey(req.Key); err != nil {
		if errors.Is(err, autodj.ErrKeyUnavailable) {
			http.Error(w, "key not in library", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "key": req.Key})
}

func (rd *radio) handleSkip(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	rd.sched.Skip()
	writeJSON(w, map[string]any{"ok": true})
}

func (rd *radio) handleAutoDJ(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	rd.sched.SetAutoDJ(req.Enabled)
	writeJSON(w, map[string]any{"ok": true, "auto_dj": req.Enabled})
}

func (rd *radio) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Crossfade *float64 `json:"crossfade"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Crossfade != nil {
		v := *req.Crossfade
		if v < 1 || v > 30 {
			http.Error(w, "crossfade must be 1-30", http.StatusBadRequest)
			return
		}
		rd.pipeline.SetCrossfade(time.Duration(v * float64(time.Second)))
		slog.Info("crossfade changed", "seconds", v)
	}
	writeJSON(w, map[string]any{
		"ok":        true,
		"crossfade": rd.pipeline.CrossfadeDuration().Seconds(),
	})
}

func (rd *radio) handleSave(w http.ResponseWriter, r *http.Request) {
	track, _, _ := rd.pipeline.Status()
	if track.Path == "" {
		http.Error(w, "no track playing", http.StatusNotFound)
		return
	}
	name := track.Name
	if name == "" {
		name = autodj.TrackName(track.Key, track.ID)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, name, filepath.Ext(track.Path)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, track.Path)
}
