package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/loopforge/internal/audio"
)

// HTTPConfig controls the MP3 encoder behind the HTTP stream.
type HTTPConfig struct {
	FFmpeg  string // binary, default "ffmpeg"
	Bitrate string // e.g. "192k"
	Station string // ICY-Name header
}

// HTTPHandler serves a chunked MP3 audio stream via HTTP.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	cfg         HTTPConfig
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, cfg HTTPConfig) *HTTPHandler {
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "192k"
	}
	if cfg.Station == "" {
		cfg.Station = "loopforge preview"
	}
	return &HTTPHandler{broadcaster: b, cfg: cfg}
}

// mp3Args builds the ffmpeg arguments for PCM stdin -> MP3 stdout.
func mp3Args(bitrate string) []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.cfg.FFmpeg, mp3Args(h.cfg.Bitrate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		slog.Error("http stream: stdin pipe", "err", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		slog.Error("http stream: stdout pipe", "err", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}
	if err := cmd.Start(); err != nil {
		slog.Error("http stream: ffmpeg start", "binary", h.cfg.FFmpeg, "err", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", h.cfg.Station)

	listener := h.broadcaster.Subscribe(KindMP3)
	defer h.broadcaster.Unsubscribe(listener)

	slog.Info("http listener connected", "remote", r.RemoteAddr, "total", h.broadcaster.ListenerCount(KindMP3))
	defer func() {
		slog.Info("http listener disconnected", "remote", r.RemoteAddr, "dropped", listener.Dropped())
	}()

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.done:
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				slog.Warn("http stream: ffmpeg read", "err", err)
			}
			break
		}
	}

	cancel()
	_ = cmd.Wait()
}
