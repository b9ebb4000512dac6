package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/autodj"
	"github.com/satindergrewal/loopforge/internal/batch"
	"github.com/satindergrewal/loopforge/internal/stream"
)

var serveFlags struct {
	port       int
	previewDir string
	key        string
	ice        []string
	keep       bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Preview radio over HTTP MP3 and WebRTC",
	Long: `Continuously assemble songs and play them back with crossfades.

The auto-DJ stays on one key for a random dwell time, then moves to a
neighbouring key from the compatibility table that the library can play.

Endpoints:
  /stream        chunked MP3
  /offer         WebRTC SDP offer/answer (Opus)
  /api/status    current song, key, queue and listener counts
  /api/keys      keys available in the library
  /api/key       POST {"key": "am"}
  /api/skip      POST
  /api/autodj    POST {"enabled": false}
  /api/config    POST {"crossfade": 6}
  /api/save      download the current song

Examples:
  loopforge serve
  loopforge serve --port 9000 --key f#m`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.IntVarP(&serveFlags.port, "port", "p", 0, "listen port (default from config)")
	f.StringVar(&serveFlags.previewDir, "preview-dir", "", "where preview songs are rendered (default: temp dir)")
	f.StringVar(&serveFlags.key, "key", "", "starting key")
	f.StringSliceVar(&serveFlags.ice, "ice", nil, "STUN/TURN server URLs for WebRTC")
	f.BoolVar(&serveFlags.keep, "keep-previews", false, "keep preview songs on disk after they play")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.port != 0 {
		cfg.Port = serveFlags.port
	}
	if serveFlags.key != "" {
		cfg.StartingKey = serveFlags.key
	}

	dir := serveFlags.previewDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "loopforge-preview")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preview dir: %w", err)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline := audio.NewPipeline(eng.codec, cfg.CrossfadeDuration)
	if !serveFlags.keep {
		pipeline.OnRetire(removePreview)
	}
	go pipeline.Run(ctx)

	broadcaster := stream.NewBroadcaster(0)
	go broadcaster.Run(ctx, pipeline.Frames())

	// Previews are never exported; the ledger still keeps repeats off air.
	driver := eng.driver(dir, "preview", batch.Strict)
	sched := autodj.NewScheduler(driver, eng.catalog, pipeline, rand.New(rand.NewPCG(eng.seed, 1)), autodj.SchedulerConfig{
		StartingKey: cfg.StartingKey,
		BufferAhead: cfg.BufferAhead,
		DwellMin:    cfg.DwellMin,
		DwellMax:    cfg.DwellMax,
	})
	go sched.Run(ctx)

	rd := &radio{
		sched:       sched,
		pipeline:    pipeline,
		broadcaster: broadcaster,
		mp3: stream.NewHTTPHandler(broadcaster, stream.HTTPConfig{
			FFmpeg:  cfg.FFmpegPath,
			Bitrate: cfg.MP3Bitrate,
		}),
		webrtc: stream.NewWebRTCHandler(broadcaster, stream.WebRTCConfig{
			ICEServers: serveFlags.ice,
			NowPlaying: func() audio.TrackInfo {
				t, _, _ := pipeline.Status()
				return t
			},
		}),
		keys: eng.catalog.Keys,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: rd.routes()}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("preview radio live", "addr", addr, "keys", eng.catalog.Keys(), "preview_dir", dir)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// removePreview deletes a preview song the pipeline no longer needs.
func removePreview(t audio.TrackInfo) {
	if t.Path == "" {
		return
	}
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("remove preview", "path", t.Path, "err", err)
		return
	}
	slog.Debug("preview removed", "path", t.Path)
}
