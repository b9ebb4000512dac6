package commands

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/satindergrewal/loopforge/internal/arrange"
	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/batch"
	"github.com/satindergrewal/loopforge/internal/catalog"
	"github.com/satindergrewal/loopforge/internal/config"
	"github.com/satindergrewal/loopforge/internal/export"
	"github.com/satindergrewal/loopforge/internal/ledger"
	"github.com/satindergrewal/loopforge/internal/master"
	"github.com/satindergrewal/loopforge/internal/stretch"
)

// engine is the assembled generation stack shared by generate and serve.
type engine struct {
	cfg      config.Config
	seed     uint64
	rng      *rand.Rand
	codec    audio.Codec
	catalog  *catalog.Catalog
	cache    *stretch.Cache
	arranger *arrange.Arranger
	master   *master.Master
}

func newEngine(cfg config.Config) (*engine, error) {
	cat, err := catalog.Scan(cfg.SamplesDir)
	if err != nil {
		return nil, fmt.Errorf("scan samples: %w", err)
	}
	if len(cat.Collections()) == 0 {
		return nil, fmt.Errorf("%s: %w", cfg.SamplesDir, catalog.ErrNoCollections)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	e := &engine{
		cfg:     cfg,
		seed:    seed,
		rng:     rng,
		codec:   audio.WAVCodec{Fallback: audio.FFmpegCodec{Binary: cfg.FFmpegPath}},
		catalog: cat,
	}

	if cfg.StretchCacheDir != "" {
		e.cache, err = stretch.OpenCache(stretch.CacheOptions{Dir: cfg.StretchCacheDir, Logger: slog.Default()})
		if err != nil {
			return nil, err
		}
	}

	conformer := &stretch.Conformer{
		Codec:     e.codec,
		Stretcher: stretch.Rubberband{Binary: cfg.RubberbandPath, Codec: e.codec},
		Cache:     e.cache,
	}
	e.arranger = &arrange.Arranger{
		Plan: arrange.DefaultPlan(),
		Compositor: &arrange.Compositor{
			Selector:        &arrange.Selector{Loader: conformer, Kits: cat, Rand: rng},
			BoostQuietDrums: cfg.BoostQuietDrums,
		},
		Resolver:  cat,
		Rand:      rng,
		Bars:      cfg.Bars,
		ShortBars: cfg.ShortBars,
		Structure: arrange.StructureOptions{
			MinSeconds:  cfg.MinSeconds,
			MaxSeconds:  cfg.MaxSeconds,
			LoopSeconds: cfg.LoopSeconds,
		},
	}
	e.master = &master.Master{
		Codec:   e.codec,
		Limiter: master.FFmpegLimiter{Binary: cfg.FFmpegPath},
		Opts: master.Options{
			FadeIn:     cfg.FadeIn,
			FadeOut:    cfg.FadeOut,
			HeadroomDB: cfg.HeadroomDB,
			Threshold:  cfg.LimiterThreshold,
		},
	}

	slog.Debug("engine ready",
		"samples", cfg.SamplesDir,
		"collections", len(cat.Collections()),
		"tempos", cat.Tempos(),
		"seed", seed,
		"stretch_cache", cfg.StretchCacheDir != "",
	)
	return e, nil
}

// Close releases the stretch cache.
func (e *engine) Close() {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			slog.Warn("close stretch cache", "err", err)
		}
	}
}

// driver builds a batch driver writing into dir with the given file prefix.
func (e *engine) driver(dir, prefix string, policy batch.Policy) *batch.Driver {
	return &batch.Driver{
		Catalog:       e.catalog,
		Arranger:      e.arranger,
		Ledger:        ledger.New(),
		Master:        e.master,
		Rand:          e.rng,
		Policy:        policy,
		AttemptFactor: e.cfg.AttemptFactor,
		OutputDir:     dir,
		Prefix:        prefix,
		Ext:           "." + e.cfg.Format,
	}
}

// newSink returns the configured export sink, or nil for backend "none".
func newSink(cfg config.Config) (*export.Sink, error) {
	var store export.FileStore
	switch cfg.ExportBackend {
	case "", "none":
		return nil, nil
	case "local":
		local, err := export.NewLocal(cfg.ExportDir)
		if err != nil {
			return nil, err
		}
		store = local
	case "s3":
		client := export.NewS3Client(export.S3Config{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		store = export.NewS3(client, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown export backend %q", cfg.ExportBackend)
	}
	return &export.Sink{Store: store, Overwrite: cfg.ExportOverwrite}, nil
}
