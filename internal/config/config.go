package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds all runtime configuration. Values come from built-in defaults,
// then an optional YAML file, then environment variables.
type Config struct {
	// Library and output
	SamplesDir string `yaml:"samples_dir"`
	OutputDir  string `yaml:"output_dir"`
	FilePrefix string `yaml:"file_prefix"`
	Format     string `yaml:"format"` // wav, mp3 or flac

	// Batch
	Songs           int    `yaml:"songs"`
	AttemptFactor   int    `yaml:"attempt_factor"` // attempts allowed per requested song
	Seed            uint64 `yaml:"seed"`           // 0 picks a random seed
	DuplicatePolicy string `yaml:"duplicate_policy"`

	// Arrangement
	MinSeconds      float64 `yaml:"min_seconds"`
	MaxSeconds      float64 `yaml:"max_seconds"`
	LoopSeconds     float64 `yaml:"loop_seconds"` // length of one loop occurrence
	Bars            int     `yaml:"bars"`         // bars per regular section
	ShortBars       int     `yaml:"short_bars"`   // bars per short section (intro)
	BoostQuietDrums bool    `yaml:"boost_quiet_drums"`

	// Mastering
	FadeIn           time.Duration `yaml:"fade_in"`
	FadeOut          time.Duration `yaml:"fade_out"`
	HeadroomDB       float64       `yaml:"headroom_db"`
	LimiterThreshold float64       `yaml:"limiter_threshold"`

	// External tools
	RubberbandPath  string `yaml:"rubberband_path"`
	FFmpegPath      string `yaml:"ffmpeg_path"`
	StretchCacheDir string `yaml:"stretch_cache_dir"` // empty disables the cache

	// Export
	ExportBackend   string `yaml:"export_backend"`   // none, local or s3
	ExportDir       string `yaml:"export_dir"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Prefix        string `yaml:"s3_prefix"`
	S3Region        string `yaml:"s3_region"`
	S3Endpoint      string `yaml:"s3_endpoint"`
	ExportOverwrite bool   `yaml:"export_overwrite"` // replace objects that already exist

	// Preview radio
	Port              int           `yaml:"port"`
	StartingKey       string        `yaml:"starting_key"`
	CrossfadeDuration time.Duration `yaml:"crossfade"`
	BufferAhead       int           `yaml:"buffer_ahead"` // songs to pre-render
	DwellMin          int           `yaml:"dwell_min"`    // min seconds per key
	DwellMax          int           `yaml:"dwell_max"`    // max seconds per key
	MP3Bitrate        string        `yaml:"mp3_bitrate"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SamplesDir: "samples",
		OutputDir:  "output_songs",
		FilePrefix: "lofi",
		Format:     "wav",

		Songs:           1000,
		AttemptFactor:   5,
		DuplicatePolicy: "strict",

		MinSeconds:  150,
		MaxSeconds:  240,
		LoopSeconds: 60,
		Bars:        8,
		ShortBars:   4,

		FadeIn:           3 * time.Second,
		FadeOut:          5 * time.Second,
		HeadroomDB:       0.1,
		LimiterThreshold: 0.8,

		RubberbandPath: "rubberband",
		FFmpegPath:     "ffmpeg",

		ExportBackend: "none",
		S3Region:      "us-east-1",

		Port:              8080,
		StartingKey:       "am",
		CrossfadeDuration: 8 * time.Second,
		BufferAhead:       3,
		DwellMin:          300,
		DwellMax:          900,
		MP3Bitrate:        "192k",
	}
}

// Load reads the file named by LOOPFORGE_CONFIG, if any, then the environment.
func Load() (Config, error) {
	return LoadFile(os.Getenv("LOOPFORGE_CONFIG"))
}

// LoadFile overlays the YAML file at path (skipped when empty) and then the
// environment onto the defaults, and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	cfg = fromEnv(cfg)
	return cfg, cfg.Validate()
}

// fromEnv overrides c with any environment variables that are set.
func fromEnv(c Config) Config {
	c.SamplesDir = envStr("LOOPFORGE_SAMPLES_DIR", c.SamplesDir)
	c.OutputDir = envStr("LOOPFORGE_OUTPUT_DIR", c.OutputDir)
	c.FilePrefix = envStr("LOOPFORGE_FILE_PREFIX", c.FilePrefix)
	c.Format = envStr("LOOPFORGE_FORMAT", c.Format)

	c.Songs = envInt("LOOPFORGE_SONGS", c.Songs)
	c.AttemptFactor = envInt("LOOPFORGE_ATTEMPT_FACTOR", c.AttemptFactor)
	c.Seed = envUint("LOOPFORGE_SEED", c.Seed)
	c.DuplicatePolicy = envStr("LOOPFORGE_DUPLICATES", c.DuplicatePolicy)

	c.MinSeconds = envFloat("LOOPFORGE_MIN_SECONDS", c.MinSeconds)
	c.MaxSeconds = envFloat("LOOPFORGE_MAX_SECONDS", c.MaxSeconds)
	c.LoopSeconds = envFloat("LOOPFORGE_LOOP_SECONDS", c.LoopSeconds)
	c.Bars = envInt("LOOPFORGE_BARS", c.Bars)
	c.ShortBars = envInt("LOOPFORGE_SHORT_BARS", c.ShortBars)
	c.BoostQuietDrums = envBool("LOOPFORGE_BOOST_QUIET_DRUMS", c.BoostQuietDrums)

	c.FadeIn = envDuration("LOOPFORGE_FADE_IN", c.FadeIn)
	c.FadeOut = envDuration("LOOPFORGE_FADE_OUT", c.FadeOut)
	c.HeadroomDB = envFloat("LOOPFORGE_HEADROOM_DB", c.HeadroomDB)
	c.LimiterThreshold = envFloat("LOOPFORGE_LIMITER_THRESHOLD", c.LimiterThreshold)

	c.RubberbandPath = envStr("LOOPFORGE_RUBBERBAND", c.RubberbandPath)
	c.FFmpegPath = envStr("LOOPFORGE_FFMPEG", c.FFmpegPath)
	c.StretchCacheDir = envStr("LOOPFORGE_STRETCH_CACHE", c.StretchCacheDir)

	c.ExportBackend = envStr("LOOPFORGE_EXPORT", c.ExportBackend)
	c.ExportDir = envStr("LOOPFORGE_EXPORT_DIR", c.ExportDir)
	c.S3Bucket = envStr("LOOPFORGE_S3_BUCKET", c.S3Bucket)
	c.S3Prefix = envStr("LOOPFORGE_S3_PREFIX", c.S3Prefix)
	c.S3Region = envStr("LOOPFORGE_S3_REGION", c.S3Region)
	c.S3Endpoint = envStr("LOOPFORGE_S3_ENDPOINT", c.S3Endpoint)
	c.ExportOverwrite = envBool("LOOPFORGE_EXPORT_OVERWRITE", c.ExportOverwrite)

	c.Port = envInt("RADIO_PORT", c.Port)
	c.StartingKey = envStr("RADIO_KEY", c.StartingKey)
	c.CrossfadeDuration = envDuration("RADIO_CROSSFADE_DURATION", c.CrossfadeDuration)
	c.BufferAhead = envInt("RADIO_BUFFER_AHEAD", c.BufferAhead)
	c.DwellMin = envInt("RADIO_DWELL_MIN", c.DwellMin)
	c.DwellMax = envInt("RADIO_DWELL_MAX", c.DwellMax)
	c.MP3Bitrate = envStr("RADIO_MP3_BITRATE", c.MP3Bitrate)
	return c
}

// Validate reports inverted ranges and unknown enumerations.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.SamplesDir != "", "samples_dir is empty")
	check(c.MinSeconds > 0, "min_seconds must be positive, got %v", c.MinSeconds)
	check(c.MaxSeconds >= c.MinSeconds, "max_seconds %v is below min_seconds %v", c.MaxSeconds, c.MinSeconds)
	check(c.LoopSeconds > 0, "loop_seconds must be positive, got %v", c.LoopSeconds)
	check(c.Bars > 0 && c.ShortBars > 0, "bars and short_bars must be positive")
	check(c.Songs >= 0, "songs must not be negative")
	check(c.AttemptFactor >= 1, "attempt_factor must be at least 1, got %d", c.AttemptFactor)
	check(c.LimiterThreshold > 0 && c.LimiterThreshold <= 1, "limiter_threshold %v outside (0, 1]", c.LimiterThreshold)
	check(c.DuplicatePolicy == "strict" || c.DuplicatePolicy == "lenient", "unknown duplicate_policy %q", c.DuplicatePolicy)
	check(c.Format == "wav" || c.Format == "mp3" || c.Format == "flac", "unknown format %q", c.Format)
	switch c.ExportBackend {
	case "none", "":
	case "local":
		check(c.ExportDir != "", "export_backend local needs export_dir")
	case "s3":
		check(c.S3Bucket != "", "export_backend s3 needs s3_bucket")
	default:
		check(false, "unknown export_backend %q", c.ExportBackend)
	}
	check(c.DwellMin <= c.DwellMax, "dwell_min %d is above dwell_max %d", c.DwellMin, c.DwellMax)
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("750ms") or bare integers as seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}
