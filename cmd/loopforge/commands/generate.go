package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/satindergrewal/loopforge/internal/batch"
	"github.com/satindergrewal/loopforge/internal/config"
)

var generateFlags struct {
	count      int
	out        string
	seed       uint64
	policy     string
	format     string
	exportTo   string
	boostDrums bool
	noProgress bool
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Assemble and master a batch of songs",
	Long: `Assemble songs from the sample library until --count distinct songs are
written or count x attempt_factor attempts are spent.

Each song picks a root collection, arranges intro / loop / bridge / outro
sections from key-compatible collections at the root tempo, rejects any
song whose sample pattern was already produced in this run, and masters
the result (fades, normalize, limiter) into <out>/<prefix>_NNN.<format>.

Examples:
  loopforge generate -n 50 -o out
  loopforge generate -n 10 --policy lenient --seed 42
  loopforge generate -n 100 --export s3`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.IntVarP(&generateFlags.count, "count", "n", 0, "number of songs (default from config)")
	f.StringVarP(&generateFlags.out, "out", "o", "", "output directory")
	f.Uint64Var(&generateFlags.seed, "seed", 0, "random seed (0 = random)")
	f.StringVar(&generateFlags.policy, "policy", "", "duplicate policy: strict or lenient")
	f.StringVar(&generateFlags.format, "format", "", "output format: wav, mp3 or flac")
	f.StringVar(&generateFlags.exportTo, "export", "", "export backend: none, local or s3")
	f.BoolVar(&generateFlags.boostDrums, "boost-drums", false, "raise drums that sit well below the other layers")
	f.BoolVar(&generateFlags.noProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(generateCmd)
}

// applyGenerateFlags overlays explicitly set flags onto cfg.
func applyGenerateFlags(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	f := cmd.Flags()
	if f.Changed("count") {
		cfg.Songs = generateFlags.count
	}
	if f.Changed("out") {
		cfg.OutputDir = generateFlags.out
	}
	if f.Changed("seed") {
		cfg.Seed = generateFlags.seed
	}
	if f.Changed("policy") {
		cfg.DuplicatePolicy = generateFlags.policy
	}
	if f.Changed("format") {
		cfg.Format = generateFlags.format
	}
	if f.Changed("export") {
		cfg.ExportBackend = generateFlags.exportTo
	}
	if f.Changed("boost-drums") {
		cfg.BoostQuietDrums = generateFlags.boostDrums
	}
	return cfg, cfg.Validate()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg, err = applyGenerateFlags(cmd, cfg); err != nil {
		return err
	}
	policy, err := batch.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	d := eng.driver(cfg.OutputDir, cfg.FilePrefix, policy)
	sink, err := newSink(cfg)
	if err != nil {
		return err
	}
	if sink != nil {
		d.Sink = sink
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("generating",
		"songs", cfg.Songs,
		"samples", cfg.SamplesDir,
		"out", cfg.OutputDir,
		"policy", policy,
		"seed", eng.seed,
	)

	rep, err := runWithProgress(ctx, d, cfg.Songs, !generateFlags.noProgress)
	fmt.Fprintf(cmd.OutOrStdout(), "%d songs written to %s (%d duplicates, %d failed, %d attempts)\n",
		rep.Accepted, cfg.OutputDir, rep.Rejected, rep.Failed, rep.Attempts)
	if err != nil {
		return err
	}
	if rep.Accepted < cfg.Songs {
		return fmt.Errorf("only %d of %d songs generated", rep.Accepted, cfg.Songs)
	}
	return nil
}

func runWithProgress(ctx context.Context, d *batch.Driver, target int, show bool) (batch.Report, error) {
	if !show {
		return d.Run(ctx, target, nil)
	}

	var rejected, failed atomic.Int64
	p := mpb.NewWithContext(ctx, mpb.WithWidth(48), mpb.WithOutput(os.Stderr))
	bar := p.AddBar(int64(target),
		mpb.PrependDecorators(
			decor.Name("songs "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf("  dup %d  fail %d", rejected.Load(), failed.Load())
			}),
			decor.Name("  "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)

	rep, err := d.Run(ctx, target, func(a batch.Attempt) {
		switch {
		case a.Err != nil:
			failed.Add(1)
		case a.Outcome.Accepted:
			bar.Increment()
		default:
			rejected.Add(1)
		}
	})
	bar.SetTotal(-1, true)
	p.Wait()
	return rep, err
}
