package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/loopforge/internal/audio"
	"github.com/satindergrewal/loopforge/internal/ledger"
)

var dupesFlags struct {
	dir  string
	exts []string
}

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find songs in an output folder with identical audio",
	Long: `Decode every song in a folder and report files whose PCM is bit-identical
to an earlier file. This catches copies of the same render across runs,
which the in-run pattern ledger cannot see. Songs that merely sound alike
are not reported.

Examples:
  loopforge dupes
  loopforge dupes --dir out --ext wav --ext mp3`,
	RunE: runDupes,
}

func init() {
	f := dupesCmd.Flags()
	f.StringVar(&dupesFlags.dir, "dir", "", "folder to scan (default: output dir from config)")
	f.StringSliceVar(&dupesFlags.exts, "ext", []string{"wav"}, "file extensions to scan")
	rootCmd.AddCommand(dupesCmd)
}

func runDupes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := dupesFlags.dir
	if dir == "" {
		dir = cfg.OutputDir
	}

	codec := audio.WAVCodec{Fallback: audio.FFmpegCodec{Binary: cfg.FFmpegPath}}
	dups, scanned, err := ledger.FindDuplicates(cmd.Context(), codec, dir, dupesFlags.exts)
	if err != nil {
		return err
	}
	writeDupes(cmd.OutOrStdout(), dir, scanned, dups)
	return nil
}

func writeDupes(out io.Writer, dir string, scanned int, dups []ledger.Duplicate) {
	if len(dups) == 0 {
		fmt.Fprintf(out, "no duplicates among %d songs in %s\n", scanned, dir)
		return
	}
	for _, d := range dups {
		fmt.Fprintf(out, "%s duplicates %s\n", d.File, d.Original)
	}
	fmt.Fprintf(out, "%d duplicates among %d songs in %s\n", len(dups), scanned, dir)
}
