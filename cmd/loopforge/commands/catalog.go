package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/loopforge/internal/catalog"
)

var catalogFlags struct {
	samples string
	tempo   int
	key     string
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the sample library and key compatibility",
	Long: `List every collection in the sample library with its tempo, key and
per-layer sample counts.

With --tempo and --key, show only the collections a song rooted there may
draw from, and the keys they were matched through.

Examples:
  loopforge catalog
  loopforge catalog --tempo 90 --key am
  loopforge catalog --samples ~/loops`,
	RunE: runCatalog,
}

func init() {
	f := catalogCmd.Flags()
	f.StringVar(&catalogFlags.samples, "samples", "", "sample library directory (default from config)")
	f.IntVar(&catalogFlags.tempo, "tempo", 0, "root tempo in BPM")
	f.StringVar(&catalogFlags.key, "key", "", "root key, e.g. c, f#m, bb")
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if catalogFlags.samples != "" {
		cfg.SamplesDir = catalogFlags.samples
	}
	if (catalogFlags.tempo == 0) != (catalogFlags.key == "") {
		return fmt.Errorf("--tempo and --key must be given together")
	}

	cat, err := catalog.Scan(cfg.SamplesDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	cols := cat.Collections()
	if catalogFlags.key != "" {
		key := catalog.NormalizeKey(catalogFlags.key)
		if !catalog.IsKnownKey(key) {
			fmt.Fprintf(out, "note: %q is not in the key table and matches only itself\n", key)
		}
		fmt.Fprintf(out, "compatible keys for %s: %s\n\n", key, strings.Join(catalog.CompatibleKeys(key), " "))
		cols = cat.ResolveCompatible(catalogFlags.tempo, key)
	}

	writeCollections(out, cat, cols)
	return nil
}

func writeCollections(out io.Writer, cat *catalog.Catalog, cols []*catalog.Collection) {
	if len(cols) == 0 {
		fmt.Fprintln(out, "no collections")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tTEMPO\tKEY\tLAYERS\tDRUMS")
	for _, c := range cols {
		drums := "-"
		if kit := cat.Shared("drums", c.Tempo); kit != nil {
			drums = fmt.Sprintf("%d", len(kit.Candidates("drums")))
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", c.Name, c.Tempo, c.Key, layerSummary(c), drums)
	}
	tw.Flush()
}

// layerSummary renders "bass:2 chords:5" in layer-name order.
func layerSummary(c *catalog.Collection) string {
	names := make([]string, 0, len(c.Layers))
	for name := range c.Layers {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s:%d", name, len(c.Layers[name]))
	}
	return strings.Join(parts, " ")
}
