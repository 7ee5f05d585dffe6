package cmd

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marisma/internal/hydroperiod"
	"github.com/MeKo-Tech/marisma/internal/raster"
	"github.com/MeKo-Tech/marisma/internal/raster/gdal"
)

var hydroperiodCmd = &cobra.Command{
	Use:   "hydroperiod [masks-or-dirs...]",
	Short: "Accumulate flooded days per pixel over a hydrological cycle",
	Long: `Combine the flood masks of one hydrological cycle (1 September to 31 August)
into a raster of flooded days per pixel. Each mask stands for half the interval
to its neighbours; the first and last extend to the cycle bounds. Directory
arguments are searched recursively for *_flood.tif files.

Examples:
  marisma hydroperiod /data/out --cycle 2022
  marisma hydroperiod out/*/*_flood.tif --output hydroperiod.tif --format json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runHydroperiodCommand,
}

// hydroperiodReport is the JSON form of a hydroperiod run.
type hydroperiodReport struct {
	Cycle   string               `json:"cycle"`
	Output  string               `json:"output"`
	Weights []hydroperiod.Weight `json:"weights"`
	Skipped []string             `json:"skipped,omitempty"`
}

// expandMaskPaths replaces directory arguments by the flood masks below them.
func expandMaskPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), "_flood.tif") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// resolveCycle returns the cycle starting in year, or the cycle of the
// earliest observation when year is zero.
func resolveCycle(year int, obs []hydroperiod.Observation) hydroperiod.Cycle {
	if year != 0 || len(obs) == 0 {
		return hydroperiod.CycleStarting(year)
	}
	first := obs[0].Date
	for _, o := range obs[1:] {
		if o.Date.Before(first) {
			first = o.Date
		}
	}
	return hydroperiod.CycleOf(first)
}

func runHydroperiodCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	logger := slog.Default()

	paths, err := expandMaskPaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no flood masks found in %s", strings.Join(args, ", "))
	}

	g := gdal.New(cfg.Output.Compress, logger)
	obs, err := hydroperiod.Load(g, paths)
	if err != nil {
		return err
	}

	year, _ := cmd.Flags().GetInt("cycle")
	cycle := resolveCycle(year, obs)
	res, err := hydroperiod.Compute(cycle, obs)
	if err != nil {
		return err
	}
	for _, name := range res.Skipped {
		logger.Warn("flood mask outside the hydrological cycle", "scene", name, "cycle", cycle.String())
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = filepath.Join(cfg.Output.Dir, "hydroperiod_"+cycle.String()+".tif")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := g.WriteBand(out, res.Days, raster.Float32); err != nil {
		return fmt.Errorf("failed to write hydroperiod: %w", err)
	}
	logger.Info("hydroperiod written", "cycle", cycle.String(), "scenes", len(res.Weights), "path", out)

	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	return printHydroperiod(cmd, hydroperiodReport{
		Cycle:   cycle.String(),
		Output:  out,
		Weights: res.Weights,
		Skipped: res.Skipped,
	}, format)
}

func printHydroperiod(cmd *cobra.Command, r hydroperiodReport, format string) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(w, string(b))
		return nil
	}
	_, _ = fmt.Fprintf(w, "Hydrological cycle %s -> %s\n", r.Cycle, r.Output)
	for _, wt := range r.Weights {
		_, _ = fmt.Fprintf(w, "  %-40s %s %7.1f days\n", wt.Scene, wt.Date.Format(time.DateOnly), wt.Days)
	}
	if len(r.Skipped) > 0 {
		_, _ = fmt.Fprintf(w, "  skipped (outside cycle): %s\n", strings.Join(r.Skipped, ", "))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(hydroperiodCmd)
	hydroperiodCmd.Flags().Int("cycle", 0, "first year of the hydrological cycle (default: cycle of the earliest mask)")
	hydroperiodCmd.Flags().StringP("output", "o", "", "hydroperiod raster (default: <output-dir>/hydroperiod_<cycle>.tif)")
	hydroperiodCmd.Flags().StringP("format", "f", "text", "report format: text, json")
}
