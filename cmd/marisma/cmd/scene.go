package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/marisma/internal/batch"
	"github.com/MeKo-Tech/marisma/internal/config"
	"github.com/MeKo-Tech/marisma/internal/pipeline"
)

var (
	normalizeCmd = newSceneCommand("normalize", pipeline.ModeNormalize,
		"Normalize scenes against the reference scene",
		`Normalize each reflective band of the given scene directories against the
reference scene. Bands whose regression never reaches the acceptance threshold
are reported as not normalized and no file is written for them.

Examples:
  marisma normalize /data/LC08_L2SP_202034_20230115_20230125_02_T1
  marisma normalize scene1/ scene2/ --scatter --format json`)

	floodCmd = newSceneCommand("flood", pipeline.ModeFlood,
		"Classify flood masks from previously normalized bands",
		`Classify the flood mask of each scene from the normalized bands already in
the output directory. Run normalize first, or use process for both stages.

Examples:
  marisma flood /data/LC08_L2SP_202034_20230115_20230125_02_T1 --invalid-policy keep`)

	processCmd = newSceneCommand("process", pipeline.ModeFull,
		"Normalize scenes and classify their flood masks",
		`Normalize each scene and classify its flood mask in one run.

Examples:
  marisma process /data/LC08_L2SP_202034_20230115_20230125_02_T1
  marisma process scene/ --indices --quicklooks --sqlite params.db`)
)

func newSceneCommand(use string, mode pipeline.Mode, short, long string) *cobra.Command {
	c := &cobra.Command{
		Use:          use + " [scene-dirs...]",
		Short:        short,
		Long:         long,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenes(cmd, args, mode)
		},
	}
	addSceneFlags(c)
	c.Flags().StringP("format", "f", "text", "output format: text, json")
	return c
}

// addSceneFlags registers the study and output flags shared by every command
// that runs the scene pipeline.
func addSceneFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("reference-dir", "", "directory holding the reference scene, one <band>.tif per band")
	f.String("unbalanced-mask", "", "pseudo-invariant zone mask tried first")
	f.String("balanced-mask", "", "pseudo-invariant zone mask with balanced zone sizes")
	f.String("ancillary-dir", "", "directory holding the static flood inputs")
	f.String("output-dir", "", "directory the scene products are written to")
	f.String("invalid-policy", "", "how invalid (code 2) pixels are written: nodata, keep")
	f.Bool("indices", false, "write the spectral index rasters")
	f.Bool("quicklooks", false, "write PNG previews of the flood mask")
	f.Bool("scatter", false, "write one regression scatter plot per normalized band")
	f.String("sqlite", "", "SQLite database the normalization parameters are stored in")
	f.String("csv-dir", "", "directory of the CSV parameter log")
}

// applySceneFlags overrides cfg with the scene flags given on the command line.
func applySceneFlags(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}

	str("reference-dir", &cfg.Reference.Dir)
	str("unbalanced-mask", &cfg.Masks.Unbalanced)
	str("balanced-mask", &cfg.Masks.Balanced)
	str("ancillary-dir", &cfg.Ancillary.Dir)
	str("output-dir", &cfg.Output.Dir)
	str("invalid-policy", &cfg.Flood.InvalidPolicy)
	boolean("indices", &cfg.Output.Indices)
	boolean("quicklooks", &cfg.Output.Quicklooks)
	boolean("scatter", &cfg.Normalization.Scatter)
	str("sqlite", &cfg.Store.SQLitePath)
	str("csv-dir", &cfg.Store.CSVDir)
	str("format", &cfg.Output.Format)
}

func runScenes(cmd *cobra.Command, args []string, mode pipeline.Mode) (err error) {
	cfg := GetConfig()
	applySceneFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	pl, err := batch.BuildPipeline(cfg, batch.Deps{
		Logger:    slog.Default(),
		Ancillary: mode&pipeline.ModeFlood != 0,
	})
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, pl.Close()) }()

	var errs []error
	for _, dir := range args {
		res, runErr := pl.Run(cmd.Context(), dir, mode)
		if perr := printSceneResult(cmd, res, cfg.Output.Format); perr != nil {
			return perr
		}
		if runErr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, runErr))
			if cmd.Context().Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// printSceneResult writes res as JSON or, for any other format, as its
// one-line summary.
func printSceneResult(cmd *cobra.Command, res *pipeline.SceneResult, format string) error {
	if format != "json" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
		return nil
	}
	s, err := pipeline.ToJSON(res)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
	return nil
}

func init() {
	rootCmd.AddCommand(normalizeCmd, floodCmd, processCmd)
}
