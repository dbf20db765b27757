package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thaitts/corpusprep/internal/pipeline"
	"github.com/thaitts/corpusprep/internal/report"
	"golang.org/x/term"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare LANG...",
	Short: "Build one training corpus per language, or a combined one",
	Long: paragraph(fmt.Sprintf("\n%s every metadata line of the selected languages with its duration and phonemes, "+
		"filter out bad samples and write the corpus archive, durations, vocabulary and summary. "+
		"Lines annotated by an earlier run are reused.", keyword("Annotate"))),
	Example: paragraph("corpusprep prepare th\ncorpusprep prepare th en zh --combined --workers 8\n" +
		"corpusprep prepare zh --tokenizer pinyin --input zh.txt --audio-root /data/zh"),
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeLanguages,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args, false)
	},
}

var annotateCmd = &cobra.Command{
	Use:               "annotate LANG...",
	Short:             "Write the per-record metadata files without building a corpus",
	Example:           paragraph("corpusprep annotate th --engine dict --workers 4"),
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeLanguages,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args, true)
	},
}

// runFlags maps flag names to config keys.
var runFlags = map[string]string{
	"output":       "output",
	"dataset":      "dataset",
	"combined":     "combined",
	"workers":      "workers",
	"devices":      "devices",
	"tokenizer":    "tokenizer",
	"format":       "format",
	"batch-size":   "batch_size",
	"g2p-failure":  "g2p_failure",
	"engine":       "g2p.engine",
	"g2p-url":      "g2p.url",
	"cache-dir":    "cache.dir",
	"metrics-file": "metrics_file",
}

func addRunFlags(cmd *cobra.Command, corpus bool) {
	f := cmd.Flags()
	f.IntP("workers", "j", 0, "worker goroutines (default one per CPU)")
	f.Int("devices", 1, "accelerators the workers are spread over")
	f.String("g2p-failure", "degrade", "on phonemization failure: degrade or skip")
	f.StringP("engine", "e", "remote", "g2p engine: remote, dict, exec or none")
	f.String("g2p-url", "", "g2p service endpoint")
	f.String("cache-dir", "", "directory for the per-worker phoneme caches")
	f.String("metrics-file", "", "write prometheus metrics to this file")
	f.String("input", "", "metadata file (single language only)")
	f.String("audio-root", "", "directory the metadata paths are relative to (single language only)")
	f.Bool("no-progress", false, "do not show progress")
	if !corpus {
		return
	}
	f.StringP("output", "o", ".", "directory corpora are written to")
	f.String("dataset", "", "corpus name (default Custom_<LANGS>_<tokenizer>)")
	f.Bool("combined", false, "write all languages into one corpus")
	f.StringP("tokenizer", "t", "char", "text tokenizer: char or pinyin")
	f.String("format", "stream", "archive format: stream or file")
	f.Int("batch-size", 1000, "rows per archive record batch")
}

// bindFlags binds the flags of the running command only, since prepare and
// annotate share config keys.
func bindFlags(cmd *cobra.Command) {
	for name, key := range runFlags {
		if fl := cmd.Flags().Lookup(name); fl != nil {
			_ = viper.BindPFlag(key, fl)
		}
	}
}

func runPipeline(cmd *cobra.Command, args []string, annotateOnly bool) error {
	langs, err := parseLanguages(args)
	if err != nil {
		return err
	}
	bindFlags(cmd)

	for flag, key := range map[string]string{"input": "input", "audio-root": "audio_root"} {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		if len(langs) != 1 {
			return fmt.Errorf("--%s needs exactly one language, got %d", flag, len(langs))
		}
		v, _ := cmd.Flags().GetString(flag)
		viper.Set("languages."+langs[0]+"."+key, v)
	}

	cfg, err := pipeline.LoadConfigFromViper(langs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(annotateOnly); err != nil {
		return err
	}

	opts := pipeline.Options{AnnotateOnly: annotateOnly, Logger: log.Default()}
	if quiet, _ := cmd.Flags().GetBool("no-progress"); !quiet {
		tty := term.IsTerminal(int(os.Stderr.Fd()))
		opts.Tracker = func(title string) pipeline.Tracker {
			t := report.NewTracker(title, os.Stderr, tty, log.Default())
			if logToStderr {
				t.CaptureLogs(log.Default(), os.Stderr)
			}
			return t
		}
	}

	rep, runErr := pipeline.Run(cmd.Context(), cfg, opts)
	if len(rep.Corpora) > 0 {
		if err := renderReport(rep); err != nil {
			log.Warn("unable to render report", "error", err)
		}
	}
	return runErr
}

func renderReport(rep report.Report) error {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	width := 0
	if isTerminal {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	return report.Render(os.Stdout, rep, report.RenderOptions{ //nolint:wrapcheck
		TTY:   isTerminal,
		Width: width,
		Style: viper.GetString("style"),
	})
}

func init() {
	addRunFlags(prepareCmd, true)
	addRunFlags(annotateCmd, false)
}
