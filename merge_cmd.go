package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/thaitts/corpusprep/internal/corpus"
	"github.com/thaitts/corpusprep/utils"
)

var (
	mergeOutput string
	mergeFormat string

	mergeCmd = &cobra.Command{
		Use:   "merge SHARD...",
		Short: "Merge language corpora into one unified corpus",
		Long: paragraph(fmt.Sprintf("\n%s the archives of every shard, unite their vocabularies, concatenate their "+
			"durations and collect their summaries. Shards must share the same columns; nothing is written otherwise.", keyword("Concatenate"))),
		Example: paragraph("corpusprep merge Custom_TH_char Custom_EN_char -o Custom_TH_EN_char"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mergeOutput == "" {
				return errors.New("an output directory is required (--output)")
			}
			format, err := corpus.ParseFormat(mergeFormat)
			if err != nil {
				return err
			}

			shards := make([]string, len(args))
			for i, a := range args {
				shards[i] = utils.ExpandPath(a)
			}
			res, err := corpus.Merge(utils.ExpandPath(mergeOutput), shards, corpus.MergeOptions{
				Format: format,
				Logger: log.Default(),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d shards into %s: %s rows, %d vocabulary symbols, %d summaries\n",
				keyword("Merged"), res.Shards, res.Dir, humanize.Comma(res.Rows), res.VocabSize, res.Summaries)
			return nil
		},
	}
)

func init() {
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "directory of the unified corpus")
	mergeCmd.Flags().StringVar(&mergeFormat, "format", "stream", "archive format: stream or file")
}
