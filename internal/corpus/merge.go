package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/charmbracelet/log"
)

var (
	// ErrSchemaMismatch is returned when shard archives have different columns.
	ErrSchemaMismatch = errors.New("archive schema mismatch")

	// ErrMissingDurations is returned for a shard without duration.json.
	ErrMissingDurations = errors.New("shard has no duration.json")

	// ErrNoShards is returned when Merge is called without inputs.
	ErrNoShards = errors.New("no shards to merge")
)

// MergeOptions configures Merge.
type MergeOptions struct {
	// Format of the merged archive (default stream).
	Format Format
	Logger *log.Logger
}

// MergeResult describes a merged corpus.
type MergeResult struct {
	Dir       string
	Shards    int
	Rows      int64
	VocabSize int
	Summaries int
}

type shardPlan struct {
	dir   string
	order []int // shard column index for each reference column
}

// Merge combines shard corpora into out. Shards are validated before
// anything is written, and the output is staged in a temporary directory
// so a failed merge leaves nothing behind.
func Merge(out string, shards []string, opts MergeOptions) (MergeResult, error) {
	if len(shards) == 0 {
		return MergeResult{}, ErrNoShards
	}
	if opts.Format == "" {
		opts.Format = FormatStream
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	mem := memory.NewGoAllocator()

	ref, plans, err := planMerge(shards, mem)
	if err != nil {
		return MergeResult{}, err
	}

	parent := filepath.Dir(filepath.Clean(out))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return MergeResult{}, fmt.Errorf("unable to create output directory: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".merge-*")
	if err != nil {
		return MergeResult{}, fmt.Errorf("unable to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	res := MergeResult{Dir: out, Shards: len(shards)}
	if res.Rows, err = mergeArchives(filepath.Join(staging, ArchiveFile), ref, plans, opts.Format, mem, logger); err != nil {
		return MergeResult{}, err
	}

	vocab := make(map[string]struct{})
	durations := []float64{}
	var summaries []json.RawMessage
	for _, p := range plans {
		words, err := readVocab(filepath.Join(p.dir, VocabFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return MergeResult{}, fmt.Errorf("unable to read vocabulary of %s: %w", p.dir, err)
		}
		for _, w := range words {
			vocab[w] = struct{}{}
		}

		var d durationFile
		if err := readJSON(filepath.Join(p.dir, DurationFile), &d); err != nil {
			return MergeResult{}, fmt.Errorf("unable to read durations of %s: %w", p.dir, err)
		}
		durations = append(durations, d.Duration...)

		s, err := readSummaries(filepath.Join(p.dir, SummaryFile))
		if err != nil {
			logger.Warn("skipping shard summary", "shard", p.dir, "error", err)
		}
		summaries = append(summaries, s...)
	}

	if int64(len(durations)) != res.Rows {
		logger.Warn("duration count does not match archive rows", "durations", len(durations), "rows", res.Rows)
	}

	words := sortedKeys(vocab)
	res.VocabSize = len(words)
	res.Summaries = len(summaries)
	if summaries == nil {
		summaries = []json.RawMessage{}
	}

	if err := writeVocab(filepath.Join(staging, VocabFile), words); err != nil {
		return MergeResult{}, err
	}
	if err := writeJSON(filepath.Join(staging, DurationFile), durationFile{Duration: durations}); err != nil {
		return MergeResult{}, err
	}
	if err := writeJSON(filepath.Join(staging, SummaryFile), summaries); err != nil {
		return MergeResult{}, err
	}

	if err := publish(staging, out); err != nil {
		return MergeResult{}, err
	}
	return res, nil
}

// planMerge checks every shard against the first one and works out how
// to reorder its columns.
func planMerge(shards []string, mem memory.Allocator) (*arrow.Schema, []shardPlan, error) {
	var ref *arrow.Schema
	plans := make([]shardPlan, 0, len(shards))

	for _, dir := range shards {
		if _, err := os.Stat(filepath.Join(dir, DurationFile)); err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingDurations, dir)
		}

		r, err := openArchive(filepath.Join(dir, ArchiveFile), mem)
		if err != nil {
			return nil, nil, err
		}
		schema := r.Schema()
		r.Close()

		if ref == nil {
			ref = schema
		}
		order, err := columnOrder(ref, schema)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, dir, err)
		}
		plans = append(plans, shardPlan{dir: dir, order: order})
	}
	return ref, plans, nil
}

func columnOrder(ref, schema *arrow.Schema) ([]int, error) {
	if ref.NumFields() != schema.NumFields() {
		return nil, fmt.Errorf("columns %v, expected %v", fieldNames(schema), fieldNames(ref))
	}
	order := make([]int, ref.NumFields())
	for i, f := range ref.Fields() {
		idx := schema.FieldIndices(f.Name)
		if len(idx) != 1 {
			return nil, fmt.Errorf("columns %v, expected %v", fieldNames(schema), fieldNames(ref))
		}
		if got := schema.Field(idx[0]).Type; !arrow.TypeEqual(got, f.Type) {
			return nil, fmt.Errorf("column %s has type %s, expected %s", f.Name, got, f.Type)
		}
		order[i] = idx[0]
	}
	return order, nil
}

func fieldNames(s *arrow.Schema) []string {
	names := make([]string, 0, s.NumFields())
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	return names
}

func mergeArchives(path string, ref *arrow.Schema, plans []shardPlan, format Format, mem memory.Allocator, logger *log.Logger) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("unable to create archive: %w", err)
	}
	defer f.Close() //nolint:errcheck

	w, err := newRecordWriter(f, format, ref, mem)
	if err != nil {
		return 0, fmt.Errorf("unable to start archive: %w", err)
	}

	var rows int64
	for _, p := range plans {
		r, err := openArchive(filepath.Join(p.dir, ArchiveFile), mem)
		if err != nil {
			w.Close()
			return 0, err
		}

		var shardRows int64
		for r.Next() {
			rec := r.Record()
			cols := make([]arrow.Array, len(p.order))
			for i, j := range p.order {
				cols[i] = rec.Column(j)
			}
			out := array.NewRecord(ref, cols, rec.NumRows())
			err := w.Write(out)
			out.Release()
			if err != nil {
				r.Close()
				w.Close()
				return 0, fmt.Errorf("unable to write record batch: %w", err)
			}
			shardRows += rec.NumRows()
		}
		if err := r.Err(); err != nil {
			r.Close()
			w.Close()
			return 0, fmt.Errorf("unable to read %s: %w", p.dir, err)
		}
		r.Close()

		logger.Info("merged shard", "shard", p.dir, "rows", shardRows)
		rows += shardRows
	}

	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("unable to close archive: %w", err)
	}
	return rows, f.Close()
}

// readSummaries reads a summary.json holding either one summary or a list.
func readSummaries(path string) ([]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("invalid json in %s", path)
	}
	return []json.RawMessage{b}, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// publish moves the staged files into out.
func publish(staging, out string) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("unable to create %s: %w", out, err)
	}
	for _, name := range []string{ArchiveFile, DurationFile, VocabFile, SummaryFile} {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(out, name)); err != nil {
			return fmt.Errorf("unable to publish %s: %w", name, err)
		}
	}
	return nil
}
