package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/thaitts/corpusprep/internal/dataset"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("corpus writer is closed")

// Options configures a Writer.
type Options struct {
	// Language labels the summary, e.g. "TH" or "TH_EN" for a combined corpus.
	Language  string
	Tokenizer ttypes.Tokenizer
	Format    Format
	// BatchSize is the number of rows buffered before a record batch is flushed.
	BatchSize int
}

// Summary is written to summary.json when a corpus is closed.
type Summary struct {
	Language   string         `json:"language"`
	Hours      float64        `json:"hours"`
	Samples    int            `json:"samples"`
	VocabSize  int            `json:"vocab_size"`
	BadCounts  map[string]int `json:"bad_counts"`
	Errors     int            `json:"errors"`
	ErrorFiles []string       `json:"error_files"`
}

type durationFile struct {
	Duration []float64 `json:"duration"`
}

// Writer appends samples to a corpus directory. It is owned by a single
// goroutine.
type Writer struct {
	dir    string
	opts   Options
	schema *arrow.Schema

	mem     memory.Allocator
	f       *os.File
	archive recordWriter
	builder *array.RecordBuilder
	pending int

	durations []float64
	vocab     map[string]struct{}
	seconds   float64
	samples   int

	bad        map[ttypes.Reason]int
	errorFiles []string

	closed bool
}

// NewWriter creates dir and opens its archive for writing.
func NewWriter(dir string, opts Options) (*Writer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.Format == "" {
		opts.Format = FormatStream
	}
	if opts.Tokenizer == "" {
		opts.Tokenizer = ttypes.TokenizerChar
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create corpus directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, ArchiveFile))
	if err != nil {
		return nil, fmt.Errorf("unable to create archive: %w", err)
	}

	mem := memory.NewGoAllocator()
	schema := Schema(opts.Tokenizer)
	archive, err := newRecordWriter(f, opts.Format, schema, mem)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to start archive: %w", err)
	}

	return &Writer{
		dir:       dir,
		opts:      opts,
		schema:    schema,
		mem:       mem,
		f:         f,
		archive:   archive,
		builder:   array.NewRecordBuilder(mem, schema),
		durations: []float64{},
		vocab:     make(map[string]struct{}),
		bad:       make(map[ttypes.Reason]int),
	}, nil
}

// Dir returns the corpus directory.
func (w *Writer) Dir() string { return w.dir }

// Write appends one sample.
func (w *Writer) Write(s dataset.Sample) error {
	if w.closed {
		return ErrClosed
	}
	if s.Duration <= 0 || s.AudioPath == "" {
		return fmt.Errorf("refusing sample %q with duration %f and audio path %q", s.ID, s.Duration, s.AudioPath)
	}

	w.builder.Field(0).(*array.StringBuilder).Append(s.AudioPath)
	switch b := w.builder.Field(1).(type) {
	case *array.ListBuilder:
		b.Append(true)
		vb := b.ValueBuilder().(*array.StringBuilder)
		for _, tok := range s.Tokens {
			vb.Append(tok)
		}
	case *array.StringBuilder:
		b.Append(s.Text)
	}
	w.builder.Field(2).(*array.Float64Builder).Append(s.Duration)

	for _, tok := range s.Tokens {
		w.vocab[tok] = struct{}{}
	}
	w.durations = append(w.durations, s.Duration)
	w.seconds += s.Duration
	w.samples++

	w.pending++
	if w.pending >= w.opts.BatchSize {
		return w.flush()
	}
	return nil
}

// Reject counts a filtered or skipped record.
func (w *Writer) Reject(reason ttypes.Reason) {
	w.bad[reason]++
}

// Error counts a record that failed unexpectedly and remembers its file.
func (w *Writer) Error(file string) {
	w.bad[ttypes.ReasonError]++
	if file != "" {
		w.errorFiles = append(w.errorFiles, file)
	}
}

// Samples returns the number of samples written so far.
func (w *Writer) Samples() int { return w.samples }

func (w *Writer) flush() error {
	if w.pending == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	w.pending = 0
	if err := w.archive.Write(rec); err != nil {
		return fmt.Errorf("unable to write record batch: %w", err)
	}
	return nil
}

// Close flushes the archive and writes the duration, vocabulary and summary
// files. It may only be called once.
func (w *Writer) Close() (Summary, error) {
	if w.closed {
		return Summary{}, ErrClosed
	}
	w.closed = true
	defer w.builder.Release()

	if err := w.flush(); err != nil {
		w.archive.Close()
		w.f.Close()
		return Summary{}, err
	}
	if err := w.archive.Close(); err != nil {
		w.f.Close()
		return Summary{}, fmt.Errorf("unable to close archive: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return Summary{}, fmt.Errorf("unable to close archive: %w", err)
	}

	if err := writeJSON(filepath.Join(w.dir, DurationFile), durationFile{Duration: w.durations}); err != nil {
		return Summary{}, err
	}
	vocab := sortedKeys(w.vocab)
	if err := writeVocab(filepath.Join(w.dir, VocabFile), vocab); err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Language:   w.opts.Language,
		Hours:      w.seconds / 3600,
		Samples:    w.samples,
		VocabSize:  len(vocab),
		BadCounts:  make(map[string]int, len(w.bad)),
		Errors:     w.bad[ttypes.ReasonError],
		ErrorFiles: w.errorFiles,
	}
	for reason, n := range w.bad {
		summary.BadCounts[string(reason)] = n
	}
	if summary.ErrorFiles == nil {
		summary.ErrorFiles = []string{}
	}
	if err := writeJSON(filepath.Join(w.dir, SummaryFile), summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeVocab(path string, vocab []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(vocab, "\n")), 0o644); err != nil {
		return fmt.Errorf("unable to write vocabulary: %w", err)
	}
	return nil
}

// readVocab returns the entries of a vocab.txt file. Entries are kept
// verbatim since the space token is a legitimate symbol.
func readVocab(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range strings.Split(string(b), "\n") {
		if v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
