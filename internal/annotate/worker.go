package annotate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/audio"
	"github.com/thaitts/corpusprep/internal/dataset"
	"github.com/thaitts/corpusprep/internal/filter"
	"github.com/thaitts/corpusprep/internal/g2p"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Policy decides what happens to a record whose phonemization failed.
type Policy string

const (
	// PolicyDegrade keeps the record with an empty phoneme string.
	PolicyDegrade Policy = "degrade"
	// PolicySkip rejects the record with g2p_failure.
	PolicySkip Policy = "skip"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyDegrade, nil
	case PolicyDegrade, PolicySkip:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported g2p failure policy %q (expected degrade or skip)", s)
	}
}

// Layout describes where audio files live relative to the audio root.
type Layout string

const (
	// LayoutRelative joins the audio root with the line's relative path.
	LayoutRelative Layout = "relative"
	// LayoutFlat joins the audio root with the file name only.
	LayoutFlat Layout = "flat"
)

// Options configures a Worker.
type Options struct {
	Language  ttypes.Language
	AudioRoot string
	Layout    Layout
	Tokenizer ttypes.Tokenizer
	Policy    Policy
	// AnnotateOnly stops after the metadata record is written.
	AnnotateOnly bool
}

// Outcome is the result of processing one line.
type Outcome struct {
	// Line is the raw input, kept so failures can be reported.
	Line    string
	ID      string
	Samples []dataset.Sample
	// Reason is empty when the line was admitted.
	Reason ttypes.Reason
	Err    error
	// Resumed is set when an existing metadata record was reused.
	Resumed bool
	// Annotated is set when a metadata record was written.
	Annotated bool
	G2P       g2p.Status
}

// Admitted reports whether the line produced (or, in annotate-only mode,
// would have produced) samples.
func (o Outcome) Admitted() bool {
	return o.Reason == ttypes.ReasonNone
}

// Worker processes lines for one language. It is not safe for concurrent
// use; give every goroutine its own Worker and Client.
type Worker struct {
	client g2p.Client
	filter *filter.Filter
	opts   Options
	logger *log.Logger
}

// NewWorker creates a worker. The filter is only read and may be shared.
func NewWorker(client g2p.Client, f *filter.Filter, opts Options, logger *log.Logger) *Worker {
	if opts.Tokenizer == "" {
		opts.Tokenizer = ttypes.TokenizerChar
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDegrade
	}
	if opts.Layout == "" {
		opts.Layout = LayoutRelative
	}
	if f == nil {
		f = filter.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{client: client, filter: f, opts: opts, logger: logger}
}

// Close releases the worker's G2P client.
func (w *Worker) Close() error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}

// AudioPath resolves a line's relative path against the audio root.
func (w *Worker) AudioPath(rel string) string {
	if w.opts.Layout == LayoutFlat {
		rel = filepath.Base(rel)
	}
	if w.opts.AudioRoot == "" {
		return filepath.Clean(rel)
	}
	return filepath.Join(w.opts.AudioRoot, rel)
}

// Process annotates one line.
func (w *Worker) Process(ctx context.Context, line string) Outcome {
	out := Outcome{Line: line}

	raw, err := dataset.ParseLine(line)
	if err != nil {
		return w.reject(out, ttypes.ReasonMalformedLine, err)
	}

	wavPath := w.AudioPath(raw.RelPath)
	out.ID = filepath.Base(wavPath)
	metaPath := dataset.MetadataPath(wavPath)

	if _, err := os.Stat(wavPath); err != nil {
		return w.reject(out, ttypes.ReasonMissingAudio, err)
	}

	rec, err := dataset.ReadRecord(metaPath)
	switch {
	case err == nil:
		out.Resumed = true
	case errors.Is(err, fs.ErrNotExist):
	default:
		w.logger.Debug("re-annotating invalid record", "file", metaPath, "error", err)
	}

	if !out.Resumed {
		duration, err := audio.Probe(wavPath)
		if err != nil {
			return w.reject(out, ttypes.ReasonDecodeError, err)
		}
		if duration <= 0 {
			return w.reject(out, ttypes.ReasonDecodeError, fmt.Errorf("%w: zero duration", audio.ErrDecode))
		}

		res := w.client.Convert(ctx, raw.Transcript, w.opts.Language)
		out.G2P = res.Status
		if !res.OK() && w.opts.Policy == PolicySkip {
			return w.reject(out, ttypes.ReasonG2PFailure, res.Err)
		}

		rec = dataset.NewRecord(out.ID, wavPath, duration, raw.Transcript, res.Phoneme, w.opts.Language.Lower())
		if err := dataset.WriteRecord(metaPath, rec); err != nil {
			out.Reason = ttypes.ReasonError
			out.Err = err
			w.logger.Error("unable to write metadata record", "file", metaPath, "error", err)
			return out
		}
		out.Annotated = true
	}

	if w.opts.AnnotateOnly {
		return out
	}

	decision := w.filter.Check(dataset.Stem(wavPath), rec.Text, w.opts.Language)
	if !decision.Admitted {
		return w.reject(out, decision.Reason, nil)
	}

	out.Samples = w.samples(rec, wavPath, decision.Text)
	return out
}

// samples builds the corpus rows for rec. Audio paths come from the resolved
// wavPath, not the record, so a moved dataset resumes against its new location.
func (w *Worker) samples(rec dataset.Record, wavPath, text string) []dataset.Sample {
	lang := w.opts.Language
	if lang == ttypes.LanguageThai {
		text = leadingSpace(text)
	}

	samples := []dataset.Sample{{
		ID:        rec.ID,
		AudioPath: wavPath,
		Duration:  rec.Duration,
		Text:      text,
		Tokens:    filter.Tokenize(text, w.opts.Tokenizer),
		Phoneme:   rec.Phone,
		Language:  lang,
	}}

	if lang == ttypes.LanguageThai && strings.TrimSpace(rec.Phone) != "" {
		phoneText := leadingSpace(rec.Phone)
		samples = append(samples, dataset.Sample{
			ID:        rec.ID,
			AudioPath: wavPath,
			Duration:  rec.Duration,
			Text:      phoneText,
			Tokens:    filter.Tokenize(phoneText, w.opts.Tokenizer),
			Phoneme:   rec.Phone,
			Language:  lang,
		})
	}
	return samples
}

func (w *Worker) reject(out Outcome, reason ttypes.Reason, err error) Outcome {
	out.Reason = reason
	out.Err = err
	w.logger.Debug("skipping record", "id", out.ID, "reason", reason, "error", err)
	return out
}

func leadingSpace(s string) string {
	if strings.HasPrefix(s, " ") {
		return s
	}
	return " " + s
}
