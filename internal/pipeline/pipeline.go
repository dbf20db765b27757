package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/thaitts/corpusprep/internal/annotate"
	"github.com/thaitts/corpusprep/internal/cache"
	"github.com/thaitts/corpusprep/internal/corpus"
	"github.com/thaitts/corpusprep/internal/dataset"
	"github.com/thaitts/corpusprep/internal/dispatch"
	"github.com/thaitts/corpusprep/internal/filter"
	"github.com/thaitts/corpusprep/internal/g2p"
	"github.com/thaitts/corpusprep/internal/metrics"
	"github.com/thaitts/corpusprep/internal/report"
	"github.com/thaitts/corpusprep/internal/ttypes"
)

// Tracker receives dispatcher progress for one language.
type Tracker interface {
	Update(dispatch.Progress)
	Stop()
}

// Options controls a run.
type Options struct {
	// AnnotateOnly writes the metadata records and no corpus.
	AnnotateOnly bool
	Logger       *log.Logger
	// Tracker creates the progress view of one language. Nil disables it.
	Tracker func(title string) Tracker
}

type runner struct {
	cfg     Config
	opts    Options
	logger  *log.Logger
	filter  *filter.Filter
	metrics *metrics.Metrics
	rep     *report.Report
}

// Run executes a run and returns its report. A cancelled run still closes
// its corpora and returns the partial report along with the context error.
func Run(ctx context.Context, cfg Config, opts Options) (report.Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	rep := report.Report{RunID: uuid.NewString(), Command: "prepare"}
	if opts.AnnotateOnly {
		rep.Command = "annotate"
	}
	start := time.Now()

	f, err := buildFilter(cfg)
	if err != nil {
		return rep, err
	}

	// Read every input first so an empty file fails the run before any work.
	lines := make(map[ttypes.Language][]string, len(cfg.Languages))
	for _, lc := range cfg.Languages {
		l, err := dataset.ReadLinesFile(lc.Input)
		if err != nil {
			return rep, err
		}
		lines[lc.Language] = l
		logger.Info("loaded metadata", "language", lc.Language, "lines", len(l), "file", lc.Input)
	}

	r := &runner{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		filter:  f,
		metrics: metrics.New(rep.RunID),
		rep:     &rep,
	}

	switch {
	case opts.AnnotateOnly:
		err = r.annotate(ctx, lines)
	case cfg.Combined:
		err = r.prepareCombined(ctx, lines)
	default:
		err = r.prepare(ctx, lines)
	}

	rep.Elapsed = time.Since(start)
	if errors.Is(err, context.Canceled) {
		rep.Interrupted = true
	}
	if cfg.MetricsFile != "" {
		if merr := r.metrics.WriteTextfile(cfg.MetricsFile); merr != nil {
			logger.Warn("metrics export failed", "error", merr)
		}
	}
	return rep, err
}

func buildFilter(cfg Config) (*filter.Filter, error) {
	f := filter.Default()
	for _, lc := range cfg.Languages {
		ids, err := lc.OptOutIDs()
		if err != nil {
			return nil, err
		}
		f.AddOptOut(lc.Language, ids...)
	}
	return f, nil
}

func (r *runner) annotate(ctx context.Context, lines map[ttypes.Language][]string) error {
	for _, lc := range r.cfg.Languages {
		c := report.Corpus{Language: lc.Language.String()}
		err := r.language(ctx, lc, lines[lc.Language], nil, &c)
		r.rep.Corpora = append(r.rep.Corpora, c)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) prepare(ctx context.Context, lines map[ttypes.Language][]string) error {
	for _, lc := range r.cfg.Languages {
		dir := filepath.Join(r.cfg.Output, r.cfg.DatasetName(lc.Language))
		c := report.Corpus{Language: lc.Language.String(), Dir: dir}

		w, err := r.newWriter(dir, c.Language)
		if err != nil {
			return err
		}
		err = r.language(ctx, lc, lines[lc.Language], w, &c)
		if cerr := r.finish(w, &c); err == nil {
			err = cerr
		}
		r.rep.Corpora = append(r.rep.Corpora, c)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) prepareCombined(ctx context.Context, lines map[ttypes.Language][]string) error {
	langs := make([]ttypes.Language, len(r.cfg.Languages))
	codes := make([]string, len(r.cfg.Languages))
	for i, lc := range r.cfg.Languages {
		langs[i] = lc.Language
		codes[i] = lc.Language.String()
	}
	dir := filepath.Join(r.cfg.Output, r.cfg.DatasetName(langs...))
	c := report.Corpus{Language: strings.Join(codes, "_"), Dir: dir}

	w, err := r.newWriter(dir, c.Language)
	if err != nil {
		return err
	}
	for _, lc := range r.cfg.Languages {
		if err = r.language(ctx, lc, lines[lc.Language], w, &c); err != nil {
			break
		}
	}
	if cerr := r.finish(w, &c); err == nil {
		err = cerr
	}
	r.rep.Corpora = append(r.rep.Corpora, c)
	return err
}

func (r *runner) newWriter(dir, language string) (*corpus.Writer, error) {
	w, err := corpus.NewWriter(dir, corpus.Options{
		Language:  language,
		Tokenizer: r.cfg.Tokenizer,
		Format:    r.cfg.Format,
		BatchSize: r.cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create corpus %s: %w", dir, err)
	}
	return w, nil
}

func (r *runner) finish(w *corpus.Writer, c *report.Corpus) error {
	summary, err := w.Close()
	if err != nil {
		return fmt.Errorf("unable to close corpus %s: %w", w.Dir(), err)
	}
	c.Samples = summary.Samples
	c.Hours = summary.Hours
	c.VocabSize = summary.VocabSize
	if fi, err := os.Stat(filepath.Join(w.Dir(), corpus.ArchiveFile)); err == nil {
		c.ArchiveBytes = uint64(fi.Size()) //nolint:gosec
	}
	r.logger.Info("corpus written", "dir", w.Dir(), "samples", summary.Samples, "hours", fmt.Sprintf("%.2f", summary.Hours), "vocab", summary.VocabSize)
	return nil
}

// language runs the dispatcher over the lines of one language. Outcomes go
// to w unless it is nil.
func (r *runner) language(ctx context.Context, lc LanguageConfig, lines []string, w *corpus.Writer, c *report.Corpus) error {
	opts := annotate.Options{
		Language:     lc.Language,
		AudioRoot:    lc.AudioRoot,
		Layout:       lc.Layout,
		Tokenizer:    r.cfg.Tokenizer,
		Policy:       r.cfg.Policy,
		AnnotateOnly: r.opts.AnnotateOnly,
	}

	workers := r.cfg.Workers
	if workers == 0 && r.cfg.Devices > 1 {
		workers = r.cfg.Devices
	}
	dopts := dispatch.Options{Workers: workers, Devices: r.cfg.Devices, Logger: r.logger}
	if r.opts.Tracker != nil {
		tracker := r.opts.Tracker(lc.Language.String())
		defer tracker.Stop()
		dopts.Progress = tracker.Update
	}

	var writeErr error
	c.Lines += len(lines)
	emit := func(o annotate.Outcome) {
		r.metrics.Observe(lc.Language, o)
		tally(c, o)
		if w == nil || writeErr != nil {
			return
		}
		switch {
		case o.Reason == ttypes.ReasonError:
			w.Error(errorFile(o))
		case !o.Admitted():
			w.Reject(o.Reason)
		default:
			for _, s := range o.Samples {
				if err := w.Write(s); err != nil {
					writeErr = err
					return
				}
			}
			r.metrics.SamplesWritten(lc.Language, len(o.Samples))
		}
	}

	stats, err := dispatch.Run(ctx, lines, dopts, r.initSlot(opts), emit)
	r.rep.Slots = max(r.rep.Slots, stats.Slots)
	r.rep.FailedSlots += stats.FailedSlots
	r.metrics.SlotsFailed(stats.FailedSlots)
	r.logger.Info("language done", "language", lc.Language, "processed", stats.Processed, "elapsed", stats.Elapsed.Round(time.Millisecond))

	if err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("unable to write corpus: %w", writeErr)
	}
	return nil
}

func tally(c *report.Corpus, o annotate.Outcome) {
	if c.Rejected == nil {
		c.Rejected = make(map[string]int)
	}
	if o.Resumed {
		c.Resumed++
	}
	if o.Annotated {
		c.Annotated++
	}
	switch {
	case o.Reason == ttypes.ReasonError:
		c.Rejected[string(o.Reason)]++
		msg := "unknown error"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		c.Failures = append(c.Failures, report.Failure{Line: o.Line, Err: msg})
	case !o.Admitted():
		c.Rejected[string(o.Reason)]++
	default:
		c.Admitted++
	}
}

// errorFile names the audio file of a failed line, or the line itself when
// it cannot be parsed.
func errorFile(o annotate.Outcome) string {
	if raw, err := dataset.ParseLine(o.Line); err == nil {
		return raw.RelPath
	}
	return o.Line
}

// slotProcessor owns everything one worker slot allocates.
type slotProcessor struct {
	*annotate.Worker
	cache  *cache.Manager
	slot   dispatch.Slot
	logger *log.Logger
}

func (p *slotProcessor) Close() error {
	err := p.Worker.Close()
	s := p.cache.Stats()
	p.logger.Debug("phoneme cache", "slot", p.slot.Index, "hits", s.Hits, "misses", s.Misses, "hit_rate", fmt.Sprintf("%.2f", s.HitRate()))
	return errors.Join(err, p.cache.Close())
}

func (r *runner) initSlot(opts annotate.Options) dispatch.InitFunc {
	return func(_ context.Context, slot dispatch.Slot) (dispatch.Processor, error) {
		cc := r.cfg.Cache
		if r.cfg.CacheDir != "" {
			cc.DiskPath = filepath.Join(r.cfg.CacheDir, fmt.Sprintf("worker-%d", slot.Index))
		}
		c, err := cache.NewManager(cc)
		if err != nil {
			return nil, fmt.Errorf("unable to open phoneme cache: %w", err)
		}

		client, err := g2p.New(r.cfg.G2P, slot.Device, c, r.logger)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		return &slotProcessor{
			Worker: annotate.NewWorker(client, r.filter, opts, r.logger),
			cache:  c,
			slot:   slot,
			logger: r.logger,
		}, nil
	}
}
