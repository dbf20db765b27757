package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/thaitts/corpusprep/internal/annotate"
	"github.com/thaitts/corpusprep/internal/ttypes"
	"golang.org/x/sync/errgroup"
)

// ErrNoWorkers is returned when every worker slot failed to initialize.
var ErrNoWorkers = errors.New("all worker slots failed to initialize")

// Slot identifies one worker goroutine and the accelerator it is pinned to.
type Slot struct {
	Index  int
	Device int
}

// Processor handles lines for one slot. It is only ever used by the
// goroutine that created it.
type Processor interface {
	Process(ctx context.Context, line string) annotate.Outcome
	Close() error
}

// InitFunc builds the processor of a slot. It runs once per slot, on the
// slot's own goroutine.
type InitFunc func(ctx context.Context, slot Slot) (Processor, error)

// Progress is published after every finished item.
type Progress struct {
	Done    int
	Total   int
	Elapsed time.Duration
	// Rate is items per second.
	Rate float64
	ETA  time.Duration
}

// Percent returns Done/Total in [0, 1].
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Options configures a run.
type Options struct {
	// Workers is the number of slots (default runtime.NumCPU()).
	Workers int
	// Devices is the number of accelerators slots are spread over (default 1).
	Devices int

	Progress func(Progress)
	Logger   *log.Logger
}

// Stats summarizes a run.
type Stats struct {
	Slots       int
	FailedSlots int
	Processed   int
	Interrupted bool
	Elapsed     time.Duration
}

// Run processes lines on a pool of slots and hands every outcome to emit.
// emit is called from the calling goroutine only, in completion order.
//
// Cancelling ctx stops handing out new lines; lines already being processed
// run to completion. Run then returns the stats so far and ctx's error.
func Run(ctx context.Context, lines []string, opts Options, initFn InitFunc, emit func(annotate.Outcome)) (Stats, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Devices <= 0 {
		opts.Devices = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	stats := Stats{Slots: opts.Workers}
	start := time.Now()

	jobs := make(chan string)
	results := make(chan annotate.Outcome, opts.Workers)
	allFailed := make(chan struct{})

	var (
		mu     sync.Mutex
		failed int
	)
	slotFailed := func() {
		mu.Lock()
		defer mu.Unlock()
		failed++
		if failed == opts.Workers {
			close(allFailed)
		}
	}

	// In-flight items must not observe cancellation, or a SIGINT would
	// turn them into degraded metadata records.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < opts.Workers; i++ {
		slot := Slot{Index: i, Device: i % opts.Devices}
		g.Go(func() error {
			p, err := initSlot(ctx, initFn, slot)
			if err != nil {
				logger.Error("worker init failed", "slot", slot.Index, "device", slot.Device, "error", err)
				slotFailed()
				return nil
			}
			logger.Info("worker ready", "slot", slot.Index, "device", slot.Device)
			defer func() {
				if err := p.Close(); err != nil {
					logger.Warn("worker close failed", "slot", slot.Index, "error", err)
				}
			}()

			for line := range jobs {
				results <- process(workCtx, p, line)
			}
			return nil
		})
	}

	go func() {
		defer close(jobs)
		for _, line := range lines {
			select {
			case jobs <- line:
			case <-ctx.Done():
				return
			case <-allFailed:
				return
			}
		}
	}()

	go func() {
		_ = g.Wait()
		close(results)
	}()

	total := len(lines)
	for out := range results {
		stats.Processed++
		emit(out)
		if opts.Progress != nil {
			opts.Progress(progress(stats.Processed, total, time.Since(start)))
		}
	}

	mu.Lock()
	stats.FailedSlots = failed
	mu.Unlock()
	stats.Elapsed = time.Since(start)

	if stats.FailedSlots == opts.Workers {
		return stats, ErrNoWorkers
	}
	if err := ctx.Err(); err != nil && stats.Processed < total {
		stats.Interrupted = true
		return stats, err
	}
	return stats, nil
}

func initSlot(ctx context.Context, initFn InitFunc, slot Slot) (p Processor, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic during init: %v", r)
		}
	}()
	return initFn(ctx, slot)
}

// process converts a panic into an error outcome that keeps the line.
func process(ctx context.Context, p Processor, line string) (out annotate.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = annotate.Outcome{
				Line:   line,
				Reason: ttypes.ReasonError,
				Err:    fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
			}
		}
	}()
	return p.Process(ctx, line)
}

func progress(done, total int, elapsed time.Duration) Progress {
	p := Progress{Done: done, Total: total, Elapsed: elapsed}
	if secs := elapsed.Seconds(); secs > 0 {
		p.Rate = float64(done) / secs
	}
	if p.Rate > 0 && total > done {
		p.ETA = time.Duration(float64(total-done) / p.Rate * float64(time.Second))
	}
	return p
}
