package core

// orchestrator.go drives a bounded batch of documents through the processor.
//
// Every document runs in its own goroutine. Completions are sent over a
// channel to the orchestrator goroutine, which stores each result in the slot
// matching its submission index and emits progress. The report is built only
// after every worker has settled, so its order never depends on timing.
//
// Cancelling the caller's context abandons in-flight adapter calls and
// discards whatever finished; a cancelled run returns ErrCancelledBatch.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxBatchSize is the largest batch accepted by default.
const DefaultMaxBatchSize = 3

// DocumentProcessor validates a single document.
// *Processor is the production implementation.
type DocumentProcessor interface {
	Process(ctx context.Context, locator string, ref *ReferenceDataset) DocumentResult
}

// OrchestratorConfig controls batch limits.
type OrchestratorConfig struct {
	MaxBatchSize int
	Clock        Clock
	Logger       *slog.Logger
}

// Orchestrator runs batches. It holds no per-run state and may be shared.
type Orchestrator struct {
	processor DocumentProcessor
	cfg       OrchestratorConfig
}

// NewOrchestrator creates an orchestrator around processor.
func NewOrchestrator(processor DocumentProcessor, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{processor: processor, cfg: cfg}
}

// MaxBatchSize returns the configured batch limit.
func (o *Orchestrator) MaxBatchSize() int {
	return o.cfg.MaxBatchSize
}

// CheckBatch validates the batch size precondition.
func (o *Orchestrator) CheckBatch(locators []string) error {
	if len(locators) == 0 {
		return ErrEmptyBatch
	}
	if len(locators) > o.cfg.MaxBatchSize {
		return fmt.Errorf("%w: %d submitted, limit is %d", ErrBatchTooLarge, len(locators), o.cfg.MaxBatchSize)
	}
	return nil
}

type completion struct {
	index  int
	result DocumentResult
}

// Run validates every locator against ref and returns the aggregated report.
// progress may be nil.
func (o *Orchestrator) Run(ctx context.Context, ref *ReferenceDataset, locators []string, progress ProgressFunc) (*BatchReport, error) {
	if err := o.CheckBatch(locators); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(Event) {}
	}

	total := len(locators)
	logger := o.cfg.Logger.With("documents", total)
	logger.Info("batch started")

	emit := func(ev Event) {
		ev.Total = total
		ev.Timestamp = o.cfg.Clock()
		progress(ev)
	}
	emit(Event{Type: EventStarted, Phase: PhaseRunning, Index: -1})

	results := make([]DocumentResult, total)
	done := make(chan completion, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(total)
	for i, locator := range locators {
		g.Go(func() error {
			done <- completion{index: i, result: o.processor.Process(gctx, locator, ref)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()

	completed := 0
	for c := range done {
		if ctx.Err() != nil {
			continue // drain so every worker can exit
		}
		results[c.index] = c.result
		completed++

		res := c.result
		emit(Event{
			Type:      EventDocumentCompleted,
			Phase:     PhaseRunning,
			Index:     c.index,
			Completed: completed,
			Result:    &res,
		})
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("batch cancelled", "completed", completed, "error", err)
		emit(Event{Type: EventCancelled, Phase: PhaseCancelled, Index: -1, Completed: completed})
		return nil, fmt.Errorf("%w: %w", ErrCancelledBatch, err)
	}

	report := Aggregate(results, o.cfg.Clock())
	logger.Info("batch finished",
		"valid", report.ValidCount,
		"invalid", report.InvalidCount,
		"errors", report.ErrorCount,
	)
	emit(Event{Type: EventFinished, Phase: PhaseCompleted, Index: -1, Completed: total, Report: report})

	return report, nil
}

// Aggregate builds a report from results already in submission order.
func Aggregate(results []DocumentResult, timestamp time.Time) *BatchReport {
	report := &BatchReport{
		Timestamp:      timestamp,
		TotalDocuments: len(results),
		Results:        results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusValid:
			report.ValidCount++
		case StatusInvalid:
			report.InvalidCount++
		default:
			report.ErrorCount++
		}
	}
	return report
}
