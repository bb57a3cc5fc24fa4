// Package session keeps the transport-side state of the validator: loaded
// reference spreadsheets and in-flight or finished validation runs.
//
// The core orchestrator is stateless. The Manager gives each loaded dataset
// and each run an id so HTTP clients can refer to them across requests,
// fans progress events out to subscribers and retains finished reports for a
// while.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

var (
	// ErrReferenceNotFound is returned for an unknown or expired reference id.
	ErrReferenceNotFound = errors.New("reference not found")

	// ErrRunNotFound is returned for an unknown or purged run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotFinished is returned when a report is requested too early.
	ErrRunNotFinished = errors.New("run not finished")
)

// Defaults used when Config leaves a field zero.
const (
	DefaultReferenceTTL    = 2 * time.Hour
	DefaultResultRetention = 30 * time.Minute
	DefaultRunTimeout      = 5 * time.Minute
)

// ReferenceLoader builds a reference dataset from a spreadsheet source.
// *sheet.Loader is the production implementation.
type ReferenceLoader interface {
	Load(ctx context.Context, source string) (*core.ReferenceDataset, error)
}

// BatchRunner validates one batch. *core.Orchestrator is the production
// implementation.
type BatchRunner interface {
	CheckBatch(locators []string) error
	Run(ctx context.Context, ref *core.ReferenceDataset, locators []string, progress core.ProgressFunc) (*core.BatchReport, error)
}

// Config controls retention and run limits.
type Config struct {
	ReferenceTTL      time.Duration
	ResultRetention   time.Duration
	RunTimeout        time.Duration
	MaxConcurrentRuns int
	MaxWaitTime       time.Duration
}

// ReferenceInfo describes a loaded reference dataset.
type ReferenceInfo struct {
	ID        string                `json:"reference_id"`
	Source    string                `json:"source"`
	Summary   core.ReferenceSummary `json:"summary"`
	LoadedAt  time.Time             `json:"loaded_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

type referenceEntry struct {
	info ReferenceInfo
	data *core.ReferenceDataset
}

// RunStatus is a point-in-time view of a run.
type RunStatus struct {
	RunID       string     `json:"run_id"`
	ReferenceID string     `json:"reference_id"`
	Phase       core.Phase `json:"phase"`
	Locators    []string   `json:"document_urls"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at,omitzero"`
	Error       string     `json:"error,omitempty"`
}

// Percent returns the completed share of the run (0-100).
func (s RunStatus) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return s.Completed * 100 / s.Total
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	status    RunStatus
	report    *core.BatchReport
	err       error
	events    []core.Event
	listeners []chan core.Event
}

// Manager owns references and runs. It is safe for concurrent use.
type Manager struct {
	loader  ReferenceLoader
	runner  BatchRunner
	cfg     Config
	limiter *RunLimiter
	clock   core.Clock
	logger  *slog.Logger

	mu         sync.RWMutex
	references map[string]*referenceEntry
	runs       map[string]*activeRun
}

// NewManager creates a manager. logger may be nil.
func NewManager(loader ReferenceLoader, runner BatchRunner, cfg Config, logger *slog.Logger) *Manager {
	if cfg.ReferenceTTL <= 0 {
		cfg.ReferenceTTL = DefaultReferenceTTL
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = DefaultResultRetention
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		loader:     loader,
		runner:     runner,
		cfg:        cfg,
		limiter:    NewRunLimiter(cfg.MaxConcurrentRuns, cfg.MaxWaitTime),
		clock:      time.Now,
		logger:     logger,
		references: make(map[string]*referenceEntry),
		runs:       make(map[string]*activeRun),
	}
}

// LoadReference loads a spreadsheet and registers it under a new id.
func (m *Manager) LoadReference(ctx context.Context, source string) (ReferenceInfo, error) {
	data, err := m.loader.Load(ctx, source)
	if err != nil {
		return ReferenceInfo{}, err
	}

	now := m.clock()
	info := ReferenceInfo{
		ID:        uuid.New().String(),
		Source:    redact(source),
		Summary:   data.Summary(),
		LoadedAt:  now,
		ExpiresAt: now.Add(m.cfg.ReferenceTTL),
	}

	m.mu.Lock()
	m.references[info.ID] = &referenceEntry{info: info, data: data}
	m.mu.Unlock()

	m.logger.Info("reference registered", "reference_id", info.ID)
	return info, nil
}

// redact drops query and fragment from URL sources so tokens in published
// sheet links are not echoed back to clients.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return source
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// Reference returns a loaded dataset and its description.
func (m *Manager) Reference(id string) (*core.ReferenceDataset, ReferenceInfo, error) {
	m.mu.RLock()
	entry, ok := m.references[id]
	m.mu.RUnlock()

	if !ok || !m.clock().Before(entry.info.ExpiresAt) {
		return nil, ReferenceInfo{}, fmt.Errorf("%w: %s", ErrReferenceNotFound, id)
	}
	return entry.data, entry.info, nil
}

// References lists loaded datasets, newest first.
func (m *Manager) References() []ReferenceInfo {
	m.mu.RLock()
	out := make([]ReferenceInfo, 0, len(m.references))
	for _, e := range m.references {
		out = append(out, e.info)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LoadedAt.After(out[j].LoadedAt) })
	return out
}

// StartRun validates the batch size, takes a run slot and starts the batch in
// the background. Returns the run id immediately.
func (m *Manager) StartRun(ctx context.Context, referenceID string, locators []string) (string, error) {
	ref, _, err := m.Reference(referenceID)
	if err != nil {
		return "", err
	}
	if err := m.runner.CheckBatch(locators); err != nil {
		return "", err
	}
	if err := m.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), m.cfg.RunTimeout)

	run := &activeRun{
		id:     runID,
		cancel: cancel,
		done:   make(chan struct{}),
		status: RunStatus{
			RunID:       runID,
			ReferenceID: referenceID,
			Phase:       core.PhaseIdle,
			Locators:    append([]string(nil), locators...),
			Total:       len(locators),
			StartedAt:   m.clock(),
		},
	}

	m.mu.Lock()
	m.runs[runID] = run
	m.mu.Unlock()

	logger := m.logger.With("run_id", runID, "reference_id", referenceID)
	logger.Info("run started", "documents", len(locators))

	go func() {
		defer m.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in run", "panic", r)
				m.finish(run, nil, fmt.Errorf("internal error: %v", r))
			}
		}()

		report, err := m.runner.Run(runCtx, ref, run.status.Locators, run.record)
		m.finish(run, report, err)
	}()

	return runID, nil
}

// record stores an event and forwards it to subscribers. The orchestrator
// calls it serially.
func (r *activeRun) record(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Phase = ev.Phase
	r.status.Completed = ev.Completed
	r.events = append(r.events, ev)

	for _, ch := range r.listeners {
		select {
		case ch <- ev:
		default:
			// Buffers are sized for a whole run; a full one means the
			// subscriber stopped reading.
		}
	}
}

func (m *Manager) finish(run *activeRun, report *core.BatchReport, err error) {
	run.mu.Lock()
	select {
	case <-run.done:
		run.mu.Unlock()
		return
	default:
	}

	run.report = report
	run.err = err
	run.status.FinishedAt = m.clock()
	switch {
	case err == nil:
		run.status.Phase = core.PhaseCompleted
	default:
		run.status.Phase = core.PhaseCancelled
		run.status.Error = err.Error()
	}

	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
	close(run.done)
	status := run.status
	run.mu.Unlock()

	m.logger.Info("run finished",
		"run_id", run.id,
		"phase", status.Phase,
		"duration_ms", status.FinishedAt.Sub(status.StartedAt).Milliseconds(),
	)
}

func (m *Manager) lookupRun(runID string) (*activeRun, error) {
	m.mu.RLock()
	run, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// SubscribeProgress returns a channel that first replays the run's events so
// far and then receives new ones. It is closed when the run ends.
func (m *Manager) SubscribeProgress(runID string) (<-chan core.Event, error) {
	run, err := m.lookupRun(runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	// Room for every event of the run: started, one per document, terminal.
	ch := make(chan core.Event, run.status.Total+2)
	for _, ev := range run.events {
		ch <- ev
	}

	select {
	case <-run.done:
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
	}
	return ch, nil
}

// CancelRun stops a run. Cancelling a finished run is a no-op.
func (m *Manager) CancelRun(runID string) error {
	run, err := m.lookupRun(runID)
	if err != nil {
		return err
	}
	run.cancel()
	m.logger.Info("run cancel requested", "run_id", runID)
	return nil
}

// Report blocks until the run ends and returns its report. A cancelled run
// returns an error wrapping core.ErrCancelledBatch.
func (m *Manager) Report(ctx context.Context, runID string) (*core.BatchReport, error) {
	run, err := m.lookupRun(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.report, run.err
}

// Result returns the report of a finished run without waiting.
func (m *Manager) Result(runID string) (*core.BatchReport, error) {
	run, err := m.lookupRun(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.done:
	default:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFinished, runID)
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.report, run.err
}

// Status returns the run's current status.
func (m *Manager) Status(runID string) (RunStatus, error) {
	run, err := m.lookupRun(runID)
	if err != nil {
		return RunStatus{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.status, nil
}

// Runs lists every tracked run, newest first.
func (m *Manager) Runs() []RunStatus {
	m.mu.RLock()
	runs := make([]*activeRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	out := make([]RunStatus, 0, len(runs))
	for _, r := range runs {
		r.mu.Lock()
		out = append(out, r.status)
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// LimiterStatus reports run slot usage.
func (m *Manager) LimiterStatus() LimiterStatus {
	return m.limiter.Status()
}

// WaitForRuns blocks until every active run has finished or ctx ends.
func (m *Manager) WaitForRuns(ctx context.Context) error {
	return m.limiter.WaitForDrain(ctx)
}

// CancelAll cancels every run still in progress.
func (m *Manager) CancelAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		r.cancel()
	}
}

// PurgeExpired drops expired references and finished runs past retention.
func (m *Manager) PurgeExpired() (references, runs int) {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.references {
		if !now.Before(e.info.ExpiresAt) {
			delete(m.references, id)
			references++
		}
	}
	for id, r := range m.runs {
		r.mu.Lock()
		finished := r.status.Phase.Terminal() && !r.status.FinishedAt.IsZero()
		expired := finished && now.Sub(r.status.FinishedAt) >= m.cfg.ResultRetention
		r.mu.Unlock()
		if expired {
			delete(m.runs, id)
			runs++
		}
	}
	return references, runs
}
