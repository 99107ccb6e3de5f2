package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumapix/lumapix-cli/internal/cache"
	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/logging"
	"github.com/lumapix/lumapix-cli/internal/models"
)

// Submission errors. All are local and synchronous: no network call was made.
var (
	ErrEmptySelection  = errors.New("no photos selected")
	ErrNoEligibleItems = errors.New("none of the selected photos are synced for analysis")
	ErrBatchActive     = errors.New("a batch is already being tracked")
	ErrNoActiveBatch   = errors.New("no batch is being tracked")
)

// Backend is the subset of the API client the orchestrator needs. The
// concrete implementation is api.Client; tests substitute a fake.
type Backend interface {
	StartBatch(ctx context.Context, req models.StartBatchRequest) (*models.StartBatchResponse, error)
	GetPhotoStatus(ctx context.Context, photoID string) (*models.PhotoStatusResponse, error)
	GetBatchStatus(ctx context.Context) (*models.BatchStatusResponse, error)
	CancelBatch(ctx context.Context) error
	ClearQueue(ctx context.Context) error
}

// Options tunes the poller. Zero values fall back to defaults.
type Options struct {
	// PollInterval is the fixed poll cadence. Default 1s.
	PollInterval time.Duration

	// InitialDelay is the wait before the first cycle, giving the backend
	// time to register the batch. Default 2s.
	InitialDelay time.Duration

	// Timeout is the wall-clock ceiling measured from SubmittedAt (from
	// resume time for resumed jobs). Default 10m.
	Timeout time.Duration

	// FetchConcurrency bounds the per-cycle status fan-out. Default 4.
	FetchConcurrency int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 1 * time.Second
	}
	if o.InitialDelay < 0 {
		o.InitialDelay = 0
	} else if o.InitialDelay == 0 {
		o.InitialDelay = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
	return o
}

// Orchestrator owns batch submission, the progress poller, cancellation and
// resume. At most one job is tracked at a time; submission while one is
// active is rejected, never merged.
type Orchestrator struct {
	backend  Backend
	registry *ItemRegistry
	bus      *events.EventBus
	cache    *cache.Store // may be nil
	logger   *logging.Logger
	opts     Options
	selector models.ProviderSelector

	mu     sync.Mutex
	active *Job

	wg sync.WaitGroup
}

// New creates an orchestrator. cache may be nil when no listing cache is in
// use (e.g. tests).
func New(backend Backend, registry *ItemRegistry, bus *events.EventBus, store *cache.Store, logger *logging.Logger, selector models.ProviderSelector, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Orchestrator{
		backend:  backend,
		registry: registry,
		bus:      bus,
		cache:    store,
		logger:   logger,
		opts:     opts.withDefaults(),
		selector: selector,
	}
}

// Registry returns the item registry the orchestrator mutates through.
func (o *Orchestrator) Registry() *ItemRegistry {
	return o.registry
}

// Active returns the currently tracked job, or nil.
func (o *Orchestrator) Active() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Submit submits the given local photo IDs for analysis.
//
// Either every eligible item ends up Queued with a poller attached, or the
// whole submission rolls back and an error is returned. Exactly one
// "batch started" event is published on success.
func (o *Orchestrator) Submit(ctx context.Context, localIDs []string) (*Job, error) {
	if len(localIDs) == 0 {
		return nil, ErrEmptySelection
	}

	o.mu.Lock()
	if o.active != nil && !o.active.State().Terminal() {
		o.mu.Unlock()
		return nil, ErrBatchActive
	}

	// Filter out items without a confirmed remote-sync identifier.
	var eligible []string
	var remoteIDs []string
	prior := make(map[string]models.PhotoStatus)
	for _, localID := range localIDs {
		item, ok := o.registry.Get(localID)
		if !ok || item.RemoteID == "" || item.Status == models.StatusNotSynced {
			continue
		}
		eligible = append(eligible, localID)
		remoteIDs = append(remoteIDs, item.RemoteID)
		prior[localID] = item.Status
	}
	if len(eligible) == 0 {
		o.mu.Unlock()
		return nil, ErrNoEligibleItems
	}

	gen := o.registry.BeginGeneration()
	job := newJob(eligible, gen)
	job.setState(StateSubmitting)
	o.active = job
	o.mu.Unlock()

	// Optimistic: the UI reflects intent before the network call returns.
	for _, localID := range eligible {
		o.registry.Apply(gen, localID, models.StatusQueued, nil)
	}

	req := models.StartBatchRequest{
		PhotoIDs: remoteIDs,
		Selector: o.selector,
	}
	if _, err := o.backend.StartBatch(ctx, req); err != nil {
		o.registry.Rollback(gen, prior)
		job.setState(StateFailed)
		o.publishBatch(events.EventBatchError, job,
			fmt.Sprintf("Batch submission failed: %v", err))
		o.clearActive(job)
		return nil, fmt.Errorf("batch submission failed: %w", err)
	}

	job.setState(StatePolling)
	o.publishBatch(events.EventBatchStarted, job,
		fmt.Sprintf("Analyzing %d photos", len(eligible)))

	o.Attach(ctx, job)
	return job, nil
}

// Cancel requests cooperative cancellation of the tracked job. The poller
// observes it at its next cycle boundary. The backend cancel request is
// best-effort: a transport failure does not undo the local Cancelling state.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	job := o.Active()
	if job == nil || job.State().Terminal() {
		return ErrNoActiveBatch
	}

	if !job.RequestCancel() {
		return ErrNoActiveBatch
	}

	if err := o.backend.CancelBatch(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("Backend cancel request failed; local cancellation proceeds")
	}
	return nil
}

// ClearQueue clears queued-but-not-started work server-side and mirrors it
// locally: tracked items still Queued revert to NotProcessed.
func (o *Orchestrator) ClearQueue(ctx context.Context) error {
	if err := o.backend.ClearQueue(ctx); err != nil {
		return fmt.Errorf("clear queue failed: %w", err)
	}

	if job := o.Active(); job != nil && !job.State().Terminal() {
		reverted := o.registry.RevertQueued(job.Generation(), job.Items)
		if len(reverted) > 0 {
			o.logger.Info().Int("count", len(reverted)).Msg("Cleared queued photos")
		}
	}
	return nil
}

// Wait blocks until any running poller has exited. Intended for command-line
// hosts that must not exit mid-cycle, and for tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// clearActive drops the job from the active slot if it still occupies it.
func (o *Orchestrator) clearActive(job *Job) {
	o.mu.Lock()
	if o.active == job {
		o.active = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) publishBatch(t events.EventType, job *Job, message string) {
	if o.bus == nil {
		return
	}
	counts := o.registry.Snapshot(job.Items)
	o.bus.Publish(&events.BatchEvent{
		BaseEvent: events.BaseEvent{EventType: t, Time: time.Now()},
		JobID:     job.ID,
		Message:   message,
		Counts:    counts,
	})
}

// PublishItemChange is the registry change hook: it forwards per-item status
// changes to the bus as they are observed, independent of the aggregate
// cycle.
func (o *Orchestrator) PublishItemChange(gen uint64, item ItemState) {
	if o.bus == nil {
		return
	}
	var jobID string
	if job := o.Active(); job != nil && job.Generation() == gen {
		jobID = job.ID
	}
	o.bus.Publish(&events.ItemEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventItemUpdated, Time: time.Now()},
		JobID:     jobID,
		ItemID:    item.LocalID,
		Status:    string(item.Status),
	})
}
