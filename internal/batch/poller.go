package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lumapix/lumapix-cli/internal/cache"
	"github.com/lumapix/lumapix-cli/internal/events"
)

// Attach starts the progress poller for job and returns immediately. Calling
// Attach a second time for the same job is a no-op, so at most one polling
// loop ever runs per job.
//
// The poller runs until the job reaches a terminal state: all items terminal
// (Completed), the wall-clock ceiling (TimedOut), or an observed cancel
// request (Cancelled). Exactly one terminal event is published per job.
func (o *Orchestrator) Attach(ctx context.Context, job *Job) {
	if job == nil || job.State().Terminal() {
		return
	}
	if !job.tryAttach() {
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx, job)
	}()
}

// run is the polling loop. One scheduled task per job; cancellation is a
// state flag checked at cycle start, never a timer teardown.
func (o *Orchestrator) run(ctx context.Context, job *Job) {
	logger := o.logger.With().Str("job_id", job.ID).Logger()

	// Let the backend register the batch before the first status sweep.
	if o.opts.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Poller stopped before first cycle")
			return
		case <-time.After(o.opts.InitialDelay):
		}
	}

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	lastCompleted := o.registry.Snapshot(job.Items).Completed

	for {
		// Cycle boundary. Cancellation is observed here and only here, and it
		// wins over the timeout when both are due in the same cycle.
		if job.State() == StateCancelling {
			o.finishCancelled(job)
			return
		}
		if time.Since(job.SubmittedAt) > o.opts.Timeout {
			o.finishTimedOut(job)
			return
		}

		counts, complete := o.pollCycle(ctx, job, &logger)
		if complete {
			newlyCompleted := counts.Completed > lastCompleted
			lastCompleted = counts.Completed

			o.publishBatch(events.EventBatchProgress, job, statusLine(counts, newlyCompleted))

			if counts.Terminal() == counts.Total {
				o.finishCompleted(job, counts)
				return
			}
		}

		select {
		case <-ctx.Done():
			logger.Debug().Msg("Poller stopped by context")
			return
		case <-ticker.C:
		}
	}
}

// pollCycle queries the status of every item in the job. Per-item results are
// applied to the registry as they arrive; the returned aggregate is only
// valid (complete=true) when every item was queried successfully, since the
// terminal check must see one consistent snapshot.
//
// Transport errors are swallowed for the cycle: logged, cycle marked
// incomplete, polling continues on the next tick.
func (o *Orchestrator) pollCycle(ctx context.Context, job *Job, logger *zerolog.Logger) (events.Counts, bool) {
	gen := job.Generation()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.FetchConcurrency)

	for _, localID := range job.Items {
		localID := localID
		item, ok := o.registry.Get(localID)
		if !ok || item.RemoteID == "" {
			continue
		}
		g.Go(func() error {
			status, err := o.backend.GetPhotoStatus(gctx, item.RemoteID)
			if err != nil {
				return err
			}
			if status.Status.Valid() {
				o.registry.Apply(gen, localID, status.Status, status.Result)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Debug().Err(err).Msg("Poll cycle failed; retrying next tick")
		return events.Counts{}, false
	}

	return o.registry.Snapshot(job.Items), true
}

func statusLine(c events.Counts, newlyCompleted bool) string {
	switch {
	case c.Processing > 0:
		return fmt.Sprintf("Analyzing photos: %d of %d done, %d in progress", c.Terminal(), c.Total, c.Processing)
	case newlyCompleted:
		return fmt.Sprintf("Completed %d of %d photos", c.Completed, c.Total)
	default:
		return fmt.Sprintf("Waiting on %d photos", c.Total-c.Terminal())
	}
}

// finishCompleted runs the terminal path: one library refresh trigger, cache
// invalidation, one completion event, active set cleared.
func (o *Orchestrator) finishCompleted(job *Job, counts events.Counts) {
	if !job.finalize(StateCompleted) {
		return
	}

	if o.cache != nil {
		o.cache.InvalidateKind(cache.KindStatus)
		o.cache.InvalidateKind(cache.KindPhotos)
		o.cache.InvalidateKind(cache.KindFolders)
	}
	if o.bus != nil {
		o.bus.Publish(&events.RefreshEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventLibraryRefresh, Time: time.Now()},
			JobID:     job.ID,
		})
	}

	message := fmt.Sprintf("Analysis complete: %d photos", counts.Completed)
	if counts.Failed > 0 {
		message = fmt.Sprintf("Analysis complete with errors: %d done, %d failed", counts.Completed, counts.Failed)
	}
	o.publishBatch(events.EventBatchCompleted, job, message)
	o.clearActive(job)

	o.logger.Info().
		Str("job_id", job.ID).
		Int("completed", counts.Completed).
		Int("failed", counts.Failed).
		Msg("Batch finished")
}

// finishTimedOut leaves non-terminal items in their last-observed status:
// their true state is unknown, so they are not forced to Failed.
func (o *Orchestrator) finishTimedOut(job *Job) {
	if !job.finalize(StateTimedOut) {
		return
	}
	o.publishBatch(events.EventBatchTimedOut, job,
		fmt.Sprintf("Analysis timed out after %s", o.opts.Timeout))
	o.clearActive(job)

	o.logger.Warn().Str("job_id", job.ID).Msg("Batch timed out")
}

// finishCancelled stops without a completion notification; cancelled and
// completed events are mutually exclusive.
func (o *Orchestrator) finishCancelled(job *Job) {
	if !job.finalize(StateCancelled) {
		return
	}
	o.publishBatch(events.EventBatchCancelled, job, "Analysis cancelled")
	o.clearActive(job)

	o.logger.Info().Str("job_id", job.ID).Msg("Batch cancelled")
}
