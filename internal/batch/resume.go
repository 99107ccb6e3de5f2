package batch

import (
	"context"
	"time"

	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/models"
)

// Resume asks the backend whether a batch is already in flight (surviving a
// client restart) and, if so, reconstructs the job and re-attaches the
// poller without re-submitting any work.
//
// Runs once, before any other orchestrator action. It never fails the
// application: if the status check errors, it logs and proceeds as idle.
// Nothing the client held before the restart is trusted; the in-flight set is
// rebuilt entirely from the backend response.
func (o *Orchestrator) Resume(ctx context.Context) *Job {
	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	status, err := o.backend.GetBatchStatus(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Batch status check failed at startup; assuming idle")
		return nil
	}
	if !status.InFlight || len(status.Outstanding) == 0 {
		o.logger.Debug().Msg("No batch in flight")
		return nil
	}

	processing := make(map[string]bool, len(status.Processing))
	for _, remoteID := range status.Processing {
		processing[remoteID] = true
	}

	gen := o.registry.BeginGeneration()

	// Map backend identifiers to local keys. An identifier with no local
	// record gets one, keyed by the identifier itself.
	localIDs := make([]string, 0, len(status.Outstanding))
	for _, remoteID := range status.Outstanding {
		localID, ok := o.registry.LocalIDForRemote(remoteID)
		if !ok {
			o.registry.EnsureItem(remoteID, remoteID)
			localID = remoteID
		}
		localIDs = append(localIDs, localID)

		st := models.StatusQueued
		if processing[remoteID] {
			st = models.StatusProcessing
		}
		o.registry.Apply(gen, localID, st, nil)
	}

	// The original submission time is not recoverable; the timeout ceiling is
	// measured from resume instead.
	job := newJob(localIDs, gen)
	job.SubmittedAt = time.Now()
	job.setState(StatePolling)

	o.mu.Lock()
	o.active = job
	o.mu.Unlock()

	o.logger.Info().
		Str("job_id", job.ID).
		Int("outstanding", len(localIDs)).
		Msg("Resumed tracking of in-flight batch")

	o.publishBatch(events.EventBatchStarted, job, "Resumed tracking of an in-flight batch")

	o.Attach(ctx, job)
	return job
}
