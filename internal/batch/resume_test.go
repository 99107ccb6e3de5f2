package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/models"
)

func TestResumeIdleBackend(t *testing.T) {
	backend := newFakeBackend()
	orch, _, bus := newTestOrchestrator(backend, nil, Options{})
	defer bus.Close()

	if job := orch.Resume(context.Background()); job != nil {
		t.Errorf("Expected no job when backend is idle, got %v", job.ID)
	}
}

func TestResumeStatusErrorAssumesIdle(t *testing.T) {
	backend := newFakeBackend()
	backend.batchStatusErr = errors.New("unreachable")
	orch, _, bus := newTestOrchestrator(backend, nil, Options{})
	defer bus.Close()

	if job := orch.Resume(context.Background()); job != nil {
		t.Error("Expected failed status check to resolve to idle")
	}
	if orch.Active() != nil {
		t.Error("Expected no active job after failed status check")
	}
}

func TestResumeRebuildsFromBackend(t *testing.T) {
	backend := newFakeBackend()
	backend.batchStatus = models.BatchStatusResponse{
		InFlight:    true,
		BatchID:     "batch-9",
		Outstanding: []string{"r1", "r2", "r3"},
		Processing:  []string{"r2"},
	}
	backend.setStatus("r1", models.StatusQueued)
	backend.setStatus("r2", models.StatusProcessing)
	backend.setStatus("r3", models.StatusQueued)

	orch, registry, bus := newTestOrchestrator(backend, nil, Options{
		InitialDelay: 100 * time.Millisecond,
	})
	defer bus.Close()

	// r1 and r2 are known locally; r3 is not and gets an identity-keyed
	// record.
	seedSynced(registry, "1", "2")

	sub := bus.SubscribeAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := orch.Resume(ctx)
	if job == nil {
		t.Fatal("Expected resumed job")
	}
	if len(job.Items) != 3 {
		t.Fatalf("Expected 3 tracked items, got %d", len(job.Items))
	}
	if job.State() != StatePolling {
		t.Errorf("Expected polling state, got %s", job.State())
	}

	if item, _ := registry.Get("ph1"); item.Status != models.StatusQueued {
		t.Errorf("Expected ph1 queued, got %s", item.Status)
	}
	if item, _ := registry.Get("ph2"); item.Status != models.StatusProcessing {
		t.Errorf("Expected ph2 processing, got %s", item.Status)
	}
	item, ok := registry.Get("r3")
	if !ok {
		t.Fatal("Expected identity-keyed record for unknown remote ID r3")
	}
	if item.RemoteID != "r3" || item.Status != models.StatusQueued {
		t.Errorf("Unexpected r3 record: %+v", item)
	}

	started := waitBatchEvent(t, sub, events.EventBatchStarted)
	if started.Counts.Total != 3 {
		t.Errorf("Expected 3 total in resume event, got %d", started.Counts.Total)
	}

	cancel()
	orch.Wait()
}

func TestResumeRunsToCompletion(t *testing.T) {
	backend := newFakeBackend()
	backend.batchStatus = models.BatchStatusResponse{
		InFlight:    true,
		Outstanding: []string{"r1"},
	}
	backend.setStatus("r1", models.StatusCompleted)

	orch, registry, bus := newTestOrchestrator(backend, nil, Options{})
	defer bus.Close()

	seedSynced(registry, "1")
	sub := bus.SubscribeAll()

	job := orch.Resume(context.Background())
	if job == nil {
		t.Fatal("Expected resumed job")
	}

	waitBatchEvent(t, sub, events.EventBatchCompleted)
	orch.Wait()

	if job.State() != StateCompleted {
		t.Errorf("Expected completed state, got %s", job.State())
	}
}

func TestResumeNoOpWhenActive(t *testing.T) {
	backend := newFakeBackend()
	backend.setStatus("r1", models.StatusProcessing)
	backend.batchStatus = models.BatchStatusResponse{
		InFlight:    true,
		Outstanding: []string{"r1"},
	}
	orch, registry, bus := newTestOrchestrator(backend, nil, Options{})
	defer bus.Close()

	seedSynced(registry, "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := orch.Submit(ctx, []string{"ph1"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job := orch.Resume(ctx); job != nil {
		t.Error("Expected Resume to be a no-op while a job is tracked")
	}

	cancel()
	orch.Wait()
}

func TestResumeTimeoutMeasuredFromResume(t *testing.T) {
	backend := newFakeBackend()
	backend.batchStatus = models.BatchStatusResponse{
		InFlight:    true,
		Outstanding: []string{"r1"},
	}
	backend.setStatus("r1", models.StatusProcessing)

	orch, registry, bus := newTestOrchestrator(backend, nil, Options{Timeout: time.Hour})
	defer bus.Close()

	seedSynced(registry, "1")

	before := time.Now()
	job := orch.Resume(context.Background())
	if job == nil {
		t.Fatal("Expected resumed job")
	}
	if job.SubmittedAt.Before(before) {
		t.Error("Expected the timeout clock to restart at resume")
	}

	if err := orch.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	orch.Wait()
}
