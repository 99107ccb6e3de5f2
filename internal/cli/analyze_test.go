package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumapix/lumapix-cli/internal/api"
	"github.com/lumapix/lumapix-cli/internal/batch"
	"github.com/lumapix/lumapix-cli/internal/cache"
	"github.com/lumapix/lumapix-cli/internal/config"
	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/library"
	"github.com/lumapix/lumapix-cli/internal/logging"
	"github.com/lumapix/lumapix-cli/internal/models"
)

// fakeServer scripts the backend endpoints the analyze flow touches. Photos
// submitted through the start endpoint flip to completed so the poller
// finishes quickly.
type fakeServer struct {
	mu         sync.Mutex
	statuses   map[string]models.PhotoStatus
	startCalls int
	lastStart  models.StartBatchRequest
}

func newFakeServer() *fakeServer {
	return &fakeServer{statuses: make(map[string]models.PhotoStatus)}
}

func (f *fakeServer) setStatus(photoID string, status models.PhotoStatus) {
	f.mu.Lock()
	f.statuses[photoID] = status
	f.mu.Unlock()
}

func (f *fakeServer) starts() (int, models.StartBatchRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.lastStart
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/batch/status/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.BatchStatusResponse{InFlight: false})
	})
	mux.HandleFunc("/api/v1/batch/start/", func(w http.ResponseWriter, r *http.Request) {
		var req models.StartBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.startCalls++
		f.lastStart = req
		for _, id := range req.PhotoIDs {
			f.statuses[id] = models.StatusCompleted
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(models.StartBatchResponse{Accepted: true, BatchID: "b1"})
	})
	mux.HandleFunc("/api/v1/photos/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/photos/"), "/status/")
		f.mu.Lock()
		status, ok := f.statuses[id]
		f.mu.Unlock()
		if !ok {
			http.Error(w, "photo not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(models.PhotoStatusResponse{PhotoID: id, Status: status})
	})
	return mux
}

// newTestApp wires a complete App against the fake server, the same way
// newApp does for a real invocation.
func newTestApp(t *testing.T, f *fakeServer) *App {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)

	cfg := &config.Config{
		APIBaseURL: server.URL,
		APIKey:     "test-key",
		ProxyMode:  "no-proxy",
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	bus := events.NewEventBus(64)
	store, _ := cache.NewStore("", nil)
	logger := logging.NewLogger(io.Discard)

	var orch *batch.Orchestrator
	registry := batch.NewItemRegistry(func(gen uint64, item batch.ItemState) {
		if orch != nil {
			orch.PublishItemChange(gen, item)
		}
	})
	orch = batch.New(client, registry, bus, store, logger, models.ProviderSelector{Provider: "openai"}, batch.Options{
		PollInterval: 5 * time.Millisecond,
		InitialDelay: -1,
	})

	lib := library.NewService(client, store, registry, logger)
	lib.SeedFromCache()

	app := &App{
		Config:       cfg,
		Client:       client,
		Bus:          bus,
		Cache:        store,
		Registry:     registry,
		Orchestrator: orch,
		Library:      lib,
	}
	t.Cleanup(app.Close)
	return app
}

func TestExplicitPhotoSelectionUnknownLocally(t *testing.T) {
	f := newFakeServer()
	f.setStatus("ph1", models.StatusNotProcessed)
	f.setStatus("ph2", models.StatusNotProcessed)
	app := newTestApp(t, f)
	ctx := context.Background()

	// A fresh process has never listed these photos; without resolving them
	// against the backend the submission has nothing eligible.
	if _, err := app.Orchestrator.Submit(ctx, []string{"ph1", "ph2"}); !errors.Is(err, batch.ErrNoEligibleItems) {
		t.Fatalf("Expected ErrNoEligibleItems before resolution, got %v", err)
	}

	resolvePhotos(ctx, app, []string{"ph1", "ph2"})

	job, err := app.Orchestrator.Submit(ctx, []string{"ph1", "ph2"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(job.Items) != 2 {
		t.Errorf("Expected both photos submitted, got %v", job.Items)
	}
	app.Orchestrator.Wait()

	calls, last := f.starts()
	if calls != 1 {
		t.Errorf("Expected exactly one start request, got %d", calls)
	}
	if len(last.PhotoIDs) != 2 {
		t.Errorf("Expected both photo IDs in the start request, got %v", last.PhotoIDs)
	}
	if item, _ := app.Registry.Get("ph1"); item.Status != models.StatusCompleted {
		t.Errorf("Expected ph1 completed after polling, got %s", item.Status)
	}
}

func TestExplicitPhotoSelectionSkipsUnknownRemote(t *testing.T) {
	f := newFakeServer()
	f.setStatus("ph1", models.StatusNotProcessed)
	app := newTestApp(t, f)
	ctx := context.Background()

	// "ghost" 404s on lookup; the rest of the selection still goes through.
	resolvePhotos(ctx, app, []string{"ph1", "ghost"})

	job, err := app.Orchestrator.Submit(ctx, []string{"ph1", "ghost"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(job.Items) != 1 || job.Items[0] != "ph1" {
		t.Errorf("Expected only ph1 submitted, got %v", job.Items)
	}
	app.Orchestrator.Wait()
}

func TestCachedListingsMakePhotosEligible(t *testing.T) {
	f := newFakeServer()
	f.setStatus("r1", models.StatusNotProcessed)
	app := newTestApp(t, f)
	ctx := context.Background()

	// A listing cached by an earlier run; no listing happens in this one.
	app.Cache.SetJSON("photos/f1", []models.Photo{
		{LocalID: "ph1", RemoteID: "r1", Status: models.StatusNotProcessed},
	}, cache.KindPhotos)
	app.Library.SeedFromCache()

	job, err := app.Orchestrator.Submit(ctx, []string{"ph1"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(job.Items) != 1 {
		t.Errorf("Expected ph1 submitted, got %v", job.Items)
	}
	app.Orchestrator.Wait()

	_, last := f.starts()
	if len(last.PhotoIDs) != 1 || last.PhotoIDs[0] != "r1" {
		t.Errorf("Expected start request for r1, got %v", last.PhotoIDs)
	}
}
