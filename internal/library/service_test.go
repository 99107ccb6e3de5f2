package library

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lumapix/lumapix-cli/internal/cache"
	"github.com/lumapix/lumapix-cli/internal/logging"
	"github.com/lumapix/lumapix-cli/internal/models"
)

type fakeListingClient struct {
	mu          sync.Mutex
	folders     []models.Folder
	photos      map[string][]models.Photo
	folderCalls int
	photoCalls  int
	err         error
}

func (f *fakeListingClient) ListFolders(ctx context.Context) ([]models.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folderCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.folders, nil
}

func (f *fakeListingClient) ListFolderPhotos(ctx context.Context, folderID string) ([]models.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.photos[folderID], nil
}

func (f *fakeListingClient) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folderCalls, f.photoCalls
}

type recordingSeeder struct {
	mu     sync.Mutex
	seeded [][]models.Photo
}

func (r *recordingSeeder) Seed(photos []models.Photo) {
	r.mu.Lock()
	r.seeded = append(r.seeded, photos)
	r.mu.Unlock()
}

func (r *recordingSeeder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seeded)
}

func newTestService(client *fakeListingClient, seeder StatusSeeder) (*Service, *cache.Store) {
	store, _ := cache.NewStore("", nil)
	logger := logging.NewLogger(io.Discard)
	return NewService(client, store, seeder, logger), store
}

func TestFoldersCacheMissFetchesSynchronously(t *testing.T) {
	client := &fakeListingClient{folders: []models.Folder{{ID: "f1", Name: "Trips"}}}
	svc, store := newTestService(client, nil)
	defer store.Close()

	folders, stale, err := svc.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders failed: %v", err)
	}
	if stale {
		t.Error("Expected fresh result on cache miss")
	}
	if len(folders) != 1 || folders[0].ID != "f1" {
		t.Errorf("Unexpected folders: %+v", folders)
	}

	// The fetch populated the cache.
	if _, ok := store.Get("folders"); !ok {
		t.Error("Expected folder listing cached after fetch")
	}
}

func TestFoldersCacheHitServesImmediatelyAndRefreshes(t *testing.T) {
	client := &fakeListingClient{folders: []models.Folder{{ID: "f1"}}}
	svc, store := newTestService(client, nil)
	defer store.Close()

	// Warm the cache with a listing the backend no longer returns, to prove
	// the render comes from the cache.
	store.SetJSON("folders", []models.Folder{{ID: "old"}}, cache.KindFolders)

	folders, stale, err := svc.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders failed: %v", err)
	}
	if stale {
		t.Error("Expected fresh cache entry")
	}
	if len(folders) != 1 || folders[0].ID != "old" {
		t.Errorf("Expected cached listing, got %+v", folders)
	}

	// Background refresh runs regardless of freshness.
	waitFor(t, func() bool {
		fc, _ := client.calls()
		return fc == 1
	})
	waitFor(t, func() bool {
		var got []models.Folder
		_, ok := store.GetJSON("folders", &got)
		return ok && len(got) == 1 && got[0].ID == "f1"
	})
}

func TestFoldersStaleEntryStillServed(t *testing.T) {
	client := &fakeListingClient{folders: []models.Folder{{ID: "f1"}}}
	store, _ := cache.NewStore("", map[cache.Kind]time.Duration{
		cache.KindFolders: time.Nanosecond,
	})
	defer store.Close()
	svc := NewService(client, store, nil, logging.NewLogger(io.Discard))

	store.SetJSON("folders", []models.Folder{{ID: "old"}}, cache.KindFolders)
	time.Sleep(time.Millisecond)

	folders, stale, err := svc.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders failed: %v", err)
	}
	if !stale {
		t.Error("Expected stale flag for an expired entry")
	}
	if len(folders) != 1 || folders[0].ID != "old" {
		t.Errorf("Expected the stale listing served, got %+v", folders)
	}
}

func TestFoldersFetchErrorOnMiss(t *testing.T) {
	client := &fakeListingClient{err: errors.New("unreachable")}
	svc, store := newTestService(client, nil)
	defer store.Close()

	if _, _, err := svc.Folders(context.Background()); err == nil {
		t.Error("Expected error when the cache is empty and the fetch fails")
	}
}

func TestPhotosSeedsRegistry(t *testing.T) {
	client := &fakeListingClient{photos: map[string][]models.Photo{
		"f1": {{LocalID: "ph1", RemoteID: "r1", Status: models.StatusNotProcessed}},
	}}
	seeder := &recordingSeeder{}
	svc, store := newTestService(client, seeder)
	defer store.Close()

	photos, _, err := svc.Photos(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Photos failed: %v", err)
	}
	if len(photos) != 1 {
		t.Fatalf("Unexpected photos: %+v", photos)
	}
	if seeder.count() != 1 {
		t.Errorf("Expected one seed call, got %d", seeder.count())
	}
}

func TestPhotosCacheHitSeedsFromCache(t *testing.T) {
	client := &fakeListingClient{photos: map[string][]models.Photo{}}
	seeder := &recordingSeeder{}
	svc, store := newTestService(client, seeder)
	defer store.Close()

	store.SetJSON("photos/f1", []models.Photo{{LocalID: "ph1"}}, cache.KindPhotos)

	if _, _, err := svc.Photos(context.Background(), "f1"); err != nil {
		t.Fatalf("Photos failed: %v", err)
	}
	if seeder.count() < 1 {
		t.Error("Expected cached listing to seed the registry")
	}

	waitFor(t, func() bool {
		_, pc := client.calls()
		return pc == 1
	})
}

func TestSeedFromCacheReplaysPhotoListings(t *testing.T) {
	seeder := &recordingSeeder{}
	svc, store := newTestService(&fakeListingClient{}, seeder)
	defer store.Close()

	// Listings left behind by an earlier process.
	store.SetJSON("photos/f1", []models.Photo{{LocalID: "ph1", RemoteID: "r1"}}, cache.KindPhotos)
	store.SetJSON("photos/f2", []models.Photo{{LocalID: "ph2", RemoteID: "r2"}}, cache.KindPhotos)
	store.SetJSON("folders", []models.Folder{{ID: "f1"}}, cache.KindFolders)

	svc.SeedFromCache()

	if seeder.count() != 2 {
		t.Fatalf("Expected 2 photo listings replayed, got %d", seeder.count())
	}
	for _, photos := range seeder.seeded {
		if len(photos) != 1 {
			t.Errorf("Unexpected replayed listing: %+v", photos)
		}
	}
}

func TestSeedFromCacheNoSeeder(t *testing.T) {
	svc, store := newTestService(&fakeListingClient{}, nil)
	defer store.Close()

	store.SetJSON("photos/f1", []models.Photo{{LocalID: "ph1"}}, cache.KindPhotos)
	svc.SeedFromCache() // must not panic
}

func TestPhotosRequiresFolderID(t *testing.T) {
	svc, store := newTestService(&fakeListingClient{}, nil)
	defer store.Close()

	if _, _, err := svc.Photos(context.Background(), ""); err == nil {
		t.Error("Expected error for empty folder ID")
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}
