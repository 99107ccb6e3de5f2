// Package library serves folder and photo listings through the TTL cache,
// using the stale-while-revalidate pattern: whatever the cache holds is
// returned immediately, and a background fetch refreshes it regardless of
// freshness.
package library

import (
	"context"
	"fmt"
	"time"

	"github.com/lumapix/lumapix-cli/internal/cache"
	"github.com/lumapix/lumapix-cli/internal/logging"
	"github.com/lumapix/lumapix-cli/internal/models"
)

const (
	foldersKey      = "folders"
	photosKeyPrefix = "photos/"

	refreshTimeout = 30 * time.Second
)

// ListingClient is the subset of the API client the service needs.
type ListingClient interface {
	ListFolders(ctx context.Context) ([]models.Folder, error)
	ListFolderPhotos(ctx context.Context, folderID string) ([]models.Photo, error)
}

// StatusSeeder receives photos from fresh listings so per-item processing
// state stays known. Implemented by batch.ItemRegistry.
type StatusSeeder interface {
	Seed(photos []models.Photo)
}

// Service lists folders and photos with cache-backed instant renders.
type Service struct {
	client ListingClient
	cache  *cache.Store
	seeder StatusSeeder // may be nil
	logger *logging.Logger
}

// NewService creates a listing service. seeder may be nil.
func NewService(client ListingClient, store *cache.Store, seeder StatusSeeder, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		client: client,
		cache:  store,
		seeder: seeder,
		logger: logger,
	}
}

// Folders returns the folder listing. When the cache holds an entry, fresh or
// stale, it is returned immediately and a background refresh is started; the
// stale flag tells the caller what it got. A cache miss fetches
// synchronously.
func (s *Service) Folders(ctx context.Context) ([]models.Folder, bool, error) {
	var cached []models.Folder
	if stale, ok := s.cache.GetJSON(foldersKey, &cached); ok {
		go s.refreshFolders()
		return cached, stale, nil
	}

	folders, err := s.fetchFolders(ctx)
	if err != nil {
		return nil, false, err
	}
	return folders, false, nil
}

// Photos returns the photo listing of a folder, same contract as Folders.
func (s *Service) Photos(ctx context.Context, folderID string) ([]models.Photo, bool, error) {
	if folderID == "" {
		return nil, false, fmt.Errorf("folder ID is required")
	}

	key := photosKeyPrefix + folderID
	var cached []models.Photo
	if stale, ok := s.cache.GetJSON(key, &cached); ok {
		if s.seeder != nil {
			s.seeder.Seed(cached)
		}
		go s.refreshPhotos(folderID)
		return cached, stale, nil
	}

	photos, err := s.fetchPhotos(ctx, folderID)
	if err != nil {
		return nil, false, err
	}
	return photos, false, nil
}

// SeedFromCache replays every cached photo listing, fresh or stale, into the
// status seeder. A new process starts with an empty registry; without this
// replay, photos listed in earlier runs would be unknown until their folder
// is listed again.
func (s *Service) SeedFromCache() {
	if s.seeder == nil {
		return
	}
	for _, key := range s.cache.KeysOfKind(cache.KindPhotos) {
		var photos []models.Photo
		if _, ok := s.cache.GetJSON(key, &photos); ok {
			s.seeder.Seed(photos)
		}
	}
}

func (s *Service) fetchFolders(ctx context.Context) ([]models.Folder, error) {
	folders, err := s.client.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	if err := s.cache.SetJSON(foldersKey, folders, cache.KindFolders); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache folder listing")
	}
	return folders, nil
}

func (s *Service) fetchPhotos(ctx context.Context, folderID string) ([]models.Photo, error) {
	photos, err := s.client.ListFolderPhotos(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	if s.seeder != nil {
		s.seeder.Seed(photos)
	}
	if err := s.cache.SetJSON(photosKeyPrefix+folderID, photos, cache.KindPhotos); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache photo listing")
	}
	return photos, nil
}

// refreshFolders is the background half of stale-while-revalidate. Failures
// only log: the caller already has a rendered listing.
func (s *Service) refreshFolders() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, err := s.fetchFolders(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("Background folder refresh failed")
	}
}

func (s *Service) refreshPhotos(folderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, err := s.fetchPhotos(ctx, folderID); err != nil {
		s.logger.Debug().Err(err).Str("folder_id", folderID).Msg("Background photo refresh failed")
	}
}
