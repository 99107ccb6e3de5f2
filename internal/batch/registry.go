// Package batch implements the analysis batch orchestrator: submission,
// progress polling, cancellation and resume-after-restart.
package batch

import (
	"sync"
	"time"

	"github.com/lumapix/lumapix-cli/internal/events"
	"github.com/lumapix/lumapix-cli/internal/models"
)

// ItemState is the per-photo view held by the registry. It outlives any
// single batch: photos keep their last-known status between submissions.
type ItemState struct {
	LocalID        string
	RemoteID       string
	Status         models.PhotoStatus
	Result         *models.AnalysisResult
	LastObservedAt time.Time

	// gen is the generation of the last accepted batch write. Terminal
	// stickiness only holds within one generation; a later batch may queue
	// the item again.
	gen uint64
}

// ChangeFunc is called after an item's status changes, outside the registry
// lock. gen identifies the batch generation the change belongs to.
type ChangeFunc func(gen uint64, item ItemState)

// ItemRegistry is the single choke point for per-photo status mutations.
//
// Every write carries the batch generation it belongs to. A write whose
// generation is no longer the active one is discarded, so a stale poll result
// from a superseded batch can never clobber an optimistic write from the next
// submission. Within one generation, terminal statuses are sticky: a
// completed or failed item never goes back to processing.
type ItemRegistry struct {
	mu        sync.RWMutex
	items     map[string]*ItemState // keyed by local ID
	byRemote  map[string]string     // remote ID -> local ID
	activeGen uint64
	onChange  ChangeFunc
}

// NewItemRegistry creates an empty registry. onChange may be nil.
func NewItemRegistry(onChange ChangeFunc) *ItemRegistry {
	return &ItemRegistry{
		items:    make(map[string]*ItemState),
		byRemote: make(map[string]string),
		onChange: onChange,
	}
}

// Seed records photos discovered through library listings. Seeding never
// downgrades status the orchestrator owns during an active batch: if an item
// is currently Queued or Processing under the active generation, the listed
// status is ignored for that item.
func (r *ItemRegistry) Seed(photos []models.Photo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range photos {
		if p.LocalID == "" {
			continue
		}
		existing, ok := r.items[p.LocalID]
		if !ok {
			status := p.Status
			if !status.Valid() {
				status = models.StatusNotSynced
				if p.RemoteID != "" {
					status = models.StatusNotProcessed
				}
			}
			item := &ItemState{
				LocalID:        p.LocalID,
				RemoteID:       p.RemoteID,
				Status:         status,
				LastObservedAt: time.Now(),
			}
			r.items[p.LocalID] = item
			if p.RemoteID != "" {
				r.byRemote[p.RemoteID] = p.LocalID
			}
			continue
		}

		if p.RemoteID != "" && existing.RemoteID == "" {
			existing.RemoteID = p.RemoteID
			r.byRemote[p.RemoteID] = p.LocalID
		}
		// UI-owned while a batch is active: listings must not overwrite the
		// in-flight status.
		if existing.Status == models.StatusQueued || existing.Status == models.StatusProcessing {
			continue
		}
		if p.Status.Valid() {
			existing.Status = p.Status
			existing.LastObservedAt = time.Now()
		}
	}
}

// EnsureItem registers an item discovered outside a listing, e.g. a remote
// identifier returned by the resume endpoint that the client has no local
// record of. The remote ID doubles as the local key in that case.
func (r *ItemRegistry) EnsureItem(localID, remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[localID]; ok {
		return
	}
	r.items[localID] = &ItemState{
		LocalID:  localID,
		RemoteID: remoteID,
		Status:   models.StatusNotProcessed,
	}
	if remoteID != "" {
		r.byRemote[remoteID] = localID
	}
}

// Get returns a copy of the item's state.
func (r *ItemRegistry) Get(localID string) (ItemState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[localID]
	if !ok {
		return ItemState{}, false
	}
	return *item, true
}

// LocalIDForRemote resolves a backend identifier to the local key.
func (r *ItemRegistry) LocalIDForRemote(remoteID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	localID, ok := r.byRemote[remoteID]
	return localID, ok
}

// BeginGeneration starts a new batch generation and returns it. All writes
// tagged with earlier generations are discarded from this point on.
func (r *ItemRegistry) BeginGeneration() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeGen++
	return r.activeGen
}

// ActiveGeneration returns the current generation.
func (r *ItemRegistry) ActiveGeneration() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeGen
}

// Apply records a status observation for an item. It returns true when the
// write was accepted and changed the item.
//
// Discarded writes: unknown item, stale generation, or a transition that
// would move a terminal item back to a non-terminal status within the same
// generation.
func (r *ItemRegistry) Apply(gen uint64, localID string, status models.PhotoStatus, result *models.AnalysisResult) bool {
	r.mu.Lock()

	if gen != r.activeGen {
		r.mu.Unlock()
		return false
	}
	item, ok := r.items[localID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if item.gen == gen && item.Status.Terminal() && !status.Terminal() {
		r.mu.Unlock()
		return false
	}

	changed := item.Status != status
	item.Status = status
	item.gen = gen
	item.LastObservedAt = time.Now()
	if result != nil {
		item.Result = result
	}
	snapshot := *item
	onChange := r.onChange
	r.mu.Unlock()

	if changed && onChange != nil {
		onChange(gen, snapshot)
	}
	return changed
}

// Rollback restores prior statuses after a failed submission. It is a no-op
// when gen has already been superseded. Restored items go through the same
// change hook as Apply writes.
func (r *ItemRegistry) Rollback(gen uint64, prior map[string]models.PhotoStatus) {
	r.mu.Lock()

	if gen != r.activeGen {
		r.mu.Unlock()
		return
	}
	var changed []ItemState
	for localID, status := range prior {
		item, ok := r.items[localID]
		if !ok || item.Status == status {
			continue
		}
		item.Status = status
		item.LastObservedAt = time.Now()
		changed = append(changed, *item)
	}
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		for _, item := range changed {
			onChange(gen, item)
		}
	}
}

// RevertQueued moves items of the given generation that are still Queued back
// to NotProcessed. Used to mirror a server-side clear-queue. Reverted items go
// through the same change hook as Apply writes.
// Returns the local IDs reverted.
func (r *ItemRegistry) RevertQueued(gen uint64, localIDs []string) []string {
	r.mu.Lock()

	if gen != r.activeGen {
		r.mu.Unlock()
		return nil
	}
	var reverted []string
	var changed []ItemState
	for _, localID := range localIDs {
		if item, ok := r.items[localID]; ok && item.Status == models.StatusQueued {
			item.Status = models.StatusNotProcessed
			item.LastObservedAt = time.Now()
			reverted = append(reverted, localID)
			changed = append(changed, *item)
		}
	}
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		for _, item := range changed {
			onChange(gen, item)
		}
	}
	return reverted
}

// Snapshot aggregates current statuses across the given local IDs.
func (r *ItemRegistry) Snapshot(localIDs []string) events.Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := events.Counts{Total: len(localIDs)}
	for _, localID := range localIDs {
		item, ok := r.items[localID]
		if !ok {
			continue
		}
		switch item.Status {
		case models.StatusQueued:
			counts.Queued++
		case models.StatusProcessing:
			counts.Processing++
		case models.StatusCompleted:
			counts.Completed++
		case models.StatusFailed:
			counts.Failed++
		}
	}
	return counts
}
