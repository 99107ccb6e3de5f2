// Package models defines data structures shared between the API client,
// the batch orchestrator and the CLI.
package models

import "time"

// PhotoStatus is the processing status of a single photo.
type PhotoStatus string

const (
	// StatusNotSynced means the photo is known locally but has no confirmed
	// remote identifier yet. Such photos are not eligible for analysis.
	StatusNotSynced PhotoStatus = "not_synced"

	// StatusNotProcessed means the photo exists remotely but has never been
	// submitted for analysis.
	StatusNotProcessed PhotoStatus = "not_processed"

	StatusQueued     PhotoStatus = "queued"
	StatusProcessing PhotoStatus = "processing"
	StatusCompleted  PhotoStatus = "completed"
	StatusFailed     PhotoStatus = "failed"
)

// Terminal reports whether the status is terminal for a photo.
func (s PhotoStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known status values.
func (s PhotoStatus) Valid() bool {
	switch s {
	case StatusNotSynced, StatusNotProcessed, StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Photo represents one photo in the library.
//
// LocalID is the stable client-side key. A photo can be known locally before
// the backend has confirmed it, in which case RemoteID is empty and the photo
// is not eligible for batch submission.
type Photo struct {
	LocalID  string      `json:"localId"`
	RemoteID string      `json:"remoteId,omitempty"`
	Name     string      `json:"name"`
	FolderID string      `json:"folderId,omitempty"`
	Size     int64       `json:"size,omitempty"`
	TakenAt  *time.Time  `json:"takenAt,omitempty"`
	Status   PhotoStatus `json:"status"`
}

// Synced reports whether the photo has a confirmed remote identifier.
func (p Photo) Synced() bool {
	return p.RemoteID != "" && p.Status != StatusNotSynced
}

// Folder represents one folder (album) in the library.
type Folder struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PhotoCount    int    `json:"photoCount"`
	AnalyzedCount int    `json:"analyzedCount"`
}

// AnalysisResult is the AI output attached to a completed photo.
type AnalysisResult struct {
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// UserProfile is the response from the users/me endpoint. Only used as an
// authenticated/unauthenticated signal.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
