// Package api provides the client for the Lumapix backend.
package api

import (
	"errors"
	"strings"
)

// ErrUnauthorized indicates the API key was rejected by the backend.
var ErrUnauthorized = errors.New("unauthorized")

// ErrBatchConflict indicates the backend already has a batch in flight and
// refused to start another one.
var ErrBatchConflict = errors.New("a batch is already in flight")

// IsBatchConflictError checks if an error indicates a rejected batch start
// due to an existing in-flight batch.
//
// Detects:
//  1. Wrapped ErrBatchConflict
//  2. Error messages containing "already in flight", "already running" or
//     "conflict" (backend wording varies between versions)
func IsBatchConflictError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrBatchConflict) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	conflictIndicators := []string{
		"already in flight",
		"already running",
		"batch in progress",
		"conflict",
	}
	for _, indicator := range conflictIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
