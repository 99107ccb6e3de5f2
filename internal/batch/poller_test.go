package batch

import (
	"strings"
	"testing"

	"github.com/lumapix/lumapix-cli/internal/events"
)

func TestStatusLinePrecedence(t *testing.T) {
	tests := []struct {
		name           string
		counts         events.Counts
		newlyCompleted bool
		want           string
	}{
		{
			name:   "processing beats everything",
			counts: events.Counts{Processing: 2, Completed: 1, Total: 5},
			want:   "Analyzing photos: 1 of 5 done, 2 in progress",
		},
		{
			name:           "processing beats newly completed",
			counts:         events.Counts{Processing: 1, Completed: 3, Total: 5},
			newlyCompleted: true,
			want:           "Analyzing",
		},
		{
			name:           "newly completed without processing",
			counts:         events.Counts{Completed: 3, Queued: 2, Total: 5},
			newlyCompleted: true,
			want:           "Completed 3 of 5 photos",
		},
		{
			name:   "generic waiting phrasing",
			counts: events.Counts{Queued: 5, Total: 5},
			want:   "Waiting on 5 photos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statusLine(tt.counts, tt.newlyCompleted)
			if !strings.HasPrefix(got, tt.want) && got != tt.want {
				t.Errorf("statusLine(%+v, %v) = %q, want %q", tt.counts, tt.newlyCompleted, got, tt.want)
			}
		})
	}
}

func TestJobStateTransitions(t *testing.T) {
	job := newJob([]string{"ph1"}, 1)

	if job.State() != StateIdle {
		t.Errorf("Expected idle, got %s", job.State())
	}

	job.setState(StatePolling)
	if !job.RequestCancel() {
		t.Error("Expected cancel request to succeed from polling")
	}
	if job.State() != StateCancelling {
		t.Errorf("Expected cancelling, got %s", job.State())
	}
	if job.RequestCancel() {
		t.Error("Expected second cancel request to fail")
	}

	if !job.finalize(StateCancelled) {
		t.Error("Expected finalize to succeed")
	}
	if job.finalize(StateCompleted) {
		t.Error("Expected finalize on a terminal job to fail")
	}
	if job.State() != StateCancelled {
		t.Errorf("Expected terminal state preserved, got %s", job.State())
	}
}

func TestJobTryAttach(t *testing.T) {
	job := newJob([]string{"ph1"}, 1)
	if !job.tryAttach() {
		t.Error("Expected first attach to succeed")
	}
	if job.tryAttach() {
		t.Error("Expected second attach to be refused")
	}
}
