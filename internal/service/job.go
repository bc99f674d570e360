package service

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/creator-outreach/internal/event"
)

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
)

// Completion reasons reported with campaign:completed.
const (
	ReasonInviteLimit  = "invite_limit_reached"
	ReasonBudget       = "budget_exhausted"
	ReasonWindowClosed = "end_date_passed"
	ReasonInactive     = "campaign_inactive"
	ReasonManual       = "manual"
)

// Job is the in-memory run state of one campaign. Only the job's loop goroutine writes
// the counters; everything else reads through Snapshot.
type Job struct {
	CampaignID int
	RunID      string
	StartedAt  time.Time

	mu         sync.RWMutex
	status     JobStatus
	processed  int
	successful int
	failed     int

	// guarded by the engine's mutex
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// JobSnapshot is a read-only copy of a job's state.
type JobSnapshot struct {
	CampaignID int       `json:"campaign_id"`
	RunID      string    `json:"run_id"`
	Status     JobStatus `json:"status"`
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
}

func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		CampaignID: j.CampaignID,
		RunID:      j.RunID,
		Status:     j.status,
		Processed:  j.processed,
		Successful: j.successful,
		Failed:     j.failed,
		StartedAt:  j.StartedAt,
	}
}

func (j *Job) stats() event.JobStats {
	s := j.Snapshot()
	return event.JobStats{
		Processed:  s.Processed,
		Successful: s.Successful,
		Failed:     s.Failed,
		StartedAt:  s.StartedAt,
	}
}

func (j *Job) processedCount() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.processed
}

func (j *Job) record(successful, failed int) {
	j.mu.Lock()
	j.successful += successful
	j.failed += failed
	j.processed += successful + failed
	j.mu.Unlock()
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// transition moves a running job to s. It reports false if the job already left running.
func (j *Job) transition(s JobStatus) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobStatusRunning {
		return false
	}
	j.status = s
	return true
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}
