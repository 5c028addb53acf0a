package domain

import (
	"time"
)

type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Job is one download request submitted through the API or CLI.
type Job struct {
	ID        string    `json:"id"`
	Key       BookKey   `json:"key"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func (s JobStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}
