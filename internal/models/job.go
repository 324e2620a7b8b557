package models

import "time"

// JobStatus is the lifecycle state of a backup job run.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// JobRun is one execution of a scheduled or manual capture.
type JobRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Trigger    string     `json:"trigger"`
	Status     JobStatus  `json:"status"`
	BackupID   string     `json:"backupId,omitempty"`
	Message    string     `json:"message,omitempty"`
}
