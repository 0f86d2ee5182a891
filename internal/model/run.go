package model

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle of a check run.
type RunState string

const (
	RunIdle            RunState = "idle"
	RunRunning         RunState = "running"
	RunCompleted       RunState = "completed"
	RunPartiallyFailed RunState = "partially_failed"
)

// RunTrigger records who started a run.
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
)

// CheckRun summarizes one pass over all tracked products.
type CheckRun struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Trigger    RunTrigger `db:"trigger" json:"trigger"`
	State      RunState   `db:"state" json:"state"`
	StartedAt  time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	Total      int        `db:"total" json:"total"`
	OK         int        `db:"ok_count" json:"ok"`
	Failed     int        `db:"failed_count" json:"failed"`
	Skipped    int        `db:"skipped_count" json:"skipped"`
	Alerts     int        `db:"alert_count" json:"alerts"`
}

// Finished reports whether the run reached a terminal state.
func (r CheckRun) Finished() bool {
	return r.State == RunCompleted || r.State == RunPartiallyFailed
}
