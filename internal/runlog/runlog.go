// Package runlog records the lifecycle and outcome of sync runs.
package runlog

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/qadhya/drivesync/internal/errors"
)

// Status is the state of a sync run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// maxErrors bounds the per-run error list. Further errors are counted
// and summarised in a single trailing entry.
const maxErrors = 1000

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSuccess, StatusPartial, StatusFailed},
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Run is one execution of the reconciliation engine for a tenant.
type Run struct {
	ID                  string
	TenantID            string
	Provider            string
	Status              Status
	StartedAt           time.Time
	CompletedAt         *time.Time
	Scanned             int
	Added               int
	Updated             int
	NeedsClassification int
	StaleCount          int
	Errors              []string
	DurationMs          int64

	omittedErrors int
}

// New returns a pending run with a fresh id.
func New(tenantID, provider string) *Run {
	return &Run{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Provider: provider,
		Status:   StatusPending,
	}
}

// Transition moves the run to status to, or returns ErrInvalidTransition.
func (r *Run) Transition(to Status) error {
	if !slices.Contains(transitions[r.Status], to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

// Start marks the run running as of now.
func (r *Run) Start(now time.Time) error {
	if err := r.Transition(StatusRunning); err != nil {
		return err
	}
	r.StartedAt = now.UTC()
	return nil
}

// AddError appends a diagnostic to the run.
func (r *Run) AddError(msg string) {
	if len(r.Errors) >= maxErrors {
		r.omittedErrors++
		return
	}
	r.Errors = append(r.Errors, msg)
}

// AddErrorf formats and appends a diagnostic.
func (r *Run) AddErrorf(format string, args ...any) {
	r.AddError(fmt.Sprintf(format, args...))
}

// ErrorCount is the number of errors recorded, including omitted ones.
func (r *Run) ErrorCount() int {
	return len(r.Errors) + r.omittedErrors
}

// Finish moves a running run to its terminal status and stamps the
// completion time and duration.
func (r *Run) Finish(status Status, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", apperrors.ErrInvalidTransition, status)
	}
	if err := r.Transition(status); err != nil {
		return err
	}
	if r.omittedErrors > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("%d further error(s) omitted", r.omittedErrors))
		r.omittedErrors = 0
	}
	done := now.UTC()
	r.CompletedAt = &done
	r.DurationMs = done.Sub(r.StartedAt).Milliseconds()
	return nil
}

// Outcome derives the terminal status of a run. A run with no errors
// succeeded. A run with errors is partial when the walk completed or at
// least one file was processed, and failed otherwise.
func Outcome(errorCount, processed int, walkCompleted bool) Status {
	switch {
	case errorCount == 0:
		return StatusSuccess
	case walkCompleted || processed > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Recorder persists runs.
type Recorder interface {
	CreateSyncRun(ctx context.Context, run *Run) error
	FinalizeSyncRun(ctx context.Context, run *Run) error
}

// History reads past runs, newest first.
type History interface {
	ListSyncRuns(ctx context.Context, tenantID string, limit int) ([]*Run, error)
	GetSyncRun(ctx context.Context, runID string) (*Run, error)
}
