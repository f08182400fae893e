package runlog

import "time"

// StaleCandidate is a document whose remote file was absent from a
// complete walk. It is reported, never deleted.
type StaleCandidate struct {
	DocumentID   string `json:"document_id"`
	RemoteFileID string `json:"remote_file_id"`
	Name         string `json:"name"`
}

// Summary is the caller-facing result of a run.
type Summary struct {
	RunID                    string           `json:"run_id"`
	TenantID                 string           `json:"tenant_id"`
	Status                   Status           `json:"status"`
	FilesScanned             int              `json:"files_scanned"`
	FilesAdded               int              `json:"files_added"`
	FilesUpdated             int              `json:"files_updated"`
	FilesNeedsClassification int              `json:"files_needs_classification"`
	StaleCount               int              `json:"stale_count"`
	StaleCandidates          []StaleCandidate `json:"stale_candidates"`
	Errors                   []string         `json:"errors"`
	DurationMs               int64            `json:"duration_ms"`
	StartedAt                time.Time        `json:"started_at"`
	CompletedAt              *time.Time       `json:"completed_at,omitempty"`
}

// Summary builds the result view of r. Slices are never nil so the JSON
// form always carries arrays.
func (r *Run) Summary(stale []StaleCandidate) *Summary {
	if stale == nil {
		stale = []StaleCandidate{}
	}
	errs := append([]string{}, r.Errors...)

	return &Summary{
		RunID:                    r.ID,
		TenantID:                 r.TenantID,
		Status:                   r.Status,
		FilesScanned:             r.Scanned,
		FilesAdded:               r.Added,
		FilesUpdated:             r.Updated,
		FilesNeedsClassification: r.NeedsClassification,
		StaleCount:               r.StaleCount,
		StaleCandidates:          stale,
		Errors:                   errs,
		DurationMs:               r.DurationMs,
		StartedAt:                r.StartedAt,
		CompletedAt:              r.CompletedAt,
	}
}
