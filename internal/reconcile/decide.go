package reconcile

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/qadhya/drivesync/internal/classify"
	"github.com/qadhya/drivesync/internal/models"
	"github.com/qadhya/drivesync/internal/remote"
	"github.com/qadhya/drivesync/internal/runlog"
)

// Action is what a run does with one remote file.
type Action int

const (
	ActionSkip Action = iota
	ActionUpdate
	ActionInsert
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionUpdate:
		return "update"
	case ActionInsert:
		return "insert"
	default:
		return "unknown"
	}
}

// Decide compares a remote file against the known documents. Only a
// change of the remote modification time triggers an update.
func Decide(entry remote.Entry, existing map[string]models.DocumentRef) (Action, models.DocumentRef) {
	ref, ok := existing[entry.ID]
	if !ok {
		return ActionInsert, models.DocumentRef{}
	}
	if ref.RemoteModifiedAt.Equal(entry.ModifiedAt) {
		return ActionSkip, ref
	}
	return ActionUpdate, ref
}

func metadataUpdate(entry remote.Entry) models.MetadataUpdate {
	return models.MetadataUpdate{
		Name:             entry.Name,
		SizeBytes:        entry.SizeBytes,
		RemoteModifiedAt: entry.ModifiedAt.UTC(),
		SharingLink:      entry.WebViewLink,
	}
}

func newDocument(tenantID string, entry remote.Entry, cls classify.Classification, now time.Time) *models.Document {
	now = now.UTC()
	doc := &models.Document{
		ID:                  uuid.NewString(),
		TenantID:            tenantID,
		CaseID:              cls.CaseID,
		ClientID:            cls.ClientID,
		RemoteFileID:        entry.ID,
		Name:                entry.Name,
		MimeType:            entry.MimeType,
		SizeBytes:           entry.SizeBytes,
		RemoteModifiedAt:    entry.ModifiedAt.UTC(),
		SharingLink:         entry.WebViewLink,
		RemotePath:          entry.Path,
		SourceKind:          models.SourceRemoteSync,
		NeedsClassification: cls.NeedsClassification(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if !doc.NeedsClassification {
		doc.ClassifiedAt = &now
	}
	return doc
}

// staleCandidates lists known documents whose remote file was not seen,
// ordered by name then id.
func staleCandidates(existing map[string]models.DocumentRef, seen map[string]bool) []runlog.StaleCandidate {
	var out []runlog.StaleCandidate
	for remoteID, ref := range existing {
		if seen[remoteID] {
			continue
		}
		out = append(out, runlog.StaleCandidate{
			DocumentID:   ref.ID,
			RemoteFileID: remoteID,
			Name:         ref.Name,
		})
	}
	slices.SortFunc(out, func(a, b runlog.StaleCandidate) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.DocumentID, b.DocumentID))
	})
	return out
}
