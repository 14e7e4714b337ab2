package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Version change types
const (
	ChangeTypeCreation          = "creation"
	ChangeTypeMessageAdded      = "message_added"
	ChangeTypePresentationAdded = "presentation_added"
	ChangeTypeRevert            = "revert"
	ChangeTypeBranch            = "branch"
)

// DefaultBranchName is the branch name assigned when no branch is involved.
const DefaultBranchName = "main"

// VersionID renders the public version identifier for a version number.
func VersionID(number int) string {
	return fmt.Sprintf("v%d", number)
}

// SessionData is the immutable snapshot captured inside a version.
type SessionData struct {
	Messages         []Message         `bson:"messages" json:"messages"`
	PresentationRefs []PresentationRef `bson:"presentationRefs" json:"presentation_refs"`
	Metadata         map[string]any    `bson:"metadata" json:"metadata"`
}

// Clone returns a by-value copy of the snapshot. Versions always store a
// clone so that later working-copy mutations can never reach back into
// persisted history.
func (d SessionData) Clone() SessionData {
	out := SessionData{
		Messages:         make([]Message, len(d.Messages)),
		PresentationRefs: make([]PresentationRef, len(d.PresentationRefs)),
	}
	for i, m := range d.Messages {
		out.Messages[i] = m
		out.Messages[i].Metadata = cloneMap(m.Metadata)
	}
	copy(out.PresentationRefs, d.PresentationRefs)
	out.Metadata = cloneMap(d.Metadata)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			cp := make([]any, len(t))
			copy(cp, t)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// ChangeRecord describes one discrete change captured by a version.
type ChangeRecord struct {
	Type      string    `bson:"type" json:"type"`
	SubjectID string    `bson:"subjectId" json:"subject_id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// VersionStats are derived counts computed once at creation for fast
// history listing.
type VersionStats struct {
	MessageCount      int `bson:"messageCount" json:"message_count"`
	PresentationCount int `bson:"presentationCount" json:"presentation_count"`
	ChangeCount       int `bson:"changeCount" json:"change_count"`
}

// Version is an immutable, numbered snapshot of a session. Once persisted
// it is never updated or deleted by normal operation; the only lazy field
// is ChildVersionIDs, populated as children link back to it.
type Version struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	VersionID       string             `bson:"versionId" json:"version_id"`
	SessionID       string             `bson:"sessionId" json:"session_id"`
	VersionNumber   int                `bson:"versionNumber" json:"version_number"`
	ChangeType      string             `bson:"changeType" json:"change_type"`
	Description     string             `bson:"description" json:"description"`
	ParentVersionID *string            `bson:"parentVersionId" json:"parent_version_id"` // nil only for version 1
	ChildVersionIDs []string           `bson:"childVersionIds" json:"child_version_ids"`
	BranchName      string             `bson:"branchName" json:"branch_name"`
	Data            SessionData        `bson:"data" json:"data"`
	ChangeRecords   []ChangeRecord     `bson:"changeRecords" json:"change_records"`
	Stats           VersionStats       `bson:"stats" json:"stats"`
	CreatedBy       string             `bson:"createdBy" json:"created_by"`
	CreatedAt       time.Time          `bson:"createdAt" json:"created_at"`
}

// VersionSummary is the history-listing projection: everything except the
// full Data payload.
type VersionSummary struct {
	VersionID       string       `bson:"versionId" json:"version_id"`
	SessionID       string       `bson:"sessionId" json:"session_id"`
	VersionNumber   int          `bson:"versionNumber" json:"version_number"`
	ChangeType      string       `bson:"changeType" json:"change_type"`
	Description     string       `bson:"description" json:"description"`
	ParentVersionID *string      `bson:"parentVersionId" json:"parent_version_id"`
	ChildVersionIDs []string     `bson:"childVersionIds" json:"child_version_ids"`
	BranchName      string       `bson:"branchName" json:"branch_name"`
	Stats           VersionStats `bson:"stats" json:"stats"`
	CreatedBy       string       `bson:"createdBy" json:"created_by"`
	CreatedAt       time.Time    `bson:"createdAt" json:"created_at"`
}

// Summary projects a full version down to its listing form.
func (v *Version) Summary() VersionSummary {
	return VersionSummary{
		VersionID:       v.VersionID,
		SessionID:       v.SessionID,
		VersionNumber:   v.VersionNumber,
		ChangeType:      v.ChangeType,
		Description:     v.Description,
		ParentVersionID: v.ParentVersionID,
		ChildVersionIDs: v.ChildVersionIDs,
		BranchName:      v.BranchName,
		Stats:           v.Stats,
		CreatedBy:       v.CreatedBy,
		CreatedAt:       v.CreatedAt,
	}
}

// ListDiff is the identifier-set comparison of one list field. Common
// holds the B-side value for ids present on both sides; element-level
// changes behind an unchanged id are intentionally not surfaced.
type ListDiff[T any] struct {
	Added   []T `json:"added"`
	Removed []T `json:"removed"`
	Common  []T `json:"common"`
}

// ValueChange reports a metadata key whose value differs between versions.
type ValueChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// MapDiff is the key-wise comparison of the metadata map.
type MapDiff struct {
	Added     map[string]any         `json:"added"`
	Removed   map[string]any         `json:"removed"`
	Changed   map[string]ValueChange `json:"changed"`
	Unchanged map[string]any         `json:"unchanged"`
}

// DiffResult is the ephemeral structural difference between two version
// snapshots. It is computed on demand and never persisted.
type DiffResult struct {
	SessionID     string                    `json:"session_id"`
	FromVersionID string                    `json:"from_version_id"`
	ToVersionID   string                    `json:"to_version_id"`
	Messages      ListDiff[Message]         `json:"messages"`
	Presentations ListDiff[PresentationRef] `json:"presentations"`
	Metadata      MapDiff                   `json:"metadata"`
}
