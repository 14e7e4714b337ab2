package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"luna/internal/models"
	"luna/internal/store"
)

// VersionLedger owns creation, retrieval, and ordering of the immutable
// version snapshots of a session. Version numbers are allocated as
// totalVersions+1 and guarded by the store's compare-and-swap, so two
// concurrent commits on the same session can never both win.
type VersionLedger struct {
	store       store.Store
	maxVersions int // 0 = unlimited
}

// NewVersionLedger creates a ledger over the given store. maxVersions
// caps a session's history; once reached, commits fail with
// ErrVersionLimit.
func NewVersionLedger(st store.Store, maxVersions int) *VersionLedger {
	return &VersionLedger{store: st, maxVersions: maxVersions}
}

// CommitParams describes the version to be created on top of a session's
// current working copy.
type CommitParams struct {
	ChangeType      string
	Description     string
	CreatedBy       string
	BranchName      string // defaults to "main"
	ParentVersionID *string
	ChangeRecords   []models.ChangeRecord
}

var validChangeTypes = map[string]bool{
	models.ChangeTypeCreation:          true,
	models.ChangeTypeMessageAdded:      true,
	models.ChangeTypePresentationAdded: true,
	models.ChangeTypeRevert:            true,
	models.ChangeTypeBranch:            true,
}

// Commit snapshots the session's working copy as the next version and
// persists the session document and version atomically. On success the
// session's counters are advanced in place to mirror the stored state.
// The parent's child link is a best-effort secondary write: a failure
// there is logged and never aborts the commit.
func (l *VersionLedger) Commit(ctx context.Context, sess *models.Session, p CommitParams) (*models.Version, error) {
	if !validChangeTypes[p.ChangeType] {
		return nil, fmt.Errorf("%w: unknown change type %q", ErrValidation, p.ChangeType)
	}
	if l.maxVersions > 0 && sess.TotalVersions >= l.maxVersions {
		return nil, fmt.Errorf("session %s has %d versions: %w", sess.SessionID, sess.TotalVersions, ErrVersionLimit)
	}

	number := sess.TotalVersions + 1
	if number > 1 && p.ParentVersionID == nil {
		return nil, fmt.Errorf("%w: version %d of session %s requires a parent", ErrValidation, number, sess.SessionID)
	}

	branchName := p.BranchName
	if branchName == "" {
		branchName = models.DefaultBranchName
	}

	now := time.Now()
	data := models.SessionData{
		Messages:         sess.Messages,
		PresentationRefs: sess.PresentationRefs,
		Metadata:         sess.Metadata,
	}.Clone()

	v := &models.Version{
		VersionID:       models.VersionID(number),
		SessionID:       sess.SessionID,
		VersionNumber:   number,
		ChangeType:      p.ChangeType,
		Description:     p.Description,
		ParentVersionID: p.ParentVersionID,
		ChildVersionIDs: []string{},
		BranchName:      branchName,
		Data:            data,
		ChangeRecords:   append([]models.ChangeRecord(nil), p.ChangeRecords...),
		Stats: models.VersionStats{
			MessageCount:      len(data.Messages),
			PresentationCount: len(data.PresentationRefs),
			ChangeCount:       len(p.ChangeRecords),
		},
		CreatedBy: p.CreatedBy,
		CreatedAt: now,
	}

	expectedTotal := sess.TotalVersions
	sess.UpdatedAt = now
	sess.LastActiveAt = now

	start := time.Now()
	err := l.store.CommitVersion(ctx, sess, v, expectedTotal)
	if m := GetMetrics(); m != nil {
		m.CommitLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if m := GetMetrics(); m != nil && errors.Is(err, store.ErrConflict) {
			m.CommitConflicts.Inc()
		}
		return nil, err
	}

	sess.CurrentVersionNumber = number
	sess.TotalVersions = number

	if m := GetMetrics(); m != nil {
		m.VersionCommits.WithLabelValues(p.ChangeType).Inc()
	}

	if p.ParentVersionID != nil {
		if err := l.store.AppendChild(ctx, sess.SessionID, *p.ParentVersionID, v.VersionID); err != nil {
			slog.Warn("failed to link child version",
				"session_id", sess.SessionID,
				"parent_version_id", *p.ParentVersionID,
				"child_version_id", v.VersionID,
				"error", err)
		}
	}

	return v, nil
}

// GetVersion fetches one full version, snapshot included.
func (l *VersionLedger) GetVersion(ctx context.Context, sessionID, versionID string) (*models.Version, error) {
	if sessionID == "" || versionID == "" {
		return nil, fmt.Errorf("%w: session id and version id are required", ErrValidation)
	}
	return l.store.GetVersion(ctx, sessionID, versionID)
}

// ListVersions returns history summaries ordered by version number,
// descending unless ascending is requested. Limit defaults to 50.
// Summaries never include the data payload.
func (l *VersionLedger) ListVersions(ctx context.Context, sessionID string, ascending bool, limit int) ([]models.VersionSummary, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	return l.store.ListVersions(ctx, sessionID, store.VersionQuery{Ascending: ascending, Limit: limit})
}
