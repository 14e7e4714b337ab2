package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"luna/internal/models"
)

// CreateBranch forks a brand-new session from one historical version of a
// source session. The new session gets an opaque id and a fresh,
// independent ledger: its version 1 has a nil parent even though its data
// was seeded elsewhere. Lineage is recorded only in branchInfo.
func (s *SessionService) CreateBranch(ctx context.Context, sourceSessionID, sourceVersionID, branchName, actor string) (*models.Session, error) {
	if sourceSessionID == "" || sourceVersionID == "" {
		return nil, fmt.Errorf("%w: source session id and version id are required", ErrValidation)
	}
	if branchName == "" {
		return nil, fmt.Errorf("%w: branch name is required", ErrValidation)
	}

	source, err := s.store.GetSession(ctx, sourceSessionID)
	if err != nil {
		return nil, err
	}
	sourceVersion, err := s.ledger.GetVersion(ctx, sourceSessionID, sourceVersionID)
	if err != nil {
		return nil, err
	}

	if actor == "" {
		actor = actorOf(source.OwnerID)
	}

	now := time.Now()
	data := sourceVersion.Data.Clone()
	branched := &models.Session{
		SessionID:        uuid.NewString(),
		Title:            fmt.Sprintf("%s (%s)", source.Title, branchName),
		Description:      source.Description,
		OwnerID:          source.OwnerID,
		Status:           models.SessionStatusActive,
		Messages:         data.Messages,
		PresentationRefs: data.PresentationRefs,
		Metadata:         data.Metadata,
		Tags:             append([]string(nil), source.Tags...),
		BranchInfo: &models.BranchInfo{
			ParentSessionID: sourceSessionID,
			SourceVersionID: sourceVersionID,
			BranchName:      branchName,
			BranchedAt:      now,
		},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	if branched.Metadata == nil {
		branched.Metadata = map[string]any{}
	}

	if err := s.store.InsertSession(ctx, branched); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Commit(ctx, branched, CommitParams{
		ChangeType:  models.ChangeTypeBranch,
		Description: fmt.Sprintf("Branched from session %s at %s", sourceSessionID, sourceVersionID),
		CreatedBy:   actor,
		BranchName:  branchName,
		ChangeRecords: []models.ChangeRecord{
			{Type: "branch", SubjectID: sourceVersionID, Timestamp: now},
		},
	}); err != nil {
		return nil, err
	}

	if m := GetMetrics(); m != nil {
		m.BranchesCreated.Inc()
	}
	s.sessionCache.Set(branched.SessionID, branched, cache.DefaultExpiration)
	return branched, nil
}
