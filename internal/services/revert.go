package services

import (
	"context"
	"fmt"
	"time"

	"luna/internal/models"
)

// RevertToVersion creates a new version whose snapshot equals the target
// version's snapshot. The revert is additive: the intervening history is
// never truncated or rewritten, and the new version's parent is the
// session's pre-revert current version, not the target.
func (s *SessionService) RevertToVersion(ctx context.Context, sessionID, targetVersionID, actor string) (*models.Version, error) {
	if sessionID == "" || targetVersionID == "" {
		return nil, fmt.Errorf("%w: session id and target version id are required", ErrValidation)
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	target, err := s.ledger.GetVersion(ctx, sessionID, targetVersionID)
	if err != nil {
		return nil, err
	}

	// Overwrite the working copy with a structural copy of the target's
	// snapshot; the target itself stays untouched.
	data := target.Data.Clone()
	sess.Messages = data.Messages
	sess.PresentationRefs = data.PresentationRefs
	sess.Metadata = data.Metadata

	parent := models.VersionID(sess.CurrentVersionNumber)
	if actor == "" {
		actor = actorOf(sess.OwnerID)
	}

	v, err := s.ledger.Commit(ctx, sess, CommitParams{
		ChangeType:      models.ChangeTypeRevert,
		Description:     fmt.Sprintf("Reverted to version %s", targetVersionID),
		CreatedBy:       actor,
		ParentVersionID: &parent,
		ChangeRecords: []models.ChangeRecord{
			{Type: "revert", SubjectID: targetVersionID, Timestamp: time.Now()},
		},
	})
	if err != nil {
		return nil, err
	}

	if m := GetMetrics(); m != nil {
		m.Reverts.Inc()
	}
	s.sessionCache.Delete(sessionID)
	return v, nil
}
