package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"luna/internal/models"
	"luna/internal/store"
)

func newTestService(t *testing.T) (*SessionService, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	ledger := NewVersionLedger(st, 0)
	return NewSessionService(st, ledger, time.Minute), st
}

func strPtr(s string) *string { return &s }

// TestSessionVersioningFlow walks the core lifecycle: create a session
// with an initial message, append a message, revert, diff, and branch.
func TestSessionVersioningFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Step 1: create with an initial message.
	sess, err := svc.CreateSession(ctx, strPtr("user-1"), &models.CreateSessionRequest{
		Title:          "Greetings",
		InitialMessage: &models.Message{Role: models.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if sess.CurrentVersionNumber != 1 || sess.TotalVersions != 1 {
		t.Fatalf("Expected version counters 1/1, got %d/%d", sess.CurrentVersionNumber, sess.TotalVersions)
	}

	v1, err := svc.GetVersion(ctx, sess.SessionID, "v1")
	if err != nil {
		t.Fatalf("Failed to get v1: %v", err)
	}
	if v1.ChangeType != models.ChangeTypeCreation {
		t.Errorf("Expected change type creation, got %q", v1.ChangeType)
	}
	if v1.ParentVersionID != nil {
		t.Errorf("Expected v1 parent nil, got %v", *v1.ParentVersionID)
	}
	if len(v1.Data.Messages) != 1 || v1.Data.Messages[0].Content != "hello" {
		t.Errorf("Expected v1 snapshot with hello, got %+v", v1.Data.Messages)
	}

	// Step 2: a versioned message append becomes v2 with parent v1.
	if _, err := svc.AddMessage(ctx, sess.SessionID, models.Message{Role: models.RoleAssistant, Content: "world"}, true); err != nil {
		t.Fatalf("Failed to add message: %v", err)
	}
	v2, err := svc.GetVersion(ctx, sess.SessionID, "v2")
	if err != nil {
		t.Fatalf("Failed to get v2: %v", err)
	}
	if v2.ChangeType != models.ChangeTypeMessageAdded {
		t.Errorf("Expected change type message_added, got %q", v2.ChangeType)
	}
	if v2.ParentVersionID == nil || *v2.ParentVersionID != "v1" {
		t.Errorf("Expected v2 parent v1, got %v", v2.ParentVersionID)
	}
	if len(v2.Data.Messages) != 2 {
		t.Errorf("Expected 2 messages in v2, got %d", len(v2.Data.Messages))
	}

	// Step 3: revert to v1 appends v3, it never rewrites history.
	v3, err := svc.RevertToVersion(ctx, sess.SessionID, "v1", "user-1")
	if err != nil {
		t.Fatalf("Failed to revert: %v", err)
	}
	if v3.VersionID != "v3" || v3.ChangeType != models.ChangeTypeRevert {
		t.Errorf("Expected revert version v3, got %s (%s)", v3.VersionID, v3.ChangeType)
	}
	if v3.ParentVersionID == nil || *v3.ParentVersionID != "v2" {
		t.Errorf("Expected v3 parent v2, got %v", v3.ParentVersionID)
	}
	if len(v3.Data.Messages) != 1 || v3.Data.Messages[0].Content != "hello" {
		t.Errorf("Expected v3 snapshot back to hello, got %+v", v3.Data.Messages)
	}

	current, err := svc.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Failed to get session after revert: %v", err)
	}
	if current.TotalVersions != 3 || len(current.Messages) != 1 {
		t.Errorf("Expected 3 versions and 1 working message, got %d/%d", current.TotalVersions, len(current.Messages))
	}
	if v2After, err := svc.GetVersion(ctx, sess.SessionID, "v2"); err != nil || len(v2After.Data.Messages) != 2 {
		t.Errorf("Expected v2 to survive the revert intact, got %+v (%v)", v2After, err)
	}

	// Step 4: structural diff between v1 and v2.
	diff, err := svc.GenerateDiff(ctx, sess.SessionID, "v1", "v2")
	if err != nil {
		t.Fatalf("Failed to diff: %v", err)
	}
	if len(diff.Messages.Added) != 1 || diff.Messages.Added[0].Content != "world" {
		t.Errorf("Expected world added in diff, got %+v", diff.Messages.Added)
	}
	if len(diff.Messages.Removed) != 0 || len(diff.Messages.Common) != 1 {
		t.Errorf("Expected 0 removed / 1 common, got %d/%d", len(diff.Messages.Removed), len(diff.Messages.Common))
	}

	// Step 5: branch from v2 into an independent session.
	branch, err := svc.CreateBranch(ctx, sess.SessionID, "v2", "experiment", "user-1")
	if err != nil {
		t.Fatalf("Failed to branch: %v", err)
	}
	if branch.SessionID == sess.SessionID {
		t.Error("Expected branch to get its own session id")
	}
	if branch.CurrentVersionNumber != 1 || branch.TotalVersions != 1 {
		t.Errorf("Expected branch ledger to restart at 1, got %d/%d", branch.CurrentVersionNumber, branch.TotalVersions)
	}
	if branch.BranchInfo == nil || branch.BranchInfo.ParentSessionID != sess.SessionID ||
		branch.BranchInfo.SourceVersionID != "v2" || branch.BranchInfo.BranchName != "experiment" {
		t.Errorf("Expected branch lineage in branchInfo, got %+v", branch.BranchInfo)
	}

	bv1, err := svc.GetVersion(ctx, branch.SessionID, "v1")
	if err != nil {
		t.Fatalf("Failed to get branch v1: %v", err)
	}
	if bv1.ChangeType != models.ChangeTypeBranch || bv1.ParentVersionID != nil {
		t.Errorf("Expected branch v1 with nil parent, got %q parent %v", bv1.ChangeType, bv1.ParentVersionID)
	}
	if bv1.BranchName != "experiment" {
		t.Errorf("Expected branch name experiment, got %q", bv1.BranchName)
	}
	if len(bv1.Data.Messages) != 2 {
		t.Errorf("Expected branch seeded with v2 data, got %d messages", len(bv1.Data.Messages))
	}

	// Mutating the branch leaves the source session untouched.
	if _, err := svc.AddMessage(ctx, branch.SessionID, models.Message{Content: "branch only"}, true); err != nil {
		t.Fatalf("Failed to add message on branch: %v", err)
	}
	source, err := svc.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Failed to get source session: %v", err)
	}
	if source.TotalVersions != 3 {
		t.Errorf("Expected source still at 3 versions, got %d", source.TotalVersions)
	}
}

func TestAddMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Validation"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := svc.AddMessage(ctx, sess.SessionID, models.Message{Content: ""}, true); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for empty content, got %v", err)
	}
	if _, err := svc.AddMessage(ctx, sess.SessionID, models.Message{Role: "robot", Content: "hi"}, true); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for bad role, got %v", err)
	}
	if _, err := svc.AddMessage(ctx, "missing", models.Message{Content: "hi"}, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found for unknown session, got %v", err)
	}
}

func TestAddMessageWithoutVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Suppressed"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := svc.AddMessage(ctx, sess.SessionID, models.Message{Content: "no snapshot"}, false); err != nil {
		t.Fatalf("Failed to add message: %v", err)
	}

	current, err := svc.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if current.TotalVersions != 1 {
		t.Errorf("Expected no new version, got %d", current.TotalVersions)
	}
	if len(current.Messages) != 1 {
		t.Errorf("Expected working copy to carry the message, got %d", len(current.Messages))
	}

	// The next versioned mutation snapshots the accumulated state.
	if _, err := svc.AddMessage(ctx, sess.SessionID, models.Message{Content: "snapshot now"}, true); err != nil {
		t.Fatalf("Failed to add versioned message: %v", err)
	}
	v2, err := svc.GetVersion(ctx, sess.SessionID, "v2")
	if err != nil {
		t.Fatalf("Failed to get v2: %v", err)
	}
	if len(v2.Data.Messages) != 2 {
		t.Errorf("Expected v2 to capture both messages, got %d", len(v2.Data.Messages))
	}
}

func TestAddPresentationCreatesVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Decks"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	ref, err := svc.AddGeneratedPresentation(ctx, sess.SessionID, models.PresentationRef{
		ID:         "pres-1",
		Title:      "Quarterly review",
		SlideCount: 12,
	}, true)
	if err != nil {
		t.Fatalf("Failed to add presentation: %v", err)
	}
	if ref.VersionAddedAt != 1 {
		t.Errorf("Expected ref pinned to version 1, got %d", ref.VersionAddedAt)
	}

	v2, err := svc.GetVersion(ctx, sess.SessionID, "v2")
	if err != nil {
		t.Fatalf("Failed to get v2: %v", err)
	}
	if v2.ChangeType != models.ChangeTypePresentationAdded {
		t.Errorf("Expected change type presentation_added, got %q", v2.ChangeType)
	}
	if v2.Stats.PresentationCount != 1 {
		t.Errorf("Expected presentation count 1, got %d", v2.Stats.PresentationCount)
	}
}

func TestUpdateSessionWhitelist(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Before"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	bookmarked := true
	updated, err := svc.UpdateSession(ctx, sess.SessionID, &models.UpdateSessionRequest{
		Title:        strPtr("After"),
		IsBookmarked: &bookmarked,
		Tags:         []string{"demo"},
	})
	if err != nil {
		t.Fatalf("Failed to update session: %v", err)
	}
	if updated.Title != "After" || !updated.IsBookmarked || len(updated.Tags) != 1 {
		t.Errorf("Expected patched fields applied, got %+v", updated)
	}
	if updated.TotalVersions != 1 {
		t.Errorf("Expected display updates to not version, got %d versions", updated.TotalVersions)
	}

	if _, err := svc.UpdateSession(ctx, sess.SessionID, &models.UpdateSessionRequest{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for empty update, got %v", err)
	}
	if _, err := svc.UpdateSession(ctx, sess.SessionID, &models.UpdateSessionRequest{Status: strPtr("paused")}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for bad status, got %v", err)
	}
}

func TestArchiveAndDeleteSession(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Ephemeral"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	archived, err := svc.ArchiveSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}
	if archived.Status != models.SessionStatusArchived {
		t.Errorf("Expected archived status, got %q", archived.Status)
	}

	if err := svc.DeleteSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := svc.GetSession(ctx, sess.SessionID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected session gone, got %v", err)
	}
	if _, err := st.GetVersion(ctx, sess.SessionID, "v1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected versions gone with the session, got %v", err)
	}
}

func TestGetUserSessionsFilterAndPreview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	long := strings.Repeat("x", 300)
	if _, err := svc.CreateSession(ctx, strPtr("user-1"), &models.CreateSessionRequest{
		Title:          "Mine",
		InitialMessage: &models.Message{Content: long},
	}); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err := svc.CreateSession(ctx, strPtr("user-2"), &models.CreateSessionRequest{Title: "Theirs"}); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if _, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Anonymous"}); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	resp, err := svc.GetUserSessions(ctx, store.SessionQuery{OwnerSet: true, OwnerID: strPtr("user-1")})
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.Sessions) != 1 {
		t.Fatalf("Expected exactly one owned session, got %d", resp.TotalCount)
	}

	item := resp.Sessions[0]
	if item.Title != "Mine" {
		t.Errorf("Expected owned session, got %q", item.Title)
	}
	if len(item.MessagePreview) != 120 {
		t.Errorf("Expected preview capped at 120, got %d", len(item.MessagePreview))
	}
	if item.MessageCount != 1 {
		t.Errorf("Expected message count 1, got %d", item.MessageCount)
	}
}

func TestGetVersionHistoryMissingSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetVersionHistory(context.Background(), "missing", false, 0)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found for unknown session, got %v", err)
	}
}

func TestRevertValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Revertable"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := svc.RevertToVersion(ctx, sess.SessionID, "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for empty target, got %v", err)
	}
	if _, err := svc.RevertToVersion(ctx, sess.SessionID, "v9", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found for unknown target, got %v", err)
	}
}

func TestCreateBranchValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, nil, &models.CreateSessionRequest{Title: "Branchable"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if _, err := svc.CreateBranch(ctx, sess.SessionID, "v1", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error for empty branch name, got %v", err)
	}
	if _, err := svc.CreateBranch(ctx, sess.SessionID, "v9", "experiment", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found for unknown source version, got %v", err)
	}
	if _, err := svc.CreateBranch(ctx, "missing", "v1", "experiment", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found for unknown source session, got %v", err)
	}
}
