package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"luna/internal/models"
)

func testSession(id string, owner *string) *models.Session {
	now := time.Now()
	return &models.Session{
		SessionID:        id,
		Title:            "Session " + id,
		OwnerID:          owner,
		Status:           models.SessionStatusActive,
		Messages:         []models.Message{},
		PresentationRefs: []models.PresentationRef{},
		Metadata:         map[string]any{},
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActiveAt:     now,
	}
}

func testVersion(sessionID string, number int) *models.Version {
	return &models.Version{
		VersionID:     models.VersionID(number),
		SessionID:     sessionID,
		VersionNumber: number,
		ChangeType:    models.ChangeTypeCreation,
		BranchName:    models.DefaultBranchName,
		CreatedAt:     time.Now(),
	}
}

func TestMemoryCommitVersionCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess := testSession("s1", nil)
	if err := m.InsertSession(ctx, sess); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}

	if err := m.CommitVersion(ctx, sess, testVersion("s1", 1), 0); err != nil {
		t.Fatalf("Failed to commit with matching total: %v", err)
	}

	// A second commit still claiming totalVersions 0 lost the race.
	err := m.CommitVersion(ctx, sess, testVersion("s1", 1), 0)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict for stale expected total, got %v", err)
	}

	if err := m.CommitVersion(ctx, sess, testVersion("s1", 2), 1); err != nil {
		t.Fatalf("Failed to commit next version: %v", err)
	}

	stored, err := m.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if stored.CurrentVersionNumber != 2 || stored.TotalVersions != 2 {
		t.Errorf("Expected counters 2/2, got %d/%d", stored.CurrentVersionNumber, stored.TotalVersions)
	}
}

func TestMemoryCommitVersionMissingSession(t *testing.T) {
	m := NewMemory()
	err := m.CommitVersion(context.Background(), testSession("ghost", nil), testVersion("ghost", 1), 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestMemoryInsertDuplicateSession(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.InsertSession(ctx, testSession("dup", nil)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := m.InsertSession(ctx, testSession("dup", nil)); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict for duplicate id, got %v", err)
	}
}

func TestMemoryDeleteSessionRemovesVersions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess := testSession("s2", nil)
	if err := m.InsertSession(ctx, sess); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}
	if err := m.CommitVersion(ctx, sess, testVersion("s2", 1), 0); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if err := m.DeleteSession(ctx, "s2"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := m.GetVersion(ctx, "s2", "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected version deleted with session, got %v", err)
	}
}

func TestMemoryAppendChildIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sess := testSession("s3", nil)
	if err := m.InsertSession(ctx, sess); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}
	if err := m.CommitVersion(ctx, sess, testVersion("s3", 1), 0); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if err := m.AppendChild(ctx, "s3", "v1", "v2"); err != nil {
		t.Fatalf("Failed to append child: %v", err)
	}
	if err := m.AppendChild(ctx, "s3", "v1", "v2"); err != nil {
		t.Fatalf("Failed on repeat append: %v", err)
	}

	v1, err := m.GetVersion(ctx, "s3", "v1")
	if err != nil {
		t.Fatalf("Failed to get v1: %v", err)
	}
	if len(v1.ChildVersionIDs) != 1 {
		t.Errorf("Expected one child link, got %v", v1.ChildVersionIDs)
	}
}

func TestMemoryListSessionsFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	owner := "user-1"
	a := testSession("a", &owner)
	a.Tags = []string{"Research", "go"}
	a.IsBookmarked = true
	b := testSession("b", &owner)
	b.Status = models.SessionStatusArchived
	c := testSession("c", nil)

	for _, s := range []*models.Session{a, b, c} {
		if err := m.InsertSession(ctx, s); err != nil {
			t.Fatalf("Failed to insert %s: %v", s.SessionID, err)
		}
	}

	got, total, err := m.ListSessions(ctx, SessionQuery{OwnerSet: true, OwnerID: &owner, Status: models.SessionStatusActive})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].SessionID != "a" {
		t.Errorf("Expected only active owned session a, got %+v", got)
	}

	// Tag matching is case-insensitive and requires every requested tag.
	got, _, err = m.ListSessions(ctx, SessionQuery{Tags: []string{"research", "GO"}})
	if err != nil {
		t.Fatalf("Failed to list by tags: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "a" {
		t.Errorf("Expected tag filter to match a, got %+v", got)
	}

	got, total, err = m.ListSessions(ctx, SessionQuery{OwnerSet: true, OwnerID: nil})
	if err != nil {
		t.Fatalf("Failed to list anonymous: %v", err)
	}
	if total != 1 || got[0].SessionID != "c" {
		t.Errorf("Expected anonymous filter to match c, got %+v", got)
	}
}

func TestMemoryUpdateSessionFields(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.InsertSession(ctx, testSession("s4", nil)); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	updated, err := m.UpdateSession(ctx, "s4", map[string]any{
		"title":        "Renamed",
		"isBookmarked": true,
		"tags":         []string{"pinned"},
	})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if updated.Title != "Renamed" || !updated.IsBookmarked || len(updated.Tags) != 1 {
		t.Errorf("Expected fields applied, got %+v", updated)
	}

	if _, err := m.UpdateSession(ctx, "missing", map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}
