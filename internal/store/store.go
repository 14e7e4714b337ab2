// Package store defines the document-store surface the session ledger is
// built against. The core consumes this interface only; the Mongo
// implementation lives alongside it and an in-memory implementation backs
// unit tests.
package store

import (
	"context"
	"errors"

	"luna/internal/models"
)

var (
	// ErrNotFound is returned when a session or version id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write loses a concurrent
	// race (stale totalVersions or duplicate version number).
	ErrConflict = errors.New("version conflict")

	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// SessionQuery filters and paginates a session listing.
type SessionQuery struct {
	OwnerID       *string // nil matches anonymous sessions when OwnerSet
	OwnerSet      bool
	Status        string // "" matches any
	BookmarkedSet bool
	Bookmarked    bool
	Tags          []string // all must be present
	Page          int
	PageSize      int
}

// VersionQuery orders and limits a version-history listing.
type VersionQuery struct {
	Ascending bool
	Limit     int
}

// Store is the abstract document store: top-level session documents plus a
// version sub-collection scoped to each session.
type Store interface {
	// Sessions
	InsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	// UpdateSession merge-patches the named fields into the session document.
	UpdateSession(ctx context.Context, sessionID string, fields map[string]any) (*models.Session, error)
	// DeleteSession removes the session document and its version
	// sub-collection as one unit.
	DeleteSession(ctx context.Context, sessionID string) error
	// ListSessions returns listing projections: counts and a one-message
	// preview, never the full message list.
	ListSessions(ctx context.Context, q SessionQuery) ([]models.SessionListItem, int64, error)

	// Version sub-collection
	GetVersion(ctx context.Context, sessionID, versionID string) (*models.Version, error)
	ListVersions(ctx context.Context, sessionID string, q VersionQuery) ([]models.VersionSummary, error)

	// CommitVersion atomically persists the session's updated working copy
	// and the new version document, guarded by the session's current
	// totalVersions (expectedTotal). A concurrent commit on the same
	// session makes the loser fail with ErrConflict; partial writes are
	// never observed as success.
	CommitVersion(ctx context.Context, sess *models.Session, v *models.Version, expectedTotal int) error

	// AppendChild adds childVersionID to the parent's childVersionIds with
	// array-union semantics, so concurrent appends cannot clobber each
	// other. Best-effort secondary write; callers log and continue on error.
	AppendChild(ctx context.Context, sessionID, parentVersionID, childVersionID string) error
}
