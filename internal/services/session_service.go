package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"luna/internal/models"
	"luna/internal/store"
)

// SessionService is the mutation entry point for sessions. Every
// externally visible mutation updates the working copy and, unless
// explicitly suppressed, commits an immutable version snapshot through
// the ledger in the same atomic unit.
type SessionService struct {
	store        store.Store
	ledger       *VersionLedger
	sessionCache *cache.Cache // read cache, invalidated on every mutation
}

const previewLength = 120

// NewSessionService creates the session facade.
func NewSessionService(st store.Store, ledger *VersionLedger, cacheTTL time.Duration) *SessionService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &SessionService{
		store:        st,
		ledger:       ledger,
		sessionCache: cache.New(cacheTTL, 10*time.Minute),
	}
}

// Ledger exposes the underlying version ledger for read-only history
// operations.
func (s *SessionService) Ledger() *VersionLedger {
	return s.ledger
}

func validRole(role string) bool {
	return role == models.RoleUser || role == models.RoleAssistant || role == models.RoleSystem
}

func actorOf(ownerID *string) string {
	if ownerID == nil {
		return "anonymous"
	}
	return *ownerID
}

func fillMessage(m *models.Message) error {
	if m.Content == "" {
		return fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if m.Role == "" {
		m.Role = models.RoleUser
	}
	if !validRole(m.Role) {
		return fmt.Errorf("%w: invalid message role %q", ErrValidation, m.Role)
	}
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return nil
}

// CreateSession creates a session, optionally seeded with a first message,
// and commits version 1 with change type "creation".
func (s *SessionService) CreateSession(ctx context.Context, ownerID *string, req *models.CreateSessionRequest) (*models.Session, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", ErrValidation)
	}

	title := req.Title
	if title == "" {
		title = "Untitled session"
	}

	now := time.Now()
	sess := &models.Session{
		SessionID:        uuid.NewString(),
		Title:            title,
		Description:      req.Description,
		OwnerID:          ownerID,
		Status:           models.SessionStatusActive,
		Messages:         []models.Message{},
		PresentationRefs: []models.PresentationRef{},
		Metadata:         req.Metadata,
		Tags:             req.Tags,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActiveAt:     now,
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}

	records := []models.ChangeRecord{{Type: "session_created", SubjectID: sess.SessionID, Timestamp: now}}
	if req.InitialMessage != nil {
		msg := *req.InitialMessage
		if err := fillMessage(&msg); err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, msg)
		records = append(records, models.ChangeRecord{Type: "message_added", SubjectID: msg.MessageID, Timestamp: now})
	}

	if err := s.store.InsertSession(ctx, sess); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Commit(ctx, sess, CommitParams{
		ChangeType:  models.ChangeTypeCreation,
		Description: "Session created",
		CreatedBy:   actorOf(ownerID),
		ChangeRecords: records,
	}); err != nil {
		return nil, err
	}

	if m := GetMetrics(); m != nil {
		m.SessionsCreated.Inc()
	}
	s.sessionCache.Set(sess.SessionID, sess, cache.DefaultExpiration)
	return sess, nil
}

// AddMessage appends a message to the session's working copy and, unless
// createVersion is false, commits a "message_added" version of the
// post-append state.
func (s *SessionService) AddMessage(ctx context.Context, sessionID string, msg models.Message, createVersion bool) (*models.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if err := fillMessage(&msg); err != nil {
		return nil, err
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Messages = append(sess.Messages, msg)

	if createVersion {
		parent := models.VersionID(sess.CurrentVersionNumber)
		_, err = s.ledger.Commit(ctx, sess, CommitParams{
			ChangeType:      models.ChangeTypeMessageAdded,
			Description:     fmt.Sprintf("Added %s message", msg.Role),
			CreatedBy:       actorOf(sess.OwnerID),
			ParentVersionID: &parent,
			ChangeRecords: []models.ChangeRecord{
				{Type: "message_added", SubjectID: msg.MessageID, Timestamp: msg.Timestamp},
			},
		})
	} else {
		// Explicitly suppressed versioning: the working copy runs ahead of
		// the ledger until the caller's next versioned mutation.
		_, err = s.store.UpdateSession(ctx, sessionID, map[string]any{
			"messages":     sess.Messages,
			"lastActiveAt": time.Now(),
		})
	}
	if err != nil {
		return nil, err
	}

	s.sessionCache.Delete(sessionID)
	return &msg, nil
}

// AddGeneratedPresentation attaches a generated-presentation reference and,
// unless createVersion is false, commits a "presentation_added" version.
func (s *SessionService) AddGeneratedPresentation(ctx context.Context, sessionID string, ref models.PresentationRef, createVersion bool) (*models.PresentationRef, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if ref.ID == "" {
		return nil, fmt.Errorf("%w: presentation id is required", ErrValidation)
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if ref.AddedAt.IsZero() {
		ref.AddedAt = time.Now()
	}
	ref.VersionAddedAt = sess.CurrentVersionNumber
	sess.PresentationRefs = append(sess.PresentationRefs, ref)

	if createVersion {
		parent := models.VersionID(sess.CurrentVersionNumber)
		_, err = s.ledger.Commit(ctx, sess, CommitParams{
			ChangeType:      models.ChangeTypePresentationAdded,
			Description:     fmt.Sprintf("Added presentation %q", ref.Title),
			CreatedBy:       actorOf(sess.OwnerID),
			ParentVersionID: &parent,
			ChangeRecords: []models.ChangeRecord{
				{Type: "presentation_added", SubjectID: ref.ID, Timestamp: ref.AddedAt},
			},
		})
	} else {
		_, err = s.store.UpdateSession(ctx, sessionID, map[string]any{
			"presentationRefs": sess.PresentationRefs,
			"lastActiveAt":     time.Now(),
		})
	}
	if err != nil {
		return nil, err
	}

	s.sessionCache.Delete(sessionID)
	return &ref, nil
}

// GetSession returns the session with its current working copy.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if cached, ok := s.sessionCache.Get(sessionID); ok {
		return cached.(*models.Session), nil
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Set(sessionID, sess, cache.DefaultExpiration)
	return sess, nil
}

// UpdateSession patches the whitelisted display fields only. Ledger-owned
// fields (working copy, counters, lineage) cannot be written here.
func (s *SessionService) UpdateSession(ctx context.Context, sessionID string, req *models.UpdateSessionRequest) (*models.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", ErrValidation)
	}

	fields := map[string]any{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.IsBookmarked != nil {
		fields["isBookmarked"] = *req.IsBookmarked
	}
	if req.Tags != nil {
		fields["tags"] = req.Tags
	}
	if req.Settings != nil {
		fields["settings"] = req.Settings
	}
	if req.Status != nil {
		if *req.Status != models.SessionStatusActive && *req.Status != models.SessionStatusArchived {
			return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, *req.Status)
		}
		fields["status"] = *req.Status
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields provided", ErrValidation)
	}

	updated, err := s.store.UpdateSession(ctx, sessionID, fields)
	if err != nil {
		return nil, err
	}
	s.sessionCache.Delete(sessionID)
	return updated, nil
}

// ArchiveSession flips the session to archived without removing any data.
func (s *SessionService) ArchiveSession(ctx context.Context, sessionID string) (*models.Session, error) {
	status := models.SessionStatusArchived
	return s.UpdateSession(ctx, sessionID, &models.UpdateSessionRequest{Status: &status})
}

// DeleteSession hard-deletes the session document together with its
// version sub-collection.
func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.sessionCache.Delete(sessionID)
	return nil
}

// GetUserSessions lists sessions with server-side filtering by owner,
// status, bookmark flag, and tags. The projection carries a bounded
// message preview and never the full message list.
func (s *SessionService) GetUserSessions(ctx context.Context, q store.SessionQuery) (*models.SessionListResponse, error) {
	items, total, err := s.store.ListSessions(ctx, q)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if len(items[i].MessagePreview) > previewLength {
			items[i].MessagePreview = items[i].MessagePreview[:previewLength]
		}
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if items == nil {
		items = []models.SessionListItem{}
	}

	return &models.SessionListResponse{
		Sessions:   items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		HasMore:    int64(page*pageSize) < total,
	}, nil
}

// GetVersionHistory lists version summaries for a session.
func (s *SessionService) GetVersionHistory(ctx context.Context, sessionID string, ascending bool, limit int) ([]models.VersionSummary, error) {
	// Resolve the session first so a missing id surfaces as NotFound
	// instead of an empty history.
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	summaries, err := s.ledger.ListVersions(ctx, sessionID, ascending, limit)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []models.VersionSummary{}
	}
	return summaries, nil
}

// GetVersion returns one full version snapshot.
func (s *SessionService) GetVersion(ctx context.Context, sessionID, versionID string) (*models.Version, error) {
	return s.ledger.GetVersion(ctx, sessionID, versionID)
}

// GenerateDiff computes the structural difference between two versions of
// the same session.
func (s *SessionService) GenerateDiff(ctx context.Context, sessionID, fromVersionID, toVersionID string) (*models.DiffResult, error) {
	from, err := s.ledger.GetVersion(ctx, sessionID, fromVersionID)
	if err != nil {
		return nil, err
	}
	to, err := s.ledger.GetVersion(ctx, sessionID, toVersionID)
	if err != nil {
		return nil, err
	}
	return Diff(from, to), nil
}
