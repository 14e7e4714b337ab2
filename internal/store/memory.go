package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"luna/internal/models"
)

// Memory is an in-process Store with the same semantics as the Mongo
// implementation, including the totalVersions compare-and-swap. It backs
// unit tests so the ledger can be exercised without a database.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	versions map[string]map[string]*models.Version // sessionID -> versionID -> version

	// FailCommits forces the next n CommitVersion calls to fail with
	// ErrUnavailable, for error-path tests.
	FailCommits int
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*models.Session),
		versions: make(map[string]map[string]*models.Version),
	}
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	data := models.SessionData{
		Messages:         s.Messages,
		PresentationRefs: s.PresentationRefs,
		Metadata:         s.Metadata,
	}.Clone()
	cp.Messages = data.Messages
	cp.PresentationRefs = data.PresentationRefs
	cp.Metadata = data.Metadata
	cp.Tags = append([]string(nil), s.Tags...)
	if s.BranchInfo != nil {
		bi := *s.BranchInfo
		cp.BranchInfo = &bi
	}
	return &cp
}

func copyVersion(v *models.Version) *models.Version {
	cp := *v
	cp.Data = v.Data.Clone()
	cp.ChildVersionIDs = append([]string(nil), v.ChildVersionIDs...)
	cp.ChangeRecords = append([]models.ChangeRecord(nil), v.ChangeRecords...)
	return &cp
}

func (m *Memory) InsertSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.SessionID]; ok {
		return fmt.Errorf("insert session %s: %w", s.SessionID, ErrConflict)
	}
	m.sessions[s.SessionID] = copySession(s)
	return nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", sessionID, ErrNotFound)
	}
	return copySession(s), nil
}

func (m *Memory) UpdateSession(_ context.Context, sessionID string, fields map[string]any) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("update session %s: %w", sessionID, ErrNotFound)
	}
	for k, v := range fields {
		switch k {
		case "title":
			s.Title = v.(string)
		case "status":
			s.Status = v.(string)
		case "isBookmarked":
			s.IsBookmarked = v.(bool)
		case "tags":
			s.Tags = append([]string(nil), v.([]string)...)
		case "settings":
			s.Settings = v.(map[string]any)
		case "messages":
			s.Messages = append([]models.Message(nil), v.([]models.Message)...)
		case "presentationRefs":
			s.PresentationRefs = append([]models.PresentationRef(nil), v.([]models.PresentationRef)...)
		case "metadata":
			s.Metadata = v.(map[string]any)
		case "lastActiveAt":
			s.LastActiveAt = v.(time.Time)
		}
	}
	s.UpdatedAt = time.Now()
	return copySession(s), nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("delete session %s: %w", sessionID, ErrNotFound)
	}
	delete(m.sessions, sessionID)
	delete(m.versions, sessionID)
	return nil
}

func matches(s *models.Session, q SessionQuery) bool {
	if q.OwnerSet {
		switch {
		case q.OwnerID == nil && s.OwnerID != nil:
			return false
		case q.OwnerID != nil && (s.OwnerID == nil || *s.OwnerID != *q.OwnerID):
			return false
		}
	}
	if q.Status != "" && s.Status != q.Status {
		return false
	}
	if q.BookmarkedSet && s.IsBookmarked != q.Bookmarked {
		return false
	}
	for _, want := range q.Tags {
		found := false
		for _, tag := range s.Tags {
			if strings.EqualFold(tag, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Memory) ListSessions(_ context.Context, q SessionQuery) ([]models.SessionListItem, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.Session
	for _, s := range m.sessions {
		if matches(s, q) {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	total := int64(len(all))
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	out := make([]models.SessionListItem, 0, end-start)
	for _, s := range all[start:end] {
		item := models.SessionListItem{
			SessionID:            s.SessionID,
			Title:                s.Title,
			Status:               s.Status,
			OwnerID:              s.OwnerID,
			IsBookmarked:         s.IsBookmarked,
			Tags:                 append([]string(nil), s.Tags...),
			CurrentVersionNumber: s.CurrentVersionNumber,
			TotalVersions:        s.TotalVersions,
			MessageCount:         len(s.Messages),
			PresentationCount:    len(s.PresentationRefs),
			BranchInfo:           s.BranchInfo,
			CreatedAt:            s.CreatedAt,
			UpdatedAt:            s.UpdatedAt,
		}
		if len(s.Messages) > 0 {
			item.MessagePreview = s.Messages[len(s.Messages)-1].Content
		}
		out = append(out, item)
	}
	return out, total, nil
}

func (m *Memory) GetVersion(_ context.Context, sessionID, versionID string) (*models.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[sessionID][versionID]
	if !ok {
		return nil, fmt.Errorf("get version %s of session %s: %w", versionID, sessionID, ErrNotFound)
	}
	return copyVersion(v), nil
}

func (m *Memory) ListVersions(_ context.Context, sessionID string, q VersionQuery) ([]models.VersionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.Version
	for _, v := range m.versions[sessionID] {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool {
		if q.Ascending {
			return all[i].VersionNumber < all[j].VersionNumber
		}
		return all[i].VersionNumber > all[j].VersionNumber
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > len(all) {
		limit = len(all)
	}

	out := make([]models.VersionSummary, 0, limit)
	for _, v := range all[:limit] {
		out = append(out, v.Summary())
	}
	return out, nil
}

func (m *Memory) CommitVersion(_ context.Context, sess *models.Session, v *models.Version, expectedTotal int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCommits > 0 {
		m.FailCommits--
		return fmt.Errorf("commit version %d of session %s: %w", v.VersionNumber, sess.SessionID, ErrUnavailable)
	}

	stored, ok := m.sessions[sess.SessionID]
	if !ok {
		return fmt.Errorf("commit version %d of session %s: %w", v.VersionNumber, sess.SessionID, ErrNotFound)
	}
	if stored.TotalVersions != expectedTotal {
		return fmt.Errorf("commit version %d of session %s: %w", v.VersionNumber, sess.SessionID, ErrConflict)
	}
	if _, dup := m.versions[sess.SessionID][v.VersionID]; dup {
		return fmt.Errorf("commit version %d of session %s: %w", v.VersionNumber, sess.SessionID, ErrConflict)
	}

	data := models.SessionData{
		Messages:         sess.Messages,
		PresentationRefs: sess.PresentationRefs,
		Metadata:         sess.Metadata,
	}.Clone()
	stored.Messages = data.Messages
	stored.PresentationRefs = data.PresentationRefs
	stored.Metadata = data.Metadata
	stored.CurrentVersionNumber = v.VersionNumber
	stored.TotalVersions = v.VersionNumber
	stored.UpdatedAt = sess.UpdatedAt
	stored.LastActiveAt = sess.LastActiveAt

	if m.versions[sess.SessionID] == nil {
		m.versions[sess.SessionID] = make(map[string]*models.Version)
	}
	m.versions[sess.SessionID][v.VersionID] = copyVersion(v)
	return nil
}

func (m *Memory) AppendChild(_ context.Context, sessionID, parentVersionID, childVersionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, ok := m.versions[sessionID][parentVersionID]
	if !ok {
		return fmt.Errorf("link child %s to %s: %w", childVersionID, parentVersionID, ErrNotFound)
	}
	for _, id := range parent.ChildVersionIDs {
		if id == childVersionID {
			return nil
		}
	}
	parent.ChildVersionIDs = append(parent.ChildVersionIDs, childVersionID)
	return nil
}
