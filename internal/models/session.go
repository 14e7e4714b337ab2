package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session status values
const (
	SessionStatusActive   = "active"
	SessionStatusArchived = "archived"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session is the mutable container for an evolving conversation and its
// generated presentations. The working copy (Messages, PresentationRefs,
// Metadata) always mirrors the snapshot of the current version.
type Session struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID   string             `bson:"sessionId" json:"session_id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	OwnerID     *string            `bson:"ownerId" json:"owner_id"` // nil for anonymous sessions
	Status      string             `bson:"status" json:"status"`

	CurrentVersionNumber int `bson:"currentVersionNumber" json:"current_version_number"`
	TotalVersions        int `bson:"totalVersions" json:"total_versions"`

	// Working copy (denormalized snapshot of the current version)
	Messages         []Message         `bson:"messages" json:"messages"`
	PresentationRefs []PresentationRef `bson:"presentationRefs" json:"presentation_refs"`
	Metadata         map[string]any    `bson:"metadata" json:"metadata"`

	IsBookmarked bool           `bson:"isBookmarked" json:"is_bookmarked"`
	Tags         []string       `bson:"tags,omitempty" json:"tags,omitempty"`
	Settings     map[string]any `bson:"settings,omitempty" json:"settings,omitempty"`

	BranchInfo *BranchInfo `bson:"branchInfo,omitempty" json:"branch_info,omitempty"`

	CreatedAt    time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updated_at"`
	LastActiveAt time.Time `bson:"lastActiveAt" json:"last_active_at"`
}

// BranchInfo records the lineage of a branched session. Lineage lives in
// these structured fields, never in the session id itself.
type BranchInfo struct {
	ParentSessionID string    `bson:"parentSessionId" json:"parent_session_id"`
	SourceVersionID string    `bson:"sourceVersionId" json:"source_version_id"`
	BranchName      string    `bson:"branchName" json:"branch_name"`
	BranchedAt      time.Time `bson:"branchedAt" json:"branched_at"`
}

// Message is a single conversation turn.
type Message struct {
	MessageID string         `bson:"messageId" json:"message_id"`
	Role      string         `bson:"role" json:"role"` // "user", "assistant", "system"
	Content   string         `bson:"content" json:"content"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// PresentationRef points at a generated presentation attached to a session.
type PresentationRef struct {
	ID             string    `bson:"id" json:"id"`
	Title          string    `bson:"title" json:"title"`
	SlideCount     int       `bson:"slideCount" json:"slide_count"`
	AddedAt        time.Time `bson:"addedAt" json:"added_at"`
	VersionAddedAt int       `bson:"versionAddedAt" json:"version_added_at"` // version number active when attached
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	InitialMessage *Message       `json:"initial_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
}

// UpdateSessionRequest carries the whitelisted partial-update fields.
// Anything else on the session document is owned by the ledger and
// cannot be written through this request.
type UpdateSessionRequest struct {
	Title        *string        `json:"title,omitempty"`
	IsBookmarked *bool          `json:"is_bookmarked,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
	Status       *string        `json:"status,omitempty"`
}

// AddMessageRequest is the request body for appending a message.
type AddMessageRequest struct {
	Message       Message `json:"message"`
	CreateVersion *bool   `json:"create_version,omitempty"` // default true
}

// AddPresentationRequest is the request body for attaching a generated
// presentation reference.
type AddPresentationRequest struct {
	Presentation  PresentationRef `json:"presentation"`
	CreateVersion *bool           `json:"create_version,omitempty"` // default true
}

// SessionListItem is the listing projection. It carries a bounded message
// preview and never the full message list.
type SessionListItem struct {
	SessionID            string      `bson:"sessionId" json:"session_id"`
	Title                string      `bson:"title" json:"title"`
	Status               string      `bson:"status" json:"status"`
	OwnerID              *string     `bson:"ownerId" json:"owner_id"`
	IsBookmarked         bool        `bson:"isBookmarked" json:"is_bookmarked"`
	Tags                 []string    `bson:"tags,omitempty" json:"tags,omitempty"`
	CurrentVersionNumber int         `bson:"currentVersionNumber" json:"current_version_number"`
	TotalVersions        int         `bson:"totalVersions" json:"total_versions"`
	MessageCount         int         `bson:"-" json:"message_count"`
	PresentationCount    int         `bson:"-" json:"presentation_count"`
	MessagePreview       string      `bson:"-" json:"message_preview,omitempty"`
	BranchInfo           *BranchInfo `bson:"branchInfo,omitempty" json:"branch_info,omitempty"`
	CreatedAt            time.Time   `bson:"createdAt" json:"created_at"`
	UpdatedAt            time.Time   `bson:"updatedAt" json:"updated_at"`
}

// SessionListResponse is the paginated listing envelope.
type SessionListResponse struct {
	Sessions   []SessionListItem `json:"sessions"`
	TotalCount int64             `json:"total_count"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	HasMore    bool              `json:"has_more"`
}
