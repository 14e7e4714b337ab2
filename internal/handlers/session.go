package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"luna/internal/models"
	"luna/internal/services"
	"luna/internal/store"
)

// SessionHandler handles session lifecycle and mutation requests
type SessionHandler struct {
	sessions *services.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create creates a new session, optionally seeded with a first message
// POST /api/sessions
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req models.CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var owner *string
	if uid := userID(c); uid != "" {
		owner = &uid
	}

	sess, err := h.sessions.CreateSession(c.Context(), owner, &req)
	if err != nil {
		log.Printf("❌ Failed to create session: %v", err)
		return fail(c, err)
	}

	log.Printf("📝 [SESSION] Created session %s (v%d)", sess.SessionID, sess.CurrentVersionNumber)
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// Get returns a session with its current working copy
// GET /api/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	sess, err := h.sessions.GetSession(c.Context(), sessionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sess)
}

// Update patches the whitelisted display fields of a session
// PUT /api/sessions/:id
func (h *SessionHandler) Update(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	sess, err := h.sessions.UpdateSession(c.Context(), sessionID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sess)
}

// Archive marks a session archived without removing any data
// POST /api/sessions/:id/archive
func (h *SessionHandler) Archive(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	sess, err := h.sessions.ArchiveSession(c.Context(), sessionID)
	if err != nil {
		return fail(c, err)
	}

	log.Printf("📦 [SESSION] Archived session %s", sessionID)
	return c.JSON(sess)
}

// Delete hard-deletes a session and its version history
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if err := h.sessions.DeleteSession(c.Context(), sessionID); err != nil {
		return fail(c, err)
	}

	log.Printf("🗑️ [SESSION] Deleted session %s", sessionID)
	return c.JSON(fiber.Map{"deleted": true, "session_id": sessionID})
}

// List returns the caller's sessions with filtering and pagination
// GET /api/sessions?status=&bookmarked=&tags=&page=&page_size=
func (h *SessionHandler) List(c *fiber.Ctx) error {
	q := store.SessionQuery{
		Status:   c.Query("status"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 20),
	}

	uid := userID(c)
	q.OwnerSet = true
	if uid != "" {
		q.OwnerID = &uid
	}

	if bookmarked := c.Query("bookmarked"); bookmarked != "" {
		q.BookmarkedSet = true
		q.Bookmarked = bookmarked == "true" || bookmarked == "1"
	}
	if tags := c.Query("tags"); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				q.Tags = append(q.Tags, tag)
			}
		}
	}

	resp, err := h.sessions.GetUserSessions(c.Context(), q)
	if err != nil {
		log.Printf("❌ Failed to list sessions: %v", err)
		return fail(c, err)
	}
	return c.JSON(resp)
}

// AddMessage appends a message and versions the post-append state
// POST /api/sessions/:id/messages
func (h *SessionHandler) AddMessage(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.AddMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	createVersion := req.CreateVersion == nil || *req.CreateVersion
	msg, err := h.sessions.AddMessage(c.Context(), sessionID, req.Message, createVersion)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// AddPresentation attaches a generated-presentation reference
// POST /api/sessions/:id/presentations
func (h *SessionHandler) AddPresentation(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req models.AddPresentationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	createVersion := req.CreateVersion == nil || *req.CreateVersion
	ref, err := h.sessions.AddGeneratedPresentation(c.Context(), sessionID, req.Presentation, createVersion)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ref)
}
