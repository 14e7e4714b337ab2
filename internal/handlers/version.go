package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"luna/internal/services"
)

// VersionHandler handles version-history, revert, branch, and diff requests
type VersionHandler struct {
	sessions *services.SessionService
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(sessions *services.SessionService) *VersionHandler {
	return &VersionHandler{sessions: sessions}
}

// History lists version summaries for a session
// GET /api/sessions/:id/versions?order=asc|desc&limit=
func (h *VersionHandler) History(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	ascending := strings.EqualFold(c.Query("order"), "asc")
	limit := c.QueryInt("limit", 0)

	summaries, err := h.sessions.GetVersionHistory(c.Context(), sessionID, ascending, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"versions":   summaries,
	})
}

// Get returns one full version, snapshot included
// GET /api/sessions/:id/versions/:versionId
func (h *VersionHandler) Get(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	versionID := c.Params("versionId")

	version, err := h.sessions.GetVersion(c.Context(), sessionID, versionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(version)
}

type revertRequest struct {
	TargetVersionID string `json:"target_version_id"`
}

// Revert creates a new version whose snapshot equals a historical one
// POST /api/sessions/:id/revert
func (h *VersionHandler) Revert(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req revertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	version, err := h.sessions.RevertToVersion(c.Context(), sessionID, req.TargetVersionID, userID(c))
	if err != nil {
		log.Printf("❌ Failed to revert session %s to %s: %v", sessionID, req.TargetVersionID, err)
		return fail(c, err)
	}

	log.Printf("⏪ [VERSION] Session %s reverted to %s as %s", sessionID, req.TargetVersionID, version.VersionID)
	return c.Status(fiber.StatusCreated).JSON(version)
}

type branchRequest struct {
	SourceVersionID string `json:"source_version_id"`
	BranchName      string `json:"branch_name"`
}

// Branch forks a new session from a historical version
// POST /api/sessions/:id/branch
func (h *VersionHandler) Branch(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req branchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	branched, err := h.sessions.CreateBranch(c.Context(), sessionID, req.SourceVersionID, req.BranchName, userID(c))
	if err != nil {
		log.Printf("❌ Failed to branch session %s at %s: %v", sessionID, req.SourceVersionID, err)
		return fail(c, err)
	}

	log.Printf("🌿 [VERSION] Branched session %s at %s into %s", sessionID, req.SourceVersionID, branched.SessionID)
	return c.Status(fiber.StatusCreated).JSON(branched)
}

// Diff computes the structural difference between two versions
// GET /api/sessions/:id/diff?from=v1&to=v2
func (h *VersionHandler) Diff(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	from := c.Query("from")
	to := c.Query("to")

	if from == "" || to == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query parameters 'from' and 'to' are required",
		})
	}

	diff, err := h.sessions.GenerateDiff(c.Context(), sessionID, from, to)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(diff)
}
