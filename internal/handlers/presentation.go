package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"luna/internal/presentation"
	"luna/internal/services"
)

// PresentationHandler handles deck generation and artifact downloads
type PresentationHandler struct {
	presentations *presentation.Service
	sessions      *services.SessionService
}

// NewPresentationHandler creates a new presentation handler
func NewPresentationHandler(presentations *presentation.Service, sessions *services.SessionService) *PresentationHandler {
	return &PresentationHandler{presentations: presentations, sessions: sessions}
}

// Generate renders a deck, stores the artifact, and attaches the
// reference to the session as a versioned mutation
// POST /api/sessions/:id/generate
func (h *PresentationHandler) Generate(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if h.presentations == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Presentation service not available",
		})
	}

	var deck presentation.Deck
	if err := c.BodyParser(&deck); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Resolve the session before rendering so a bad id fails fast.
	if _, err := h.sessions.GetSession(c.Context(), sessionID); err != nil {
		return fail(c, err)
	}

	ref, artifact, err := h.presentations.Generate(c.Context(), deck, sessionID, userID(c))
	if err != nil {
		log.Printf("❌ Failed to generate presentation for session %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate presentation",
		})
	}

	attached, err := h.sessions.AddGeneratedPresentation(c.Context(), sessionID, *ref, true)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"presentation": attached,
		"download_url": "/api/presentations/" + artifact.PresentationID + "/download",
		"size":         artifact.Size,
		"content_type": artifact.ContentType,
	})
}

// Download streams a generated artifact
// GET /api/presentations/:id/download
func (h *PresentationHandler) Download(c *fiber.Ctx) error {
	presentationID := c.Params("id")

	if h.presentations == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Presentation service not available",
		})
	}

	artifact, ok := h.presentations.Get(presentationID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Presentation not found",
		})
	}

	c.Set("Content-Type", artifact.ContentType)
	c.Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	return c.SendFile(artifact.FilePath)
}
