package presentation

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"luna/internal/models"
)

// Artifact is a generated presentation file on disk.
type Artifact struct {
	PresentationID string
	SessionID      string
	OwnerID        string
	Filename       string
	FilePath       string
	Size           int64
	ContentType    string
	SlideCount     int
	CreatedAt      time.Time
}

// Service turns decks into files through a Converter and hands back the
// PresentationRef the session ledger records.
type Service struct {
	converter Converter
	outputDir string

	mu        sync.RWMutex
	artifacts map[string]*Artifact
}

// NewService creates a presentation service writing into outputDir.
func NewService(converter Converter, outputDir string) (*Service, error) {
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create presentation directory: %w", err)
	}
	return &Service{
		converter: converter,
		outputDir: outputDir,
		artifacts: make(map[string]*Artifact),
	}, nil
}

// Generate renders the deck, stores the artifact, and returns the
// reference to attach to the session.
func (s *Service) Generate(ctx context.Context, deck Deck, sessionID, ownerID string) (*models.PresentationRef, *Artifact, error) {
	if deck.Title == "" {
		deck.Title = "Presentation"
	}
	if len(deck.Slides) == 0 {
		return nil, nil, fmt.Errorf("presentation must have at least one slide")
	}

	out, err := s.converter.Convert(ctx, deck)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert deck: %w", err)
	}

	presentationID := uuid.New().String()
	filePath := filepath.Join(s.outputDir, presentationID+s.converter.Extension())
	if err := os.WriteFile(filePath, out, 0600); err != nil {
		return nil, nil, fmt.Errorf("failed to write presentation file: %w", err)
	}

	artifact := &Artifact{
		PresentationID: presentationID,
		SessionID:      sessionID,
		OwnerID:        ownerID,
		Filename:       sanitizeFilename(deck.Title) + s.converter.Extension(),
		FilePath:       filePath,
		Size:           int64(len(out)),
		ContentType:    s.converter.ContentType(),
		SlideCount:     len(deck.Slides),
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.artifacts[presentationID] = artifact
	s.mu.Unlock()

	log.Printf("🎯 [PRESENTATION] Generated %s (%d bytes, %d slides)", artifact.Filename, artifact.Size, artifact.SlideCount)

	ref := &models.PresentationRef{
		ID:         presentationID,
		Title:      deck.Title,
		SlideCount: len(deck.Slides),
		AddedAt:    artifact.CreatedAt,
	}
	return ref, artifact, nil
}

// Get retrieves a generated artifact by id.
func (s *Service) Get(presentationID string) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[presentationID]
	return a, ok
}

// sanitizeFilename removes invalid characters from filename
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "presentation"
	}
	return result
}
