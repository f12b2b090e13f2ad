package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/chunker"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/internal/store"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
	"github.com/socratic-ai/tutor-platform/pkg/metrics"
)

const (
	pdfMIME = "application/pdf"

	// presignConcurrency bounds parallel URL signing on list.
	presignConcurrency = 8
)

// MaterialConfig holds material limits.
type MaterialConfig struct {
	MaxBytes int64
	URLTTL   time.Duration
}

// CreateMaterialInput is a validated upload.
type CreateMaterialInput struct {
	CourseID     string
	AssignmentID *string
	Title        string
	Kind         model.MaterialKind
	File         []byte

	// Text is the extracted document text, when the client supplies it.
	Text string
}

// MaterialService manages the material catalog.
type MaterialService struct {
	store   Store
	objects ObjectStorage
	access  courseAccess
	cfg     MaterialConfig
	logger  *logger.Logger
}

// NewMaterialService creates a new material service.
func NewMaterialService(st Store, objects ObjectStorage, cfg MaterialConfig, log *logger.Logger) *MaterialService {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 10 * time.Minute
	}
	return &MaterialService{
		store:   st,
		objects: objects,
		access:  courseAccess{store: st},
		cfg:     cfg,
		logger:  log,
	}
}

// MaxBytes returns the upload size limit.
func (s *MaterialService) MaxBytes() int64 {
	return s.cfg.MaxBytes
}

// StoragePath returns the object key of a material file.
func StoragePath(courseID, materialID string) string {
	return fmt.Sprintf("courses/%s/materials/%s.pdf", courseID, materialID)
}

// Create uploads a PDF and records it. Supplied text is chunked for tutor
// grounding.
func (s *MaterialService) Create(ctx context.Context, auth model.AuthContext, in *CreateMaterialInput) (*model.Material, error) {
	if _, err := s.access.owner(ctx, auth, in.CourseID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, apperr.Validation("title is required")
	case !in.Kind.Valid():
		return nil, apperr.Validation(fmt.Sprintf("invalid kind %q", in.Kind))
	case len(in.File) == 0:
		return nil, apperr.Validation("file is required")
	case int64(len(in.File)) > s.cfg.MaxBytes:
		return nil, apperr.Validation(fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxBytes))
	case !mimetype.Detect(in.File).Is(pdfMIME):
		return nil, apperr.Validation("file must be a PDF")
	}

	if in.AssignmentID != nil {
		assignment, err := s.store.GetAssignment(ctx, *in.AssignmentID)
		if err != nil {
			return nil, storeError(err, "assignment")
		}
		if assignment.CourseID != in.CourseID {
			return nil, apperr.NotFound("assignment not found")
		}
	}

	m := &model.Material{
		ID:           newID(),
		CourseID:     in.CourseID,
		AssignmentID: in.AssignmentID,
		Title:        title,
		Kind:         in.Kind,
		CreatedAt:    now(),
	}
	m.StoragePath = StoragePath(m.CourseID, m.ID)

	var chunks []model.MaterialTextChunk
	if text := strings.TrimSpace(in.Text); text != "" {
		for _, c := range chunker.Split(text) {
			chunks = append(chunks, model.MaterialTextChunk{MaterialID: m.ID, ChunkIndex: c.Index, Content: c.Content})
		}
		m.TextExtracted = len(chunks) > 0
	}

	if err := s.objects.Upload(ctx, m.StoragePath, bytes.NewReader(in.File), int64(len(in.File)), pdfMIME); err != nil {
		return nil, apperr.Persistence("failed to store material file", err)
	}

	if err := s.store.CreateMaterial(ctx, m, chunks); err != nil {
		if delErr := s.objects.Delete(ctx, m.StoragePath); delErr != nil {
			s.logger.Warn("failed to remove orphaned material file",
				zap.String("storage_path", m.StoragePath),
				zap.Error(delErr))
		}
		return nil, apperr.Persistence("failed to save material", err)
	}

	metrics.MaterialsTotal.WithLabelValues("create", string(m.Kind)).Inc()
	s.logger.Info("material created",
		zap.String("material_id", m.ID),
		zap.String("course_id", m.CourseID),
		zap.String("kind", string(m.Kind)),
		zap.Int("chunks", len(chunks)))

	return m, nil
}

// List returns the materials of a course visible to the caller, each with a
// short-lived download URL. Any signing failure fails the listing.
func (s *MaterialService) List(ctx context.Context, auth model.AuthContext, courseID string, assignmentID *string) (*model.ListMaterialsResponse, error) {
	if _, err := s.access.member(ctx, auth, courseID); err != nil {
		return nil, err
	}

	materials, err := s.store.ListMaterials(ctx, courseID, assignmentID, visibleKinds(auth.Role))
	if err != nil {
		return nil, apperr.Persistence("failed to list materials", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(presignConcurrency)
	for i := range materials {
		m := &materials[i]
		g.Go(func() error {
			url, err := s.objects.PresignGet(gctx, m.StoragePath, s.cfg.URLTTL)
			if err != nil {
				return fmt.Errorf("sign %s: %w", m.ID, err)
			}
			m.DownloadURL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Persistence("failed to sign material URLs", err)
	}

	return &model.ListMaterialsResponse{Materials: materials}, nil
}

// Delete removes a material, its chunks and its file.
func (s *MaterialService) Delete(ctx context.Context, auth model.AuthContext, materialID string) error {
	m, err := s.store.GetMaterial(ctx, materialID)
	if err != nil {
		return storeError(err, "material")
	}

	if _, err := s.access.owner(ctx, auth, m.CourseID); err != nil {
		return err
	}

	if err := s.store.DeleteMaterial(ctx, m.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("material not found")
		}
		return apperr.Persistence("failed to delete material", err)
	}

	if err := s.objects.Delete(ctx, m.StoragePath); err != nil {
		s.logger.Warn("failed to delete material file",
			zap.String("material_id", m.ID),
			zap.String("storage_path", m.StoragePath),
			zap.Error(err))
	}

	metrics.MaterialsTotal.WithLabelValues("delete", string(m.Kind)).Inc()
	return nil
}

// StudentContext returns text chunks a student may see for an assignment.
// Answer keys are never included.
func (s *MaterialService) StudentContext(ctx context.Context, courseID, assignmentID string, limit int) ([]model.MaterialExcerpt, error) {
	excerpts, err := s.store.ListMaterialExcerpts(ctx, courseID, &assignmentID, model.StudentVisibleKinds(), limit)
	if err != nil {
		return nil, apperr.Persistence("failed to load course materials", err)
	}
	return excerpts, nil
}

func visibleKinds(role model.Role) []model.MaterialKind {
	var kinds []model.MaterialKind
	for _, k := range []model.MaterialKind{model.KindReading, model.KindSlides, model.KindAssignment, model.KindAnswers, model.KindOther} {
		if model.VisibleTo(role, k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
