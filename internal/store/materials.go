package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

const materialColumns = `id, course_id, assignment_id, title, kind, storage_path, text_extracted, created_at`

// CreateMaterial inserts a material and its text chunks in one transaction.
func (s *Store) CreateMaterial(ctx context.Context, m *model.Material, chunks []model.MaterialTextChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := s.rebind(`INSERT INTO materials (` + materialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		m.ID, m.CourseID, nullString(m.AssignmentID), m.Title, string(m.Kind),
		m.StoragePath, m.TextExtracted, m.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert material: %w", err)
	}

	chunkInsert := s.rebind(`INSERT INTO material_chunks (material_id, chunk_index, content) VALUES (?, ?, ?)`)
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, chunkInsert, m.ID, c.ChunkIndex, c.Content); err != nil {
			return fmt.Errorf("failed to insert material chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit material: %w", err)
	}
	return nil
}

// GetMaterial returns a material by id.
func (s *Store) GetMaterial(ctx context.Context, id string) (*model.Material, error) {
	query := s.rebind(`SELECT ` + materialColumns + ` FROM materials WHERE id = ?`)

	m, err := scanMaterial(s.db.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query material: %w", err)
	}
	return m, nil
}

// ListMaterials returns a course's materials restricted to kinds. When
// assignmentID is set, course-wide materials are included alongside the
// assignment's own.
func (s *Store) ListMaterials(ctx context.Context, courseID string, assignmentID *string, kinds []model.MaterialKind) ([]model.Material, error) {
	if len(kinds) == 0 {
		return []model.Material{}, nil
	}

	where, args := materialFilter("", courseID, assignmentID, kinds)
	query := s.rebind(`SELECT ` + materialColumns + ` FROM materials WHERE ` + where + ` ORDER BY created_at, id`)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	materials := []model.Material{}
	for rows.Next() {
		m, err := scanMaterial(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		materials = append(materials, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate materials: %w", err)
	}
	return materials, nil
}

// ListMaterialExcerpts returns up to limit text chunks of materials matching
// the filter. Chunks of assignment-specific materials come before
// course-wide ones, newer materials before older, then by chunk index, so the
// limit drops the least relevant material first.
func (s *Store) ListMaterialExcerpts(ctx context.Context, courseID string, assignmentID *string, kinds []model.MaterialKind, limit int) ([]model.MaterialExcerpt, error) {
	if len(kinds) == 0 || limit <= 0 {
		return []model.MaterialExcerpt{}, nil
	}

	where, args := materialFilter("m.", courseID, assignmentID, kinds)
	args = append(args, limit)
	query := s.rebind(`
		SELECT c.material_id, m.title, c.chunk_index, c.content
		FROM material_chunks c
		JOIN materials m ON m.id = c.material_id
		WHERE ` + where + `
		ORDER BY CASE WHEN m.assignment_id IS NULL THEN 1 ELSE 0 END,
			m.created_at DESC, m.id, c.chunk_index
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query material excerpts: %w", err)
	}
	defer rows.Close()

	excerpts := []model.MaterialExcerpt{}
	for rows.Next() {
		var e model.MaterialExcerpt
		if err := rows.Scan(&e.MaterialID, &e.Title, &e.ChunkIndex, &e.Content); err != nil {
			return nil, fmt.Errorf("failed to scan material excerpt: %w", err)
		}
		excerpts = append(excerpts, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate material excerpts: %w", err)
	}
	return excerpts, nil
}

// DeleteMaterial removes a material and its chunks.
func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM material_chunks WHERE material_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete material chunks: %w", err)
	}

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM materials WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit material delete: %w", err)
	}
	return nil
}

func materialFilter(prefix, courseID string, assignmentID *string, kinds []model.MaterialKind) (string, []any) {
	var b strings.Builder
	args := []any{courseID}

	b.WriteString(prefix + `course_id = ?`)
	if assignmentID != nil {
		b.WriteString(` AND (` + prefix + `assignment_id = ? OR ` + prefix + `assignment_id IS NULL)`)
		args = append(args, *assignmentID)
	}

	b.WriteString(` AND ` + prefix + `kind IN (` + placeholders(len(kinds)) + `)`)
	for _, k := range kinds {
		args = append(args, string(k))
	}
	return b.String(), args
}

func scanMaterial(scan func(dest ...any) error) (*model.Material, error) {
	var (
		m          model.Material
		assignment sql.NullString
		kind       string
	)
	if err := scan(&m.ID, &m.CourseID, &assignment, &m.Title, &kind, &m.StoragePath, &m.TextExtracted, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.AssignmentID = stringPtr(assignment)
	m.Kind = model.MaterialKind(kind)
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}
