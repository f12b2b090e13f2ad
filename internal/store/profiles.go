package store

import (
	"context"
	"fmt"
	"time"

	"github.com/socratic-ai/tutor-platform/internal/model"
)

// UpsertProfile records the display name and role of a user.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) error {
	query := s.rebind(`
		INSERT INTO profiles (id, display_name, role, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			updated_at = excluded.updated_at`)

	if _, err := s.db.ExecContext(ctx, query, p.ID, p.DisplayName, string(p.Role), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetProfiles returns the profiles for ids keyed by id. Unknown ids are absent.
func (s *Store) GetProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error) {
	profiles := make(map[string]model.Profile, len(ids))

	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		query := s.rebind(fmt.Sprintf(
			`SELECT id, display_name, role FROM profiles WHERE id IN (%s)`, placeholders(len(batch))))

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query profiles: %w", err)
		}

		for rows.Next() {
			var p model.Profile
			var role string
			if err := rows.Scan(&p.ID, &p.DisplayName, &role); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan profile: %w", err)
			}
			p.Role = model.Role(role)
			profiles[p.ID] = p
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to iterate profiles: %w", err)
		}
		rows.Close()
	}

	return profiles, nil
}
