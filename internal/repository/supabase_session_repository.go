package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	supa "github.com/supabase-community/supabase-go"

	"storygen/backend/internal/models"
)

// SupabaseSessionRepository stores sessions in a hosted PostgREST table.
// The table mirrors models.Session with config, beats and artifacts as
// jsonb columns.
type SupabaseSessionRepository struct {
	client *supa.Client
	table  string
}

// NewSupabaseSessionRepository connects to the project at url.
func NewSupabaseSessionRepository(url, key, table string) (*SupabaseSessionRepository, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to supabase: %w", err)
	}
	if table == "" {
		table = models.Session{}.TableName()
	}
	return &SupabaseSessionRepository{client: client, table: table}, nil
}

// The PostgREST client has no context support; ctx is only checked before
// each call.

func (r *SupabaseSessionRepository) Create(ctx context.Context, s *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	var inserted []models.Session
	if _, err := r.client.From(r.table).Insert(s, false, "", "representation", "").ExecuteTo(&inserted); err != nil {
		return fmt.Errorf("create session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *SupabaseSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []models.Session
	_, err := r.client.From(r.table).Select("*", "", false).Eq("session_id", id).ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (r *SupabaseSessionRepository) Save(ctx context.Context, s *models.Session, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := *s
	next.Revision = s.Revision + 1
	if expected != AnyRevision {
		next.Revision = expected + 1
	}
	next.UpdatedAt = time.Now().UTC()

	q := r.client.From(r.table).Update(next, "representation", "").Eq("session_id", s.SessionID)
	if expected != AnyRevision {
		q = q.Eq("revision", strconv.FormatInt(expected, 10))
	}

	var updated []models.Session
	if _, err := q.ExecuteTo(&updated); err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	if len(updated) == 0 {
		if expected == AnyRevision {
			return ErrNotFound
		}
		if _, err := r.Get(ctx, s.SessionID); err != nil {
			return err
		}
		return ErrRevisionConflict
	}

	s.Revision = next.Revision
	s.UpdatedAt = next.UpdatedAt
	return nil
}
