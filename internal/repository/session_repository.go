package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"storygen/backend/internal/models"
)

var (
	// ErrNotFound is returned when no session has the requested id.
	ErrNotFound = errors.New("session not found")
	// ErrRevisionConflict is returned by Save when the stored revision no
	// longer matches the expected one.
	ErrRevisionConflict = errors.New("session revision conflict")
)

// AnyRevision disables the compare-and-swap check in Save.
const AnyRevision int64 = -1

// SessionRepository persists whole session records.
type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	// Save overwrites the full record and bumps its revision. With
	// expected set to AnyRevision the last writer wins.
	Save(ctx context.Context, s *models.Session, expected int64) error
}

// GormSessionRepository stores sessions in a SQL table.
type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Migrate creates or updates the sessions table.
func (r *GormSessionRepository) Migrate() error {
	return r.db.AutoMigrate(&models.Session{})
}

func (r *GormSessionRepository) Create(ctx context.Context, s *models.Session) error {
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("create session %s: %w", s.SessionID, err)
	}
	return nil
}

func (r *GormSessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).First(&s, "session_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &s, nil
}

func (r *GormSessionRepository) Save(ctx context.Context, s *models.Session, expected int64) error {
	next := *s
	next.Revision = s.Revision + 1
	if expected != AnyRevision {
		next.Revision = expected + 1
	}
	next.UpdatedAt = time.Now()

	q := r.db.WithContext(ctx).Model(&models.Session{}).Where("session_id = ?", s.SessionID)
	if expected != AnyRevision {
		q = q.Where("revision = ?", expected)
	}
	res := q.Select("*").Omit("session_id", "created_at").Updates(&next)
	if res.Error != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, res.Error)
	}
	if res.RowsAffected == 0 {
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
