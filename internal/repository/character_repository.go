package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storygen/backend/internal/models"
)

// GormCharacterRepository stores the global character table.
type GormCharacterRepository struct {
	db *gorm.DB
}

func NewGormCharacterRepository(db *gorm.DB) *GormCharacterRepository {
	return &GormCharacterRepository{db: db}
}

func (r *GormCharacterRepository) Migrate() error {
	return r.db.AutoMigrate(&models.CharacterRecord{})
}

// LoadAll returns every record in insertion order.
func (r *GormCharacterRepository) LoadAll(ctx context.Context) ([]models.CharacterRecord, error) {
	var records []models.CharacterRecord
	if err := r.db.WithContext(ctx).Order("seq").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load characters: %w", err)
	}
	return records, nil
}

// SaveAll upserts every record by name. Traits are replaced; first_seen
// and created_at keep the values of the original insert.
func (r *GormCharacterRepository) SaveAll(ctx context.Context, records []models.CharacterRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			rec := &records[i]
			var err error
			if rec.Seq != 0 {
				err = tx.Model(rec).Select("traits", "updated_at").Updates(rec).Error
			} else {
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "name"}},
					DoUpdates: clause.AssignmentColumns([]string{"traits", "updated_at"}),
				}).Create(rec).Error
			}
			if err != nil {
				return fmt.Errorf("save character %s: %w", rec.Name, err)
			}
		}
		return nil
	})
}
