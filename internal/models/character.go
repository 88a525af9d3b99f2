package models

import (
	"time"
)

// CharacterRecord is one entry of the global character continuity table.
// Seq preserves insertion order across restarts.
type CharacterRecord struct {
	Seq       uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"uniqueIndex;size:128;not null"`
	Traits    []string  `json:"traits" gorm:"serializer:json;type:text"`
	FirstSeen string    `json:"first_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (CharacterRecord) TableName() string {
	return "story_characters"
}

// HasTrait reports whether trait is already recorded.
func (c *CharacterRecord) HasTrait(trait string) bool {
	for _, t := range c.Traits {
		if t == trait {
			return true
		}
	}
	return false
}

type ReinforceTraitRequest struct {
	Trait string `json:"trait" binding:"required"`
}

type ClarifyRequest struct {
	SeedPrompt string `json:"seed_prompt" binding:"required"`
}

type UpgradeRequest struct {
	SeedPrompt string   `json:"seed_prompt" binding:"required"`
	Answers    []string `json:"answers"`
}
