package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/orsinium-labs/stopwords"

	"storygen/backend/internal/models"
	"storygen/backend/pkg/logger"
)

var properNoun = regexp.MustCompile(`\b[A-Z][a-zA-Z']+\b`)

const (
	firstSeenRunes = 140
	hintCharacters = 5
)

// CharacterStore persists the character table as a whole.
type CharacterStore interface {
	// LoadAll returns every record in insertion order.
	LoadAll(ctx context.Context) ([]models.CharacterRecord, error)
	// SaveAll upserts every record. FirstSeen of an existing row is never
	// overwritten.
	SaveAll(ctx context.Context, records []models.CharacterRecord) error
}

// CharacterMemoryOptions tunes name extraction.
type CharacterMemoryOptions struct {
	// SkipStopwords drops capitalized tokens that are English stopwords
	// ("The", "When") instead of recording them as characters.
	SkipStopwords bool
}

// CharacterMemory is the install-wide character continuity table. One
// instance is meant to be shared by every session: traits learned in one
// story are offered as hints to all others, with no per-session isolation.
type CharacterMemory struct {
	mu      sync.Mutex
	store   CharacterStore
	records []models.CharacterRecord
	byName  map[string]int
	skip    *stopwords.Stopwords
	log     *logger.Logger
}

// NewSharedCharacterMemory loads the table from store.
func NewSharedCharacterMemory(ctx context.Context, store CharacterStore, opts CharacterMemoryOptions, log *logger.Logger) (*CharacterMemory, error) {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load character table: %w", err)
	}

	m := &CharacterMemory{
		store:   store,
		records: records,
		byName:  make(map[string]int, len(records)),
		log:     log,
	}
	for i, r := range records {
		m.byName[r.Name] = i
	}
	if opts.SkipStopwords {
		m.skip = stopwords.MustGet("en")
	}
	return m, nil
}

// ExtractNames returns the distinct proper-noun tokens of text in order of
// first appearance.
func (m *CharacterMemory) ExtractNames(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, tok := range properNoun.FindAllString(text, -1) {
		if seen[tok] {
			continue
		}
		if m.skip != nil && m.skip.Contains(strings.ToLower(tok)) {
			continue
		}
		seen[tok] = true
		names = append(names, tok)
	}
	return names
}

// Bootstrap records every name in beats that is not yet known, with no
// traits and the first 140 characters of the beat where it first appears.
// Known names are left untouched, so repeated calls are no-ops.
func (m *CharacterMemory) Bootstrap(ctx context.Context, beats []models.Beat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := len(m.records)
	added := 0
	for _, b := range beats {
		for _, name := range m.ExtractNames(b.Text) {
			if _, ok := m.byName[name]; ok {
				continue
			}
			m.byName[name] = len(m.records)
			m.records = append(m.records, models.CharacterRecord{
				Name:      name,
				Traits:    []string{},
				FirstSeen: excerpt(b.Text, firstSeenRunes),
			})
			added++
		}
	}

	if err := m.persist(ctx); err != nil {
		// the table only holds names the store has accepted
		for _, rec := range m.records[known:] {
			delete(m.byName, rec.Name)
		}
		m.records = m.records[:known]
		return err
	}
	if added > 0 {
		m.log.Debug("Character table grew", "added", added, "total", len(m.records))
	}
	return nil
}

// Reinforce adds trait to name, creating the record when missing.
func (m *CharacterMemory) Reinforce(ctx context.Context, name, trait string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.byName[name]
	if !ok {
		idx = len(m.records)
		m.byName[name] = idx
		m.records = append(m.records, models.CharacterRecord{Name: name, Traits: []string{}})
	}
	rec := &m.records[idx]
	if !rec.HasTrait(trait) {
		rec.Traits = append(rec.Traits, trait)
	}
	return m.persist(ctx)
}

// ContinuityHint appends a "Character continuity:" trailer naming the
// traits of the first five characters in the table. Characters without
// traits are skipped; if none remain, text is returned unchanged.
func (m *CharacterMemory) ContinuityHint(text string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := len(m.records)
	if limit > hintCharacters {
		limit = hintCharacters
	}

	var parts []string
	for _, rec := range m.records[:limit] {
		if len(rec.Traits) == 0 {
			continue
		}
		parts = append(parts, rec.Name+": "+strings.Join(rec.Traits, ", "))
	}
	if len(parts) == 0 {
		return text
	}
	return text + "\nCharacter continuity: " + strings.Join(parts, "; ")
}

// List returns a copy of the table in insertion order.
func (m *CharacterMemory) List() []models.CharacterRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CharacterRecord, len(m.records))
	for i, r := range m.records {
		r.Traits = append([]string{}, r.Traits...)
		out[i] = r
	}
	return out
}

func (m *CharacterMemory) persist(ctx context.Context) error {
	now := time.Now()
	for i := range m.records {
		if m.records[i].CreatedAt.IsZero() {
			m.records[i].CreatedAt = now
		}
		m.records[i].UpdatedAt = now
	}
	if err := m.store.SaveAll(ctx, m.records); err != nil {
		m.log.LogError(err, "Failed to persist character table")
		return fmt.Errorf("save character table: %w", err)
	}
	return nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
