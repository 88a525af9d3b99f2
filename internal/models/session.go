package models

import (
	"time"
)

// StoryConfig holds the generation parameters a session was started with.
type StoryConfig struct {
	Prompt   string  `json:"prompt"`
	Genre    *string `json:"genre"`
	Tone     *string `json:"tone"`
	Audience *string `json:"audience"`
	Scenes   int     `json:"scenes"`
	Guidance *string `json:"guidance"`
}

// Session is one persisted story in progress.
//
// Artifacts are index-aligned with Beats after a successful render. A branch
// replaces Beats but leaves Artifacts untouched, so they may reference the
// superseded beat sequence until the next render.
type Session struct {
	SessionID string      `json:"session_id" gorm:"primaryKey;size:64"`
	Config    StoryConfig `json:"config" gorm:"serializer:json;type:text"`
	Beats     []Beat      `json:"beats" gorm:"serializer:json;type:text"`
	Artifacts []string    `json:"artifacts" gorm:"serializer:json;type:text"`
	Cursor    int         `json:"cursor"`
	Revision  int64       `json:"revision"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName overrides the table name
func (Session) TableName() string {
	return "story_sessions"
}

// ArtifactsStale reports whether the artifact list no longer lines up with
// the current beat sequence.
func (s *Session) ArtifactsStale() bool {
	return len(s.Artifacts) > 0 && len(s.Artifacts) != len(s.Beats)
}

// Clone returns a deep copy so callers can mutate without aliasing a cached
// record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Beats != nil {
		out.Beats = make([]Beat, len(s.Beats))
		copy(out.Beats, s.Beats)
		for i := range out.Beats {
			out.Beats[i].Choices = cloneStrings(s.Beats[i].Choices)
		}
	}
	out.Artifacts = cloneStrings(s.Artifacts)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// StartStoryRequest is the payload for starting a session.
type StartStoryRequest struct {
	Prompt   string  `json:"prompt" binding:"required"`
	Genre    *string `json:"genre"`
	Tone     *string `json:"tone"`
	Audience *string `json:"audience"`
	Scenes   *int    `json:"scenes"`
	Guidance *string `json:"guidance"`
}

// BranchStoryRequest is the payload for branching a session.
type BranchStoryRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	ChoiceIdx int    `json:"choice_idx" binding:"min=0"`
	Step      int    `json:"step" binding:"min=0"`
	// Revision enables compare-and-swap when set.
	Revision *int64 `json:"revision,omitempty"`
}

// CursorRequest moves the presentation cursor.
type CursorRequest struct {
	Cursor int `json:"cursor" binding:"min=0"`
}
