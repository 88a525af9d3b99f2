package service

import (
	"encoding/json"
	"strings"

	"storygen/backend/internal/models"
)

// ParseOutcome tells callers which branch of the beat parse was taken.
type ParseOutcome int

const (
	// ParsedStructured means the response decoded as a non-empty JSON array.
	ParsedStructured ParseOutcome = iota
	// ParseFallback means the response was unusable and the caller must
	// substitute its own fallback value.
	ParseFallback
)

func (o ParseOutcome) String() string {
	if o == ParsedStructured {
		return "structured"
	}
	return "fallback"
}

// BeatParse is the result of interpreting a raw generator response.
type BeatParse struct {
	Outcome ParseOutcome
	Beats   []models.Beat
}

// ParseBeats interprets raw generator output as a list of beats. Elements
// are not validated: anything inside a JSON array is kept, and elements
// without the beat shape survive verbatim.
func ParseBeats(raw string) BeatParse {
	cleaned := stripCodeFence(raw)
	if !strings.HasPrefix(cleaned, "[") {
		return BeatParse{Outcome: ParseFallback}
	}

	var beats []models.Beat
	// an empty array falls back so callers always get at least one beat
	if err := json.Unmarshal([]byte(cleaned), &beats); err != nil || len(beats) == 0 {
		return BeatParse{Outcome: ParseFallback}
	}
	return BeatParse{Outcome: ParsedStructured, Beats: beats}
}

// parseStringList decodes a JSON array of strings, tolerating code fences.
func parseStringList(raw string) ([]string, bool) {
	cleaned := stripCodeFence(raw)
	if !strings.HasPrefix(cleaned, "[") {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

// stripCodeFence drops a surrounding ``` or ```json fence that chat models
// like to wrap JSON in.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
