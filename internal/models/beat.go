package models

import (
	"bytes"
	"encoding/json"
)

// Beat is one narrative unit: a block of prose and the choices that branch
// away from it. A beat with no choices is terminal.
type Beat struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices"`

	// raw holds the generator's element verbatim when it did not have the
	// beat shape. It is re-emitted unchanged on marshal.
	raw json.RawMessage
}

// NewBeat builds a well-formed beat.
func NewBeat(text string, choices ...string) Beat {
	if choices == nil {
		choices = []string{}
	}
	return Beat{Text: text, Choices: choices}
}

// Malformed reports whether the beat was decoded from an element that did
// not match the {text, choices} shape.
func (b Beat) Malformed() bool {
	return b.raw != nil
}

// MarshalJSON emits malformed elements exactly as they were received.
func (b Beat) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return b.raw, nil
	}
	type shaped struct {
		Text    string   `json:"text"`
		Choices []string `json:"choices"`
	}
	choices := b.Choices
	if choices == nil {
		choices = []string{}
	}
	return json.Marshal(shaped{Text: b.Text, Choices: choices})
}

// UnmarshalJSON accepts any JSON value. Objects with a string "text" and a
// string-array "choices" decode normally; anything else is kept verbatim and
// a best-effort Text is extracted so downstream rendering still has prose.
func (b *Beat) UnmarshalJSON(data []byte) error {
	*b = Beat{}

	var shaped struct {
		Text    *string  `json:"text"`
		Choices []string `json:"choices"`
	}
	if err := json.Unmarshal(data, &shaped); err == nil && shaped.Text != nil {
		b.Text = *shaped.Text
		b.Choices = shaped.Choices
		return nil
	}

	b.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		var text string
		if json.Unmarshal(fields["text"], &text) == nil {
			b.Text = text
		}
		var choices []string
		if json.Unmarshal(fields["choices"], &choices) == nil {
			b.Choices = choices
		}
		return nil
	}

	var text string
	if json.Unmarshal(data, &text) == nil {
		b.Text = text
	}
	return nil
}

// BeatTexts returns the prose of every beat in order.
func BeatTexts(beats []Beat) []string {
	texts := make([]string, 0, len(beats))
	for _, b := range beats {
		texts = append(texts, b.Text)
	}
	return texts
}
