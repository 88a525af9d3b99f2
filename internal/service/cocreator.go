package service

import (
	"context"
	"strings"

	"storygen/backend/pkg/logger"
)

const (
	clarifyInstruction = "Ask 3-5 short clarifying questions to improve a story prompt: genre, tone, characters, " +
		"setting, constraints.\nReturn JSON list of strings."
	upgradeInstruction = "Given a seed prompt and answers to clarifiers, produce one improved prompt (<120 words)."
)

// DefaultClarifiers are asked when the completer does not return a usable
// question list.
var DefaultClarifiers = []string{"What genre?", "Tone?", "Main character?", "Setting?", "Any constraints?"}

// CoCreator helps a user refine a premise before starting a session.
type CoCreator struct {
	completer TextCompleter
	log       *logger.Logger
}

func NewCoCreator(completer TextCompleter, log *logger.Logger) *CoCreator {
	return &CoCreator{completer: completer, log: log}
}

// Clarify returns questions that would sharpen seed.
func (c *CoCreator) Clarify(ctx context.Context, seed string) ([]string, error) {
	raw, err := c.completer.Complete(ctx, clarifyInstruction+"\n\nSeed: "+seed)
	if err != nil {
		c.log.LogError(err, "Clarifier completion failed")
		return nil, &CollaboratorError{Collaborator: "text completion", Err: err}
	}
	questions, ok := parseStringList(raw)
	if !ok {
		c.log.Warn("Clarifier response was not a JSON list, using defaults")
		return append([]string(nil), DefaultClarifiers...), nil
	}
	return questions, nil
}

// Upgrade folds the answers into one improved prompt.
func (c *CoCreator) Upgrade(ctx context.Context, seed string, answers []string) (string, error) {
	prompt := upgradeInstruction + "\n\nSeed: " + seed + "\nAnswers: " + strings.Join(answers, " | ")
	raw, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		c.log.LogError(err, "Prompt upgrade completion failed")
		return "", &CollaboratorError{Collaborator: "text completion", Err: err}
	}
	return strings.TrimSpace(raw), nil
}
