package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storygen/backend/internal/models"
	"storygen/backend/pkg/logger"
	"storygen/backend/shared/observability"
)

var tracer = otel.Tracer("storygen/backend/internal/service")

const (
	beatsInstruction = "You are a story outliner. Given a premise, produce N numbered scene beats.\n" +
		"Each beat: 2-4 sentences + 2-3 concise choices that branch the story.\n" +
		`Return JSON list: [{"text": "...", "choices": ["...","..."]}].`

	branchInstruction = "Extend an existing story. Given prior beats and a chosen branch at step K,\n" +
		"continue with coherent beats that follow the selected choice.\n" +
		"Return the full updated list of beats in the same JSON format."
)

// Choices attached to the single beat produced when the generator output
// cannot be parsed.
var fallbackChoices = []string{"Continue", "Twist"}

// TextCompleter is a single-shot text completion backend.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenerateParams are the inputs to GenerateBeats.
type GenerateParams struct {
	Premise  string
	Genre    *string
	Tone     *string
	Audience *string
	Count    int
	Guidance *string
}

// BeatGenerator turns premises and branch points into beat lists by way of
// an untrusted text completer.
type BeatGenerator struct {
	completer TextCompleter
	metrics   *observability.StoryMetrics
	log       *logger.Logger
}

func NewBeatGenerator(completer TextCompleter, metrics *observability.StoryMetrics, log *logger.Logger) *BeatGenerator {
	return &BeatGenerator{completer: completer, metrics: metrics, log: log}
}

// GenerateBeats asks the completer for an outline. An unparseable response
// becomes one beat holding the whole response with the default choices, so
// a successful call always returns at least one beat. Only a transport
// failure of the completer is returned as an error.
func (g *BeatGenerator) GenerateBeats(ctx context.Context, p GenerateParams) ([]models.Beat, error) {
	ctx, span := tracer.Start(ctx, "BeatGenerator.GenerateBeats",
		trace.WithAttributes(attribute.Int("scenes", p.Count)))
	defer span.End()

	prompt := fmt.Sprintf("%s\n\nPrompt: %s\nGenre: %s\nTone: %s\nAudience: %s\nScenes: %d\nGuidance: %s",
		beatsInstruction, p.Premise, optional(p.Genre), optional(p.Tone), optional(p.Audience),
		p.Count, optional(p.Guidance))

	raw, err := g.complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	parsed := ParseBeats(raw)
	span.SetAttributes(attribute.String("parse_outcome", parsed.Outcome.String()))
	if parsed.Outcome == ParseFallback {
		g.metrics.ParseFallback(ctx, "generate")
		g.log.Warn("Beat outline was not a JSON list, using fallback beat", "response_len", len(raw))
		return []models.Beat{models.NewBeat(strings.TrimSpace(raw), fallbackChoices...)}, nil
	}
	return parsed.Beats, nil
}

// ContinueBranch asks the completer for a full replacement of base having
// taken choice choiceIdx at step fromStep. An unparseable response leaves
// base unchanged; callers detect a no-op branch by comparing the result.
func (g *BeatGenerator) ContinueBranch(ctx context.Context, base []models.Beat, fromStep, choiceIdx int) ([]models.Beat, error) {
	ctx, span := tracer.Start(ctx, "BeatGenerator.ContinueBranch",
		trace.WithAttributes(attribute.Int("step", fromStep), attribute.Int("choice_idx", choiceIdx)))
	defer span.End()

	serialized, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("serialize base beats: %w", err)
	}
	prompt := fmt.Sprintf("%s\n\nBase beats: %s\nBranch from step: %d pick choice index: %d",
		branchInstruction, serialized, fromStep, choiceIdx)

	raw, err := g.complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	parsed := ParseBeats(raw)
	span.SetAttributes(attribute.String("parse_outcome", parsed.Outcome.String()))
	if parsed.Outcome == ParseFallback {
		g.metrics.ParseFallback(ctx, "branch")
		g.log.Warn("Branch continuation was not a JSON list, keeping base beats",
			"step", fromStep, "choice_idx", choiceIdx)
		return base, nil
	}
	return parsed.Beats, nil
}

func (g *BeatGenerator) complete(ctx context.Context, prompt string) (string, error) {
	g.log.Debug("Calling text completer", "prompt_len", len(prompt))
	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		g.log.LogError(err, "Text completion failed")
		return "", &CollaboratorError{Collaborator: "text completion", Err: err}
	}
	g.log.Debug("Text completer responded", "response_len", len(raw))
	return raw, nil
}

func optional(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "unspecified"
	}
	return *s
}
