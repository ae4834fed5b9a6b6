package chat

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

var moderationTracer = otel.Tracer("attorney/moderation")

// ModerationResult is the adapter's normalized view of a moderation pass.
type ModerationResult struct {
	Flagged        bool
	CategoryScores map[string]float64
	// FlaggedCategories lists categories whose score met their threshold.
	FlaggedCategories []string
	// Summary is a short human-readable explanation for logs and violations.
	Summary string
	// PreFiltered is true when the local profanity filter short-circuited
	// the external call.
	PreFiltered bool
}

// TopScore returns the highest score among the flagged categories, falling
// back to the highest score overall when nothing was flagged.
func (r ModerationResult) TopScore() float64 {
	var top float64
	for _, category := range r.FlaggedCategories {
		if s := r.CategoryScores[category]; s > top {
			top = s
		}
	}
	if top == 0 {
		for _, s := range r.CategoryScores {
			if s > top {
				top = s
			}
		}
	}
	return top
}

type moderationAPI interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// ModerationAdapter wraps the external moderation capability with local
// pre-filters and a per-category threshold table.
type ModerationAdapter struct {
	client     moderationAPI
	model      string
	thresholds map[string]float64
	logger     *logging.Logger
}

// DefaultModerationThresholds returns the per-category score thresholds.
// They are deliberately asymmetric: the external scores rarely exceed 0.5
// for some categories, and anything involving minors or explicit threats is
// held to a far stricter bar.
func DefaultModerationThresholds() map[string]float64 {
	return map[string]float64{
		"hate":                   0.05,
		"hate/threatening":       0.02,
		"harassment":             0.30,
		"harassment/threatening": 0.05,
		"self-harm":              0.10,
		"self-harm/intent":       0.05,
		"self-harm/instructions": 0.02,
		"sexual":                 0.30,
		"sexual/minors":          0.01,
		"violence":               0.40,
		"violence/graphic":       0.30,
	}
}

// profanityWords short-circuit the external call entirely. The external
// capability has known blind spots for Tagalog slang, so the local list is
// the authority for those.
var profanityWords = []string{
	"putangina", "putang ina", "tangina", "tang ina", "pakshet", "punyeta",
	"gago ka", "gaga ka", "ulol", "tarantado", "hinayupak", "hayop ka",
	"fuck you", "fck you", "motherfucker", "son of a bitch",
}

// NewModerationAdapter builds the adapter. A nil client is allowed; only the
// local pre-filter runs in that case.
func NewModerationAdapter(client moderationAPI, model string, thresholds map[string]float64, logger *logging.Logger) *ModerationAdapter {
	if logger == nil {
		logger = logging.Default()
	}
	if thresholds == nil {
		thresholds = DefaultModerationThresholds()
	}
	return &ModerationAdapter{
		client:     client,
		model:      model,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Moderate runs the local pre-filter and then the external capability.
// External failures return an error; the caller decides fail-open behavior.
func (m *ModerationAdapter) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	ctx, span := moderationTracer.Start(ctx, "moderation.check")
	defer span.End()

	lowered := strings.ToLower(text)
	for _, w := range profanityWords {
		if strings.Contains(lowered, w) {
			span.SetAttributes(attribute.Bool("moderation.prefiltered", true))
			return ModerationResult{
				Flagged:           true,
				PreFiltered:       true,
				CategoryScores:    map[string]float64{"profanity": 1.0},
				FlaggedCategories: []string{"profanity"},
				Summary:           fmt.Sprintf("local profanity filter matched %q", w),
			}, nil
		}
	}

	if m.client == nil {
		return ModerationResult{CategoryScores: map[string]float64{}}, nil
	}

	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: m.model,
	})
	if err != nil {
		span.RecordError(err)
		return ModerationResult{}, fmt.Errorf("chat: moderation call failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return ModerationResult{}, fmt.Errorf("chat: moderation response had no results")
	}

	scores := categoryScoreMap(resp.Results[0])
	result := ModerationResult{CategoryScores: scores}
	for category, score := range scores {
		threshold, ok := m.thresholds[category]
		if !ok {
			continue
		}
		if score >= threshold {
			result.Flagged = true
			result.FlaggedCategories = append(result.FlaggedCategories, category)
		}
	}
	if result.Flagged {
		result.Summary = fmt.Sprintf("moderation thresholds exceeded: %s", strings.Join(result.FlaggedCategories, ", "))
		span.SetAttributes(
			attribute.Bool("moderation.flagged", true),
			attribute.StringSlice("moderation.categories", result.FlaggedCategories),
		)
		m.logger.Info("content flagged by moderation",
			"categories", result.FlaggedCategories,
		)
	}
	return result, nil
}

func categoryScoreMap(r openai.Result) map[string]float64 {
	s := r.CategoryScores
	return map[string]float64{
		"hate":                   float64(s.Hate),
		"hate/threatening":       float64(s.HateThreatening),
		"harassment":             float64(s.Harassment),
		"harassment/threatening": float64(s.HarassmentThreatening),
		"self-harm":              float64(s.SelfHarm),
		"self-harm/intent":       float64(s.SelfHarmIntent),
		"self-harm/instructions": float64(s.SelfHarmInstructions),
		"sexual":                 float64(s.Sexual),
		"sexual/minors":          float64(s.SexualMinors),
		"violence":               float64(s.Violence),
		"violence/graphic":       float64(s.ViolenceGraphic),
	}
}
