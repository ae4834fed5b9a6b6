package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

var retrievalTracer = otel.Tracer("attorney/retrieval")

// ErrNoGrounding signals that nothing in the corpus scored above the
// confidence threshold. Callers must treat this differently from an
// ordinary error: it terminates the request with an "insufficient
// information" response, never a silent fall-through to ungrounded
// generation.
var ErrNoGrounding = errors.New("chat: no grounding context above threshold")

// ConfidenceLabel grades how well-grounded an answer is. It is a property
// of the retrieval scores, not of the model's own certainty.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// ContextEntry is one grounding excerpt that survived threshold filtering.
type ContextEntry struct {
	SourceID  string  `json:"source_id"`
	Reference string  `json:"reference"`
	Excerpt   string  `json:"excerpt"`
	Score     float64 `json:"score"`
}

// RetrievedContext is the ranked, filtered grounding for one request.
// Invariant: Entries is never empty. An empty result is ErrNoGrounding.
type RetrievedContext struct {
	Entries []ContextEntry
	// Query is the text that was actually embedded (possibly rewritten).
	Query string
	// Rewritten is true when the normalization step changed the query.
	Rewritten bool
}

// Confidence derives the answer confidence label from the mean relevance of
// the top-3 entries. Stable given the same scores.
func (rc *RetrievedContext) Confidence() ConfidenceLabel {
	return ConfidenceFromScores(rc.topScores(3))
}

func (rc *RetrievedContext) topScores(n int) []float64 {
	if len(rc.Entries) < n {
		n = len(rc.Entries)
	}
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		scores[i] = rc.Entries[i].Score
	}
	return scores
}

// ConfidenceFromScores is the pure confidence function: mean of the given
// scores, >=0.7 high, >=0.5 medium, else low.
func ConfidenceFromScores(scores []float64) ConfidenceLabel {
	if len(scores) == 0 {
		return ConfidenceLow
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))
	switch {
	case mean >= 0.7:
		return ConfidenceHigh
	case mean >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RetrievalGate decides whether enough grounding exists to answer at all.
type RetrievalGate struct {
	retriever  RAGRetriever
	normalizer *QueryNormalizer
	topK       int
	minScore   float64
	minExcerpt int
	logger     *logging.Logger
}

// NewRetrievalGate builds the gate. normalizer may be nil to disable query
// rewriting.
func NewRetrievalGate(retriever RAGRetriever, normalizer *QueryNormalizer, topK int, minScore float64, minExcerpt int, logger *logging.Logger) *RetrievalGate {
	if retriever == nil {
		panic("chat: retriever cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	return &RetrievalGate{
		retriever:  retriever,
		normalizer: normalizer,
		topK:       topK,
		minScore:   minScore,
		minExcerpt: minExcerpt,
		logger:     logger,
	}
}

// Retrieve embeds the (possibly rewritten) query, runs the ranked search,
// and filters by score and excerpt length. Returns ErrNoGrounding when
// nothing survives.
func (g *RetrievalGate) Retrieve(ctx context.Context, query string) (*RetrievedContext, error) {
	ctx, span := retrievalTracer.Start(ctx, "retrieval.gate")
	defer span.End()

	effective := query
	rewritten := false
	if g.normalizer != nil {
		if normalized, changed := g.normalizer.Normalize(ctx, query); changed {
			effective = normalized
			rewritten = true
		}
	}

	hits, err := g.retriever.Query(ctx, effective, g.topK)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	entries := make([]ContextEntry, 0, len(hits))
	for _, h := range hits {
		if h.Score < g.minScore {
			continue
		}
		if len(strings.TrimSpace(h.Excerpt)) < g.minExcerpt {
			continue
		}
		entries = append(entries, ContextEntry{
			SourceID:  h.SourceID,
			Reference: h.Reference,
			Excerpt:   h.Excerpt,
			Score:     h.Score,
		})
	}

	span.SetAttributes(
		attribute.Int("retrieval.hits", len(hits)),
		attribute.Int("retrieval.kept", len(entries)),
		attribute.Bool("retrieval.rewritten", rewritten),
	)

	if len(entries) == 0 {
		return nil, ErrNoGrounding
	}
	return &RetrievedContext{Entries: entries, Query: effective, Rewritten: rewritten}, nil
}

// QueryNormalizer rewrites highly colloquial or emotional queries into
// search-friendly legal phrasing via a small LLM call. Best-effort only:
// any failure falls back to the original query unchanged.
type QueryNormalizer struct {
	llm     LLMClient
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

func NewQueryNormalizer(llm LLMClient, model string, timeout time.Duration, logger *logging.Logger) *QueryNormalizer {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &QueryNormalizer{llm: llm, model: model, timeout: timeout, logger: logger}
}

const normalizePrompt = `Rewrite the user's message as a short, neutral search query about Philippine law. Keep the legal substance, drop emotional language, answer with the query only.

Message: %s`

// colloquial markers that suggest the raw text will embed poorly.
var colloquialMarkers = []string{
	"naiiyak", "iyak", "sobrang", "grabe", "huhu", "please help", "tulong",
	"nakakainis", "galit na galit", "stressed", "😭", "!!!",
}

// Normalize returns the rewritten query and whether it changed.
func (n *QueryNormalizer) Normalize(ctx context.Context, query string) (string, bool) {
	if n.llm == nil || !n.needsRewrite(query) {
		return query, false
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := n.llm.Complete(ctx, LLMRequest{
		Model:       n.model,
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: strings.Replace(normalizePrompt, "%s", query, 1)}},
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		n.logger.Warn("query normalization failed, using original query", "error", err)
		return query, false
	}

	rewritten := strings.TrimSpace(resp.Text)
	if rewritten == "" || rewritten == query {
		return query, false
	}
	return rewritten, true
}

// needsRewrite fires on colloquial/emotional phrasing that lacks any legal
// terminology.
func (n *QueryNormalizer) needsRewrite(query string) bool {
	lowered := strings.ToLower(query)
	if hasAnyKeyword(lowered, legalKeywords) {
		return false
	}
	for _, m := range colloquialMarkers {
		if strings.Contains(lowered, m) {
			return true
		}
	}
	return false
}
