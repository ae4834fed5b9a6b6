package chat

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// LegalDocument is one corpus entry: an excerpt of a statute, code article,
// or regulation, with enough metadata to cite it.
type LegalDocument struct {
	// SourceID identifies the source text, e.g. "ra-1161" or "labor-code".
	SourceID string `json:"source_id"`
	// Reference is the article/section within the source, e.g. "Art. 282".
	Reference string `json:"reference"`
	Text      string `json:"text"`
}

// ScoredExcerpt is a ranked retrieval hit.
type ScoredExcerpt struct {
	SourceID  string
	Reference string
	Excerpt   string
	Score     float64
}

// RAGRetriever exposes the ranked search used by the retrieval gate.
type RAGRetriever interface {
	Query(ctx context.Context, query string, topK int) ([]ScoredExcerpt, error)
}

// MemoryRAGStore keeps corpus embeddings in memory and supports cosine
// nearest-neighbor retrieval.
type MemoryRAGStore struct {
	embedder     Embedder
	model        string
	embedTimeout time.Duration
	logger       *logging.Logger

	mu   sync.RWMutex
	docs []ragDocument
}

type ragDocument struct {
	doc       LegalDocument
	embedding []float32
}

// NewMemoryRAGStore creates an in-memory store. embedTimeout bounds every
// embedding call; zero falls back to 10 seconds.
func NewMemoryRAGStore(embedder Embedder, model string, embedTimeout time.Duration, logger *logging.Logger) *MemoryRAGStore {
	if embedder == nil {
		panic("chat: embedder cannot be nil")
	}
	if embedTimeout <= 0 {
		embedTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryRAGStore{
		embedder:     embedder,
		model:        model,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

func (s *MemoryRAGStore) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	return s.embedder.Embed(ctx, s.model, texts)
}

// AddDocuments embeds and stores the provided corpus entries.
func (s *MemoryRAGStore) AddDocuments(ctx context.Context, docs []LegalDocument) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	embeddings, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(embeddings) != len(docs) {
		return errors.New("chat: embedding response size mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		s.docs = append(s.docs, ragDocument{doc: doc, embedding: embeddings[i]})
	}
	return nil
}

// ReplaceDocuments clears the store and re-embeds the full corpus.
func (s *MemoryRAGStore) ReplaceDocuments(ctx context.Context, docs []LegalDocument) error {
	s.mu.Lock()
	s.docs = nil
	s.mu.Unlock()
	return s.AddDocuments(ctx, docs)
}

// Len returns the number of embedded documents.
func (s *MemoryRAGStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Query returns the topK excerpts ranked by cosine similarity to the query.
func (s *MemoryRAGStore) Query(ctx context.Context, query string, topK int) ([]ScoredExcerpt, error) {
	if topK <= 0 {
		topK = 5
	}
	embeddings, err := s.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}
	queryVec := embeddings[0]

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.docs) == 0 {
		return nil, nil
	}

	results := make([]ScoredExcerpt, 0, len(s.docs))
	for _, d := range s.docs {
		results = append(results, ScoredExcerpt{
			SourceID:  d.doc.SourceID,
			Reference: d.doc.Reference,
			Excerpt:   d.doc.Text,
			Score:     cosineSimilarity(queryVec, d.embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
