package chat

import (
	"context"
	"sync"

	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// HydratingRetriever wraps a MemoryRAGStore and keeps it up-to-date by
// embedding any corpus documents appended to the KnowledgeRepository since
// the last query.
//
// The corpus is append-only in the common case; full replacements bump the
// repository version, which triggers a re-embed of everything. Each process
// hydrates on demand, so no cross-process shared memory is needed.
type HydratingRetriever struct {
	repo   KnowledgeRepository
	store  *MemoryRAGStore
	logger *logging.Logger

	mu              sync.Mutex
	hydratedCount   int
	hydratedVersion int64
}

func NewHydratingRetriever(ctx context.Context, repo KnowledgeRepository, store *MemoryRAGStore, logger *logging.Logger) *HydratingRetriever {
	if repo == nil {
		panic("chat: knowledge repo cannot be nil")
	}
	if store == nil {
		panic("chat: rag store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h := &HydratingRetriever{
		repo:   repo,
		store:  store,
		logger: logger,
	}

	// Seed hydration state so already-embedded docs are not re-embedded.
	h.hydratedCount = store.Len()
	if version, err := repo.GetVersion(ctx); err == nil {
		h.hydratedVersion = version
	} else {
		logger.Warn("failed to initialize corpus hydration state", "error", err)
	}

	return h
}

func (h *HydratingRetriever) Query(ctx context.Context, query string, topK int) ([]ScoredExcerpt, error) {
	if err := h.ensureHydrated(ctx); err != nil {
		h.logger.Warn("failed to hydrate corpus", "error", err)
	}
	return h.store.Query(ctx, query, topK)
}

func (h *HydratingRetriever) ensureHydrated(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	version, err := h.repo.GetVersion(ctx)
	if err != nil {
		return err
	}
	docs, err := h.repo.GetDocuments(ctx)
	if err != nil {
		return err
	}

	if version != h.hydratedVersion || h.hydratedCount > len(docs) {
		if err := h.store.ReplaceDocuments(ctx, docs); err != nil {
			return err
		}
		h.hydratedCount = len(docs)
		h.hydratedVersion = version
		return nil
	}

	if h.hydratedCount >= len(docs) {
		return nil
	}
	newDocs := docs[h.hydratedCount:]
	if err := h.store.AddDocuments(ctx, newDocs); err != nil {
		return err
	}
	h.hydratedCount = len(docs)
	return nil
}
