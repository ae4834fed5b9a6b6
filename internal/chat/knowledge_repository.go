package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	corpusKey        = "legal:corpus"
	corpusVersionKey = "legal:corpus:ver"
)

// KnowledgeRepository persists the legal corpus documents.
type KnowledgeRepository interface {
	AppendDocuments(ctx context.Context, docs []LegalDocument) error
	GetDocuments(ctx context.Context) ([]LegalDocument, error)
	GetVersion(ctx context.Context) (int64, error)
	SetVersion(ctx context.Context, version int64) error
}

// RedisKnowledgeRepository stores corpus documents as a Redis list of JSON
// entries. Documents are append-only; full replacements bump the version key
// so hydrated stores know to re-embed.
type RedisKnowledgeRepository struct {
	client *redis.Client
}

// NewRedisKnowledgeRepository creates a Redis-backed corpus repo.
func NewRedisKnowledgeRepository(client *redis.Client) *RedisKnowledgeRepository {
	if client == nil {
		panic("chat: redis client cannot be nil")
	}
	return &RedisKnowledgeRepository{client: client}
}

// AppendDocuments pushes new corpus entries onto the list.
func (r *RedisKnowledgeRepository) AppendDocuments(ctx context.Context, docs []LegalDocument) error {
	if len(docs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("chat: marshal corpus doc: %w", err)
		}
		args = append(args, data)
	}
	if err := r.client.RPush(ctx, corpusKey, args...).Err(); err != nil {
		return fmt.Errorf("chat: failed to push corpus docs: %w", err)
	}
	return nil
}

// ReplaceDocuments overwrites the corpus and bumps the version.
func (r *RedisKnowledgeRepository) ReplaceDocuments(ctx context.Context, docs []LegalDocument) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, corpusKey)
	if len(docs) > 0 {
		args := make([]interface{}, 0, len(docs))
		for _, d := range docs {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("chat: marshal corpus doc: %w", err)
			}
			args = append(args, data)
		}
		pipe.RPush(ctx, corpusKey, args...)
	}
	pipe.Incr(ctx, corpusVersionKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chat: failed to replace corpus: %w", err)
	}
	return nil
}

// GetDocuments retrieves the full corpus.
func (r *RedisKnowledgeRepository) GetDocuments(ctx context.Context) ([]LegalDocument, error) {
	raw, err := r.client.LRange(ctx, corpusKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("chat: failed to read corpus: %w", err)
	}
	docs := make([]LegalDocument, 0, len(raw))
	for _, entry := range raw {
		var d LegalDocument
		if err := json.Unmarshal([]byte(entry), &d); err != nil {
			return nil, fmt.Errorf("chat: decode corpus doc: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// GetVersion retrieves the corpus version.
func (r *RedisKnowledgeRepository) GetVersion(ctx context.Context) (int64, error) {
	val, err := r.client.Get(ctx, corpusVersionKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("chat: get corpus version: %w", err)
	}
	version, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chat: parse corpus version: %w", err)
	}
	return version, nil
}

// SetVersion stores the corpus version.
func (r *RedisKnowledgeRepository) SetVersion(ctx context.Context, version int64) error {
	if err := r.client.Set(ctx, corpusVersionKey, strconv.FormatInt(version, 10), 0).Err(); err != nil {
		return fmt.Errorf("chat: set corpus version: %w", err)
	}
	return nil
}
