package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/sagekit/sage/internal/postgres"
)

// searchTimeout bounds a single vector search so a slow query cannot
// stall the whole request.
const searchTimeout = 10 * time.Second

// VectorQuerier defines the database operations the vector store needs.
type VectorQuerier interface {
	InsertVector(ctx context.Context, arg postgres.InsertVectorParams) error
	SearchVectors(ctx context.Context, arg postgres.SearchVectorsParams) ([]postgres.VectorRow, error)
	PurgeNamespace(ctx context.Context, namespace string) (int64, error)
}

// VectorStore is the namespaced embedding index: upsert plus k-nearest
// neighbor search over PostgreSQL + pgvector.
//
// VectorStore is safe for concurrent use by multiple goroutines.
type VectorStore struct {
	querier  VectorQuerier
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewVectorStore creates a vector store.
func NewVectorStore(querier VectorQuerier, embedder ai.Embedder, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{querier: querier, embedder: embedder, logger: logger}
}

// Upsert embeds text and stores the record in the namespace. Unlike
// Search, failures here are returned: callers on the ingestion path
// must report them rather than lose data silently.
func (s *VectorStore) Upsert(ctx context.Context, ns Namespace, text string, meta Metadata) error {
	embedding, err := s.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := s.querier.InsertVector(ctx, postgres.InsertVectorParams{
		Namespace: ns.Key(),
		Content:   text,
		Embedding: embedding,
		Metadata:  metaJSON,
	}); err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}

	s.logger.Debug("upserted vector record", "namespace", ns.Key(), "content_length", len(text))
	return nil
}

// Search returns up to k records ordered by descending similarity, ties
// broken by insertion order. Failures degrade to an empty result so
// generation stays available; the fault is logged, not raised.
func (s *VectorStore) Search(ctx context.Context, ns Namespace, query string, k int, filter *Metadata) []Match {
	if k <= 0 {
		return nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(searchCtx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, returning empty result",
			"namespace", ns.Key(), "error", err)
		return nil
	}

	var filterJSON []byte
	if filter != nil {
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			s.logger.Warn("marshal search filter failed", "error", err)
			return nil
		}
	}

	rows, err := s.querier.SearchVectors(searchCtx, postgres.SearchVectorsParams{
		Namespace:      ns.Key(),
		QueryEmbedding: embedding,
		ResultLimit:    int32(k), // #nosec G115 -- k validated small by callers
		FilterMetadata: filterJSON,
	})
	if err != nil {
		s.logger.Warn("vector search failed, returning empty result",
			"namespace", ns.Key(), "error", err)
		return nil
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		var meta Metadata
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			s.logger.Warn("failed to parse vector metadata", "id", row.ID, "error", err)
		}
		matches = append(matches, Match{
			Text:       row.Content,
			Metadata:   meta,
			Similarity: row.Similarity,
		})
	}
	return matches
}

// Purge deletes every record in a namespace. The only mutation path
// besides insertion.
func (s *VectorStore) Purge(ctx context.Context, ns Namespace) (int64, error) {
	n, err := s.querier.PurgeNamespace(ctx, ns.Key())
	if err != nil {
		return 0, fmt.Errorf("%w: purge namespace: %v", ErrStorageUnavailable, err)
	}
	s.logger.Debug("purged namespace", "namespace", ns.Key(), "removed", n)
	return n, nil
}

func (s *VectorStore) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}
