package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/sagekit/sage/internal/log"
	"github.com/sagekit/sage/internal/postgres"
)

// mockEmbedder maps distinct texts to distinct deterministic vectors.
type mockEmbedder struct {
	embedErr  error
	callCount int
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(_ api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	text := ""
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		text = req.Input[0].Content[0].Text
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: textVector(text)}},
	}, nil
}

// textVector hashes a string into a fixed 8-dim unit vector. Distinct
// content yields distinct directions, so a record is most similar to
// its own text.
func textVector(s string) []float32 {
	v := make([]float64, 8)
	for i, r := range s {
		v[(i+int(r))%8] += float64(r%31) + 1
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	out := make([]float32, 8)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// mockVectorQuerier stores vectors in memory and ranks searches by
// cosine similarity, ties by insertion order, like the real query.
type mockVectorQuerier struct {
	records   []postgres.InsertVectorParams
	insertErr error
	searchErr error
	purged    []string
}

func (m *mockVectorQuerier) InsertVector(_ context.Context, arg postgres.InsertVectorParams) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, arg)
	return nil
}

func (m *mockVectorQuerier) SearchVectors(_ context.Context, arg postgres.SearchVectorsParams) ([]postgres.VectorRow, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	type scored struct {
		row postgres.VectorRow
		sim float64
		ord int
	}
	var hits []scored
	q := arg.QueryEmbedding.Slice()
	for i, rec := range m.records {
		if rec.Namespace != arg.Namespace {
			continue
		}
		hits = append(hits, scored{
			row: postgres.VectorRow{
				ID:         int64(i + 1),
				Namespace:  rec.Namespace,
				Content:    rec.Content,
				Metadata:   rec.Metadata,
				Similarity: cosine(q, rec.Embedding.Slice()),
			},
			sim: cosine(q, rec.Embedding.Slice()),
			ord: i,
		})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].sim != hits[b].sim {
			return hits[a].sim > hits[b].sim
		}
		return hits[a].ord < hits[b].ord
	})
	if len(hits) > int(arg.ResultLimit) {
		hits = hits[:arg.ResultLimit]
	}
	rows := make([]postgres.VectorRow, len(hits))
	for i, h := range hits {
		rows[i] = h.row
		rows[i].Similarity = h.sim
	}
	return rows, nil
}

func (m *mockVectorQuerier) PurgeNamespace(_ context.Context, namespace string) (int64, error) {
	m.purged = append(m.purged, namespace)
	var kept []postgres.InsertVectorParams
	var removed int64
	for _, rec := range m.records {
		if rec.Namespace == namespace {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestVectorStore_RoundTripTopHit(t *testing.T) {
	q := &mockVectorQuerier{}
	store := NewVectorStore(q, &mockEmbedder{}, log.NewNop())
	ns := KnowledgeNamespace()

	texts := []string{
		"PostgreSQL supports vector similarity search via pgvector",
		"Go channels are typed conduits for goroutine communication",
		"The capital of France is Paris",
	}
	for _, text := range texts {
		if err := store.Upsert(context.Background(), ns, text, Metadata{Kind: KindKnowledge}); err != nil {
			t.Fatalf("Upsert(%q) = %v", text, err)
		}
	}

	// A freshly upserted record with distinct content is its own top hit.
	for _, text := range texts {
		matches := store.Search(context.Background(), ns, text, 1, nil)
		if len(matches) != 1 {
			t.Fatalf("Search(%q) returned %d matches, want 1", text, len(matches))
		}
		if matches[0].Text != text {
			t.Errorf("top hit for %q = %q", text, matches[0].Text)
		}
	}
}

func TestVectorStore_SearchDegradesOnEmbedError(t *testing.T) {
	q := &mockVectorQuerier{}
	store := NewVectorStore(q, &mockEmbedder{embedErr: errors.New("quota exceeded")}, log.NewNop())

	matches := store.Search(context.Background(), KnowledgeNamespace(), "anything", 5, nil)
	if matches != nil {
		t.Errorf("Search() = %v, want nil (degraded-context policy)", matches)
	}
}

func TestVectorStore_SearchDegradesOnQueryError(t *testing.T) {
	q := &mockVectorQuerier{searchErr: errors.New("connection refused")}
	store := NewVectorStore(q, &mockEmbedder{}, log.NewNop())

	matches := store.Search(context.Background(), KnowledgeNamespace(), "anything", 5, nil)
	if matches != nil {
		t.Errorf("Search() = %v, want nil", matches)
	}
}

func TestVectorStore_UpsertReportsFailure(t *testing.T) {
	q := &mockVectorQuerier{insertErr: errors.New("disk full")}
	store := NewVectorStore(q, &mockEmbedder{}, log.NewNop())

	err := store.Upsert(context.Background(), KnowledgeNamespace(), "content", Metadata{Kind: KindKnowledge})
	if err == nil {
		t.Fatal("Upsert() = nil, want error (ingestion-path writes must report)")
	}
}

func TestVectorStore_NamespaceIsolation(t *testing.T) {
	q := &mockVectorQuerier{}
	store := NewVectorStore(q, &mockEmbedder{}, log.NewNop())

	if err := store.Upsert(context.Background(), DocumentNamespace("doc-1"), "alpha passage", Metadata{Kind: KindDocument}); err != nil {
		t.Fatalf("Upsert() = %v", err)
	}
	if err := store.Upsert(context.Background(), KnowledgeNamespace(), "alpha knowledge", Metadata{Kind: KindKnowledge}); err != nil {
		t.Fatalf("Upsert() = %v", err)
	}

	matches := store.Search(context.Background(), DocumentNamespace("doc-1"), "alpha passage", 10, nil)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (namespaces must isolate)", len(matches))
	}
	if matches[0].Metadata.Kind != KindDocument {
		t.Errorf("Kind = %q, want %q", matches[0].Metadata.Kind, KindDocument)
	}
}

func TestVectorStore_Purge(t *testing.T) {
	q := &mockVectorQuerier{}
	store := NewVectorStore(q, &mockEmbedder{}, log.NewNop())
	ns := DocumentNamespace("doc-2")

	for _, text := range []string{"one", "two"} {
		if err := store.Upsert(context.Background(), ns, text, Metadata{Kind: KindDocument}); err != nil {
			t.Fatalf("Upsert() = %v", err)
		}
	}

	removed, err := store.Purge(context.Background(), ns)
	if err != nil {
		t.Fatalf("Purge() = %v", err)
	}
	if removed != 2 {
		t.Errorf("Purge() removed %d, want 2", removed)
	}
	if matches := store.Search(context.Background(), ns, "one", 10, nil); len(matches) != 0 {
		t.Errorf("namespace not empty after purge: %d matches", len(matches))
	}
}
