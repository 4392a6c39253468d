package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// InsertVectorParams are the arguments for InsertVector.
type InsertVectorParams struct {
	Namespace string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
}

// VectorRow is one stored vector record with its similarity to a query.
type VectorRow struct {
	ID         int64
	Namespace  string
	Content    string
	Metadata   []byte
	Similarity float64
	CreatedAt  time.Time
}

const insertVectorSQL = `INSERT INTO vector_records (namespace, content, embedding, metadata)
	VALUES ($1, $2, $3, $4)`

// InsertVector stores one embedded record. Records are never mutated after
// insertion; the only delete path is PurgeNamespace.
func (q *Queries) InsertVector(ctx context.Context, arg InsertVectorParams) error {
	_, err := q.db.Exec(ctx, insertVectorSQL, arg.Namespace, arg.Content, arg.Embedding, arg.Metadata)
	return err
}

// Similarity is 1 - cosine distance. Secondary order on id makes ties
// resolve to earliest insertion, which keeps search results deterministic.
const searchVectorsSQL = `SELECT id, namespace, content, metadata,
		1 - (embedding <=> $2) AS similarity, created_at
	FROM vector_records
	WHERE namespace = $1
	ORDER BY embedding <=> $2, id ASC
	LIMIT $3`

const searchVectorsFilteredSQL = `SELECT id, namespace, content, metadata,
		1 - (embedding <=> $2) AS similarity, created_at
	FROM vector_records
	WHERE namespace = $1 AND metadata @> $4
	ORDER BY embedding <=> $2, id ASC
	LIMIT $3`

// SearchVectorsParams are the arguments for SearchVectors.
type SearchVectorsParams struct {
	Namespace      string
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
	FilterMetadata []byte // optional JSONB containment filter; nil = no filter
}

// SearchVectors returns up to ResultLimit records ordered by descending
// cosine similarity to the query embedding.
func (q *Queries) SearchVectors(ctx context.Context, arg SearchVectorsParams) ([]VectorRow, error) {
	var rows pgx.Rows
	var err error
	if len(arg.FilterMetadata) > 0 {
		rows, err = q.db.Query(ctx, searchVectorsFilteredSQL,
			arg.Namespace, arg.QueryEmbedding, arg.ResultLimit, arg.FilterMetadata)
	} else {
		rows, err = q.db.Query(ctx, searchVectorsSQL,
			arg.Namespace, arg.QueryEmbedding, arg.ResultLimit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorRow
	for rows.Next() {
		var r VectorRow
		if err := rows.Scan(&r.ID, &r.Namespace, &r.Content, &r.Metadata, &r.Similarity, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const purgeNamespaceSQL = `DELETE FROM vector_records WHERE namespace = $1`

// PurgeNamespace removes every record in a namespace.
func (q *Queries) PurgeNamespace(ctx context.Context, namespace string) (int64, error) {
	tag, err := q.db.Exec(ctx, purgeNamespaceSQL, namespace)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
