package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raglab/docuchat/internal/content"
)

// EmbedFunc turns text into a fixed-dimension vector. The store applies
// it on every write and query so callers never handle vectors directly.
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)

// Index is the subset of the Chroma client the store needs. Narrowed to
// an interface so tests can substitute an in-memory fake.
type Index interface {
	GetCollection(ctx context.Context, name string) (Collection, error)
	CreateCollection(ctx context.Context, name string) (Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]Collection, error)
	Add(ctx context.Context, collectionID string, ids []string, embeddings [][]float64, metadatas []map[string]any, documents []string) error
	Count(ctx context.Context, collectionID string) (int, error)
	Query(ctx context.Context, collectionID string, embedding []float64, k int) (QueryResult, error)
	GetAll(ctx context.Context, collectionID string, limit int) ([]string, []map[string]any, error)
}

// RetrievedChunk is a decoded search hit, best-first by Score.
type RetrievedChunk struct {
	content.EnrichedChunk
	Score float64 // cosine distance; lower is closer
}

// Store builds per-document collections from enriched chunks and runs
// similarity searches over them.
type Store struct {
	index Index
	embed EmbedFunc
	log   *slog.Logger
}

func NewStore(index Index, embed EmbedFunc, log *slog.Logger) *Store {
	return &Store{index: index, embed: embed, log: log}
}

// Build creates (or re-creates) the collection for a document and
// upserts every enriched chunk with its embedding. Returns the physical
// collection name.
func (s *Store) Build(ctx context.Context, documentID string, chunks []content.EnrichedChunk) (string, error) {
	name := SanitizeCollectionName(documentID)

	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return "", fmt.Errorf("invariant violation: %w", err)
		}
	}

	// Rebuilding a document starts from a clean collection.
	if err := s.index.DeleteCollection(ctx, name); err != nil && !IsNotFound(err) {
		return "", fmt.Errorf("delete old collection: %w", err)
	}
	col, err := s.index.CreateCollection(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create collection %s: %w", name, err)
	}

	ids := make([]string, 0, len(chunks))
	embeddings := make([][]float64, 0, len(chunks))
	metadatas := make([]map[string]any, 0, len(chunks))
	documents := make([]string, 0, len(chunks))

	for i := range chunks {
		c := &chunks[i]
		vec, err := s.embed(ctx, c.SearchableText)
		if err != nil {
			return "", fmt.Errorf("embed chunk %d: %w", c.Index, err)
		}
		meta, err := EncodeMetadata(c)
		if err != nil {
			return "", err
		}
		ids = append(ids, fmt.Sprintf("chunk_%04d", c.Index))
		embeddings = append(embeddings, vec)
		metadatas = append(metadatas, meta)
		documents = append(documents, c.SearchableText)
	}

	if err := s.index.Add(ctx, col.ID, ids, embeddings, metadatas, documents); err != nil {
		return "", fmt.Errorf("upsert %d chunks into %s: %w", len(chunks), name, err)
	}
	s.log.Info("vector store built", "collection", name, "chunks", len(chunks))
	return name, nil
}

// Search runs a similarity search and returns decoded chunks ranked
// best-first. Requesting more results than stored is not an error; a
// missing collection is, and is distinguishable via IsNotFound.
func (s *Store) Search(ctx context.Context, collectionName, query string, k int) ([]RetrievedChunk, error) {
	col, err := s.index.GetCollection(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	count, err := s.index.Count(ctx, col.ID)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", collectionName, err)
	}
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	res, err := s.index.Query(ctx, col.ID, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionName, err)
	}

	out := make([]RetrievedChunk, 0, len(res.Documents))
	for i, doc := range res.Documents {
		var meta map[string]any
		if i < len(res.Metadatas) {
			meta = res.Metadatas[i]
		}
		chunk, err := DecodeMetadata(meta, doc)
		if err != nil {
			return nil, err
		}
		rc := RetrievedChunk{EnrichedChunk: chunk}
		if i < len(res.Distances) {
			rc.Score = res.Distances[i]
		}
		out = append(out, rc)
	}
	return out, nil
}

// Chunks returns every stored chunk of a collection, decoded.
func (s *Store) Chunks(ctx context.Context, collectionName string, limit int) ([]content.EnrichedChunk, error) {
	col, err := s.index.GetCollection(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	docs, metas, err := s.index.GetAll(ctx, col.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("get chunks of %s: %w", collectionName, err)
	}
	out := make([]content.EnrichedChunk, 0, len(docs))
	for i, doc := range docs {
		var meta map[string]any
		if i < len(metas) {
			meta = metas[i]
		}
		chunk, err := DecodeMetadata(meta, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

// Exists reports whether a collection is present.
func (s *Store) Exists(ctx context.Context, collectionName string) (bool, error) {
	_, err := s.index.GetCollection(ctx, collectionName)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes a document's collection.
func (s *Store) Delete(ctx context.Context, collectionName string) error {
	return s.index.DeleteCollection(ctx, collectionName)
}

// List returns all collection names.
func (s *Store) List(ctx context.Context) ([]string, error) {
	cols, err := s.index.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names, nil
}

// CountChunks returns the number of stored chunks for a collection.
func (s *Store) CountChunks(ctx context.Context, collectionName string) (int, error) {
	col, err := s.index.GetCollection(ctx, collectionName)
	if err != nil {
		return 0, err
	}
	return s.index.Count(ctx, col.ID)
}
