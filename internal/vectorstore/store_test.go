package vectorstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/raglab/docuchat/internal/content"
)

// fakeIndex is an in-memory Index implementation.
type fakeIndex struct {
	collections map[string]*fakeCollection
	deleted     []string
}

type fakeCollection struct {
	ids       []string
	metadatas []map[string]any
	documents []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{collections: make(map[string]*fakeCollection)}
}

func (f *fakeIndex) GetCollection(_ context.Context, name string) (Collection, error) {
	if _, ok := f.collections[name]; !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return Collection{ID: name, Name: name}, nil
}

func (f *fakeIndex) CreateCollection(_ context.Context, name string) (Collection, error) {
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = &fakeCollection{}
	}
	return Collection{ID: name, Name: name}, nil
}

func (f *fakeIndex) DeleteCollection(_ context.Context, name string) error {
	if _, ok := f.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	delete(f.collections, name)
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeIndex) ListCollections(context.Context) ([]Collection, error) {
	var out []Collection
	for name := range f.collections {
		out = append(out, Collection{ID: name, Name: name})
	}
	return out, nil
}

func (f *fakeIndex) Add(_ context.Context, id string, ids []string, _ [][]float64, metadatas []map[string]any, documents []string) error {
	col := f.collections[id]
	col.ids = append(col.ids, ids...)
	col.metadatas = append(col.metadatas, metadatas...)
	col.documents = append(col.documents, documents...)
	return nil
}

func (f *fakeIndex) Count(_ context.Context, id string) (int, error) {
	return len(f.collections[id].ids), nil
}

func (f *fakeIndex) Query(_ context.Context, id string, _ []float64, k int) (QueryResult, error) {
	col := f.collections[id]
	if k > len(col.ids) {
		k = len(col.ids)
	}
	res := QueryResult{}
	for i := 0; i < k; i++ {
		res.IDs = append(res.IDs, col.ids[i])
		res.Documents = append(res.Documents, col.documents[i])
		res.Metadatas = append(res.Metadatas, col.metadatas[i])
		res.Distances = append(res.Distances, float64(i)*0.1)
	}
	return res, nil
}

func (f *fakeIndex) GetAll(_ context.Context, id string, limit int) ([]string, []map[string]any, error) {
	col := f.collections[id]
	docs, metas := col.documents, col.metadatas
	if limit > 0 && limit < len(docs) {
		docs, metas = docs[:limit], metas[:limit]
	}
	return docs, metas, nil
}

func staticEmbed(context.Context, string) ([]float64, error) {
	return []float64{0.1, 0.2, 0.3}, nil
}

func newTestStore(index Index) *Store {
	return NewStore(index, staticEmbed, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func enriched(i int, text string) content.EnrichedChunk {
	return content.EnrichedChunk{
		Index:          i,
		SearchableText: text,
		OriginalText:   text,
	}
}

func TestStoreBuild_SanitizesAndReplaces(t *testing.T) {
	index := newFakeIndex()
	store := newTestStore(index)
	ctx := context.Background()

	name, err := store.Build(ctx, "Q3 Report!!", []content.EnrichedChunk{enriched(1, "first")})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if name != "Q3_Report" {
		t.Errorf("collection = %q, want Q3_Report", name)
	}

	// Rebuilding replaces, never appends.
	if _, err := store.Build(ctx, "Q3 Report!!", []content.EnrichedChunk{enriched(1, "second")}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	n, _ := store.CountChunks(ctx, name)
	if n != 1 {
		t.Errorf("chunks after rebuild = %d, want 1", n)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "Q3_Report" {
		t.Errorf("deleted collections = %v", index.deleted)
	}
}

func TestStoreBuild_RejectsInvalidChunks(t *testing.T) {
	store := newTestStore(newFakeIndex())
	bad := enriched(1, "text")
	bad.RawTables = []string{"<table></table>"} // no matching verdict

	if _, err := store.Build(context.Background(), "doc", []content.EnrichedChunk{bad}); err == nil {
		t.Fatal("expected invariant error")
	}
}

func TestStoreSearch_MissingCollection(t *testing.T) {
	store := newTestStore(newFakeIndex())
	_, err := store.Search(context.Background(), "nope", "query", 5)
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want collection-not-found", err)
	}
}

func TestStoreSearch_ClampsKAndDecodes(t *testing.T) {
	index := newFakeIndex()
	store := newTestStore(index)
	ctx := context.Background()

	chunks := []content.EnrichedChunk{
		enriched(1, "alpha"),
		enriched(2, "beta"),
	}
	name, err := store.Build(ctx, "doc", chunks)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Asking for more results than stored is not an error.
	got, err := store.Search(ctx, name, "alpha", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Index != 1 || got[0].OriginalText != "alpha" {
		t.Errorf("first result = %+v", got[0].EnrichedChunk)
	}
	if got[0].Score > got[1].Score {
		t.Errorf("results not ranked best-first: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestStoreSearch_EmptyCollection(t *testing.T) {
	index := newFakeIndex()
	store := newTestStore(index)
	ctx := context.Background()

	index.CreateCollection(ctx, "empty")
	got, err := store.Search(ctx, "empty", "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != nil {
		t.Errorf("results = %v, want nil", got)
	}
}

func TestStoreExistsDeleteList(t *testing.T) {
	index := newFakeIndex()
	store := newTestStore(index)
	ctx := context.Background()

	if _, err := store.Build(ctx, "doc", []content.EnrichedChunk{enriched(1, "t")}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ok, err := store.Exists(ctx, "doc")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	ok, err = store.Exists(ctx, "ghost")
	if err != nil || ok {
		t.Errorf("Exists(ghost) = %v, %v", ok, err)
	}

	names, err := store.List(ctx)
	if err != nil || len(names) != 1 || names[0] != "doc" {
		t.Errorf("List = %v, %v", names, err)
	}

	if err := store.Delete(ctx, "doc"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "doc"); !IsNotFound(err) {
		t.Errorf("second Delete = %v, want not-found", err)
	}
}
