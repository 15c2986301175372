package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrCollectionNotFound distinguishes a missing collection from an empty
// one. Callers must not retry it.
var ErrCollectionNotFound = errors.New("collection not found")

// Client is a minimal REST client for a Chroma server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Collection is a handle to a named collection.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetCollection resolves a collection by name.
func (c *Client) GetCollection(ctx context.Context, name string) (Collection, error) {
	var col Collection
	err := c.do(ctx, http.MethodGet, "/api/v1/collections/"+url.PathEscape(name), nil, &col)
	if err != nil {
		if isNotFound(err) {
			return Collection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return Collection{}, err
	}
	return col, nil
}

// CreateCollection creates (or reuses) a collection configured for
// cosine distance. The metric is fixed at creation for the life of the
// collection.
func (c *Client) CreateCollection(ctx context.Context, name string) (Collection, error) {
	body := map[string]any{
		"name":          name,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}
	var col Collection
	if err := c.do(ctx, http.MethodPost, "/api/v1/collections", body, &col); err != nil {
		return Collection{}, err
	}
	return col, nil
}

// DeleteCollection removes a collection and its contents.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/api/v1/collections/"+url.PathEscape(name), nil, nil)
	if err != nil && isNotFound(err) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return err
}

// ListCollections returns all collections.
func (c *Client) ListCollections(ctx context.Context) ([]Collection, error) {
	var cols []Collection
	if err := c.do(ctx, http.MethodGet, "/api/v1/collections", nil, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// Add upserts documents with client-side embeddings and scalar metadata.
func (c *Client) Add(ctx context.Context, collectionID string, ids []string, embeddings [][]float64, metadatas []map[string]any, documents []string) error {
	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
		"documents":  documents,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(collectionID)+"/add", body, nil)
}

// Count returns the number of stored documents.
func (c *Client) Count(ctx context.Context, collectionID string) (int, error) {
	var n int
	if err := c.do(ctx, http.MethodGet, "/api/v1/collections/"+url.PathEscape(collectionID)+"/count", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// QueryResult holds one ranked batch of nearest neighbors.
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]any
	Distances []float64
}

type rawQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query runs a nearest-neighbor search with a pre-computed embedding.
func (c *Client) Query(ctx context.Context, collectionID string, embedding []float64, k int) (QueryResult, error) {
	body := map[string]any{
		"query_embeddings": [][]float64{embedding},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var raw rawQueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(collectionID)+"/query", body, &raw); err != nil {
		return QueryResult{}, err
	}

	var res QueryResult
	if len(raw.IDs) > 0 {
		res.IDs = raw.IDs[0]
	}
	if len(raw.Documents) > 0 {
		res.Documents = raw.Documents[0]
	}
	if len(raw.Metadatas) > 0 {
		res.Metadatas = raw.Metadatas[0]
	}
	if len(raw.Distances) > 0 {
		res.Distances = raw.Distances[0]
	}
	return res, nil
}

// GetAll fetches stored documents and metadata without a search.
func (c *Client) GetAll(ctx context.Context, collectionID string, limit int) ([]string, []map[string]any, error) {
	body := map[string]any{
		"include": []string{"documents", "metadatas"},
	}
	if limit > 0 {
		body["limit"] = limit
	}
	var resp struct {
		Documents []string         `json:"documents"`
		Metadatas []map[string]any `json:"metadatas"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/collections/"+url.PathEscape(collectionID)+"/get", body, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Documents, resp.Metadatas, nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("chroma status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	var se *httpStatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status == http.StatusNotFound ||
		strings.Contains(se.body, "does not exist") ||
		strings.Contains(se.body, "not found")
}

// IsNotFound reports whether an error means the collection is missing,
// as opposed to empty or unreachable.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{status: resp.StatusCode, body: truncate(string(respBody), 300)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
