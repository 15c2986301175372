package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/raglab/docuchat/internal/vectorstore"
)

// handleListDocuments lists all stored document collections with their
// chunk counts.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.List(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	docs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		doc := map[string]any{"collection": name}
		if n, err := s.store.CountChunks(r.Context(), name); err == nil {
			doc["chunk_count"] = n
		}
		docs = append(docs, doc)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	n, err := s.store.CountChunks(r.Context(), collection)
	if err != nil {
		if vectorstore.IsNotFound(err) {
			jsonError(w, "document not found: "+collection, http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection":  collection,
		"chunk_count": n,
	})
}

// handleDocumentChunks returns the stored chunks of a document, decoded.
func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	chunks, err := s.store.Chunks(r.Context(), collection, limit)
	if err != nil {
		if vectorstore.IsNotFound(err) {
			jsonError(w, "document not found: "+collection, http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection": collection,
		"chunks":     chunks,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if err := s.store.Delete(r.Context(), collection); err != nil {
		if vectorstore.IsNotFound(err) {
			jsonError(w, "document not found: "+collection, http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.orchestrator.ForgetDocument(collection)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": collection})
}

type searchRequest struct {
	Collection string `json:"collection"`
	Query      string `json:"query"`
	K          int    `json:"k"`
}

// handleSearch runs a one-shot similarity search without a chat session.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.Collection == "" {
		req.Collection = vectorstore.DefaultCollection
	}
	if req.K <= 0 {
		req.K = s.cfg.SearchK
	}

	results, err := s.store.Search(r.Context(), req.Collection, req.Query, req.K)
	if err != nil {
		if vectorstore.IsNotFound(err) {
			jsonError(w, "document not found: "+req.Collection, http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"collection": req.Collection,
		"query":      req.Query,
		"results":    results,
	})
}

// handleImage serves a stored extracted image by filename.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	// Base-name only: the URL parameter must not traverse directories.
	filename := filepath.Base(chi.URLParam(r, "filename"))
	http.ServeFile(w, r, filepath.Join(s.images.Dir(), filename))
}
