package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raglab/docuchat/internal/chat"
	"github.com/raglab/docuchat/internal/parser"
	"github.com/raglab/docuchat/internal/pipeline"
)

// statusEvent carries job progress on the SSE stream.
const statusEvent = chat.EventType("status")

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size, with headroom for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	// Keep a copy of the original upload for operator inspection.
	if s.cfg.UploadDir != "" {
		if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err == nil {
			if err := os.WriteFile(filepath.Join(s.cfg.UploadDir, filename), data, 0o644); err != nil {
				s.log.Warn("upload copy failed", "filename", filename, "error", err)
			}
		}
	}

	job := pipeline.NewJob(filename, data)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"collection": job.Collection,
		"status":     job.Status,
		"poll_url":   fmt.Sprintf("/api/jobs/%s", job.ID),
		"stream_url": fmt.Sprintf("/api/jobs/%s/stream", job.ID),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// handleJobStream follows a job over SSE until it reaches a terminal
// status, emitting a status event whenever the snapshot changes.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	var last pipeline.JobSnapshot
	emit := func() (done bool) {
		snap := job.Snapshot()
		if snap.UpdatedAt.Equal(last.UpdatedAt) && snap.Status == last.Status {
			return snap.Status.Terminal()
		}
		last = snap
		if err := sse.SendData(statusEvent, snap); err != nil {
			return true
		}
		return snap.Status.Terminal()
	}

	if emit() {
		sse.SendData(chat.EventEnd, nil)
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if emit() {
				sse.SendData(chat.EventEnd, nil)
				return
			}
		}
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
