package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/nelgraph"
	"github.com/brunobiangulo/nelgraph/graph"
	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/linker"
	"github.com/brunobiangulo/nelgraph/store"
)

// maxTextBytes bounds JSON request bodies.
const maxTextBytes = 1 << 20

type handler struct {
	engine nelgraph.Engine
}

func newHandler(e nelgraph.Engine) *handler {
	return &handler{engine: e}
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /process", h.handleProcess)
	mux.HandleFunc("POST /resolve", h.handleResolve)
	mux.HandleFunc("GET /entities", h.handleListEntities)
	mux.HandleFunc("GET /entities/{id}", h.handleGetEntity)
	mux.HandleFunc("GET /entities/{id}/tree", h.handleEntityTree)
	mux.HandleFunc("GET /entities/{id}/similar", h.handleSimilar)
	mux.HandleFunc("GET /entities/{id}/neighbours", h.handleNeighbours)
	mux.HandleFunc("GET /graph/metrics", h.handleMetrics)
	mux.HandleFunc("GET /graph/dot", h.handleDOT)
	mux.HandleFunc("GET /graph/communities", h.handleCommunities)
	mux.HandleFunc("GET /documents", h.handleListDocuments)
	mux.HandleFunc("DELETE /documents/{id}", h.handleDeleteDocument)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

// linkView is a link with the sentence it was found in.
type linkView struct {
	linker.Link
	Context string `json:"context"`
}

type processResponse struct {
	*nelgraph.Result
	Links []linkView `json:"links"`
}

// POST /process
// Accepts a multipart file upload or JSON with the text.
func (h *handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	var (
		res *nelgraph.Result
		err error
	)
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "multipart request needs a 'file' field")
			return
		}
		defer file.Close()
		res, err = h.processUpload(ctx, file, header.Filename, r.FormValue("run_id"))
	} else {
		var req struct {
			Text   string `json:"text"`
			Source string `json:"source,omitempty"`
			RunID  string `json:"run_id,omitempty"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'text'")
			return
		}
		opts := []nelgraph.ProcessOption{nelgraph.WithSource(req.Source)}
		if req.RunID != "" {
			opts = append(opts, nelgraph.WithRunID(req.RunID))
		}
		res, err = h.engine.Process(ctx, req.Text, opts...)
	}

	switch {
	case errors.Is(err, nelgraph.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "text is required")
		return
	case errors.Is(err, nelgraph.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "processing failed")
		slog.Error("server: process error", "error", err)
		return
	}

	resp := processResponse{Result: res, Links: make([]linkView, len(res.Links))}
	for i, l := range res.Links {
		resp.Links[i] = linkView{Link: l, Context: nelgraph.Snippet(res.Text, l.Mention, 0)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// processUpload stores an uploaded file in a temporary directory and
// processes it.
func (h *handler) processUpload(ctx context.Context, file io.Reader, filename, runID string) (*nelgraph.Result, error) {
	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(filename)

	dir, err := os.MkdirTemp("", "nelgraph-upload-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	tmpPath := filepath.Join(dir, safeName)
	dst, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return nil, err
	}
	if err := dst.Close(); err != nil {
		return nil, err
	}

	opts := []nelgraph.ProcessOption{nelgraph.WithSource(safeName)}
	if runID != "" {
		opts = append(opts, nelgraph.WithRunID(runID))
	}
	return h.engine.ProcessFile(ctx, tmpPath, opts...)
}

// POST /resolve
func (h *handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTextBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	link, err := h.engine.Resolve(ctx, req.Name)
	if errors.Is(err, nelgraph.ErrEntityNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":       "no link found",
			"suggestions": h.engine.Suggest(req.Name, 5),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve failed")
		slog.Error("server: resolve error", "name", req.Name, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// GET /entities
func (h *handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": h.engine.KB().Entities(),
	})
}

// GET /entities/{id}
func (h *handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GET /entities/{id}/tree
func (h *handler) handleEntityTree(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tree": graph.LinkedTree(h.engine.KB(), e.ID),
	})
}

// GET /entities/{id}/similar?n=5
func (h *handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	n := 5
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "n must be between 1 and 100")
			return
		}
		n = parsed
	}

	neighbors, err := h.engine.Similar(r.Context(), e.ID, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		slog.Error("server: similar error", "id", e.ID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"neighbors": neighbors,
	})
}

// GET /entities/{id}/neighbours?depth=1
func (h *handler) handleNeighbours(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entity(w, r)
	if !ok {
		return
	}
	depth := 1
	if v := r.URL.Query().Get("depth"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 10 {
			writeError(w, http.StatusBadRequest, "depth must be between 1 and 10")
			return
		}
		depth = parsed
	}

	ids, err := h.engine.Neighbours(r.Context(), e.ID, depth)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "graph traversal failed")
		slog.Error("server: neighbours error", "id", e.ID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"depth":      depth,
		"neighbours": ids,
	})
}

func (h *handler) entity(w http.ResponseWriter, r *http.Request) (kb.Entity, bool) {
	id := r.PathValue("id")
	e, ok := h.engine.KB().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "entity not found")
	}
	return e, ok
}

// GET /graph/metrics?undirected=true&top_k=5
func (h *handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var opts graph.Options
	q := r.URL.Query()
	if v := q.Get("undirected"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "undirected must be a boolean")
			return
		}
		opts.Undirected = b
	}
	if v := q.Get("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 1 || k > 1000 {
			writeError(w, http.StatusBadRequest, "top_k must be between 1 and 1000")
			return
		}
		opts.TopK = k
	}

	rep, err := h.engine.Analyze(ctx, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		slog.Error("server: metrics error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /graph/dot
func (h *handler) handleDOT(w http.ResponseWriter, r *http.Request) {
	kg, err := h.engine.Graph(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "building graph failed")
		slog.Error("server: graph error", "error", err)
		return
	}
	b, err := graph.MarshalDOT(kg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding graph failed")
		slog.Error("server: dot error", "error", err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// GET /graph/communities
func (h *handler) handleCommunities(w http.ResponseWriter, r *http.Request) {
	comms, err := h.engine.Communities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "community detection failed")
		slog.Error("server: communities error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"communities": comms,
	})
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.Documents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		slog.Error("server: list documents error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
	})
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	err = h.engine.Store().DeleteDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		slog.Error("server: delete error", "document_id", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"entities": h.engine.KB().Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
