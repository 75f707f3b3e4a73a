package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"analytics-tag-checker/internal/analysis"
	"analytics-tag-checker/internal/batch"
	"analytics-tag-checker/internal/ioformats"
	"analytics-tag-checker/internal/metrics"
	"analytics-tag-checker/internal/models"
	"analytics-tag-checker/pkg/logger"
)

const maxBatch = 500

type detectReq struct {
	URL string `json:"url"`
}

type batchReq struct {
	URLs []string `json:"urls"`
}

type sessionReq struct {
	URL  string `json:"url"`
	Mode string `json:"mode,omitempty"`
}

type sessionResp struct {
	ID       string              `json:"id"`
	Analysis models.PageAnalysis `json:"analysis"`
}

type api struct {
	runner  *batch.Runner
	log     *logger.Logger
	metrics *metrics.Recorder

	mu       sync.RWMutex
	sessions map[string]*analysis.Session
}

func newAPI(runner *batch.Runner, l *logger.Logger, rec *metrics.Recorder) *api {
	return &api{runner: runner, log: l, metrics: rec, sessions: map[string]*analysis.Session{}}
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /detect", a.detect)
	mux.HandleFunc("POST /detect/batch", a.detectBatch)
	mux.HandleFunc("POST /detect/upload", a.detectUpload)
	mux.HandleFunc("POST /sessions", a.createSession)
	mux.HandleFunc("GET /sessions/{id}", a.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", a.deleteSession)
	mux.HandleFunc("POST /sessions/{id}/refresh", a.refresh)
	mux.HandleFunc("POST /sessions/{id}/events/page-loaded", a.pageLoaded)
	mux.HandleFunc("POST /sessions/{id}/events/network-confirmed", a.networkConfirmed)
	mux.HandleFunc("GET /sessions/{id}/stream", a.stream)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
	return mux
}

// POST /detect  { "url": "https://..." }
func (a *api) detect(w http.ResponseWriter, r *http.Request) {
	var req detectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := a.runner.Detect(r.Context(), req.URL)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /detect/batch  { "urls": ["https://...", "..."] }
func (a *api) detectBatch(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(req.URLs) > maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d urls per batch", maxBatch))
		return
	}
	writeJSON(w, http.StatusOK, a.runner.Batch(r.Context(), req.URLs))
}

// POST /detect/upload (multipart file=...) -> NDJSON stream
func (a *api) detectUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "multipart parse error")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part 'file' required")
		return
	}
	defer f.Close()

	urls, err := ioformats.ReadURLs(f, hdr.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	out := ioformats.NewWriter(w)
	flusher, _ := w.(http.Flusher)
	var mu sync.Mutex
	a.runner.Stream(r.Context(), urls, func(_ int, l ioformats.Line) {
		mu.Lock()
		defer mu.Unlock()
		if err := out.Write(l); err != nil {
			a.log.Warnf("upload stream: %v", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	})
}

// POST /sessions  { "url": "https://...", "mode": "http|chrome|mock" }
func (a *api) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s, err := a.runner.Session(req.Mode, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := uuid.NewString()
	a.mu.Lock()
	a.sessions[id] = s
	a.mu.Unlock()
	a.log.Infof("session %s opened for %s", id, req.URL)
	writeJSON(w, http.StatusCreated, sessionResp{ID: id, Analysis: s.Current()})
}

func (a *api) session(w http.ResponseWriter, r *http.Request) (*analysis.Session, bool) {
	id := r.PathValue("id")
	a.mu.RLock()
	s, ok := a.sessions[id]
	a.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return s, ok
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	if s, ok := a.session(w, r); ok {
		writeJSON(w, http.StatusOK, s.Current())
	}
}

func (a *api) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a.mu.Lock()
	s, ok := a.sessions[id]
	delete(a.sessions, id)
	a.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.Close()
	a.log.Infof("session %s closed", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	result, err := s.Refresh(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) pageLoaded(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var ev analysis.PageLoaded
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := s.HandlePageLoaded(r.Context(), ev)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) networkConfirmed(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var ev analysis.NetworkConfirmed
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.HandleNetworkConfirmed(ev); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Current())
}

// GET /sessions/{id}/stream: the current state first, then every session event.
func (a *api) stream(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, stop := s.Subscribe()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	cur := s.Current()
	if err := writeEvent(w, analysis.Event{Type: analysis.EventAnalysis, Analysis: &cur}); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				a.log.Debugf("stream closed: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev analysis.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, batch.ErrEmptyURL):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrUnexpectedFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
