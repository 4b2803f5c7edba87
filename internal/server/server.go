// Package server exposes the job facade over HTTP with a WebSocket event stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
	"github.com/raphaelgruber/scanjobs/internal/service"
)

// maxBodyBytes bounds submit payloads.
const maxBodyBytes = 1 << 20

// Server wraps the job facade with HTTP handlers.
type Server struct {
	svc         *service.OCRService
	hub         *Hub
	logger      *slog.Logger
	version     string
	unsubscribe func()
}

// New creates a server and subscribes its hub to the facade's events.
func New(svc *service.OCRService, version string, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	return &Server{
		svc:         svc,
		hub:         hub,
		logger:      logger,
		version:     version,
		unsubscribe: svc.Subscribe(hub.Publish),
	}
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close detaches from the facade and disconnects all event clients.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /analyze-pdf", s.handleAnalyzePDF)
	mux.HandleFunc("POST /rotate", s.handleRotate)
	mux.HandleFunc("POST /thumbnails", s.handleThumbnails)
	mux.HandleFunc("POST /cancel", s.handleCancel)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /events", s.hub)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return LoggingMiddleware(s.logger, mux)
}

type analyzeRequest struct {
	Path string          `json:"path"`
	Crop jobs.CropPoints `json:"crop,omitempty"`
}

type analyzePDFRequest struct {
	Pages []int `json:"pages"`
}

type rotateRequest struct {
	Path     string `json:"path"`
	Rotation int    `json:"rotation"`
	Gallery  bool   `json:"gallery"`
}

type thumbnailsRequest struct {
	Path string `json:"path"`
}

type submitResponse struct {
	Kind  jobs.Kind `json:"kind"`
	RunID uuid.UUID `json:"run_id"`
}

type cancelResponse struct {
	Cancelled []jobs.Kind `json:"cancelled"`
}

type healthInfo struct {
	Version string `json:"version"`
	Clients int    `json:"clients"`
}

type statsResponse struct {
	Server  healthInfo `json:"server"`
	Metrics any        `json:"metrics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.svc.Analyze(req.Path, req.Crop)
	s.submitted(w, jobs.AnalyzeImage, id, err)
}

func (s *Server) handleAnalyzePDF(w http.ResponseWriter, r *http.Request) {
	var req analyzePDFRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.svc.AnalyzePDF(req.Pages)
	s.submitted(w, jobs.AnalyzePDF, id, err)
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.svc.PrepareForCropping(req.Path, req.Rotation, req.Gallery)
	s.submitted(w, jobs.RotateImage, id, err)
}

func (s *Server) handleThumbnails(w http.ResponseWriter, r *http.Request) {
	var req thumbnailsRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.svc.GetThumbnails(req.Path)
	s.submitted(w, jobs.GenerateThumbnails, id, err)
}

// handleCancel cancels ?kind=<name>, or every running kind when omitted.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("kind")
	if name == "" {
		writeJSON(w, http.StatusOK, cancelResponse{Cancelled: nonNil(s.svc.CancelAll())})
		return
	}
	kind, err := jobs.ParseKind(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.svc.Cancel(kind); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: []jobs.Kind{kind}})
}

// handleStatus reports ?kind=<name>, or every kind when omitted.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("kind")
	if name == "" {
		writeJSON(w, http.StatusOK, s.svc.Statuses())
		return
	}
	kind, err := jobs.ParseKind(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st, err := s.svc.Status(kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Server:  healthInfo{Version: s.version, Clients: s.hub.Clients()},
		Metrics: s.svc.Metrics().Snapshot(),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return false
	}
	return true
}

func (s *Server) submitted(w http.ResponseWriter, kind jobs.Kind, id uuid.UUID, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Kind: kind, RunID: id})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrKindBusy):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, jobs.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoJobBody):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(kinds []jobs.Kind) []jobs.Kind {
	if kinds == nil {
		return []jobs.Kind{}
	}
	return kinds
}
