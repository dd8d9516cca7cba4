// Package reportapi implements the thin HTTP reporting surface: zip-file
// status lookups, a count summary, and a rejected-archive listing. It
// follows the teacher's internal/server: a bare http.ServeMux since no
// routing framework appears anywhere in the retrieved example pack (see
// DESIGN.md).
package reportapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/caseflow/bulkscan-processor/internal/model"
	"github.com/caseflow/bulkscan-processor/internal/store"
)

// minDocumentControlNumberLength is the original's validated lower bound
// on a dcn query parameter.
const minDocumentControlNumberLength = 6

// Server hosts the reporting HTTP handlers.
type Server struct {
	envelopes *store.Store
	log       *logrus.Entry
	addr      string
}

// New constructs a Server.
func New(envelopes *store.Store, log *logrus.Entry, addr string) *Server {
	return &Server{envelopes: envelopes, log: log, addr: addr}
}

// Serve launches the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.routes(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/zip-files", s.handleZipFileStatus)
	mux.HandleFunc("/reports/count-summary", s.handleCountSummary)
	mux.HandleFunc("/reports/rejected", s.handleRejected)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// zipFileStatusResponse is the zip-file lookup result: the envelope's
// identifying fields, current status and creation time. It does not include
// the envelope's event history.
type zipFileStatusResponse struct {
	Container   string    `json:"container"`
	ZipFileName string    `json:"zip_file_name"`
	CaseNumber  string    `json:"case_number,omitempty"`
	Status      model.Status `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleZipFileStatus implements GET /zip-files?name=... or ?dcn=...,
// requiring exactly one of the two parameters, with dcn validated to be at
// least minDocumentControlNumberLength characters, per the original's
// ZipStatusController.
func (s *Server) handleZipFileStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	dcn := r.URL.Query().Get("dcn")

	switch {
	case name != "" && dcn != "":
		http.Error(w, "exactly one of name or dcn must be supplied", http.StatusBadRequest)
		return
	case name == "" && dcn == "":
		http.Error(w, "one of name or dcn is required", http.StatusBadRequest)
		return
	case dcn != "" && len(dcn) < minDocumentControlNumberLength:
		http.Error(w, "dcn must be at least 6 characters", http.StatusBadRequest)
		return
	}

	var (
		env *model.Envelope
		err error
	)
	if name != "" {
		env, err = s.envelopes.FindByZipFileName(r.Context(), name)
	} else {
		env, err = s.envelopes.FindByDocumentControlNumber(r.Context(), dcn)
	}
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "zip file not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.WithError(err).Error("zip file status lookup")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, zipFileStatusResponse{
		Container:   env.Container,
		ZipFileName: env.ZipFileName,
		CaseNumber:  env.CaseNumber,
		Status:      env.Status,
		CreatedAt:   env.CreatedAt,
	})
}

// handleCountSummary implements GET /reports/count-summary.
func (s *Server) handleCountSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	counts, err := s.envelopes.CountSummary(r.Context())
	if err != nil {
		s.log.WithError(err).Error("count summary")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// handleRejected implements GET /reports/rejected?since=<RFC3339>, defaulting
// to the last 24 hours.
func (s *Server) handleRejected(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	events, err := s.envelopes.FindRejected(r.Context(), since)
	if err != nil {
		s.log.WithError(err).Error("find rejected")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
