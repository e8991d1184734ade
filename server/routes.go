package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/metrics"
	"github.com/nixxel-company-limited/posprint/orchestrator"
	"github.com/nixxel-company-limited/posprint/profile"
	"github.com/nixxel-company-limited/posprint/receipt"
)

const maxBodyBytes = 1 << 20

// Handler returns the router with every bridge route.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/profiles", s.handleProfiles).Methods(http.MethodGet)
	api.HandleFunc("/profiles", s.handleAddProfile).Methods(http.MethodPost)
	api.HandleFunc("/profiles/{id}", s.handleDeleteProfile).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{id}/default", s.handleSetDefault).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer)).Methods(http.MethodGet)
	}
	return r
}

// SubmitRequest is the body of POST /api/jobs and of websocket submit
// messages.
type SubmitRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ProfileRequest describes a printer to connect to or save. PaperWidth
// takes 58, 80, "58mm" or "80mm".
type ProfileRequest struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	PaperWidth any    `json:"paper_width"`
	IsDefault  bool   `json:"is_default"`
}

func (p ProfileRequest) profile() (profile.Profile, error) {
	kind, err := adapter.ParseKind(p.Kind)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%w: %w", profile.ErrInvalid, err)
	}
	width := receipt.Paper58mm
	if p.PaperWidth != nil {
		if width, err = receipt.ParsePaperWidth(fmt.Sprint(p.PaperWidth)); err != nil {
			return profile.Profile{}, fmt.Errorf("%w: %w", profile.ErrInvalid, err)
		}
	}
	out := profile.New(p.Name, kind, p.Address, width)
	if p.ID != "" {
		out.ID = p.ID
	}
	out.IsDefault = p.IsDefault
	return out, out.Validate()
}

func (s *Server) submit(req SubmitRequest) (string, error) {
	t, err := receipt.ParseJobType(req.Type)
	if err != nil {
		return "", err
	}
	doc, err := receipt.Decode(t, req.Payload)
	if err != nil {
		return "", err
	}
	return s.orch.Submit(t, doc)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.submit(req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Jobs())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.orch.Job(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": s.orch.ClearQueue()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.State())
}

// handleConnect connects to a stored profile by id, an inline profile, or
// the preferred profile when the body is empty.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Kind != "":
		var p profile.Profile
		if p, err = s.inlineProfile(r.Context(), req); err == nil {
			err = s.orch.Connect(r.Context(), p)
		}
	case req.ID != "":
		var p profile.Profile
		if p, err = s.orch.Store().Get(r.Context(), req.ID); err == nil {
			err = s.orch.Connect(r.Context(), p)
		}
	default:
		err = s.orch.ConnectPreferred(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.State())
}

// inlineProfile turns a connect request without an id into a profile,
// reusing the saved one for the same printer when there is one.
func (s *Server) inlineProfile(ctx context.Context, req ProfileRequest) (profile.Profile, error) {
	p, err := req.profile()
	if err != nil || req.ID != "" {
		return p, err
	}
	saved, ok, err := profile.Match(ctx, s.orch.Store(), p.Kind, p.Address)
	if err != nil || !ok {
		if p.Name == "" {
			p.Name = fmt.Sprintf("%s %s", p.Kind, p.Address)
		}
		return p, err
	}
	if req.Name != "" {
		saved.Name = req.Name
	}
	if req.PaperWidth != nil {
		saved.PaperWidth = p.PaperWidth
	}
	saved.IsDefault = saved.IsDefault || req.IsDefault
	return saved, nil
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.orch.Disconnect()
	writeJSON(w, http.StatusOK, s.orch.State())
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.orch.Store().List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleAddProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := req.profile()
	if err == nil {
		err = s.orch.Store().Save(r.Context(), p)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Store().Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.orch.Store().SetDefault(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.orch.Store().Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, profile.ErrNotFound), errors.Is(err, profile.ErrNoDefault):
		return http.StatusNotFound
	case errors.Is(err, receipt.ErrUnsupportedJobType), errors.Is(err, profile.ErrInvalid),
		errors.Is(err, adapter.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrClosed), errors.Is(err, adapter.ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, adapter.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, adapter.ErrConnectionTimeout):
		return http.StatusGatewayTimeout
	}
	var connErr *adapter.ConnectionError
	if errors.As(err, &connErr) {
		return http.StatusBadGateway
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
