// Package handler contains chi HTTP handlers that translate watchlist
// commands to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/fetcher"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/repository"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/service"
)

// JournalReader lists recorded notifications. It is optional.
type JournalReader interface {
	Recent(ctx context.Context, crn string, limit int) ([]model.Notification, error)
}

// WatchHandler holds all HTTP handlers for the watchlist API.
type WatchHandler struct {
	svc     *service.WatchService
	journal JournalReader
}

// NewWatchHandler constructs a WatchHandler. journal may be nil, in which
// case /notifications answers 404.
func NewWatchHandler(svc *service.WatchService, journal JournalReader) *WatchHandler {
	return &WatchHandler{svc: svc, journal: journal}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps a command error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidCRN), errors.Is(err, service.ErrUserRequired):
		return http.StatusBadRequest
	case errors.Is(err, fetcher.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrAlreadySubscribed), errors.Is(err, repository.ErrNotWatching):
		return http.StatusConflict
	case errors.Is(err, fetcher.ErrParse):
		return http.StatusBadGateway
	case errors.Is(err, fetcher.ErrTransport):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

type subscribeResponse struct {
	User    string                  `json:"user"`
	Term    string                  `json:"term"`
	Results []model.SubscribeResult `json:"results"`
}

// Subscribe handles POST /watchlist/{user}
// Adds one or more CRNs to the user's watchlist. Each CRN succeeds or fails
// on its own, so the response is always 200 with per-CRN results.
func (h *WatchHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	var req model.SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := h.svc.SubscribeMany(r.Context(), req.CRNs, req.Term, user)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	term := req.Term
	if term == "" {
		term = h.svc.DefaultTerm()
	}
	writeJSON(w, http.StatusOK, subscribeResponse{User: user, Term: term, Results: results})
}

// List handles GET /watchlist/{user}
// Returns the CRNs the user is watching.
func (h *WatchHandler) List(w http.ResponseWriter, r *http.Request) {
	crns, err := h.svc.List(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if crns == nil {
		crns = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"crns": crns})
}

// Unsubscribe handles DELETE /watchlist/{user}/{crn}
func (h *WatchHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	crn := chi.URLParam(r, "crn")

	if err := h.svc.Unsubscribe(crn, chi.URLParam(r, "user")); err != nil {
		msg := err.Error()
		if errors.Is(err, repository.ErrNotWatching) || errors.Is(err, model.ErrInvalidCRN) {
			msg = service.Describe(crn, err)
		}
		writeError(w, statusFor(err), msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /watchlist/{user}
// Removes every CRN from the user's watchlist.
func (h *WatchHandler) Clear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Clear(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"removed": removed})
}

// Courses handles GET /courses
// Returns every watched course with its last observed status.
func (h *WatchHandler) Courses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Courses())
}

// Notifications handles GET /notifications?crn=&limit=
// Returns recently delivered notifications from the journal.
func (h *WatchHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "notification journal is not enabled")
		return
	}

	crn := r.URL.Query().Get("crn")
	if crn != "" {
		if err := model.ValidateCRN(crn); err != nil {
			writeError(w, http.StatusBadRequest, service.Describe(crn, err))
			return
		}
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	notifications, err := h.journal.Recent(r.Context(), crn, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
