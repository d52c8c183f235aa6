package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/fulfillment/internal/middleware"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: message})
}

func notFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: message})
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "invalid_transition", "invalid_state", "conflict":
		return http.StatusConflict
	case "insufficient_stock", "rider_unavailable":
		return http.StatusUnprocessableEntity
	case "timeout":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error. Internal failures are logged and
// replaced with a generic message so driver text never reaches clients.
func writeError(w http.ResponseWriter, log *zap.SugaredLogger, op string, err error) {
	kind := service.Kind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.Errorw(op+" failed", "error", err)
		writeJSON(w, status, errorResponse{Error: "internal", Message: "internal server error"})
		return
	}
	if status == http.StatusServiceUnavailable {
		log.Warnw(op+" timed out", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

// writeStoreError handles read-path errors from database queries.
func writeStoreError(w http.ResponseWriter, log *zap.SugaredLogger, what string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		notFound(w, what+" not found")
		return
	}
	log.Errorw("get "+what+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// urlUUID parses a chi URL parameter, writing a 400 when it is malformed.
func urlUUID(w http.ResponseWriter, r *http.Request, key, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		badRequest(w, "invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// branchID reads {bid}; RequireBranch has already authorized it.
func branchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return urlUUID(w, r, "bid", "branch")
}

func queryInt(r *http.Request, key string, fallback, max int) int {
	n := fallback
	if s := r.URL.Query().Get(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			n = v
		}
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

func queryUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		badRequest(w, "invalid "+key)
		return uuid.Nil, false
	}
	return id, true
}

// actorID is the authenticated user, uuid.Nil when the route is public.
func actorID(r *http.Request) uuid.UUID {
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		return claims.UserID
	}
	return uuid.Nil
}
