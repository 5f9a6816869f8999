package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ideahub/backend/internal/middleware"
	"github.com/ideahub/backend/internal/models"
	"github.com/ideahub/backend/internal/services"
)

const maxListLimit = 200

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByKind = map[string]int{
	"ValidationError":   http.StatusBadRequest,
	"InsufficientFunds": http.StatusPaymentRequired,
	"Forbidden":         http.StatusForbidden,
	"NotFound":          http.StatusNotFound,
	"EscrowNotFound":    http.StatusNotFound,
	"DuplicateEscrow":   http.StatusConflict,
	"AlreadyResolved":   http.StatusConflict,
	"TaskUnavailable":   http.StatusConflict,
	"AlreadyPurchased":  http.StatusConflict,
	"SelfPurchase":      http.StatusUnprocessableEntity,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a core error to its status code. Internal errors are
// logged and their detail withheld from the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := models.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok {
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: kind, Message: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized", Message: "authentication required"})
}

// principal returns the authenticated caller or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFromCtx(r.Context())
	if !ok {
		unauthorized(w)
	}
	return p, ok
}

// decode validates the body against schema and unmarshals it into dst.
func decode(r *http.Request, v *services.Validator, schema string, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", models.ErrValidation)
		}
		return fmt.Errorf("%w: read body: %v", models.ErrValidation, err)
	}
	if err := v.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", models.ErrValidation, name)
	}
	return id, nil
}

func parseID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", models.ErrValidation, field)
	}
	return id, nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", models.ErrValidation, maxListLimit)
	}
	return n, nil
}
