package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/coolive/internal/chore"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// writeError maps domain errors to a status code. Anything unrecognised is
// logged and reported as a generic 500 with fallback as the message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var ve *chore.ValidationError
	switch {
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, chore.ErrNoGroup),
		errors.Is(err, chore.ErrNotMember),
		errors.Is(err, chore.ErrNotAssignee):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, chore.ErrTaskNotFound),
		errors.Is(err, chore.ErrGroupNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chore.ErrAlreadyInGroup):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		logger.Error(fallback, "error", err)
		writeMessage(w, http.StatusInternalServerError, fallback)
	}
}
