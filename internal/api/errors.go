package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/evlink/internal/nccd"
	"github.com/kalambet/evlink/internal/storage"
)

// stageError maps a stage failure to a response. Validation failures are
// reported to the caller; anything else is logged and hidden behind msg.
func stageError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, nccd.ErrInvalidInput) || errors.Is(err, nccd.ErrInsufficientData) {
		httpError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "%s", err.Error())
		return
	}
	slog.Error(msg,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	httpError(w, http.StatusInternalServerError, "%s", msg)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
