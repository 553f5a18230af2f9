package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"fluxbatch/internal/batch"
	"fluxbatch/internal/domain"
	"fluxbatch/internal/history"
	"fluxbatch/internal/storage"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Controller *batch.Controller
	History    *history.Repo // nil when no database is configured
	Files      *storage.FileStore
	Logger     zerolog.Logger

	// DefaultModel overrides the built-in default for requests that omit a
	// model.
	DefaultModel string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.json(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrNotFound):
		a.json(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
