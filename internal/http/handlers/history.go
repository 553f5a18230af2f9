package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fluxbatch/internal/domain"
)

func (a *App) historyEnabled(w http.ResponseWriter) bool {
	if a.History == nil {
		a.json(w, http.StatusServiceUnavailable, map[string]string{"error": "history store not configured"})
		return false
	}
	return true
}

// ListHistory returns recorded generations, newest first.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	if !a.historyEnabled(w) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.History.List(r.Context(), limit)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"generations": entries})
}

type saveFavoriteRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// SaveFavorite stores a prompt for later reuse.
func (a *App) SaveFavorite(w http.ResponseWriter, r *http.Request) {
	if !a.historyEnabled(w) {
		return
	}
	var req saveFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidInput, err))
		return
	}
	fav, err := a.History.SaveFavorite(r.Context(), req.Name, req.Prompt)
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, fav)
}

// ListFavorites returns all saved prompts.
func (a *App) ListFavorites(w http.ResponseWriter, r *http.Request) {
	if !a.historyEnabled(w) {
		return
	}
	favorites, err := a.History.ListFavorites(r.Context())
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"favorites": favorites})
}

// DeleteFavorite removes a saved prompt.
func (a *App) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	if !a.historyEnabled(w) {
		return
	}
	if err := a.History.DeleteFavorite(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
