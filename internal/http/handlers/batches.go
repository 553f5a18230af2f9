package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fluxbatch/internal/batch"
	"fluxbatch/internal/domain"
	zippkg "fluxbatch/pkg/zip"
)

type startBatchRequest struct {
	Name    string                  `json:"name"`
	Prompts []string                `json:"prompts"`
	Params  domain.GenerationParams `json:"params"`
}

// StartBatch accepts a prompt list plus one shared parameter template and
// begins a run. Fields omitted from params keep their defaults.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	req := startBatchRequest{Params: domain.DefaultParams()}
	if a.DefaultModel != "" {
		req.Params.Model = a.DefaultModel
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, r, fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidInput, err))
		return
	}

	run, err := a.Controller.Start(batch.BatchRequest{
		Name:    req.Name,
		Prompts: req.Prompts,
		Params:  req.Params,
	})
	if err != nil {
		a.error(w, r, err)
		return
	}

	a.json(w, http.StatusCreated, map[string]string{
		"run_id": run.ID(),
		"name":   run.Name(),
	})
}

// GetBatch returns a point-in-time snapshot of the run.
func (a *App) GetBatch(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.Controller.Status(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snapshot)
}

// CancelBatch requests cooperative cancellation. Safe to repeat and safe to
// call on a completed run.
func (a *App) CancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Controller.Cancel(id); err != nil {
		a.error(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "cancelling"})
}

// BatchEvents streams the run's progress as server-sent events until the run
// completes or the client goes away. The run's event channel backs a single
// consumer; attach one stream per run.
func (a *App) BatchEvents(w http.ResponseWriter, r *http.Request) {
	run, err := a.Controller.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-run.Events():
			if !open {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// BatchArchive bundles the run's stored artifacts into a single zip download.
func (a *App) BatchArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snapshot, err := a.Controller.Status(id)
	if err != nil {
		a.error(w, r, err)
		return
	}

	var files []zippkg.File
	for _, job := range snapshot.Jobs {
		if job.State != domain.JobStateSucceeded || job.Result == "" {
			continue
		}
		data, err := a.Files.Read(r.Context(), job.Result)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("http: archive skipping unreadable artifact")
			continue
		}
		files = append(files, zippkg.File{Name: job.Result, Data: data})
	}
	if len(files) == 0 {
		a.error(w, r, fmt.Errorf("%w: run %s has no stored artifacts", domain.ErrNotFound, id))
		return
	}

	archive, err := zippkg.Archive(files)
	if err != nil {
		a.error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshot.Name+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
