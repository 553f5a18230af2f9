package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"fluxbatch/internal/batch"
	"fluxbatch/internal/history"
)

// HistoryWriter is the slice of the history repository the recorder needs.
type HistoryWriter interface {
	Insert(ctx context.Context, entry history.Entry) error
}

// Recorder is the result store wired into the scheduler: it writes the
// artifact bytes to disk and, when a history writer is configured, records the
// generation metadata for the history and favorites views.
type Recorder struct {
	files   *FileStore
	history HistoryWriter // nil when no database is configured
	logger  zerolog.Logger
}

func NewRecorder(files *FileStore, hist HistoryWriter, logger zerolog.Logger) *Recorder {
	return &Recorder{files: files, history: hist, logger: logger}
}

// Record persists one succeeded job. The artifact file is authoritative: a
// history insert failure after a successful write still returns an error so
// the caller can report it, but the file stays on disk.
func (r *Recorder) Record(ctx context.Context, rec Record) (string, error) {
	key := artifactKey(rec)
	storedKey, err := r.files.Write(ctx, key, rec.Artifact.Data)
	if err != nil {
		return "", err
	}

	if r.history != nil {
		paramsJSON, err := json.Marshal(rec.Params)
		if err != nil {
			return storedKey, fmt.Errorf("storage: encode params: %w", err)
		}
		entry := history.Entry{
			RunID:      rec.RunID,
			JobID:      rec.JobID,
			Prompt:     rec.Prompt,
			ParamsJSON: paramsJSON,
			StorageKey: storedKey,
			Format:     rec.Artifact.Format,
			Width:      rec.Artifact.Width,
			Height:     rec.Artifact.Height,
			CreatedAt:  rec.CreatedAt,
		}
		if err := r.history.Insert(ctx, entry); err != nil {
			return storedKey, fmt.Errorf("storage: record history: %w", err)
		}
	}

	r.logger.Debug().Str("job_id", rec.JobID).Str("storage_key", storedKey).Msg("storage: artifact recorded")
	return storedKey, nil
}

// Record is re-exported so callers wiring the recorder do not need the batch
// package for the type alone.
type Record = batch.Record

func artifactKey(rec Record) string {
	ext := "bin"
	switch rec.Artifact.Format {
	case "jpeg", "jpg":
		ext = "jpg"
	case "png":
		ext = "png"
	}
	return fmt.Sprintf("generated_%s_%s.%s", rec.CreatedAt.Format("20060102_150405"), rec.JobID, ext)
}

var _ batch.ResultStore = (*Recorder)(nil)
