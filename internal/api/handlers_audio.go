package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/muvi/internal/audio"
	"github.com/bobarin/muvi/internal/paths"
)

// maxUploadBytes bounds multipart uploads (audio tracks and cast photos).
const maxUploadBytes = 200 << 20

// UploadAudio handles POST /v1/projects/{id}/audio: stores the track in the
// project's audio/ folder, uploads it for analysis, and runs the full
// analyzer pipeline.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	st, err := h.store.Load(r.Context(), projectID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()
	prompt := r.FormValue("prompt")

	audioDir, err := h.paths.AudioDir(st)
	if err != nil {
		respondAppError(w, err)
		return
	}
	localPath := filepath.Join(audioDir, paths.SanitizeFilename(header.Filename, 80))
	if err := saveUpload(file, localPath); err != nil {
		respondAppError(w, err)
		return
	}

	uploadURL, err := h.orch.UploadLocalRef(r.Context(), st, h.paths.ToURL(localPath), nil)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if err := h.analyzer.Analyze(r.Context(), st, localPath, uploadURL, prompt); err != nil {
		respondAppError(w, err)
		return
	}
	st.AudioDNA.Meta.FileName = header.Filename
	st.AudioDNA.Meta.AudioURL = h.paths.ToURL(localPath)

	// Persist the DNA onto the canonical document under the lock.
	dna := st.AudioDNA
	cache := st.Project.FALUploadCache
	err = h.store.WithProjectLock(projectID, func() error {
		fresh, err := h.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		fresh.AudioDNA = dna
		for k, v := range cache {
			fresh.Project.FALUploadCache[k] = v
		}
		return h.store.SaveLocked(fresh, true, false)
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dna)
}

type bpmPatchRequest struct {
	BPM float64 `json:"bpm"`
}

// PatchBPM handles PATCH /v1/projects/{id}/audio/bpm: manual override within
// [40, 240] plus a beat-grid rebuild.
func (h *Handler) PatchBPM(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req bpmPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BPM < audio.MinBPM || req.BPM > audio.MaxBPM {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("bpm must be within [%d, %d]", audio.MinBPM, audio.MaxBPM))
		return
	}

	err := h.store.WithProjectLock(projectID, func() error {
		st, err := h.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		if err := audio.UpdateBPM(st, req.BPM); err != nil {
			return err
		}
		return h.store.SaveLocked(st, true, false)
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bpm": req.BPM, "bpm_source": "manual"})
}

type lyricsPatchRequest struct {
	Text string `json:"text"`
}

// PatchLyrics handles PATCH /v1/projects/{id}/audio/lyrics.
func (h *Handler) PatchLyrics(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	var req lyricsPatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.store.WithProjectLock(projectID, func() error {
		st, err := h.store.LoadLocked(projectID)
		if err != nil {
			return err
		}
		if err := audio.UpdateLyrics(st, req.Text); err != nil {
			return err
		}
		return h.store.SaveLocked(st, true, false)
	})
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"lyric_source": "manual"})
}

// saveUpload streams a multipart file to disk.
func saveUpload(src io.Reader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dest.Close()
	if _, err := io.Copy(dest, src); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write upload: %w", err)
	}
	return nil
}
