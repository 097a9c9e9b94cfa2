package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/desertthunder/motifd/internal/auth"
	"github.com/desertthunder/motifd/internal/paths"
	"github.com/desertthunder/motifd/internal/providers"
	"github.com/desertthunder/motifd/internal/shared"
	"github.com/desertthunder/motifd/internal/tasks"
)

// RenderRequest is the submission payload. Exactly one of InputPath and
// InputData must be provided; InputData is base64 in the JSON encoding.
type RenderRequest struct {
	InputPath string  `json:"input_path"`
	InputData []byte  `json:"input_data"`
	Name      string  `json:"name"`
	Style     string  `json:"style"`
	Intensity float64 `json:"intensity"`
}

// RenderHandler accepts render submissions.
type RenderHandler struct {
	Scheduler *tasks.Scheduler
	Gate      *auth.Gate
	AllowSync bool
}

func (h *RenderHandler) Routes() []string {
	return []string{"POST /render"}
}

// ServeHTTP queues a render task and replies 202 with its id. When the
// development-only synchronous mode is enabled and the caller passes sync=1,
// the response blocks until the task is terminal and carries the full task.
func (h *RenderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body", shared.ErrValidation))
		return
	}

	sync := r.URL.Query().Get("sync") == "1"
	if sync && !h.AllowSync {
		writeError(w, fmt.Errorf("%w: synchronous mode is not enabled on this server", shared.ErrValidation))
		return
	}

	header := r.Header.Get("Authorization")
	input := tasks.Input{Path: req.InputPath, Data: req.InputData, Name: req.Name}
	params := providers.Params{Style: req.Style, Intensity: req.Intensity}

	id, err := h.Scheduler.Submit(r.Context(), header, input, params)
	if err != nil {
		writeError(w, err)
		return
	}

	if sync {
		owner, err := h.Gate.Authenticate(header)
		if err != nil {
			writeError(w, err)
			return
		}
		task, err := h.Scheduler.Wait(r.Context(), id, owner)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, http.StatusOK, task)
		return
	}

	writeResult(w, http.StatusAccepted, map[string]string{
		"task_id": id,
		"status":  string(tasks.StatusQueued),
	})
}

// TaskHandler serves the poll-based task lifecycle.
type TaskHandler struct {
	Scheduler *tasks.Scheduler
	Gate      *auth.Gate
}

func (h *TaskHandler) Routes() []string {
	return []string{"GET /tasks/{id}", "DELETE /tasks/{id}"}
}

func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, err := h.Gate.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")

	var task tasks.Task
	switch r.Method {
	case http.MethodGet:
		task, err = h.Scheduler.Status(id, owner)
	case http.MethodDelete:
		task, err = h.Scheduler.Cancel(id, owner)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeResult(w, http.StatusOK, task)
}

// DownloadHandler streams produced artifacts. Every requested path passes
// through the guard; nothing outside the permitted roots is ever served.
type DownloadHandler struct {
	Gate      *auth.Gate
	Guard     *paths.Guard
	OutputDir string
}

func (h *DownloadHandler) Routes() []string {
	return []string{"GET /download", "GET /outputs/{file}"}
}

func (h *DownloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Gate.Authenticate(r.Header.Get("Authorization")); err != nil {
		writeError(w, err)
		return
	}

	requested := r.URL.Query().Get("path")
	if file := r.PathValue("file"); file != "" {
		requested = filepath.Join(h.OutputDir, file)
	}
	if requested == "" {
		writeError(w, fmt.Errorf("%w: a path query parameter is required", shared.ErrValidation))
		return
	}

	resolved, err := h.Guard.ResolveFile(requested)
	if err != nil {
		writeError(w, err)
		return
	}

	http.ServeFile(w, r, resolved)
}
