package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/quantfolio/internal/tasks"
)

// TaskHandlers serves the background task polling endpoint.
type TaskHandlers struct {
	tasks *tasks.Store
	log   zerolog.Logger
}

// NewTaskHandlers creates a new task handlers instance.
func NewTaskHandlers(store *tasks.Store, log zerolog.Logger) *TaskHandlers {
	return &TaskHandlers{
		tasks: store,
		log:   log.With().Str("component", "task_handlers").Logger(),
	}
}

// RegisterRoutes mounts the task routes.
func (h *TaskHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/tasks/{id}", h.handleGetTask)
}

func (h *TaskHandlers) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, ok := h.tasks.Get(id)
	if !ok {
		writeError(h.log, w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(h.log, w, http.StatusOK, task)
}
