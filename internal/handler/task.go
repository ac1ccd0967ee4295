package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/coolive/internal/auth"
	"github.com/dukerupert/coolive/internal/chore"
	"github.com/dukerupert/coolive/internal/model"
	"github.com/dukerupert/coolive/internal/push"
	"github.com/dukerupert/coolive/internal/websocket"
)

type TaskHandler struct {
	svc      *chore.Service
	hub      *websocket.Hub
	notifier *push.Notifier
	logger   *slog.Logger
}

// NewTaskHandler builds the task handler. notifier may be nil when push is
// disabled.
func NewTaskHandler(svc *chore.Service, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{svc: svc, hub: hub, notifier: notifier, logger: logger}
}

func (h *TaskHandler) broadcast(groupID int64, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(groupID, msg)
	}
}

func (h *TaskHandler) notify(ctx context.Context, task model.Task, assignees []int64, actorID int64) {
	if h.notifier == nil || len(assignees) == 0 {
		return
	}
	go h.notifier.NotifyAssigned(context.WithoutCancel(ctx), task, assignees, actorID)
}

// List handles GET /api/tasks. ?sort=due orders by due date.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	tasks, err := h.svc.LoadTasks(r.Context(), ac.GroupID, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to list tasks")
		return
	}
	if r.URL.Query().Get("sort") == "due" {
		chore.SortByDueDate(tasks)
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Today handles GET /api/tasks/today
func (h *TaskHandler) Today(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	tasks, err := h.svc.LoadTasks(r.Context(), ac.GroupID, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, chore.Today(h.svc.Now(), tasks))
}

// Week handles GET /api/tasks/week?offset=N. ?nonempty=true drops days
// without tasks.
func (h *TaskHandler) Week(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "offset must be an integer")
			return
		}
		offset = n
	}

	ac, _ := auth.FromContext(r.Context())
	tasks, err := h.svc.LoadTasks(r.Context(), ac.GroupID, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to list tasks")
		return
	}

	week := chore.Week(h.svc.Now(), offset, tasks)
	if nonEmpty, _ := strconv.ParseBool(r.URL.Query().Get("nonempty")); nonEmpty {
		week.Days = week.NonEmpty()
		if week.Days == nil {
			week.Days = []chore.DayBucket{}
		}
	}
	writeJSON(w, http.StatusOK, week)
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req chore.TaskInput
	if !decodeJSON(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	task, err := h.svc.CreateTask(r.Context(), ac.GroupID, ac.UserID, req)
	if err != nil {
		writeError(w, h.logger, err, "failed to create task")
		return
	}

	h.broadcast(ac.GroupID, websocket.NewMessage("task", "created", task.ID, nil))
	h.notify(r.Context(), task.Task, assigneeIDs(task), ac.UserID)
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	task, err := h.svc.GetTask(r.Context(), ac.GroupID, id, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Update handles PUT /api/tasks/{id}. Newly added assignees are notified.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req chore.TaskInput
	if !decodeJSON(w, r, &req) {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	before, err := h.svc.GetTask(r.Context(), ac.GroupID, id, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to get task")
		return
	}
	task, err := h.svc.UpdateTask(r.Context(), ac.GroupID, id, ac.UserID, req)
	if err != nil {
		writeError(w, h.logger, err, "failed to update task")
		return
	}

	var added []int64
	for _, uid := range assigneeIDs(task) {
		if !before.IsAssigned(uid) {
			added = append(added, uid)
		}
	}

	h.broadcast(ac.GroupID, websocket.NewMessage("task", "updated", task.ID, nil))
	h.notify(r.Context(), task.Task, added, ac.UserID)
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	groupID := auth.GroupID(r.Context())
	if err := h.svc.DeleteTask(r.Context(), groupID, id); err != nil {
		writeError(w, h.logger, err, "failed to delete task")
		return
	}

	h.broadcast(groupID, websocket.NewMessage("task", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Toggle handles POST /api/tasks/{id}/toggle
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	res, err := h.svc.ToggleCompletion(r.Context(), ac.GroupID, id, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to toggle task")
		return
	}

	h.broadcast(ac.GroupID, websocket.NewMessage("completion", "toggled", id, map[string]any{
		"user_id":   ac.UserID,
		"completed": res.Completed,
	}))
	h.broadcast(ac.GroupID, websocket.NewMessage("ranking", "changed", ac.UserID, map[string]any{
		"points": res.Points,
	}))
	writeJSON(w, http.StatusOK, res)
}

func assigneeIDs(v *model.TaskView) []int64 {
	ids := make([]int64, len(v.AssignedTo))
	for i, a := range v.AssignedTo {
		ids[i] = a.ID
	}
	return ids
}
