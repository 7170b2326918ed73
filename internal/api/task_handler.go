package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/host"
)

// StartTask рассылает назначение task всем участникам.
// POST /api/v1/tasks
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		Unavailable(w, "task publisher is not configured")
		return
	}

	var req StartTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Protocol == "" {
		BadRequest(w, "protocol is required")
		return
	}

	// Проверяем, что протокол есть в документе
	if _, err := h.registry.Protocol(req.Protocol); HandleError(w, h.logger, err, "") {
		return
	}

	a := domain.Assignment{
		TaskID:       req.TaskID,
		Protocol:     req.Protocol,
		Param:        req.Param,
		Participants: req.Participants,
	}

	taskID, err := host.StartTask(r.Context(), h.publisher, a)
	if HandleError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("task started via api", "task_id", taskID, "protocol", req.Protocol)

	Accepted(w, StartTaskResponse{
		TaskID:   taskID,
		Protocol: req.Protocol,
		Users:    host.Users(req.Participants),
	})
}
