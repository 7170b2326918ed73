package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListEntries возвращает точки входа загруженного документа.
// GET /api/v1/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Entries()

	result := make([]EntryResponse, 0, len(names))
	for _, name := range names {
		protocol, roleName, err := h.registry.Lookup(name)
		if HandleError(w, h.logger, err, "") {
			return
		}
		role, _ := protocol.Role(roleName)
		result = append(result, EntryFromDomain(protocol, role))
	}

	List(w, result, len(result))
}

// ListTaskInvocations возвращает invocations task в порядке создания.
// GET /api/v1/tasks/{id}/invocations
func (h *Handler) ListTaskInvocations(w http.ResponseWriter, r *http.Request) {
	if h.invocations == nil {
		Unavailable(w, "invocation history is not configured")
		return
	}

	records, err := h.invocations.ListByTaskID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]InvocationResponse, len(records))
	for i, rec := range records {
		result[i] = InvocationFromDomain(rec)
	}

	List(w, result, len(result))
}

// GetInvocation возвращает запись invocation по ID.
// GET /api/v1/invocations/{id}
func (h *Handler) GetInvocation(w http.ResponseWriter, r *http.Request) {
	if h.invocations == nil {
		Unavailable(w, "invocation history is not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid invocation id")
		return
	}

	rec, err := h.invocations.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "invocation not found") {
		return
	}

	Success(w, InvocationFromDomain(*rec))
}
