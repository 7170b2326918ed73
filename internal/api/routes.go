package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Entries
	mux.Handle("GET /api/v1/entries", chain(http.HandlerFunc(h.ListEntries)))

	// Tasks
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.StartTask)))
	mux.Handle("GET /api/v1/tasks/{id}/invocations", chain(http.HandlerFunc(h.ListTaskInvocations)))

	// Invocations
	mux.Handle("GET /api/v1/invocations/{id}", chain(http.HandlerFunc(h.GetInvocation)))
}
