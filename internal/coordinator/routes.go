package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/formsync/extension-core/internal/middleware"
	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP bridge that exposes the coordinator to
// the popup and content scripts.
//
// Routes:
//
//	POST /bridge/message → decode a Message and dispatch it
//	GET  /bridge/healthz → liveness probe, bypasses key auth
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") — rejects non-JSON bodies
//  2. WithRequestLogging(logger)           — logs incoming requests
//  3. KeyAuth(extensionKey)                — enforces X-Extension-Key
func NewRouter(c *Coordinator, extensionKey string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.KeyAuth(extensionKey))

	r.Route("/bridge", func(r chi.Router) {
		r.Post("/message", c.handleMessage)
		r.Get("/healthz", handleHealthz)
	})

	return r
}

// handleMessage decodes one extension message and writes the dispatch
// response. Decode failures are a client error; everything past the
// decode goes through Dispatch and always yields a JSON envelope.
func (c *Coordinator) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	resp := c.Dispatch(r.Context(), msg)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
