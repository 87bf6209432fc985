package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"liarsdice/internal/hub"
	"liarsdice/internal/session"
	"liarsdice/internal/ws"
)

func SetupRoutes(h *hub.Hub, sessions *session.Service, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, sessions, log))
	return r
}
