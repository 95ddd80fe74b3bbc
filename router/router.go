package router

import (
	"context"
	"net/http"
	"time"

	"naskahcollab/config"
	docHandler "naskahcollab/internal/document"
	"naskahcollab/middleware"
	"naskahcollab/pkg/logger"
	"naskahcollab/socket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

func Setup(cfg *config.Config, hub *socket.Hub, docs *docHandler.DocumentHandler, checks ...HealthCheck) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.NewAuth(cfg.JWTSecret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.IdentityFrom(r.Context())
		socket.ServeWs(hub, w, r, user)
	})
	mux.Handle("/ws", auth.Handshake(wsHandler))

	// REST API
	guard := func(fn http.HandlerFunc) http.Handler { return auth.AuthMiddleware(fn) }

	mux.Handle("/api/documents/create", guard(docs.CreateDocument))
	mux.Handle("/api/documents/delete", guard(docs.DeleteDocument))
	mux.Handle("/api/documents/update", guard(docs.UpdateDocument))
	mux.Handle("/api/documents", guard(docs.GetDocuments))
	mux.Handle("/api/documents/save", guard(docs.SaveDocument))
	mux.Handle("/api/documents/invite", guard(docs.AddCollaborator))
	mux.Handle("/api/documents/permission", guard(docs.ChangePermission))
	mux.Handle("/api/documents/collaborator", guard(docs.RemoveCollaborator))
	mux.Handle("/api/documents/accept", guard(docs.AcceptInvitation))
	mux.Handle("/api/documents/members", guard(docs.GetDocumentMembers))
	mux.Handle("/api/documents/presence", guard(docs.GetPresence))
	mux.Handle("/api/documents/comments/add", guard(docs.AddComment))
	mux.Handle("/api/documents/comments/reply", guard(docs.ReplyComment))
	mux.Handle("/api/documents/comments", guard(docs.GetComments))
	mux.Handle("/api/documents/comments/resolve", guard(docs.ResolveComment))
	mux.Handle("/api/documents/comments/update", guard(docs.UpdateComment))
	mux.Handle("/api/documents/comments/delete", guard(docs.DeleteComment))

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				logger.Sugar.Warnf("Health check failed: %v", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})

	return middleware.CORSMiddleware(cfg.CORSOrigin, mux)
}
