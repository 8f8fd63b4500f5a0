package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/paperforge/paperforge/internal/archive"
	"github.com/paperforge/paperforge/internal/auth"
	"github.com/paperforge/paperforge/internal/file"
	"github.com/paperforge/paperforge/internal/pipeline"
	"github.com/paperforge/paperforge/internal/project"
	"github.com/paperforge/paperforge/internal/transport/middleware"
	"github.com/paperforge/paperforge/internal/transport/swagger"
	"github.com/paperforge/paperforge/internal/user"
)

// Handlers bundles every REST handler the router mounts.
type Handlers struct {
	Auth     *auth.Handler
	User     *user.Handler
	Project  *project.Handler
	File     *file.Handler
	Pipeline *pipeline.Handler
	Archive  *archive.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Auth routes
		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
			sr.Post("/password-reset/request", h.User.RequestPasswordReset)
			sr.Post("/password-reset", h.User.ResetPassword)
		})

		// Registration is open
		r.Post("/users", h.User.Register)

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			// Current user
			pr.Route("/users/me", func(ur chi.Router) {
				ur.Get("/", h.User.GetCurrentUser)
				ur.Patch("/email", h.User.RequestEmailChange)
				ur.Post("/email/confirm", h.User.ConfirmEmailChange)
				ur.Patch("/password", h.User.ChangePassword)
			})

			// Project routes
			pr.Route("/projects", func(prr chi.Router) {
				prr.Post("/", h.Project.Create)  // POST /projects
				prr.Get("/", h.Project.List)     // GET /projects
				prr.Route("/{projectID}", func(sr chi.Router) {
					sr.Get("/", h.Project.Get)
					sr.Patch("/", h.Project.Rename)
					sr.Delete("/", h.Project.Delete)

					sr.Get("/shares", h.Project.Members)
					sr.Post("/shares", h.Project.Share)
					sr.Delete("/shares/{username}", h.Project.Revoke)

					sr.Post("/files", h.File.Upload)
					sr.Get("/files", h.File.List)

					sr.Post("/pipelines", h.Pipeline.Run)
					sr.Get("/archive", h.Archive.Download)
				})
			})

			// File routes
			pr.Route("/files", func(fr chi.Router) {
				fr.Post("/bulk-delete", h.File.DeleteMany)
				fr.Route("/{fileID}", func(sr chi.Router) {
					sr.Patch("/", h.File.Rename)
					sr.Delete("/", h.File.Delete)
					sr.Get("/download", h.File.Download)
				})
			})
		})
	})
}
