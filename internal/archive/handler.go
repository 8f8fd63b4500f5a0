package archive

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	"github.com/paperforge/paperforge/internal/auth"
	"github.com/paperforge/paperforge/internal/transport"
	"github.com/paperforge/paperforge/pkg/logger"
)

type ServiceAPI interface {
	Build(actorID, projectID int64, scope Scope) (*Archive, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// Download handles GET /projects/{projectID}/archive?scope=all|user|production
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	scope, err := ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.Service.Build(actor.ID, projectID, scope)
	if err != nil {
		h.Logger.Error("Download: service error", "error", err, "project_id", projectID, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}
	defer a.Close()

	f, err := a.Open()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, "could not open archive")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	http.ServeContent(w, r, a.Name, time.Now(), f)
}
