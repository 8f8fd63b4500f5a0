package project

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/paperforge/paperforge/internal/auth"
	"github.com/paperforge/paperforge/internal/transport"
	"github.com/paperforge/paperforge/pkg/logger"
)

type ServiceAPI interface {
	Create(actorID int64, actorUsername string, dto CreateProjectDTO) (*Project, error)
	List(userID int64) (*ProjectListResponse, error)
	Get(actorID, projectID int64) (*Project, Access, error)
	Rename(actorID, projectID int64, dto RenameProjectDTO) (*Project, error)
	Delete(actorID, projectID int64) error
	Share(actorID, projectID int64, dto ShareProjectDTO) (*UserProject, error)
	Revoke(actorID, projectID int64, username string) error
	Members(actorID, projectID int64) ([]*Member, error)
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

// Create handles POST /projects
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.Create(actor.ID, actor.Username, dto)
	if err != nil {
		h.Logger.Error("Create: service error", "error", err, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, p)
}

// List handles GET /projects
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp, err := h.Service.List(actor.ID)
	if err != nil {
		h.Logger.Error("List: service error", "error", err, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /projects/{projectID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndProject(w, r)
	if !ok {
		return
	}

	p, access, err := h.Service.Get(actor.ID, projectID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"project":    p,
		"permission": access.Permission.String(),
		"is_creator": access.Creator,
	})
}

// Rename handles PATCH /projects/{projectID}
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndProject(w, r)
	if !ok {
		return
	}

	var dto RenameProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.Rename(actor.ID, projectID, dto)
	if err != nil {
		h.Logger.Error("Rename: service error", "error", err, "project_id", projectID, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /projects/{projectID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndProject(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(actor.ID, projectID); err != nil {
		h.Logger.Error("Delete: service error", "error", err, "project_id", projectID, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Share handles POST /projects/{projectID}/shares
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndProject(w, r)
	if !ok {
		return
	}

	var dto ShareProjectDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	row, err := h.Service.Share(actor.ID, projectID, dto)
	if err != nil {
		h.Logger.Error("Share: service error", "error", err, "project_id", projectID, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, row)
}

// Revoke handles DELETE /projects/{projectID}/shares/{username}
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndProject(w, r)
	if !ok {
		return
	}

	username := chi.URLParam(r, "username")
	if username == "" {
		h.WriteError(w, http.StatusBadRequest, "username is required")
		return
	}

	if err := h.Service.Revoke(actor.ID, projectID, username); err != nil {
		h.Logger.Error("Revoke: service error", "error", err, "project_id", projectID, "user_id", actor.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Members handles GET /projects/{projectID}/shares
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndProject(w, r)
	if !ok {
		return
	}

	members, err := h.Service.Members(actor.ID, projectID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) actorAndProject(w http.ResponseWriter, r *http.Request) (*auth.User, int64, bool) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, 0, false
	}

	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid project id")
		return nil, 0, false
	}

	return actor, projectID, true
}

