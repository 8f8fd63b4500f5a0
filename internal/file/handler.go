package file

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/paperforge/paperforge/internal/auth"
	"github.com/paperforge/paperforge/internal/transport"
	"github.com/paperforge/paperforge/pkg/logger"
)

// maxUploadMemory bounds the multipart form buffer; larger parts spill to
// temp files.
const maxUploadMemory = 32 << 20

type ServiceAPI interface {
	Upload(actorID, projectID int64, filename string, r io.Reader) (*File, error)
	Rename(actorID, fileID int64, newName string) (*File, error)
	Delete(actorID, fileID int64) error
	DeleteMany(actorID int64, fileIDs []int64) *BulkDeleteResult
	Download(actorID, fileID int64) (*os.File, *File, error)
	ListForProject(actorID, projectID int64) ([]*File, error)
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

// Upload handles POST /projects/{projectID}/files. Accepts one or more
// multipart parts under the "files" field; rejections are reported per file.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndParam(w, r, "projectID")
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		h.WriteError(w, http.StatusBadRequest, "no files in request")
		return
	}

	result := &UploadResult{Rejected: map[string]string{}}
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			result.Rejected[part.Filename] = "could not read upload"
			continue
		}
		f, err := h.Service.Upload(actor.ID, projectID, part.Filename, src)
		src.Close()
		if err != nil {
			h.Logger.Error("Upload: service error",
				"error", err, "project_id", projectID, "filename", part.Filename, "user_id", actor.ID)
			result.Rejected[part.Filename] = err.Error()
			continue
		}
		result.Uploaded = append(result.Uploaded, f)
	}
	if len(result.Rejected) == 0 {
		result.Rejected = nil
	}

	status := http.StatusCreated
	if len(result.Uploaded) == 0 {
		status = http.StatusBadRequest
	}
	h.WriteJSON(w, status, result)
}

// List handles GET /projects/{projectID}/files
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, projectID, ok := h.actorAndParam(w, r, "projectID")
	if !ok {
		return
	}

	files, err := h.Service.ListForProject(actor.ID, projectID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, files)
}

// Rename handles PATCH /files/{fileID}
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	actor, fileID, ok := h.actorAndParam(w, r, "fileID")
	if !ok {
		return
	}

	var dto RenameFileDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	f, err := h.Service.Rename(actor.ID, fileID, dto.NewName)
	if err != nil {
		h.Logger.Error("Rename: service error", "error", err, "file_id", fileID, "user_id", actor.ID)
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, f)
}

// Delete handles DELETE /files/{fileID}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, fileID, ok := h.actorAndParam(w, r, "fileID")
	if !ok {
		return
	}

	if err := h.Service.Delete(actor.ID, fileID); err != nil {
		h.Logger.Error("Delete: service error", "error", err, "file_id", fileID, "user_id", actor.ID)
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteMany handles POST /files/bulk-delete
func (h *Handler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto BulkDeleteDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.Service.DeleteMany(actor.ID, dto.FileIDs)
	h.WriteJSON(w, http.StatusOK, result)
}

// Download handles GET /files/{fileID}/download
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	actor, fileID, ok := h.actorAndParam(w, r, "fileID")
	if !ok {
		return
	}

	handle, f, err := h.Service.Download(actor.ID, fileID)
	if err != nil {
		h.Logger.Error("Download: service error", "error", err, "file_id", fileID, "user_id", actor.ID)
		h.writeServiceError(w, err)
		return
	}
	defer handle.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	http.ServeContent(w, r, f.Filename, f.ChangedAt, handle)
}

func (h *Handler) actorAndParam(w http.ResponseWriter, r *http.Request, param string) (*auth.User, int64, bool) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return nil, 0, false
	}

	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid id")
		return nil, 0, false
	}

	return actor, id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	if _, ok := err.(ValidationError); ok {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.HandleServiceError(w, err)
}
