package file

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paperforge/paperforge/internal"
	"github.com/paperforge/paperforge/internal/project"
)

// Repository defines the data access methods for file rows.
type Repository interface {
	Create(f *File) error
	GetByID(id int64) (*File, error)
	// GetByName returns nil without error when no row matches.
	GetByName(projectID int64, filename string) (*File, error)
	Rename(fileID int64, newName string, changedAt time.Time) error
	Touch(fileID int64, changedAt time.Time, production bool) error
	IncrementDownloadCount(fileID int64) error
	Delete(fileID int64) error
	ListForProject(projectID int64) ([]*File, error)
	ListProduction(projectID int64, production bool) ([]*File, error)
}

// Projects is the slice of the project service the file service needs.
type Projects interface {
	Lookup(projectID int64) (*project.Project, error)
	AccessFor(userID, projectID int64) (project.Access, error)
	All() ([]*project.Project, error)
	CreatorID(projectID int64) (int64, error)
}

// Workspace covers the filesystem effects of file operations.
type Workspace interface {
	ProjectDir(path, name string) string
	WriteFile(dir, name string, r io.Reader) (int64, error)
	RenameFile(dir, oldName, newName string) error
	RemoveFile(dir, name string) error
	Exists(dir, name string) bool
	Open(dir, name string) (*os.File, error)
	List(dir string) ([]string, error)
}

// Service keeps file rows and the files on disk in lock-step.
type Service struct {
	repo     Repository
	projects Projects
	ws       Workspace
	logger   *slog.Logger
}

func NewService(repo Repository, projects Projects, ws Workspace, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		projects: projects,
		ws:       ws,
		logger:   logger,
	}
}

// SanitizeFilename reduces an uploaded name to a single path element.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func (s *Service) projectDir(p *project.Project) string {
	return s.ws.ProjectDir(p.Path, p.ProjectName)
}

// Upload stores one uploaded file. The literal uploaded name always wins:
// an existing file under that name is displaced to a fallback name first.
func (s *Service) Upload(actorID, projectID int64, filename string, r io.Reader) (*File, error) {
	filename = SanitizeFilename(filename)
	if filename == "" {
		return nil, ErrTypeNotAllowed.WithDetails("empty filename")
	}
	if !ExtensionAllowed(filename) {
		return nil, ErrTypeNotAllowed.WithDetails(fmt.Sprintf("%s: this file type is not allowed", filename))
	}

	p, access, err := s.projectWithAccess(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanWrite() {
		return nil, ErrAccessDenied
	}

	dir := s.projectDir(p)
	if err := s.ensureUnique(dir, projectID, filename); err != nil {
		return nil, err
	}

	if _, err := s.ws.WriteFile(dir, filename, r); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	now := time.Now()
	f := &File{
		Filename:   filename,
		ProjectID:  projectID,
		UploaderID: actorID,
		CreatedAt:  now,
		ChangedAt:  now,
	}
	if err := s.repo.Create(f); err != nil {
		if rmErr := s.ws.RemoveFile(dir, filename); rmErr != nil {
			s.logger.Error("failed to remove upload after registry error",
				"project_id", projectID, "filename", filename, "error", rmErr)
		}
		return nil, err
	}

	s.logger.Info("file uploaded",
		"file_id", f.ID, "project_id", projectID, "filename", filename, "user_id", actorID)
	return f, nil
}

// RegisterFile records a file that already exists on disk, typically a
// pipeline output. It is idempotent per (project, filename): an existing row
// is refreshed instead of duplicated, and the production flag only ever moves
// from false to true.
func (s *Service) RegisterFile(projectID, uploaderID int64, filename string, production bool) (*File, error) {
	existing, err := s.repo.GetByName(projectID, filename)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if existing != nil {
		keepProduction := existing.IsProductionFile || production
		if err := s.repo.Touch(existing.ID, now, keepProduction); err != nil {
			return nil, err
		}
		existing.ChangedAt = now
		existing.IsProductionFile = keepProduction
		return existing, nil
	}

	f := &File{
		Filename:         filename,
		ProjectID:        projectID,
		UploaderID:       uploaderID,
		IsProductionFile: production,
		CreatedAt:        now,
		ChangedAt:        now,
	}
	if err := s.repo.Create(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Lookup fetches a file row without an access check, for services that apply
// their own capability gates.
func (s *Service) Lookup(fileID int64) (*File, error) {
	return s.repo.GetByID(fileID)
}

// Rename changes a file's name without displacing anything; a taken target
// name is a conflict.
func (s *Service) Rename(actorID, fileID int64, newName string) (*File, error) {
	newName = SanitizeFilename(newName)
	if newName == "" || !ExtensionAllowed(newName) {
		return nil, ErrTypeNotAllowed
	}

	f, err := s.repo.GetByID(fileID)
	if err != nil {
		return nil, err
	}

	p, access, err := s.projectWithAccess(actorID, f.ProjectID)
	if err != nil {
		return nil, err
	}
	if !access.CanWrite() {
		return nil, ErrAccessDenied
	}

	dir := s.projectDir(p)
	taken, err := s.repo.GetByName(f.ProjectID, newName)
	if err != nil {
		return nil, err
	}
	if taken != nil || s.ws.Exists(dir, newName) {
		return nil, ErrAlreadyExists
	}

	oldName := f.Filename
	now := time.Now()
	if err := s.repo.Rename(fileID, newName, now); err != nil {
		return nil, err
	}
	if err := s.ws.RenameFile(dir, oldName, newName); err != nil {
		s.logger.Error("failed to rename file on disk",
			"file_id", fileID, "old", oldName, "new", newName, "error", err)
		return nil, desyncError("file was renamed in the registry but not on disk", err)
	}

	f.Filename = newName
	f.ChangedAt = now
	s.logger.Info("file renamed", "file_id", fileID, "old", oldName, "new", newName, "user_id", actorID)
	return f, nil
}

// Delete removes the row and then the file. Allowed with the delete
// capability or, regardless of capability, to the user who uploaded it.
func (s *Service) Delete(actorID, fileID int64) error {
	f, err := s.repo.GetByID(fileID)
	if err != nil {
		return err
	}

	p, access, err := s.projectWithAccess(actorID, f.ProjectID)
	if err != nil {
		return err
	}
	if !access.CanDelete() && f.UploaderID != actorID {
		return ErrAccessDenied
	}

	if err := s.repo.Delete(fileID); err != nil {
		return err
	}

	dir := s.projectDir(p)
	if err := s.ws.RemoveFile(dir, f.Filename); err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to remove file on disk after registry delete",
			"file_id", fileID, "filename", f.Filename, "error", err)
		return desyncError("file was deleted from the registry but not from disk", err)
	}

	s.logger.Info("file deleted", "file_id", fileID, "filename", f.Filename, "user_id", actorID)
	return nil
}

// BulkDeleteResult aggregates a best-effort multi-delete.
type BulkDeleteResult struct {
	Deleted []int64          `json:"deleted"`
	Failed  map[int64]string `json:"failed,omitempty"`
}

// DeleteMany deletes each listed file under the same predicate as Delete,
// continuing past individual failures.
func (s *Service) DeleteMany(actorID int64, fileIDs []int64) *BulkDeleteResult {
	result := &BulkDeleteResult{Failed: map[int64]string{}}
	for _, id := range fileIDs {
		if err := s.Delete(actorID, id); err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	return result
}

// Download opens the file for streaming and counts the download. The caller
// closes the returned handle.
func (s *Service) Download(actorID, fileID int64) (*os.File, *File, error) {
	f, err := s.repo.GetByID(fileID)
	if err != nil {
		return nil, nil, err
	}

	p, access, err := s.projectWithAccess(actorID, f.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if !access.CanRead() {
		return nil, nil, ErrAccessDenied
	}

	handle, err := s.ws.Open(s.projectDir(p), f.Filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, desyncError("file row exists but the file is missing on disk", err)
		}
		return nil, nil, err
	}

	if err := s.repo.IncrementDownloadCount(fileID); err != nil {
		s.logger.Error("failed to count download", "file_id", fileID, "error", err)
	}
	return handle, f, nil
}

// ListForProject returns the file rows of a readable project.
func (s *Service) ListForProject(actorID, projectID int64) ([]*File, error) {
	_, access, err := s.projectWithAccess(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead() {
		return nil, ErrAccessDenied
	}
	return s.repo.ListForProject(projectID)
}

func (s *Service) projectWithAccess(actorID, projectID int64) (*project.Project, project.Access, error) {
	p, err := s.projects.Lookup(projectID)
	if err != nil {
		return nil, project.NoAccess, err
	}
	access, err := s.projects.AccessFor(actorID, projectID)
	if err != nil {
		return nil, project.NoAccess, err
	}
	return p, access, nil
}

func desyncError(message string, cause error) error {
	return internal.NewStorageDesyncError(message, cause)
}
