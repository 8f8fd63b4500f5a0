package project

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/paperforge/paperforge/internal"
)

// Repository defines the data access methods for the project registry.
type Repository interface {
	Create(p *Project, creatorRow *UserProject) error
	GetByID(id int64) (*Project, error)
	GetByPathAndName(path, name string) (*Project, error)
	UpdateName(projectID int64, newName string, changedAt time.Time) error
	DeleteCascade(projectID int64) error
	GetUserProject(userID, projectID int64) (*UserProject, error)
	UpsertUserProject(row *UserProject) error
	DeleteUserProject(userID, projectID int64) error
	ListForUser(userID int64, creator bool) ([]*Project, error)
	ListAll() ([]*Project, error)
	ListMembers(projectID int64) ([]*Member, error)
}

// Workspace is the filesystem side of the registry; rows and directories are
// kept in lock-step by every mutating operation.
type Workspace interface {
	EnsureUserDir(username string) (path string, err error)
	CreateProjectDir(path, name string) error
	RenameProjectDir(path, oldName, newName string) error
	RemoveProjectDir(path, name string) error
}

// UserDirectory resolves share targets.
type UserDirectory interface {
	LookupByUsername(username string) (userID int64, email string, err error)
}

type Mailer interface {
	Send(to, subject, body string) error
}

// Service handles project lifecycle and sharing.
type Service struct {
	repo   Repository
	ws     Workspace
	users  UserDirectory
	mailer Mailer
	logger *slog.Logger
}

func NewService(repo Repository, ws Workspace, users UserDirectory, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		ws:     ws,
		users:  users,
		mailer: mailer,
		logger: logger,
	}
}

// AccessFor derives the effective access of a user on a project. A missing
// UserProject row yields NoAccess, not an error.
func (s *Service) AccessFor(userID, projectID int64) (Access, error) {
	row, err := s.repo.GetUserProject(userID, projectID)
	if err != nil {
		return NoAccess, err
	}
	return AccessFromRow(row), nil
}

// Create makes the project directory and registers the rows. The directory is
// created first, as the gate against duplicates; if the registry insert then
// fails (e.g. a concurrent create won the unique index), the directory is
// removed again so exactly one caller succeeds.
func (s *Service) Create(actorID int64, actorUsername string, dto CreateProjectDTO) (*Project, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	name := NormalizeName(dto.ProjectName)

	path, err := s.ws.EnsureUserDir(actorUsername)
	if err != nil {
		return nil, err
	}

	if err := s.ws.CreateProjectDir(path, name); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	now := time.Now()
	p := &Project{
		Path:        path,
		ProjectName: name,
		CreatedAt:   now,
		ChangedAt:   now,
	}
	creatorRow := &UserProject{
		UserID:     actorID,
		Permission: (PermRead | PermWrite | PermDelete).String(),
		IsCreator:  true,
	}

	if err := s.repo.Create(p, creatorRow); err != nil {
		if rmErr := s.ws.RemoveProjectDir(path, name); rmErr != nil {
			s.logger.Error("failed to clean up project dir after registry error",
				"path", path, "project", name, "error", rmErr)
		}
		return nil, ErrAlreadyExists.WithCause(err)
	}

	s.logger.Info("project created", "project_id", p.ID, "project", name, "user_id", actorID)
	return p, nil
}

// List returns the projects the user created and those shared with them.
func (s *Service) List(userID int64) (*ProjectListResponse, error) {
	owned, err := s.repo.ListForUser(userID, true)
	if err != nil {
		return nil, err
	}
	shared, err := s.repo.ListForUser(userID, false)
	if err != nil {
		return nil, err
	}
	return &ProjectListResponse{Owned: owned, Shared: shared}, nil
}

// Lookup fetches a project row without an access check, for services that
// apply their own capability gates.
func (s *Service) Lookup(projectID int64) (*Project, error) {
	return s.repo.GetByID(projectID)
}

// All returns every registered project, for the reconcile pass.
func (s *Service) All() ([]*Project, error) {
	return s.repo.ListAll()
}

// CreatorID returns the user holding the project's creator row.
func (s *Service) CreatorID(projectID int64) (int64, error) {
	members, err := s.repo.ListMembers(projectID)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		if m.IsCreator {
			return m.UserID, nil
		}
	}
	return 0, fmt.Errorf("project %d has no creator row", projectID)
}

// Get returns a project the user can read.
func (s *Service) Get(actorID, projectID int64) (*Project, Access, error) {
	p, err := s.repo.GetByID(projectID)
	if err != nil {
		return nil, NoAccess, ErrNotFound
	}
	access, err := s.AccessFor(actorID, projectID)
	if err != nil {
		return nil, NoAccess, err
	}
	if !access.CanRead() {
		return nil, NoAccess, ErrAccessDenied
	}
	return p, access, nil
}

// Rename requires the delete capability, not the creator flag. The directory
// is renamed first, then the row; a registry failure after the rename leaves
// the two out of step and is surfaced as such.
func (s *Service) Rename(actorID, projectID int64, dto RenameProjectDTO) (*Project, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(projectID)
	if err != nil {
		return nil, ErrNotFound
	}

	access, err := s.AccessFor(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanDelete() {
		s.logger.Warn("project rename denied", "project_id", projectID, "user_id", actorID)
		return nil, ErrAccessDenied
	}

	newName := NormalizeName(dto.NewName)
	if existing, _ := s.repo.GetByPathAndName(p.Path, newName); existing != nil {
		return nil, ErrAlreadyExists
	}

	oldName := p.ProjectName
	if err := s.ws.RenameProjectDir(p.Path, oldName, newName); err != nil {
		s.logger.Error("failed to rename project dir", "project_id", projectID, "error", err)
		return nil, fmt.Errorf("rename project directory: %w", err)
	}

	if err := s.repo.UpdateName(projectID, newName, time.Now()); err != nil {
		s.logger.Error("registry update failed after directory rename",
			"project_id", projectID, "old", oldName, "new", newName, "error", err)
		return nil, desyncError("project directory was renamed but the registry update failed", err)
	}

	p.ProjectName = newName
	s.logger.Info("project renamed", "project_id", projectID, "old", oldName, "new", newName, "user_id", actorID)
	return p, nil
}

// Delete is gated on the creator flag, a separate check from the capability
// string. Rows are removed first; directory removal afterwards is
// best-effort and never rolls the registry back.
func (s *Service) Delete(actorID, projectID int64) error {
	p, err := s.repo.GetByID(projectID)
	if err != nil {
		return ErrNotFound
	}

	access, err := s.AccessFor(actorID, projectID)
	if err != nil {
		return err
	}
	if !access.Creator {
		s.logger.Warn("project delete denied: not creator", "project_id", projectID, "user_id", actorID)
		return ErrCreatorRequired
	}

	if err := s.repo.DeleteCascade(projectID); err != nil {
		return err
	}

	if err := s.ws.RemoveProjectDir(p.Path, p.ProjectName); err != nil {
		s.logger.Error("failed to remove project dir after registry delete",
			"project_id", projectID, "path", p.Path, "project", p.ProjectName, "error", err)
		return desyncError("project was deleted from the registry but its directory could not be removed", err)
	}

	s.logger.Info("project deleted", "project_id", projectID, "project", p.ProjectName, "user_id", actorID)
	return nil
}

// Share grants or updates another user's permission row. Only the creator may
// share; grants always include read.
func (s *Service) Share(actorID, projectID int64, dto ShareProjectDTO) (*UserProject, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(projectID)
	if err != nil {
		return nil, ErrNotFound
	}

	access, err := s.AccessFor(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.Creator {
		s.logger.Warn("project share denied: not creator", "project_id", projectID, "user_id", actorID)
		return nil, ErrCreatorRequired
	}

	targetID, targetEmail, err := s.users.LookupByUsername(dto.Username)
	if err != nil {
		return nil, err
	}
	if targetID == actorID {
		return nil, ErrShareWithSelf
	}

	perm := PermRead
	if dto.Write {
		perm |= PermWrite
	}
	if dto.Delete {
		perm |= PermDelete
	}

	row := &UserProject{
		UserID:     targetID,
		ProjectID:  projectID,
		Permission: perm.String(),
		IsCreator:  false,
	}
	if err := s.repo.UpsertUserProject(row); err != nil {
		return nil, err
	}

	if err := s.mailer.Send(targetEmail, "Project shared with you",
		fmt.Sprintf("Project %s was shared with you with %q rights.", p.ProjectName, perm.String())); err != nil {
		s.logger.Error("failed to send share mail", "error", err, "project_id", projectID)
	}

	s.logger.Info("project shared",
		"project_id", projectID, "target_user", dto.Username, "permission", perm.String(), "user_id", actorID)
	return row, nil
}

// Revoke removes a user's grant. Only the creator may revoke, and the
// creator row itself cannot be revoked.
func (s *Service) Revoke(actorID, projectID int64, username string) error {
	if _, err := s.repo.GetByID(projectID); err != nil {
		return ErrNotFound
	}

	access, err := s.AccessFor(actorID, projectID)
	if err != nil {
		return err
	}
	if !access.Creator {
		return ErrCreatorRequired
	}

	targetID, _, err := s.users.LookupByUsername(username)
	if err != nil {
		return err
	}
	if targetID == actorID {
		return ErrShareWithSelf
	}

	if err := s.repo.DeleteUserProject(targetID, projectID); err != nil {
		return err
	}

	s.logger.Info("project access revoked", "project_id", projectID, "target_user", username, "user_id", actorID)
	return nil
}

// Members lists users holding a grant; readable by anyone with read access.
func (s *Service) Members(actorID, projectID int64) ([]*Member, error) {
	access, err := s.AccessFor(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead() {
		return nil, ErrAccessDenied
	}
	return s.repo.ListMembers(projectID)
}

func desyncError(message string, cause error) error {
	return internal.NewStorageDesyncError(message, cause)
}
