package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/paperforge/paperforge/internal/file"
	"github.com/paperforge/paperforge/internal/project"
)

// Scope selects which files go into a project export.
type Scope string

const (
	ScopeAll        Scope = "all"
	ScopeUser       Scope = "user"
	ScopeProduction Scope = "production"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeUser:
		return ScopeUser, nil
	case ScopeProduction:
		return ScopeProduction, nil
	}
	return "", fmt.Errorf("unknown archive scope %q", s)
}

// Files is the registry slice the archiver reads from.
type Files interface {
	ListForProject(projectID int64) ([]*file.File, error)
	ListProduction(projectID int64, production bool) ([]*file.File, error)
}

type Projects interface {
	Lookup(projectID int64) (*project.Project, error)
	AccessFor(userID, projectID int64) (project.Access, error)
}

type Workspace interface {
	ProjectDir(path, name string) string
	Open(dir, name string) (*os.File, error)
}

// Service builds throwaway ZIP snapshots of project directories.
type Service struct {
	files    Files
	projects Projects
	ws       Workspace
	logger   *slog.Logger
}

func NewService(files Files, projects Projects, ws Workspace, logger *slog.Logger) *Service {
	return &Service{
		files:    files,
		projects: projects,
		ws:       ws,
		logger:   logger,
	}
}

// Archive is a built snapshot on disk. Close removes the scratch directory
// holding it; callers must always Close, streamed or not.
type Archive struct {
	Name string
	path string
	dir  string
}

func (a *Archive) Open() (*os.File, error) {
	return os.Open(a.path)
}

func (a *Archive) Close() error {
	return os.RemoveAll(a.dir)
}

// Build snapshots the selected files of a readable project into a ZIP inside
// a fresh scratch directory. Files listed in the registry but missing on disk
// are skipped with a log line rather than failing the whole export.
func (s *Service) Build(actorID, projectID int64, scope Scope) (*Archive, error) {
	p, err := s.projects.Lookup(projectID)
	if err != nil {
		return nil, err
	}
	access, err := s.projects.AccessFor(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead() {
		return nil, project.ErrAccessDenied
	}

	var rows []*file.File
	switch scope {
	case ScopeUser:
		rows, err = s.files.ListProduction(projectID, false)
	case ScopeProduction:
		rows, err = s.files.ListProduction(projectID, true)
	default:
		rows, err = s.files.ListForProject(projectID)
	}
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "paperforge-archive-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	zipName := fmt.Sprintf("%s-%s.zip", p.ProjectName, uuid.NewString())
	zipPath := filepath.Join(scratch, zipName)
	if err := s.writeZip(zipPath, p, rows); err != nil {
		os.RemoveAll(scratch)
		return nil, err
	}

	s.logger.Info("archive built",
		"project_id", projectID, "scope", string(scope), "files", len(rows), "user_id", actorID)
	return &Archive{
		Name: fmt.Sprintf("%s.zip", p.ProjectName),
		path: zipPath,
		dir:  scratch,
	}, nil
}

func (s *Service) writeZip(zipPath string, p *project.Project, rows []*file.File) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	dir := s.ws.ProjectDir(p.Path, p.ProjectName)
	for _, row := range rows {
		src, err := s.ws.Open(dir, row.Filename)
		if err != nil {
			if os.IsNotExist(err) {
				s.logger.Warn("archive: skipping row without backing file",
					"project_id", p.ID, "filename", row.Filename)
				continue
			}
			zw.Close()
			out.Close()
			return err
		}

		entry, err := zw.Create(row.Filename)
		if err == nil {
			_, err = io.Copy(entry, src)
		}
		src.Close()
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
