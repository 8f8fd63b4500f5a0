package project

import (
	"regexp"
	"time"

	"github.com/paperforge/paperforge/internal"
)

// Project is a named, permission-scoped directory of files. Path is the
// parent directory (e.g. "uploads/<owner-username>"); the directory at
// Path/ProjectName must exist whenever the row does.
type Project struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Path        string    `json:"path" gorm:"column:path"`
	ProjectName string    `json:"project_name" gorm:"column:project_name"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	ChangedAt   time.Time `json:"changed_at" gorm:"column:changed_at"`
}

func (Project) TableName() string {
	return "projects"
}

// UserProject attaches a capability set and the creator marker to a
// (user, project) pair. Exactly one creator row exists per project, set at
// creation and never transferred.
type UserProject struct {
	ID         int64  `json:"id" gorm:"primaryKey"`
	UserID     int64  `json:"user_id" gorm:"column:user_id;uniqueIndex:idx_user_projects_user_project"`
	ProjectID  int64  `json:"project_id" gorm:"column:project_id;uniqueIndex:idx_user_projects_user_project"`
	Permission string `json:"permission" gorm:"column:permission"`
	IsCreator  bool   `json:"is_creator" gorm:"column:is_creator"`
}

func (UserProject) TableName() string {
	return "user_projects"
}

// Member is a user holding a grant on a project.
type Member struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Permission string `json:"permission"`
	IsCreator  bool   `json:"is_creator"`
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeName replaces whitespace runs with underscores so project names
// are safe as directory names.
func NormalizeName(name string) string {
	return whitespaceRE.ReplaceAllString(name, "_")
}

var (
	ErrNotFound        = internal.NewNotFoundError("project not found", internal.ErrCodeProjectNotFound)
	ErrAlreadyExists   = internal.NewConflictError("a project with this name already exists", internal.ErrCodeProjectExists)
	ErrAccessDenied    = internal.NewForbiddenError("you do not have permission for this operation", internal.ErrCodeAccessDenied)
	ErrCreatorRequired = internal.NewForbiddenError("only the project creator may perform this operation", internal.ErrCodeCreatorRequired)
	ErrShareWithSelf   = internal.NewValidationError("you cannot share a project with yourself", internal.ErrCodeValidationFailed)
)
