package project

import (
	"github.com/paperforge/paperforge/internal/core/common/validation"
)

type CreateProjectDTO struct {
	ProjectName string `json:"project_name" validate:"required,max=255"`
}

func (d CreateProjectDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("project_name", d.ProjectName).Required().MaxLength(255).NoPathSeparators()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type RenameProjectDTO struct {
	NewName string `json:"new_name" validate:"required,max=255"`
}

func (d RenameProjectDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("new_name", d.NewName).Required().MaxLength(255).NoPathSeparators()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ShareProjectDTO struct {
	Username string `json:"username" validate:"required"`
	Write    bool   `json:"write"`
	Delete   bool   `json:"delete"`
}

func (d ShareProjectDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("username", d.Username).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ProjectListResponse splits projects the way the panel shows them.
type ProjectListResponse struct {
	Owned  []*Project `json:"owned"`
	Shared []*Project `json:"shared"`
}
