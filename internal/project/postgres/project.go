package postgres

import (
	"errors"
	"time"

	"github.com/paperforge/paperforge/internal/project"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectRepository implements the project.Repository interface using GORM
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) project.Repository {
	return &ProjectRepository{db: db}
}

// Create inserts the project and its creator grant in one transaction.
func (r *ProjectRepository) Create(p *project.Project, creatorRow *project.UserProject) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		creatorRow.ProjectID = p.ID
		return tx.Create(creatorRow).Error
	})
}

func (r *ProjectRepository) GetByID(id int64) (*project.Project, error) {
	var p project.Project
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepository) GetByPathAndName(path, name string) (*project.Project, error) {
	var p project.Project
	err := r.db.Where("path = ? AND project_name = ?", path, name).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProjectRepository) UpdateName(projectID int64, newName string, changedAt time.Time) error {
	return r.db.Model(&project.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]interface{}{
			"project_name": newName,
			"changed_at":   changedAt,
		}).Error
}

// DeleteCascade removes grants, file rows and the project row together.
func (r *ProjectRepository) DeleteCascade(projectID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM user_projects WHERE project_id = ?", projectID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM files WHERE project_id = ?", projectID).Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM projects WHERE id = ?", projectID).Error
	})
}

// GetUserProject returns nil without error when no grant exists.
func (r *ProjectRepository) GetUserProject(userID, projectID int64) (*project.UserProject, error) {
	var row project.UserProject
	err := r.db.Where("user_id = ? AND project_id = ?", userID, projectID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *ProjectRepository) UpsertUserProject(row *project.UserProject) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission"}),
	}).Create(row).Error
}

func (r *ProjectRepository) DeleteUserProject(userID, projectID int64) error {
	return r.db.Exec(
		"DELETE FROM user_projects WHERE user_id = ? AND project_id = ? AND is_creator = FALSE",
		userID, projectID,
	).Error
}

func (r *ProjectRepository) ListForUser(userID int64, creator bool) ([]*project.Project, error) {
	var projects []*project.Project
	err := r.db.
		Joins("JOIN user_projects up ON up.project_id = projects.id").
		Where("up.user_id = ? AND up.is_creator = ?", userID, creator).
		Order("projects.project_name ASC").
		Find(&projects).Error
	return projects, err
}

func (r *ProjectRepository) ListAll() ([]*project.Project, error) {
	var projects []*project.Project
	err := r.db.Order("id ASC").Find(&projects).Error
	return projects, err
}

func (r *ProjectRepository) ListMembers(projectID int64) ([]*project.Member, error) {
	var members []*project.Member
	err := r.db.
		Table("user_projects").
		Select("user_projects.user_id, users.username, user_projects.permission, user_projects.is_creator").
		Joins("JOIN users ON users.id = user_projects.user_id").
		Where("user_projects.project_id = ?", projectID).
		Order("users.username ASC").
		Scan(&members).Error
	return members, err
}
