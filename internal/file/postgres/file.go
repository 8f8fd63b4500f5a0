package postgres

import (
	"errors"
	"time"

	"github.com/paperforge/paperforge/internal/file"
	"gorm.io/gorm"
)

// FileRepository implements the file.Repository interface using GORM
type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) file.Repository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(f *file.File) error {
	return r.db.Create(f).Error
}

func (r *FileRepository) GetByID(id int64) (*file.File, error) {
	var f file.File
	err := r.db.Where("id = ?", id).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, file.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// GetByName returns nil without error when no row matches; callers use the
// absence itself as a signal.
func (r *FileRepository) GetByName(projectID int64, filename string) (*file.File, error) {
	var f file.File
	err := r.db.Where("project_id = ? AND filename = ?", projectID, filename).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *FileRepository) Rename(fileID int64, newName string, changedAt time.Time) error {
	return r.db.Model(&file.File{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"filename":   newName,
			"changed_at": changedAt,
		}).Error
}

func (r *FileRepository) Touch(fileID int64, changedAt time.Time, production bool) error {
	return r.db.Model(&file.File{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"changed_at":         changedAt,
			"is_production_file": production,
		}).Error
}

func (r *FileRepository) IncrementDownloadCount(fileID int64) error {
	return r.db.Model(&file.File{}).
		Where("id = ?", fileID).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

func (r *FileRepository) Delete(fileID int64) error {
	return r.db.Exec("DELETE FROM files WHERE id = ?", fileID).Error
}

func (r *FileRepository) ListForProject(projectID int64) ([]*file.File, error) {
	var files []*file.File
	err := r.db.Where("project_id = ?", projectID).
		Order("filename ASC").
		Find(&files).Error
	return files, err
}

func (r *FileRepository) ListProduction(projectID int64, production bool) ([]*file.File, error) {
	var files []*file.File
	err := r.db.Where("project_id = ? AND is_production_file = ?", projectID, production).
		Order("filename ASC").
		Find(&files).Error
	return files, err
}
