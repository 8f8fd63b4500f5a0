package file

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/paperforge/paperforge/internal"
)

// File is a registry row mirroring one regular file inside a project
// directory. Filename is unique per project only by convention; the
// collision resolver enforces it before every write, the schema does not.
type File struct {
	ID               int64     `json:"id" gorm:"primaryKey"`
	Filename         string    `json:"filename" gorm:"column:filename"`
	ProjectID        int64     `json:"project_id" gorm:"column:project_id"`
	UploaderID       int64     `json:"uploader_id" gorm:"column:uploader_id"`
	IsProductionFile bool      `json:"is_production_file" gorm:"column:is_production_file"`
	DownloadCount    int64     `json:"download_count" gorm:"column:download_count"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
	ChangedAt        time.Time `json:"changed_at" gorm:"column:changed_at"`
}

func (File) TableName() string {
	return "files"
}

// allowedExtensions is the upload allow-list. Pipeline outputs bypass it;
// they are registered directly.
var allowedExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {},
	"doc": {}, "docx": {}, "odt": {},
	"yml": {}, "yaml": {},
	"md": {}, "markdown": {}, "txt": {}, "tex": {},
	"pdf": {},
	"bib": {}, "bibtex": {},
	"xml": {},
}

// Ext returns the lowercased extension without the dot.
func Ext(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// ExtensionAllowed reports whether a filename may be uploaded.
func ExtensionAllowed(filename string) bool {
	_, ok := allowedExtensions[Ext(filename)]
	return ok
}

var (
	ErrNotFound       = internal.NewNotFoundError("file not found", internal.ErrCodeFileNotFound)
	ErrTypeNotAllowed = internal.NewValidationError("this file type is not allowed", internal.ErrCodeFileTypeNotAllowed)
	ErrAlreadyExists  = internal.NewConflictError("a file with this name already exists", internal.ErrCodeFileExists)
	ErrAccessDenied   = internal.NewForbiddenError("you do not have permission for this operation", internal.ErrCodeAccessDenied)
)
