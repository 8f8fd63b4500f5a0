package file

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

type RenameFileDTO struct {
	NewName string `json:"new_name"`
}

func (d RenameFileDTO) Validate() error {
	if d.NewName == "" {
		return ValidationError{Msg: "new_name is required"}
	}
	return nil
}

type BulkDeleteDTO struct {
	FileIDs []int64 `json:"file_ids"`
}

func (d BulkDeleteDTO) Validate() error {
	if len(d.FileIDs) == 0 {
		return ValidationError{Msg: "file_ids is required"}
	}
	return nil
}

// UploadResult aggregates a multi-file upload; individual files can fail the
// extension check without sinking the rest.
type UploadResult struct {
	Uploaded []*File           `json:"uploaded"`
	Rejected map[string]string `json:"rejected,omitempty"`
}
