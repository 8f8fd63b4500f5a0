package pipeline

// RunRequest selects a pipeline, its input files and its flags. Flags that
// do not apply to the chosen pipeline are ignored.
type RunRequest struct {
	Pipeline ID      `json:"pipeline"`
	FileIDs  []int64 `json:"file_ids"`

	// doc2md
	Zotero bool `json:"zotero,omitempty"`

	// dw (typesetting)
	BibLaTeX   bool   `json:"biblatex,omitempty"`
	Compound   bool   `json:"compound,omitempty"`
	OutputStem string `json:"output_stem,omitempty"`

	// xml2yaml metadata overrides
	Year   string `json:"year,omitempty"`
	Volume string `json:"volume,omitempty"`
	ORCID  string `json:"orcid,omitempty"`
	DOI    string `json:"doi,omitempty"`
}

// ValidationError represents a simple validation error from DTO validation.
type ValidationError struct {
	Msg string
}

func (v ValidationError) Error() string { return v.Msg }

func (r RunRequest) Validate() error {
	if r.Pipeline == "" {
		return ValidationError{Msg: "pipeline is required"}
	}
	if _, err := ParseID(string(r.Pipeline)); err != nil {
		return ValidationError{Msg: err.Error()}
	}
	return nil
}
