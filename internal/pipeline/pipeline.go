package pipeline

import (
	"context"
	"errors"
)

// ID names one of the containerized document pipelines.
type ID string

const (
	Doc2MD       ID = "doc2md"
	VerifyBibTeX ID = "verifybibtex"
	XML2YAML     ID = "xml2yaml"
	Typesetting  ID = "dw"
	Tex2PDF      ID = "tex2pdf"
)

func ParseID(s string) (ID, error) {
	switch ID(s) {
	case Doc2MD, VerifyBibTeX, XML2YAML, Typesetting, Tex2PDF:
		return ID(s), nil
	}
	return "", errors.New("unknown pipeline: " + s)
}

// Mount maps a host path into the pipeline container.
type Mount struct {
	Host      string
	Container string
}

// Invocation is one fully resolved container run.
type Invocation struct {
	Image  string
	Mounts []Mount
	Env    []string // KEY=VALUE
	Args   []string
}

// Runner executes an invocation and blocks until it finishes. Success is
// exit code zero and nothing else.
type Runner interface {
	Invoke(ctx context.Context, inv Invocation) error
}

// ErrRunnerUnavailable means the run could not be attempted at all, e.g. the
// container binary is missing. ErrPipelineFailed means the container ran and
// reported failure. Callers branch on the two with errors.Is.
var (
	ErrRunnerUnavailable = errors.New("pipeline runner unavailable")
	ErrPipelineFailed    = errors.New("pipeline exited with failure")
)

// VerifyBibTeXReportName is the fixed report filename the verifybibtex
// container writes into the project directory.
const VerifyBibTeXReportName = "verifybibtex-report.md"

// outputNames lists the fixed filenames a pipeline leaves in the project
// directory; stem-derived outputs are resolved per run.
func (s *Service) outputNames(pipeline ID, stem string, zotero bool) []string {
	switch pipeline {
	case Doc2MD:
		names := []string{"raw_markdown.md", "clean_markdown.md", "doc2md.log"}
		if zotero {
			names = append(names, "bibliography.bib")
		}
		return names
	case VerifyBibTeX:
		return []string{VerifyBibTeXReportName}
	case XML2YAML:
		return []string{"metadata.yaml"}
	case Typesetting:
		return []string{"PROCESS.log", stem + ".pdf", stem + ".html", stem + ".jats", stem + ".tex"}
	case Tex2PDF:
		return []string{stem + ".pdf", stem + ".log"}
	}
	return nil
}
