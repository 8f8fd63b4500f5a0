package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/paperforge/paperforge/internal"
	"github.com/paperforge/paperforge/internal/file"
	"github.com/paperforge/paperforge/internal/project"
)

// Rejection reasons shown to the user when a selection does not fit the
// chosen pipeline. Kept as fixed strings the panel displays verbatim.
const (
	msgNoSelection     = "Please select a file to proceed."
	msgDoc2MDInput     = "Please pass a doc(x) or odt file to DOC2MD!"
	msgVerifyInput     = "Please pass a bib or bibtex file to VERIFYBIBTEX!"
	msgXML2YAMLInput   = "Please pass an xml file to XML2YAML!"
	msgDWSelectionSize = "Please select only one YAML, Markdown, and BibTeX file to proceed with the typesetting module!"
	msgDWInput         = "Please pass a YAML, Markdown, and BibTeX file to DW!"
	msgTex2PDFInput    = "Please pass a tex file to TEX2PDF!"
)

// Images resolves a pipeline to its container image.
type Images interface {
	Image(pipeline string) string
}

// HostPaths maps workspace-relative paths to the directory the container
// daemon mounts from.
type HostPaths interface {
	HostPath(rel string) string
}

// Files is the slice of the file service pipelines use: selected inputs are
// looked up, finished outputs are registered.
type Files interface {
	Lookup(fileID int64) (*file.File, error)
	RegisterFile(projectID, uploaderID int64, filename string, production bool) (*file.File, error)
}

type Projects interface {
	Lookup(projectID int64) (*project.Project, error)
	AccessFor(userID, projectID int64) (project.Access, error)
}

type Workspace interface {
	ProjectDir(path, name string) string
	Rel(path string) (string, error)
	Exists(dir, name string) bool
	Open(dir, name string) (*os.File, error)
	CopyFile(dir, srcName, dstName string) error
}

// Service validates a file selection, runs the matching container and
// registers whatever outputs it left behind.
type Service struct {
	runner    Runner
	files     Files
	projects  Projects
	ws        Workspace
	images    Images
	hostPaths HostPaths
	logger    *slog.Logger
}

func NewService(runner Runner, files Files, projects Projects, ws Workspace, images Images, hostPaths HostPaths, logger *slog.Logger) *Service {
	return &Service{
		runner:    runner,
		files:     files,
		projects:  projects,
		ws:        ws,
		images:    images,
		hostPaths: hostPaths,
		logger:    logger,
	}
}

// RunResult reports one finished run: the production rows registered from
// the container's outputs and, for verifybibtex, a report summary.
type RunResult struct {
	Pipeline ID           `json:"pipeline"`
	Outputs  []*file.File `json:"outputs"`
	Report   string       `json:"report,omitempty"`
}

// Run executes one pipeline over a selection of project files. Validation
// happens before any side effect; on a failed run nothing is registered.
func (s *Service) Run(ctx context.Context, actorID, projectID int64, req RunRequest) (*RunResult, error) {
	p, err := s.projects.Lookup(projectID)
	if err != nil {
		return nil, err
	}
	access, err := s.projects.AccessFor(actorID, projectID)
	if err != nil {
		return nil, err
	}
	if !access.CanWrite() {
		return nil, project.ErrAccessDenied
	}

	selection, err := s.resolveSelection(projectID, req.FileIDs)
	if err != nil {
		return nil, err
	}

	plan, err := s.plan(p, req, selection)
	if err != nil {
		return nil, err
	}

	if err := plan.prepare(s.ws); err != nil {
		return nil, err
	}

	s.logger.Info("pipeline run starting",
		"pipeline", string(req.Pipeline), "project_id", projectID, "user_id", actorID)

	if err := s.runner.Invoke(ctx, plan.invocation); err != nil {
		s.logger.Error("pipeline run failed",
			"pipeline", string(req.Pipeline), "project_id", projectID, "user_id", actorID, "error", err)
		return nil, s.invokeError(req.Pipeline, err)
	}

	result := &RunResult{Pipeline: req.Pipeline}
	dir := s.ws.ProjectDir(p.Path, p.ProjectName)
	for _, name := range s.outputNames(req.Pipeline, plan.outputStem, req.Zotero) {
		if !s.ws.Exists(dir, name) {
			continue
		}
		row, err := s.files.RegisterFile(projectID, actorID, name, true)
		if err != nil {
			return nil, err
		}
		result.Outputs = append(result.Outputs, row)
	}

	if req.Pipeline == VerifyBibTeX {
		result.Report = s.summarizeReport(dir)
	}

	s.logger.Info("pipeline run finished",
		"pipeline", string(req.Pipeline), "project_id", projectID, "user_id", actorID,
		"outputs", len(result.Outputs))
	return result, nil
}

func (s *Service) resolveSelection(projectID int64, fileIDs []int64) ([]*file.File, error) {
	if len(fileIDs) == 0 {
		return nil, selectionError(msgNoSelection)
	}
	selection := make([]*file.File, 0, len(fileIDs))
	for _, id := range fileIDs {
		f, err := s.files.Lookup(id)
		if err != nil {
			return nil, err
		}
		if f.ProjectID != projectID {
			return nil, file.ErrNotFound
		}
		selection = append(selection, f)
	}
	return selection, nil
}

// plan holds everything needed to run one container plus the stem its
// outputs are scanned with.
type runPlan struct {
	invocation Invocation
	outputStem string
	// dw only: copy the bibliography next to the markdown stem first
	copySrc, copyDst, copyDir string
}

func (p *runPlan) prepare(ws Workspace) error {
	if p.copySrc == "" || p.copySrc == p.copyDst {
		return nil
	}
	return ws.CopyFile(p.copyDir, p.copySrc, p.copyDst)
}

func (s *Service) plan(p *project.Project, req RunRequest, selection []*file.File) (*runPlan, error) {
	dir := s.ws.ProjectDir(p.Path, p.ProjectName)
	rel, err := s.ws.Rel(dir)
	if err != nil {
		return nil, err
	}
	hostDir := s.hostPaths.HostPath(rel)
	image := s.images.Image(string(req.Pipeline))

	switch req.Pipeline {
	case Doc2MD:
		doc, err := single(selection, msgDoc2MDInput, "doc", "docx", "odt")
		if err != nil {
			return nil, err
		}
		args := []string{}
		if req.Zotero {
			args = append(args, "--zotero")
		}
		args = append(args, doc.Filename)
		return &runPlan{
			invocation: Invocation{
				Image:  image,
				Mounts: []Mount{{Host: hostDir, Container: "/app/files"}},
				Args:   args,
			},
			outputStem: stem(doc.Filename),
		}, nil

	case VerifyBibTeX:
		bib, err := single(selection, msgVerifyInput, "bib", "bibtex")
		if err != nil {
			return nil, err
		}
		return &runPlan{
			invocation: Invocation{
				Image:  image,
				Mounts: []Mount{{Host: hostDir, Container: "/app/report"}},
				Env:    []string{"BIBTEX_FILE=" + bib.Filename},
			},
			outputStem: stem(bib.Filename),
		}, nil

	case XML2YAML:
		xml, err := single(selection, msgXML2YAMLInput, "xml")
		if err != nil {
			return nil, err
		}
		args := []string{xml.Filename}
		args = appendFlag(args, "--year", req.Year)
		args = appendFlag(args, "--volume", req.Volume)
		args = appendFlag(args, "--orcid", req.ORCID)
		args = appendFlag(args, "--doi", req.DOI)
		return &runPlan{
			invocation: Invocation{
				Image: image,
				Mounts: []Mount{
					{Host: filepath.Join(hostDir, xml.Filename), Container: path.Join("/app/xml_input", xml.Filename)},
					{Host: hostDir, Container: "/app/yaml_output"},
				},
				Args: args,
			},
			outputStem: stem(xml.Filename),
		}, nil

	case Typesetting:
		return s.planTypesetting(dir, hostDir, image, req, selection)

	case Tex2PDF:
		tex, err := single(selection, msgTex2PDFInput, "tex")
		if err != nil {
			return nil, err
		}
		return &runPlan{
			invocation: Invocation{
				Image: image,
				Mounts: []Mount{
					{Host: hostDir, Container: "/app/output"},
					{Host: filepath.Join(hostDir, tex.Filename), Container: "/app/" + tex.Filename},
					{Host: filepath.Join(hostDir, "article"), Container: "/app/article"},
				},
			},
			outputStem: stem(tex.Filename),
		}, nil
	}

	return nil, selectionError(msgNoSelection)
}

// planTypesetting needs exactly one markdown and one yaml, with an optional
// bibtex. A bibliography named differently from the markdown is copied to
// the markdown stem first, since the container derives its name from it.
func (s *Service) planTypesetting(dir, hostDir, image string, req RunRequest, selection []*file.File) (*runPlan, error) {
	if len(selection) > 3 {
		return nil, selectionError(msgDWSelectionSize)
	}

	var md, yaml, bib *file.File
	for _, f := range selection {
		switch file.Ext(f.Filename) {
		case "md", "markdown":
			if md != nil {
				return nil, selectionError(msgDWSelectionSize)
			}
			md = f
		case "yml", "yaml":
			if yaml != nil {
				return nil, selectionError(msgDWSelectionSize)
			}
			yaml = f
		case "bib", "bibtex":
			if bib != nil {
				return nil, selectionError(msgDWSelectionSize)
			}
			bib = f
		default:
			return nil, selectionError(msgDWInput)
		}
	}
	if md == nil || yaml == nil {
		return nil, selectionError(msgDWInput)
	}

	outputStem := req.OutputStem
	if outputStem == "" {
		outputStem = stem(md.Filename)
	}

	args := []string{yaml.Filename, md.Filename}
	if req.BibLaTeX {
		args = append(args, "--biblatex")
	}
	if req.Compound {
		args = append(args, "--compound")
	}

	plan := &runPlan{
		invocation: Invocation{
			Image:  image,
			Mounts: []Mount{{Host: hostDir, Container: "/app/article"}},
			Args:   args,
		},
		outputStem: outputStem,
	}
	if bib != nil {
		want := stem(md.Filename) + ".bib"
		if bib.Filename != want {
			plan.copyDir = dir
			plan.copySrc = bib.Filename
			plan.copyDst = want
		}
	}
	return plan, nil
}

// summarizeReport condenses the verifybibtex report for inline display.
func (s *Service) summarizeReport(dir string) string {
	f, err := s.ws.Open(dir, VerifyBibTeXReportName)
	if err != nil {
		return ""
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return ""
	}

	text := string(content)
	if strings.Contains(text, "found 0 errors.") {
		return "VerifyBibTeX found no errors in your BibTeX file."
	}
	if strings.Count(text, "\n") < 100 {
		return text
	}
	return "The report contains too many errors to display. Please open " + VerifyBibTeXReportName + " in the project."
}

func (s *Service) invokeError(pipeline ID, err error) error {
	if errors.Is(err, ErrRunnerUnavailable) {
		return internal.NewExternalError(
			fmt.Sprintf("the %s pipeline is not available: %v", pipeline, err),
			internal.ErrCodePipelineUnavailable,
		).WithCause(err)
	}
	return internal.NewExternalError(
		fmt.Sprintf("the %s pipeline failed: %v", pipeline, err),
		internal.ErrCodePipelineFailed,
	).WithCause(err)
}

func single(selection []*file.File, reason string, exts ...string) (*file.File, error) {
	if len(selection) != 1 {
		return nil, selectionError(reason)
	}
	f := selection[0]
	ext := file.Ext(f.Filename)
	for _, e := range exts {
		if ext == e {
			return f, nil
		}
	}
	return nil, selectionError(reason)
}

func selectionError(message string) error {
	return internal.NewValidationError(message, internal.ErrCodeInvalidSelection)
}

func appendFlag(args []string, flag, value string) []string {
	if value == "" {
		return args
	}
	return append(args, flag, value)
}

func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
