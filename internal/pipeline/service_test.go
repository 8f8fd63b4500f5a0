package pipeline_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperforge/paperforge/internal"
	"github.com/paperforge/paperforge/internal/file"
	"github.com/paperforge/paperforge/internal/pipeline"
	"github.com/paperforge/paperforge/internal/project"
)

func TestPipeline(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Module Suite")
}

// Mock file access for testing
type mockFiles struct {
	files      map[int64]*file.File
	registered []*file.File
	nextID     int64
}

func newMockFiles() *mockFiles {
	return &mockFiles{files: make(map[int64]*file.File), nextID: 100}
}

func (m *mockFiles) add(projectID int64, name string) *file.File {
	m.nextID++
	f := &file.File{ID: m.nextID, ProjectID: projectID, Filename: name}
	m.files[f.ID] = f
	return f
}

func (m *mockFiles) Lookup(fileID int64) (*file.File, error) {
	f, ok := m.files[fileID]
	if !ok {
		return nil, file.ErrNotFound
	}
	return f, nil
}

func (m *mockFiles) RegisterFile(projectID, uploaderID int64, filename string, production bool) (*file.File, error) {
	m.nextID++
	f := &file.File{
		ID:               m.nextID,
		ProjectID:        projectID,
		UploaderID:       uploaderID,
		Filename:         filename,
		IsProductionFile: production,
	}
	m.registered = append(m.registered, f)
	return f, nil
}

type mockProjects struct {
	project *project.Project
	access  map[int64]project.Access
}

func (m *mockProjects) Lookup(projectID int64) (*project.Project, error) {
	if m.project == nil || m.project.ID != projectID {
		return nil, project.ErrNotFound
	}
	return m.project, nil
}

func (m *mockProjects) AccessFor(userID, projectID int64) (project.Access, error) {
	return m.access[userID], nil
}

// Fake workspace: a set of present file names plus recorded copies.
type fakeWorkspace struct {
	present map[string]bool
	reports map[string]string // report file contents by name
	copies  [][2]string
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{present: make(map[string]bool), reports: make(map[string]string)}
}

func (w *fakeWorkspace) ProjectDir(path, name string) string { return path + "/" + name }

func (w *fakeWorkspace) Rel(path string) (string, error) {
	return strings.TrimPrefix(path, "uploads/"), nil
}

func (w *fakeWorkspace) Exists(dir, name string) bool { return w.present[name] }

func (w *fakeWorkspace) Open(dir, name string) (*os.File, error) {
	content, ok := w.reports[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	tmp, err := os.CreateTemp("", "fakews-")
	if err != nil {
		return nil, err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, err
	}
	return tmp, nil
}

func (w *fakeWorkspace) CopyFile(dir, srcName, dstName string) error {
	w.copies = append(w.copies, [2]string{srcName, dstName})
	w.present[dstName] = true
	return nil
}

// Fake runner records the invocation and optionally leaves outputs behind.
type fakeRunner struct {
	invoked  []pipeline.Invocation
	err      error
	onInvoke func(pipeline.Invocation)
}

func (r *fakeRunner) Invoke(ctx context.Context, inv pipeline.Invocation) error {
	r.invoked = append(r.invoked, inv)
	if r.onInvoke != nil {
		r.onInvoke(inv)
	}
	return r.err
}

type fixedImages struct{}

func (fixedImages) Image(p string) string { return "registry.test/" + p + ":latest" }

type fixedHostPaths struct{}

func (fixedHostPaths) HostPath(rel string) string { return "/srv/uploads/" + rel }

var _ = Describe("PipelineService", func() {
	var (
		svc      *pipeline.Service
		files    *mockFiles
		projects *mockProjects
		ws       *fakeWorkspace
		runner   *fakeRunner
		logger   *slog.Logger
	)

	const (
		alice int64 = 1
		carol int64 = 3

		projectID int64 = 10
	)

	BeforeEach(func() {
		files = newMockFiles()
		ws = newFakeWorkspace()
		runner = &fakeRunner{}
		projects = &mockProjects{
			project: &project.Project{ID: projectID, Path: "uploads/alice", ProjectName: "draft"},
			access: map[int64]project.Access{
				alice: {Permission: project.PermRead | project.PermWrite | project.PermDelete, Creator: true},
				carol: {Permission: project.PermRead},
			},
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = pipeline.NewService(runner, files, projects, ws, fixedImages{}, fixedHostPaths{}, logger)
	})

	run := func(actor int64, req pipeline.RunRequest) (*pipeline.RunResult, error) {
		return svc.Run(context.Background(), actor, projectID, req)
	}

	expectValidationMessage := func(err error, message string) {
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue(), fmt.Sprintf("expected AppError, got %v", err))
		Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidSelection))
		Expect(appErr.Message).To(Equal(message))
	}

	Describe("selection validation", func() {
		It("rejects an empty selection", func() {
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD})
			expectValidationMessage(err, "Please select a file to proceed.")
			Expect(runner.invoked).To(BeEmpty())
		})

		It("rejects the wrong input type for doc2md", func() {
			f := files.add(projectID, "paper.md")
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}})
			expectValidationMessage(err, "Please pass a doc(x) or odt file to DOC2MD!")
		})

		It("rejects the wrong input type for verifybibtex", func() {
			f := files.add(projectID, "metadata.xml")
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.VerifyBibTeX, FileIDs: []int64{f.ID}})
			expectValidationMessage(err, "Please pass a bib or bibtex file to VERIFYBIBTEX!")
		})

		It("rejects the wrong input type for xml2yaml", func() {
			f := files.add(projectID, "paper.bib")
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.XML2YAML, FileIDs: []int64{f.ID}})
			expectValidationMessage(err, "Please pass an xml file to XML2YAML!")
		})

		It("rejects the wrong input type for tex2pdf", func() {
			f := files.add(projectID, "paper.md")
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Tex2PDF, FileIDs: []int64{f.ID}})
			expectValidationMessage(err, "Please pass a tex file to TEX2PDF!")
		})

		It("rejects an oversized typesetting selection", func() {
			ids := []int64{
				files.add(projectID, "a.yaml").ID,
				files.add(projectID, "b.md").ID,
				files.add(projectID, "c.bib").ID,
				files.add(projectID, "d.png").ID,
			}
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Typesetting, FileIDs: ids})
			expectValidationMessage(err, "Please select only one YAML, Markdown, and BibTeX file to proceed with the typesetting module!")
		})

		It("rejects a typesetting selection missing the markdown", func() {
			ids := []int64{
				files.add(projectID, "a.yaml").ID,
				files.add(projectID, "c.bib").ID,
			}
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Typesetting, FileIDs: ids})
			expectValidationMessage(err, "Please pass a YAML, Markdown, and BibTeX file to DW!")
		})

		It("rejects files belonging to another project", func() {
			f := files.add(99, "paper.docx")
			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}})
			Expect(err).To(MatchError(file.ErrNotFound))
		})

		It("requires the write capability", func() {
			f := files.add(projectID, "paper.docx")
			_, err := run(carol, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}})
			Expect(err).To(MatchError(project.ErrAccessDenied))
		})
	})

	Describe("doc2md", func() {
		It("mounts the project dir and registers the outputs as production files", func() {
			f := files.add(projectID, "paper.docx")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["raw_markdown.md"] = true
				ws.present["clean_markdown.md"] = true
				ws.present["doc2md.log"] = true
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}})
			Expect(err).NotTo(HaveOccurred())

			Expect(runner.invoked).To(HaveLen(1))
			inv := runner.invoked[0]
			Expect(inv.Image).To(Equal("registry.test/doc2md:latest"))
			Expect(inv.Mounts).To(ConsistOf(pipeline.Mount{Host: "/srv/uploads/alice/draft", Container: "/app/files"}))
			Expect(inv.Args).To(Equal([]string{"paper.docx"}))

			Expect(result.Outputs).To(HaveLen(3))
			for _, out := range result.Outputs {
				Expect(out.IsProductionFile).To(BeTrue())
				Expect(out.UploaderID).To(Equal(alice))
			}
		})

		It("passes --zotero and scans for the bibliography", func() {
			f := files.add(projectID, "paper.docx")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["clean_markdown.md"] = true
				ws.present["bibliography.bib"] = true
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}, Zotero: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(runner.invoked[0].Args).To(Equal([]string{"--zotero", "paper.docx"}))

			names := outputNames(result)
			Expect(names).To(ContainElement("bibliography.bib"))
		})

		It("registers nothing when the container fails", func() {
			f := files.add(projectID, "paper.docx")
			runner.err = fmt.Errorf("%w: exit code 2", pipeline.ErrPipelineFailed)

			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePipelineFailed))
			Expect(files.registered).To(BeEmpty())
		})

		It("distinguishes an unavailable runner from a failed run", func() {
			f := files.add(projectID, "paper.docx")
			runner.err = fmt.Errorf("%w: docker not found", pipeline.ErrRunnerUnavailable)

			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Doc2MD, FileIDs: []int64{f.ID}})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodePipelineUnavailable))
		})
	})

	Describe("verifybibtex", func() {
		It("passes the bibliography by env and summarizes a clean report", func() {
			f := files.add(projectID, "refs.bib")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["verifybibtex-report.md"] = true
				ws.reports["verifybibtex-report.md"] = "# Report\nfound 0 errors.\n"
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.VerifyBibTeX, FileIDs: []int64{f.ID}})
			Expect(err).NotTo(HaveOccurred())

			inv := runner.invoked[0]
			Expect(inv.Env).To(ConsistOf("BIBTEX_FILE=refs.bib"))
			Expect(inv.Mounts).To(ConsistOf(pipeline.Mount{Host: "/srv/uploads/alice/draft", Container: "/app/report"}))

			Expect(result.Report).To(Equal("VerifyBibTeX found no errors in your BibTeX file."))
			Expect(outputNames(result)).To(ConsistOf("verifybibtex-report.md"))
		})

		It("returns a short report verbatim", func() {
			f := files.add(projectID, "refs.bib")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["verifybibtex-report.md"] = true
				ws.reports["verifybibtex-report.md"] = "# Report\nfound 2 errors.\n- missing year\n- missing title\n"
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.VerifyBibTeX, FileIDs: []int64{f.ID}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Report).To(ContainSubstring("missing year"))
		})

		It("truncates an oversized report to a notice", func() {
			f := files.add(projectID, "refs.bib")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["verifybibtex-report.md"] = true
				ws.reports["verifybibtex-report.md"] = strings.Repeat("- error line\n", 150)
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.VerifyBibTeX, FileIDs: []int64{f.ID}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Report).To(ContainSubstring("too many errors"))
		})
	})

	Describe("xml2yaml", func() {
		It("mounts the input file and passes metadata flags", func() {
			f := files.add(projectID, "article.xml")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["metadata.yaml"] = true
			}

			result, err := run(alice, pipeline.RunRequest{
				Pipeline: pipeline.XML2YAML,
				FileIDs:  []int64{f.ID},
				Year:     "2026",
				DOI:      "10.1000/demo",
			})
			Expect(err).NotTo(HaveOccurred())

			inv := runner.invoked[0]
			Expect(inv.Mounts).To(ConsistOf(
				pipeline.Mount{Host: "/srv/uploads/alice/draft/article.xml", Container: "/app/xml_input/article.xml"},
				pipeline.Mount{Host: "/srv/uploads/alice/draft", Container: "/app/yaml_output"},
			))
			Expect(inv.Args).To(Equal([]string{"article.xml", "--year", "2026", "--doi", "10.1000/demo"}))
			Expect(outputNames(result)).To(ConsistOf("metadata.yaml"))
		})
	})

	Describe("typesetting", func() {
		It("passes yaml and markdown and scans stem outputs", func() {
			ids := []int64{
				files.add(projectID, "metadata.yaml").ID,
				files.add(projectID, "paper.md").ID,
				files.add(projectID, "paper.bib").ID,
			}
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["PROCESS.log"] = true
				ws.present["paper.pdf"] = true
				ws.present["paper.html"] = true
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Typesetting, FileIDs: ids, BibLaTeX: true})
			Expect(err).NotTo(HaveOccurred())

			inv := runner.invoked[0]
			Expect(inv.Args).To(Equal([]string{"metadata.yaml", "paper.md", "--biblatex"}))
			Expect(inv.Mounts).To(ConsistOf(pipeline.Mount{Host: "/srv/uploads/alice/draft", Container: "/app/article"}))

			Expect(ws.copies).To(BeEmpty())
			Expect(outputNames(result)).To(ConsistOf("PROCESS.log", "paper.pdf", "paper.html"))
		})

		It("copies a differently-named bibliography to the markdown stem first", func() {
			ids := []int64{
				files.add(projectID, "metadata.yaml").ID,
				files.add(projectID, "paper.md").ID,
				files.add(projectID, "library.bib").ID,
			}
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["paper.pdf"] = true
			}

			_, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Typesetting, FileIDs: ids})
			Expect(err).NotTo(HaveOccurred())
			Expect(ws.copies).To(ConsistOf(Equal([2]string{"library.bib", "paper.bib"})))
		})

		It("honors a custom output stem", func() {
			ids := []int64{
				files.add(projectID, "metadata.yaml").ID,
				files.add(projectID, "paper.md").ID,
			}
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["final.pdf"] = true
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Typesetting, FileIDs: ids, OutputStem: "final"})
			Expect(err).NotTo(HaveOccurred())
			Expect(outputNames(result)).To(ConsistOf("final.pdf"))
		})
	})

	Describe("tex2pdf", func() {
		It("mounts output dir, tex file and article dir", func() {
			f := files.add(projectID, "paper.tex")
			runner.onInvoke = func(pipeline.Invocation) {
				ws.present["paper.pdf"] = true
				ws.present["paper.log"] = true
			}

			result, err := run(alice, pipeline.RunRequest{Pipeline: pipeline.Tex2PDF, FileIDs: []int64{f.ID}})
			Expect(err).NotTo(HaveOccurred())

			inv := runner.invoked[0]
			Expect(inv.Mounts).To(ConsistOf(
				pipeline.Mount{Host: "/srv/uploads/alice/draft", Container: "/app/output"},
				pipeline.Mount{Host: "/srv/uploads/alice/draft/paper.tex", Container: "/app/paper.tex"},
				pipeline.Mount{Host: "/srv/uploads/alice/draft/article", Container: "/app/article"},
			))
			Expect(outputNames(result)).To(ConsistOf("paper.pdf", "paper.log"))
		})
	})
})

func outputNames(result *pipeline.RunResult) []string {
	names := make([]string, 0, len(result.Outputs))
	for _, f := range result.Outputs {
		names = append(names, f.Filename)
	}
	return names
}

var _ = Describe("RunRequest validation", func() {
	It("requires a known pipeline id", func() {
		Expect(pipeline.RunRequest{}.Validate()).To(HaveOccurred())
		Expect(pipeline.RunRequest{Pipeline: "mystery"}.Validate()).To(HaveOccurred())
		Expect(pipeline.RunRequest{Pipeline: pipeline.Doc2MD}.Validate()).To(Succeed())
	})
})

var _ = Describe("fakeWorkspace", func() {
	It("round-trips report contents", func() {
		ws := newFakeWorkspace()
		ws.reports["r.md"] = "hello"
		f, err := ws.Open("dir", "r.md")
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		defer os.Remove(f.Name())
		data, err := io.ReadAll(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.Equal(data, []byte("hello"))).To(BeTrue())
	})
})
