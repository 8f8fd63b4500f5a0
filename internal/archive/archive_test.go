package archive_test

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperforge/paperforge/internal/archive"
	"github.com/paperforge/paperforge/internal/file"
	"github.com/paperforge/paperforge/internal/project"
	"github.com/paperforge/paperforge/internal/storage"
)

func TestArchive(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Archive Suite")
}

type mockFiles struct {
	rows []*file.File
}

func (m *mockFiles) ListForProject(projectID int64) ([]*file.File, error) {
	return m.rows, nil
}

func (m *mockFiles) ListProduction(projectID int64, production bool) ([]*file.File, error) {
	var out []*file.File
	for _, f := range m.rows {
		if f.IsProductionFile == production {
			out = append(out, f)
		}
	}
	return out, nil
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

var _ = Describe("ArchiveService", func() {
	var (
		svc      *archive.Service
		files    *mockFiles
		projects *mockProjects
		ws       *storage.Workspace
		dir      string
	)

	const (
		alice int64 = 1
		carol int64 = 3

		projectID int64 = 10
	)

	BeforeEach(func() {
		root := GinkgoT().TempDir()
		ws = storage.NewWorkspace(root)
		path, err := ws.EnsureUserDir("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.CreateProjectDir(path, "draft")).To(Succeed())
		dir = ws.ProjectDir(path, "draft")

		write := func(name, content string) {
			_, err := ws.WriteFile(dir, name, bytes.NewReader([]byte(content)))
			Expect(err).NotTo(HaveOccurred())
		}
		write("paper.md", "# Title")
		write("refs.bib", "@article{x}")
		write("paper.pdf", "%PDF-1.7")

		files = &mockFiles{rows: []*file.File{
			{ID: 1, ProjectID: projectID, Filename: "paper.md"},
			{ID: 2, ProjectID: projectID, Filename: "refs.bib"},
			{ID: 3, ProjectID: projectID, Filename: "paper.pdf", IsProductionFile: true},
		}}
		projects = &mockProjects{
			project: &project.Project{ID: projectID, Path: path, ProjectName: "draft"},
			access: map[int64]project.Access{
				alice: {Permission: project.PermRead | project.PermWrite | project.PermDelete, Creator: true},
			},
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = archive.NewService(files, projects, ws, logger)
	})

	entryNames := func(a *archive.Archive) []string {
		f, err := a.Open()
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		info, err := f.Stat()
		Expect(err).NotTo(HaveOccurred())
		zr, err := zip.NewReader(f, info.Size())
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for _, entry := range zr.File {
			names = append(names, entry.Name)
		}
		return names
	}

	It("snapshots the whole project", func() {
		a, err := svc.Build(alice, projectID, archive.ScopeAll)
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		Expect(a.Name).To(Equal("draft.zip"))
		Expect(entryNames(a)).To(ConsistOf("paper.md", "refs.bib", "paper.pdf"))
	})

	It("filters user files from production files", func() {
		userArchive, err := svc.Build(alice, projectID, archive.ScopeUser)
		Expect(err).NotTo(HaveOccurred())
		defer userArchive.Close()
		Expect(entryNames(userArchive)).To(ConsistOf("paper.md", "refs.bib"))

		prodArchive, err := svc.Build(alice, projectID, archive.ScopeProduction)
		Expect(err).NotTo(HaveOccurred())
		defer prodArchive.Close()
		Expect(entryNames(prodArchive)).To(ConsistOf("paper.pdf"))
	})

	It("preserves file contents", func() {
		a, err := svc.Build(alice, projectID, archive.ScopeAll)
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		f, err := a.Open()
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		info, _ := f.Stat()
		zr, err := zip.NewReader(f, info.Size())
		Expect(err).NotTo(HaveOccurred())

		entry, err := zr.Open("paper.md")
		Expect(err).NotTo(HaveOccurred())
		defer entry.Close()
		data, err := io.ReadAll(entry)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("# Title"))
	})

	It("skips rows whose backing file is missing", func() {
		files.rows = append(files.rows, &file.File{ID: 4, ProjectID: projectID, Filename: "ghost.md"})

		a, err := svc.Build(alice, projectID, archive.ScopeAll)
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()
		Expect(entryNames(a)).To(ConsistOf("paper.md", "refs.bib", "paper.pdf"))
	})

	It("removes its scratch directory on Close", func() {
		a, err := svc.Build(alice, projectID, archive.ScopeAll)
		Expect(err).NotTo(HaveOccurred())

		f, err := a.Open()
		Expect(err).NotTo(HaveOccurred())
		name := f.Name()
		f.Close()

		Expect(a.Close()).To(Succeed())
		_, err = os.Stat(name)
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("requires read access", func() {
		_, err := svc.Build(carol, projectID, archive.ScopeAll)
		Expect(err).To(MatchError(project.ErrAccessDenied))
	})

	It("rejects unknown scopes at parse time", func() {
		_, err := archive.ParseScope("everything")
		Expect(err).To(HaveOccurred())

		scope, err := archive.ParseScope("")
		Expect(err).NotTo(HaveOccurred())
		Expect(scope).To(Equal(archive.ScopeAll))
	})
})
