package project_test

import (
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/paperforge/paperforge/internal/project"
)

// Mock repository for testing
type mockProjectRepository struct {
	projects     map[int64]*project.Project
	grants       map[[2]int64]*project.UserProject // (userID, projectID)
	nextID       int64
	createError  error
	renameError  error
	deleteCalled bool
}

func newMockProjectRepository() *mockProjectRepository {
	return &mockProjectRepository{
		projects: make(map[int64]*project.Project),
		grants:   make(map[[2]int64]*project.UserProject),
		nextID:   1,
	}
}

func (m *mockProjectRepository) Create(p *project.Project, creatorRow *project.UserProject) error {
	if m.createError != nil {
		return m.createError
	}
	for _, existing := range m.projects {
		if existing.Path == p.Path && existing.ProjectName == p.ProjectName {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	p.ID = m.nextID
	m.nextID++
	m.projects[p.ID] = p
	creatorRow.ProjectID = p.ID
	m.grants[[2]int64{creatorRow.UserID, p.ID}] = creatorRow
	return nil
}

func (m *mockProjectRepository) GetByID(id int64) (*project.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, project.ErrNotFound
	}
	return p, nil
}

func (m *mockProjectRepository) GetByPathAndName(path, name string) (*project.Project, error) {
	for _, p := range m.projects {
		if p.Path == path && p.ProjectName == name {
			return p, nil
		}
	}
	return nil, project.ErrNotFound
}

func (m *mockProjectRepository) UpdateName(projectID int64, newName string, changedAt time.Time) error {
	if m.renameError != nil {
		return m.renameError
	}
	if p, ok := m.projects[projectID]; ok {
		p.ProjectName = newName
		p.ChangedAt = changedAt
	}
	return nil
}

func (m *mockProjectRepository) DeleteCascade(projectID int64) error {
	m.deleteCalled = true
	delete(m.projects, projectID)
	for key := range m.grants {
		if key[1] == projectID {
			delete(m.grants, key)
		}
	}
	return nil
}

func (m *mockProjectRepository) GetUserProject(userID, projectID int64) (*project.UserProject, error) {
	return m.grants[[2]int64{userID, projectID}], nil
}

func (m *mockProjectRepository) UpsertUserProject(row *project.UserProject) error {
	key := [2]int64{row.UserID, row.ProjectID}
	if existing, ok := m.grants[key]; ok {
		existing.Permission = row.Permission
		return nil
	}
	m.grants[key] = row
	return nil
}

func (m *mockProjectRepository) DeleteUserProject(userID, projectID int64) error {
	key := [2]int64{userID, projectID}
	if row, ok := m.grants[key]; ok && !row.IsCreator {
		delete(m.grants, key)
	}
	return nil
}

func (m *mockProjectRepository) ListForUser(userID int64, creator bool) ([]*project.Project, error) {
	var out []*project.Project
	for key, row := range m.grants {
		if key[0] == userID && row.IsCreator == creator {
			if p, ok := m.projects[key[1]]; ok {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *mockProjectRepository) ListAll() ([]*project.Project, error) {
	var out []*project.Project
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProjectRepository) ListMembers(projectID int64) ([]*project.Member, error) {
	var out []*project.Member
	for key, row := range m.grants {
		if key[1] == projectID {
			out = append(out, &project.Member{
				UserID:     row.UserID,
				Permission: row.Permission,
				IsCreator:  row.IsCreator,
			})
		}
	}
	return out, nil
}

// Mock workspace for testing
type mockWorkspace struct {
	dirs        map[string]bool // path/name
	createError error
	renameError error
	removeError error
	removed     []string
}

func newMockWorkspace() *mockWorkspace {
	return &mockWorkspace{dirs: make(map[string]bool)}
}

func (m *mockWorkspace) EnsureUserDir(username string) (string, error) {
	return "uploads/" + username, nil
}

func (m *mockWorkspace) CreateProjectDir(path, name string) error {
	if m.createError != nil {
		return m.createError
	}
	key := path + "/" + name
	if m.dirs[key] {
		return os.ErrExist
	}
	m.dirs[key] = true
	return nil
}

func (m *mockWorkspace) RenameProjectDir(path, oldName, newName string) error {
	if m.renameError != nil {
		return m.renameError
	}
	delete(m.dirs, path+"/"+oldName)
	m.dirs[path+"/"+newName] = true
	return nil
}

func (m *mockWorkspace) RemoveProjectDir(path, name string) error {
	if m.removeError != nil {
		return m.removeError
	}
	key := path + "/" + name
	delete(m.dirs, key)
	m.removed = append(m.removed, key)
	return nil
}

type mockUserDirectory struct {
	users map[string]int64
}

func (m *mockUserDirectory) LookupByUsername(username string) (int64, string, error) {
	if id, ok := m.users[username]; ok {
		return id, username + "@example.org", nil
	}
	return 0, "", errors.New("user not found")
}

type mockMailer struct {
	sent []string
}

func (m *mockMailer) Send(to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

var _ = Describe("ProjectService", func() {
	var (
		svc    *project.Service
		repo   *mockProjectRepository
		ws     *mockWorkspace
		users  *mockUserDirectory
		mail   *mockMailer
		logger *slog.Logger
	)

	const (
		alice int64 = 1
		bob   int64 = 2
		carol int64 = 3
	)

	BeforeEach(func() {
		repo = newMockProjectRepository()
		ws = newMockWorkspace()
		users = &mockUserDirectory{users: map[string]int64{"alice": alice, "bob": bob, "carol": carol}}
		mail = &mockMailer{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		svc = project.NewService(repo, ws, users, mail, logger)
	})

	createProject := func(name string) *project.Project {
		p, err := svc.Create(alice, "alice", project.CreateProjectDTO{ProjectName: name})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	Describe("Create", func() {
		It("creates the directory and the creator grant", func() {
			p := createProject("My Article")

			Expect(p.ProjectName).To(Equal("My_Article"))
			Expect(p.Path).To(Equal("uploads/alice"))
			Expect(ws.dirs["uploads/alice/My_Article"]).To(BeTrue())

			access, err := svc.AccessFor(alice, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(access.Creator).To(BeTrue())
			Expect(access.CanDelete()).To(BeTrue())
		})

		It("reports a conflict when the directory already exists", func() {
			createProject("draft")

			_, err := svc.Create(alice, "alice", project.CreateProjectDTO{ProjectName: "draft"})
			Expect(err).To(MatchError(project.ErrAlreadyExists))
		})

		It("removes the directory again when the registry insert fails", func() {
			repo.createError = errors.New("boom")

			_, err := svc.Create(alice, "alice", project.CreateProjectDTO{ProjectName: "draft"})
			Expect(err).To(HaveOccurred())
			Expect(ws.dirs["uploads/alice/draft"]).To(BeFalse())
		})
	})

	Describe("Rename", func() {
		It("allows a shared user holding the delete capability", func() {
			p := createProject("draft")
			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob", Write: true, Delete: true})
			Expect(err).NotTo(HaveOccurred())

			renamed, err := svc.Rename(bob, p.ID, project.RenameProjectDTO{NewName: "final"})
			Expect(err).NotTo(HaveOccurred())
			Expect(renamed.ProjectName).To(Equal("final"))
			Expect(ws.dirs["uploads/alice/final"]).To(BeTrue())
		})

		It("rejects a shared user without the delete capability", func() {
			p := createProject("draft")
			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob", Write: true})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Rename(bob, p.ID, project.RenameProjectDTO{NewName: "final"})
			Expect(err).To(MatchError(project.ErrAccessDenied))
		})

		It("rejects a rename onto an existing sibling name", func() {
			createProject("draft")
			p := createProject("notes")

			_, err := svc.Rename(alice, p.ID, project.RenameProjectDTO{NewName: "draft"})
			Expect(err).To(MatchError(project.ErrAlreadyExists))
		})
	})

	Describe("Delete", func() {
		It("is restricted to the creator even with full capabilities", func() {
			p := createProject("draft")
			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob", Write: true, Delete: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(bob, p.ID)).To(MatchError(project.ErrCreatorRequired))
			Expect(svc.Delete(alice, p.ID)).To(Succeed())
			Expect(repo.deleteCalled).To(BeTrue())
			Expect(ws.removed).To(ContainElement("uploads/alice/draft"))
		})

		It("keeps the registry delete even when the directory removal fails", func() {
			p := createProject("draft")
			ws.removeError = errors.New("permission denied")

			err := svc.Delete(alice, p.ID)
			Expect(err).To(HaveOccurred())
			_, getErr := repo.GetByID(p.ID)
			Expect(getErr).To(MatchError(project.ErrNotFound))
		})
	})

	Describe("Share and Revoke", func() {
		It("always grants read plus the requested capabilities", func() {
			p := createProject("draft")

			row, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob", Delete: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(row.Permission).To(Equal("rd"))
			Expect(mail.sent).To(ContainElement("bob@example.org"))
		})

		It("rejects sharing with yourself", func() {
			p := createProject("draft")

			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "alice"})
			Expect(err).To(MatchError(project.ErrShareWithSelf))
		})

		It("is restricted to the creator", func() {
			p := createProject("draft")
			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob", Write: true, Delete: true})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Share(bob, p.ID, project.ShareProjectDTO{Username: "carol"})
			Expect(err).To(MatchError(project.ErrCreatorRequired))
		})

		It("revokes a grant but never the creator row", func() {
			p := createProject("draft")
			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob"})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Revoke(alice, p.ID, "bob")).To(Succeed())
			access, err := svc.AccessFor(bob, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(access.CanRead()).To(BeFalse())

			Expect(svc.Revoke(alice, p.ID, "alice")).To(MatchError(project.ErrShareWithSelf))
		})
	})

	Describe("List", func() {
		It("splits owned and shared projects", func() {
			p := createProject("draft")
			_, err := svc.Share(alice, p.ID, project.ShareProjectDTO{Username: "bob"})
			Expect(err).NotTo(HaveOccurred())

			aliceList, err := svc.List(alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(aliceList.Owned).To(HaveLen(1))
			Expect(aliceList.Shared).To(BeEmpty())

			bobList, err := svc.List(bob)
			Expect(err).NotTo(HaveOccurred())
			Expect(bobList.Owned).To(BeEmpty())
			Expect(bobList.Shared).To(HaveLen(1))
		})
	})
})
