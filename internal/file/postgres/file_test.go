package postgres

import (
	"testing"
	"time"

	"github.com/paperforge/paperforge/internal/file"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestFileRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "FileRepository Suite")
}

type SQLiteFile struct {
	ID               int64     `gorm:"primaryKey"`
	Filename         string    `gorm:"column:filename;not null"`
	ProjectID        int64     `gorm:"column:project_id;not null"`
	UploaderID       int64     `gorm:"column:uploader_id;not null"`
	IsProductionFile bool      `gorm:"column:is_production_file;default:false"`
	DownloadCount    int64     `gorm:"column:download_count;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	ChangedAt        time.Time `gorm:"column:changed_at"`
}

func (SQLiteFile) TableName() string {
	return "files"
}

var _ = Describe("FileRepository", func() {
	var (
		db   *gorm.DB
		repo file.Repository
	)

	BeforeEach(func() {
		var err error

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())

		err = db.AutoMigrate(&SQLiteFile{})
		Expect(err).NotTo(HaveOccurred())

		repo = NewFileRepository(db)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		err = sqlDB.Close()
		Expect(err).NotTo(HaveOccurred())
	})

	newFile := func(name string, projectID int64, production bool) *file.File {
		return &file.File{
			Filename:         name,
			ProjectID:        projectID,
			UploaderID:       1,
			IsProductionFile: production,
			CreatedAt:        time.Now(),
			ChangedAt:        time.Now(),
		}
	}

	Describe("Create", func() {
		It("should persist a file row", func() {
			f := newFile("paper.md", 1, false)
			err := repo.Create(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.ID).To(BeNumerically(">", 0))
		})
	})

	Describe("GetByID", func() {
		It("should retrieve a stored row", func() {
			created := newFile("paper.md", 1, false)
			err := repo.Create(created)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID(created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Filename).To(Equal("paper.md"))
			Expect(got.ProjectID).To(Equal(int64(1)))
			Expect(got.UploaderID).To(Equal(int64(1)))
		})

		It("should return ErrNotFound for a missing row", func() {
			got, err := repo.GetByID(99999)
			Expect(err).To(Equal(file.ErrNotFound))
			Expect(got).To(BeNil())
		})
	})

	Describe("GetByName", func() {
		BeforeEach(func() {
			err := repo.Create(newFile("paper.md", 1, false))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should find a row by project and filename", func() {
			got, err := repo.GetByName(1, "paper.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(got.Filename).To(Equal("paper.md"))
		})

		It("should return nil without error when no row matches", func() {
			got, err := repo.GetByName(1, "missing.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("should not match the same filename in another project", func() {
			got, err := repo.GetByName(2, "paper.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})
	})

	Describe("Rename", func() {
		It("should update filename and changed_at", func() {
			f := newFile("draft.md", 1, false)
			err := repo.Create(f)
			Expect(err).NotTo(HaveOccurred())

			changedAt := time.Now().Add(time.Hour)
			err = repo.Rename(f.ID, "final.md", changedAt)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID(f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Filename).To(Equal("final.md"))
			Expect(got.ChangedAt.Unix()).To(Equal(changedAt.Unix()))
		})
	})

	Describe("Touch", func() {
		It("should bump changed_at and set the production flag", func() {
			f := newFile("article.pdf", 1, false)
			err := repo.Create(f)
			Expect(err).NotTo(HaveOccurred())

			changedAt := time.Now().Add(time.Hour)
			err = repo.Touch(f.ID, changedAt, true)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID(f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IsProductionFile).To(BeTrue())
			Expect(got.ChangedAt.Unix()).To(Equal(changedAt.Unix()))
		})
	})

	Describe("IncrementDownloadCount", func() {
		It("should add one per call", func() {
			f := newFile("paper.md", 1, false)
			err := repo.Create(f)
			Expect(err).NotTo(HaveOccurred())

			err = repo.IncrementDownloadCount(f.ID)
			Expect(err).NotTo(HaveOccurred())
			err = repo.IncrementDownloadCount(f.ID)
			Expect(err).NotTo(HaveOccurred())

			got, err := repo.GetByID(f.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.DownloadCount).To(Equal(int64(2)))
		})
	})

	Describe("Delete", func() {
		It("should remove the row", func() {
			f := newFile("paper.md", 1, false)
			err := repo.Create(f)
			Expect(err).NotTo(HaveOccurred())

			err = repo.Delete(f.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = repo.GetByID(f.ID)
			Expect(err).To(Equal(file.ErrNotFound))
		})
	})

	Describe("ListForProject", func() {
		It("should return the project's files ordered by filename", func() {
			Expect(repo.Create(newFile("refs.bib", 1, false))).To(Succeed())
			Expect(repo.Create(newFile("article.pdf", 1, true))).To(Succeed())
			Expect(repo.Create(newFile("other.md", 2, false))).To(Succeed())

			files, err := repo.ListForProject(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(2))
			Expect(files[0].Filename).To(Equal("article.pdf"))
			Expect(files[1].Filename).To(Equal("refs.bib"))
		})
	})

	Describe("ListProduction", func() {
		BeforeEach(func() {
			Expect(repo.Create(newFile("paper.md", 1, false))).To(Succeed())
			Expect(repo.Create(newFile("article.pdf", 1, true))).To(Succeed())
		})

		It("should return only pipeline outputs when production is true", func() {
			files, err := repo.ListProduction(1, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(1))
			Expect(files[0].Filename).To(Equal("article.pdf"))
		})

		It("should return only uploads when production is false", func() {
			files, err := repo.ListProduction(1, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(1))
			Expect(files[0].Filename).To(Equal("paper.md"))
		})
	})
})
