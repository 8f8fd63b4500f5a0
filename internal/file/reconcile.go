package file

import (
	"os"

	"github.com/paperforge/paperforge/internal/project"
)

// ReconcileReport lists the divergences found in one project, and what was
// done about them when repair is on.
type ReconcileReport struct {
	ProjectID    int64    `json:"project_id"`
	ProjectName  string   `json:"project_name"`
	MissingFiles []string `json:"missing_files,omitempty"` // rows without a backing file
	OrphanFiles  []string `json:"orphan_files,omitempty"`  // files without a row
	Repaired     bool     `json:"repaired"`
}

func (r *ReconcileReport) Clean() bool {
	return len(r.MissingFiles) == 0 && len(r.OrphanFiles) == 0
}

// Reconcile compares a project's registry rows against its directory. With
// repair on, rows without files are deleted and files without rows are
// registered to the project creator. Orphans picked up this way are
// registered as user files; a later pipeline run promotes its own outputs.
func (s *Service) Reconcile(p *project.Project, repair bool) (*ReconcileReport, error) {
	report := &ReconcileReport{
		ProjectID:   p.ID,
		ProjectName: p.ProjectName,
		Repaired:    repair,
	}

	rows, err := s.repo.ListForProject(p.ID)
	if err != nil {
		return nil, err
	}

	dir := s.projectDir(p)
	names, err := s.ws.List(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// The whole directory is gone; every row is a missing file.
			names = nil
		} else {
			return nil, err
		}
	}

	onDisk := make(map[string]struct{}, len(names))
	for _, n := range names {
		onDisk[n] = struct{}{}
	}
	inRegistry := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		inRegistry[row.Filename] = struct{}{}
		if _, ok := onDisk[row.Filename]; ok {
			continue
		}
		report.MissingFiles = append(report.MissingFiles, row.Filename)
		if repair {
			if err := s.repo.Delete(row.ID); err != nil {
				return nil, err
			}
			s.logger.Warn("reconcile: removed row without backing file",
				"project_id", p.ID, "filename", row.Filename)
		}
	}

	var creatorID int64
	for _, n := range names {
		if _, ok := inRegistry[n]; ok {
			continue
		}
		report.OrphanFiles = append(report.OrphanFiles, n)
		if !repair {
			continue
		}
		if creatorID == 0 {
			if creatorID, err = s.projects.CreatorID(p.ID); err != nil {
				return nil, err
			}
		}
		if _, err := s.RegisterFile(p.ID, creatorID, n, false); err != nil {
			return nil, err
		}
		s.logger.Warn("reconcile: registered file without row",
			"project_id", p.ID, "filename", n)
	}

	return report, nil
}

// ReconcileAll runs Reconcile over every project.
func (s *Service) ReconcileAll(repair bool) ([]*ReconcileReport, error) {
	projects, err := s.projects.All()
	if err != nil {
		return nil, err
	}
	reports := make([]*ReconcileReport, 0, len(projects))
	for _, p := range projects {
		report, err := s.Reconcile(p, repair)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
