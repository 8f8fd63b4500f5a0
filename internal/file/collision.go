package file

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"
)

// collisionTimeFormat stamps the displaced file's original creation time into
// its fallback name.
const collisionTimeFormat = "2006-01-02_15-04-05"

// randInt is swapped out in tests; the production source only needs to be
// unpredictable enough to break ties between same-second displacements.
var randInt = func(n int) int {
	return rand.Intn(n) + 1
}

// fallbackName derives the name a displaced file moves to: the original stem,
// its creation timestamp and a random suffix, keeping the extension.
func fallbackName(filename string, createdAt time.Time, n int) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%s_%s_%d%s", stem, createdAt.Format(collisionTimeFormat), n, ext)
}

// EnsureUnique clears the literal filename inside a project before a new
// write claims it. The newest file always wins the short name: an existing
// registry row and its on-disk file are renamed to a timestamped fallback,
// retried with a fresh random suffix until the fallback itself is free. The
// row is updated before the disk rename so a crash between the two leaves a
// divergence the reconcile pass repairs.
func (s *Service) ensureUnique(dir string, projectID int64, filename string) error {
	existing, err := s.repo.GetByName(projectID, filename)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	var renamed string
	for {
		renamed = fallbackName(filename, existing.CreatedAt, randInt(10000))
		taken, err := s.repo.GetByName(projectID, renamed)
		if err != nil {
			return err
		}
		if taken == nil && !s.ws.Exists(dir, renamed) {
			break
		}
	}

	if err := s.repo.Rename(existing.ID, renamed, time.Now()); err != nil {
		return err
	}
	if err := s.ws.RenameFile(dir, filename, renamed); err != nil {
		s.logger.Error("failed to move displaced file on disk",
			"project_id", projectID, "filename", filename, "renamed", renamed, "error", err)
		return desyncError("displaced file was renamed in the registry but not on disk", err)
	}

	s.logger.Info("existing file displaced to fallback name",
		"project_id", projectID, "filename", filename, "renamed", renamed)
	return nil
}
