package backup

import (
	"github.com/miketropi/wp-backup/internal/metrics"
)

// PruneScheduled deletes the oldest scheduler-created jobs, keeping the
// newest keep of them. Manually named jobs are never touched. Failures are
// logged and skipped; the deleted folders are returned.
func (s *Service) PruneScheduled(keep int) []string {
	if keep < 0 {
		keep = 0
	}
	jobs, err := s.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("prune: list backups")
		return nil
	}

	var deleted []string
	seen := 0
	for _, job := range jobs {
		if !job.IsScheduled() {
			continue
		}
		seen++
		if seen <= keep {
			continue
		}
		if err := s.Delete(job.Folder); err != nil {
			s.logger.Error().Err(err).Str("folder", job.Folder).Msg("prune: delete backup")
			continue
		}
		deleted = append(deleted, job.Folder)
	}
	if len(deleted) > 0 {
		metrics.ObservePruned(len(deleted))
		s.logger.Info().Int("deleted", len(deleted)).Int("keep", keep).Msg("pruned scheduled backups")
	}
	return deleted
}
