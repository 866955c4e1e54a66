package store

import (
	"fmt"

	"github.com/pavelanni/automark/internal/model"
)

// ExportAll builds the export structure for every recorded run.
func (s *Store) ExportAll() (model.AuditExport, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return model.AuditExport{}, fmt.Errorf("list runs: %w", err)
	}

	export := model.AuditExport{}
	for _, run := range runs {
		decisions, err := s.ListDecisions(run.ID)
		if err != nil {
			return model.AuditExport{}, fmt.Errorf("list decisions for run %d: %w", run.ID, err)
		}
		export.Runs = append(export.Runs, model.RunExport{
			RunRecord: run,
			Decisions: decisions,
		})
	}
	return export, nil
}
