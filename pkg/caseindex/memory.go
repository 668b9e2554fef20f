package caseindex

import (
	"context"
	"fmt"
	"time"

	"github.com/tarkyaio/tarka/pkg/diagnose"
	"github.com/tarkyaio/tarka/pkg/models"
)

const similarCaseLimit = 20

const similarSQL = `
SELECT case_id, resolution_category, resolved_at
FROM incident_cases
WHERE alert_name = $1 AND resolution_category IS NOT NULL
ORDER BY resolved_at DESC
LIMIT $2`

// SimilarResolved returns recent cases for the same alertname that an
// operator closed with a resolution category. It backs the hypothesis
// calibration hook.
func (s *Store) SimilarResolved(ctx context.Context, inv *models.Investigation) ([]diagnose.HistoricalCase, error) {
	rows, err := s.pool.Query(ctx, similarSQL, inv.Alert.AlertName(), similarCaseLimit)
	if err != nil {
		return nil, fmt.Errorf("querying resolved cases: %w", err)
	}
	defer rows.Close()

	var out []diagnose.HistoricalCase
	for rows.Next() {
		var (
			caseID   string
			category string
			resolved time.Time
		)
		if err := rows.Scan(&caseID, &category, &resolved); err != nil {
			return nil, fmt.Errorf("scanning resolved case: %w", err)
		}
		out = append(out, diagnose.HistoricalCase{
			CaseID:   caseID,
			Category: category,
			Resolved: resolved.UTC().Format(time.RFC3339),
		})
	}
	return out, rows.Err()
}

var _ diagnose.Memory = (*Store)(nil)
