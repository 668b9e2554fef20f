package features

import (
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Extract projects all evidence into the investigation's DerivedFeatures.
// This is the single write point for Analysis.Features.
func Extract(inv *models.Investigation, now time.Time) {
	f := models.DerivedFeatures{
		K8s:     ExtractK8s(&inv.Evidence),
		Metrics: ExtractMetrics(&inv.Evidence, inv.Target.Container),
		Logs:    ExtractLogs(&inv.Evidence),
		Changes: ExtractChanges(&inv.Evidence, inv.TimeWindow),
	}
	f.Quality = ExtractQuality(inv, &f, now)
	inv.Analysis.Features = f
}
