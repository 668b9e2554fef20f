package features

import (
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// ExtractLogs projects log evidence into FeaturesLogs. Hit counts are plain
// case-insensitive substring counts over entry messages.
func ExtractLogs(ev *models.Evidence) models.FeaturesLogs {
	out := models.FeaturesLogs{
		Status:  ev.Logs.Status,
		Backend: ev.Logs.Backend,
		Reason:  ev.Logs.Reason,
		Query:   ev.Logs.Query,
	}
	for _, entry := range ev.Logs.Entries {
		lower := strings.ToLower(entry.Message)
		out.TimeoutHits += strings.Count(lower, "timeout")
		out.ErrorHits += strings.Count(lower, "error")
	}
	return out
}
