package diagnose

import (
	"context"

	"github.com/tarkyaio/tarka/pkg/models"
)

// ObjectStoreLogModule scans parsed log errors for S3 failure signatures.
// It applies to any family; the patterns themselves gate on S3-specific
// text so false positives stay rare.
type ObjectStoreLogModule struct{}

func NewObjectStoreLogModule() *ObjectStoreLogModule { return &ObjectStoreLogModule{} }

func (m *ObjectStoreLogModule) ID() string { return "objectstore_logs" }

func (m *ObjectStoreLogModule) Applies(inv *models.Investigation) bool {
	return len(inv.Evidence.Logs.ParsedErrors) > 0
}

func (m *ObjectStoreLogModule) Collect(ctx context.Context, inv *models.Investigation) {}

func (m *ObjectStoreLogModule) Diagnose(inv *models.Investigation) []models.Hypothesis {
	matches := MatchPatterns(S3Patterns, inv.Evidence.Logs.ParsedErrors)
	out := make([]models.Hypothesis, 0, len(matches))
	for _, match := range matches {
		h := match.Hypothesis()
		h.SupportingRefs = append(h.SupportingRefs, "application logs")
		out = append(out, h)
	}
	return out
}
