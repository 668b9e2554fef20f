package scoring

import (
	"fmt"
	"strings"

	"github.com/tarkyaio/tarka/pkg/features"
	"github.com/tarkyaio/tarka/pkg/models"
)

// Classification thresholds. Families may tighten these in classify.
const (
	artifactConfidenceDefault    = 40
	artifactConfidenceThrottling = 30
	noisyThreshold               = 70
	actionableImpact             = 60
	actionableConfidence         = 60
	actionableNoiseCeiling       = 60

	criticalImpact       = 85
	criticalConfidence   = 70
	criticalNoiseCeiling = 40

	maxNextSteps = 5
)

// Score runs the family scorer, the common contributions, classification,
// and verdict assembly. It writes Analysis.Scores and Analysis.Verdict.
func Score(inv *models.Investigation) {
	family := models.Family(inv.Family())
	sc := NewScorecard()

	scorerFor(family)(inv, sc)
	applyCommon(inv, sc)

	scores := sc.Scores()
	inv.Analysis.Scores = scores

	classification := classify(family, inv, sc)
	verdict := models.DeterministicVerdict{
		Classification: classification,
		PrimaryDriver:  primaryDriver(scores),
		OneLiner:       oneLiner(family, inv, scores, classification),
		NextSteps:      nextSteps(inv, classification),
		Severity:       deriveSeverity(classification, scores),
	}
	postProcess(inv, sc, &verdict)
	inv.Analysis.Verdict = verdict
}

func classify(family models.Family, inv *models.Investigation, sc *Scorecard) models.Classification {
	impact, confidence, noise := sc.Impact(), sc.Confidence(), sc.Noise()

	// Throttling without real CPU pressure is a tuning question, not an
	// artifact: the signal is real, the limit is just not under pressure.
	// The contradiction penalty must not sink it through the artifact
	// floor, so the floor is bypassed and the verdict lands informational.
	throttlingBenign := family == models.FamilyCPUThrottling &&
		sc.Has(features.ContradictionThrottlingHighUsageLow) &&
		!inv.Analysis.Features.Metrics.CPUNearLimit

	artifactThreshold := artifactConfidenceDefault
	if family == models.FamilyCPUThrottling {
		artifactThreshold = artifactConfidenceThrottling
	}
	if confidence < artifactThreshold && !throttlingBenign {
		return models.ClassArtifact
	}

	if noise >= noisyThreshold {
		return models.ClassNoisy
	}
	if throttlingBenign {
		return models.ClassInformational
	}

	if impact >= actionableImpact && confidence >= actionableConfidence && noise <= actionableNoiseCeiling {
		if family == models.FamilyCPUThrottling && !inv.Analysis.Features.Metrics.CPUNearLimit {
			return models.ClassInformational
		}
		return models.ClassActionable
	}
	return models.ClassInformational
}

// primaryDriver is the largest positive impact contribution.
func primaryDriver(scores models.DeterministicScores) string {
	best, bestDelta := "", 0
	for _, item := range scores.Breakdown {
		if item.Axis == AxisImpact && item.Delta > bestDelta {
			best, bestDelta = item.Code, item.Delta
		}
	}
	return best
}

func oneLiner(family models.Family, inv *models.Investigation, scores models.DeterministicScores, class models.Classification) string {
	var facts []string
	for _, item := range scores.Breakdown {
		if item.Why != "" && item.Delta > 0 {
			facts = append(facts, item.Why)
			if len(facts) == 2 {
				break
			}
		}
	}
	evidence := strings.Join(facts, "; ")
	if evidence == "" {
		evidence = "no strong supporting evidence collected"
	}

	subject := inv.Alert.Labels["alertname"]
	if subject == "" {
		subject = string(family)
	}
	line := fmt.Sprintf("%s is %s: %s", subject, class, evidence)

	// A near-certain top hypothesis carries its own explanation, e.g. a
	// registry lookup that proved the image tag missing.
	if len(inv.Analysis.Hypotheses) > 0 {
		top := inv.Analysis.Hypotheses[0]
		if top.Confidence >= 90 && len(top.Why) > 0 {
			line += " " + top.Why[len(top.Why)-1]
		}
	}
	return line
}

func nextSteps(inv *models.Investigation, class models.Classification) []string {
	var out []string
	if len(inv.Analysis.Hypotheses) > 0 {
		top := inv.Analysis.Hypotheses[0]
		out = append(out, top.ProposedActions...)
		out = append(out, top.NextTests...)
	}
	if len(out) == 0 && len(inv.Analysis.Decision.Next) > 0 {
		out = append(out, inv.Analysis.Decision.Next...)
	}
	if len(out) > maxNextSteps {
		out = out[:maxNextSteps]
	}
	return out
}

// postProcess applies the cross-family adjustments: the artifact split, the
// long-running alert-quality tip, and the severity guardrail.
func postProcess(inv *models.Investigation, sc *Scorecard, verdict *models.DeterministicVerdict) {
	quality := inv.Analysis.Features.Quality

	if verdict.Classification == models.ClassArtifact {
		switch {
		case sc.Has(features.ContradictionOOMWithoutEvidence):
			// Do not claim an OOM kill the evidence does not show.
			verdict.OneLiner = "Unconfirmed OOM signal: the alert reports an OOM kill but no termination, event, or metric corroborates it. " + verdict.OneLiner
		case hasStaleSignal(sc):
			verdict.OneLiner = "Recovered/stale signal: the alerted condition is no longer observable. " + verdict.OneLiner
		default:
			verdict.OneLiner = "Low-confidence attribution: evidence is too thin to name a cause. " + verdict.OneLiner
		}
	}

	if verdict.Classification == models.ClassInformational && quality.IsLongRunning {
		verdict.NextSteps = append(verdict.NextSteps,
			"This alert has fired for 72h or more; tune its threshold or add a `for:` duration so it only pages on sustained breaches")
	}

	if verdict.Severity == models.SeverityCritical &&
		(inv.Analysis.Scores.Confidence < actionableConfidence || inv.Analysis.Scores.Noise > actionableNoiseCeiling) {
		verdict.Severity = models.SeverityWarning
	}
}

func hasStaleSignal(sc *Scorecard) bool {
	for code := range staleSignalCodes {
		if sc.Has(code) {
			return true
		}
	}
	return false
}

func deriveSeverity(class models.Classification, scores models.DeterministicScores) models.Severity {
	if class != models.ClassActionable {
		return models.SeverityInfo
	}
	if scores.Impact >= criticalImpact &&
		scores.Confidence >= criticalConfidence &&
		scores.Noise <= criticalNoiseCeiling {
		return models.SeverityCritical
	}
	return models.SeverityWarning
}
