package diagnose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// LogPattern is one deterministic failure signature. Matching is
// case-insensitive substring regex over the joined parsed error text.
type LogPattern struct {
	PatternID        string
	Title            string
	Regexes          []*regexp.Regexp
	Confidence       int
	WhyTemplate      string
	NextTests        []string
	RemediationSteps []string

	// ContextExtractors pull named fields out of the matched text. Each
	// regex must have exactly one capture group; enforced at construction.
	ContextExtractors map[string]*regexp.Regexp
}

// mustPattern compiles a pattern definition and validates its extractors.
// Called only from package-level library construction, so panics surface at
// process start.
func mustPattern(id, title string, confidence int, regexes []string, whyTemplate string, nextTests, remediation []string, extractors map[string]string) LogPattern {
	p := LogPattern{
		PatternID:        id,
		Title:            title,
		Confidence:       confidence,
		WhyTemplate:      whyTemplate,
		NextTests:        nextTests,
		RemediationSteps: remediation,
	}
	for _, expr := range regexes {
		p.Regexes = append(p.Regexes, regexp.MustCompile("(?i)"+expr))
	}
	if len(extractors) > 0 {
		p.ContextExtractors = make(map[string]*regexp.Regexp, len(extractors))
		for field, expr := range extractors {
			re := regexp.MustCompile("(?i)" + expr)
			if re.NumSubexp() != 1 {
				panic(fmt.Sprintf("pattern %s: extractor %q must have exactly one capture group, has %d", id, field, re.NumSubexp()))
			}
			p.ContextExtractors[field] = re
		}
	}
	return p
}

// PatternMatch pairs a matched pattern with its extracted context fields.
type PatternMatch struct {
	Pattern LogPattern
	Context map[string]string
}

// MatchPatterns joins parsed error messages into one searchable text and
// runs each pattern once. Returns matches in library order.
func MatchPatterns(patterns []LogPattern, errors []models.ParsedLogError) []PatternMatch {
	if len(errors) == 0 {
		return nil
	}
	var sb strings.Builder
	for _, e := range errors {
		sb.WriteString(e.Message)
		sb.WriteByte('\n')
	}
	return MatchPatternsText(patterns, sb.String())
}

// MatchPatternsText runs each pattern against raw text.
func MatchPatternsText(patterns []LogPattern, text string) []PatternMatch {
	if text == "" {
		return nil
	}
	var out []PatternMatch
	for _, p := range patterns {
		matched := false
		for _, re := range p.Regexes {
			if re.MatchString(text) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		ctx := map[string]string{}
		for field, re := range p.ContextExtractors {
			if m := re.FindStringSubmatch(text); len(m) == 2 {
				ctx[field] = m[1]
			}
		}
		out = append(out, PatternMatch{Pattern: p, Context: ctx})
	}
	return out
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// RenderTemplate substitutes {field} placeholders from the context map.
// Missing fields render as "unknown" so a template never fails.
func RenderTemplate(template string, context map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		field := m[1 : len(m)-1]
		if v, ok := context[field]; ok && v != "" {
			return v
		}
		return "unknown"
	})
}

// Hypothesis turns a match into a ranked hypothesis. Remediation steps come
// before diagnostic tests so the fix is the first thing on screen.
func (m PatternMatch) Hypothesis() models.Hypothesis {
	h := models.Hypothesis{
		HypothesisID: m.Pattern.PatternID,
		Title:        m.Pattern.Title,
		Confidence:   m.Pattern.Confidence,
		Why:          []string{RenderTemplate(m.Pattern.WhyTemplate, m.Context)},
	}
	for _, step := range m.Pattern.RemediationSteps {
		h.ProposedActions = append(h.ProposedActions, RenderTemplate(step, m.Context))
	}
	for _, test := range m.Pattern.NextTests {
		h.NextTests = append(h.NextTests, RenderTemplate(test, m.Context))
	}
	return h
}
