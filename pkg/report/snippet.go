package report

import (
	"regexp"
	"strings"
	"time"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Log line scoring rubric. Higher means stronger failure signal.
const (
	scoreFatal        = 110
	scoreError        = 100
	scoreTraceback    = 100
	scoreException    = 95
	scoreCausedBy     = 92
	scoreProbeFailed  = 90
	scoreStackFrame   = 70
	scoreWarn         = 20
	scoreDefault      = 5
	scoreNoise        = 0
	highSignalCutoff  = 90
	maxLineLength     = 180
	snippetBefore     = 1
	snippetAfter      = 6
	snippetMaxLines   = 12
)

var (
	fatalRe       = regexp.MustCompile(`(?i)\b(FATAL|PANIC)\b`)
	errorRe       = regexp.MustCompile(`(?i)\bERROR\b|"level"\s*:\s*"error"|level=error`)
	tracebackRe   = regexp.MustCompile(`^Traceback \(most recent call last\)`)
	exceptionRe   = regexp.MustCompile(`\w+(Exception|Error):`)
	causedByRe    = regexp.MustCompile(`^\s*Caused by:`)
	probeFailedRe = regexp.MustCompile(`(?i)(liveness|readiness|startup) probe failed`)
	stackContRe   = regexp.MustCompile(`^\s+at\s|^\s*\.\.\. \d+ more$|^\s*Caused by:`)
	warnRe        = regexp.MustCompile(`(?i)\bWARN(ING)?\b`)

	// Noise filters. These lines carry keywords that look like errors but
	// describe configuration or startup banners, not failures.
	springBannerRe = regexp.MustCompile(`:: Spring Boot ::|^\s*([\\/_.'|()]|\x60){4,}\s*$`)
	vlAdvisoryRe   = regexp.MustCompile(`_msg field.*(missing|empty)|missing _msg field`)
	configLineRe   = regexp.MustCompile(`^\s*[\w.\-]+\s*=\s*\S`)
)

// LogLine is one flattened log line with its entry provenance.
type LogLine struct {
	Timestamp  string
	EntryIndex int
	LineIndex  int
	Text       string
	Score      int
}

// FlattenEntries turns raw log entries into scored lines. Multi-line
// messages split into individual lines that share the entry index.
func FlattenEntries(entries []models.LogEntry) []LogLine {
	var out []LogLine
	for i, entry := range entries {
		if entry.Message == "" {
			continue
		}
		for j, line := range strings.Split(entry.Message, "\n") {
			out = append(out, LogLine{
				Timestamp:  entry.Timestamp,
				EntryIndex: i,
				LineIndex:  j,
				Text:       line,
				Score:      ScoreLine(line),
			})
		}
	}
	return out
}

// ScoreLine applies the scoring rubric to one log line. Noise filters win
// over everything else.
func ScoreLine(line string) int {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return scoreNoise
	}
	if isNoiseLine(line) {
		return scoreNoise
	}
	switch {
	case fatalRe.MatchString(line):
		return scoreFatal
	case errorRe.MatchString(line):
		return scoreError
	case tracebackRe.MatchString(trimmed):
		return scoreTraceback
	case exceptionRe.MatchString(line):
		return scoreException
	case causedByRe.MatchString(line):
		return scoreCausedBy
	case probeFailedRe.MatchString(line):
		return scoreProbeFailed
	case stackContRe.MatchString(line):
		return scoreStackFrame
	case warnRe.MatchString(line):
		return scoreWarn
	}
	return scoreDefault
}

func isNoiseLine(line string) bool {
	if springBannerRe.MatchString(line) {
		return true
	}
	if vlAdvisoryRe.MatchString(line) {
		return true
	}
	// Config dumps like "default.production.exception.handler = class X"
	// contain "exception" but are not failures.
	if configLineRe.MatchString(line) && strings.Contains(strings.ToLower(line), "exception") {
		return true
	}
	return false
}

// SelectBestLine returns the most recent high-signal line, falling back to
// the most recent non-noise line. Empty string when nothing qualifies.
func SelectBestLine(entries []models.LogEntry) string {
	lines := FlattenEntries(entries)

	best := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Score >= highSignalCutoff {
			best = lines[i].Text
			break
		}
	}
	if best == "" {
		for i := len(lines) - 1; i >= 0; i-- {
			if lines[i].Score > scoreNoise {
				best = lines[i].Text
				break
			}
		}
	}
	return truncateLine(best)
}

// SelectSnippet returns the latest high-signal line with surrounding
// context from the same entry, extended through stack continuations. The
// fallback is the tail of non-noise, non-config lines.
func SelectSnippet(entries []models.LogEntry) []string {
	lines := FlattenEntries(entries)
	if len(lines) == 0 {
		return nil
	}

	anchor := -1
	anchorScore := 0
	for i, l := range lines {
		// Ties go to the later line so the snippet tracks the most recent
		// occurrence of the strongest signal.
		if l.Score >= highSignalCutoff && l.Score >= anchorScore {
			anchor = i
			anchorScore = l.Score
		}
	}
	if anchor < 0 {
		return tailSnippet(lines)
	}

	start := anchor
	for start > 0 && anchor-start < snippetBefore && lines[start-1].EntryIndex == lines[anchor].EntryIndex {
		start--
	}
	end := anchor
	for end+1 < len(lines) && end-anchor < snippetAfter && lines[end+1].EntryIndex == lines[anchor].EntryIndex {
		end++
	}
	// Extend through stack continuations and blank lines past the window.
	for end+1 < len(lines) && end-start+1 < snippetMaxLines {
		next := lines[end+1]
		if stackContRe.MatchString(next.Text) || strings.TrimSpace(next.Text) == "" {
			end++
			continue
		}
		break
	}
	if end-start+1 > snippetMaxLines {
		end = start + snippetMaxLines - 1
	}

	out := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, formatSnippetLine(lines[i]))
	}
	return out
}

func tailSnippet(lines []LogLine) []string {
	var kept []LogLine
	for _, l := range lines {
		if l.Score == scoreNoise {
			continue
		}
		if configLineRe.MatchString(l.Text) {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) > snippetMaxLines {
		kept = kept[len(kept)-snippetMaxLines:]
	}
	out := make([]string, 0, len(kept))
	for _, l := range kept {
		out = append(out, formatSnippetLine(l))
	}
	return out
}

func formatSnippetLine(l LogLine) string {
	text := truncateLine(l.Text)
	if l.Timestamp == "" {
		return text
	}
	if t, err := time.Parse(time.RFC3339Nano, l.Timestamp); err == nil {
		return t.UTC().Format("15:04:05Z") + " " + text
	}
	return text
}

func truncateLine(s string) string {
	if len(s) <= maxLineLength {
		return s
	}
	return s[:maxLineLength]
}

// SnippetFromLogs is the convenience entry point used by the renderer and
// verdict builder.
func SnippetFromLogs(logs *models.LogsEvidence) []string {
	if logs == nil || len(logs.Entries) == 0 {
		return nil
	}
	return SelectSnippet(logs.Entries)
}
