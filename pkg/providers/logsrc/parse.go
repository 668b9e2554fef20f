package logsrc

import (
	"regexp"
	"strings"

	"github.com/tarkyaio/tarka/pkg/models"
)

// errorLinePattern matches common error-level markers across logging formats
// (plain text, logfmt, JSON-ish).
var errorLinePattern = regexp.MustCompile(`(?i)\b(FATAL|PANIC|ERROR|ERR)\b|"level"\s*:\s*"(error|fatal)"|level=(error|fatal)|Exception|Traceback`)

// levelPattern extracts a coarse level tag for the parsed record.
var levelPattern = regexp.MustCompile(`(?i)\b(FATAL|PANIC|ERROR)\b`)

// maxParsedErrors bounds the parsed-error list; pattern matching joins these
// into one searchable text so an unbounded list is wasted work.
const maxParsedErrors = 200

// ParseErrors extracts error-level lines from raw entries. The result feeds
// the diagnostic log-pattern matcher.
func ParseErrors(entries []models.LogEntry) []models.ParsedLogError {
	var out []models.ParsedLogError
	for _, entry := range entries {
		for _, line := range strings.Split(entry.Message, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || !errorLinePattern.MatchString(line) {
				continue
			}
			level := "error"
			if m := levelPattern.FindString(line); m != "" {
				level = strings.ToLower(m)
			}
			out = append(out, models.ParsedLogError{
				Timestamp: entry.Timestamp,
				Level:     level,
				Message:   line,
			})
			if len(out) >= maxParsedErrors {
				return out
			}
		}
	}
	return out
}

// ParseErrorsFromText splits a raw log blob (e.g. previous-container logs
// from the K8s API) into parsed error records.
func ParseErrorsFromText(text string) []models.ParsedLogError {
	if text == "" {
		return nil
	}
	return ParseErrors([]models.LogEntry{{Message: text}})
}
