package logsrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

func TestParseErrors(t *testing.T) {
	entries := []models.LogEntry{
		{Timestamp: "2026-08-26T10:00:00Z", Message: "INFO started server on :8080"},
		{Timestamp: "2026-08-26T10:00:05Z", Message: "ERROR dial tcp 10.0.0.5:5432: connection refused"},
		{Timestamp: "2026-08-26T10:00:06Z", Message: `{"level":"error","msg":"db unreachable"}`},
		{Timestamp: "2026-08-26T10:00:07Z", Message: "FATAL shutting down"},
	}

	parsed := ParseErrors(entries)
	require.Len(t, parsed, 3)
	assert.Equal(t, "error", parsed[0].Level)
	assert.Contains(t, parsed[0].Message, "connection refused")
	assert.Equal(t, "fatal", parsed[2].Level)
}

func TestParseErrors_MultilineEntry(t *testing.T) {
	entries := []models.LogEntry{
		{Message: "INFO ok\nERROR boom\nINFO fine"},
	}
	parsed := ParseErrors(entries)
	require.Len(t, parsed, 1)
	assert.Equal(t, "ERROR boom", parsed[0].Message)
}

func TestParseErrorsFromText(t *testing.T) {
	assert.Nil(t, ParseErrorsFromText(""))

	parsed := ParseErrorsFromText("panic: runtime error: invalid memory address\ngoroutine 1 [running]:")
	require.NotEmpty(t, parsed)
	assert.Contains(t, parsed[0].Message, "panic")
}
