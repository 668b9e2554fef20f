package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/models"
)

func TestScoreLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		want int
	}{
		{"fatal", "FATAL: out of memory", scoreFatal},
		{"panic", "panic: runtime error", scoreFatal},
		{"plain error", "2026-08-26 ERROR failed to connect", scoreError},
		{"json level", `{"level":"error","msg":"boom"}`, scoreError},
		{"logfmt level", "level=error msg=boom", scoreError},
		{"traceback", "Traceback (most recent call last):", scoreTraceback},
		{"java exception", "java.lang.NullPointerException: oops", scoreException},
		{"caused by", "Caused by: java.io.IOException", scoreCausedBy},
		{"probe", "Liveness probe failed: HTTP probe failed with statuscode: 503", scoreProbeFailed},
		{"stack frame", "	at com.example.Main.run(Main.java:42)", scoreStackFrame},
		{"warn", "WARN connection slow", scoreWarn},
		{"plain", "started server on :8080", scoreDefault},
		{"blank", "   ", scoreNoise},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ScoreLine(tc.line))
		})
	}
}

func TestScoreLine_NoiseFilters(t *testing.T) {
	t.Run("spring banner", func(t *testing.T) {
		assert.Equal(t, scoreNoise, ScoreLine(" :: Spring Boot ::        (v3.2.0)"))
	})
	t.Run("victorialogs advisory", func(t *testing.T) {
		assert.Equal(t, scoreNoise, ScoreLine("log entry is missing _msg field; using default"))
	})
	t.Run("config line with exception keyword", func(t *testing.T) {
		assert.Equal(t, scoreNoise, ScoreLine("default.production.exception.handler = class org.apache.kafka.DefaultHandler"))
	})
}

func TestSelectBestLine_ErrorBeatsBannerAndConfig(t *testing.T) {
	entries := []models.LogEntry{
		{Message: " :: Spring Boot ::        (v3.2.0)"},
		{Message: "default.production.exception.handler = class X"},
		{Message: "ERROR failed to connect to db-primary:5432: connection refused"},
		{Message: "started background sweeper"},
	}
	got := SelectBestLine(entries)
	assert.Contains(t, got, "connection refused")
}

func TestSelectBestLine_FallbackToNonNoise(t *testing.T) {
	entries := []models.LogEntry{
		{Message: " :: Spring Boot ::        (v3.2.0)"},
		{Message: "listening on :8080"},
	}
	assert.Equal(t, "listening on :8080", SelectBestLine(entries))
}

func TestSelectBestLine_Truncates(t *testing.T) {
	entries := []models.LogEntry{{Message: "ERROR " + strings.Repeat("x", 300)}}
	assert.Len(t, SelectBestLine(entries), maxLineLength)
}

func TestSelectSnippet_AnchorsOnLatestHighSignal(t *testing.T) {
	entries := []models.LogEntry{
		{Timestamp: "2026-08-26T10:00:00Z", Message: "ERROR early failure"},
		{Timestamp: "2026-08-26T10:05:00Z", Message: "request served in 12ms"},
		{Timestamp: "2026-08-26T10:06:00Z", Message: "shutting down\nERROR late failure: broken pipe\ndetail line 1\ndetail line 2"},
	}
	snippet := SelectSnippet(entries)
	require.NotEmpty(t, snippet)

	joined := strings.Join(snippet, "\n")
	assert.Contains(t, joined, "late failure")
	assert.NotContains(t, joined, "early failure", "anchor must be the most recent high-signal line")
	assert.Contains(t, snippet[0], "10:06:00Z", "lines carry HH:MM:SSZ prefixes")
}

func TestSelectSnippet_ExtendsThroughStackTrace(t *testing.T) {
	trace := strings.Join([]string{
		"ERROR request handler crashed",
		"java.lang.IllegalStateException: no session",
		"	at com.example.Handler.serve(Handler.java:10)",
		"	at com.example.Server.run(Server.java:99)",
		"Caused by: java.io.IOException: stream closed",
		"	at com.example.IO.read(IO.java:5)",
		"... 12 more",
	}, "\n")
	entries := []models.LogEntry{{Message: trace}}

	snippet := SelectSnippet(entries)
	joined := strings.Join(snippet, "\n")
	assert.Contains(t, joined, "IllegalStateException")
	assert.Contains(t, joined, "Caused by")
	assert.LessOrEqual(t, len(snippet), snippetMaxLines)
}

func TestSelectSnippet_FallbackTailSkipsNoise(t *testing.T) {
	entries := []models.LogEntry{
		{Message: " :: Spring Boot ::        (v3.2.0)"},
		{Message: "server.port = 8080"},
		{Message: "ready to serve traffic"},
	}
	snippet := SelectSnippet(entries)
	require.Len(t, snippet, 1)
	assert.Equal(t, "ready to serve traffic", snippet[0])
}
