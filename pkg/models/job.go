package models

// AlertJob is the durable queue message for one pending investigation.
// Serialized as JSON on the JetStream subject.
type AlertJob struct {
	Alert        AlertInstance `json:"alert"`
	TimeWindow   string        `json:"time_window"`
	ReceivedAt   string        `json:"received_at"`
	ParentStatus string        `json:"parent_status,omitempty"`
}

// DLQKind tags dead-letter payloads.
type DLQKind string

// Dead-letter payload kinds.
const (
	DLQPoisonMessage DLQKind = "poison_message"
	DLQJobFailed     DLQKind = "job_failed"
)

// DLQPayload is the JSON body published to the dead-letter subject.
type DLQPayload struct {
	Kind          DLQKind   `json:"kind"`
	DeliveryCount int       `json:"delivery_count"`
	MaxDeliver    int       `json:"max_deliver"`
	Error         string    `json:"error,omitempty"`
	Raw           string    `json:"raw,omitempty"`
	Job           *AlertJob `json:"job,omitempty"`
}

// IngestStats is the webhook response counter set.
type IngestStats struct {
	Received             int `json:"received"`
	ProcessedFiring      int `json:"processed_firing"`
	SkippedResolved      int `json:"skipped_resolved"`
	SkippedAllowlist     int `json:"skipped_allowlist"`
	SkippedAlreadyExists int `json:"skipped_already_exists"`
	StoredNew            int `json:"stored_new"`
	Errors               int `json:"errors"`
}
