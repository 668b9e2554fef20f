// Package storage provides the report object store: a head/put contract with
// S3 and local-filesystem implementations. Keys follow
// <alertname>/<dedup_key>.<ext>; writes are unconditional puts, idempotent
// under key collision.
package storage

import (
	"context"
	"time"
)

// ObjectStore is the two-operation storage contract the core consumes.
type ObjectStore interface {
	// Head reports whether the key exists and, when it does, its
	// last-modified time. Implementations treat 404 and 403 responses both
	// as "does not exist": writes are namespaced by alertname prefix and
	// idempotent, so proceeding on a permission error is safe.
	Head(ctx context.Context, key string) (exists bool, lastModified *time.Time, err error)

	// PutMarkdown writes a Markdown report body.
	PutMarkdown(ctx context.Context, key, body string) error

	// PutJSON writes a structured analysis dump.
	PutJSON(ctx context.Context, key string, body []byte) error
}
