package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tarkyaio/tarka/pkg/models"
)

// PublishDLQ writes a dead-letter payload to the DLQ subject.
func (p *Publisher) PublishDLQ(ctx context.Context, payload models.DLQPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal DLQ payload: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.cfg.DLQSubject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.cfg.DLQSubject, err)
	}
	p.logger.Info("dead-lettered", "kind", payload.Kind, "delivery_count", payload.DeliveryCount)
	return nil
}
