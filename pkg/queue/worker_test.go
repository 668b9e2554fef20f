package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkyaio/tarka/pkg/config"
	"github.com/tarkyaio/tarka/pkg/models"
	"github.com/tarkyaio/tarka/pkg/pipeline"
)

type fakeMsg struct {
	data       []byte
	delivered  uint64
	acked      int
	naked      int
	inProgress int
}

func (f *fakeMsg) Data() []byte     { return f.data }
func (f *fakeMsg) Ack() error       { f.acked++; return nil }
func (f *fakeMsg) Nak() error       { f.naked++; return nil }
func (f *fakeMsg) InProgress() error { f.inProgress++; return nil }
func (f *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: f.delivered}, nil
}

type fakeDLQ struct {
	payloads []models.DLQPayload
}

func (f *fakeDLQ) PublishDLQ(_ context.Context, payload models.DLQPayload) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeInvestigator struct {
	err    error
	panics bool
	jobs   []*models.AlertJob
}

func (f *fakeInvestigator) Investigate(_ context.Context, job *models.AlertJob) error {
	f.jobs = append(f.jobs, job)
	if f.panics {
		panic("stage blew up")
	}
	return f.err
}

func newTestWorker(inv *fakeInvestigator, dlq *fakeDLQ) *Worker {
	return &Worker{
		dlq:          dlq,
		investigator: inv,
		qcfg:         config.DefaultQueueConfig(),
		wcfg:         config.DefaultWorkerConfig(),
		logger:       slog.Default(),
	}
}

func jobBytes(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(models.AlertJob{
		Alert: models.AlertInstance{Labels: map[string]string{"alertname": "KubeJobFailed"}},
	})
	require.NoError(t, err)
	return data
}

func TestHandle_SuccessAcks(t *testing.T) {
	inv := &fakeInvestigator{}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: jobBytes(t), delivered: 1}

	w.handle(context.Background(), msg)

	assert.Equal(t, 1, msg.acked)
	assert.Zero(t, msg.naked)
	assert.Empty(t, dlq.payloads)
	require.Len(t, inv.jobs, 1)
	assert.Equal(t, "KubeJobFailed", inv.jobs[0].Alert.AlertName())
}

func TestHandle_FailureNaksForRedelivery(t *testing.T) {
	inv := &fakeInvestigator{err: errors.New("prometheus unreachable")}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: jobBytes(t), delivered: 1}

	w.handle(context.Background(), msg)

	assert.Zero(t, msg.acked)
	assert.Equal(t, 1, msg.naked)
	assert.Empty(t, dlq.payloads)
}

func TestHandle_EvidenceGapsNakForRedelivery(t *testing.T) {
	// A degraded run publishes its report but still reports the gap; the
	// message must redeliver so a later attempt can fill the holes.
	inv := &fakeInvestigator{err: fmt.Errorf(
		"%w: 9 recorded, first: collect.metrics.throttling: 503", pipeline.ErrEvidenceIncomplete)}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: jobBytes(t), delivered: 1}

	w.handle(context.Background(), msg)

	assert.Zero(t, msg.acked)
	assert.Equal(t, 1, msg.naked)
	assert.Empty(t, dlq.payloads)
}

func TestHandle_ExhaustedRetriesDeadLetterAndAck(t *testing.T) {
	inv := &fakeInvestigator{err: errors.New("still failing")}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: jobBytes(t), delivered: uint64(w.qcfg.MaxDeliver)}

	w.handle(context.Background(), msg)

	assert.Equal(t, 1, msg.acked, "exhausted message must be removed from the stream")
	assert.Zero(t, msg.naked)
	require.Len(t, dlq.payloads, 1)
	assert.Equal(t, models.DLQJobFailed, dlq.payloads[0].Kind)
	assert.Equal(t, w.qcfg.MaxDeliver, dlq.payloads[0].DeliveryCount)
	require.NotNil(t, dlq.payloads[0].Job)
	assert.Equal(t, "KubeJobFailed", dlq.payloads[0].Job.Alert.AlertName())
}

func TestHandle_PoisonMessageDeadLetterAndAck(t *testing.T) {
	inv := &fakeInvestigator{}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: []byte("{not json"), delivered: 1}

	w.handle(context.Background(), msg)

	assert.Equal(t, 1, msg.acked)
	assert.Empty(t, inv.jobs, "poison message never reaches the pipeline")
	require.Len(t, dlq.payloads, 1)
	assert.Equal(t, models.DLQPoisonMessage, dlq.payloads[0].Kind)
	assert.Equal(t, "{not json", dlq.payloads[0].Raw)
}

func TestHandle_PoisonRawTruncatedTo4096(t *testing.T) {
	inv := &fakeInvestigator{}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	data := append([]byte("{not json "), bytes.Repeat([]byte("x"), 8192)...)
	msg := &fakeMsg{data: data, delivered: 1}

	w.handle(context.Background(), msg)

	require.Len(t, dlq.payloads, 1)
	raw := dlq.payloads[0].Raw
	assert.Len(t, raw, dlqRawLimit)
	assert.Equal(t, string(data[:dlqRawLimit]), raw)
}

func TestHandle_PanicNaksWithoutDeadLetter(t *testing.T) {
	inv := &fakeInvestigator{panics: true}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: jobBytes(t), delivered: 1}

	w.handle(context.Background(), msg)

	assert.Zero(t, msg.acked)
	assert.Equal(t, 1, msg.naked)
	assert.Empty(t, dlq.payloads)
}

func TestHandle_PanicOnLastDeliveryDeadLetters(t *testing.T) {
	inv := &fakeInvestigator{panics: true}
	dlq := &fakeDLQ{}
	w := newTestWorker(inv, dlq)
	msg := &fakeMsg{data: jobBytes(t), delivered: uint64(w.qcfg.MaxDeliver)}

	w.handle(context.Background(), msg)

	assert.Equal(t, 1, msg.acked)
	require.Len(t, dlq.payloads, 1)
	assert.Contains(t, dlq.payloads[0].Error, "investigation panic")
}
