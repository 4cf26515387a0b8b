package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/ward-api/internal/model"
	"github.com/jwalitptl/ward-api/internal/repository"
	"github.com/jwalitptl/ward-api/pkg/logger"
	"github.com/jwalitptl/ward-api/pkg/messaging"
	"github.com/jwalitptl/ward-api/pkg/metrics"
)

type memoryOutbox struct {
	mu            sync.Mutex
	events        []*model.OutboxEvent
	deletedBefore time.Time
}

func (r *memoryOutbox) add(event *model.OutboxEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *memoryOutbox) ProcessPending(ctx context.Context, limit, maxAttempts int, fn func(context.Context, *model.OutboxEvent) error) (repository.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result repository.BatchResult
	for _, e := range r.events {
		if limit == 0 {
			break
		}
		if e.Status != model.OutboxStatusPending {
			continue
		}
		limit--
		if err := fn(ctx, e); err != nil {
			e.Attempts++
			msg := err.Error()
			e.LastError = &msg
			if e.Attempts >= maxAttempts {
				e.Status = model.OutboxStatusFailed
				result.Failed++
			} else {
				result.Retried++
			}
			continue
		}
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		result.Processed++
	}
	return result, nil
}

func (r *memoryOutbox) CountPending(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Status == model.OutboxStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *memoryOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedBefore = before
	var kept []*model.OutboxEvent
	var n int64
	for _, e := range r.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

type flakyPublisher struct {
	failures int
	calls    int
	sent     []messaging.Message
}

func (p *flakyPublisher) Publish(_ context.Context, msg messaging.Message) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func newEvent(t *testing.T, eventType string) *model.OutboxEvent {
	t.Helper()
	e, err := model.NewOutboxEvent(eventType, model.PatientEvent{PatientID: 1, AdmissionID: 1})
	require.NoError(t, err)
	return e
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		MaxAttempts:   2,
	}
}

func TestNewOutboxProcessor_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(&memoryOutbox{}, &flakyPublisher{}, cfg, logger.Nop(), metrics.New("ward"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BatchSize")
}

func TestProcessBatch_PublishesEnvelope(t *testing.T) {
	repo := &memoryOutbox{}
	event := newEvent(t, model.EventPatientAdmitted)
	repo.add(event)

	pub := &flakyPublisher{failures: 1}
	m := metrics.New("ward")
	p, err := NewOutboxProcessor(repo, pub, testConfig(), logger.Nop(), m)
	require.NoError(t, err)

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repository.BatchResult{Processed: 1}, result)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, event.ID.String(), pub.sent[0].ID)
	assert.Equal(t, model.EventPatientAdmitted, pub.sent[0].Type)
	assert.JSONEq(t, string(event.Payload), string(pub.sent[0].Payload))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsProcessed))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.OutboxQueueSize))
}

func TestProcessBatch_FailsAfterMaxAttempts(t *testing.T) {
	repo := &memoryOutbox{}
	repo.add(newEvent(t, model.EventPatientDischarged))

	pub := &flakyPublisher{failures: 100}
	m := metrics.New("ward")
	p, err := NewOutboxProcessor(repo, pub, testConfig(), logger.Nop(), m)
	require.NoError(t, err)

	result, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repository.BatchResult{Retried: 1}, result)
	assert.Equal(t, 2, pub.calls, "each pass retries the publish")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxQueueSize))

	result, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repository.BatchResult{Failed: 1}, result)

	assert.Equal(t, model.OutboxStatusFailed, repo.events[0].Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventPatientDischarged)))
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOutboxCleanupWorker(t *testing.T) {
	repo := &memoryOutbox{}
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(6 * 24 * time.Hour)
	payload := json.RawMessage(`{}`)
	repo.events = []*model.OutboxEvent{
		{ID: uuid.New(), Payload: payload, Status: model.OutboxStatusProcessed, ProcessedAt: &old},
		{ID: uuid.New(), Payload: payload, Status: model.OutboxStatusProcessed, ProcessedAt: &recent},
		{ID: uuid.New(), Payload: payload, Status: model.OutboxStatusFailed},
	}

	m := metrics.New("ward")
	w := NewOutboxCleanupWorker(repo, 7*24*time.Hour, time.Hour, logger.Nop(), m)
	w.now = func() time.Time { return old.Add(8 * 24 * time.Hour) }

	n, err := w.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, repo.events, 2)
	assert.Equal(t, old.Add(24*time.Hour), repo.deletedBefore)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsDeleted))
}
