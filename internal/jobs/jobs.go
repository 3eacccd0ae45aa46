// Package jobs runs deferred work such as budget checks and welcome emails,
// either inline within the request or through the AMQP broker.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/amqp"
)

// Job types.
const (
	TypeBudgetCheck = "budget.check"
	TypeUserWelcome = "user.welcome"
)

type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	UserID     int64           `json:"userId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// New builds a job with a fresh ID. payload may be nil.
func New(jobType string, userID int64, payload any) (Job, error) {
	j := Job{ID: uuid.NewString(), Type: jobType, UserID: userID, EnqueuedAt: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("encode %s payload: %w", jobType, err)
		}
		j.Payload = raw
	}
	return j, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

func (j Job) Message() *amqp.JobMessage {
	return &amqp.JobMessage{ID: j.ID, Type: j.Type, UserID: j.UserID, Payload: j.Payload, Timestamp: j.EnqueuedAt}
}

func FromMessage(m *amqp.JobMessage) Job {
	return Job{ID: m.ID, Type: m.Type, UserID: m.UserID, Payload: m.Payload, EnqueuedAt: m.Timestamp}
}

type Handler func(ctx context.Context, j Job) error

// Dispatcher routes jobs to the handler registered for their type.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: map[string]Handler{}, logger: logger}
}

func (d *Dispatcher) Register(jobType string, h Handler) {
	d.handlers[jobType] = h
}

func (d *Dispatcher) Dispatch(ctx context.Context, j Job) error {
	h, ok := d.handlers[j.Type]
	if !ok {
		return fmt.Errorf("no handler for job type %q", j.Type)
	}
	start := time.Now()
	if err := h(ctx, j); err != nil {
		return fmt.Errorf("job %s (%s): %w", j.ID, j.Type, err)
	}
	d.logger.DebugContext(ctx, "Job completed", "job_id", j.ID, "job_type", j.Type,
		"user_id", j.UserID, "duration", time.Since(start))
	return nil
}

// Queue accepts jobs for execution.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
}

// Inline runs each job synchronously on Enqueue. Handler failures are
// logged and swallowed so the enqueuing request still succeeds.
type Inline struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewInline(d *Dispatcher, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{dispatcher: d, logger: logger}
}

func (q *Inline) Enqueue(ctx context.Context, j Job) error {
	if err := q.dispatcher.Dispatch(ctx, j); err != nil {
		q.logger.ErrorContext(ctx, "Inline job failed", "job_id", j.ID, "job_type", j.Type, "error", err)
	}
	return nil
}

// Publisher is the broker side of an AMQP queue.
type Publisher interface {
	PublishJob(ctx context.Context, msg *amqp.JobMessage) error
}

// Broker hands jobs to the AMQP broker for the worker binary to run.
type Broker struct {
	publisher Publisher
}

func NewBroker(p Publisher) *Broker {
	return &Broker{publisher: p}
}

func (q *Broker) Enqueue(ctx context.Context, j Job) error {
	if err := q.publisher.PublishJob(ctx, j.Message()); err != nil {
		return fmt.Errorf("publish job %s: %w", j.Type, err)
	}
	return nil
}

// Nop drops every job.
type Nop struct{}

func (Nop) Enqueue(context.Context, Job) error { return nil }

// Submit builds and enqueues a job, logging instead of failing. Callers use
// it for side work whose failure must not fail the request.
func Submit(ctx context.Context, q Queue, logger *slog.Logger, jobType string, userID int64, payload any) {
	if q == nil {
		return
	}
	j, err := New(jobType, userID, payload)
	if err == nil {
		err = q.Enqueue(ctx, j)
	}
	if err != nil {
		logger.WarnContext(ctx, "Job not enqueued", "job_type", jobType, "user_id", userID, "error", err)
	}
}
