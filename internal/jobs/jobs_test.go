package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/amqp"
)

type budgetPayload struct {
	BudgetID int64 `json:"budgetId"`
}

func TestNewAndDecode(t *testing.T) {
	j, err := New(TypeBudgetCheck, 7, budgetPayload{BudgetID: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, j.ID)
	assert.Equal(t, int64(7), j.UserID)
	assert.False(t, j.EnqueuedAt.IsZero())

	var p budgetPayload
	require.NoError(t, j.Decode(&p))
	assert.Equal(t, int64(3), p.BudgetID)

	empty, err := New(TypeUserWelcome, 7, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Payload)
	assert.NoError(t, empty.Decode(&p))

	other, err := New(TypeUserWelcome, 7, nil)
	require.NoError(t, err)
	assert.NotEqual(t, empty.ID, other.ID)
}

func TestMessageRoundTrip(t *testing.T) {
	j, err := New(TypeBudgetCheck, 9, budgetPayload{BudgetID: 1})
	require.NoError(t, err)
	back := FromMessage(j.Message())
	assert.Equal(t, j.ID, back.ID)
	assert.Equal(t, j.Type, back.Type)
	assert.Equal(t, j.UserID, back.UserID)
	assert.JSONEq(t, string(j.Payload), string(back.Payload))
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher(nil)
	var got []int64
	d.Register(TypeBudgetCheck, func(_ context.Context, j Job) error {
		got = append(got, j.UserID)
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), Job{Type: TypeBudgetCheck, UserID: 4}))
	assert.Equal(t, []int64{4}, got)

	err := d.Dispatch(context.Background(), Job{Type: "unknown"})
	assert.ErrorContains(t, err, "no handler")
}

func TestInlineSwallowsHandlerErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDispatcher(logger)
	d.Register(TypeUserWelcome, func(context.Context, Job) error { return errors.New("smtp down") })

	q := NewInline(d, logger)
	err := q.Enqueue(context.Background(), Job{ID: "j1", Type: TypeUserWelcome})
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "smtp down")
}

type recordingPublisher struct {
	msgs []*amqp.JobMessage
	err  error
}

func (p *recordingPublisher) PublishJob(_ context.Context, m *amqp.JobMessage) error {
	p.msgs = append(p.msgs, m)
	return p.err
}

func TestBroker(t *testing.T) {
	p := &recordingPublisher{}
	q := NewBroker(p)
	j, err := New(TypeBudgetCheck, 2, nil)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(context.Background(), j))
	require.Len(t, p.msgs, 1)
	assert.Equal(t, j.ID, p.msgs[0].ID)
	assert.Equal(t, TypeBudgetCheck, p.msgs[0].Type)

	p.err = errors.New("circuit breaker is open")
	assert.Error(t, q.Enqueue(context.Background(), j))
}

func TestSubmitLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := &recordingPublisher{err: errors.New("broker down")}

	Submit(context.Background(), NewBroker(p), logger, TypeBudgetCheck, 1, nil)
	assert.Contains(t, buf.String(), "Job not enqueued")

	Submit(context.Background(), nil, logger, TypeBudgetCheck, 1, nil)
	Submit(context.Background(), Nop{}, logger, TypeBudgetCheck, 1, make(chan int))
	assert.Contains(t, buf.String(), "encode budget.check payload")
}
