package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/custody-vault/internal/jobs"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

var deadline = time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	status vault.ClockStatus
	err    error
}

func (s *stubSource) Status(ctx context.Context) (vault.ClockStatus, error) {
	return s.status, s.err
}

type captureQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	queue []string
	err   error
}

func (q *captureQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	queue := QueueDefault
	for _, opt := range opts {
		if opt.Type() == asynq.QueueOpt {
			queue = opt.Value().(string)
		}
	}
	q.tasks = append(q.tasks, task)
	q.queue = append(q.queue, queue)
	return &asynq.TaskInfo{Type: task.Type(), Queue: queue}, nil
}

func (q *captureQueue) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return q.EnqueueContext(ctx, task, append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWatch(t *testing.T, source StatusSource, queue Enqueuer) *LiquidationWatchJob {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLiquidationWatchJob(source, queue, rdb, 24*time.Hour, quietLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func decodeNotify(t *testing.T, task *asynq.Task) LiquidationNotifyPayload {
	t.Helper()
	require.Equal(t, TaskLiquidationNotify, task.Type())
	var payload LiquidationNotifyPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	return payload
}

func TestWatchIgnoresIdleAndDistantClock(t *testing.T) {
	queue := &captureQueue{}
	source := &stubSource{status: vault.ClockStatus{Delay: 7 * 24 * time.Hour}}
	job := newWatch(t, source, queue)

	require.NoError(t, job.Handle(context.Background(), NewLiquidationWatchTask()))
	source.status = vault.ClockStatus{Armed: true, Deadline: deadline, Remaining: 48 * time.Hour}
	require.NoError(t, job.Handle(context.Background(), NewLiquidationWatchTask()))
	require.Empty(t, queue.tasks)
}

func TestWatchAlertsOncePerDeadlineAndKind(t *testing.T) {
	queue := &captureQueue{}
	source := &stubSource{status: vault.ClockStatus{Armed: true, Deadline: deadline, Remaining: time.Hour}}
	job := newWatch(t, source, queue)
	ctx := context.Background()

	require.NoError(t, job.Handle(ctx, NewLiquidationWatchTask()))
	require.NoError(t, job.Handle(ctx, NewLiquidationWatchTask()))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, AlertApproaching, decodeNotify(t, queue.tasks[0]).Kind)
	require.Equal(t, QueueAlerts, queue.queue[0])

	source.status = vault.ClockStatus{Armed: true, Triggered: true, Deadline: deadline}
	require.NoError(t, job.Handle(ctx, NewLiquidationWatchTask()))
	require.NoError(t, job.Handle(ctx, NewLiquidationWatchTask()))
	require.Len(t, queue.tasks, 2)
	payload := decodeNotify(t, queue.tasks[1])
	require.Equal(t, AlertTriggered, payload.Kind)
	require.True(t, payload.Deadline.Equal(deadline))

	// A re-armed clock has a new deadline and alerts again.
	source.status = vault.ClockStatus{Armed: true, Deadline: deadline.Add(time.Hour), Remaining: time.Minute}
	require.NoError(t, job.Handle(ctx, NewLiquidationWatchTask()))
	require.Len(t, queue.tasks, 3)
}

func TestWatchReleasesClaimWhenEnqueueFails(t *testing.T) {
	queue := &captureQueue{err: errors.New("redis down")}
	source := &stubSource{status: vault.ClockStatus{Armed: true, Triggered: true, Deadline: deadline}}
	job := newWatch(t, source, queue)
	ctx := context.Background()

	require.Error(t, job.Handle(ctx, NewLiquidationWatchTask()))
	queue.err = nil
	require.NoError(t, job.Handle(ctx, NewLiquidationWatchTask()))
	require.Len(t, queue.tasks, 1)
}

func TestWatchPropagatesSourceError(t *testing.T) {
	job := newWatch(t, &stubSource{err: errors.New("pg down")}, &captureQueue{})
	require.Error(t, job.Handle(context.Background(), NewLiquidationWatchTask()))
}

func TestNotifyJobEnqueuesMail(t *testing.T) {
	queue := &captureQueue{}
	job := &LiquidationNotifyJob{Queue: queue, AlertEmail: "ops@example.com", Logger: quietLogger()}
	task, err := NewLiquidationNotifyTask(LiquidationNotifyPayload{Kind: AlertArmed, Caller: "0xliq", Deadline: deadline, At: deadline.Add(-time.Hour)})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskTypeSendEmail, queue.tasks[0].Type())
	require.Equal(t, QueueAlerts, queue.queue[0])
	var mail SendEmailPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &mail))
	require.Equal(t, "ops@example.com", mail.To)
	require.Contains(t, mail.Subject, "liquidation begun")
	require.Contains(t, mail.Body, "0xliq")
}

func TestNotifyJobWithoutRecipient(t *testing.T) {
	queue := &captureQueue{}
	job := &LiquidationNotifyJob{Queue: queue, Logger: quietLogger()}
	task, err := NewLiquidationNotifyTask(LiquidationNotifyPayload{Kind: AlertTriggered, Deadline: deadline})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, queue.tasks)

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLiquidationNotify, []byte("{"))), asynq.SkipRetry)
}

func TestNotifierRecordsClockEventsOnly(t *testing.T) {
	queue := &captureQueue{}
	notifier := NewLiquidationNotifier(queue)
	ctx := context.Background()

	require.NoError(t, notifier.RecordEvent(ctx, vault.Event{Kind: vault.EventWithdrawn, Caller: "0xfull"}))
	require.NoError(t, notifier.RecordEvent(ctx, vault.Event{Kind: vault.EventLiquidationBegun, Caller: "0xliq", Deadline: deadline}))
	require.NoError(t, notifier.RecordEvent(ctx, vault.Event{Kind: vault.EventLiquidationCancelled, Caller: "0xfull"}))

	require.Len(t, queue.tasks, 2)
	require.Equal(t, AlertArmed, decodeNotify(t, queue.tasks[0]).Kind)
	require.Equal(t, AlertCancelled, decodeNotify(t, queue.tasks[1]).Kind)
}

func TestNotifierWiredIntoVault(t *testing.T) {
	queue := &captureQueue{}
	v, err := vault.New(context.Background(), vault.Params{
		Liquidate: []vault.Identity{"0xliq"},
		Delay:     time.Hour,
		Assets:    emptyPool{},
		Recorders: []vault.Recorder{NewLiquidationNotifier(queue)},
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	_, err = v.BeginLiquidation(context.Background(), "0xliq")
	require.NoError(t, err)
	require.Len(t, queue.tasks, 1)
	require.Equal(t, "0xliq", decodeNotify(t, queue.tasks[0]).Caller)
}

func TestMailHandler(t *testing.T) {
	task, err := NewSendEmailTask(SendEmailPayload{To: "ops@example.com", Subject: "s"})
	require.NoError(t, err)
	require.NoError(t, MailHandler{Logger: quietLogger()}.Handle(context.Background(), task))
	require.ErrorIs(t, MailHandler{}.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("x"))), asynq.SkipRetry)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"queue":"alerts","pending":0,"active":0,"retry":0},{"queue":"default","pending":0,"active":0,"retry":0}]`, rec.Body.String())
}

type emptyPool struct{}

func (emptyPool) BalanceOf(ctx context.Context, asset vault.Asset) (uint64, error) { return 0, nil }

func (emptyPool) Transfer(ctx context.Context, asset vault.Asset, amount uint64, to vault.Identity) error {
	return nil
}
