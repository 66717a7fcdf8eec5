package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/custody-vault/internal/jobs"
	"github.com/odyssey-erp/custody-vault/internal/vault"
	"github.com/odyssey-erp/custody-vault/jobs"
)

type discardQueue struct{ enqueued int }

func (q *discardQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.enqueued++
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type failingSource struct{}

func (failingSource) Status(ctx context.Context) (vault.ClockStatus, error) {
	return vault.ClockStatus{}, errors.New("store unavailable")
}

func TestLiquidationWatchThroughputAndReliability(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	v, _ := newFundedVault(t, 100)
	if _, err := v.BeginLiquidation(ctx, liqUser); err != nil {
		t.Fatalf("begin liquidation: %v", err)
	}

	queue := &discardQueue{}
	watch := jobs.NewLiquidationWatchJob(v, queue, rdb, 2*time.Hour, logger, metrics)
	for i := 0; i < 60; i++ {
		if err := watch.Handle(ctx, nil); err != nil {
			t.Fatalf("unexpected watch error: %v", err)
		}
	}
	// Repeated ticks for one deadline raise a single alert.
	if queue.enqueued != 1 {
		t.Fatalf("expected one approaching alert, got %d", queue.enqueued)
	}

	// Inject a couple of failures to ensure alerts fire correctly.
	broken := jobs.NewLiquidationWatchJob(failingSource{}, queue, rdb, time.Minute, logger, metrics)
	for i := 0; i < 3; i++ {
		if err := broken.Handle(ctx, nil); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "vault_jobs_total", map[string]string{"job": jobs.TaskLiquidationWatch, "status": "success"})
	failure := metricValue(t, families, "vault_jobs_total", map[string]string{"job": jobs.TaskLiquidationWatch, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no watch executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("watch success ratio too low: %f", ratio)
	}

	watchDuration := histogramMean(t, families, "vault_job_duration_seconds", map[string]string{"job": jobs.TaskLiquidationWatch})
	if watchDuration > 0.5 {
		t.Fatalf("watch duration above budget: %f", watchDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
