package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	jobmetrics "github.com/odyssey-erp/odyssey-fulfillment/internal/jobs"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/testing/memstore"
	"github.com/odyssey-erp/odyssey-fulfillment/jobs"
)

func TestDeletionRetryThroughputAndReliability(t *testing.T) {
	ctx := context.Background()
	e := memstore.NewEngine(start)
	lot := newLot(t, e, 1000)

	const orders = 30
	ids := make([]int64, 0, orders)
	for range orders {
		order := newOrder(t, e, lot.ID, 5)
		if _, err := e.Deliveries.RecordDelivery(ctx, delivery.RecordDeliveryInput{
			OrderID:           order.ID,
			LineItemID:        order.Items[0].ID,
			QuantityDelivered: 5,
		}, staff); err != nil {
			t.Fatalf("deliver order %d: %v", order.ID, err)
		}
		ids = append(ids, order.ID)
	}
	if got := e.Store.Lot(lot.ID).QuantityAvailable; got != 850 {
		t.Fatalf("available after deliveries = %v, want 850", got)
	}

	e.Store.Fail("DeleteInvoices", errors.New("invoice store offline"))
	for _, id := range ids {
		_, err := e.Orders.DeleteOrder(ctx, id, sales.DeleteOptions{Confirm: true}, staff)
		var stepErr *sales.StepError
		if !errors.As(err, &stepErr) {
			t.Fatalf("delete order %d: expected step error, got %v", id, err)
		}
	}
	if got := len(e.Retries.Scheduled()); got != orders {
		t.Fatalf("scheduled retries = %d, want %d", got, orders)
	}

	reg := prometheus.NewRegistry()
	job := jobs.NewDeletionJob(e.Orders, nil, jobmetrics.NewMetrics(reg))

	// Retries fired while the store is still down fail and stay retryable.
	for _, id := range ids[:3] {
		task, err := jobs.NewDeletionRetryTask(id)
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		if err := job.HandleRetry(ctx, task); err == nil {
			t.Fatal("expected retry to fail while the store is down")
		}
	}

	e.Store.Heal("DeleteInvoices")
	for _, id := range e.Retries.Scheduled() {
		task, err := jobs.NewDeletionRetryTask(id)
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		if err := job.HandleRetry(ctx, task); err != nil {
			t.Fatalf("retry order %d: %v", id, err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskDeletionRetry, "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskDeletionRetry, "status": "failure"})
	if success != orders || failure != 3 {
		t.Fatalf("retry runs success=%v failure=%v", success, failure)
	}
	if mean := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": jobs.TaskDeletionRetry}); mean > 0.5 {
		t.Fatalf("retry duration above budget: %f", mean)
	}

	// Restoration ran exactly once per order despite the repeated attempts.
	if got := e.Store.Lot(lot.ID).QuantityAvailable; got != 1000 {
		t.Fatalf("available after deletions = %v, want 1000", got)
	}

	e.Clock.Advance(time.Hour)
	found, finished, err := e.Orders.ReconcileDeletions(ctx, time.Minute)
	if err != nil || found != 0 || finished != 0 {
		t.Fatalf("reconcile after retries found=%d finished=%d err=%v", found, finished, err)
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
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
