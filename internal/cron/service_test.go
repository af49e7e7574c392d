package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) (*Service, *prometheus.Registry) {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return svc, reg
}

func runsWithOutcome(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != "shopflow_cron_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestRunCycleRunsEveryJobAndCombinesErrors(t *testing.T) {
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", err: errors.New("boom")}
	worse := &testJob{name: "worse", err: errors.New("bang")}
	lock := &fakeLock{}
	svc, reg := newTestService(t, lock, ok, bad, worse)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorContains(t, err, "bad: boom")

	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, bad.runs)
	assert.Equal(t, 1, worse.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)

	assert.Equal(t, 2.0, runsWithOutcome(t, reg, metrics.CronOutcomeFailure))
	assert.Equal(t, 1.0, runsWithOutcome(t, reg, metrics.CronOutcomeSuccess))
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "payment_reconcile"}
	lock := &fakeLock{held: true}
	svc, reg := newTestService(t, lock, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)

	count, err := testutil.GatherAndCount(reg, "shopflow_cron_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1.0, runsWithOutcome(t, reg, metrics.CronOutcomeSkipped))
}

func TestRunCycleReportsLockErrors(t *testing.T) {
	job := &testJob{name: "payment_reconcile"}
	svc, _ := newTestService(t, &fakeLock{err: errors.New("redis down")}, job)

	require.Error(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "payment_reconcile"}
	svc, _ := newTestService(t, &fakeLock{}, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type panickyJob struct{}

func (panickyJob) Name() string { return "panicky" }

func (panickyJob) Run(context.Context) error { panic("nil map") }

func TestRunCycleIsolatesPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	lock := &fakeLock{}
	svc, _ := newTestService(t, lock, panickyJob{}, after)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "panicky: panic: nil map")
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, lock.releases)
}
