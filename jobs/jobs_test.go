package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

type stubChecker struct {
	companies []int64
	reports   map[int64]ledger.IntegrityReport
	checked   []int64
	err       error
}

func (s *stubChecker) CompanyIDs(ctx context.Context) ([]int64, error) {
	return s.companies, nil
}

func (s *stubChecker) CheckIntegrity(ctx context.Context, companyID int64) (ledger.IntegrityReport, error) {
	s.checked = append(s.checked, companyID)
	if s.err != nil {
		return ledger.IntegrityReport{}, s.err
	}
	return s.reports[companyID], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLedgerIntegrityJobChecksEveryCompany(t *testing.T) {
	checker := &stubChecker{
		companies: []int64{1, 2},
		reports: map[int64]ledger.IntegrityReport{
			1: {CompanyID: 1, Checked: 3},
			2: {CompanyID: 2, Checked: 5, Unbalanced: []int64{9}, NegativeRemain: []int64{4, 6}},
		},
	}
	job := NewLedgerIntegrityJob(checker, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	reports, err := job.Run(context.Background(), LedgerIntegrityPayload{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, checker.checked)
	require.Len(t, reports, 2)
	assert.Equal(t, 3, reports[1].Anomalies())
}

func TestLedgerIntegrityJobSingleCompany(t *testing.T) {
	checker := &stubChecker{companies: []int64{1, 2, 3}}
	job := NewLedgerIntegrityJob(checker, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{CompanyID: 3})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []int64{3}, checker.checked)
}

func TestLedgerIntegrityJobErrors(t *testing.T) {
	boom := errors.New("db down")
	job := NewLedgerIntegrityJob(&stubChecker{companies: []int64{1}, err: boom}, discardLogger(), jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)

	bad := asynq.NewTask(TaskLedgerIntegrity, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)

	var unconfigured *LedgerIntegrityJob
	require.Error(t, unconfigured.Handle(context.Background(), task))
}

type stubCleaner struct {
	olderThan time.Duration
	err       error
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.olderThan = olderThan
	return s.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	cleaner := &stubCleaner{}
	job := &IdempotencyCleanupJob{Store: cleaner, Logger: discardLogger(), Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, defaultIdempotencyMaxAge, cleaner.olderThan)

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{MaxAge: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Hour, cleaner.olderThan)

	cleaner.err = errors.New("locked")
	require.Error(t, job.Handle(context.Background(), task))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, discardLogger()).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var out queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, QueueDefault, out.Queue)
			assert.Equal(t, tc.pending, out.Pending)
		})
	}
}

func TestTaskPayloadsRoundTrip(t *testing.T) {
	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{CompanyID: 42})
	require.NoError(t, err)
	assert.Equal(t, TaskLedgerIntegrity, task.Type())
	assert.JSONEq(t, `{"company_id":42}`, string(task.Payload()))
}
