package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
)

// IntegrityChecker is the part of the ledger service the integrity job needs.
type IntegrityChecker interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
	CheckIntegrity(ctx context.Context, companyID int64) (ledger.IntegrityReport, error)
}

// LedgerIntegrityJob reports vouchers that break balance or settlement
// invariants. It never mutates data.
type LedgerIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run checks the companies selected by payload and returns their reports.
func (j *LedgerIntegrityJob) Run(ctx context.Context, payload LedgerIntegrityPayload) (reports []ledger.IntegrityReport, resultErr error) {
	start := time.Now()
	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	companies := []int64{payload.CompanyID}
	if payload.CompanyID == 0 {
		ids, err := j.Checker.CompanyIDs(ctx)
		if err != nil {
			logger.Error("list companies", slog.Any("error", err))
			return nil, err
		}
		companies = ids
	}

	anomalies := 0
	for _, companyID := range companies {
		report, err := j.Checker.CheckIntegrity(ctx, companyID)
		if err != nil {
			logger.Error("integrity check failed", slog.Int64("company_id", companyID), slog.Any("error", err))
			return reports, err
		}
		j.metrics().AddAnomalies("unbalanced", companyID, len(report.Unbalanced))
		j.metrics().AddAnomalies("negative_remain", companyID, len(report.NegativeRemain))
		anomalies += report.Anomalies()
		reports = append(reports, report)
	}

	logger.Info("completed ledger integrity check",
		slog.Int("companies", len(companies)),
		slog.Int("anomalies", anomalies),
		slog.Duration("duration", time.Since(start)),
	)
	return reports, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
