package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

const paymentReconcileJobName = "payment_reconcile"

type paymentSweeper interface {
	Sweep(ctx context.Context) (payments.SweepReport, error)
}

// NewPaymentReconcileJob confirms or expires QR attempts nobody came back for.
func NewPaymentReconcileJob(logg *logger.Logger, sweeper paymentSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("payment sweeper required")
	}
	return &paymentReconcileJob{logg: logg, sweeper: sweeper}, nil
}

type paymentReconcileJob struct {
	logg    *logger.Logger
	sweeper paymentSweeper
}

func (j *paymentReconcileJob) Name() string { return paymentReconcileJobName }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	report, err := j.sweeper.Sweep(ctx)
	if report.Checked == 0 && err == nil {
		j.logg.Debug(ctx, "cron.payment_reconcile: nothing pending")
		return nil
	}
	if err != nil {
		return fmt.Errorf("payment sweep (%d checked, %d settled): %w", report.Checked, report.Settled, err)
	}
	return nil
}
