package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fieldledger/fieldledger/internal/calendar"
	"github.com/fieldledger/fieldledger/internal/referral"
	"github.com/fieldledger/fieldledger/internal/web/jobs"
)

// Scheduled job types
const (
	JobSweepOverdue = "invoices.sweep_overdue"
	JobExpireQuotes = "quotes.expire_stale"
	JobPurge        = "maintenance.purge"
)

func (a *App) registerHandlers() {
	a.pool.RegisterHandler(referral.JobIssueReward, a.issueReward)
	a.pool.RegisterHandler(referral.JobApproveCommissions, a.approveCommissions)
	a.pool.RegisterHandler(JobSweepOverdue, a.sweepOverdue)
	a.pool.RegisterHandler(JobExpireQuotes, a.expireQuotes)
	a.pool.RegisterHandler(JobPurge, a.purge)
}

func (a *App) registerSchedules() error {
	schedules := []struct {
		spec    string
		jobType string
	}{
		{a.cfg.Jobs.OverdueSweepSpec, JobSweepOverdue},
		{a.cfg.Jobs.OverdueSweepSpec, JobExpireQuotes},
		{a.cfg.Jobs.CommissionSweepSpec, referral.JobApproveCommissions},
		{a.cfg.Jobs.PurgeSpec, JobPurge},
	}
	for _, s := range schedules {
		if err := a.scheduler.Add(s.spec, a.cfg.Jobs.Queue, s.jobType, nil); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) issueReward(ctx context.Context, job *jobs.Job) error {
	id, err := job.UUID("referral_id")
	if err != nil {
		return jobs.Permanent(err)
	}
	err = a.Referrals.IssueReward(ctx, id, job.FinalAttempt())
	if errors.Is(err, referral.ErrRefundRejected) {
		return jobs.Permanent(err)
	}
	return err
}

func (a *App) approveCommissions(ctx context.Context, job *jobs.Job) error {
	n, err := a.Referrals.ApproveCommissions(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("commissions approved", zap.Int64("count", n))
	return nil
}

func (a *App) sweepOverdue(ctx context.Context, job *jobs.Job) error {
	n, err := a.Invoices.SweepOverdue(ctx, calendar.Today())
	if err != nil {
		return err
	}
	a.logger.Info("overdue invoices swept", zap.Int("count", n))
	return nil
}

func (a *App) expireQuotes(ctx context.Context, job *jobs.Job) error {
	n, err := a.Quotes.ExpireStale(ctx, calendar.Today())
	if err != nil {
		return err
	}
	a.logger.Info("stale quotes expired", zap.Int64("count", n))
	return nil
}

func (a *App) purge(ctx context.Context, job *jobs.Job) error {
	retention := a.cfg.Jobs.Retention
	jobsPurged, err := a.queue.PurgeCompleted(ctx, retention)
	if err != nil {
		return err
	}
	eventsPurged, err := a.Billing.PurgeEvents(ctx, retention)
	if err != nil {
		return err
	}
	a.logger.Info("retention purge finished",
		zap.Int64("jobs", jobsPurged),
		zap.Int64("webhook_events", eventsPurged))
	return nil
}
