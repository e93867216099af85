package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbmon/internal/config"
	"github.com/alanyoungcy/arbmon/internal/domain"
)

// Janitor enforces the retention policy: aged opportunities and cycle logs
// are optionally copied to cold storage, then deleted from the database.
type Janitor struct {
	archiver      domain.Archiver // nil disables archival, rows are just deleted
	opportunities domain.OpportunityStore
	cycleLogs     domain.CycleLogStore
	audit         domain.AuditStore
	retentionDays int
	logger        *slog.Logger
}

// NewJanitor creates a Janitor. Pass a nil archiver to delete without
// archiving.
func NewJanitor(
	archiver domain.Archiver,
	opportunities domain.OpportunityStore,
	cycleLogs domain.CycleLogStore,
	audit domain.AuditStore,
	cfg config.MonitorConfig,
	logger *slog.Logger,
) *Janitor {
	return &Janitor{
		archiver:      archiver,
		opportunities: opportunities,
		cycleLogs:     cycleLogs,
		audit:         audit,
		retentionDays: cfg.RetentionDays,
		logger:        logger.With(slog.String("component", "janitor")),
	}
}

// Run executes a single retention pass against the current cutoff.
func (j *Janitor) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(j.retentionDays) * 24 * time.Hour)
	j.logger.InfoContext(ctx, "retention pass starting",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", j.retentionDays),
	)

	var oppsArchived, cyclesArchived int64
	if j.archiver != nil {
		var err error
		oppsArchived, err = j.archiver.ArchiveOpportunities(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archiving opportunities before %v: %w", cutoff, err)
		}
		cyclesArchived, err = j.archiver.ArchiveCycleLogs(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archiving cycle logs before %v: %w", cutoff, err)
		}
	}

	oppsDeleted, err := j.opportunities.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deleting opportunities before %v: %w", cutoff, err)
	}
	cyclesDeleted, err := j.cycleLogs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deleting cycle logs before %v: %w", cutoff, err)
	}
	auditDeleted, err := j.audit.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("deleting audit entries before %v: %w", cutoff, err)
	}

	if err := j.audit.Log(ctx, "retention_pass", map[string]any{
		"cutoff":                 cutoff,
		"opportunities_archived": oppsArchived,
		"cycle_logs_archived":    cyclesArchived,
		"opportunities_deleted":  oppsDeleted,
		"cycle_logs_deleted":     cyclesDeleted,
		"audit_entries_deleted":  auditDeleted,
	}); err != nil {
		j.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	j.logger.InfoContext(ctx, "retention pass complete",
		slog.Int64("opportunities_archived", oppsArchived),
		slog.Int64("cycle_logs_archived", cyclesArchived),
		slog.Int64("opportunities_deleted", oppsDeleted),
		slog.Int64("cycle_logs_deleted", cyclesDeleted),
		slog.Int64("audit_entries_deleted", auditDeleted),
	)
	return nil
}

// RunCron runs retention passes on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
//
// Example: "0 3 * * *" runs at 03:00 UTC every day.
func (j *Janitor) RunCron(ctx context.Context, cronExpr string) error {
	j.logger.InfoContext(ctx, "retention cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		j.logger.InfoContext(ctx, "waiting for next retention trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", time.Until(next)),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.InfoContext(ctx, "retention cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := j.Run(ctx); err != nil {
				j.logger.ErrorContext(ctx, "retention pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
