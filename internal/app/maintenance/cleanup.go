package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/groupchoice/internal/services"
	"github.com/charlesng35/groupchoice/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultAuditSpec          = "@daily"
)

// job is one scheduled housekeeping routine.
type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// Cleaner coordinates background maintenance tasks such as pruning stale
// audit logs.
type Cleaner struct {
	audit     *services.AuditService
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	auditSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil audit service
// disables the retention job.
func NewCleaner(audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		audit:         audit,
		retention:     defaultAuditRetentionDays,
		auditSchedule: defaultAuditSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.audit != nil && c.retention > 0 {
		jobs = append(jobs, job{
			name: "audit_retention",
			spec: c.auditSchedule,
			run: func(ctx context.Context) error {
				removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
				if err != nil {
					return err
				}
				if removed > 0 {
					c.log.Info("audit logs pruned", zap.Int64("removed", removed), zap.Int("retention_days", c.retention))
				}
				return nil
			},
		})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.spec, func() {
			if err := j.run(context.Background()); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially and returns
// every failure combined.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		if err := j.run(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", j.name, err))
		}
	}
	return errs
}
