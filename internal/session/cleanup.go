package session

import (
	"context"
	"os"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultCleanupSpec = "@hourly"

// Cleaner purges expired refresh sessions on a cron schedule.
type Cleaner struct {
	svc    *Service
	cron   *cron.Cron
	spec   string
	logger *zap.SugaredLogger
}

// CleanupSpecFromEnv reads SESSION_CLEANUP_SPEC, defaulting to hourly.
func CleanupSpecFromEnv() string {
	if v := os.Getenv("SESSION_CLEANUP_SPEC"); v != "" {
		return v
	}
	return defaultCleanupSpec
}

func NewCleaner(svc *Service, spec string, logger *zap.SugaredLogger) *Cleaner {
	if spec == "" {
		spec = defaultCleanupSpec
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cleaner{
		svc:    svc,
		cron:   cron.New(cron.WithLogger(cron.DiscardLogger)),
		spec:   spec,
		logger: logger,
	}
}

// Start registers the purge job and launches the scheduler.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.spec, func() { c.run(context.Background()) }); err != nil {
		return err
	}
	c.cron.Start()
	c.logger.Infow("session cleanup scheduled", "spec", c.spec)
	return nil
}

// Stop halts the scheduler and waits for a running purge to finish or ctx to end.
func (c *Cleaner) Stop(ctx context.Context) {
	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (c *Cleaner) run(ctx context.Context) int64 {
	n, err := c.svc.PurgeExpired(ctx)
	if err != nil {
		c.logger.Warnw("purge refresh sessions failed", "err", err)
		return 0
	}
	if n > 0 {
		c.logger.Infow("purged refresh sessions", "count", n)
	}
	return n
}
