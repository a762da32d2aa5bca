package main

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/mrveiss/autobot-sentinel/internal/conf"
	"github.com/mrveiss/autobot-sentinel/internal/data"
)

// StartEventPurgeCron schedules the nightly cleanup of aged breaker and
// service event rows. Runs at 03:30 so it never competes with daytime
// dashboard load. Returns nil when scheduling fails; the service keeps
// running without retention enforcement.
func StartEventPurgeCron(bc *conf.Bootstrap, events *data.EventLog, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	retentionDays := 14
	if bc.Data != nil && bc.Data.Database != nil && bc.Data.Database.EventRetentionDays > 0 {
		retentionDays = bc.Data.Database.EventRetentionDays
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("0 30 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		n, err := events.PurgeOlderThan(ctx, retention)
		if err != nil {
			helper.Errorw("msg", "event purge failed", "error", err)
			return
		}
		helper.Infow("msg", "event purge completed", "rows_deleted", n, "retention_days", retentionDays)
	})
	if err != nil {
		helper.Errorw("msg", "failed to register event purge cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Infof("event purge cron started: nightly at 03:30, retention %d days", retentionDays)

	return c
}
