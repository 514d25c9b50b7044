package internal

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// NewReloader runs reload once, then every interval. The first run must
// succeed; later failures are left to reload to report.
func NewReloader(interval time.Duration, reload func() error) (gocron.Scheduler, error) {
	if err := reload(); err != nil {
		return nil, fmt.Errorf("initial run of job failed: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(reload),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	scheduler.Start()
	return scheduler, nil
}
