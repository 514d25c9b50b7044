package internal

import (
	"log"

	"github.com/robfig/cron/v3"
)

// StartCron runs a fresh batch on schedule. Outputs that already exist are
// skipped, so each run only picks up files added since the last one.
func StartCron(schedule string, newProcessor func() (*Processor, error)) (*cron.Cron, error) {
	c := cron.New()

	log.Printf("Starting CRON job to process files (schedule=%s)", schedule)
	_, err := c.AddFunc(schedule, func() {
		processor, err := newProcessor()
		if err != nil {
			log.Printf("Failed to create processor: %v", err)
			return
		}
		if err := processor.Run(); err != nil {
			log.Printf("Errors occurred: %v", err)
		}
	})

	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
