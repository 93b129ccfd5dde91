// Package schedule runs a task immediately and then at a fixed interval until cancelled.
package schedule

import (
	"context"
	"log"
	"time"
)

// Task is one unit of periodic work. It reports its own failures.
type Task func(ctx context.Context)

// Run executes task now and then every interval. Runs never overlap: the next interval
// starts when the previous run returns. Run blocks until ctx is cancelled.
func Run(ctx context.Context, name string, interval time.Duration, task Task) {
	if interval <= 0 {
		log.Printf("%s: invalid interval %s, not scheduling", name, interval)
		return
	}
	log.Printf("Starting %s every %s", name, interval)

	task(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s shutting down.", name)
			return
		case <-timer.C:
			task(ctx)
			timer.Reset(interval)
		}
	}
}
