package camunda

import (
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// WorkerOptions controls how many jobs a worker holds and for how long.
// Zero Concurrency means one handler goroutine per active job.
type WorkerOptions struct {
	MaxJobsActive int
	Timeout       time.Duration
	Concurrency   int
	PollInterval  time.Duration
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.MaxJobsActive <= 0 {
		o.MaxJobsActive = 1
	}
	if o.Concurrency <= 0 || o.Concurrency > o.MaxJobsActive {
		o.Concurrency = o.MaxJobsActive
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	return o
}

// OpenWorker starts polling taskType and hands every activated job to handler.
// The caller owns the returned worker and must Close it on shutdown.
func (c *Client) OpenWorker(taskType string, opts WorkerOptions, handler worker.JobHandler) worker.JobWorker {
	opts = opts.withDefaults()
	return c.client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		Name(fmt.Sprintf("%s-worker", taskType)).
		MaxJobsActive(opts.MaxJobsActive).
		Concurrency(opts.Concurrency).
		Timeout(opts.Timeout).
		PollInterval(opts.PollInterval).
		Open()
}
