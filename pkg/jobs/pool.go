package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of work inside a scheduler tick, typically a single
// (user, lesson) attendance check.
type Task struct {
	ID  string
	Run func(context.Context) error
}

// PoolConfig configures worker behaviour.
type PoolConfig struct {
	Workers int
	Logger  *zap.Logger
}

// Pool runs batches of independent tasks with bounded concurrency. A batch
// is drained completely before Run returns, so consecutive scheduler ticks
// never overlap.
type Pool struct {
	workers int
	logger  *zap.Logger
}

// NewPool builds a pool with the provided configuration.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pool{workers: cfg.Workers, logger: cfg.Logger}
}

// Run executes all tasks and blocks until every one has finished or the
// context is cancelled. Task errors are logged, never propagated: a failure
// in one (user, lesson) pair must not abort the rest of the tick.
func (p *Pool) Run(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		return
	}

	queue := make(chan Task)
	var wg sync.WaitGroup

	workers := p.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				start := time.Now()
				if err := task.Run(ctx); err != nil {
					p.logger.Sugar().Errorw("task failed",
						"task_id", task.ID, "duration", time.Since(start), "error", err)
				}
			}
		}()
	}

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			p.logger.Sugar().Warnw("pool cancelled, abandoning remaining tasks",
				"remaining", len(tasks))
			close(queue)
			wg.Wait()
			return
		case queue <- task:
		}
	}
	close(queue)
	wg.Wait()
}
