// Package supervisor runs the process's fixed set of long-lived background
// tasks — one credential supervisor per provider, the Player Core's device
// sync loop, and (when configured) a per-provider Redis rotation bridge —
// as a single errgroup that shuts down together when any task fails or ctx
// is cancelled.
package supervisor

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Task is a long-lived function that runs until ctx is cancelled, returning
// nil on a clean shutdown or an error if it cannot continue.
type Task func(ctx context.Context) error

// Group owns the task set for one process and the logger used to report
// task failures before the group tears the rest down.
type Group struct {
	logger *slog.Logger
	tasks  []namedTask
}

type namedTask struct {
	name string
	fn   Task
}

// New constructs an empty Group.
func New(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger}
}

// Add registers a named task to run when Run is called. Add must not be
// called after Run has started.
func (g *Group) Add(name string, fn Task) {
	g.tasks = append(g.tasks, namedTask{name: name, fn: fn})
}

// Run starts every registered task under a shared errgroup.Context: the
// first task to return a non-nil error cancels every other task's context,
// and Run returns once all tasks have exited. Run blocks until ctx is
// cancelled or a task fails.
func (g *Group) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, t := range g.tasks {
		t := t
		eg.Go(func() error {
			err := t.fn(egCtx)
			if err != nil && egCtx.Err() == nil {
				g.logger.Error("supervised task failed", "task", t.name, "error", err)
			}
			return err
		})
	}
	return eg.Wait()
}
