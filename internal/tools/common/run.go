package common

import (
	"context"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/tools/ui"
)

// Options are the flags shared by every authctl command.
type Options struct {
	EnvFile string
	Timeout time.Duration
	CI      bool
}

type Action func(ctx context.Context) ([]string, error)

// Run executes fn with a spinner, or directly with JSON output in CI mode.
func Run(opts *Options, tool, action, title string, fn Action) ([]string, error) {
	start := time.Now()
	var (
		details []string
		err     error
	)
	if opts.CI {
		ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
		details, err = fn(ctx)
		cancel()
		_ = WriteCIResult(ciOutput, newCIResult(tool, action, title, time.Since(start), details, err))
	} else {
		details, err = ui.Run(title, opts.Timeout, fn)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordToolCommandRun(context.Background(), tool, action, status)
	observability.RecordToolCommandDuration(context.Background(), tool, action, status, time.Since(start))
	return details, err
}
