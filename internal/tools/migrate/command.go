package migrate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/database"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/di"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/tools/common"

	"github.com/spf13/cobra"
)

// Runner is the part of di.MigrationRunner the commands use.
type Runner interface {
	Up() error
	Status() []database.TableStatus
}

// Factory builds a Runner and its cleanup after the env file is loaded.
type Factory func() (Runner, func(), error)

func defaultFactory() (Runner, func(), error) {
	runner, cleanup, err := di.InitializeMigrationRunner()
	if err != nil {
		return nil, nil, err
	}
	return runner, cleanup, nil
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultFactory)
}

func newRootCommand(factory Factory) *cobra.Command {
	opts := &common.Options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migrations for the identity and credential stores",
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.CI, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts, factory),
		newStatusCommand(opts, factory),
	)
	return cmd
}

func newUpCommand(opts *common.Options, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations to both stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, "migrate", "up", "migrate up", func(ctx context.Context) ([]string, error) {
				return withRunner(opts, factory, func(r Runner) ([]string, error) {
					if err := r.Up(); err != nil {
						return nil, err
					}
					return describe(r.Status()), nil
				})
			})
			return exitOnError(err)
		},
	}
}

func newStatusCommand(opts *common.Options, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which store tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, "migrate", "status", "migrate status", func(ctx context.Context) ([]string, error) {
				return withRunner(opts, factory, func(r Runner) ([]string, error) {
					statuses := r.Status()
					details := describe(statuses)
					for _, st := range statuses {
						if !st.Present {
							return details, fmt.Errorf("%s store is not migrated", st.Store)
						}
					}
					return details, nil
				})
			})
			return exitOnError(err)
		},
	}
}

func withRunner(opts *common.Options, factory Factory, fn func(Runner) ([]string, error)) ([]string, error) {
	if err := common.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}
	runner, cleanup, err := factory()
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return fn(runner)
}

func describe(statuses []database.TableStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, st := range statuses {
		state := "missing"
		if st.Present {
			state = "present"
		}
		out = append(out, fmt.Sprintf("%s: %s %s", st.Store, st.Table, state))
	}
	return out
}

func exitOnError(err error) error {
	if err != nil {
		os.Exit(3)
	}
	return nil
}
