package account

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/di"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/service"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/tools/common"

	"github.com/spf13/cobra"
)

var errNotConfirmed = errors.New("deactivation needs --yes")

// Factory builds the account admin and its cleanup after the env file is loaded.
type Factory func() (service.AccountAdmin, func(), error)

func NewRootCommand() *cobra.Command {
	return newRootCommand(di.InitializeAccountAdmin)
}

func newRootCommand(factory Factory) *cobra.Command {
	opts := &common.Options{}
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Operator actions on a single account",
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.CI, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newShowCommand(opts, factory),
		newUnlockCommand(opts, factory),
		newDeactivateCommand(opts, factory),
	)
	return cmd
}

func newShowCommand(opts *common.Options, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email|user-id>",
		Short: "Show identity, lockout and session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, "account", "show", "account show", func(ctx context.Context) ([]string, error) {
				return withAdmin(opts, factory, func(admin service.AccountAdmin) ([]string, error) {
					view, err := admin.Describe(ctx, args[0])
					if err != nil {
						return nil, err
					}
					return describe(view), nil
				})
			})
			return exitOnError(err)
		},
	}
}

func newUnlockCommand(opts *common.Options, factory Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <user-id>",
		Short: "Clear failed login attempts and any lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, "account", "unlock", "account unlock", func(ctx context.Context) ([]string, error) {
				return withAdmin(opts, factory, func(admin service.AccountAdmin) ([]string, error) {
					if err := admin.Unlock(ctx, args[0]); err != nil {
						return nil, err
					}
					return []string{"account unlocked: " + args[0]}, nil
				})
			})
			return exitOnError(err)
		},
	}
}

func newDeactivateCommand(opts *common.Options, factory Factory) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate an account and revoke its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := common.Run(opts, "account", "deactivate", "account deactivate", func(ctx context.Context) ([]string, error) {
				if !confirmed {
					return nil, errNotConfirmed
				}
				return withAdmin(opts, factory, func(admin service.AccountAdmin) ([]string, error) {
					if err := admin.Deactivate(ctx, args[0]); err != nil {
						return nil, err
					}
					return []string{"account deactivated: " + args[0], "refresh token revoked"}, nil
				})
			})
			return exitOnError(err)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm deactivation")
	return cmd
}

func withAdmin(opts *common.Options, factory Factory, fn func(service.AccountAdmin) ([]string, error)) ([]string, error) {
	if err := common.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}
	admin, cleanup, err := factory()
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return fn(admin)
}

func describe(view *service.AccountView) []string {
	id := view.Identity
	out := []string{
		"id: " + id.ID,
		"email: " + id.Email,
		"status: " + string(id.Status()),
		fmt.Sprintf("email_verified: %t", id.EmailVerified),
		fmt.Sprintf("phone_verified: %t", id.PhoneVerified),
		fmt.Sprintf("password: %t", view.HasPassword),
		fmt.Sprintf("oauth_linked: %t", view.OAuthLinked),
		fmt.Sprintf("failed_login_attempts: %d", view.FailedLoginAttempts),
		fmt.Sprintf("active_session: %t", view.HasActiveSession),
	}
	if view.LockedUntil != nil {
		out = append(out, "locked_until: "+view.LockedUntil.UTC().Format(time.RFC3339))
	}
	return out
}

func exitOnError(err error) error {
	if err != nil {
		os.Exit(3)
	}
	return nil
}
