package main

import (
	"os"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/tools/account"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/tools/migrate"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "authctl",
		Short:        "Operator tooling for the identity core",
		SilenceUsage: true,
	}
	root.AddCommand(migrate.NewRootCommand(), account.NewRootCommand())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
