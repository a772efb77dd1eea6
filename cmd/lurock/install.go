package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lurock/lurock/internal/app"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Resolve and install every dependency in package.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		a, err := app.New(root, verbose)
		if err != nil {
			return err
		}

		result, err := a.Install(context.Background())
		if err != nil {
			return err
		}

		for _, name := range result.Installed {
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", name)
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
		}
		return nil
	},
}
