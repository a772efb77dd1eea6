package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lurock/lurock/internal/app"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-resolve dependencies and refresh the lockfile incrementally",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		a, err := app.New(root, verbose)
		if err != nil {
			return err
		}

		result, err := a.Update(context.Background())
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
