package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lurock/lurock/internal/app"
)

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an installed package's files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		a, err := app.New(root, verbose)
		if err != nil {
			return err
		}

		if err := a.Remove(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}
