package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lurock/lurock/internal/app"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-check every locked package's on-disk checksum",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		a, err := app.New(root, verbose)
		if err != nil {
			return err
		}

		result, err := a.Verify(context.Background())
		if err != nil {
			return err
		}

		for _, name := range result.Successful {
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", name)
		}
		for _, f := range result.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %s\n", f.Name, f.Reason)
		}
		if len(result.Failed) > 0 {
			os.Exit(1)
		}
		return nil
	},
}
