package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vkngwrapper/pagealloc/pmm"
)

func init() {
	rootCmd.AddCommand(newSelfCheckCmd())
}

func newSelfCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Run the allocator self check",
		Long: `The selfcheck command runs the scripted allocation and free sequences that
every correct buddy allocator must reproduce, against a scratch 16-page region.

Example:
  buddyctl selfcheck
  buddyctl selfcheck --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}

			err = pmm.SelfCheck(logger)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "self check passed")
			return nil
		},
	}
}
