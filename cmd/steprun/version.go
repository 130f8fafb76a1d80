package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deixis/steprun"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), steprun.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
