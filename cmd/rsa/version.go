package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/x0rium/robust-semantic-agent/internal/buildconfig"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildconfig.Short())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
