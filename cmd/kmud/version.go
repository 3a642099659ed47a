package main

import (
	"fmt"

	"github.com/crystal-mush/kmud/pkg/server"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), server.VersionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
