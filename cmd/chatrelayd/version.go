package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tokligence/chatrelay/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s os/arch=%s/%s\n", version.FullInfo(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
