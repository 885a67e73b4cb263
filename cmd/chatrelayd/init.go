package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokligence/chatrelay/internal/bootstrap"
)

var initOpts bootstrap.InitOptions

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write starter config files under the config root",
	RunE: func(cmd *cobra.Command, args []string) error {
		initOpts.Root = rootFlags.configRoot
		if err := bootstrap.Init(initOpts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote config under %s/config\n", initOpts.Root)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initOpts.Environment, "env", "dev", "environment name")
	initCmd.Flags().StringVar(&initOpts.Model, "model", "", "model id")
	initCmd.Flags().StringVar(&initOpts.Provider, "provider", "", "provider name (empty resolves from model)")
	initCmd.Flags().StringVar(&initOpts.Mode, "mode", "", "validation mode (strict, relaxed)")
	initCmd.Flags().StringVar(&initOpts.Framing, "framing", "", "stream framing (sse, raw)")
	initCmd.Flags().BoolVar(&initOpts.Force, "force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
