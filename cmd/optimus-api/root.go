package main

import (
	"github.com/spf13/cobra"

	"github.com/bobmcallan/optimus/internal/common"
)

var rootCmd = &cobra.Command{
	Use:     "optimus-api",
	Short:   "Submission front-end for the Optimus code execution service",
	Version: common.GetVersion(),
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
