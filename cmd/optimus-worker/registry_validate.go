package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/optimus/internal/registry"
)

var registryValidatePath string

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and validate the language registry",
}

var registryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the registry config and exit non-zero on any inconsistency",
	RunE:  runRegistryValidate,
}

func init() {
	registryValidateCmd.Flags().StringVar(&registryValidatePath, "registry", os.Getenv("OPTIMUS_REGISTRY"), "Path to a TOML language registry file")
	registryCmd.AddCommand(registryValidateCmd)
	rootCmd.AddCommand(registryCmd)
}

func runRegistryValidate(cmd *cobra.Command, args []string) error {
	reg, err := registry.Load(registryValidatePath)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	enabled := reg.Enabled()
	if len(enabled) == 0 {
		return fmt.Errorf("registry: no languages enabled")
	}

	for _, lang := range enabled {
		entry, err := reg.Lookup(lang)
		if err != nil {
			return fmt.Errorf("registry: %s: %w", lang, err)
		}
		if err := reg.Validate(lang, entry.Queue, entry.Image); err != nil {
			return fmt.Errorf("registry: %s: %w", lang, err)
		}
		fmt.Printf("ok  %-12s queue=%-20s image=%s\n", lang, entry.Queue, entry.Image)
	}

	return nil
}
