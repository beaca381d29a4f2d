package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/gattcache/pkg/config"
)

// loadConfig returns the --config file on top of the defaults, or the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// validFormat fails unless format is one of allowed.
func validFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s': must be one of %v", format, allowed)
}
