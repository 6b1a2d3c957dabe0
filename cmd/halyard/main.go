// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/logging"
	"github.com/halyardhq/halyard/pkg/ux"
)

// cliConfig holds the settings loaded from .halyard.yaml. Flags override
// individual fields per invocation.
var cliConfig Config

func main() {
	// Cobra prints usage errors itself; commands print their own.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitBadArgs)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		ux.InitMode()

		cfg, err := LoadConfig(ConfigFileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitBadArgs)
		}
		cliConfig = cfg

		// Output mode precedence: --output, then HALYARD_OUTPUT, then the
		// config file, then terminal detection (already applied by InitMode).
		if cliConfig.Output != "" && os.Getenv("HALYARD_OUTPUT") == "" {
			ux.SetMode(ux.ParseMode(cliConfig.Output))
		}
		if flagOutput != "" {
			ux.SetMode(ux.ParseMode(flagOutput))
		}

		level := cliConfig.LogLevel
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		logger := logging.New(logging.Config{
			Level:   logging.ParseLevel(level),
			LogDir:  cliConfig.LogDir,
			Service: "halyard",
		})
		logger.Install()
	}
}
