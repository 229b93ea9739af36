// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SmartPresence/pkg/logging"
	"github.com/AleutianAI/SmartPresence/services/assistant"
)

var version = "dev"

func main() {
	logger, err := logging.New(logging.Config{Service: "assistant", JSON: true})
	if err != nil {
		log.Fatalf("assistant: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	var configPath string
	var port int

	rootCmd := &cobra.Command{
		Use:   "assistant",
		Short: "SmartPresence conversational assistant service",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := assistant.LoadConfigFile(configPath)
			if err != nil {
				return err
			}
			cfg = cfg.ApplyEnv()
			if port != 0 {
				cfg.Port = port
			}

			svc, err := assistant.New(cfg)
			if err != nil {
				return fmt.Errorf("initializing assistant: %w", err)
			}
			return svc.Run()
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("assistant: %v", err)
	}
}
