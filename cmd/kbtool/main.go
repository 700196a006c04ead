// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main implements kbtool, the operator CLI for the help desk knowledge
// base: validate fix records, try a message against them, open a ticket by hand
// and summarize the feedback log.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/config"
)

var version = "dev"

// options are the persistent flags shared by every command
type options struct {
	configPath string
	docsDir    string
	verbose    bool
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "kbtool",
		Short: "Operator tools for the help desk knowledge base",
		Long: `kbtool works directly on the knowledge base directory and the configured
backends, without a running chat service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: ./configs/config.yaml when present)")
	root.PersistentFlags().StringVar(&opts.docsDir, "docs", "", "knowledge base directory (overrides knowledge.docs_dir)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newResolveCmd(opts))
	root.AddCommand(newTicketCmd(opts))
	root.AddCommand(newStatsCmd(opts))

	return root
}

// loadConfig reads configuration without enforcing service-only requirements
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: o.configPath})
	if err != nil {
		return nil, err
	}
	if o.docsDir != "" {
		cfg.Knowledge.DocsDir = o.docsDir
	}
	return cfg, nil
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
