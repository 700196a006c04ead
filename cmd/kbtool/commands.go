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

package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/helpdesk-assistant/internal/cache"
	"github.com/your-org/helpdesk-assistant/internal/feedback"
	"github.com/your-org/helpdesk-assistant/internal/keywords"
	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/openai"
	"github.com/your-org/helpdesk-assistant/internal/resolver"
	"github.com/your-org/helpdesk-assistant/internal/servicenow"
)

// ErrInvalidRecords is returned by validate --strict when any file was skipped
var ErrInvalidRecords = errors.New("knowledge base contains invalid records")

func newValidateCmd(opts *options) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Check every fix record in the knowledge base",
		Long: `Load the knowledge base the same way the chat service does and report
which files were loaded and which were skipped.

Examples:
  kbtool validate ./docs
  kbtool validate --strict`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.docsDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Knowledge.DocsDir
			}

			corpus, report, err := knowledge.LoadDir(dir, 1, opts.logger())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d records loaded\n", report.Dir, corpus.Len())

			skipped := make([]string, 0, len(report.Skipped))
			for name := range report.Skipped {
				skipped = append(skipped, name)
			}
			sort.Strings(skipped)
			for _, name := range skipped {
				fmt.Fprintf(out, "  skipped %s: %s\n", name, report.Skipped[name])
			}

			if strict && len(skipped) > 0 {
				return fmt.Errorf("%w: %d skipped", ErrInvalidRecords, len(skipped))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any file is skipped")
	return cmd
}

// resolveOutput is the JSON printed by resolve
type resolveOutput struct {
	Found       bool     `json:"found"`
	Strategy    string   `json:"strategy"`
	Keywords    []string `json:"keywords"`
	Score       float64  `json:"score,omitempty"`
	SourceID    string   `json:"source,omitempty"`
	Description string   `json:"description,omitempty"`
	Fix         string   `json:"fix,omitempty"`
}

func newResolveCmd(opts *options) *cobra.Command {
	var strategy, extractor string

	cmd := &cobra.Command{
		Use:   "resolve <message>",
		Short: "Show which fix record a message resolves to",
		Long: `Run one message through the configured resolver against the knowledge base.
Messages are not translated.

Examples:
  kbtool resolve "my vpn keeps disconnecting"
  kbtool resolve --extractor statistical "printer offline"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if strategy != "" {
				cfg.Resolver.Strategy = strategy
			}
			if extractor != "" {
				cfg.Resolver.Extractor = extractor
			}
			logger := opts.logger()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			store := knowledge.NewStore(cfg.Knowledge.DocsDir, logger)
			corpus, _, err := store.Reload(ctx)
			if err != nil {
				return err
			}

			var llm *openai.Client
			if cfg.OpenAI.APIKey != "" {
				clientConfig := openai.DefaultClientConfig(cfg.OpenAI.APIKey)
				clientConfig.BaseURL = cfg.OpenAI.Endpoint
				llm, err = openai.NewClient(clientConfig, logger)
				if err != nil {
					return err
				}
			}

			deps := keywords.Dependencies{
				Cache:      cache.Noop{},
				Vocabulary: func() keywords.Vocabulary { return store.Current() },
				LLM:        keywords.DefaultLLMConfig(),
				Logger:     logger,
			}
			var embedder resolver.Embedder
			if llm != nil {
				deps.Completer = llm
				embedder = llm
			}
			kw, err := keywords.New(cfg.Resolver.Extractor, deps)
			if err != nil {
				return err
			}

			res, err := resolver.New(resolver.Options{
				Strategy:     cfg.Resolver.Strategy,
				KeywordLimit: cfg.Resolver.KeywordLimit,
				Semantic: resolver.SemanticConfig{
					Threshold: float32(cfg.Resolver.SimilarityThreshold),
				},
			}, resolver.NewKeywordResolver(kw, cfg.Resolver.KeywordLimit, logger), embedder)
			if err != nil {
				return err
			}

			match, err := res.Resolve(ctx, strings.Join(args, " "), corpus)
			if err != nil {
				return err
			}

			out := resolveOutput{
				Found:    match.Found,
				Strategy: match.Strategy,
				Keywords: match.Keywords,
			}
			if match.Found {
				out.Score = match.Score
				out.SourceID = match.Record.SourceID
				out.Description = match.Record.Description
				out.Fix = match.Record.Fix
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "resolver strategy: keyword or semantic")
	cmd.Flags().StringVar(&extractor, "extractor", "", "keyword extractor: stopword, statistical or llm")
	return cmd
}

func newTicketCmd(opts *options) *cobra.Command {
	var req servicenow.TicketRequest

	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Open a ServiceNow incident",
		Long: `Create an incident with the configured ServiceNow credentials, using the
same retry and timeout policy as the chat service.

Examples:
  kbtool ticket --short "Laptop will not boot" --email ana@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			client := servicenow.NewClient(servicenow.Config{
				InstanceURL: cfg.ServiceNow.Instance,
				Username:    cfg.ServiceNow.Username,
				Password:    cfg.ServiceNow.Password,
				Category:    cfg.ServiceNow.Category,
				Timeout:     time.Duration(cfg.ServiceNow.TimeoutSeconds) * time.Second,
				MaxRetries:  cfg.ServiceNow.MaxRetries,
				MaxWait:     time.Duration(cfg.ServiceNow.MaxWaitSeconds) * time.Second,
			}, opts.logger())

			ticket, err := client.CreateTicket(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ticket)
		},
	}
	cmd.Flags().StringVar(&req.ShortDescription, "short", "", "short description (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "full description")
	cmd.Flags().StringVar(&req.CallerEmail, "email", "", "caller email")
	cmd.Flags().StringVar(&req.CallerName, "name", "", "caller name")
	_ = cmd.MarkFlagRequired("short")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the feedback log",
		Long: `Print outcome counts overall and per fix record. Fixes with a low
resolution rate are the ones whose documentation needs attention.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			fb, err := feedback.NewLogger(feedback.Config{
				StorageType: cfg.Feedback.StorageType,
				FilePath:    cfg.Feedback.FilePath,
				DBPath:      cfg.Feedback.DBPath,
			}, opts.logger())
			if err != nil {
				return err
			}
			defer func() { _ = fb.Close() }()

			stats, err := fb.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d interactions\n", stats.Total)
			for _, outcome := range []feedback.Outcome{
				feedback.OutcomeAnswered,
				feedback.OutcomeResolved,
				feedback.OutcomeEscalated,
				feedback.OutcomeEscalationFailed,
				feedback.OutcomeUnmatched,
			} {
				fmt.Fprintf(out, "  %-18s %d\n", outcome, stats.ByOutcome[outcome])
			}
			for _, fix := range stats.ByFix {
				fmt.Fprintf(out, "%s: answered=%d resolved=%d escalated=%d rate=%.0f%%\n",
					fix.FixSourceID, fix.Answered, fix.Resolved, fix.Escalated, fix.ResolutionRate()*100)
			}
			return nil
		},
	}
}
