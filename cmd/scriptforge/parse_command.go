package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"scriptforge/internal/cache"
	"scriptforge/internal/cachestore"
	"scriptforge/internal/limiter"
	"scriptforge/internal/logging"
	"scriptforge/internal/parsestate"
	"scriptforge/internal/pipeline"
	"scriptforge/internal/scriptstore"
	"scriptforge/internal/services/llm"
	"scriptforge/internal/textutil"
)

func newParseCommand(ctx *commandContext) *cobra.Command {
	var scriptID string
	var projectID string
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "parse <script-file>",
		Short: "Parse a script into structured production data",
		Long: "Parse runs the staged extraction pipeline over a script file. " +
			"Interrupted or failed sessions resume from their persisted state " +
			"when the same script and project identifiers are used again.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scriptPath := args[0]
			raw, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			text := string(raw)
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("script file %s is empty", scriptPath)
			}

			id := strings.TrimSpace(scriptID)
			if id == "" {
				base := filepath.Base(scriptPath)
				id = textutil.SanitizeToken(strings.TrimSuffix(base, filepath.Ext(base)))
			}
			project := strings.TrimSpace(projectID)
			if project == "" {
				project = "default"
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			lock := flock.New(filepath.Join(cfg.Paths.DataDir, "scriptforge.lock"))
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire data directory lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another scriptforge run holds the lock at %s", lock.Path())
			}
			defer lock.Unlock()

			stateStore, err := scriptstore.Open(cfg.Paths.DataDir)
			if err != nil {
				return fmt.Errorf("open parse-state store: %w", err)
			}
			defer stateStore.Close()

			cacheStore, err := cachestore.Open(cfg.Paths.DataDir)
			if err != nil {
				return fmt.Errorf("open cache store: %w", err)
			}
			defer cacheStore.Close()

			tiers := cache.New(cacheStore, nil, cacheOptions(cfg), cache.WithLogger(logger))

			client := llm.NewClient(llm.Config{
				APIKey:         cfg.LLM.APIKey,
				BaseURL:        cfg.LLM.BaseURL,
				Model:          cfg.LLM.Model,
				Referer:        cfg.LLM.Referer,
				Title:          cfg.LLM.Title,
				TimeoutSeconds: cfg.LLM.TimeoutSeconds,
			})
			if !skipPreflight {
				if err := client.HealthCheck(cmd.Context()); err != nil {
					return fmt.Errorf("completion endpoint preflight: %w", err)
				}
			}

			manager := parsestate.NewManager(stateStore, id, project,
				parsestate.WithLogger(logger),
				parsestate.WithPricing(parsestate.Pricing{
					PromptPer1K:     cfg.Pricing.PromptPer1K,
					CompletionPer1K: cfg.Pricing.CompletionPer1K,
				}))

			out := cmd.OutOrStdout()
			pipe := pipeline.New(client, limiter.New(cfg.Pipeline.MaxConcurrentCalls), tiers, manager, id, project,
				pipeline.Options{
					MaxRetries:          cfg.Pipeline.MaxRetries,
					RetryDelay:          time.Duration(cfg.Pipeline.RetryDelaySeconds) * time.Second,
					BatchThreshold:      cfg.Pipeline.BatchThreshold,
					MetadataPrefixChars: cfg.Pipeline.MetadataPrefixChars,
					ChunkChars:          cfg.Chunker.MaxChunkChars,
				},
				pipeline.WithLogger(logger),
				pipeline.WithProgress(func(stage parsestate.Stage, overall float64, message string) {
					fmt.Fprintf(out, "[%5.1f%%] %-10s %s\n", overall, stage, message)
				}))

			fmt.Fprintf(out, "Parsing %s (script %s, project %s)\n", scriptPath, id, project)
			if err := pipe.Run(cmd.Context(), text); err != nil {
				return fmt.Errorf("parse %s: %w", id, err)
			}

			printParseSummary(out, manager.State())
			return nil
		},
	}

	cmd.Flags().StringVar(&scriptID, "script-id", "", "Session identifier (defaults to the file name)")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project the session belongs to")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip the completion endpoint health check")
	return cmd
}

func printParseSummary(out io.Writer, state *parsestate.State) {
	fmt.Fprintln(out, "Parse complete")
	if state.Metadata != nil {
		fmt.Fprintf(out, "  Title:      %s\n", state.Metadata.Title)
	}
	fmt.Fprintf(out, "  Characters: %d\n", len(state.Characters))
	fmt.Fprintf(out, "  Scenes:     %d\n", len(state.Scenes))
	fmt.Fprintf(out, "  Shots:      %d\n", len(state.Shots))
	fmt.Fprintf(out, "  Tokens:     %d\n", state.TotalTokens)
	if state.EstimatedCost > 0 {
		fmt.Fprintf(out, "  Est. cost:  $%.4f\n", state.EstimatedCost)
	}
}
