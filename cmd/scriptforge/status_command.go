package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scriptforge/internal/parsestate"
	"scriptforge/internal/scriptstore"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "status [script-id]",
		Short: "Show parsing session progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := scriptstore.Open(cfg.Paths.DataDir)
			if err != nil {
				return fmt.Errorf("open parse-state store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				records, err := store.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				printSessionList(out, records)
				return nil
			}

			project := strings.TrimSpace(projectID)
			if project == "" {
				project = "default"
			}
			raw, found, err := store.GetParseState(cmd.Context(), args[0], project)
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			if !found {
				return fmt.Errorf("no session for script %s in project %s", args[0], project)
			}

			var state parsestate.State
			if err := json.Unmarshal([]byte(raw), &state); err != nil {
				return fmt.Errorf("decode session state: %w", err)
			}
			printSessionDetail(out, &state)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project the session belongs to")
	return cmd
}

func printSessionList(out io.Writer, records []scriptstore.SessionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No parsing sessions")
		return
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		var state parsestate.State
		if err := json.Unmarshal([]byte(rec.State), &state); err != nil {
			rows = append(rows, []string{rec.ScriptID, rec.ProjectID, "unreadable", "", "", ""})
			continue
		}
		rows = append(rows, []string{
			rec.ScriptID,
			rec.ProjectID,
			string(state.Stage),
			fmt.Sprintf("%.0f%%", state.Progress.OverallPercent),
			fmt.Sprintf("%d", state.TotalTokens),
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Script", "Project", "Stage", "Progress", "Tokens", "Updated"},
		rows, 3, 4))
}

func printSessionDetail(out io.Writer, state *parsestate.State) {
	fmt.Fprintf(out, "Script:   %s (project %s)\n", state.ScriptID, state.ProjectID)
	fmt.Fprintf(out, "Stage:    %s (%.0f%% overall)\n", state.Stage, state.Progress.OverallPercent)
	if state.Metadata != nil {
		fmt.Fprintf(out, "Title:    %s\n", state.Metadata.Title)
	}
	fmt.Fprintf(out, "Tokens:   %d\n", state.TotalTokens)
	if state.EstimatedCost > 0 {
		fmt.Fprintf(out, "Cost:     $%.4f\n", state.EstimatedCost)
	}
	if state.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", state.Error)
	}

	if len(state.SubTasks) == 0 {
		return
	}

	type bucket struct {
		total     int
		completed int
		failed    int
		retries   int
	}
	buckets := make(map[parsestate.SubTaskType]*bucket)
	for _, task := range state.SubTasks {
		b := buckets[task.Type]
		if b == nil {
			b = &bucket{}
			buckets[task.Type] = b
		}
		b.total++
		b.retries += task.RetryCount
		switch task.Status {
		case parsestate.StatusCompleted:
			b.completed++
		case parsestate.StatusFailed:
			b.failed++
		}
	}

	types := make([]string, 0, len(buckets))
	for t := range buckets {
		types = append(types, string(t))
	}
	sort.Strings(types)

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		b := buckets[parsestate.SubTaskType(t)]
		rows = append(rows, []string{
			t,
			fmt.Sprintf("%d/%d", b.completed, b.total),
			fmt.Sprintf("%d", b.failed),
			fmt.Sprintf("%d", b.retries),
		})
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Task Type", "Completed", "Failed", "Retries"},
		rows, 1, 2, 3))

	var failed []string
	for _, task := range state.SubTasks {
		if task.Status == parsestate.StatusFailed {
			failed = append(failed, fmt.Sprintf("%s (%s)", task.EntityName, task.Error))
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		fmt.Fprintln(out, "Needs intervention:")
		for _, f := range failed {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
}
