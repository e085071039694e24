package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/pkg/inbox"
)

var (
	listFilter string
	listOffset int
	listLimit  int
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List and inspect threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads of an inbox, newest first",
	Long: `List one page of threads with their classified status.

Examples:
  inbox threads list                                  # First page, all threads
  inbox threads list --filter human_response_needed   # Escalated threads only
  inbox threads list --offset 10 --limit 10 --json    # Second page as JSON`,
	Args: cobra.NoArgs,
	RunE: runThreadsList,
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show one thread with its interrupts",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsShow,
}

func init() {
	threadsListCmd.Flags().StringVarP(&listFilter, "filter", "f", string(domain.FilterAll),
		"Status filter (all, idle, busy, interrupted, error, human_response_needed)")
	threadsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of threads to skip")
	threadsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Page size")

	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd)
}

func runThreadsList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
		target, err := selectInbox(app)
		if err != nil {
			return err
		}

		page, err := app.Threads().FetchThreads(ctx, target, inbox.Query{
			Filter: inbox.Filter(listFilter),
			Offset: listOffset,
			Limit:  listLimit,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(page)
		}

		if len(page.Threads) == 0 {
			fmt.Println(mutedStyle.Render("No threads."))
			return nil
		}
		for _, td := range page.Threads {
			printThreadLine(td)
		}
		if page.HasMore {
			fmt.Println(mutedStyle.Render(fmt.Sprintf("More threads: --offset %d", page.Query.Offset+page.Query.Limit)))
		}
		return nil
	})
}

func runThreadsShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
		target, err := selectInbox(app)
		if err != nil {
			return err
		}

		td, err := app.Threads().FetchSingleThread(ctx, target, args[0])
		if err != nil {
			return err
		}
		if td == nil {
			return fmt.Errorf("thread %s not found", args[0])
		}

		if jsonOutput {
			return printJSON(td)
		}

		printThreadLine(*td)
		if td.InvalidSchema != nil && *td.InvalidSchema {
			fmt.Println(failStyle.Render("  interrupt has an unsupported shape"))
		}
		for i, in := range td.Interrupts {
			fmt.Printf("  %s %s\n", boldStyle.Render(fmt.Sprintf("[%d]", i)), accentStyle.Render(in.ActionRequest.Action))
			if in.Description != "" {
				fmt.Printf("      %s\n", in.Description)
			}
			fmt.Printf("      %s\n", mutedStyle.Render("allowed: "+strings.Join(allowed(in.Config), ", ")))
		}
		return nil
	})
}

func printThreadLine(td domain.ThreadData) {
	fmt.Printf("%s  %s  %s\n",
		accentStyle.Render(td.Thread.ThreadID),
		statusStyle(td.Status),
		mutedStyle.Render(td.Thread.CreatedAt.Format("2006-01-02 15:04:05")))
}

func statusStyle(s domain.DataStatus) string {
	switch s {
	case domain.DataStatusIdle:
		return passStyle.Render(string(s))
	case domain.DataStatusInterrupted, domain.DataStatusHumanResponseNeeded:
		return warnStyle.Render(string(s))
	case domain.DataStatusError:
		return failStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

func allowed(c domain.InterruptConfig) []string {
	var out []string
	if c.AllowAccept {
		out = append(out, string(domain.ResponseAccept))
	}
	if c.AllowEdit {
		out = append(out, string(domain.ResponseEdit))
	}
	if c.AllowRespond {
		out = append(out, string(domain.ResponseResponse))
	}
	if c.AllowIgnore {
		out = append(out, string(domain.ResponseIgnore))
	}
	if len(out) == 0 {
		out = append(out, "none")
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
