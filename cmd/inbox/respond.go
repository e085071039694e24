package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/core/domain"
	"github.com/RunLittleTurtle/agent-inbox-sub001/internal/dispatch"
	"github.com/RunLittleTurtle/agent-inbox-sub001/pkg/inbox"
)

var (
	respondType   string
	respondArgs   string
	respondStream bool
)

var respondCmd = &cobra.Command{
	Use:   "respond <thread-id>",
	Short: "Resume a thread with a human decision",
	Long: `Resume an interrupted thread with one human response.

--args is parsed as JSON when it is valid JSON and sent as a string otherwise.

Examples:
  inbox respond t-1 --type accept
  inbox respond t-1 --type response --args "Please use the staging account"
  inbox respond t-1 --type edit --args '{"action":"send_email","args":{"to":"ops@example.com"}}'
  inbox respond t-1 --type accept --stream`,
	Args: cobra.ExactArgs(1),
	RunE: runRespond,
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore <thread-id>",
	Short: "End a thread without resuming it",
	Args:  cobra.ExactArgs(1),
	RunE:  runIgnore,
}

func init() {
	respondCmd.Flags().StringVarP(&respondType, "type", "t", string(domain.ResponseAccept), "Response type (accept, edit, response, ignore)")
	respondCmd.Flags().StringVarP(&respondArgs, "args", "a", "", "Response arguments")
	respondCmd.Flags().BoolVar(&respondStream, "stream", false, "Stream execution events of the resumed run")
}

// parseResponseArgs decodes raw as JSON, falling back to the raw string.
func parseResponseArgs(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func runRespond(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
		target, err := selectInbox(app)
		if err != nil {
			return err
		}

		ctx = inbox.WithNotifier(ctx, inbox.NotifierFunc(printNotice))
		responses := []inbox.HumanResponse{{
			Type: inbox.ResponseType(respondType),
			Args: parseResponseArgs(respondArgs),
		}}

		res, err := app.Dispatcher().SendHumanResponse(ctx,
			inbox.Selection{Target: target, Identity: user},
			args[0], responses, dispatch.Options{Stream: respondStream})
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}

		if res.Events == nil {
			if jsonOutput {
				return printJSON(res.Run)
			}
			fmt.Printf("%s run %s on thread %s\n", passStyle.Render("scheduled"), accentStyle.Render(res.Run.RunID), args[0])
			return nil
		}

		for ev := range res.Events {
			if ev.Err != nil {
				return ev.Err
			}
			if jsonOutput {
				if err := printJSON(ev.Event); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("%s %s\n", boldStyle.Render(ev.Event.Event), string(ev.Event.Data))
		}
		return nil
	})
}

func runIgnore(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
		target, err := selectInbox(app)
		if err != nil {
			return err
		}

		ctx = inbox.WithNotifier(ctx, inbox.NotifierFunc(printNotice))
		if err := app.Dispatcher().Ignore(ctx, inbox.Selection{Target: target, Identity: user}, args[0]); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("%s thread %s\n", passStyle.Render("ignored"), args[0])
		}
		return nil
	})
}
