package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RunLittleTurtle/agent-inbox-sub001/pkg/inbox"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage runtime secrets passed to resumed runs",
	Long: `Runtime secrets are stored per identity (--user) and passed to the
workflow's configurable when a thread is resumed. Values are never printed.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set a secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
			if err := app.Secrets().SetSecret(ctx, user, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s %s for %s\n", passStyle.Render("set"), accentStyle.Render(args[0]), user)
			return nil
		})
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
			infos, err := app.Secrets().ListSecrets(ctx, user)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(infos)
			}
			for _, info := range infos {
				fmt.Printf("%s  %s\n", accentStyle.Render(info.Name), mutedStyle.Render(info.UpdatedAt.Format("2006-01-02 15:04:05")))
			}
			return nil
		})
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *inbox.App) error {
			return app.Secrets().DeleteSecret(ctx, user, args[0])
		})
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsListCmd, secretsDeleteCmd)
}
