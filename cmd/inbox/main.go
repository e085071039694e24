// Package main provides the inbox CLI: it serves the inbox over HTTP and
// lets an operator list, inspect, resume and ignore threads from a terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/RunLittleTurtle/agent-inbox-sub001/pkg/inbox"
)

// Global flags
var (
	configPath string
	jsonOutput bool
	logLevel   string
	user       string
	inboxID    string
)

// Styles for output
var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Review and answer threads paused by agent workflows",
	Long: `inbox lists the threads of remote agent deployments, shows the
interrupts waiting for a human, and resumes them with a decision.

Examples:
  inbox serve                               # Run the HTTP inbox
  inbox threads list --filter interrupted   # Threads waiting for input
  inbox threads show <thread-id>            # One thread with its interrupts
  inbox respond <thread-id> --type accept   # Accept the pending action
  inbox ignore <thread-id>                  # End a thread without resuming
  inbox secrets set OPENAI_API_KEY sk-...   # Store a runtime secret`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&inboxID, "inbox", "i", "", "Inbox id (default: the configured default inbox)")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", os.Getenv("USER"), "Identity acting on threads and secrets")

	rootCmd.AddCommand(serveCmd, threadsCmd, respondCmd, ignoreCmd, secretsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openApp builds and initializes the app for one-shot commands.
func openApp(ctx context.Context) (*inbox.App, error) {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	app, err := inbox.New(
		inbox.WithLogger(logger),
		inbox.WithFileConfig(configPath),
	)
	if err != nil {
		return nil, err
	}
	if err := app.Init(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// withApp runs fn against an initialized app and releases it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *inbox.App) error) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Shutdown(context.Background())
	return fn(ctx, app)
}

// selectInbox resolves the --inbox flag against the configured inboxes.
func selectInbox(app *inbox.App) (*inbox.Target, error) {
	target, ok := app.Registry().Resolve(inboxID)
	if !ok {
		if inboxID == "" {
			return nil, fmt.Errorf("no default inbox configured; pass --inbox")
		}
		return nil, fmt.Errorf("unknown inbox %q", inboxID)
	}
	return target, nil
}

// printNotice reports a dispatch that was not attempted.
func printNotice(_ context.Context, n inbox.Notice) {
	fmt.Fprintln(os.Stderr, warnStyle.Render(n.Message))
}
