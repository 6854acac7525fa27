package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"n8nstack/cmd/n8nstack/ui"
	"n8nstack/internal/logging"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Line(ui.Bad, "error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "n8nstack",
		Short:         "Bootstrap and repair an n8n compose deployment",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureInteraction(g.noInteraction)
			level := logging.LevelWarn
			if g.debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, g.logFormat)
		},
	}
	g.bind(root)

	root.AddCommand(bootstrapCmd(&g))
	root.AddCommand(fixOwnershipCmd(&g))
	root.AddCommand(apiKeyCmd(&g))
	root.AddCommand(workflowCmd(&g))
	return root
}
