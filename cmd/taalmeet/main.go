// Command taalmeet runs the TaalMeet reference backend and the terminal
// chat and discovery clients.
//
// @title          TaalMeet API
// @version        1.0
// @description    Conversations, messages and partner discovery for a language-exchange app.
// @BasePath       /api/v1
// @securityDefinitions.apikey UserID
// @in             header
// @name           X-User-ID
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taalmeet",
		Short: "TaalMeet language-exchange backend and terminal clients",
		Long: `TaalMeet pairs language learners for conversation practice.

The serve command runs the reference backend. The chat and discover commands
are terminal clients of that backend: an optimistic chat screen and a
swipeable partner card stack.`,
		Example: `  # Run the backend with settings from .env
  taalmeet serve

  # Open a conversation as anna
  taalmeet chat -c client.toml 141add05-4415-4938-b5a1-17e0d3171aff

  # Browse partners near the configured location
  taalmeet discover -c client.toml`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand(), newChatCommand(), newDiscoverCommand())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCommand(), fang.WithVersion(versioninfo.Short())); err != nil {
		os.Exit(1)
	}
}
