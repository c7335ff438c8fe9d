package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/taalmeet/internal/cardstack"
	"github.com/tbourn/taalmeet/internal/client"
	"github.com/tbourn/taalmeet/internal/config"
	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/sysutil"
)

func newDiscoverCommand() *cobra.Command {
	var cfgFile, logLevel string
	var limit int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse language partners as a card stack",
		Long: `Browse language partners as a card stack.

Keys (followed by enter):
  l        swipe left, next partner (on the last card: done)
  h        swipe right, previous partner (on the first card: start a chat)
  s <id>   jump to a partner
  r        reload partners
  q        quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClientFile(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config file: %w", err)
			}
			logger := sysutil.SetupLogger(cmd.ErrOrStderr(), logLevel, true)
			api := client.New(cfg)
			api.Log = logger
			return runDiscover(cmd.Context(), api, cfg, limit, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "client TOML configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "logging level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of partners (0 uses the server default)")
	return cmd
}

// discoverAPI is the part of the API client the discovery screen uses.
type discoverAPI interface {
	FetchPartners(ctx context.Context, loc *client.Location, limit int) ([]cardstack.PartnerCard, error)
	StartConversation(ctx context.Context, partnerID string) (*domain.Conversation, error)
}

func runDiscover(ctx context.Context, api discoverAPI, cfg *config.ClientConfig, limit int, log zerolog.Logger, in io.Reader, out io.Writer) error {
	var loc *client.Location
	if cfg.Location.Lat != 0 || cfg.Location.Lon != 0 {
		loc = &client.Location{Lat: cfg.Location.Lat, Lon: cfg.Location.Lon}
	}
	load := func() ([]cardstack.PartnerCard, error) { return api.FetchPartners(ctx, loc, limit) }

	partners, err := load()
	if err != nil {
		return err
	}

	var interested []string
	stack := cardstack.New(partners,
		cardstack.WithLogger(log),
		cardstack.WithConfig(cardstack.Config{
			SwipeThreshold: cfg.Cards.SwipeThreshold,
			FlickVelocity:  cfg.Cards.FlickVelocity,
			SettleDelay:    cfg.Cards.SettleDelay,
		}),
		cardstack.WithDispatcher(cardstack.DispatcherFunc(func(e cardstack.Event) {
			if mi, ok := e.(cardstack.MarkedInterested); ok {
				interested = append(interested, mi.ID)
			}
		})),
	)
	render(out, stack)

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "q":
			return nil
		case "l":
			// Passing on the last card finishes the stack.
			if !stack.SwipeLeft() && stack.State() == cardstack.StateActive {
				stack.SetIndex(stack.Snapshot().Len)
			}
		case "h":
			stack.SwipeRight()
		case "s":
			if len(fields) < 2 || !stack.Select(fields[1]) {
				fmt.Fprintln(out, "! unknown partner")
				continue
			}
		case "r":
			list, err := load()
			if err != nil {
				fmt.Fprintf(out, "! reload failed: %v\n", err)
				continue
			}
			stack.SetPartners(list)
		default:
			fmt.Fprintln(out, "! keys: l h s <id> r q")
			continue
		}

		for _, id := range interested {
			conv, err := api.StartConversation(ctx, id)
			if err != nil {
				fmt.Fprintf(out, "! could not start a chat with %s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(out, "-- chat ready: taalmeet chat %s\n", conv.ID)
		}
		interested = interested[:0]
		render(out, stack)
	}
	return sc.Err()
}

func render(out io.Writer, s *cardstack.Stack) {
	switch s.State() {
	case cardstack.StateNoPartners:
		fmt.Fprintln(out, "No partners found nearby. Try again later.")
		return
	case cardstack.StateExhausted:
		fmt.Fprintln(out, "You have seen everyone. Press r to reload.")
		return
	}
	snap := s.Snapshot()
	for i, v := range s.Visible() {
		c := v.Card
		prefix := "   "
		if v.Interactive {
			prefix = fmt.Sprintf("%d/%d", snap.Index+1, snap.Len)
		}
		dist := ""
		if c.DistanceKM != nil {
			dist = fmt.Sprintf(", %.1f km", *c.DistanceKM)
		}
		status := ""
		if c.Online {
			status = " (online)"
		}
		line := fmt.Sprintf("%s %s [%s] %s%s, match %.0f%%%s", prefix, c.ID, strings.Join(c.Languages, ","), c.Name, status, c.MatchScore*100, dist)
		if i > 0 {
			line = "    next: " + c.Name
		}
		fmt.Fprintln(out, line)
	}
}
