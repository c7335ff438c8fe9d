package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/taalmeet/internal/chatview"
	"github.com/tbourn/taalmeet/internal/client"
	"github.com/tbourn/taalmeet/internal/config"
	"github.com/tbourn/taalmeet/internal/sysutil"
)

func newChatCommand() *cobra.Command {
	var cfgFile, logLevel string
	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Open a conversation in the terminal",
		Long: `Open a conversation in the terminal.

Type a line and press enter to send it. Commands:
  /block     block the conversation partner
  /unblock   lift the block
  /read      mark the conversation read again
  /quit      leave`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientFile(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config file: %w", err)
			}
			logger := sysutil.SetupLogger(cmd.ErrOrStderr(), logLevel, true)
			api := client.New(cfg)
			api.Log = logger
			return runChat(cmd.Context(), chatDeps{
				Backend: api,
				Blocker: api,
				Config:  cfg,
				Log:     logger,
			}, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "client TOML configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "logging level (debug, info, warn, error)")
	return cmd
}

// blocker is the part of the API client the chat screen uses for /block.
type blocker interface {
	Block(ctx context.Context, partnerID string) error
	Unblock(ctx context.Context, partnerID string) error
}

type chatDeps struct {
	Backend chatview.Backend
	Blocker blocker
	Config  *config.ClientConfig
	Log     zerolog.Logger
}

func runChat(ctx context.Context, d chatDeps, conversationID string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &chatRenderer{out: out, self: d.Config.UserID, printed: map[string]bool{}}
	s := chatview.NewSession(d.Backend, conversationID, d.Config.UserID,
		chatview.WithLogger(d.Log),
		chatview.WithNearBottomThreshold(d.Config.Chat.NearBottomThreshold),
		chatview.WithListener(r.onUpdate),
	)
	r.setSession(s)
	defer func() {
		s.Wait()
		s.Close()
	}()

	partner, err := s.ResolvePartner(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "-- chatting with %s (/quit to leave)\n", r.name(partner))
	if partner.Blocked {
		fmt.Fprintf(out, "-- %s is blocked, /unblock to send\n", r.name(partner))
	}

	poller := &chatview.Poller{Session: s, Backend: d.Backend, Interval: d.Config.PollInterval, Log: d.Log}
	go func() { _ = poller.Run(ctx) }()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		switch strings.TrimSpace(line) {
		case "/quit":
			return nil
		case "/read":
			s.Reopen()
			continue
		case "/block":
			if err := d.Blocker.Block(ctx, partner.PartnerID); err != nil {
				fmt.Fprintf(out, "! block failed: %v\n", err)
				continue
			}
			s.SetBlocked(true)
			fmt.Fprintf(out, "-- %s blocked\n", r.name(partner))
			continue
		case "/unblock":
			if err := d.Blocker.Unblock(ctx, partner.PartnerID); err != nil {
				fmt.Fprintf(out, "! unblock failed: %v\n", err)
				continue
			}
			s.SetBlocked(false)
			fmt.Fprintf(out, "-- %s unblocked\n", r.name(partner))
			continue
		}

		// An empty line retries the text restored by a failed send.
		if strings.TrimSpace(line) != "" {
			s.SetInput(line)
		}
		if _, ok := s.Send(ctx); !ok && s.View().Blocked {
			fmt.Fprintln(out, "! partner is blocked, message not sent")
			s.SetInput("")
		}
	}
	return sc.Err()
}

// chatRenderer prints each message once, as it first shows up.
type chatRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	self    string
	session *chatview.Session
	printed map[string]bool
}

func (r *chatRenderer) setSession(s *chatview.Session) {
	r.mu.Lock()
	r.session = s
	r.mu.Unlock()
}

func (r *chatRenderer) name(c chatview.ConversationSummary) string {
	return sysutil.FirstNonEmpty(c.PartnerName, c.PartnerID)
}

func (r *chatRenderer) onUpdate(u chatview.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	v := r.session.View()
	for _, m := range v.Messages {
		if r.printed[m.ID] {
			continue
		}
		r.printed[m.ID] = true
		who := m.SenderID
		if who == r.self {
			who = "you"
		}
		mark := ""
		if chatview.IsTempID(m.ID) {
			mark = " (sending)"
		}
		fmt.Fprintf(r.out, "[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content, mark)
	}
	if u.Reason == chatview.UpdateSendFailed {
		fmt.Fprintf(r.out, "! not sent (%v), press enter to retry: %q\n", v.LastSendError, v.Input)
	}
}
