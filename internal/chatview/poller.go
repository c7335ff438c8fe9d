package chatview

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is used when Poller.Interval is zero.
const DefaultPollInterval = 3 * time.Second

// Poller keeps a Session's confirmed list fresh by fetching the open
// conversation periodically and right after each successful send.
type Poller struct {
	Session  *Session
	Backend  Backend
	Interval time.Duration
	Log      zerolog.Logger
}

// Run polls until ctx is done and then returns ctx.Err(). Fetch errors are
// logged and the last confirmed list is kept.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-p.Session.Refreshes():
		}
		p.fetch(ctx)
	}
}

func (p *Poller) fetch(ctx context.Context) {
	conv := p.Session.ConversationID()
	if conv == "" {
		return
	}
	list, err := p.Backend.FetchMessages(ctx, conv)
	if err != nil {
		if ctx.Err() == nil {
			p.Log.Warn().Err(err).Str("conversation_id", conv).Msg("fetch messages failed")
		}
		return
	}
	// The user may have switched conversations while the request was out.
	if p.Session.ConversationID() != conv {
		return
	}
	p.Session.SetConfirmed(list)
}
