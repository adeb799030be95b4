package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/wamenu/internal/aggregator"
	"github.com/nextlevelbuilder/wamenu/internal/bus"
	"github.com/nextlevelbuilder/wamenu/internal/channels"
	"github.com/nextlevelbuilder/wamenu/internal/sessions"
)

// consumeInbound drains the bus: deduplicates each message against the
// chat's current menu step, then hands survivors to the per-chat
// dispatcher. It returns after in-flight turns finish once ctx is done.
func consumeInbound(ctx context.Context, msgBus bus.InboundRouter, sess sessions.Store,
	agg *aggregator.Aggregator, d *bus.ChatDispatcher) error {
	defer d.Wait()

	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		if msg.PeerKind == channels.PeerGroup {
			slog.Debug("group message ignored", "channel", msg.Channel, "chat_id", msg.ChatID)
			continue
		}

		step := aggregator.DefaultStep
		if s, found := sess.Get(msg.ChatID); found {
			if snap := s.Snapshot(); snap.Step != "" {
				step = string(snap.Step)
			}
		}

		source := msg.Metadata["source"]
		if source == "" {
			source = msg.Channel
		}
		if !agg.Accept(source, msg, aggregator.Options{Step: step}) {
			continue
		}
		d.Dispatch(ctx, msg)
	}
}
