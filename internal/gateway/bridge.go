// ABOUTME: Bridge message handling with deduplication
// ABOUTME: Turns frontend updates into conversation events; redelivered updates are answered once

package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/yigit201107/OpenTrackBot/internal/conversation"
)

// ErrNoSender is returned for bridge messages without a user identity.
var ErrNoSender = errors.New("bridge message has no sender")

// BridgeMessage represents an update received from a frontend.
// Each frontend provides a unique platform-specific update ID:
//   - Telegram: update_id (integer, stored as string)
//   - Matrix: event_id (e.g., "$abc123")
type BridgeMessage struct {
	// Frontend identifies the source platform ("telegram", "matrix")
	Frontend string

	// PlatformMessageID is the unique update identifier from the platform.
	// Empty disables deduplication for this message.
	PlatformMessageID string

	// ChannelID is the chat/room the reply goes to
	ChannelID string

	// Sender is the stable user identity the quota is keyed by
	Sender string

	// Content is the message text
	Content string

	// Callback is the token of a pressed inline button, if any
	Callback string
}

// Handler is what frontends call for every inbound update.
type Handler interface {
	HandleBridgeMessage(ctx context.Context, msg *BridgeMessage) (*conversation.Reply, error)
}

// HandleBridgeMessage runs one frontend update through the conversation
// controller. The same platform update is only handled once: a duplicate
// returns a nil reply and no error, and the frontend sends nothing.
// A failed step releases the update so a redelivery is handled again.
func (g *Gateway) HandleBridgeMessage(ctx context.Context, msg *BridgeMessage) (*conversation.Reply, error) {
	if msg.Sender == "" {
		return nil, fmt.Errorf("%s update %q: %w", msg.Frontend, msg.PlatformMessageID, ErrNoSender)
	}

	key := ""
	if msg.PlatformMessageID != "" {
		key = fmt.Sprintf("bridge:%s:%s", msg.Frontend, msg.PlatformMessageID)
		if !g.dedupe.Claim(key) {
			g.logger.Debug("duplicate bridge message ignored",
				"frontend", msg.Frontend,
				"platform_id", msg.PlatformMessageID,
			)
			return nil, nil
		}
	}

	g.logger.Debug("processing bridge message",
		"frontend", msg.Frontend,
		"platform_id", msg.PlatformMessageID,
		"channel_id", msg.ChannelID,
		"sender", msg.Sender,
		"callback", msg.Callback != "",
	)

	reply := g.controller.Handle(ctx, conversation.Event{
		UserID:   msg.Sender,
		Text:     msg.Content,
		Callback: msg.Callback,
	})

	if reply.Kind == conversation.ReplyFailure && key != "" {
		g.dedupe.Release(key)
	}
	return reply, nil
}
