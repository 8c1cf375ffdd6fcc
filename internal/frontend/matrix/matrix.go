// ABOUTME: Matrix frontend: /sync loop, room filtering and formatted replies
// ABOUTME: Text messages become bridge messages; replies are Markdown rendered to HTML by goldmark

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/yigit201107/OpenTrackBot/internal/config"
	"github.com/yigit201107/OpenTrackBot/internal/gateway"
	"github.com/yigit201107/OpenTrackBot/internal/render"
)

// Name is the frontend identifier used in bridge messages and logs.
const Name = "matrix"

// networkTimeout is the timeout for Matrix API calls.
const networkTimeout = 30 * time.Second

// Frontend connects the bot to a Matrix homeserver.
type Frontend struct {
	cfg    config.MatrixConfig
	client *mautrix.Client
	self   id.UserID
	logger *slog.Logger

	// started filters out the backlog delivered by the first sync.
	started time.Time
}

var _ gateway.Frontend = (*Frontend)(nil)

// New creates a Matrix frontend. Nothing is contacted until Run.
func New(cfg config.MatrixConfig, logger *slog.Logger) (*Frontend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Frontend{
		cfg:    cfg,
		client: client,
		self:   id.UserID(cfg.UserID),
		logger: logger.With("component", "matrix"),
	}, nil
}

// Name implements gateway.Frontend.
func (f *Frontend) Name() string { return Name }

// Run syncs until ctx is cancelled or the sync fails. The syncer calls the
// handlers one event at a time, in timeline order.
func (f *Frontend) Run(ctx context.Context, h gateway.Handler) error {
	f.logger.Info("starting matrix frontend",
		"homeserver", f.cfg.Homeserver,
		"user_id", f.cfg.UserID,
		"allowed_rooms", len(f.cfg.AllowedRooms),
	)

	syncer, ok := f.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", f.client.Syncer)
	}

	f.started = time.Now()
	syncer.OnEventType(event.EventMessage, func(ctx context.Context, evt *event.Event) {
		f.handleMessage(ctx, h, evt)
	})
	syncer.OnEventType(event.StateMember, f.handleInvite)

	syncCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- f.client.SyncWithContext(syncCtx)
	}()

	select {
	case <-ctx.Done():
		f.logger.Info("shutting down matrix frontend")
		cancel()
		<-syncErr
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessage runs one room message through the gateway and sends the reply.
func (f *Frontend) handleMessage(ctx context.Context, h gateway.Handler, evt *event.Event) {
	msg, ok := f.toBridge(evt)
	if !ok {
		return
	}

	content, err := f.respond(ctx, h, msg)
	if err != nil {
		f.logger.Warn("message not answered", "room", msg.ChannelID, "event_id", msg.PlatformMessageID, "error", err)
		return
	}
	if content == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := f.client.SendMessageEvent(sendCtx, evt.RoomID, event.EventMessage, content); err != nil {
		f.logger.Error("failed to send message", "room", evt.RoomID.String(), "error", err)
	}
}

// respond asks the gateway for a reply and renders it. A nil content means
// there is nothing to send.
func (f *Frontend) respond(ctx context.Context, h gateway.Handler, msg *gateway.BridgeMessage) (*event.MessageEventContent, error) {
	reply, err := h.HandleBridgeMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}
	return formatReply(render.Markdown(reply))
}

// formatReply builds an m.text event with an HTML formatted body and the
// Markdown source as the plain fallback.
func formatReply(m render.Message) (*event.MessageEventContent, error) {
	formatted, err := render.MarkdownToHTML(m.Text)
	if err != nil {
		return nil, fmt.Errorf("rendering reply: %w", err)
	}
	return &event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          m.Text,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}, nil
}

// toBridge filters and normalises a room message event.
func (f *Frontend) toBridge(evt *event.Event) (*gateway.BridgeMessage, bool) {
	if evt.Sender == f.self {
		return nil, false
	}
	if time.UnixMilli(evt.Timestamp).Before(f.started) {
		return nil, false
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return nil, false
	}

	roomID := evt.RoomID.String()
	if !f.isRoomAllowed(roomID) {
		f.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return nil, false
	}

	return &gateway.BridgeMessage{
		Frontend:          Name,
		PlatformMessageID: evt.ID.String(),
		ChannelID:         roomID,
		Sender:            evt.Sender.String(),
		Content:           content.Body,
	}, true
}

// handleInvite joins rooms the bot is invited to, if they are allowed.
func (f *Frontend) handleInvite(ctx context.Context, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok || content.Membership != event.MembershipInvite {
		return
	}
	if evt.GetStateKey() != f.self.String() || !f.isRoomAllowed(evt.RoomID.String()) {
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := f.client.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		f.logger.Warn("failed to join room", "room", evt.RoomID.String(), "error", err)
		return
	}
	f.logger.Info("joined room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
}

// isRoomAllowed checks if the room is in the allowed list. An empty list
// allows every room.
func (f *Frontend) isRoomAllowed(roomID string) bool {
	if len(f.cfg.AllowedRooms) == 0 {
		return true
	}
	return slices.Contains(f.cfg.AllowedRooms, roomID)
}
