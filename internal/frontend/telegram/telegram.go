// ABOUTME: Telegram frontend: long polling, update normalisation and HTML replies
// ABOUTME: Updates are handled one at a time; sends go through a shared rate limiter

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/yigit201107/OpenTrackBot/internal/config"
	"github.com/yigit201107/OpenTrackBot/internal/conversation"
	"github.com/yigit201107/OpenTrackBot/internal/gateway"
	"github.com/yigit201107/OpenTrackBot/internal/render"
)

// Name is the frontend identifier used in bridge messages and logs.
const Name = "telegram"

// sendTimeout bounds a single outbound API call.
const sendTimeout = 30 * time.Second

// botAPI is the subset of *tgbotapi.BotAPI the frontend uses.
type botAPI interface {
	GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Frontend connects the bot to Telegram.
type Frontend struct {
	cfg     config.TelegramConfig
	logger  *slog.Logger
	limiter *rate.Limiter

	// newBot connects to the Bot API; replaced in tests.
	newBot func(cfg config.TelegramConfig, logger *slog.Logger) (botAPI, error)
}

var _ gateway.Frontend = (*Frontend)(nil)

// New creates a Telegram frontend. Nothing is contacted until Run.
func New(cfg config.TelegramConfig, logger *slog.Logger) *Frontend {
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}

	return &Frontend{
		cfg:     cfg,
		logger:  logger.With("component", "telegram"),
		limiter: rate.NewLimiter(limit, 1),
		newBot:  connect,
	}
}

// connect authenticates with getMe and routes the library's own logging
// through slog.
func connect(cfg config.TelegramConfig, logger *slog.Logger) (botAPI, error) {
	_ = tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	bot.Debug = cfg.Debug

	logger.Info("authorized on telegram", "username", bot.Self.UserName)
	return bot, nil
}

// Name implements gateway.Frontend.
func (f *Frontend) Name() string { return Name }

// Run polls for updates until ctx is cancelled.
func (f *Frontend) Run(ctx context.Context, h gateway.Handler) error {
	bot, err := f.newBot(f.cfg, f.logger)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(f.cfg.PollTimeout.Seconds())
	updates := bot.GetUpdatesChan(u)

	f.logger.Info("telegram frontend running", "poll_timeout", f.cfg.PollTimeout)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			f.handleUpdate(ctx, bot, h, upd)
		}
	}
}

// handleUpdate runs one update through the gateway and sends the reply.
func (f *Frontend) handleUpdate(ctx context.Context, bot botAPI, h gateway.Handler, upd tgbotapi.Update) {
	msg, chatID, ok := toBridge(upd)
	if !ok {
		f.logger.Debug("ignoring update", "update_id", upd.UpdateID)
		return
	}

	if cq := upd.CallbackQuery; cq != nil {
		if _, err := bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			f.logger.Debug("failed to answer callback query", "error", err)
		}
	}

	reply, err := h.HandleBridgeMessage(ctx, msg)
	if err != nil {
		f.logger.Warn("update rejected", "update_id", upd.UpdateID, "error", err)
		return
	}
	if reply == nil {
		return
	}

	if err := f.send(ctx, bot, chatID, render.Telegram(reply)); err != nil {
		f.logger.Error("failed to send reply",
			"chat_id", chatID,
			"kind", reply.Kind.String(),
			"error", err,
		)
	}
}

// send delivers one rendered message, waiting for the rate limiter first.
func (f *Frontend) send(ctx context.Context, bot botAPI, chatID int64, m render.Message) error {
	waitCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := f.limiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("waiting for send slot: %w", err)
	}

	if _, err := bot.Send(newMessage(chatID, m)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// toBridge normalises an update. Only user messages and callback queries
// from a known chat are handled.
func toBridge(upd tgbotapi.Update) (*gateway.BridgeMessage, int64, bool) {
	id := strconv.Itoa(upd.UpdateID)

	switch {
	case upd.Message != nil:
		m := upd.Message
		if m.From == nil || m.Chat == nil || m.From.IsBot {
			return nil, 0, false
		}
		return &gateway.BridgeMessage{
			Frontend:          Name,
			PlatformMessageID: id,
			ChannelID:         strconv.FormatInt(m.Chat.ID, 10),
			Sender:            strconv.FormatInt(m.From.ID, 10),
			Content:           m.Text,
		}, m.Chat.ID, true

	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return nil, 0, false
		}
		return &gateway.BridgeMessage{
			Frontend:          Name,
			PlatformMessageID: id,
			ChannelID:         strconv.FormatInt(cq.Message.Chat.ID, 10),
			Sender:            strconv.FormatInt(cq.From.ID, 10),
			Callback:          cq.Data,
		}, cq.Message.Chat.ID, true
	}

	return nil, 0, false
}

// newMessage builds the sendMessage request for m.
func newMessage(chatID int64, m render.Message) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, m.Text)
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true
	if kb := replyKeyboard(m.Buttons); kb != nil {
		out.ReplyMarkup = *kb
	}
	return out
}

// replyKeyboard turns button rows into a resized reply keyboard. Pressing a
// button sends its label as text, which the controller resolves. Nil rows
// leave the current keyboard untouched.
func replyKeyboard(rows [][]conversation.Button) *tgbotapi.ReplyKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	kbRows := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Label))
		}
		kbRows = append(kbRows, buttons)
	}

	kb := tgbotapi.NewReplyKeyboard(kbRows...)
	kb.ResizeKeyboard = true
	return &kb
}
