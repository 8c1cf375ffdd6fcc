// ABOUTME: Tests for the Telegram frontend against a fake Bot API
// ABOUTME: Covers update normalisation, reply keyboards, callback answers and the polling loop

package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/yigit201107/OpenTrackBot/internal/config"
	"github.com/yigit201107/OpenTrackBot/internal/conversation"
	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
	"github.com/yigit201107/OpenTrackBot/internal/gateway"
	"github.com/yigit201107/OpenTrackBot/internal/render"
)

type fakeBot struct {
	updates chan tgbotapi.Update

	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	stopped  bool
	sendErr  error
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 8)}
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return tgbotapi.Message{}, b.sendErr
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) Sent() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.sent...)
}

func (b *fakeBot) Requests() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.requests...)
}

// fakeHandler answers every message with a fixed reply and records what it saw.
type fakeHandler struct {
	reply *conversation.Reply
	err   error

	mu   sync.Mutex
	seen []*gateway.BridgeMessage
}

func (h *fakeHandler) HandleBridgeMessage(_ context.Context, msg *gateway.BridgeMessage) (*conversation.Reply, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg)
	return h.reply, h.err
}

func (h *fakeHandler) Seen() []*gateway.BridgeMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*gateway.BridgeMessage(nil), h.seen...)
}

func newTestFrontend(bot *fakeBot) *Frontend {
	f := New(config.TelegramConfig{Token: "123:abc", PollTimeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.newBot = func(config.TelegramConfig, *slog.Logger) (botAPI, error) { return bot, nil }
	return f
}

func textUpdate(id int, userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: id,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func TestToBridge_Message(t *testing.T) {
	msg, chatID, ok := toBridge(textUpdate(7, 1001, 55, "/start"))
	require.True(t, ok)

	assert.Equal(t, int64(55), chatID)
	assert.Equal(t, &gateway.BridgeMessage{
		Frontend:          "telegram",
		PlatformMessageID: "7",
		ChannelID:         "55",
		Sender:            "1001",
		Content:           "/start",
	}, msg)
}

func TestToBridge_CallbackQuery(t *testing.T) {
	upd := tgbotapi.Update{
		UpdateID: 9,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cq1",
			From:    &tgbotapi.User{ID: 1001},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 55}},
			Data:    conversation.CallbackMenu,
		},
	}

	msg, chatID, ok := toBridge(upd)
	require.True(t, ok)
	assert.Equal(t, int64(55), chatID)
	assert.Equal(t, "1001", msg.Sender)
	assert.Equal(t, conversation.CallbackMenu, msg.Callback)
	assert.Empty(t, msg.Content)
}

func TestToBridge_Ignored(t *testing.T) {
	tests := []struct {
		name string
		upd  tgbotapi.Update
	}{
		{"empty update", tgbotapi.Update{UpdateID: 1}},
		{"no sender", tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}}},
		{"from a bot", tgbotapi.Update{UpdateID: 3, Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 5, IsBot: true}, Chat: &tgbotapi.Chat{ID: 1}}}},
		{"inline callback without message", tgbotapi.Update{UpdateID: 4, CallbackQuery: &tgbotapi.CallbackQuery{ID: "x", From: &tgbotapi.User{ID: 5}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := toBridge(tt.upd)
			assert.False(t, ok)
		})
	}
}

func TestNewMessage_MenuKeyboard(t *testing.T) {
	m := render.Message{Text: "<b>hi</b>", Buttons: conversation.MenuButtons()}

	out := newMessage(55, m)
	assert.Equal(t, int64(55), out.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, out.ParseMode)
	assert.True(t, out.DisableWebPagePreview)

	kb, ok := out.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok, "reply markup is %T", out.ReplyMarkup)
	assert.True(t, kb.ResizeKeyboard)
	require.Len(t, kb.Keyboard, len(dispatch.Categories))
	assert.Equal(t, conversation.LabelHandle, kb.Keyboard[0][0].Text)
}

func TestNewMessage_NoKeyboard(t *testing.T) {
	out := newMessage(55, render.Message{Text: "plain"})
	assert.Nil(t, out.ReplyMarkup)
}

func TestRun_RepliesAndStops(t *testing.T) {
	bot := newFakeBot()
	h := &fakeHandler{reply: &conversation.Reply{Kind: conversation.ReplyWelcome, Keyboard: conversation.KeyboardMenu}}
	f := newTestFrontend(bot)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, h) }()

	bot.updates <- textUpdate(1, 1001, 55, "/start")

	require.Eventually(t, func() bool { return len(bot.Sent()) == 1 }, 2*time.Second, 5*time.Millisecond)

	out, ok := bot.Sent()[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(55), out.ChatID)
	assert.Equal(t, render.Telegram(h.reply).Text, out.Text)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	bot.mu.Lock()
	assert.True(t, bot.stopped)
	bot.mu.Unlock()
}

func TestRun_ClosedUpdatesChannel(t *testing.T) {
	bot := newFakeBot()
	f := newTestFrontend(bot)
	close(bot.updates)

	assert.NoError(t, f.Run(context.Background(), &fakeHandler{}))
}

func TestRun_ConnectError(t *testing.T) {
	f := New(config.TelegramConfig{Token: "bad"}, nil)
	f.newBot = func(config.TelegramConfig, *slog.Logger) (botAPI, error) {
		return nil, errors.New("Unauthorized")
	}

	err := f.Run(context.Background(), &fakeHandler{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to telegram")
}

func TestHandleUpdate_CallbackAnswered(t *testing.T) {
	bot := newFakeBot()
	h := &fakeHandler{reply: &conversation.Reply{Kind: conversation.ReplyPrompt, Keyboard: conversation.KeyboardBack, Category: dispatch.CategoryHandle}}
	f := newTestFrontend(bot)

	f.handleUpdate(context.Background(), bot, h, tgbotapi.Update{
		UpdateID: 3,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cq7",
			From:    &tgbotapi.User{ID: 1001},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 55}},
			Data:    conversation.SearchCallback(dispatch.CategoryHandle),
		},
	})

	require.Len(t, bot.Requests(), 1)
	answer, ok := bot.Requests()[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cq7", answer.CallbackQueryID)

	require.Len(t, bot.Sent(), 1)
	out := bot.Sent()[0].(tgbotapi.MessageConfig)
	kb := out.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.Equal(t, conversation.LabelBack, kb.Keyboard[0][0].Text)
}

func TestHandleUpdate_NothingSent(t *testing.T) {
	tests := []struct {
		name    string
		handler *fakeHandler
	}{
		{"duplicate update", &fakeHandler{}},
		{"handler error", &fakeHandler{err: gateway.ErrNoSender}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := newFakeBot()
			f := newTestFrontend(bot)

			f.handleUpdate(context.Background(), bot, tt.handler, textUpdate(1, 1001, 55, "hello"))

			assert.Len(t, tt.handler.Seen(), 1)
			assert.Empty(t, bot.Sent())
		})
	}
}

func TestHandleUpdate_SendErrorIsLogged(t *testing.T) {
	bot := newFakeBot()
	bot.sendErr = errors.New("Too Many Requests")
	f := newTestFrontend(bot)
	h := &fakeHandler{reply: &conversation.Reply{Kind: conversation.ReplyHelp}}

	assert.NotPanics(t, func() {
		f.handleUpdate(context.Background(), bot, h, textUpdate(1, 1001, 55, "/help"))
	})
	assert.Empty(t, bot.Sent())
}

func TestNew_SendRate(t *testing.T) {
	f := New(config.TelegramConfig{SendRate: 25}, nil)
	assert.InDelta(t, 25.0, float64(f.limiter.Limit()), 0.001)

	unlimited := New(config.TelegramConfig{}, nil)
	assert.Equal(t, "telegram", unlimited.Name())
	assert.Equal(t, rate.Inf, unlimited.limiter.Limit())
}
