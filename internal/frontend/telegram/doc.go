// Package telegram is the Telegram Bot API frontend.
//
// It long-polls getUpdates and hands every message and callback query to the
// gateway as a BridgeMessage, in delivery order. Replies are rendered as HTML
// and carry the menu or back-to-menu reply keyboard. Outbound sends share one
// rate limiter so bursts stay under the Bot API flood limits.
package telegram
