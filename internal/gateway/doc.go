// Package gateway assembles and supervises the bot.
//
// # Overview
//
// The Gateway owns the store, the quota ledger, the conversation controller,
// the refill scheduler and the update dedupe cache. Chat frontends are added
// with AddFrontend and receive the Gateway as their Handler:
//
//	gw, err := gateway.New(cfg, logger)
//	gw.AddFrontend(telegram.New(cfg.Frontends.Telegram, logger))
//	err = gw.Run(ctx)
//	gw.Shutdown(context.Background())
//
// # Lifecycle
//
// Run starts the refill scheduler and every frontend in one errgroup. The
// first failure cancels the rest; cancelling ctx stops everything and Run
// returns nil.
//
// # Bridge Messages
//
// Frontends normalise each update into a BridgeMessage and call
// HandleBridgeMessage. The platform update ID is claimed in the dedupe cache
// first, so an update redelivered after a reconnect gets no second answer.
// If the controller reports a failure the claim is released and a redelivery
// is handled again.
package gateway
