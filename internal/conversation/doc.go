// Package conversation is the per-user dialog that sits between the chat
// frontends and the quota ledger.
//
// # States
//
// Every user is either idle or awaiting one input category:
//
//	Idle ──select C──▶ Awaiting<C> ──text──▶ Idle (credit consumed, links sent)
//	  ▲                    │
//	  └──── back to menu ──┘
//
// Selecting a category checks Ledger.HasAccess first. A user without credits
// stays idle and gets a denial; nothing is consumed until the awaited text
// arrives. States live only in memory (Sessions), so a restart returns
// everyone to idle.
//
// # Events
//
// Frontends hand the Controller an Event carrying the user identity and either
// message text or a button callback token. The event resolves, in order, as a
// callback token, a reserved button label, a slash command, or free text.
//
// # Replies
//
// Handle always returns a Reply describing what to say, never markup. The
// render package turns it into Telegram HTML or Matrix Markdown together with
// the keyboard the Reply asks for.
//
// Free text typed while idle runs a generic multi-engine search that costs
// nothing. Controllers built with Options.IdleSearch false answer it with the
// menu hint instead.
package conversation
