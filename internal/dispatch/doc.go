// Package dispatch turns a lookup category and the raw text a user typed into
// the set of outbound search links the bot replies with.
//
// Everything here is pure string work: no network calls are made, the caller
// only receives URLs for the user to follow.
//
// Each category normalises its input before substituting it into the
// destination templates:
//
//   - Handle: whitespace trimmed, one leading "@" removed
//   - FullName, Phone, Email: whitespace trimmed, then percent-encoded
//
// Destinations whose precondition fails (for example a Telegram username with
// forbidden characters) are left out of the result instead of failing the
// whole lookup.
package dispatch
