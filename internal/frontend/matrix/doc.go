// Package matrix is the Matrix frontend.
//
// It syncs with the homeserver through mautrix and forwards plain text room
// messages to the gateway. Matrix has no reply keyboards, so replies are
// rendered as Markdown with slash-command hints and sent with an HTML
// formatted body. Events from before startup, from the bot itself and from
// rooms outside allowed_rooms are ignored. Invites to allowed rooms are
// accepted automatically.
package matrix
