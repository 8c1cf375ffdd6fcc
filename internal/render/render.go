// ABOUTME: Renders conversation replies as Telegram HTML or Markdown with their keyboards
// ABOUTME: Wording is written once against a small style interface shared by both dialects

package render

import (
	"bytes"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/yigit201107/OpenTrackBot/internal/conversation"
	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
	"github.com/yigit201107/OpenTrackBot/internal/ledger"
)

// Message is a rendered reply ready for a frontend.
type Message struct {
	Text    string
	Buttons [][]conversation.Button
}

// style is one markup dialect.
type style interface {
	escape(s string) string
	bold(s string) string
	italic(s string) string
	link(name, url string) string
	code(s string) string
}

type htmlStyle struct{}

func (htmlStyle) escape(s string) string { return html.EscapeString(s) }
func (htmlStyle) bold(s string) string { return "<b>" + html.EscapeString(s) + "</b>" }
func (htmlStyle) italic(s string) string { return "<i>" + html.EscapeString(s) + "</i>" }
func (htmlStyle) code(s string) string { return "<code>" + html.EscapeString(s) + "</code>" }
func (htmlStyle) link(name, url string) string {
	return `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(name) + "</a>"
}

type markdownStyle struct{}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "#", `\#`, "`", "\\`", ">", `\>`,
	"<", `\<`, "~", `\~`, "|", `\|`, "!", `\!`,
)

func (markdownStyle) escape(s string) string { return markdownEscaper.Replace(s) }
func (m markdownStyle) bold(s string) string { return "**" + m.escape(s) + "**" }
func (m markdownStyle) italic(s string) string {
	return "_" + m.escape(s) + "_"
}
func (markdownStyle) code(s string) string {
	return "`` " + strings.ReplaceAll(s, "`", "'") + " ``"
}
func (m markdownStyle) link(name, url string) string {
	return "[" + m.escape(name) + "](<" + url + ">)"
}

// Telegram renders r as Telegram HTML with the reply's keyboard.
func Telegram(r *conversation.Reply) Message {
	return Message{
		Text:    text(htmlStyle{}, r),
		Buttons: r.Keyboard.Buttons(),
	}
}

// Markdown renders r as CommonMark. Keyboards become a command hint line.
func Markdown(r *conversation.Reply) Message {
	md := markdownStyle{}
	body := text(md, r)
	if hint := commandHint(md, r.Keyboard); hint != "" {
		body += "\n\n" + hint
	}
	return Message{Text: body, Buttons: r.Keyboard.Buttons()}
}

// markdown keeps single newlines as line breaks, the way chat clients show them.
var markdown = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps()))

// MarkdownToHTML converts Markdown produced by this package to HTML.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// CategoryName is the user-facing name of a category.
func CategoryName(c dispatch.Category) string {
	switch c {
	case dispatch.CategoryHandle:
		return "username"
	case dispatch.CategoryFullName:
		return "full name"
	case dispatch.CategoryPhone:
		return "phone number"
	case dispatch.CategoryEmail:
		return "email address"
	case dispatch.CategoryGeneric:
		return "free search"
	default:
		return string(c)
	}
}

var promptExamples = map[dispatch.Category]string{
	dispatch.CategoryHandle:   "@example_user",
	dispatch.CategoryFullName: "Ivan Ivanov",
	dispatch.CategoryPhone:    "+7 900 000 00 00",
	dispatch.CategoryEmail:    "name@example.com",
}

func text(s style, r *conversation.Reply) string {
	switch r.Kind {
	case conversation.ReplyWelcome:
		return "👋 Welcome to OpenTrack!\n\n" +
			"I build search links for a username, a full name, a phone number or an email address.\n" +
			allowance(s, r) + "\n\nPick a search type below."
	case conversation.ReplyMenu:
		return "Choose a search type:"
	case conversation.ReplyPrompt:
		return prompt(s, r.Category)
	case conversation.ReplyDenied:
		out := "⛔ You have used all free lookups for today."
		if !r.NextRefill.IsZero() {
			out += " They come back after " + s.bold(formatTime(r.NextRefill)) + "."
		}
		return out
	case conversation.ReplyResults:
		return results(s, r)
	case conversation.ReplyFailure:
		return "⚠️ Something went wrong on our side. Please try again in a moment."
	case conversation.ReplyBalance:
		out := allowance(s, r)
		if !r.NextRefill.IsZero() {
			out += "\nNext refill: " + s.bold(formatTime(r.NextRefill))
		}
		return out
	case conversation.ReplyHelp:
		return help(s, r.Admin, r.IdleSearch)
	case conversation.ReplyStats:
		return stats(s, r.Stats)
	default:
		if r.Category != dispatch.CategoryNone {
			return "Send the " + CategoryName(r.Category) + " to search for, or go back to the menu."
		}
		return "I did not understand that. Pick a search type from the menu."
	}
}

func allowance(s style, r *conversation.Reply) string {
	remaining := r.Remaining
	if r.Admin && remaining == "" {
		remaining = ledger.AdminSentinel
	}
	if remaining == "" {
		return ""
	}
	out := "Lookups left today: " + s.bold(remaining)
	if r.Admin {
		out += " (admin, never metered)"
	}
	return out
}

func prompt(s style, c dispatch.Category) string {
	out := "Send the " + CategoryName(c) + " to search for."
	if ex, ok := promptExamples[c]; ok {
		out += "\nFor example: " + s.code(ex)
	}
	return out
}

func results(s style, r *conversation.Reply) string {
	var b strings.Builder

	query := ""
	if r.Result != nil {
		query = r.Result.Query
	}

	if r.Result == nil || r.Result.Empty() {
		b.WriteString("Nothing to search for in " + s.bold(query) + ".")
	} else {
		b.WriteString("🔎 Results for " + s.bold(query) + " (" + s.escape(CategoryName(r.Category)) + "):\n")
		for _, l := range r.Result.Links {
			b.WriteString("\n• " + s.link(l.Name, l.URL))
		}
	}

	switch {
	case r.Category == dispatch.CategoryGeneric:
		b.WriteString("\n\n" + s.italic("Free search, no lookup used."))
	case r.Remaining != "":
		b.WriteString("\n\n" + allowance(s, r))
	}
	return b.String()
}

func help(s style, admin, idleSearch bool) string {
	lines := []string{
		"/start - show the menu and your balance",
		"/handle - search by username",
		"/name - search by full name",
		"/phone - search by phone number",
		"/email - search by email address",
		"/balance - lookups left and next refill",
		"/menu - back to the menu",
	}
	if admin {
		lines = append(lines, "/stats - usage over the last 24 hours")
	}
	if idleSearch {
		lines = append(lines, "", "Text sent outside a search type runs a free web search.")
	}

	out := s.bold("Commands")
	for _, l := range lines {
		out += "\n" + s.escape(l)
	}
	return out
}

func stats(s style, st *conversation.Stats) string {
	if st == nil || st.Lookups == nil {
		return "No statistics available."
	}

	var b strings.Builder
	b.WriteString("📊 " + s.bold("Usage since "+formatTime(st.Since)) + "\n")
	fmt.Fprintf(&b, "\nLookups: %d (metered %d, free %d)", st.Lookups.Total, st.Lookups.Metered, st.Lookups.Free)
	fmt.Fprintf(&b, "\nUsers searching: %d", st.Lookups.Users)
	fmt.Fprintf(&b, "\nKnown users: %d", st.Users)
	fmt.Fprintf(&b, "\nMid-lookup now: %d", st.Active)

	if len(st.Lookups.ByCategory) > 0 {
		cats := make([]string, 0, len(st.Lookups.ByCategory))
		for c := range st.Lookups.ByCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)

		b.WriteString("\n")
		for _, c := range cats {
			name := CategoryName(dispatch.Category(c))
			fmt.Fprintf(&b, "\n• %s: %d", s.escape(name), st.Lookups.ByCategory[c])
		}
	}
	return b.String()
}

func commandHint(s style, k conversation.Keyboard) string {
	switch k {
	case conversation.KeyboardMenu:
		return s.italic("Search with /handle, /name, /phone or /email.")
	case conversation.KeyboardBack:
		return s.italic("Send /menu to go back.")
	default:
		return ""
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
