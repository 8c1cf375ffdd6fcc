// ABOUTME: Builds outbound search links for a lookup category and raw user input
// ABOUTME: Pure functions only; entries whose precondition fails are omitted

package dispatch

import (
	"net/url"
	"regexp"
	"strings"
)

// Category identifies which kind of input a lookup carries.
type Category string

const (
	CategoryNone     Category = ""          // Idle, nothing awaited
	CategoryFullName Category = "full_name" // "Jane Doe London"
	CategoryHandle   Category = "handle"    // "@jane_doe"
	CategoryPhone    Category = "phone"     // "+44 20 7946 0000"
	CategoryEmail    Category = "email"     // "jane@example.com"
	CategoryGeneric  Category = "generic"   // Free text typed outside a category
)

// Categories lists the selectable categories in menu order.
var Categories = []Category{CategoryHandle, CategoryFullName, CategoryPhone, CategoryEmail}

// Valid reports whether c is one of the selectable categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts a stored or callback value back into a Category.
// Unknown values yield CategoryNone and false.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	if c.Valid() || c == CategoryGeneric {
		return c, true
	}
	return CategoryNone, false
}

// Link is one destination in a lookup result.
type Link struct {
	Name string
	URL  string
}

// Result is the output of a dispatch: the normalised query and its links in
// display order.
type Result struct {
	Category Category
	Query    string
	Links    []Link
}

// Map returns the links keyed by destination name.
func (r *Result) Map() map[string]string {
	m := make(map[string]string, len(r.Links))
	for _, l := range r.Links {
		m[l.Name] = l.URL
	}
	return m
}

// Empty reports whether every destination was omitted.
func (r *Result) Empty() bool {
	return len(r.Links) == 0
}

var (
	// telegramUsername matches what t.me accepts as a public username.
	telegramUsername = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

	// looseUsername gates the Telegram entry of a generic search.
	looseUsername = regexp.MustCompile(`^[A-Za-z0-9_]{3,}$`)
)

// Build normalises raw for the given category and returns its destinations.
// Unknown categories and blank input produce an empty result.
func Build(category Category, raw string) *Result {
	switch category {
	case CategoryHandle:
		return buildHandle(raw)
	case CategoryFullName:
		return buildFullName(raw)
	case CategoryPhone:
		return buildPhone(raw)
	case CategoryEmail:
		return buildEmail(raw)
	case CategoryGeneric:
		return Generic(raw)
	default:
		return &Result{Category: category, Query: strings.TrimSpace(raw)}
	}
}

// NormalizeHandle trims whitespace and strips a single leading "@".
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	return strings.TrimSpace(h)
}

func buildHandle(raw string) *Result {
	handle := NormalizeHandle(raw)
	res := &Result{Category: CategoryHandle, Query: handle}
	if handle == "" {
		return res
	}

	if telegramUsername.MatchString(handle) {
		res.add("Telegram", "https://t.me/"+handle)
	}

	// Profile paths break on separators, so those sites are skipped for such input.
	if !strings.ContainsAny(handle, " \t\n/?#") {
		p := url.PathEscape(handle)
		res.add("Instagram", "https://www.instagram.com/"+p+"/")
		res.add("TikTok", "https://www.tiktok.com/@"+p)
		res.add("VK", "https://vk.com/"+p)
		res.add("X", "https://x.com/"+p)
		res.add("GitHub", "https://github.com/"+p)
	}

	res.add("Google", "https://www.google.com/search?q="+url.QueryEscape(`"`+handle+`"`))
	return res
}

func buildFullName(raw string) *Result {
	name := strings.TrimSpace(raw)
	res := &Result{Category: CategoryFullName, Query: name}
	if name == "" {
		return res
	}

	q := url.QueryEscape(name)
	res.add("Google", "https://www.google.com/search?q="+q)
	res.add("Yandex", "https://yandex.ru/search/?text="+q)
	res.add("VK", "https://vk.com/search/people?q="+q)
	res.add("Facebook", "https://www.facebook.com/search/people/?q="+q)
	res.add("Telegram channels", "https://tgstat.com/search?q="+q)
	return res
}

func buildPhone(raw string) *Result {
	phone := strings.TrimSpace(raw)
	res := &Result{Category: CategoryPhone, Query: phone}
	if phone == "" {
		return res
	}

	q := url.QueryEscape(phone)
	res.add("Google", "https://www.google.com/search?q="+q)
	res.add("Yandex", "https://yandex.ru/search/?text="+q)
	res.add("Telegram", "https://t.me/"+url.PathEscape(phone))
	res.add("VK", "https://vk.com/search?c[q]="+q)
	return res
}

func buildEmail(raw string) *Result {
	email := strings.TrimSpace(raw)
	res := &Result{Category: CategoryEmail, Query: email}
	if email == "" {
		return res
	}

	q := url.QueryEscape(email)
	res.add("Google", "https://www.google.com/search?q="+url.QueryEscape(`"`+email+`"`))
	res.add("Yandex", "https://yandex.ru/search/?text="+q)
	res.add("Have I Been Pwned", "https://haveibeenpwned.com/account/"+url.PathEscape(email))
	return res
}

// Generic builds the category-less multi-engine search used for free text
// typed while no category is awaited.
func Generic(raw string) *Result {
	text := strings.TrimSpace(raw)
	res := &Result{Category: CategoryGeneric, Query: text}
	if text == "" {
		return res
	}

	q := url.QueryEscape(text)
	if looseUsername.MatchString(text) {
		res.add("Telegram", "https://t.me/"+text)
	}
	res.add("Google", "https://www.google.com/search?q="+q)
	res.add("VK", "https://vk.com/search?c[q]="+q)
	res.add("Yandex", "https://yandex.ru/search/?text="+q)
	return res
}

func (r *Result) add(name, link string) {
	r.Links = append(r.Links, Link{Name: name, URL: link})
}
