// ABOUTME: Reply and keyboard types the controller hands back to frontends
// ABOUTME: Also defines the button labels and callback tokens the controller recognises

package conversation

import (
	"strings"
	"time"

	"github.com/yigit201107/OpenTrackBot/internal/dispatch"
	"github.com/yigit201107/OpenTrackBot/internal/store"
)

// ReplyKind says what a Reply means.
type ReplyKind int

const (
	ReplyUnknown ReplyKind = iota // text the bot does not understand
	ReplyWelcome
	ReplyMenu
	ReplyPrompt
	ReplyDenied
	ReplyResults
	ReplyFailure
	ReplyBalance
	ReplyHelp
	ReplyStats
)

var replyKindNames = map[ReplyKind]string{
	ReplyUnknown: "unknown",
	ReplyWelcome: "welcome",
	ReplyMenu:    "menu",
	ReplyPrompt:  "prompt",
	ReplyDenied:  "denied",
	ReplyResults: "results",
	ReplyFailure: "failure",
	ReplyBalance: "balance",
	ReplyHelp:    "help",
	ReplyStats:   "stats",
}

func (k ReplyKind) String() string {
	if name, ok := replyKindNames[k]; ok {
		return name
	}
	return "invalid"
}

// Keyboard selects which button set accompanies a reply.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardMenu          // one button per category
	KeyboardBack          // back to menu only
)

// Reply is the frontend-neutral answer to one Event.
type Reply struct {
	Kind     ReplyKind
	Keyboard Keyboard

	// Category is set on prompts and results.
	Category dispatch.Category
	Result   *dispatch.Result

	// Remaining is the post-lookup balance as shown to the user ("2", "∞").
	// Empty when it could not be read.
	Remaining string
	// NextRefill is the zero time when no refill is pending.
	NextRefill time.Time
	// Metered reports whether a credit was taken for this result.
	Metered bool
	// Admin is set for replies addressed to the admin identity.
	Admin bool
	// IdleSearch reports whether free text outside a search type is searched.
	IdleSearch bool

	Stats *Stats
}

// Stats is the admin usage summary.
type Stats struct {
	Since   time.Time
	Lookups *store.LookupStats
	Users   int
	Active  int // users currently mid-lookup
}

// Button is one keyboard entry: the label a user sees and the callback token
// inline keyboards send back.
type Button struct {
	Label    string
	Callback string
}

// Callback tokens.
const (
	CallbackMenu   = "menu"
	callbackSearch = "search:"
)

// SearchCallback returns the callback token that selects c.
func SearchCallback(c dispatch.Category) string {
	return callbackSearch + string(c)
}

// Reserved button labels. Text equal to one of these is never treated as a
// query.
const (
	LabelHandle   = "🔍 Search by username"
	LabelFullName = "👤 Search by full name"
	LabelPhone    = "📞 Search by phone"
	LabelEmail    = "✉️ Search by email"
	LabelBack     = "🏠 Back to menu"
)

// CategoryLabels maps every selectable category to its menu label.
var CategoryLabels = map[dispatch.Category]string{
	dispatch.CategoryHandle:   LabelHandle,
	dispatch.CategoryFullName: LabelFullName,
	dispatch.CategoryPhone:    LabelPhone,
	dispatch.CategoryEmail:    LabelEmail,
}

// labelAliases keeps the Russian labels of the first release working for users
// whose clients still show the old keyboard.
var labelAliases = map[string]string{
	"🔍 Поиск по нику": LabelHandle,
	"👤 Поиск по ФИО":  LabelFullName,
	"🏠 В меню":        LabelBack,
}

// MenuButtons returns the menu keyboard, one button per row.
func MenuButtons() [][]Button {
	rows := make([][]Button, 0, len(dispatch.Categories))
	for _, c := range dispatch.Categories {
		rows = append(rows, []Button{{Label: CategoryLabels[c], Callback: SearchCallback(c)}})
	}
	return rows
}

// BackButtons returns the keyboard shown while a category is awaited.
func BackButtons() [][]Button {
	return [][]Button{{{Label: LabelBack, Callback: CallbackMenu}}}
}

// Buttons returns the rows for k, or nil for KeyboardNone.
func (k Keyboard) Buttons() [][]Button {
	switch k {
	case KeyboardMenu:
		return MenuButtons()
	case KeyboardBack:
		return BackButtons()
	default:
		return nil
	}
}

// IsReservedLabel reports whether text is a button label rather than input.
func IsReservedLabel(text string) bool {
	_, _, ok := resolveLabel(text)
	return ok
}

func resolveLabel(text string) (action, dispatch.Category, bool) {
	text = strings.TrimSpace(text)
	if alias, ok := labelAliases[text]; ok {
		text = alias
	}
	if text == LabelBack {
		return actionMenu, dispatch.CategoryNone, true
	}
	for c, label := range CategoryLabels {
		if text == label {
			return actionSelect, c, true
		}
	}
	return actionText, dispatch.CategoryNone, false
}
