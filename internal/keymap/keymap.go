// Package keymap converts platform key and button codes into canonical,
// platform-independent identifiers and back.
//
// Tables are built once and never mutated, so they are safe for concurrent
// use from hook callbacks and worker goroutines.
package keymap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a canonical id has no platform code.
var ErrNotFound = errors.New("keymap: key not found")

// ID is the canonical, platform-independent name of a key or button,
// e.g. "caps_lock", "f13", "x2".
type ID string

// Class distinguishes keyboard keys from mouse buttons.
type Class int

const (
	Keyboard Class = iota
	Mouse
)

func (c Class) String() string {
	switch c {
	case Keyboard:
		return "keyboard"
	case Mouse:
		return "mouse"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseClass accepts the names used in configuration files.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keyboard", "key":
		return Keyboard, nil
	case "mouse", "button":
		return Mouse, nil
	default:
		return Keyboard, fmt.Errorf("unknown input type %q", s)
	}
}

// Entry pairs a platform code with its canonical id.
type Entry struct {
	Code uint32
	ID   ID
}

// Table is a bidirectional code <-> id mapping for one input class.
type Table struct {
	class  Class
	byCode map[uint32]ID
	byID   map[ID]uint32
}

// NewTable builds a table from entries. When several codes share an id the
// first entry wins for the reverse direction.
func NewTable(class Class, entries []Entry) *Table {
	t := &Table{
		class:  class,
		byCode: make(map[uint32]ID, len(entries)),
		byID:   make(map[ID]uint32, len(entries)),
	}
	for _, e := range entries {
		if _, dup := t.byCode[e.Code]; !dup {
			t.byCode[e.Code] = e.ID
		}
		if _, dup := t.byID[e.ID]; !dup {
			t.byID[e.ID] = e.Code
		}
	}
	return t
}

// Class reports which input class this table describes.
func (t *Table) Class() Class { return t.class }

// Canonical returns the canonical id for code. Unknown codes yield a
// synthetic "code_<n>" id and ok=false.
func (t *Table) Canonical(code uint32) (ID, bool) {
	if id, ok := t.byCode[code]; ok {
		return id, true
	}
	return ID(fmt.Sprintf("code_%d", code)), false
}

// Code returns the platform code for id.
func (t *Table) Code(id ID) (uint32, error) {
	if code, ok := t.byID[id]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("%s %q: %w", t.class, id, ErrNotFound)
}

// Has reports whether id is known to the table.
func (t *Table) Has(id ID) bool {
	_, ok := t.byID[id]
	return ok
}

// toggleKeys are keys whose press flips a persistent OS lock state.
var toggleKeys = map[ID]struct{}{
	"caps_lock":   {},
	"num_lock":    {},
	"scroll_lock": {},
}

// IsToggle reports whether id is a lock key whose state can be restored by
// re-sending it.
func IsToggle(id ID) bool {
	_, ok := toggleKeys[id]
	return ok
}

var keyboardAliases = map[string]ID{
	"capslock":        "caps_lock",
	"caps":            "caps_lock",
	"numlock":         "num_lock",
	"scrolllock":      "scroll_lock",
	"control":         "ctrl",
	"ctrl_l":          "ctrl",
	"control_l":       "ctrl",
	"control_r":       "ctrl_r",
	"shift_l":         "shift",
	"alt_l":           "alt",
	"alt_gr":          "alt_r",
	"altgr":           "alt_r",
	"option":          "alt",
	"win":             "cmd",
	"super":           "cmd",
	"meta":            "cmd",
	"cmd_l":           "cmd",
	"escape":          "esc",
	"return":          "enter",
	"del":             "delete",
	"ins":             "insert",
	"pageup":          "page_up",
	"pgup":            "page_up",
	"pagedown":        "page_down",
	"pgdn":            "page_down",
	"printscreen":     "print_screen",
	"prtsc":           "print_screen",
	"apps":            "menu",
	"decimal":         "num_decimal",
	"numpad_add":      "num_add",
	"numpad_subtract": "num_subtract",
	"numpad_multiply": "num_multiply",
	"numpad_divide":   "num_divide",
	",":               "comma",
	".":               "period",
	"/":               "slash",
	"\\":              "backslash",
	"`":               "grave",
	"'":               "quote",
	"-":               "minus",
	"=":               "equal",
	"[":               "bracket_left",
	"]":               "bracket_right",
	";":               "semicolon",
}

var mouseAliases = map[string]ID{
	"left":     "mouse_left",
	"right":    "mouse_right",
	"middle":   "mouse_middle",
	"center":   "mouse_middle",
	"xbutton1": "x1",
	"xbutton2": "x2",
	"mouse_x1": "x1",
	"mouse_x2": "x2",
	"back":     "x1",
	"forward":  "x2",
}

// Normalize turns a user-supplied key name into its canonical id for class.
// It lower-cases, trims, replaces spaces and dashes with underscores and
// resolves common aliases. It does not check that the id exists on the
// current platform.
func Normalize(class Class, name string) ID {
	s := strings.ToLower(strings.TrimSpace(name))
	if len(s) > 1 {
		s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	}
	s = strings.TrimPrefix(s, "key.")
	aliases := keyboardAliases
	if class == Mouse {
		aliases = mouseAliases
	}
	if id, ok := aliases[s]; ok {
		return id
	}
	if class == Keyboard && strings.HasPrefix(s, "numpad") {
		if d := strings.TrimPrefix(s, "numpad"); len(d) == 1 && d[0] >= '0' && d[0] <= '9' {
			return ID("num_" + d)
		}
	}
	return ID(s)
}
