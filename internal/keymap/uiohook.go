package keymap

// UiohookKeys returns the libuiohook virtual-code table reported by the
// cross-platform hook on Linux and macOS.
func UiohookKeys() *Table {
	return NewTable(Keyboard, []Entry{
		{0x10, "q"},
		{0x11, "w"},
		{0x12, "e"},
		{0x13, "r"},
		{0x14, "t"},
		{0x15, "y"},
		{0x16, "u"},
		{0x17, "i"},
		{0x18, "o"},
		{0x19, "p"},
		{0x1E, "a"},
		{0x1F, "s"},
		{0x20, "d"},
		{0x21, "f"},
		{0x22, "g"},
		{0x23, "h"},
		{0x24, "j"},
		{0x25, "k"},
		{0x26, "l"},
		{0x2C, "z"},
		{0x2D, "x"},
		{0x2E, "c"},
		{0x2F, "v"},
		{0x30, "b"},
		{0x31, "n"},
		{0x32, "m"},
		{0x02, "1"},
		{0x03, "2"},
		{0x04, "3"},
		{0x05, "4"},
		{0x06, "5"},
		{0x07, "6"},
		{0x08, "7"},
		{0x09, "8"},
		{0x0A, "9"},
		{0x0B, "0"},
		{0x3B, "f1"},
		{0x3C, "f2"},
		{0x3D, "f3"},
		{0x3E, "f4"},
		{0x3F, "f5"},
		{0x40, "f6"},
		{0x41, "f7"},
		{0x42, "f8"},
		{0x43, "f9"},
		{0x44, "f10"},
		{0x57, "f11"},
		{0x58, "f12"},
		{0x5B, "f13"},
		{0x5C, "f14"},
		{0x5D, "f15"},
		{0x63, "f16"},
		{0x64, "f17"},
		{0x65, "f18"},
		{0x66, "f19"},
		{0x67, "f20"},
		{0x68, "f21"},
		{0x69, "f22"},
		{0x6A, "f23"},
		{0x6B, "f24"},
		{0x01, "esc"},
		{0x0C, "minus"},
		{0x0D, "equal"},
		{0x0E, "backspace"},
		{0x0F, "tab"},
		{0x1A, "bracket_left"},
		{0x1B, "bracket_right"},
		{0x1C, "enter"},
		{0x1D, "ctrl"},
		{0x27, "semicolon"},
		{0x28, "quote"},
		{0x29, "grave"},
		{0x2A, "shift"},
		{0x2B, "backslash"},
		{0x33, "comma"},
		{0x34, "period"},
		{0x35, "slash"},
		{0x36, "shift_r"},
		{0x38, "alt"},
		{0x39, "space"},
		{0x3A, "caps_lock"},
		{0x45, "num_lock"},
		{0x46, "scroll_lock"},
		{0xE1D, "ctrl_r"},
		{0xE38, "alt_r"},
		{0xE37, "print_screen"},
		{0xE45, "pause"},
		{0xE47, "home"},
		{0xE49, "page_up"},
		{0xE4F, "end"},
		{0xE51, "page_down"},
		{0xE52, "insert"},
		{0xE53, "delete"},
		{0xE5B, "cmd"},
		{0xE5C, "cmd_r"},
		{0xE5D, "menu"},
		{0xE048, "up"},
		{0xE04B, "left"},
		{0xE04D, "right"},
		{0xE050, "down"},
	})
}
