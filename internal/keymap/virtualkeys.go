package keymap

// VirtualKeys returns the Windows virtual-key table used by low-level
// keyboard hooks and SendInput. Left-hand modifier codes take precedence
// over the generic VK_SHIFT/VK_CONTROL/VK_MENU codes for injection.
func VirtualKeys() *Table {
	return NewTable(Keyboard, []Entry{
		{0x41, "a"},
		{0x42, "b"},
		{0x43, "c"},
		{0x44, "d"},
		{0x45, "e"},
		{0x46, "f"},
		{0x47, "g"},
		{0x48, "h"},
		{0x49, "i"},
		{0x4A, "j"},
		{0x4B, "k"},
		{0x4C, "l"},
		{0x4D, "m"},
		{0x4E, "n"},
		{0x4F, "o"},
		{0x50, "p"},
		{0x51, "q"},
		{0x52, "r"},
		{0x53, "s"},
		{0x54, "t"},
		{0x55, "u"},
		{0x56, "v"},
		{0x57, "w"},
		{0x58, "x"},
		{0x59, "y"},
		{0x5A, "z"},
		{0x30, "0"},
		{0x31, "1"},
		{0x32, "2"},
		{0x33, "3"},
		{0x34, "4"},
		{0x35, "5"},
		{0x36, "6"},
		{0x37, "7"},
		{0x38, "8"},
		{0x39, "9"},
		{0x70, "f1"},
		{0x71, "f2"},
		{0x72, "f3"},
		{0x73, "f4"},
		{0x74, "f5"},
		{0x75, "f6"},
		{0x76, "f7"},
		{0x77, "f8"},
		{0x78, "f9"},
		{0x79, "f10"},
		{0x7A, "f11"},
		{0x7B, "f12"},
		{0x7C, "f13"},
		{0x7D, "f14"},
		{0x7E, "f15"},
		{0x7F, "f16"},
		{0x80, "f17"},
		{0x81, "f18"},
		{0x82, "f19"},
		{0x83, "f20"},
		{0x84, "f21"},
		{0x85, "f22"},
		{0x86, "f23"},
		{0x87, "f24"},
		{0x60, "num_0"},
		{0x61, "num_1"},
		{0x62, "num_2"},
		{0x63, "num_3"},
		{0x64, "num_4"},
		{0x65, "num_5"},
		{0x66, "num_6"},
		{0x67, "num_7"},
		{0x68, "num_8"},
		{0x69, "num_9"},
		{0x08, "backspace"},
		{0x09, "tab"},
		{0x0D, "enter"},
		{0x13, "pause"},
		{0x14, "caps_lock"},
		{0x1B, "esc"},
		{0x20, "space"},
		{0x21, "page_up"},
		{0x22, "page_down"},
		{0x23, "end"},
		{0x24, "home"},
		{0x25, "left"},
		{0x26, "up"},
		{0x27, "right"},
		{0x28, "down"},
		{0x2C, "print_screen"},
		{0x2D, "insert"},
		{0x2E, "delete"},
		{0x5B, "cmd"},
		{0x5C, "cmd_r"},
		{0x5D, "menu"},
		{0x6A, "num_multiply"},
		{0x6B, "num_add"},
		{0x6D, "num_subtract"},
		{0x6E, "num_decimal"},
		{0x6F, "num_divide"},
		{0x90, "num_lock"},
		{0x91, "scroll_lock"},
		{0xA0, "shift"},
		{0xA1, "shift_r"},
		{0xA2, "ctrl"},
		{0xA3, "ctrl_r"},
		{0xA4, "alt"},
		{0xA5, "alt_r"},
		{0x10, "shift"},
		{0x11, "ctrl"},
		{0x12, "alt"},
		{0xAD, "volume_mute"},
		{0xAE, "volume_down"},
		{0xAF, "volume_up"},
		{0xB0, "media_next"},
		{0xB1, "media_previous"},
		{0xB2, "media_stop"},
		{0xB3, "media_play_pause"},
		{0xBA, "semicolon"},
		{0xBB, "equal"},
		{0xBC, "comma"},
		{0xBD, "minus"},
		{0xBE, "period"},
		{0xBF, "slash"},
		{0xC0, "grave"},
		{0xDB, "bracket_left"},
		{0xDC, "backslash"},
		{0xDD, "bracket_right"},
		{0xDE, "quote"},
	})
}
