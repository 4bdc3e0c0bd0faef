package keymap

// Mouse button numbers follow libuiohook; the Windows adapter translates
// WM_*BUTTON* messages into the same numbering.
const (
	ButtonLeft   uint32 = 1
	ButtonRight  uint32 = 2
	ButtonMiddle uint32 = 3
	ButtonX1     uint32 = 4
	ButtonX2     uint32 = 5
)

// MouseButtons returns the mouse button table. Ids carry a mouse_ prefix
// where the bare name would collide with a keyboard key.
func MouseButtons() *Table {
	return NewTable(Mouse, []Entry{
		{ButtonLeft, "mouse_left"},
		{ButtonRight, "mouse_right"},
		{ButtonMiddle, "mouse_middle"},
		{ButtonX1, "x1"},
		{ButtonX2, "x2"},
	})
}
