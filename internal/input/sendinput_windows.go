//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"dictakey/internal/keymap"
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	mouseeventfXDown      = 0x0080
	mouseeventfXUp        = 0x0100
)

type mouseInput struct {
	dx        int32
	dy        int32
	mouseData uint32
	flags     uint32
	time      uint32
	extraInfo uintptr
}

type keybdInput struct {
	vk        uint16
	scan      uint16
	flags     uint32
	time      uint32
	extraInfo uintptr
}

// inputRecord mirrors INPUT. MOUSEINPUT is the largest union member, so it
// determines the size; keyboard input is written over the same bytes.
type inputRecord struct {
	typ uint32
	mi  mouseInput
}

// extendedKeys need KEYEVENTF_EXTENDEDKEY to be distinguished from their
// numpad twins.
var extendedKeys = map[uint32]struct{}{
	0x21: {}, 0x22: {}, 0x23: {}, 0x24: {},
	0x25: {}, 0x26: {}, 0x27: {}, 0x28: {},
	0x2D: {}, 0x2E: {},
	0x5B: {}, 0x5C: {}, 0x5D: {},
	0x6F: {},
	0xA3: {}, 0xA5: {},
}

// Inject synthesizes one transition with SendInput.
func (s *HookSource) Inject(kind Kind, h Handle) error {
	var rec inputRecord
	switch h.Class {
	case keymap.Keyboard:
		rec.typ = inputKeyboard
		ki := (*keybdInput)(unsafe.Pointer(&rec.mi))
		ki.vk = uint16(h.Code)
		if _, ok := extendedKeys[h.Code]; ok {
			ki.flags |= keyeventfExtendedKey
		}
		if kind == Release {
			ki.flags |= keyeventfKeyUp
		}
	case keymap.Mouse:
		rec.typ = inputMouse
		flags, data, err := mouseFlags(kind, h.Code)
		if err != nil {
			return err
		}
		rec.mi.flags = flags
		rec.mi.mouseData = data
	default:
		return fmt.Errorf("inject: unknown class %s", h.Class)
	}

	n, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&rec)), unsafe.Sizeof(rec))
	if n != 1 {
		return fmt.Errorf("SendInput %s %s %#x: %w", h.Class, kind, h.Code, err)
	}
	return nil
}

func mouseFlags(kind Kind, button uint32) (flags, data uint32, err error) {
	down := kind == Press
	pick := func(d, u uint32) uint32 {
		if down {
			return d
		}
		return u
	}
	switch button {
	case keymap.ButtonLeft:
		return pick(mouseeventfLeftDown, mouseeventfLeftUp), 0, nil
	case keymap.ButtonRight:
		return pick(mouseeventfRightDown, mouseeventfRightUp), 0, nil
	case keymap.ButtonMiddle:
		return pick(mouseeventfMiddleDown, mouseeventfMiddleUp), 0, nil
	case keymap.ButtonX1:
		return pick(mouseeventfXDown, mouseeventfXUp), xButton1, nil
	case keymap.ButtonX2:
		return pick(mouseeventfXDown, mouseeventfXUp), xButton2, nil
	}
	return 0, 0, fmt.Errorf("inject: mouse button %d: %w", button, keymap.ErrNotFound)
}
