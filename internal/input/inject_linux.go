//go:build linux

package input

import (
	"fmt"
	"sync"

	"github.com/micmonay/keybd_event"

	"dictakey/internal/keymap"
)

// uinputKeys maps canonical ids to keybd_event (evdev) codes.
var uinputKeys = map[keymap.ID]int{
	"a": keybd_event.VK_A, "b": keybd_event.VK_B, "c": keybd_event.VK_C,
	"d": keybd_event.VK_D, "e": keybd_event.VK_E, "f": keybd_event.VK_F,
	"g": keybd_event.VK_G, "h": keybd_event.VK_H, "i": keybd_event.VK_I,
	"j": keybd_event.VK_J, "k": keybd_event.VK_K, "l": keybd_event.VK_L,
	"m": keybd_event.VK_M, "n": keybd_event.VK_N, "o": keybd_event.VK_O,
	"p": keybd_event.VK_P, "q": keybd_event.VK_Q, "r": keybd_event.VK_R,
	"s": keybd_event.VK_S, "t": keybd_event.VK_T, "u": keybd_event.VK_U,
	"v": keybd_event.VK_V, "w": keybd_event.VK_W, "x": keybd_event.VK_X,
	"y": keybd_event.VK_Y, "z": keybd_event.VK_Z,
	"0": keybd_event.VK_0, "1": keybd_event.VK_1, "2": keybd_event.VK_2,
	"3": keybd_event.VK_3, "4": keybd_event.VK_4, "5": keybd_event.VK_5,
	"6": keybd_event.VK_6, "7": keybd_event.VK_7, "8": keybd_event.VK_8,
	"9":  keybd_event.VK_9,
	"f1": keybd_event.VK_F1, "f2": keybd_event.VK_F2, "f3": keybd_event.VK_F3,
	"f4": keybd_event.VK_F4, "f5": keybd_event.VK_F5, "f6": keybd_event.VK_F6,
	"f7": keybd_event.VK_F7, "f8": keybd_event.VK_F8, "f9": keybd_event.VK_F9,
	"f10": keybd_event.VK_F10, "f11": keybd_event.VK_F11, "f12": keybd_event.VK_F12,
	"esc":         keybd_event.VK_ESC,
	"space":       keybd_event.VK_SPACE,
	"enter":       keybd_event.VK_ENTER,
	"tab":         keybd_event.VK_TAB,
	"backspace":   keybd_event.VK_BACKSPACE,
	"delete":      keybd_event.VK_DELETE,
	"insert":      keybd_event.VK_INSERT,
	"home":        keybd_event.VK_HOME,
	"end":         keybd_event.VK_END,
	"page_up":     keybd_event.VK_PAGEUP,
	"page_down":   keybd_event.VK_PAGEDOWN,
	"up":          keybd_event.VK_UP,
	"down":        keybd_event.VK_DOWN,
	"left":        keybd_event.VK_LEFT,
	"right":       keybd_event.VK_RIGHT,
	"caps_lock":   keybd_event.VK_CAPSLOCK,
	"num_lock":    keybd_event.VK_NUMLOCK,
	"scroll_lock": keybd_event.VK_SCROLLLOCK,
}

// uinputInjector creates its uinput device on first use; device creation
// needs write access to /dev/uinput and is slow, so it stays off the
// startup path.
type uinputInjector struct {
	once    sync.Once
	mu      sync.Mutex
	kb      keybd_event.KeyBonding
	initErr error
}

func newInjector() injector { return &uinputInjector{} }

func (u *uinputInjector) handle(id keymap.ID) (Handle, error) {
	code, ok := uinputKeys[id]
	if !ok {
		return Handle{}, fmt.Errorf("keyboard %q: %w", id, keymap.ErrNotFound)
	}
	return Handle{Class: keymap.Keyboard, Code: uint32(code)}, nil
}

func (u *uinputInjector) inject(kind Kind, h Handle) error {
	u.once.Do(func() {
		u.kb, u.initErr = keybd_event.NewKeyBonding()
	})
	if u.initErr != nil {
		return fmt.Errorf("open uinput device: %w", u.initErr)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.kb.SetKeys(int(h.Code))
	if kind == Press {
		return u.kb.Press()
	}
	return u.kb.Release()
}
