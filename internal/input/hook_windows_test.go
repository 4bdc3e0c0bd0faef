//go:build windows

package input

import (
	"testing"
	"unsafe"

	"dictakey/internal/keymap"
)

func TestMouseTransition(t *testing.T) {
	tests := []struct {
		name      string
		message   uint32
		mouseData uint32
		wantKind  Kind
		wantCode  uint32
		wantOK    bool
	}{
		{name: "left down", message: wmLButtonDown, wantKind: Press, wantCode: keymap.ButtonLeft, wantOK: true},
		{name: "middle up", message: wmMButtonUp, wantKind: Release, wantCode: keymap.ButtonMiddle, wantOK: true},
		{name: "x1 down", message: wmXButtonDown, mouseData: xButton1 << 16, wantKind: Press, wantCode: keymap.ButtonX1, wantOK: true},
		{name: "x2 up", message: wmXButtonUp, mouseData: xButton2 << 16, wantKind: Release, wantCode: keymap.ButtonX2, wantOK: true},
		{name: "unknown x button", message: wmXButtonDown, mouseData: 3 << 16},
		{name: "mouse move", message: 0x0200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, code, ok := mouseTransition(tt.message, tt.mouseData)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (kind != tt.wantKind || code != tt.wantCode) {
				t.Errorf("mouseTransition() = (%v, %d), want (%v, %d)", kind, code, tt.wantKind, tt.wantCode)
			}
		})
	}
}

func TestInputRecordSize(t *testing.T) {
	want := uintptr(40)
	if unsafe.Sizeof(uintptr(0)) == 4 {
		want = 28
	}
	if got := unsafe.Sizeof(inputRecord{}); got != want {
		t.Errorf("sizeof(inputRecord) = %d, want %d", got, want)
	}
	if unsafe.Sizeof(keybdInput{}) > unsafe.Sizeof(mouseInput{}) {
		t.Error("keybdInput does not fit in the INPUT union")
	}
}

func TestMouseFlags(t *testing.T) {
	flags, data, err := mouseFlags(Press, keymap.ButtonX2)
	if err != nil {
		t.Fatal(err)
	}
	if flags != mouseeventfXDown || data != xButton2 {
		t.Errorf("mouseFlags(press, x2) = (%#x, %d)", flags, data)
	}
	flags, _, err = mouseFlags(Release, keymap.ButtonMiddle)
	if err != nil || flags != mouseeventfMiddleUp {
		t.Errorf("mouseFlags(release, middle) = (%#x, %v)", flags, err)
	}
	if _, _, err := mouseFlags(Press, 9); err == nil {
		t.Error("mouseFlags(press, 9) error = nil")
	}
}
