//go:build windows

package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"dictakey/internal/keymap"
	"dictakey/internal/workerutil"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procSendInput           = user32.NewProc("SendInput")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14
	hcAction     = 0

	wmQuit        = 0x0012
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C

	xButton1 = 0x0001
	xButton2 = 0x0002

	llkhfInjected = 0x00000010
	llmhfInjected = 0x00000001

	pmNoRemove = 0x0000

	loopStartTimeout = 2 * time.Second
	loopStopTimeout  = 2 * time.Second
)

// kbdLLHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdLLHookStruct struct {
	vkCode    uint32
	scanCode  uint32
	flags     uint32
	time      uint32
	extraInfo uintptr
}

type point struct {
	x int32
	y int32
}

// msLLHookStruct mirrors MSLLHOOKSTRUCT.
type msLLHookStruct struct {
	pt        point
	mouseData uint32
	flags     uint32
	time      uint32
	extraInfo uintptr
}

// winMsg mirrors MSG. The layout must match the Win32 definition on both
// 32-bit and 64-bit builds.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// Hook procedures are process-wide. Callbacks are created once because
// windows.NewCallback slots are never released; they forward to whichever
// observer is currently installed.
var (
	callbackOnce     sync.Once
	keyboardCallback uintptr
	mouseCallback    uintptr

	keyboardObserver atomic.Pointer[Observer]
	mouseObserver    atomic.Pointer[Observer]
)

func initCallbacks() {
	callbackOnce.Do(func() {
		keyboardCallback = windows.NewCallback(keyboardProc)
		mouseCallback = windows.NewCallback(mouseProc)
	})
}

// HookSource observes input through WH_KEYBOARD_LL and WH_MOUSE_LL hooks and
// injects with SendInput.
type HookSource struct {
	layout Layout

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	mu      sync.Mutex
	threads map[keymap.Class]uint32
}

// NewHookSource returns a Source backed by low-level Windows hooks.
func NewHookSource() *HookSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &HookSource{
		layout:  Layout{Keyboard: keymap.VirtualKeys(), Mouse: keymap.MouseButtons()},
		ctx:     ctx,
		cancel:  cancel,
		threads: make(map[keymap.Class]uint32),
	}
}

func (s *HookSource) Canonical(class keymap.Class, code uint32) (keymap.ID, bool) {
	return s.layout.Canonical(class, code)
}

func (s *HookSource) Handle(class keymap.Class, id keymap.ID) (Handle, error) {
	return s.layout.Handle(class, id)
}

// CanSuppress is true: a low-level hook that returns 1 swallows the event.
func (s *HookSource) CanSuppress() bool { return true }

// Listen installs the low-level hook for class on a dedicated, locked OS
// thread and waits for the installation result.
func (s *HookSource) Listen(class keymap.Class, obs Observer) error {
	if obs == nil {
		return errors.New("input: nil observer")
	}
	if s.closed.Load() {
		return errors.New("input: source closed")
	}
	if err := user32.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	initCallbacks()

	s.mu.Lock()
	if _, running := s.threads[class]; running {
		s.mu.Unlock()
		return fmt.Errorf("input: %s listener already running", class)
	}
	s.mu.Unlock()

	switch class {
	case keymap.Keyboard:
		keyboardObserver.Store(&obs)
	case keymap.Mouse:
		mouseObserver.Store(&obs)
	default:
		return fmt.Errorf("input: unknown class %s", class)
	}

	ready := make(chan error, 1)
	workerutil.RunWithPanicRecovery(s.ctx, "input-"+class.String()+"-hook", &s.wg, func(ctx context.Context) {
		s.runHookLoop(class, ready)
	}, workerutil.RecoveryOptions{
		MaxRetries: 3,
		IsShutdown: s.closed.Load,
	})

	timer := time.NewTimer(loopStartTimeout)
	defer timer.Stop()
	select {
	case err := <-ready:
		if err != nil {
			s.clearObserver(class)
			return fmt.Errorf("install %s hook: %w", class, err)
		}
		slog.Info("[input] hook installed", "class", class.String())
		return nil
	case <-timer.C:
		s.clearObserver(class)
		return fmt.Errorf("install %s hook: timed out after %s", class, loopStartTimeout)
	}
}

func (s *HookSource) clearObserver(class keymap.Class) {
	if class == keymap.Mouse {
		mouseObserver.Store(nil)
		return
	}
	keyboardObserver.Store(nil)
}

// runHookLoop owns the hook for its lifetime. Windows delivers low-level hook
// callbacks on the installing thread, so the thread must pump messages until
// WM_QUIT.
func (s *HookSource) runHookLoop(class keymap.Class, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	report := func(err error) {
		select {
		case ready <- err:
		default:
		}
	}

	// Force creation of the thread message queue so WM_QUIT can be posted.
	var qmsg winMsg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)

	hookID, callback := uintptr(whKeyboardLL), keyboardCallback
	if class == keymap.Mouse {
		hookID, callback = whMouseLL, mouseCallback
	}
	h, _, callErr := procSetWindowsHookExW.Call(hookID, callback, 0, 0)
	if h == 0 {
		report(fmt.Errorf("SetWindowsHookExW: %w", callErr))
		return
	}
	defer func() {
		if r, _, err := procUnhookWindowsHookEx.Call(h); r == 0 {
			slog.Warn("[input] UnhookWindowsHookEx failed", "class", class.String(), "error", err)
		}
	}()

	tid := windows.GetCurrentThreadId()
	s.mu.Lock()
	s.threads[class] = tid
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.threads[class] == tid {
			delete(s.threads, class)
		}
		s.mu.Unlock()
	}()
	report(nil)

	for {
		var msg winMsg
		ret, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("[input] GetMessageW failed, leaving hook loop", "class", class.String(), "error", err)
			return
		case 0:
			slog.Debug("[input] hook loop received WM_QUIT", "class", class.String())
			return
		}
	}
}

// Close removes both hooks and waits for their threads to exit.
func (s *HookSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	keyboardObserver.Store(nil)
	mouseObserver.Store(nil)

	var errs []error
	s.mu.Lock()
	for class, tid := range s.threads {
		if r, _, err := procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0); r == 0 {
			errs = append(errs, fmt.Errorf("post WM_QUIT to %s hook thread: %w", class, err))
		}
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(loopStopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		slog.Info("[input] hooks removed")
	case <-timer.C:
		slog.Warn("[input] hook loop stop timed out, thread may leak")
		errs = append(errs, errors.New("input: hook loop stop timed out"))
	}
	return errors.Join(errs...)
}

func callNext(nCode int, wParam, lParam uintptr) uintptr {
	r, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

func keyboardProc(nCode int, wParam, lParam uintptr) uintptr {
	obsPtr := keyboardObserver.Load()
	if nCode != hcAction || obsPtr == nil {
		return callNext(nCode, wParam, lParam)
	}
	kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
	var kind Kind
	switch uint32(wParam) {
	case wmKeyDown, wmSysKeyDown:
		kind = Press
	case wmKeyUp, wmSysKeyUp:
		kind = Release
	default:
		return callNext(nCode, wParam, lParam)
	}
	ev := Event{
		Kind:     kind,
		Class:    keymap.Keyboard,
		Code:     kb.vkCode,
		Time:     time.Now(),
		Injected: kb.flags&llkhfInjected != 0,
	}
	if deliver(*obsPtr, ev) == Suppress {
		return 1
	}
	return callNext(nCode, wParam, lParam)
}

func mouseProc(nCode int, wParam, lParam uintptr) uintptr {
	obsPtr := mouseObserver.Load()
	if nCode != hcAction || obsPtr == nil {
		return callNext(nCode, wParam, lParam)
	}
	ms := (*msLLHookStruct)(unsafe.Pointer(lParam))
	kind, button, ok := mouseTransition(uint32(wParam), ms.mouseData)
	if !ok {
		return callNext(nCode, wParam, lParam)
	}
	ev := Event{
		Kind:     kind,
		Class:    keymap.Mouse,
		Code:     button,
		Time:     time.Now(),
		Injected: ms.flags&llmhfInjected != 0,
	}
	if deliver(*obsPtr, ev) == Suppress {
		return 1
	}
	return callNext(nCode, wParam, lParam)
}

// mouseTransition maps a mouse hook message to a press or release of a
// keymap button number. Moves and wheel messages report ok=false.
func mouseTransition(message, mouseData uint32) (Kind, uint32, bool) {
	switch message {
	case wmLButtonDown:
		return Press, keymap.ButtonLeft, true
	case wmLButtonUp:
		return Release, keymap.ButtonLeft, true
	case wmRButtonDown:
		return Press, keymap.ButtonRight, true
	case wmRButtonUp:
		return Release, keymap.ButtonRight, true
	case wmMButtonDown:
		return Press, keymap.ButtonMiddle, true
	case wmMButtonUp:
		return Release, keymap.ButtonMiddle, true
	case wmXButtonDown, wmXButtonUp:
		kind := Press
		if message == wmXButtonUp {
			kind = Release
		}
		switch mouseData >> 16 {
		case xButton1:
			return kind, keymap.ButtonX1, true
		case xButton2:
			return kind, keymap.ButtonX2, true
		}
	}
	return 0, 0, false
}
