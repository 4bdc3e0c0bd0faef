//go:build !windows && !linux

package input

import (
	"fmt"

	"dictakey/internal/keymap"
)

type noInjector struct{}

func newInjector() injector { return noInjector{} }

func (noInjector) handle(id keymap.ID) (Handle, error) {
	return Handle{}, fmt.Errorf("keyboard %q: %w", id, ErrUnsupported)
}

func (noInjector) inject(Kind, Handle) error { return ErrUnsupported }
