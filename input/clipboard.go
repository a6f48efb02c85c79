//go:build !headless

package input

import (
	"sync"

	"golang.design/x/clipboard"
)

var (
	clipboardOnce sync.Once
	clipboardOK   bool
)

// ReadClipboard returns the clipboard text ready to forward. It returns nil
// when the clipboard is empty or unavailable.
func ReadClipboard() []byte {
	clipboardOnce.Do(func() {
		clipboardOK = clipboard.Init() == nil
	})
	if !clipboardOK {
		return nil
	}
	data := clipboard.Read(clipboard.FmtText)
	if len(data) == 0 {
		return nil
	}
	return CapPaste(NormalizePaste(data), MaxPaste)
}
