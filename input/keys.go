//go:build !headless

package input

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

type namedKey struct {
	name string
	code int
}

// namedKeys maps ebiten keys to the DOM key names and key codes guests
// built for a browser expect. Keys that produce characters, including
// space, arrive through the character path instead.
var namedKeys = map[ebiten.Key]namedKey{
	ebiten.KeyBackspace:    {"Backspace", 8},
	ebiten.KeyTab:          {"Tab", 9},
	ebiten.KeyEnter:        {"Enter", 13},
	ebiten.KeyNumpadEnter:  {"Enter", 13},
	ebiten.KeyShiftLeft:    {"Shift", 16},
	ebiten.KeyShiftRight:   {"Shift", 16},
	ebiten.KeyControlLeft:  {"Control", 17},
	ebiten.KeyControlRight: {"Control", 17},
	ebiten.KeyAltLeft:      {"Alt", 18},
	ebiten.KeyAltRight:     {"Alt", 18},
	ebiten.KeyPause:        {"Pause", 19},
	ebiten.KeyCapsLock:     {"CapsLock", 20},
	ebiten.KeyEscape:       {"Escape", 27},
	ebiten.KeyPageUp:       {"PageUp", 33},
	ebiten.KeyPageDown:     {"PageDown", 34},
	ebiten.KeyEnd:          {"End", 35},
	ebiten.KeyHome:         {"Home", 36},
	ebiten.KeyArrowLeft:    {"ArrowLeft", 37},
	ebiten.KeyArrowUp:      {"ArrowUp", 38},
	ebiten.KeyArrowRight:   {"ArrowRight", 39},
	ebiten.KeyArrowDown:    {"ArrowDown", 40},
	ebiten.KeyInsert:       {"Insert", 45},
	ebiten.KeyDelete:       {"Delete", 46},
	ebiten.KeyF1:           {"F1", 112},
	ebiten.KeyF2:           {"F2", 113},
	ebiten.KeyF3:           {"F3", 114},
	ebiten.KeyF4:           {"F4", 115},
	ebiten.KeyF5:           {"F5", 116},
	ebiten.KeyF6:           {"F6", 117},
	ebiten.KeyF7:           {"F7", 118},
	ebiten.KeyF8:           {"F8", 119},
	ebiten.KeyF9:           {"F9", 120},
	ebiten.KeyF10:          {"F10", 121},
	ebiten.KeyF11:          {"F11", 122},
	ebiten.KeyF12:          {"F12", 123},
}

// KeyCode returns the DOM key code for a named key.
func KeyCode(key ebiten.Key) (int, bool) {
	k, ok := namedKeys[key]
	return k.code, ok
}

// Poll appends this frame's key events to events. It must be called from
// the ebiten Update callback.
func Poll(events []Event) []Event {
	for _, r := range ebiten.AppendInputChars(nil) {
		events = append(events, Event{Key: string(r), Code: int(r), Down: true})
	}
	for key, k := range namedKeys {
		if inpututil.IsKeyJustPressed(key) {
			events = append(events, Event{Key: k.name, Code: k.code, Down: true})
		}
		if inpututil.IsKeyJustReleased(key) {
			events = append(events, Event{Key: k.name, Code: k.code, Down: false})
		}
	}
	return events
}

// PasteRequested reports whether Ctrl+Shift+V was pressed this frame.
func PasteRequested() bool {
	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	shift := ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	return ctrl && shift && inpututil.IsKeyJustPressed(ebiten.KeyV)
}
