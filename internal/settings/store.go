package settings

import "fyne.io/fyne/v2"

// Store is a flat key-value store with section/name keys such as
// "MIDI/Channel". Its methods are a subset of fyne.Preferences, so the
// desktop app's preferences can be used directly.
type Store interface {
	BoolWithFallback(key string, fallback bool) bool
	SetBool(key string, value bool)
	IntWithFallback(key string, fallback int) int
	SetInt(key string, value int)
	StringWithFallback(key, fallback string) string
	SetString(key string, value string)
}

var _ Store = (fyne.Preferences)(nil)
