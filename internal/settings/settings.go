package settings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spiritmusic/spiritsheet/internal/midi"
)

// Keys, by section and name
const (
	KeyAutoOpenLast    = "General/AutoOpenLast"
	KeyDefaultZoom     = "General/DefaultZoom"
	KeyDefaultViewMode = "General/DefaultViewMode"

	KeyMIDIChannel         = "MIDI/Channel"
	KeyMIDINextPageControl = "MIDI/NextPageControl"
	KeyMIDIPrevPageControl = "MIDI/PrevPageControl"
	KeyMIDIDevice          = "MIDI/Device"
)

// Defaults
const (
	DefaultAutoOpenLast    = false
	DefaultZoom            = 100
	DefaultViewMode        = 0
	DefaultMIDIChannel     = 1 // 1-16, as shown to the user
	DefaultNextPageControl = 64
	DefaultPrevPageControl = 67
)

// ErrOutOfRange is returned when a setting is written with a value it could
// not be loaded back with.
var ErrOutOfRange = errors.New("setting out of range")

// Settings caches the application settings and writes every change through
// to its Store.
type Settings struct {
	store Store

	mu              sync.RWMutex
	autoOpenLast    bool
	defaultZoom     int
	defaultViewMode int
	midiChannel     int
	nextPageControl int
	prevPageControl int
	midiDevice      string
}

// Load reads all settings from store, using defaults for missing or
// out-of-range values.
func Load(store Store) *Settings {
	s := &Settings{store: store}
	s.Reload()
	return s
}

// Reload re-reads all settings from the store
func (s *Settings) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoOpenLast = s.store.BoolWithFallback(KeyAutoOpenLast, DefaultAutoOpenLast)
	s.defaultZoom = s.store.IntWithFallback(KeyDefaultZoom, DefaultZoom)
	s.defaultViewMode = s.store.IntWithFallback(KeyDefaultViewMode, DefaultViewMode)

	s.midiChannel = inRange(s.store.IntWithFallback(KeyMIDIChannel, DefaultMIDIChannel), 1, 16, DefaultMIDIChannel)
	s.nextPageControl = inRange(s.store.IntWithFallback(KeyMIDINextPageControl, DefaultNextPageControl), 0, 127, DefaultNextPageControl)
	s.prevPageControl = inRange(s.store.IntWithFallback(KeyMIDIPrevPageControl, DefaultPrevPageControl), 0, 127, DefaultPrevPageControl)
	s.midiDevice = s.store.StringWithFallback(KeyMIDIDevice, "")
}

// ResetToDefaults writes the default value of every setting, including ones
// that already hold it, so a fresh store ends up fully populated.
func (s *Settings) ResetToDefaults() {
	s.store.SetBool(KeyAutoOpenLast, DefaultAutoOpenLast)
	s.store.SetInt(KeyDefaultZoom, DefaultZoom)
	s.store.SetInt(KeyDefaultViewMode, DefaultViewMode)

	s.store.SetInt(KeyMIDIChannel, DefaultMIDIChannel)
	s.store.SetInt(KeyMIDINextPageControl, DefaultNextPageControl)
	s.store.SetInt(KeyMIDIPrevPageControl, DefaultPrevPageControl)
	s.store.SetString(KeyMIDIDevice, "")

	s.Reload()
}

func inRange(v, lo, hi, fallback int) int {
	if v < lo || v > hi {
		return fallback
	}
	return v
}

func (s *Settings) AutoOpenLast() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoOpenLast
}

func (s *Settings) DefaultZoom() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultZoom
}

func (s *Settings) DefaultViewMode() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultViewMode
}

// MIDIChannel returns the page-turn channel, 1-16
func (s *Settings) MIDIChannel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.midiChannel
}

func (s *Settings) NextPageControl() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextPageControl
}

func (s *Settings) PrevPageControl() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prevPageControl
}

func (s *Settings) MIDIDevice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.midiDevice
}

func (s *Settings) SetAutoOpenLast(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.autoOpenLast != v {
		s.autoOpenLast = v
		s.store.SetBool(KeyAutoOpenLast, v)
	}
}

func (s *Settings) SetDefaultZoom(v int) {
	s.setInt(&s.defaultZoom, KeyDefaultZoom, v)
}

func (s *Settings) SetDefaultViewMode(v int) {
	s.setInt(&s.defaultViewMode, KeyDefaultViewMode, v)
}

// SetMIDIChannel stores the page-turn channel as 1-16
func (s *Settings) SetMIDIChannel(v int) error {
	return s.setBoundedInt(&s.midiChannel, KeyMIDIChannel, v, 1, 16)
}

func (s *Settings) SetNextPageControl(v int) error {
	return s.setBoundedInt(&s.nextPageControl, KeyMIDINextPageControl, v, 0, 127)
}

func (s *Settings) SetPrevPageControl(v int) error {
	return s.setBoundedInt(&s.prevPageControl, KeyMIDIPrevPageControl, v, 0, 127)
}

func (s *Settings) SetMIDIDevice(device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.midiDevice != device {
		s.midiDevice = device
		s.store.SetString(KeyMIDIDevice, device)
	}
}

func (s *Settings) setInt(field *int, key string, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *field != v {
		*field = v
		s.store.SetInt(key, v)
	}
}

// setBoundedInt rejects what Reload would replace with the default
func (s *Settings) setBoundedInt(field *int, key string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s=%d, want %d-%d", ErrOutOfRange, key, v, lo, hi)
	}
	s.setInt(field, key, v)
	return nil
}

// Bindings converts the stored MIDI settings to client bindings
func (s *Settings) Bindings() midi.Bindings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return midi.Bindings{
		Channel:         uint8(s.midiChannel - 1),
		NextPageControl: uint8(s.nextPageControl),
		PrevPageControl: uint8(s.prevPageControl),
		Device:          s.midiDevice,
	}
}

// SaveBindings stores client bindings, converting the channel to 1-16.
// Nothing is written unless every value is in range.
func (s *Settings) SaveBindings(b midi.Bindings) error {
	channel := int(b.Channel) + 1
	if channel > 16 {
		return fmt.Errorf("%w: %s=%d, want 1-16", ErrOutOfRange, KeyMIDIChannel, channel)
	}
	if b.NextPageControl > 127 || b.PrevPageControl > 127 {
		return fmt.Errorf("%w: page controls %d/%d, want 0-127", ErrOutOfRange, b.NextPageControl, b.PrevPageControl)
	}
	_ = s.SetMIDIChannel(channel)
	_ = s.SetNextPageControl(int(b.NextPageControl))
	_ = s.SetPrevPageControl(int(b.PrevPageControl))
	s.SetMIDIDevice(b.Device)
	return nil
}
