package tray

import (
	"fmt"
	"sort"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"

	"github.com/spiritmusic/spiritsheet/internal/midi"
)

// Callbacks for tray menu actions
type Callbacks struct {
	OnQuit func()
}

// Tray is the system tray menu. It reflects the client's connection, bank and
// channel state and drives the client's commands.
type Tray struct {
	client    *midi.Client
	callbacks Callbacks
	menu      *fyne.Menu
	desk      desktop.App // nil when not running as a desktop app
}

// Setup builds the tray menu and installs it when app is a desktop app
func Setup(app fyne.App, client *midi.Client, callbacks Callbacks) *Tray {
	t := &Tray{
		client:    client,
		callbacks: callbacks,
	}
	t.menu = fyne.NewMenu("SpiritSheet", t.items()...)

	if desk, ok := app.(desktop.App); ok {
		t.desk = desk
		desk.SetSystemTrayMenu(t.menu)
		desk.SetSystemTrayIcon(theme.FileAudioIcon())
	}
	return t
}

// Menu returns the tray menu
func (t *Tray) Menu() *fyne.Menu {
	return t.menu
}

// Refresh rebuilds the menu from the client's current state. It is safe to
// call from any goroutine; ports are enumerated on the caller's goroutine.
func (t *Tray) Refresh() {
	items := t.items()
	fyne.Do(func() {
		t.menu.Items = items
		t.menu.Refresh()
		if t.desk != nil {
			t.desk.SetSystemTrayMenu(t.menu)
		}
	})
}

func (t *Tray) items() []*fyne.MenuItem {
	connection := t.client.Status()
	status := fyne.NewMenuItem(statusLabel(connection), nil)
	status.Disabled = true

	connectItem := fyne.NewMenuItem("Connect", nil)
	connectItem.ChildMenu = fyne.NewMenu("", t.deviceItems()...)

	refreshItem := fyne.NewMenuItem("Refresh Ports", t.Refresh)

	disconnectItem := fyne.NewMenuItem("Disconnect", func() {
		t.client.Disconnect()
	})
	disconnectItem.Disabled = !connection.Input && !connection.Output

	bankItem := fyne.NewMenuItem("Registration Bank", nil)
	bankItem.ChildMenu = fyne.NewMenu("", t.bankItems()...)

	channelItem := fyne.NewMenuItem("Page Turn Channel", nil)
	channelItem.ChildMenu = fyne.NewMenu("", t.channelItems()...)

	notesOffItem := fyne.NewMenuItem("All Notes Off", func() {
		_ = t.client.SendAllNotesOff()
	})

	quitItem := fyne.NewMenuItem("Quit", func() {
		if t.callbacks.OnQuit != nil {
			t.callbacks.OnQuit()
		}
	})
	quitItem.IsQuit = true

	return []*fyne.MenuItem{
		status,
		fyne.NewMenuItemSeparator(),
		connectItem,
		refreshItem,
		disconnectItem,
		fyne.NewMenuItemSeparator(),
		bankItem,
		channelItem,
		notesOffItem,
		fyne.NewMenuItemSeparator(),
		quitItem,
	}
}

// deviceItems lists every port name seen on either side once
func (t *Tray) deviceItems() []*fyne.MenuItem {
	ins, outs := t.client.Ports()
	names := map[string]bool{}
	for _, p := range ins {
		names[p.Name] = true
	}
	for _, p := range outs {
		names[p.Name] = true
	}
	if len(names) == 0 {
		none := fyne.NewMenuItem("No MIDI ports", nil)
		none.Disabled = true
		return []*fyne.MenuItem{none}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	current := t.client.Bindings().Device
	items := make([]*fyne.MenuItem, 0, len(sorted))
	for _, name := range sorted {
		name := name
		item := fyne.NewMenuItem(name, func() {
			_ = t.client.ConnectByName(name)
		})
		item.Checked = name == current
		items = append(items, item)
	}
	return items
}

func (t *Tray) bankItems() []*fyne.MenuItem {
	current := t.client.BankNumber()
	items := make([]*fyne.MenuItem, 0, midi.MaxBank)
	for bank := midi.MinBank; bank <= midi.MaxBank; bank++ {
		bank := bank
		item := fyne.NewMenuItem(fmt.Sprintf("Bank %d", bank), func() {
			if err := t.client.SendRegistrationBankChange(bank); err == nil {
				_ = t.client.SetBankNumber(bank)
			}
		})
		item.Checked = bank == current
		items = append(items, item)
	}
	return items
}

func (t *Tray) channelItems() []*fyne.MenuItem {
	current := int(t.client.Bindings().Channel)
	items := make([]*fyne.MenuItem, 0, 16)
	for channel := 0; channel < 16; channel++ {
		channel := channel
		item := fyne.NewMenuItem(fmt.Sprintf("Channel %d", channel+1), func() {
			_ = t.client.SetChannel(channel)
		})
		item.Checked = channel == current
		items = append(items, item)
	}
	return items
}

func statusLabel(s midi.ConnectionStatus) string {
	switch {
	case s.Input && s.Output:
		return "Connected"
	case s.Input:
		return "Connected (input only)"
	case s.Output:
		return "Connected (output only)"
	default:
		return "Not connected"
	}
}
