package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"fyne.io/fyne/v2/app"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register rtmidi driver
	"go.uber.org/zap"

	"github.com/spiritmusic/spiritsheet/internal/logging"
	"github.com/spiritmusic/spiritsheet/internal/midi"
	"github.com/spiritmusic/spiritsheet/internal/settings"
	"github.com/spiritmusic/spiritsheet/internal/tray"
)

var (
	debug        = flag.Bool("debug", false, "log at debug level")
	logFile      = flag.String("log-file", "", "write logs to this file instead of stderr")
	list         = flag.Bool("list", false, "list MIDI ports and exit")
	headless     = flag.Bool("headless", false, "run without the tray menu, keeping settings in a JSON file")
	settingsPath = flag.String("settings", "", "settings file for -headless (default: user config dir)")
	device       = flag.String("device", "", "connect to this MIDI device instead of the saved one")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code once every deferred cleanup has run
func run() int {
	logOpts := logging.Options{Debug: *debug}
	if *logFile != "" {
		logOpts.Destination = logging.File
		logOpts.FilePath = *logFile
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer logger.Sync()

	transport := midi.NewDriverTransport()
	defer transport.Shutdown()

	if *list {
		if err := listPorts(transport); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			return 1
		}
		return 0
	}

	if *headless {
		err = runHeadless(logger, transport)
	} else {
		err = runTray(logger, transport)
	}
	if err != nil {
		logger.Error("exiting", zap.Error(err))
		return 1
	}
	return 0
}

func listPorts(t midi.Transport) error {
	ins, outs, err := t.Ports()
	if err != nil {
		return err
	}
	fmt.Print("\n--- MIDI input ports ---\n\n")
	for _, p := range ins {
		fmt.Printf("[%d] %q\n", p.Number, p.Name)
	}

	fmt.Print("\n--- MIDI output ports ---\n\n")
	for _, p := range outs {
		fmt.Printf("[%d] %q\n", p.Number, p.Name)
	}
	return nil
}

// handlers logs client events and keeps the settings in sync with the
// client's bindings. refresh, if set, is called whenever the menu may be
// stale.
func handlers(logger *zap.Logger, cfg *settings.Settings, refresh func()) midi.Handlers {
	if refresh == nil {
		refresh = func() {}
	}
	return midi.Handlers{
		OnConnectionChanged: func(s midi.ConnectionStatus) {
			logger.Info("connection changed",
				zap.Bool("input", s.Input),
				zap.Bool("output", s.Output),
				zap.String("session", s.Session))
			refresh()
		},
		OnBankChanged: func(bank int) {
			logger.Info("registration bank", zap.Int("bank", bank))
			refresh()
		},
		OnNextPage: func() {
			logger.Info("next page")
		},
		OnPrevPage: func() {
			logger.Info("previous page")
		},
		OnChannelActivated: func(channel, velocity uint8) {
			logger.Debug("channel active", zap.Int("channel", int(channel)+1), zap.Uint8("velocity", velocity))
		},
		OnMessage: func(channel, data1, data2 uint8) {
			logger.Debug("midi", zap.Int("channel", int(channel)+1), zap.Uint8("data1", data1), zap.Uint8("data2", data2))
		},
		OnBindingsChanged: func(b midi.Bindings) {
			if err := cfg.SaveBindings(b); err != nil {
				logger.Warn("failed to save bindings", zap.Error(err))
			}
			refresh()
		},
	}
}

func connectSaved(logger *zap.Logger, client *midi.Client, cfg *settings.Settings) {
	name := cfg.MIDIDevice()
	if *device != "" {
		name = *device
	}
	if name == "" {
		return
	}
	if err := client.ConnectByName(name); err != nil {
		logger.Warn("saved MIDI device unavailable", zap.String("device", name), zap.Error(err))
	}
}

func runTray(logger *zap.Logger, transport midi.Transport) error {
	fyneApp := app.NewWithID("com.spiritmusic.spiritsheet")
	cfg := settings.Load(fyneApp.Preferences())

	var menu atomic.Pointer[tray.Tray]
	refresh := func() {
		if t := menu.Load(); t != nil {
			t.Refresh()
		}
	}

	client := midi.NewClient(transport,
		midi.WithLogger(logger.Named("midi")),
		midi.WithBindings(cfg.Bindings()),
		midi.WithHandlers(handlers(logger, cfg, refresh)),
	)
	defer client.Close()

	menu.Store(tray.Setup(fyneApp, client, tray.Callbacks{
		OnQuit: fyneApp.Quit,
	}))
	connectSaved(logger, client, cfg)

	// Run the Fyne app (this blocks until app.Quit is called)
	fyneApp.Run()
	return nil
}

func runHeadless(logger *zap.Logger, transport midi.Transport) error {
	path := *settingsPath
	if path == "" {
		var err error
		if path, err = settings.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := settings.OpenFileStore(path)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	cfg := settings.Load(store)
	if !store.Exists() {
		cfg.ResetToDefaults()
		if err := store.Err(); err != nil {
			logger.Warn("failed to save settings", zap.String("path", path), zap.Error(err))
		}
	}

	client := midi.NewClient(transport,
		midi.WithLogger(logger.Named("midi")),
		midi.WithBindings(cfg.Bindings()),
		midi.WithHandlers(handlers(logger, cfg, nil)),
	)
	defer client.Close()

	connectSaved(logger, client, cfg)
	logger.Info("listening for page turns; press Ctrl+C to exit",
		zap.Int("channel", cfg.MIDIChannel()),
		zap.Int("next", cfg.NextPageControl()),
		zap.Int("prev", cfg.PrevPageControl()))

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	<-sigchan
	return nil
}
