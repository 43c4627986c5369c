package midi

import (
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often port liveness is rechecked
const DefaultPollInterval = time.Second

// defaultQueueSize bounds messages waiting for the client loop
const defaultQueueSize = 256

// Handlers receive client notifications. Any of them may be nil. They are
// called from the client's own goroutine or from the caller of the method that
// caused the change, never with client locks held.
type Handlers struct {
	OnConnectionChanged func(status ConnectionStatus)
	OnBankChanged       func(bank int)
	OnChannelActivated  func(channel, velocity uint8)
	OnMessage           func(channel, data1, data2 uint8)
	OnNextPage          func()
	OnPrevPage          func()
	OnBindingsChanged   func(b Bindings)
}

type clientOptions struct {
	logger       *zap.Logger
	pollInterval time.Duration
	queueSize    int
	bindings     Bindings
	handlers     Handlers
}

// Option configures a Client
type Option func(*clientOptions)

// WithLogger sets the logger used for warnings and debug traces
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithPollInterval overrides DefaultPollInterval
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.pollInterval = d
	}
}

// WithQueueSize sets how many incoming messages may wait for the client loop
// before new ones are dropped.
func WithQueueSize(n int) Option {
	return func(o *clientOptions) {
		o.queueSize = n
	}
}

// WithBindings sets the initial page-turn bindings
func WithBindings(b Bindings) Option {
	return func(o *clientOptions) {
		o.bindings = b
	}
}

// WithHandlers registers the notification callbacks
func WithHandlers(h Handlers) Option {
	return func(o *clientOptions) {
		o.handlers = h
	}
}

func applyOptions(opts ...Option) clientOptions {
	options := clientOptions{
		pollInterval: DefaultPollInterval,
		queueSize:    defaultQueueSize,
		bindings:     DefaultBindings(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.pollInterval <= 0 {
		options.pollInterval = DefaultPollInterval
	}
	if options.queueSize <= 0 {
		options.queueSize = defaultQueueSize
	}
	return options
}
