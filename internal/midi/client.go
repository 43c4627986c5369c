package midi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
)

// Client interprets incoming MIDI for the sheet viewer and exposes the
// outbound command surface. Incoming messages and connection polling are
// handled on one goroutine started by NewClient and stopped by Close.
type Client struct {
	transport    Transport
	logger       *zap.Logger
	handlers     Handlers
	pollInterval time.Duration

	mu       sync.Mutex
	bindings Bindings
	bank     int // 0 until the first bank is known
	status   ConnectionStatus
	// statusGen counts status refreshes by Connect and Disconnect
	statusGen uint64

	// connMu serializes Connect and Disconnect and guards closed
	connMu sync.Mutex
	closed bool

	incoming  chan gomidi.Message
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client over t and starts its polling loop
func NewClient(t Transport, opts ...Option) *Client {
	options := applyOptions(opts...)
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		transport:    t,
		logger:       options.logger,
		handlers:     options.handlers,
		pollInterval: options.pollInterval,
		bindings:     options.bindings,
		incoming:     make(chan gomidi.Message, options.queueSize),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go c.run(ctx)
	return c
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckConnectionStatus()
		case msg := <-c.incoming:
			c.HandleMessage(msg)
		}
	}
}

// Close stops the polling loop and closes both ports
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		c.connMu.Lock()
		defer c.connMu.Unlock()
		c.closed = true
		c.closePort(DirectionIn)
		c.closePort(DirectionOut)
	})
}

// enqueue hands a message from the transport to the client loop
func (c *Client) enqueue(msg gomidi.Message) {
	select {
	case c.incoming <- msg:
	default:
		c.logger.Warn("incoming queue full; dropping MIDI message", zap.Stringer("message", msg))
	}
}

// HandleMessage interprets one incoming message and notifies handlers
func (c *Client) HandleMessage(msg gomidi.Message) {
	events := Dispatch(msg, c.Bindings())

	for _, ev := range events {
		switch ev.Kind {
		case EventMonitor:
			if c.handlers.OnMessage != nil {
				c.handlers.OnMessage(ev.Channel, ev.Data1, ev.Data2)
			}
		case EventBankChanged:
			c.logger.Debug("registration bank change received", zap.Int("bank", ev.Bank))
			c.storeBank(ev.Bank)
		case EventNextPage:
			c.logger.Debug("next page control received", zap.Uint8("channel", ev.Channel))
			if c.handlers.OnNextPage != nil {
				c.handlers.OnNextPage()
			}
		case EventPrevPage:
			c.logger.Debug("previous page control received", zap.Uint8("channel", ev.Channel))
			if c.handlers.OnPrevPage != nil {
				c.handlers.OnPrevPage()
			}
		case EventChannelActivated:
			if ce := c.logger.Check(zap.DebugLevel, "note received"); ce != nil {
				ce.Write(
					zap.Uint8("channel", ev.Channel),
					zap.String("note", NoteName(int(ev.Data1))),
					zap.Uint8("velocity", ev.Velocity),
				)
			}
			if c.handlers.OnChannelActivated != nil {
				c.handlers.OnChannelActivated(ev.Channel, ev.Velocity)
			}
		}
	}
}

// ---- connection ----

// InputPorts lists the transport's input ports. Failures are logged and
// yield an empty list.
func (c *Client) InputPorts() []Port {
	ports, err := c.transport.InPorts()
	if err != nil {
		c.logger.Warn("failed to list input ports", zap.Error(err))
		return nil
	}
	return ports
}

// OutputPorts lists the transport's output ports
func (c *Client) OutputPorts() []Port {
	ports, err := c.transport.OutPorts()
	if err != nil {
		c.logger.Warn("failed to list output ports", zap.Error(err))
		return nil
	}
	return ports
}

// Ports lists input and output ports from one enumeration
func (c *Client) Ports() (ins, outs []Port) {
	ins, outs, err := c.transport.Ports()
	if err != nil {
		c.logger.Warn("failed to list ports", zap.Error(err))
		return nil, nil
	}
	return ins, outs
}

// Status returns the cached connection snapshot
func (c *Client) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CheckConnectionStatus re-reads port liveness from the transport and
// notifies only if either direction changed. A reading overtaken by Connect
// or Disconnect is dropped.
func (c *Client) CheckConnectionStatus() {
	c.mu.Lock()
	gen := c.statusGen
	c.mu.Unlock()

	in := c.transport.IsConnected(DirectionIn)
	out := c.transport.IsConnected(DirectionOut)

	c.mu.Lock()
	if gen != c.statusGen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale connection status")
		return
	}
	changed := in != c.status.Input || out != c.status.Output
	c.status.Input, c.status.Output = in, out
	if !in && !out {
		c.status.Session = ""
	}
	status := c.status
	c.mu.Unlock()

	if changed {
		c.logger.Info("connection status changed", zap.Bool("input", in), zap.Bool("output", out))
		c.notifyConnection(status)
	}
}

// Connect opens the given ports. A nil port leaves that direction as it is.
// Failures are logged and leave the failed direction closed. Observers are
// always notified afterwards.
func (c *Client) Connect(in, out *Port) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		c.logger.Warn("connect after close ignored")
		return
	}

	if in != nil {
		c.closePort(DirectionIn)
		port := *in
		err := safely(func() error { return c.transport.OpenIn(port, c.enqueue) })
		if err != nil {
			c.logger.Warn("failed to open input port", zap.Stringer("port", port), zap.Error(err))
			c.closePort(DirectionIn)
		} else {
			c.logger.Info("input port opened", zap.Stringer("port", port))
		}
	} else {
		c.logger.Info("no input port selected")
	}

	if out != nil {
		c.closePort(DirectionOut)
		port := *out
		err := safely(func() error { return c.transport.OpenOut(port) })
		if err != nil {
			c.logger.Warn("failed to open output port", zap.Stringer("port", port), zap.Error(err))
			c.closePort(DirectionOut)
		} else {
			c.logger.Info("output port opened", zap.Stringer("port", port))
		}
	} else {
		c.logger.Info("no output port selected")
	}

	c.notifyConnection(c.refreshStatus(uuid.NewString()))
}

// ConnectByName connects the input and output ports called name, as stored
// for the current device. Directions without such a port are left alone.
func (c *Client) ConnectByName(name string) error {
	if c.isClosed() {
		return c.reject("connect", ErrClosed)
	}

	ins, outs := c.Ports()
	var in, out *Port
	if p, ok := findPortByName(ins, name); ok {
		in = &p
	}
	if p, ok := findPortByName(outs, name); ok {
		out = &p
	}
	if in == nil && out == nil {
		c.logger.Warn("no port matches device", zap.String("device", name))
		return fmt.Errorf("%w: %s", ErrPortNotFound, name)
	}

	c.Connect(in, out)
	c.SetCurrentDevice(name)
	return nil
}

func (c *Client) isClosed() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.closed
}

// Disconnect closes both ports and always notifies observers
func (c *Client) Disconnect() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.closePort(DirectionIn)
	c.closePort(DirectionOut)
	c.logger.Info("disconnected")

	c.notifyConnection(c.refreshStatus(""))
}

func (c *Client) closePort(d Direction) {
	if err := safely(func() error { return c.transport.Close(d) }); err != nil {
		c.logger.Warn("failed to close port", zap.Stringer("direction", d), zap.Error(err))
	}
}

// refreshStatus stores the transport's current liveness under session and
// returns the new snapshot.
func (c *Client) refreshStatus(session string) ConnectionStatus {
	in := c.transport.IsConnected(DirectionIn)
	out := c.transport.IsConnected(DirectionOut)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusGen++
	c.status = ConnectionStatus{Input: in, Output: out}
	if in || out {
		c.status.Session = session
	}
	return c.status
}

func (c *Client) notifyConnection(status ConnectionStatus) {
	if c.handlers.OnConnectionChanged != nil {
		c.handlers.OnConnectionChanged(status)
	}
}

// safely runs a transport call, turning a driver panic into an error
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return fn()
}

// ---- bindings and bank ----

// Bindings returns the current page-turn bindings
func (c *Client) Bindings() Bindings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bindings
}

// SetBindings replaces all bindings at once after validating them
func (c *Client) SetBindings(b Bindings) error {
	if b.Channel > maxChannel {
		return c.reject("bindings", fmt.Errorf("%w: %d", ErrInvalidChannel, b.Channel))
	}
	if b.NextPageControl > 127 || b.PrevPageControl > 127 {
		return c.reject("bindings", ErrInvalidControl)
	}
	c.updateBindings(func(cur *Bindings) { *cur = b })
	return nil
}

// SetChannel binds page turning to a 0-based channel
func (c *Client) SetChannel(channel int) error {
	if err := checkChannel(channel); err != nil {
		return c.reject("channel", err)
	}
	c.updateBindings(func(b *Bindings) { b.Channel = uint8(channel) })
	return nil
}

// SetNextPageControl binds the next-page controller number
func (c *Client) SetNextPageControl(controller int) error {
	if err := checkController(controller); err != nil {
		return c.reject("next page control", err)
	}
	c.updateBindings(func(b *Bindings) { b.NextPageControl = uint8(controller) })
	return nil
}

// SetPrevPageControl binds the previous-page controller number
func (c *Client) SetPrevPageControl(controller int) error {
	if err := checkController(controller); err != nil {
		return c.reject("previous page control", err)
	}
	c.updateBindings(func(b *Bindings) { b.PrevPageControl = uint8(controller) })
	return nil
}

// SetCurrentDevice records the preferred device name
func (c *Client) SetCurrentDevice(name string) {
	c.updateBindings(func(b *Bindings) { b.Device = name })
}

func (c *Client) updateBindings(update func(*Bindings)) {
	c.mu.Lock()
	before := c.bindings
	update(&c.bindings)
	after := c.bindings
	c.mu.Unlock()

	if after != before && c.handlers.OnBindingsChanged != nil {
		c.handlers.OnBindingsChanged(after)
	}
}

func checkController(controller int) error {
	if controller < 0 || controller > 127 {
		return fmt.Errorf("%w: %d", ErrInvalidControl, controller)
	}
	return nil
}

// BankNumber returns the current registration bank, 0 if unknown
func (c *Client) BankNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bank
}

// SetBankNumber sets the current registration bank without sending anything
func (c *Client) SetBankNumber(bank int) error {
	if bank < MinBank || bank > MaxBank {
		return c.reject("bank number", fmt.Errorf("%w: %d", ErrInvalidBank, bank))
	}
	c.storeBank(bank)
	return nil
}

func (c *Client) storeBank(bank int) {
	c.mu.Lock()
	changed := c.bank != bank
	c.bank = bank
	c.mu.Unlock()

	if changed && c.handlers.OnBankChanged != nil {
		c.handlers.OnBankChanged(bank)
	}
}

// reject logs an invalid request and returns err unchanged
func (c *Client) reject(what string, err error) error {
	c.logger.Warn("rejected "+what, zap.Error(err))
	return err
}

// ---- sending ----

// SendRaw writes msg to the output port as is
func (c *Client) SendRaw(msg gomidi.Message) error {
	return c.send(msg)
}

// SendControlChange sends a CC on a 0-based channel
func (c *Client) SendControlChange(channel, controller, value int) error {
	msg, err := ControlChange(channel, controller, value)
	if err != nil {
		return c.reject("control change", err)
	}
	return c.send(msg)
}

// SendProgramChange sends a program change on a 0-based channel
func (c *Client) SendProgramChange(channel, program int) error {
	msg, err := ProgramChange(channel, program)
	if err != nil {
		return c.reject("program change", err)
	}
	return c.send(msg)
}

// SendAllNotesOff silences every channel
func (c *Client) SendAllNotesOff() error {
	return c.send(AllNotesOff()...)
}

// SendNotesOff silences one 0-based channel
func (c *Client) SendNotesOff(channel int) error {
	msg, err := NotesOff(channel)
	if err != nil {
		return c.reject("notes off", err)
	}
	return c.send(msg)
}

// SendMsbLsbPc selects a voice by bank MSB, bank LSB and program
func (c *Client) SendMsbLsbPc(channel, msb, lsb, pc int) error {
	msgs, err := MsbLsbPc(channel, msb, lsb, pc)
	if err != nil {
		return c.reject("bank/program select", err)
	}
	if err := c.send(msgs...); err != nil {
		return err
	}
	c.logger.Debug("voice selected",
		zap.Int("channel", channel),
		zap.Uint8("msb", msgs[0][2]),
		zap.Uint8("lsb", msgs[1][2]),
		zap.Uint8("pc", msgs[2][1]),
	)
	return nil
}

// SendRegistrationBankChange asks the instrument to switch registration bank
func (c *Client) SendRegistrationBankChange(bank int) error {
	msg, err := RegistrationBankChange(bank)
	if err != nil {
		return c.reject("registration bank change", err)
	}
	return c.send(msg)
}

func (c *Client) send(msgs ...gomidi.Message) error {
	for _, msg := range msgs {
		if err := safely(func() error { return c.transport.Send(msg) }); err != nil {
			c.logger.Warn("failed to send MIDI message", zap.Stringer("message", msg), zap.Error(err))
			return fmt.Errorf("send %s: %w", msg, err)
		}
	}
	return nil
}
