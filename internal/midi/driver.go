package midi

import (
	"fmt"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// enumerateTimeout bounds a port scan; some CoreMIDI states hang forever
const enumerateTimeout = 3 * time.Second

// DriverTransport implements Transport on top of the registered gomidi driver.
// The driver itself is registered by the binary (rtmididrv) or by tests.
type DriverTransport struct {
	mu sync.Mutex

	in   drivers.In
	stop func()

	out  drivers.Out
	send func(gomidi.Message) error
}

// NewDriverTransport creates a transport with no ports open
func NewDriverTransport() *DriverTransport {
	return &DriverTransport{}
}

// InPorts returns the available MIDI input ports
func (t *DriverTransport) InPorts() ([]Port, error) {
	ins, _, err := t.Ports()
	return ins, err
}

// OutPorts returns the available MIDI output ports
func (t *DriverTransport) OutPorts() ([]Port, error) {
	_, outs, err := t.Ports()
	return outs, err
}

// Ports returns the input and output ports of one driver scan
func (t *DriverTransport) Ports() ([]Port, []Port, error) {
	ins, outs, err := enumerate()
	if err != nil {
		return nil, nil, err
	}
	inPorts := make([]Port, 0, len(ins))
	for _, in := range ins {
		inPorts = append(inPorts, Port{Number: in.Number(), Name: in.String()})
	}
	outPorts := make([]Port, 0, len(outs))
	for _, out := range outs {
		outPorts = append(outPorts, Port{Number: out.Number(), Name: out.String()})
	}
	return inPorts, outPorts, nil
}

// OpenIn starts listening on p, SysEx included
func (t *DriverTransport) OpenIn(p Port, recv func(gomidi.Message)) error {
	ins, _, err := enumerate()
	if err != nil {
		return err
	}
	in := resolveIn(ins, p)
	if in == nil {
		return fmt.Errorf("%w: %s", ErrPortNotFound, p)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return fmt.Errorf("failed to open input %s: %w", p, err)
		}
	}

	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		// the driver may reuse its buffer once we return
		recv(append(gomidi.Message(nil), msg...))
	}, gomidi.UseSysEx())
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("failed to start listening: %w", err)
	}

	t.in = in
	t.stop = stop
	return nil
}

// OpenOut opens p for sending
func (t *DriverTransport) OpenOut(p Port) error {
	_, outs, err := enumerate()
	if err != nil {
		return err
	}
	out := resolveOut(outs, p)
	if out == nil {
		return fmt.Errorf("%w: %s", ErrPortNotFound, p)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	send, err := gomidi.SendTo(out)
	if err != nil {
		return fmt.Errorf("failed to create sender: %w", err)
	}

	t.out = out
	t.send = send
	return nil
}

// Close closes the port of direction d. Closing a direction with nothing
// open is not an error.
func (t *DriverTransport) Close(d Direction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch d {
	case DirectionIn:
		if t.in == nil {
			return nil
		}
		if t.stop != nil {
			t.stop()
		}
		err := t.in.Close()
		t.in, t.stop = nil, nil
		if err != nil {
			return fmt.Errorf("failed to close input: %w", err)
		}
	case DirectionOut:
		if t.out == nil {
			return nil
		}
		err := t.out.Close()
		t.out, t.send = nil, nil
		if err != nil {
			return fmt.Errorf("failed to close output: %w", err)
		}
	}
	return nil
}

// IsConnected reports whether the port of direction d is open and still
// present in the driver's enumeration.
func (t *DriverTransport) IsConnected(d Direction) bool {
	t.mu.Lock()
	in, out := t.in, t.out
	t.mu.Unlock()

	switch d {
	case DirectionIn:
		if in == nil || !in.IsOpen() {
			return false
		}
		ins, _, err := enumerate()
		if err != nil {
			return false
		}
		return resolveIn(ins, Port{Number: in.Number(), Name: in.String()}) != nil
	case DirectionOut:
		if out == nil || !out.IsOpen() {
			return false
		}
		_, outs, err := enumerate()
		if err != nil {
			return false
		}
		return resolveOut(outs, Port{Number: out.Number(), Name: out.String()}) != nil
	}
	return false
}

// Send writes msg to the open output port
func (t *DriverTransport) Send(msg gomidi.Message) error {
	t.mu.Lock()
	send := t.send
	t.mu.Unlock()

	if send == nil {
		return ErrNotConnected
	}
	return send(msg)
}

// Shutdown closes both ports and the driver
func (t *DriverTransport) Shutdown() {
	_ = t.Close(DirectionIn)
	_ = t.Close(DirectionOut)
	gomidi.CloseDriver()
}

type portScan struct {
	ins  []drivers.In
	outs []drivers.Out
}

// enumerate lists the driver's ports, giving up after enumerateTimeout
func enumerate() ([]drivers.In, []drivers.Out, error) {
	ch := make(chan portScan, 1)
	go func() {
		ch <- portScan{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case scan := <-ch:
		return scan.ins, scan.outs, nil
	case <-time.After(enumerateTimeout):
		return nil, nil, fmt.Errorf("port enumeration timed out after %s", enumerateTimeout)
	}
}

func resolveIn(ins []drivers.In, p Port) drivers.In {
	ports := make([]Port, len(ins))
	for i, in := range ins {
		ports[i] = Port{Number: in.Number(), Name: in.String()}
	}
	found, ok := findPort(ports, p)
	if !ok {
		return nil
	}
	for _, in := range ins {
		if in.Number() == found.Number {
			return in
		}
	}
	return nil
}

func resolveOut(outs []drivers.Out, p Port) drivers.Out {
	ports := make([]Port, len(outs))
	for i, out := range outs {
		ports[i] = Port{Number: out.Number(), Name: out.String()}
	}
	found, ok := findPort(ports, p)
	if !ok {
		return nil
	}
	for _, out := range outs {
		if out.Number() == found.Number {
			return out
		}
	}
	return nil
}
