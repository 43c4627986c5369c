package midi

import (
	"errors"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// fakeTransport records what the client asks of the port layer
type fakeTransport struct {
	mu sync.Mutex

	ins  []Port
	outs []Port

	open    map[Direction]*Port
	recv    func(gomidi.Message)
	sent    []gomidi.Message
	closes  map[Direction]int
	failIn  error
	failOut error
	failTx  error
	lost    map[Direction]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		ins:    []Port{{Number: 0, Name: "Genos"}, {Number: 1, Name: "Through"}},
		outs:   []Port{{Number: 0, Name: "Genos"}, {Number: 1, Name: "Synth"}},
		open:   map[Direction]*Port{},
		closes: map[Direction]int{},
		lost:   map[Direction]bool{},
	}
}

func (f *fakeTransport) InPorts() ([]Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Port(nil), f.ins...), nil
}

func (f *fakeTransport) OutPorts() ([]Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Port(nil), f.outs...), nil
}

func (f *fakeTransport) Ports() ([]Port, []Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Port(nil), f.ins...), append([]Port(nil), f.outs...), nil
}

func (f *fakeTransport) OpenIn(p Port, recv func(gomidi.Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIn != nil {
		return f.failIn
	}
	found, ok := findPort(f.ins, p)
	if !ok {
		return ErrPortNotFound
	}
	f.open[DirectionIn] = &found
	f.recv = recv
	return nil
}

func (f *fakeTransport) OpenOut(p Port) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOut != nil {
		return f.failOut
	}
	found, ok := findPort(f.outs, p)
	if !ok {
		return ErrPortNotFound
	}
	f.open[DirectionOut] = &found
	return nil
}

func (f *fakeTransport) Close(d Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[d]++
	delete(f.open, d)
	delete(f.lost, d)
	if d == DirectionIn {
		f.recv = nil
	}
	return nil
}

func (f *fakeTransport) IsConnected(d Direction) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[d] != nil && !f.lost[d]
}

func (f *fakeTransport) Send(msg gomidi.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTx != nil {
		return f.failTx
	}
	if f.open[DirectionOut] == nil {
		return ErrNotConnected
	}
	f.sent = append(f.sent, msg)
	return nil
}

// deliver pushes msg through the receive callback as the driver would
func (f *fakeTransport) deliver(msg gomidi.Message) bool {
	f.mu.Lock()
	recv := f.recv
	f.mu.Unlock()
	if recv == nil {
		return false
	}
	recv(msg)
	return true
}

func (f *fakeTransport) unplug(d Direction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost[d] = true
}

func (f *fakeTransport) sentMessages() []gomidi.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gomidi.Message(nil), f.sent...)
}

var errDeviceGone = errors.New("device removed")
