package midi

import (
	"errors"
	"fmt"
)

// Direction selects the input or output side of a connection
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Port identifies a MIDI endpoint by its enumeration index and name.
// The transport owns the underlying handle; a Port is only a reference to it.
type Port struct {
	Number int
	Name   string
}

func (p Port) String() string {
	return fmt.Sprintf("%d: %s", p.Number, p.Name)
}

// ConnectionStatus is the cached snapshot of port liveness
type ConnectionStatus struct {
	Input   bool
	Output  bool
	Session string // changes on every Connect
}

// Bank numbers selectable through registration memory
const (
	MinBank = 1
	MaxBank = 10
)

// Well-known controller numbers
const (
	ControllerBankMSB     uint8 = 0
	ControllerVolume      uint8 = 7
	ControllerBankLSB     uint8 = 32
	ControllerSustain     uint8 = 64
	ControllerSoft        uint8 = 67
	ControllerAllNotesOff uint8 = 123
)

var (
	ErrInvalidChannel = errors.New("midi channel out of range")
	ErrInvalidControl = errors.New("controller number out of range")
	ErrInvalidBank    = errors.New("registration bank out of range")
	ErrNotConnected   = errors.New("port not connected")
	ErrPortNotFound   = errors.New("port not found")
	ErrClosed         = errors.New("client closed")
)
