package midi

import gomidi "gitlab.com/gomidi/midi/v2"

// Transport is the port layer the client drives. It enumerates ports, opens
// one input and one output at a time and reports their liveness. It does not
// push connection loss; the client polls IsConnected.
type Transport interface {
	InPorts() ([]Port, error)
	OutPorts() ([]Port, error)
	// Ports lists both sides from a single enumeration
	Ports() (ins, outs []Port, err error)

	// OpenIn opens p and delivers every received message to recv
	OpenIn(p Port, recv func(gomidi.Message)) error
	OpenOut(p Port) error

	// Close closes the open port of direction d, if any
	Close(d Direction) error
	IsConnected(d Direction) bool

	// Send writes msg to the open output port
	Send(msg gomidi.Message) error
}

// findPort resolves p against a fresh enumeration: an exact index and name
// match first, otherwise the first port with the same name.
func findPort(ports []Port, p Port) (Port, bool) {
	for _, candidate := range ports {
		if candidate == p {
			return candidate, true
		}
	}
	return findPortByName(ports, p.Name)
}

// findPortByName returns the first port called name
func findPortByName(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}
