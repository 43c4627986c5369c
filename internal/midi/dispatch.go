package midi

import gomidi "gitlab.com/gomidi/midi/v2"

// Bindings selects which channel and controllers turn pages
type Bindings struct {
	Channel         uint8 // 0-15
	NextPageControl uint8
	PrevPageControl uint8
	Device          string // preferred port name, empty if none
}

// DefaultBindings matches a sustain pedal for next page and a soft pedal for
// previous page on channel 1.
func DefaultBindings() Bindings {
	return Bindings{
		Channel:         0,
		NextPageControl: ControllerSustain,
		PrevPageControl: ControllerSoft,
	}
}

// IsNextPageControl reports whether msg is the configured next-page CC
func (b Bindings) IsNextPageControl(msg gomidi.Message) bool {
	return IsControlChange(msg, b.NextPageControl)
}

// IsPrevPageControl reports whether msg is the configured previous-page CC
func (b Bindings) IsPrevPageControl(msg gomidi.Message) bool {
	return IsControlChange(msg, b.PrevPageControl)
}

// EventKind enumerates what an incoming message means to the viewer
type EventKind int

const (
	EventMonitor EventKind = iota
	EventBankChanged
	EventNextPage
	EventPrevPage
	EventChannelActivated
)

func (k EventKind) String() string {
	switch k {
	case EventMonitor:
		return "monitor"
	case EventBankChanged:
		return "bank_changed"
	case EventNextPage:
		return "next_page"
	case EventPrevPage:
		return "prev_page"
	case EventChannelActivated:
		return "channel_activated"
	default:
		return "unknown"
	}
}

// Event is a semantic event derived from one incoming message.
// Only the fields relevant to Kind are set; for EventChannelActivated Data1
// holds the note number.
type Event struct {
	Kind     EventKind
	Channel  uint8
	Data1    uint8
	Data2    uint8
	Velocity uint8
	Bank     int
}

// Dispatch turns one raw message into the events it implies, in order:
// monitoring, bank change, page turn, channel activation.
// Only page turns are filtered by the bound channel.
func Dispatch(msg gomidi.Message, b Bindings) []Event {
	channel, ok := DecodeChannel(msg)
	if !ok {
		return nil
	}

	var events []Event

	if len(msg) >= 3 {
		events = append(events, Event{
			Kind:    EventMonitor,
			Channel: channel,
			Data1:   msg[1],
			Data2:   msg[2],
		})
	}

	if bank, ok := DecodeRegistrationBankChange(msg); ok {
		events = append(events, Event{Kind: EventBankChanged, Bank: bank})
	}

	if channel == b.Channel {
		// next page wins when both bindings name the same controller
		if b.IsNextPageControl(msg) {
			events = append(events, Event{Kind: EventNextPage, Channel: channel})
		} else if b.IsPrevPageControl(msg) {
			events = append(events, Event{Kind: EventPrevPage, Channel: channel})
		}
	}

	if IsNoteEvent(msg) {
		ev := Event{Kind: EventChannelActivated, Channel: channel}
		if len(msg) >= 2 {
			ev.Data1 = msg[1]
		}
		// note-off carries no velocity even when the byte is set
		if len(msg) >= 3 && !isNoteOff(msg) {
			ev.Velocity = msg[2]
		}
		events = append(events, ev)
	}

	return events
}
