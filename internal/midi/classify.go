package midi

import gomidi "gitlab.com/gomidi/midi/v2"

// Status nibbles of channel voice messages
const (
	statusNoteOff       uint8 = 0x80
	statusNoteOn        uint8 = 0x90
	statusControlChange uint8 = 0xB0
)

// SysEx framing bytes
const (
	sysExStart uint8 = 0xF0
	sysExEnd   uint8 = 0xF7
)

// registrationSignature is the fixed part of a registration bank change:
// F0 43 73 01 52 25 11 00 02 00 <bank-1> F7
var registrationSignature = [...]byte{67, 115, 1, 82, 37, 17, 0, 2, 0}

const registrationFrameLen = len(registrationSignature) + 3

// IsNoteEvent reports whether msg is a note-on or note-off
func IsNoteEvent(msg gomidi.Message) bool {
	if len(msg) == 0 {
		return false
	}
	kind := msg[0] & 0xF0
	return kind == statusNoteOff || kind == statusNoteOn
}

func isNoteOff(msg gomidi.Message) bool {
	return len(msg) > 0 && msg[0]&0xF0 == statusNoteOff
}

// IsControlChange reports whether msg is a control change for controller
func IsControlChange(msg gomidi.Message, controller uint8) bool {
	if len(msg) < 2 {
		return false
	}
	return msg[0]&0xF0 == statusControlChange && msg[1] == controller
}

// IsVolumeControl reports whether msg is a channel volume change (CC#7)
func IsVolumeControl(msg gomidi.Message) bool {
	return IsControlChange(msg, ControllerVolume)
}

// DecodeChannel returns the channel (0-15) carried in the status byte.
// ok is false for an empty message.
func DecodeChannel(msg gomidi.Message) (channel uint8, ok bool) {
	if len(msg) == 0 {
		return 0, false
	}
	return msg[0] & 0x0F, true
}

// DecodeRegistrationBankChange recognizes a registration memory bank change
// and returns the 1-based bank number.
func DecodeRegistrationBankChange(msg gomidi.Message) (bank int, ok bool) {
	if len(msg) != registrationFrameLen {
		return 0, false
	}
	if msg[0] != sysExStart || msg[len(msg)-1] != sysExEnd {
		return 0, false
	}
	for i, b := range registrationSignature {
		if msg[i+1] != b {
			return 0, false
		}
	}

	index := int(msg[registrationFrameLen-2])
	if index > MaxBank-MinBank {
		return 0, false
	}
	return index + MinBank, true
}
