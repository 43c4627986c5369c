package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

const maxChannel = 15

// clamp7 bounds v to the 7-bit data byte range
func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

func checkChannel(channel int) error {
	if channel < 0 || channel > maxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

// ControlChange builds a CC message. channel is 0-based.
func ControlChange(channel, controller, value int) (gomidi.Message, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	return gomidi.ControlChange(uint8(channel), clamp7(controller), clamp7(value)), nil
}

// ProgramChange builds a program change message. channel is 0-based.
func ProgramChange(channel, program int) (gomidi.Message, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	return gomidi.ProgramChange(uint8(channel), clamp7(program)), nil
}

// NotesOff builds an all-notes-off (CC#123) for a single channel
func NotesOff(channel int) (gomidi.Message, error) {
	return ControlChange(channel, int(ControllerAllNotesOff), 0)
}

// AllNotesOff builds an all-notes-off for every channel, lowest first
func AllNotesOff() []gomidi.Message {
	msgs := make([]gomidi.Message, 0, maxChannel+1)
	for ch := uint8(0); ch <= maxChannel; ch++ {
		msgs = append(msgs, gomidi.ControlChange(ch, ControllerAllNotesOff, 0))
	}
	return msgs
}

// MsbLsbPc builds a bank select MSB, bank select LSB and program change,
// in that order, on one channel.
func MsbLsbPc(channel, msb, lsb, pc int) ([]gomidi.Message, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	ch := uint8(channel)
	return []gomidi.Message{
		gomidi.ControlChange(ch, ControllerBankMSB, clamp7(msb)),
		gomidi.ControlChange(ch, ControllerBankLSB, clamp7(lsb)),
		gomidi.ProgramChange(ch, clamp7(pc)),
	}, nil
}

// RegistrationBankChange builds the SysEx frame that selects a registration
// memory bank (1-10).
func RegistrationBankChange(bank int) (gomidi.Message, error) {
	if bank < MinBank || bank > MaxBank {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBank, bank)
	}
	data := make([]byte, 0, len(registrationSignature)+1)
	data = append(data, registrationSignature[:]...)
	data = append(data, uint8(bank-MinBank))
	return gomidi.SysEx(data), nil
}
