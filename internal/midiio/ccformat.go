package midiio

import "gitlab.com/gomidi/midi/v2"

// ControlChange is a decoded MIDI control-change message: channel 0-15,
// controller and value 0-127.
type ControlChange struct {
	Channel    uint8
	Controller uint8
	Value      uint8
}

// EncodeControlChange builds the raw MIDI message for a control-change,
// for feeding to drivers.Out.Send or for tests exercising DecodeControlChange.
func EncodeControlChange(cc ControlChange) midi.Message {
	return midi.ControlChange(cc.Channel, cc.Controller, cc.Value)
}

// DecodeControlChange extracts channel/controller/value from a raw MIDI
// message, reporting ok=false for any other message type.
func DecodeControlChange(msg midi.Message) (ControlChange, bool) {
	var channel, controller, value uint8
	if !msg.GetControlChange(&channel, &controller, &value) {
		return ControlChange{}, false
	}
	return ControlChange{Channel: channel, Controller: controller, Value: value}, true
}
