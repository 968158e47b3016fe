package midiio

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

func noteOnMessage(channel, key, velocity uint8) midi.Message {
	return midi.NoteOn(channel, key, velocity)
}

func TestEncodeDecodeControlChangeRoundTrips(t *testing.T) {
	want := ControlChange{Channel: 1, Controller: 27, Value: 64}
	msg := EncodeControlChange(want)

	got, ok := DecodeControlChange(msg)
	if !ok {
		t.Fatal("expected DecodeControlChange to recognize an encoded control-change")
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestDecodeControlChangeRejectsOtherMessageTypes(t *testing.T) {
	noteOn := noteOnMessage(0, 60, 100)
	if _, ok := DecodeControlChange(noteOn); ok {
		t.Fatal("expected DecodeControlChange to reject a note-on message")
	}
}

func TestFindByNameReturnsErrorWhenMissing(t *testing.T) {
	devices := []Device{{ID: 0, Name: "Keystation Mini"}}
	if _, err := FindByName(devices, "Nonexistent Device"); err == nil {
		t.Fatal("expected an error for an unknown device name")
	}
	found, err := FindByName(devices, "Keystation Mini")
	if err != nil || found.ID != 0 {
		t.Fatalf("expected to find Keystation Mini, got %+v, err %v", found, err)
	}
}
