// Package midiio enumerates the physical MIDI devices visible to the host
// and decodes/encodes the raw control-change messages a directly attached
// control surface sends, independent of the audio engine's own JACK MIDI
// routing.
//
// Grounded on the pack's midi-registry device.go (portmidi.Initialize,
// portmidi.CountDevices/Info for device enumeration) and the ubersdr MIDI
// controller (gitlab.com/gomidi/midi/v2 + drivers + drivers/rtmididrv for
// opening a named input port and decoding its message stream).
package midiio

import (
	"fmt"

	"github.com/rakyll/portmidi"
)

// Device describes one portmidi-visible MIDI endpoint.
type Device struct {
	ID        int
	Interface string
	Name      string
	IsInput   bool
	IsOutput  bool
	IsOpened  bool
}

// ListDevices enumerates every MIDI device portmidi can see. It is the
// richer counterpart to internal/hwports.CountMidiDevices, carrying names
// and direction rather than just a count. Nothing in this module calls it;
// cmd/hostd's startup log uses ListInputPorts.
func ListDevices() ([]Device, error) {
	portmidi.Initialize()
	defer portmidi.Terminate()

	n := portmidi.CountDevices()
	devices := make([]Device, 0, n)
	for i := 0; i < n; i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:        i,
			Interface: info.Interface,
			Name:      info.Name,
			IsInput:   info.IsInputAvailable,
			IsOutput:  !info.IsInputAvailable,
			IsOpened:  info.IsOpened,
		})
	}
	return devices, nil
}

// FindByName returns the device whose name matches, for translating a
// saved alias back into a portmidi device id before opening it.
func FindByName(devices []Device, name string) (Device, error) {
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("midiio: no device named %q", name)
}
