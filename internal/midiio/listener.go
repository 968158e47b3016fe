package midiio

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // auto-register the platform driver
)

// CCHandler receives a decoded control-change from a connected input port.
type CCHandler func(ControlChange)

// Listener owns one open hardware MIDI input port. It exists for control
// surfaces wired directly to the host rather than routed through the audio
// engine's own JACK MIDI graph.
type Listener struct {
	mu         sync.Mutex
	in         drivers.In
	stop       func()
	deviceName string
}

// ListInputPorts names the MIDI input ports gitlab.com/gomidi/midi/v2 sees,
// for matching against a configured device name before Connect.
func ListInputPorts() []string {
	ins := midi.GetInPorts()
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	return names
}

// Connect opens the named input port and starts delivering decoded
// control-change messages to handler until Disconnect is called. Other
// message types are ignored.
func (l *Listener) Connect(deviceName string, handler CCHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.in != nil {
		return fmt.Errorf("midiio: already connected to %s", l.deviceName)
	}

	var target drivers.In
	for _, port := range midi.GetInPorts() {
		if port.String() == deviceName {
			target = port
			break
		}
	}
	if target == nil {
		return fmt.Errorf("midiio: input port not found: %s", deviceName)
	}

	if err := target.Open(); err != nil {
		return fmt.Errorf("midiio: opening %s: %w", deviceName, err)
	}

	stop, err := midi.ListenTo(target, func(msg midi.Message, timestampms int32) {
		if cc, ok := DecodeControlChange(msg); ok {
			handler(cc)
		}
	})
	if err != nil {
		target.Close()
		return fmt.Errorf("midiio: listening to %s: %w", deviceName, err)
	}

	l.in = target
	l.stop = stop
	l.deviceName = deviceName
	return nil
}

// Disconnect stops listening and closes the underlying port. It is a no-op
// when not connected.
func (l *Listener) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.in == nil {
		return nil
	}
	if l.stop != nil {
		l.stop()
	}
	err := l.in.Close()
	l.in = nil
	l.stop = nil
	l.deviceName = ""
	return err
}

// Connected reports the currently connected device name, or "" if none.
func (l *Listener) Connected() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deviceName
}
