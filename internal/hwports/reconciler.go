// Package hwports implements the HardwarePortReconciler: it tracks JACK
// MIDI hardware ports and reconciles their
// appearance and disappearance against the saved MIDI device aliases in
// SessionState.
//
// The polling/callback shape is generalized from a device-monitor
// loop (DeviceMonitor.monitorLoop / SetCallbacks), swapping
// audio/MIDI device-count polling for JACK MIDI port hotplug events, and
// backed by rakyll/portmidi for device enumeration.
package hwports

import (
	"strings"

	"github.com/rakyll/portmidi"
	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

// JackClient is the subset of JACK port operations the reconciler needs.
// A real implementation shells out to jack_connect/jack_disconnect or
// binds libjack; tests use a recording fake.
type JackClient interface {
	ConnectPorts(a, b string) bool
	DisconnectPorts(a, b string) bool
}

// Broadcaster mirrors hardware-port lifecycle events to the editor.
type Broadcaster interface {
	BroadcastAddHWPort(symbol, alias string)
	BroadcastRemoveHWPort(symbol string)
	BroadcastConnect(c model.Connection)
}

// Reconciler is the HardwarePortReconciler. It guards its reads/writes of
// state.MidiPorts/state.Connections with state.Lock/Unlock, the same mutex
// session/mutations.go's Connect/Disconnect use, since both sides mutate
// the same fields.
type Reconciler struct {
	log   logrus.FieldLogger
	state *session.State
	jack  JackClient
	ws    Broadcaster

	engineMidiIn string
}

// New builds a Reconciler wired to the given session, JACK client and
// broadcaster. engineMidiIn is the engine's own JACK MIDI input port name,
// wired to every newly appeared hardware input.
func New(state *session.State, jack JackClient, ws Broadcaster, engineMidiIn string, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{
		log:          log.WithField("component", "hwports"),
		state:        state,
		jack:         jack,
		ws:           ws,
		engineMidiIn: engineMidiIn,
	}
}

// DeriveAlias implements the alias rule: "last segment of
// dash-split, dashes→spaces, ';'→'.'".
func DeriveAlias(jackPortAlias string) string {
	segments := strings.Split(jackPortAlias, "-")
	last := segments[len(segments)-1]
	last = strings.ReplaceAll(last, "-", " ")
	last = strings.ReplaceAll(last, ";", ".")
	return last
}

// CountMidiDevices reports the number of portmidi-visible MIDI devices
// (after device_monitor.go's fast count-then-enumerate pattern). No
// polling loop in this module calls it.
func CountMidiDevices() int {
	return portmidi.CountDevices()
}

// OnPortAppeared handles midi_port_appeared(jack_name, isOutput).
func (r *Reconciler) OnPortAppeared(jackName, jackAlias string, isOutput bool) {
	alias := DeriveAlias(jackAlias)

	if !isOutput && r.engineMidiIn != "" {
		r.jack.ConnectPorts(jackName, r.engineMidiIn)
	}

	r.state.Lock()
	var oldNode string
	var rec *model.MidiPort
	for _, candidate := range r.state.MidiPorts {
		if matchesAlias(candidate.StoredAlias, alias) {
			oldNode = substituteSymbol(candidate, alias, jackName, isOutput)
			rec = candidate
			break
		}
	}
	r.state.Unlock()

	r.ws.BroadcastAddHWPort(jackName, alias)

	if rec == nil {
		return
	}
	r.resolvePending(rec, oldNode)
}

// matchesAlias reports whether stored (singleton or "a;b" paired) contains alias.
func matchesAlias(stored, alias string) bool {
	for _, part := range strings.Split(stored, ";") {
		if part == alias {
			return true
		}
	}
	return false
}

// substituteSymbol rewrites rec.StoredSymbol's matching half with jackName
// and returns the jack name it replaced (the "oldnode").
func substituteSymbol(rec *model.MidiPort, alias, jackName string, isOutput bool) string {
	aliasParts := strings.Split(rec.StoredAlias, ";")
	symbolParts := strings.Split(rec.StoredSymbol, ";")
	if len(aliasParts) != len(symbolParts) {
		old := rec.StoredSymbol
		rec.StoredSymbol = jackName
		return old
	}
	for i, a := range aliasParts {
		if a != alias {
			continue
		}
		old := symbolParts[i]
		symbolParts[i] = jackName
		rec.StoredSymbol = strings.Join(symbolParts, ";")
		return old
	}
	return ""
}

// resolvePending rewrites oldNode to the record's current symbol in every
// pending connection, issues JACK connects for newly resolvable edges, and
// promotes successes to Connections.
func (r *Reconciler) resolvePending(rec *model.MidiPort, oldNode string) {
	if oldNode == "" {
		return
	}
	r.state.Lock()
	pending := rec.PendingConnections
	rec.PendingConnections = nil
	r.state.Unlock()

	var stillPending []model.Connection
	for _, c := range pending {
		src := replaceNode(c.Source, oldNode, rec.StoredSymbol)
		dst := replaceNode(c.Target, oldNode, rec.StoredSymbol)
		if strings.Contains(src, oldNode) || strings.Contains(dst, oldNode) {
			stillPending = append(stillPending, model.Connection{Source: src, Target: dst})
			continue
		}
		if r.jack.ConnectPorts(src, dst) {
			r.state.Lock()
			r.state.Connections = append(r.state.Connections, model.Connection{Source: src, Target: dst})
			r.state.Unlock()
			r.ws.BroadcastConnect(model.Connection{Source: src, Target: dst})
		} else {
			stillPending = append(stillPending, model.Connection{Source: src, Target: dst})
		}
	}

	r.state.Lock()
	rec.PendingConnections = stillPending
	r.state.Unlock()
}

func replaceNode(path, oldNode, newNode string) string {
	return strings.ReplaceAll(path, oldNode, newNode)
}

// OnPortDeleted handles midi_port_deleted(jack_name): every edge touching
// the port is disconnected in both session and JACK, demoted to pending,
// and remove_hw_port is broadcast.
func (r *Reconciler) OnPortDeleted(jackName string) {
	r.state.Lock()
	var touched []model.Connection
	kept := r.state.Connections[:0]
	for _, c := range r.state.Connections {
		if c.Source == jackName || c.Target == jackName {
			touched = append(touched, c)
			continue
		}
		kept = append(kept, c)
	}
	r.state.Connections = kept

	var rec *model.MidiPort
	for _, candidate := range r.state.MidiPorts {
		if strings.Contains(candidate.StoredSymbol, jackName) {
			rec = candidate
			break
		}
	}
	if rec != nil {
		rec.PendingConnections = append(rec.PendingConnections, touched...)
	}
	r.state.Unlock()

	for _, c := range touched {
		r.jack.DisconnectPorts(c.Source, c.Target)
	}
	r.ws.BroadcastRemoveHWPort(jackName)
}

// OnSetMidiDevices handles set_midi_devices(new_selection): a diff by
// stored_symbol against the current selection. Removed devices are
// disconnected and broadcast remove_hw_port for each physical port;
// added devices broadcast add_hw_port.
func (r *Reconciler) OnSetMidiDevices(newSelection []string) {
	r.state.Lock()
	current := make([]string, 0, len(r.state.MidiPorts))
	for _, rec := range r.state.MidiPorts {
		current = append(current, rec.StoredSymbol)
	}
	r.state.Unlock()

	want := make(map[string]bool, len(newSelection))
	for _, s := range newSelection {
		want[s] = true
	}
	have := make(map[string]bool, len(current))
	for _, s := range current {
		have[s] = true
	}

	for _, sym := range current {
		if want[sym] {
			continue
		}
		for _, port := range strings.Split(sym, ";") {
			r.OnPortDeleted(port)
		}
	}
	for _, sym := range newSelection {
		if have[sym] {
			continue
		}
		for _, port := range strings.Split(sym, ";") {
			r.ws.BroadcastAddHWPort(port, DeriveAlias(port))
		}
	}
}
