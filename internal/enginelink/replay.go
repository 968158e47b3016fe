package enginelink

import (
	"fmt"
	"sort"

	"github.com/modpedal/hostd/internal/model"
)

// ReplayPlugin is the slice of a Plugin record Replay needs to re-seed the
// engine for one instance.
type ReplayPlugin struct {
	InstanceID       int
	URI              string
	Bypassed         bool
	MidiMaps         map[string]model.MidiCC // excludes :bypass, keyed by port
	BypassCC         model.MidiCC
	Preset           string
	Params           map[string]float32
	MonitoredOutputs []string
}

// ReplaySpec is everything SessionState hands EngineLink to restore a
// crashed engine to the state the session already believes is true
// after a reconnect following a crash.
type ReplaySpec struct {
	Plugins     []ReplayPlugin
	Connections []model.Connection
}

// Replay re-seeds a freshly (re)connected engine by issuing, in order: add,
// bypass (if bypassed), midi_map :bypass (if bound), preset_load (if any),
// param_set per stored value, monitor_output per monitored output, midi_map
// per bound control port, then connect for every edge. Engine commands
// issued by one logical operation are delivered in submission order because
// the queue is strictly FIFO.
func (l *Link) Replay(spec ReplaySpec) {
	plugins := append([]ReplayPlugin(nil), spec.Plugins...)
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].InstanceID < plugins[j].InstanceID })

	for _, p := range plugins {
		l.SendNotModified(fmt.Sprintf("add %s %d", p.URI, p.InstanceID), DatatypeInt, nil)

		if p.Bypassed {
			l.SendNotModified(fmt.Sprintf("bypass %d 1", p.InstanceID), DatatypeBoolean, nil)
		}
		if p.BypassCC.IsMapped() {
			l.SendNotModified(fmt.Sprintf("midi_map %d %s %d %d %s %s",
				p.InstanceID, model.BypassPort, p.BypassCC.Channel, p.BypassCC.Controller,
				trimFloat(p.BypassCC.Minimum), trimFloat(p.BypassCC.Maximum)), DatatypeBoolean, nil)
		}
		if p.Preset != "" {
			l.SendNotModified(fmt.Sprintf("preset_load %d %s", p.InstanceID, p.Preset), DatatypeBoolean, nil)
		}

		symbols := sortedKeys(p.Params)
		for _, sym := range symbols {
			l.SendNotModified(fmt.Sprintf("param_set %d %s %s", p.InstanceID, sym, trimFloat(p.Params[sym])), DatatypeBoolean, nil)
		}

		for _, out := range p.MonitoredOutputs {
			l.SendNotModified(fmt.Sprintf("monitor_output %d %s", p.InstanceID, out), DatatypeBoolean, nil)
		}

		for _, sym := range sortedMidiMapKeys(p.MidiMaps) {
			cc := p.MidiMaps[sym]
			if !cc.IsMapped() {
				continue
			}
			l.SendNotModified(FormatMidiMap(p.InstanceID, sym, cc.Channel, cc.Controller, cc.Minimum, cc.Maximum), DatatypeBoolean, nil)
		}
	}

	for _, c := range spec.Connections {
		l.SendNotModified(fmt.Sprintf("connect %s %s", c.Source, c.Target), DatatypeBoolean, nil)
	}
}

func sortedKeys(m map[string]float32) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMidiMapKeys(m map[string]model.MidiCC) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
