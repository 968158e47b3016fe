package session

import "github.com/modpedal/hostd/internal/model"

// The methods below implement enginelink.EventHandler: unsolicited events
// off the read channel feed back into SessionState and then out to the
// websocket broadcaster.

// OnParamSet folds an engine-originated parameter change into state.
func (s *State) OnParamSet(instanceID int, symbol string, value float32) {
	s.mu.Lock()
	p, ok := s.Plugins[instanceID]
	if ok {
		p.Ports[symbol] = value
	}
	s.mu.Unlock()
	if ok {
		s.WS.BroadcastParamSet(instanceID, symbol, value)
	}
}

// OnOutputSet folds an engine-originated monitored-output change into state.
func (s *State) OnOutputSet(instanceID int, symbol string, value float32) {
	s.mu.Lock()
	p, ok := s.Plugins[instanceID]
	if ok {
		v := value
		p.Outputs[symbol] = &v
	}
	s.mu.Unlock()
}

// OnMidiMapped records a completed /midi-learn binding (scenario 3).
func (s *State) OnMidiMapped(instanceID int, symbol string, channel, controller int, value, min, max float32) {
	s.mu.Lock()
	p, ok := s.Plugins[instanceID]
	if ok {
		cc := model.MidiCC{Channel: channel, Controller: controller, Minimum: min, Maximum: max}
		if symbol == model.BypassPort {
			p.BypassCC = cc
		} else {
			p.MidiCCs[symbol] = cc
			p.Ports[symbol] = value
		}
	}
	s.mu.Unlock()
	if ok {
		s.WS.BroadcastMidiMap(instanceID, symbol, model.MidiCC{Channel: channel, Controller: controller, Minimum: min, Maximum: max})
	}
}

// OnMidiProgram satisfies EngineLink's EventHandler contract and discards
// the program number; nothing in this module switches banks or
// pedalboards on a MIDI program change.
func (s *State) OnMidiProgram(program int) {}

// OnCrashed tells the editor to treat the engine as gone. The crashed
// flag itself lives on enginelink.Link; session state is left untouched.
func (s *State) OnCrashed() {
	s.WS.BroadcastStop()
}

// BuildReplaySpec snapshots everything EngineLink.Replay needs to restore
// a crashed engine to the state this session already believes (P7).
func (s *State) BuildReplaySpec() ReplaySpecInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ReplaySpecInput{Connections: append([]model.Connection(nil), s.Connections...)}
	for id, p := range s.Plugins {
		rp := ReplayPluginInput{
			InstanceID:       id,
			URI:              p.URI,
			Bypassed:         p.Bypassed,
			BypassCC:         p.BypassCC,
			Preset:           p.Preset,
			Params:           copyFloatMap(p.Ports),
			MidiMaps:         copyCCMap(p.MidiCCs),
			MonitoredOutputs: outputKeys(p.Outputs),
		}
		out.Plugins = append(out.Plugins, rp)
	}
	return out
}

// ReplaySpecInput and ReplayPluginInput mirror enginelink.ReplaySpec /
// ReplayPlugin exactly; session keeps its own copy so it need not build
// enginelink's replay types itself, and the caller converts between the two.
type ReplaySpecInput struct {
	Plugins     []ReplayPluginInput
	Connections []model.Connection
}

type ReplayPluginInput struct {
	InstanceID       int
	URI              string
	Bypassed         bool
	BypassCC         model.MidiCC
	Preset           string
	Params           map[string]float32
	MidiMaps         map[string]model.MidiCC
	MonitoredOutputs []string
}

func copyFloatMap(m map[string]float32) map[string]float32 {
	out := make(map[string]float32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyCCMap(m map[string]model.MidiCC) map[string]model.MidiCC {
	out := make(map[string]model.MidiCC, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func outputKeys(m map[string]*float32) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
