// Package session implements the
// in-memory model of plugins, ports, connections, MIDI devices and
// pedalboard metadata, plus the mutating API every peer (engine, HMI,
// editor) goes through to change it.
package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/mapper"
	"github.com/modpedal/hostd/internal/model"
)

// Broadcaster mirrors every successful mutation to the editor front-end.
// WsBroadcaster implements this; tests can use a recording fake.
type Broadcaster interface {
	BroadcastAdd(p *model.Plugin, instanceID int)
	BroadcastRemove(instanceID int)
	BroadcastParamSet(instanceID int, symbol string, value float32)
	BroadcastBypass(instanceID int, bypassed bool)
	BroadcastMidiMap(instanceID int, symbol string, cc model.MidiCC)
	BroadcastConnect(c model.Connection)
	BroadcastDisconnect(c model.Connection)
	BroadcastPreset(instanceID int, presetURI string)
	BroadcastSize(width, height int)
	BroadcastLoadingStart()
	BroadcastLoadingEnd()
	BroadcastStop()
	BroadcastTrueBypass(on bool)
}

// EngineClient is the subset of enginelink.Link SessionState depends on.
type EngineClient interface {
	SendModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback)
	SendNotModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback)
}

// NullBroadcaster discards every mirror call; useful before a WsBroadcaster
// is wired up, or in tests.
type NullBroadcaster struct{}

func (NullBroadcaster) BroadcastAdd(*model.Plugin, int)                    {}
func (NullBroadcaster) BroadcastRemove(int)                                {}
func (NullBroadcaster) BroadcastParamSet(int, string, float32)             {}
func (NullBroadcaster) BroadcastBypass(int, bool)                          {}
func (NullBroadcaster) BroadcastMidiMap(int, string, model.MidiCC)         {}
func (NullBroadcaster) BroadcastConnect(model.Connection)                 {}
func (NullBroadcaster) BroadcastDisconnect(model.Connection)               {}
func (NullBroadcaster) BroadcastPreset(int, string)                       {}
func (NullBroadcaster) BroadcastSize(int, int)                            {}
func (NullBroadcaster) BroadcastLoadingStart()                            {}
func (NullBroadcaster) BroadcastLoadingEnd()                               {}
func (NullBroadcaster) BroadcastStop()                                    {}
func (NullBroadcaster) BroadcastTrueBypass(bool)                          {}

// State is SessionState. All mutating methods are safe for concurrent call,
// though the real event loop only ever calls them from one goroutine.
type State struct {
	mu sync.Mutex

	Mapper *mapper.Mapper
	Engine EngineClient
	WS     Broadcaster
	log    logrus.FieldLogger

	Plugins       map[int]*model.Plugin
	Connections   []model.Connection
	MidiPorts     map[string]*model.MidiPort // keyed by stored alias
	ActuatorRings map[string]*model.Ring

	BankID             int
	PedalboardEmpty    bool
	PedalboardModified bool
	PedalboardName     string
	PedalboardPath     string
	PedalboardWidth    int
	PedalboardHeight   int
	PedalboardPresets  []model.PedalboardPreset

	HasSerialMidiIn  bool
	HasSerialMidiOut bool
	CurrentTunerPort string
	TrueBypass       bool

	LoadedBundles map[string]bool // the system supplemented feature: add_bundle/remove_bundle

	// NextHMIPedalboard implements the reentrancy rule P6: while a load is
	// in flight, the most recent request wins.
	NextHMIPedalboard *PendingLoad
	loadInFlight      bool

	// OnAfterPresetLoad lets the addressing engine re-issue bindings once a
	// preset finishes loading, without session importing addressing.
	OnAfterPresetLoad func(instanceID int, exceptPort string)
}

// PendingLoad names a deferred pedalboard load request.
type PendingLoad struct {
	BankID       int
	PedalboardID int
}

// New builds an empty SessionState wired to the given engine client,
// broadcaster and logger. A nil mapper, broadcaster or logger is replaced
// by a fresh mapper, NullBroadcaster or the standard logger; the engine is
// stored as given, and mutations call it without a nil check.
func New(m *mapper.Mapper, engine EngineClient, ws Broadcaster, log logrus.FieldLogger) *State {
	if m == nil {
		m = mapper.New()
	}
	if ws == nil {
		ws = NullBroadcaster{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &State{
		Mapper:          m,
		Engine:          engine,
		WS:              ws,
		log:             log.WithField("component", "session"),
		Plugins:         make(map[int]*model.Plugin),
		MidiPorts:       make(map[string]*model.MidiPort),
		ActuatorRings:   make(map[string]*model.Ring),
		LoadedBundles:   make(map[string]bool),
		PedalboardEmpty: true,
	}
}

// Reset clears the pedalboard graph: all plugins, connections and
// addressing rings are dropped, mirroring the lifecycle rule that plugin
// records are destroyed only by remove_plugin or reset.
func (s *State) Reset(cb func(ok bool)) {
	s.mu.Lock()
	s.Plugins = make(map[int]*model.Plugin)
	s.Connections = nil
	for _, ring := range s.ActuatorRings {
		ring.Addrs = nil
		ring.Idx = 0
	}
	s.PedalboardEmpty = true
	s.markModifiedLocked()
	s.mu.Unlock()

	s.Engine.SendNotModified("remove -1", enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if cb != nil {
			cb(ok)
		}
	})
}

// markModifiedLocked sets pedalboard_modified; caller must hold s.mu.
func (s *State) markModifiedLocked() {
	s.PedalboardModified = true
}

// ClearModified resets pedalboard_modified, called by load/save (I8).
func (s *State) ClearModified() {
	s.mu.Lock()
	s.PedalboardModified = false
	s.mu.Unlock()
}

// SetTrueBypass flips the true-bypass (hardware dry-signal mute) flag and
// mirrors it to the editor, used by the tuner while it is listening.
func (s *State) SetTrueBypass(on bool) {
	s.mu.Lock()
	s.TrueBypass = on
	s.mu.Unlock()
	s.WS.BroadcastTrueBypass(on)
}

// Ring returns (creating if absent) the ring for an actuator URI.
func (s *State) Ring(actuatorURI string) *model.Ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ringLocked(actuatorURI)
}

func (s *State) ringLocked(actuatorURI string) *model.Ring {
	r, ok := s.ActuatorRings[actuatorURI]
	if !ok {
		r = &model.Ring{}
		s.ActuatorRings[actuatorURI] = r
	}
	return r
}

// Lock/Unlock expose the state mutex to sibling packages (addressing,
// pedalboard) that must mutate Plugins/Connections/ActuatorRings directly
// while preserving invariants I3/I4. Kept deliberately narrow: callers
// should prefer the named mutation methods below whenever one exists.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// RequestPedalboardLoad implements the reentrancy rule for
// hmi_load_bank_pedalboard, the one explicitly reentrant command: if
// no load is in flight, it claims the slot and returns true. Otherwise it
// stashes (replacing any previous) pending target and returns false -- the
// caller should report ok=false but the ongoing load will chain into the
// stashed target once it completes.
func (s *State) RequestPedalboardLoad(bankID, pedalboardID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadInFlight {
		s.NextHMIPedalboard = &PendingLoad{BankID: bankID, PedalboardID: pedalboardID}
		return false
	}
	s.loadInFlight = true
	return true
}

// FinishPedalboardLoad is called once a load completes. If a request was
// stashed while it was running, it is returned (and the slot stays
// claimed) so the caller can immediately chain into it; otherwise the
// slot is released.
func (s *State) FinishPedalboardLoad() (*PendingLoad, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NextHMIPedalboard != nil {
		next := s.NextHMIPedalboard
		s.NextHMIPedalboard = nil
		return next, true
	}
	s.loadInFlight = false
	return nil, false
}

// PluginByInstance resolves an instance name to its record and id.
func (s *State) PluginByInstance(instance string) (*model.Plugin, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.Mapper.GetIDWithoutCreating(instance)
	if err != nil {
		return nil, 0, false
	}
	p, ok := s.Plugins[id]
	return p, id, ok
}
