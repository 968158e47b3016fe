package addressing

import (
	"sync"
	"testing"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/mapper"
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

type fakeEngineClient struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeEngineClient) SendModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback) {
	f.record(msg, cb)
}

func (f *fakeEngineClient) SendNotModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback) {
	f.record(msg, cb)
}

func (f *fakeEngineClient) record(msg string, cb enginelink.Callback) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if cb != nil {
		cb(true, true)
	}
}

type recordedControl struct {
	actuator string
	instance int
	port     string
	removed  bool
	cleaned  bool
}

type fakeHMI struct {
	mu    sync.Mutex
	calls []recordedControl
}

func (f *fakeHMI) ControlAdd(actuator model.Actuator, addr *model.Addressing, value float32, numControllers, index int) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedControl{actuator: actuator.URI, instance: addr.InstanceID, port: addr.Port})
	f.mu.Unlock()
}

func (f *fakeHMI) ControlRemove(actuator model.Actuator, instanceID int, port string) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedControl{actuator: actuator.URI, instance: instanceID, port: port, removed: true})
	f.mu.Unlock()
}

func (f *fakeHMI) ControlClean(actuator model.Actuator) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedControl{actuator: actuator.URI, cleaned: true})
	f.mu.Unlock()
}

func newTestEngine() (*Engine, *session.State, *fakeHMI) {
	s := session.New(mapper.New(), &fakeEngineClient{}, nil, nil)
	hmi := &fakeHMI{}
	e := New(s, &fakeEngineClient{}, hmi, nil)
	return e, s, hmi
}

func addTestPlugin(t *testing.T, s *session.State, instance, uri string) int {
	t.Helper()
	var id int
	s.AddPlugin(instance, uri, 0, 0, model.Designations{}, func(ok bool, p *model.Plugin, gotID int) {
		if !ok {
			t.Fatalf("expected AddPlugin to succeed for %s", instance)
		}
		id = gotID
	})
	return id
}

// TestAddressThenUnaddressKeepsSetEquality covers P2/I4: an addressing
// exists on a plugin's port iff it is a member of its actuator's ring.
func TestAddressThenUnaddressKeepsSetEquality(t *testing.T) {
	e, s, _ := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")

	var ok bool
	e.Address("/graph/gain_1", "gain", "/hmi/knob1", "Gain", 0, 1, 0.5, 0, model.PortInfo{}, func(v bool) { ok = v })
	if !ok {
		t.Fatal("expected Address to succeed")
	}

	ring := s.Ring("/hmi/knob1")
	if len(ring.Addrs) != 1 {
		t.Fatalf("expected 1 addressing in ring, got %d", len(ring.Addrs))
	}

	p, id, _ := s.PluginByInstance("/graph/gain_1")
	addr, present := p.Addressings["gain"]
	if !present {
		t.Fatal("expected plugin to carry the addressing record")
	}
	if addr.InstanceID != id {
		t.Fatalf("expected addressing instance id %d, got %d", id, addr.InstanceID)
	}

	e.unaddress(p, "gain")
	if len(ring.Addrs) != 0 {
		t.Fatalf("expected ring emptied after unaddress, got %d", len(ring.Addrs))
	}
	if _, present := p.Addressings["gain"]; present {
		t.Fatal("expected addressing record dropped after unaddress")
	}
}

// TestAddressBypassComputesBypassFlag covers the :bypass special case of
// the type-flag computation.
func TestAddressBypassComputesBypassFlag(t *testing.T) {
	e, s, _ := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")

	e.Address("/graph/gain_1", model.BypassPort, "/hmi/footswitch1", "Bypass", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})

	p, _, _ := s.PluginByInstance("/graph/gain_1")
	addr := p.Addressings[model.BypassPort]
	if addr.Type&model.FlagBypass == 0 {
		t.Fatal("expected FlagBypass set on :bypass addressing")
	}
}

// TestRingNextCyclesAcrossTwoPlugins covers P5: address_next wraps
// modularly across a ring with more than one member.
func TestRingNextCyclesAcrossTwoPlugins(t *testing.T) {
	e, s, _ := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")
	addTestPlugin(t, s, "/graph/gain_2", "urn:ex:gain")

	e.Address("/graph/gain_1", "gain", "/hmi/knob1", "Gain 1", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})
	e.Address("/graph/gain_2", "gain", "/hmi/knob1", "Gain 2", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})

	ring := s.Ring("/hmi/knob1")
	if len(ring.Addrs) != 2 {
		t.Fatalf("expected 2 addressings sharing the ring, got %d", len(ring.Addrs))
	}
	start := ring.Idx
	e.AddressNext("/hmi/knob1")
	if ring.Idx == start {
		t.Fatal("expected cursor to advance")
	}
	e.AddressNext("/hmi/knob1")
	if ring.Idx != start {
		t.Fatal("expected cursor to cycle back after two advances on a 2-member ring")
	}
}

// TestRemovePluginCascadesControlRemoveAndAddressNext covers the plugin
// removal cascade: every addressed port is control_rm'd and unaddressed,
// then the actuator advances, all before the plugin record itself is gone.
func TestRemovePluginCascadesControlRemoveAndAddressNext(t *testing.T) {
	e, s, hmi := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")
	addTestPlugin(t, s, "/graph/gain_2", "urn:ex:gain")
	e.Address("/graph/gain_1", "gain", "/hmi/knob1", "Gain 1", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})
	e.Address("/graph/gain_2", "gain", "/hmi/knob1", "Gain 2", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})

	var ok bool
	e.RemovePlugin("/graph/gain_1", func(v bool) { ok = v })
	if !ok {
		t.Fatal("expected RemovePlugin to succeed")
	}

	foundRemove := false
	for _, c := range hmi.calls {
		if c.removed && c.port == "gain" {
			foundRemove = true
		}
	}
	if !foundRemove {
		t.Fatal("expected a control_rm call for the removed plugin's addressed port")
	}

	ring := s.Ring("/hmi/knob1")
	if len(ring.Addrs) != 1 {
		t.Fatalf("expected 1 addressing left on the ring after removal, got %d", len(ring.Addrs))
	}
	if _, _, ok := s.PluginByInstance("/graph/gain_1"); ok {
		t.Fatal("expected plugin record gone after RemovePlugin")
	}
}

// TestRemovePluginCleansRingWhenLastMember covers the empty-ring
// control_clean path.
func TestRemovePluginCleansRingWhenLastMember(t *testing.T) {
	e, s, hmi := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")
	e.Address("/graph/gain_1", "gain", "/hmi/knob2", "Gain", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})

	e.RemovePlugin("/graph/gain_1", func(bool) {})

	cleaned := false
	for _, c := range hmi.calls {
		if c.cleaned && c.actuator == "/hmi/knob2" {
			cleaned = true
		}
	}
	if !cleaned {
		t.Fatal("expected control_clean once the last addressing left the ring")
	}
}

// TestMidiUnmapResetsSentinel covers the /midi-unmap side channel.
func TestMidiUnmapResetsSentinel(t *testing.T) {
	e, s, _ := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")
	p, _, _ := s.PluginByInstance("/graph/gain_1")
	p.MidiCCs["gain"] = model.MidiCC{Channel: 1, Controller: 7}

	var ok bool
	e.Address("/graph/gain_1", "gain", model.MidiUnmapURI, "", 0, 1, 0, 0, model.PortInfo{}, func(v bool) { ok = v })
	if !ok {
		t.Fatal("expected /midi-unmap to report success")
	}
	if p.MidiCCs["gain"] != model.UnmappedCC {
		t.Fatal("expected the CC binding reset to the unmapped sentinel")
	}
}

// TestNullAddressOnlyUnaddresses covers the "null" side channel: it drops
// any existing binding without creating a new one.
func TestNullAddressOnlyUnaddresses(t *testing.T) {
	e, s, _ := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")
	e.Address("/graph/gain_1", "gain", "/hmi/knob1", "Gain", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})

	e.Address("/graph/gain_1", "gain", model.NullAddressURI, "", 0, 1, 0, 0, model.PortInfo{}, func(bool) {})

	p, _, _ := s.PluginByInstance("/graph/gain_1")
	if _, present := p.Addressings["gain"]; present {
		t.Fatal("expected null address to leave the port unaddressed")
	}
	if len(s.Ring("/hmi/knob1").Addrs) != 0 {
		t.Fatal("expected the ring emptied by the null address")
	}
}

// TestPresetsAddressingAutoSelectsFirstPreset covers the auto-select-
// preset-0 special case when no preset is loaded yet.
func TestPresetsAddressingAutoSelectsFirstPreset(t *testing.T) {
	e, s, _ := newTestEngine()
	addTestPlugin(t, s, "/graph/gain_1", "urn:ex:gain")
	p, _, _ := s.PluginByInstance("/graph/gain_1")
	p.MapPresets = []string{"urn:ex:preset1", "urn:ex:preset2"}

	var ok bool
	e.Address("/graph/gain_1", model.PresetsPort, "/hmi/knob3", "Presets", 0, 0, 0, 0, model.PortInfo{}, func(v bool) { ok = v })
	if !ok {
		t.Fatal("expected :presets addressing to succeed")
	}
	if p.Preset != "urn:ex:preset1" {
		t.Fatalf("expected preset auto-selected to the first entry, got %q", p.Preset)
	}
}
