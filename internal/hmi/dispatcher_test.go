package hmi

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/mapper"
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

type fakeEngine struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeEngine) SendModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback) {
	f.record(msg, cb)
}

func (f *fakeEngine) SendNotModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback) {
	f.record(msg, cb)
}

func (f *fakeEngine) record(msg string, cb enginelink.Callback) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if cb != nil {
		cb(true, true)
	}
}

type fakeRing struct {
	nextCalls, prevCalls []string
}

func (f *fakeRing) AddressNext(uri string) { f.nextCalls = append(f.nextCalls, uri) }
func (f *fakeRing) AddressPrev(uri string) { f.prevCalls = append(f.prevCalls, uri) }

type fakeLoader struct {
	mu    sync.Mutex
	calls [][2]int
}

func (f *fakeLoader) LoadPedalboard(bankID, pbID int) error {
	f.mu.Lock()
	f.calls = append(f.calls, [2]int{bankID, pbID})
	f.mu.Unlock()
	return nil
}

type fakeBundles struct{ saved, reset int }

func (f *fakeBundles) SaveCurrent() error  { f.saved++; return nil }
func (f *fakeBundles) ResetCurrent() error { f.reset++; return nil }

type fakeTuner struct {
	enabled  *bool
	capture  int
}

func (f *fakeTuner) Enable(on bool) error        { f.enabled = &on; return nil }
func (f *fakeTuner) SetCapturePort(port int) error { f.capture = port; return nil }

func newTestDispatcher() (*Dispatcher, *session.State, *fakeRing, *fakeLoader, *fakeBundles, *fakeTuner) {
	eng := &fakeEngine{}
	s := session.New(mapper.New(), eng, nil, nil)
	ring := &fakeRing{}
	loader := &fakeLoader{}
	bundles := &fakeBundles{}
	tuner := &fakeTuner{}
	actuators := map[string]model.Actuator{
		"/hmi/knob1": {URI: "/hmi/knob1", HWType: model.HWTypeMOD, HWID: 0, Kind: model.ActuatorKnob, Index: 0},
	}
	d := New(s, eng, ring, loader, bundles, tuner, actuators, nil)
	return d, s, ring, loader, bundles, tuner
}

func TestBanksRepliesAllZeroPlusTitles(t *testing.T) {
	d, _, _, _, _, _ := newTestDispatcher()
	d.SetBanks([]model.Bank{{Title: "Rock"}, {Title: "Jazz"}})

	ok, payload := d.Dispatch("banks")
	if !ok {
		t.Fatal("expected banks to succeed")
	}
	if !strings.Contains(payload, `"All" 0`) || !strings.Contains(payload, `"Rock" 1`) || !strings.Contains(payload, `"Jazz" 2`) {
		t.Fatalf("unexpected banks payload: %q", payload)
	}
}

func TestPedalboardsTruncatesTitleTo31Chars(t *testing.T) {
	d, _, _, _, _, _ := newTestDispatcher()
	longTitle := strings.Repeat("x", 50)
	d.SetBanks([]model.Bank{{Title: "Rock", Pedalboards: []string{longTitle}}})

	ok, payload := d.Dispatch("pedalboards 1")
	if !ok {
		t.Fatal("expected pedalboards to succeed")
	}
	fields := strings.Fields(payload)
	title := strings.Trim(fields[0], `"`)
	if len(title) > 31 {
		t.Fatalf("expected title truncated to 31 chars, got %d", len(title))
	}
}

func TestPedalboardLoadReentrancyLastWins(t *testing.T) {
	// P6
	d, s, _, loader, _, _ := newTestDispatcher()
	s.RequestPedalboardLoad(1, 1) // claim the slot directly, simulating a load already in flight

	ok, _ := d.Dispatch("pedalboard 1 2")
	if ok {
		t.Fatal("expected pedalboard load to report false while one is already in flight")
	}
	if s.NextHMIPedalboard == nil || s.NextHMIPedalboard.PedalboardID != 2 {
		t.Fatal("expected the new target stashed as the pending load")
	}

	next, has := s.FinishPedalboardLoad()
	if !has || next.PedalboardID != 2 {
		t.Fatal("expected the stashed target to surface on finish")
	}
	_ = loader
}

func TestControlSetBypassTogglesBypass(t *testing.T) {
	d, s, _, _, _, _ := newTestDispatcher()
	var id int
	s.AddPlugin("/graph/gain_1", "urn:ex:gain", 0, 0, model.Designations{Enabled: "enabled"}, func(ok bool, p *model.Plugin, gotID int) { id = gotID })

	ok, _ := d.Dispatch("control_set " + strconv.Itoa(id) + " :bypass 1")
	if !ok {
		t.Fatal("expected control_set :bypass to succeed")
	}
	if !s.Plugins[id].Bypassed {
		t.Fatal("expected plugin bypassed")
	}
}

func TestControlNextResolvesActuatorTuple(t *testing.T) {
	d, _, ring, _, _, _ := newTestDispatcher()
	ok, _ := d.Dispatch("control_next 0 0 2 0")
	if !ok {
		t.Fatal("expected control_next to resolve the actuator tuple")
	}
	if len(ring.nextCalls) != 1 || ring.nextCalls[0] != "/hmi/knob1" {
		t.Fatalf("expected AddressNext called on /hmi/knob1, got %v", ring.nextCalls)
	}
}

func TestTunerInputRejectsOutOfRangePort(t *testing.T) {
	d, _, _, _, _, tuner := newTestDispatcher()

	ok, _ := d.Dispatch("tuner_input 3")
	if ok {
		t.Fatal("expected tuner_input 3 to be rejected")
	}
	ok, _ = d.Dispatch("tuner_input 0")
	if ok {
		t.Fatal("expected tuner_input 0 to be rejected")
	}
	ok, _ = d.Dispatch("tuner_input 1")
	if !ok {
		t.Fatal("expected tuner_input 1 to succeed")
	}
	if tuner.capture != 1 {
		t.Fatalf("expected capture port set to 1, got %d", tuner.capture)
	}
}

func TestPedalboardSaveAndResetDelegate(t *testing.T) {
	d, _, _, _, bundles, _ := newTestDispatcher()
	d.Dispatch("pedalboard_save")
	d.Dispatch("pedalboard_reset")
	if bundles.saved != 1 || bundles.reset != 1 {
		t.Fatalf("expected both delegated exactly once, got saved=%d reset=%d", bundles.saved, bundles.reset)
	}
}
