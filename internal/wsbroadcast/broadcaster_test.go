package wsbroadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modpedal/hostd/internal/model"
)

type fakeSnapshot struct {
	plugins     []*model.Plugin
	connections []model.Connection
	hwPorts     map[string]string
	trueBypass  bool
}

func (f fakeSnapshot) SnapshotStats() (float64, int, int64)    { return 1.5, 0, 102400 }
func (f fakeSnapshot) SnapshotHardwarePorts() map[string]string { return f.hwPorts }
func (f fakeSnapshot) SnapshotPlugins() []*model.Plugin         { return f.plugins }
func (f fakeSnapshot) SnapshotConnections() []model.Connection  { return f.connections }
func (f fakeSnapshot) SnapshotTrueBypass() bool                 { return f.trueBypass }

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return ws, func() {
		ws.Close()
		srv.Close()
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := ws.ReadJSON(&evt); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return evt
}

func TestSnapshotHandshakeOrder(t *testing.T) {
	plugin := model.NewPlugin("/graph/gain_1", "urn:ex:gain", 0, 0)
	snap := fakeSnapshot{
		plugins:    []*model.Plugin{plugin},
		hwPorts:    map[string]string{"Footswitch": "system:midi_capture_1"},
		trueBypass: true,
	}
	h := New(snap, nil)
	ws, cleanup := dialHub(t, h)
	defer cleanup()

	wantOrder := []string{"stats", "true_bypass", "loading_start"}
	for _, want := range wantOrder {
		if got := readEvent(t, ws); got.Event != want {
			t.Fatalf("expected %q, got %q", want, got.Event)
		}
	}
}

func TestBroadcastFansOutToAllClients(t *testing.T) {
	h := New(fakeSnapshot{}, nil)
	ws1, cleanup1 := dialHub(t, h)
	defer cleanup1()
	ws2, cleanup2 := dialHub(t, h)
	defer cleanup2()

	// drain the snapshot handshake on both connections
	for i := 0; i < 4; i++ {
		readEvent(t, ws1)
		readEvent(t, ws2)
	}

	h.BroadcastBypass(3, true)

	for _, ws := range []*websocket.Conn{ws1, ws2} {
		evt := readEvent(t, ws)
		if evt.Event != "bypass" {
			t.Fatalf("expected bypass event, got %q", evt.Event)
		}
	}
}

type fakeStatsSource struct{}

func (fakeStatsSource) CPUAndXruns() (float64, int)    { return 12.5, 2 }
func (fakeStatsSource) MemoryLoadPercent() float64 { return 40.0 }

func TestStatsPollerEmitsOnHubBroadcast(t *testing.T) {
	h := New(fakeSnapshot{}, nil)
	ws, cleanup := dialHub(t, h)
	defer cleanup()
	for i := 0; i < 4; i++ {
		readEvent(t, ws)
	}

	poller := NewStatsPoller(fakeStatsSource{}, h)
	poller.Start()
	defer poller.Stop()

	evt := readEvent(t, ws)
	if evt.Event != "stats" {
		t.Fatalf("expected stats event from poller, got %q", evt.Event)
	}
}
