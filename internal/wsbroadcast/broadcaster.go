// Package wsbroadcast implements the stateless fan-out of session mutations
// to every connected editor websocket client, plus the full-snapshot
// handshake a client gets on connect.
//
// Grounded on the pack's kiwi_websocket.go (gorilla/websocket upgrade,
// per-connection write mutex guarding WriteMessage against concurrent
// writers) generalized from a streaming audio protocol to a JSON event
// feed, and on the engine.go UUID-per-identity pattern for
// per-connection ids.
package wsbroadcast

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one wire message: a tag plus its JSON-marshalable payload.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Snapshotter supplies the state a freshly connected client needs to catch
// up to the present: everything the steady-state Broadcast* methods would
// otherwise have delivered one mutation at a time.
type Snapshotter interface {
	SnapshotStats() (cpuLoad float64, xruns int, freeMemKB int64)
	SnapshotHardwarePorts() map[string]string // alias -> stored symbol
	SnapshotPlugins() []*model.Plugin
	SnapshotConnections() []model.Connection
	SnapshotTrueBypass() bool
}

// conn wraps one client's websocket with its own write mutex: gorilla's
// Conn does not allow concurrent writers.
type conn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex
	send chan Event
	done chan struct{}
}

func (c *conn) writeLoop(log logrus.FieldLogger) {
	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.mu.Lock()
			err := c.ws.WriteJSON(evt)
			c.mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("conn", c.id).Warn("websocket write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// Hub is the WsBroadcaster: it owns the set of connected editor clients
// and fans out every mutation to all of them.
type Hub struct {
	log         logrus.FieldLogger
	mu          sync.Mutex
	clients     map[string]*conn
	snapshotter Snapshotter
}

// New builds an empty Hub. Wire it as session.State.WS once constructed.
func New(snap Snapshotter, log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log:         log.WithField("component", "wsbroadcast"),
		clients:     make(map[string]*conn),
		snapshotter: snap,
	}
}

// ServeHTTP upgrades the request to a websocket and streams the snapshot
// followed by live events until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan Event, 256),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go c.writeLoop(h.log)
	h.sendSnapshot(c)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		close(c.done)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// sendSnapshot sends the connect handshake: stats, true-bypass,
// loading_start, hardware ports, plugins, connections, loading_end.
func (h *Hub) sendSnapshot(c *conn) {
	if h.snapshotter == nil {
		return
	}
	cpu, xruns, freeMem := h.snapshotter.SnapshotStats()
	c.send <- Event{Event: "stats", Data: map[string]interface{}{
		"cpu_load": cpu, "xruns": xruns, "free_memory_kb": freeMem,
	}}
	c.send <- Event{Event: "true_bypass", Data: h.snapshotter.SnapshotTrueBypass()}
	c.send <- Event{Event: "loading_start"}

	for alias, symbol := range h.snapshotter.SnapshotHardwarePorts() {
		c.send <- Event{Event: "add_hw_port", Data: map[string]string{"symbol": symbol, "alias": alias}}
	}
	for _, p := range h.snapshotter.SnapshotPlugins() {
		c.send <- Event{Event: "add", Data: pluginPayload(p)}
	}
	for _, edge := range h.snapshotter.SnapshotConnections() {
		c.send <- Event{Event: "connect", Data: edge}
	}
	c.send <- Event{Event: "loading_end"}
}

func pluginPayload(p *model.Plugin) map[string]interface{} {
	midiMaps := make(map[string]model.MidiCC, len(p.MidiCCs))
	for sym, cc := range p.MidiCCs {
		midiMaps[sym] = cc
	}
	return map[string]interface{}{
		"instance":  p.Instance,
		"uri":       p.URI,
		"x":         p.X,
		"y":         p.Y,
		"bypassed":  p.Bypassed,
		"preset":    p.Preset,
		"ports":     p.Ports,
		"outputs":   p.Outputs,
		"midi_maps": midiMaps,
	}
}

func (h *Hub) broadcast(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- evt:
		default:
			h.log.WithField("conn", c.id).Warn("dropping client: send buffer full")
		}
	}
}

// The methods below satisfy session.Broadcaster. Each mirrors exactly one
// session state mutation 1:1.

func (h *Hub) BroadcastAdd(p *model.Plugin, instanceID int) {
	h.broadcast(Event{Event: "add", Data: pluginPayload(p)})
}

func (h *Hub) BroadcastRemove(instanceID int) {
	h.broadcast(Event{Event: "remove", Data: map[string]int{"instance_id": instanceID}})
}

func (h *Hub) BroadcastParamSet(instanceID int, symbol string, value float32) {
	h.broadcast(Event{Event: "param_set", Data: map[string]interface{}{
		"instance_id": instanceID, "symbol": symbol, "value": value,
	}})
}

func (h *Hub) BroadcastBypass(instanceID int, bypassed bool) {
	h.broadcast(Event{Event: "bypass", Data: map[string]interface{}{
		"instance_id": instanceID, "bypassed": bypassed,
	}})
}

func (h *Hub) BroadcastMidiMap(instanceID int, symbol string, cc model.MidiCC) {
	h.broadcast(Event{Event: "midi_map", Data: map[string]interface{}{
		"instance_id": instanceID, "symbol": symbol, "cc": cc,
	}})
}

func (h *Hub) BroadcastConnect(c model.Connection) {
	h.broadcast(Event{Event: "connect", Data: c})
}

func (h *Hub) BroadcastDisconnect(c model.Connection) {
	h.broadcast(Event{Event: "disconnect", Data: c})
}

func (h *Hub) BroadcastPreset(instanceID int, presetURI string) {
	h.broadcast(Event{Event: "preset", Data: map[string]interface{}{
		"instance_id": instanceID, "uri": presetURI,
	}})
}

func (h *Hub) BroadcastSize(width, height int) {
	h.broadcast(Event{Event: "size", Data: map[string]int{"width": width, "height": height}})
}

func (h *Hub) BroadcastLoadingStart() { h.broadcast(Event{Event: "loading_start"}) }
func (h *Hub) BroadcastLoadingEnd()   { h.broadcast(Event{Event: "loading_end"}) }

// BroadcastTrueBypass mirrors a true-bypass flip, e.g. the tuner muting the
// dry signal while it listens.
func (h *Hub) BroadcastTrueBypass(on bool) { h.broadcast(Event{Event: "true_bypass", Data: on}) }

// BroadcastStop tells every connected editor the engine connection is
// gone and the session is now crashed.
func (h *Hub) BroadcastStop() { h.broadcast(Event{Event: "stop"}) }

// BroadcastAddHWPort and BroadcastRemoveHWPort are reached by
// internal/hwports, which needs a narrower interface than the full
// session.Broadcaster.
func (h *Hub) BroadcastAddHWPort(symbol, alias string) {
	h.broadcast(Event{Event: "add_hw_port", Data: map[string]string{"symbol": symbol, "alias": alias}})
}

func (h *Hub) BroadcastRemoveHWPort(symbol string) {
	h.broadcast(Event{Event: "remove_hw_port", Data: map[string]string{"symbol": symbol}})
}
