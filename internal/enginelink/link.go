// Package enginelink implements the dual-socket transport to the audio
// engine: a write socket carrying a
// strictly serialized request/response queue, and a paired read socket
// carrying unsolicited events.
package enginelink

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventHandler receives unsolicited events off the read channel. SessionState
// implements this to fold engine-originated changes back into its model.
type EventHandler interface {
	OnParamSet(instanceID int, symbol string, value float32)
	OnOutputSet(instanceID int, symbol string, value float32)
	OnMidiMapped(instanceID int, symbol string, channel, controller int, value, min, max float32)
	OnMidiProgram(program int)
	OnCrashed()
}

// Link is the EngineLink.
type Link struct {
	log logrus.FieldLogger

	mu         sync.Mutex
	writeConn  net.Conn
	readConn   net.Conn
	writeR     *bufio.Reader
	readR      *bufio.Reader
	q          *queue
	crashed    bool
	dirtyFlag  bool // set by SendModified, cleared by session on load/save
	handler    EventHandler
	workerDone chan struct{}
	readerDone chan struct{}
}

// New constructs a Link with no connections yet; call Connect to attach.
func New(handler EventHandler, log logrus.FieldLogger) *Link {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Link{
		log:     log.WithField("component", "enginelink"),
		q:       newQueue(64),
		handler: handler,
	}
}

// Connect attaches the write socket (port) and read socket (port+1) and
// starts the worker and reader goroutines. If the Link previously crashed,
// the caller should follow Connect with Replay to re-seed engine state.
func (l *Link) Connect(writeConn, readConn net.Conn) {
	l.mu.Lock()
	l.writeConn = writeConn
	l.readConn = readConn
	l.writeR = bufio.NewReader(writeConn)
	l.readR = bufio.NewReader(readConn)
	l.crashed = false
	l.q = newQueue(64)
	l.workerDone = make(chan struct{})
	l.readerDone = make(chan struct{})
	l.mu.Unlock()

	go l.writeLoop()
	go l.readLoop()
}

// Crashed reports whether the write socket has closed since the last Connect.
func (l *Link) Crashed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.crashed
}

// Dirty reports whether any SendModified call has succeeded since the last
// ClearDirty. pedalboard_modified (invariant I8) is tracked separately by
// session.State.PedalboardModified.
func (l *Link) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirtyFlag
}

// ClearDirty resets the dirty flag. Pedalboard load and save clear
// session.State.PedalboardModified instead and do not call it.
func (l *Link) ClearDirty() {
	l.mu.Lock()
	l.dirtyFlag = false
	l.mu.Unlock()
}

// SendModified enqueues msg and marks the session dirty on success.
func (l *Link) SendModified(msg string, datatype Datatype, cb Callback) {
	l.send(msg, datatype, true, cb)
}

// SendNotModified enqueues msg without touching the dirty flag.
func (l *Link) SendNotModified(msg string, datatype Datatype, cb Callback) {
	l.send(msg, datatype, false, cb)
}

func (l *Link) send(msg string, datatype Datatype, dirty bool, cb Callback) {
	l.mu.Lock()
	crashed := l.crashed
	q := l.q
	l.mu.Unlock()

	if crashed {
		if cb != nil {
			cb(nil, false)
		}
		return
	}
	q.enqueue(&request{msg: msg, datatype: datatype, dirty: dirty, callback: cb})
}

// writeLoop drains the queue one request at a time: write, read the paired
// response, invoke the callback, move on. Strict serialization means no
// new message starts until the previous response has been delivered.
func (l *Link) writeLoop() {
	l.mu.Lock()
	q := l.q
	conn := l.writeConn
	r := l.writeR
	done := l.workerDone
	l.mu.Unlock()

	defer close(done)

	for req := range q.ch {
		if _, err := conn.Write([]byte(req.msg + "\x00")); err != nil {
			l.fail(req, err)
			l.drainRemaining(q)
			return
		}

		line, err := r.ReadString(0)
		if err != nil {
			l.fail(req, err)
			l.drainRemaining(q)
			return
		}
		line = strings.TrimSuffix(line, "\x00")

		value, ok := parseResponse(line, req.datatype)
		if !ok {
			l.log.WithField("response", line).Warn("engine protocol error")
		}
		if ok && req.dirty {
			l.mu.Lock()
			l.dirtyFlag = true
			l.mu.Unlock()
		}
		if req.callback != nil {
			req.callback(value, ok)
		}
	}
}

func (l *Link) fail(req *request, err error) {
	l.log.WithError(err).Error("engine write socket closed")
	l.mu.Lock()
	l.crashed = true
	l.mu.Unlock()
	if req.callback != nil {
		req.callback(nil, false)
	}
	if l.handler != nil {
		l.handler.OnCrashed()
	}
}

// drainRemaining delivers failure to every request still queued once the
// write socket has died, so no caller hangs waiting for a callback.
func (l *Link) drainRemaining(q *queue) {
	for {
		select {
		case req, ok := <-q.ch:
			if !ok {
				return
			}
			if req.callback != nil {
				req.callback(nil, false)
			}
		default:
			return
		}
	}
}

// readLoop parses unsolicited events off the read channel until it closes.
func (l *Link) readLoop() {
	l.mu.Lock()
	r := l.readR
	done := l.readerDone
	l.mu.Unlock()

	defer close(done)

	for {
		line, err := r.ReadString(0)
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\x00")
		l.dispatchEvent(line)
	}
}

func (l *Link) dispatchEvent(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "param_set":
		if len(fields) != 4 {
			l.log.WithField("line", line).Warn("malformed param_set")
			return
		}
		iid, v, ok := parseIIDAndFloat(fields[1], fields[3])
		if !ok {
			return
		}
		l.handler.OnParamSet(iid, fields[2], v)
	case "output_set":
		if len(fields) != 4 {
			l.log.WithField("line", line).Warn("malformed output_set")
			return
		}
		iid, v, ok := parseIIDAndFloat(fields[1], fields[3])
		if !ok {
			return
		}
		l.handler.OnOutputSet(iid, fields[2], v)
	case "midi_mapped":
		if len(fields) != 8 {
			l.log.WithField("line", line).Warn("malformed midi_mapped")
			return
		}
		iid, err := strconv.Atoi(fields[1])
		if err != nil {
			return
		}
		chn, _ := strconv.Atoi(fields[3])
		ctrl, _ := strconv.Atoi(fields[4])
		value, _ := strconv.ParseFloat(fields[5], 32)
		min, _ := strconv.ParseFloat(fields[6], 32)
		max, _ := strconv.ParseFloat(fields[7], 32)
		l.handler.OnMidiMapped(iid, fields[2], chn, ctrl, float32(value), float32(min), float32(max))
	case "midi_program":
		if len(fields) != 2 {
			l.log.WithField("line", line).Warn("malformed midi_program")
			return
		}
		prog, err := strconv.Atoi(fields[1])
		if err != nil {
			return
		}
		l.handler.OnMidiProgram(prog)
	case "data_finish":
		l.SendNotModified("output_data_ready", DatatypeBoolean, nil)
	default:
		l.log.WithField("line", line).Debug("unknown read-channel event ignored")
	}
}

func parseIIDAndFloat(iidStr, floatStr string) (int, float32, bool) {
	iid, err := strconv.Atoi(iidStr)
	if err != nil {
		return 0, 0, false
	}
	v, err := strconv.ParseFloat(floatStr, 32)
	if err != nil {
		return 0, 0, false
	}
	return iid, float32(v), true
}

// parseResponse interprets a write-channel response line per datatype.
// A response must begin with "resp " unless datatype is string, in which
// case the whole line is the opaque payload.
func parseResponse(line string, datatype Datatype) (interface{}, bool) {
	if datatype == DatatypeString {
		return line, true
	}
	if !strings.HasPrefix(line, "resp ") {
		return nil, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "resp "))
	switch datatype {
	case DatatypeInt:
		n, err := strconv.Atoi(payload)
		if err != nil {
			return nil, false
		}
		return n, true
	case DatatypeFloat:
		f, err := strconv.ParseFloat(payload, 32)
		if err != nil {
			return nil, false
		}
		return float32(f), true
	case DatatypeBoolean:
		switch payload {
		case "ok", "true":
			return true, true
		case "fail", "false":
			return false, true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}

// FormatMidiMap renders the midi_map command body for a control-input port.
func FormatMidiMap(instanceID int, symbol string, channel, controller int, min, max float32) string {
	return fmt.Sprintf("midi_map %d %s %d %d %s %s", instanceID, symbol, channel, controller, trimFloat(min), trimFloat(max))
}

func trimFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
