// Package tuner implements the tuner and tuner_input HMI commands: adding
// and removing the always-on-capture-port tuner plugin instance and
// silencing the dry signal while it runs.
//
// Grounded on original_source/mod/host.py's hmi_tuner_on/hmi_tuner_off/
// hmi_tuner_input (TUNER_URI/TUNER_INSTANCE/TUNER_INPUT_PORT/
// TUNER_MONITOR_PORT, connect_jack_ports against system:capture_<n>).
package tuner

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/session"
)

// tunerURI identifies the bundled tuner plugin instance the engine loads on
// "tuner on". instanceID is a sentinel far outside the range the mapper
// hands out, so it never collides with a graph plugin's id.
const (
	tunerURI           = "http://moddevices.com/plugins/mod-devel/Tuner"
	tunerInstanceID    = 1 << 30
	tunerInputPort     = "in"
	tunerMonitorPort   = "freq"
)

// EngineClient is the subset of enginelink.Link the tuner needs.
type EngineClient interface {
	SendNotModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback)
}

// JackConnector is the subset of JACK port operations the tuner needs to
// wire a hardware capture port to the tuner plugin's input.
type JackConnector interface {
	ConnectPorts(a, b string) bool
	DisconnectPorts(a, b string) bool
}

// Controller is the tuner-lifecycle half of HmiDispatcher's TunerControl.
type Controller struct {
	log    logrus.FieldLogger
	state  *session.State
	engine EngineClient
	jack   JackConnector

	currentInputPort int
}

// New builds a Controller. The capture port defaults to 1, matching
// SessionState.CurrentTunerPort's zero-value convention until tuner_input
// first runs.
func New(state *session.State, engine EngineClient, jack JackConnector, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		log:              log.WithField("component", "tuner"),
		state:            state,
		engine:           engine,
		jack:             jack,
		currentInputPort: 1,
	}
}

func (c *Controller) capturePort() int {
	if c.state.CurrentTunerPort == "" {
		return c.currentInputPort
	}
	var n int
	fmt.Sscanf(c.state.CurrentTunerPort, "%d", &n)
	if n == 0 {
		return c.currentInputPort
	}
	return n
}

// Enable implements hmi.TunerControl: add or remove the tuner plugin and
// flip true-bypass so the dry signal goes silent while the tuner is active.
func (c *Controller) Enable(on bool) error {
	if on {
		return c.enable()
	}
	return c.disable()
}

func (c *Controller) enable() error {
	var addOK bool
	c.engine.SendNotModified(fmt.Sprintf("add %s %d", tunerURI, tunerInstanceID), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		addOK = ok
	})
	if !addOK {
		return fmt.Errorf("tuner: engine rejected add")
	}

	capture := fmt.Sprintf("system:capture_%d", c.capturePort())
	tunerIn := fmt.Sprintf("effect_%d:%s", tunerInstanceID, tunerInputPort)
	if !c.jack.ConnectPorts(capture, tunerIn) {
		c.engine.SendNotModified(fmt.Sprintf("remove %d", tunerInstanceID), enginelink.DatatypeBoolean, nil)
		return fmt.Errorf("tuner: failed to connect %s to %s", capture, tunerIn)
	}

	c.engine.SendNotModified(fmt.Sprintf("monitor_output %d %s", tunerInstanceID, tunerMonitorPort), enginelink.DatatypeBoolean, nil)
	c.state.SetTrueBypass(true)
	return nil
}

func (c *Controller) disable() error {
	var removeOK bool
	c.engine.SendNotModified(fmt.Sprintf("remove %d", tunerInstanceID), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		removeOK = ok
	})
	if !removeOK {
		return fmt.Errorf("tuner: engine rejected remove")
	}

	capture := fmt.Sprintf("system:capture_%d", c.capturePort())
	tunerIn := fmt.Sprintf("effect_%d:%s", tunerInstanceID, tunerInputPort)
	c.jack.DisconnectPorts(capture, tunerIn)
	c.state.SetTrueBypass(false)
	return nil
}

// SetCapturePort implements hmi.TunerControl: re-point the tuner's jack
// input from the old capture port to the new one. Bounds (1..2) are
// enforced by the caller, mirroring the corrected tuner_input guard.
func (c *Controller) SetCapturePort(port int) error {
	old := fmt.Sprintf("system:capture_%d", c.capturePort())
	tunerIn := fmt.Sprintf("effect_%d:%s", tunerInstanceID, tunerInputPort)
	c.jack.DisconnectPorts(old, tunerIn)

	next := fmt.Sprintf("system:capture_%d", port)
	if !c.jack.ConnectPorts(next, tunerIn) {
		return fmt.Errorf("tuner: failed to connect %s to %s", next, tunerIn)
	}

	c.currentInputPort = port
	c.state.Lock()
	c.state.CurrentTunerPort = fmt.Sprintf("%d", port)
	c.state.Unlock()
	return nil
}
