// Package addressing implements the AddressingEngine: one ring per
// hardware actuator, navigation, and coordination with
// preset load and plugin removal.
//
// The per-actuator ring and the cyclic plugin<->ring aliasing it manages
// follow a position-indexed slice with
// insert/remove-and-reindex, generalized from plugin-chain position to
// ring cursor (the "arena+index" design).
package addressing

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

// EngineClient is the subset of enginelink.Link used to talk to the audio
// engine (midi_learn/midi_unmap).
type EngineClient interface {
	SendModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback)
	SendNotModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback)
}

// HMIClient is the subset of the HMI serial protocol the addressing engine
// drives directly.
type HMIClient interface {
	ControlAdd(actuator model.Actuator, addr *model.Addressing, value float32, numControllers, index int)
	ControlRemove(actuator model.Actuator, instanceID int, port string)
	ControlClean(actuator model.Actuator)
}

// Engine is the AddressingEngine.
type Engine struct {
	log       logrus.FieldLogger
	state     *session.State
	engine    EngineClient
	hmi       HMIClient
	actuators map[string]model.Actuator
}

// New builds an Engine over the given session, engine client and HMI
// client, seeded with the default four-knob/four-footswitch inventory.
func New(state *session.State, engine EngineClient, hmi HMIClient, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		log:       log.WithField("component", "addressing"),
		state:     state,
		engine:    engine,
		hmi:       hmi,
		actuators: DefaultInventory(),
	}
	state.OnAfterPresetLoad = e.reloadAddressingsExceptPresets
	return e
}

// SetInventory overrides the actuator inventory (used by tests and by
// alternate hardware topologies loaded from config).
func (e *Engine) SetInventory(inv map[string]model.Actuator) { e.actuators = inv }

// Address binds instance's port to actuatorURI.
// portInfo is ignored for :bypass and :presets, which have fixed flag
// computations.
func (e *Engine) Address(instance, port, actuatorURI, label string, min, max, value float32, steps int, portInfo model.PortInfo, cb func(ok bool)) {
	p, id, ok := e.state.PluginByInstance(instance)
	if !ok {
		if cb != nil {
			cb(false)
		}
		return
	}

	if p.Badports[port] {
		e.log.WithFields(logrus.Fields{"instance": id, "port": port}).Warn("refusing to address a badport")
		if cb != nil {
			cb(false)
		}
		return
	}

	previousActuator := e.unaddress(p, port)

	switch actuatorURI {
	case model.NullAddressURI:
		if cb != nil {
			cb(true)
		}
		return
	case model.MidiLearnURI:
		e.engine.SendModified(fmt.Sprintf("midi_learn %d %s %s %s", id, port, trimFloat(min), trimFloat(max)), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
			if cb != nil {
				cb(ok)
			}
		})
		return
	case model.MidiUnmapURI:
		e.engine.SendModified(fmt.Sprintf("midi_unmap %d %s", id, port), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
			if ok {
				e.state.Lock()
				if port == model.BypassPort {
					p.BypassCC = model.UnmappedCC
				} else {
					p.MidiCCs[port] = model.UnmappedCC
				}
				e.state.Unlock()
			}
			if cb != nil {
				cb(ok)
			}
		})
		return
	}

	addr := &model.Addressing{
		ActuatorURI: actuatorURI,
		InstanceID:  id,
		Port:        port,
		Label:       label,
		Unit:        "",
		Minimum:     min,
		Maximum:     max,
		Steps:       steps,
	}
	e.fillTypeAndRange(p, addr, portInfo)

	e.state.Lock()
	p.Addressings[port] = addr
	ring := e.ringLocked(actuatorURI)
	ring.Addrs = append(ring.Addrs, addr)
	ring.Idx = len(ring.Addrs) - 1
	e.state.Unlock()

	if previousActuator != "" && previousActuator != actuatorURI {
		if act, ok := e.actuators[previousActuator]; ok {
			e.hmi.ControlRemove(act, id, port)
		}
		e.addressNext(previousActuator)
	}

	if port == model.PresetsPort && p.Preset == "" && len(p.MapPresets) > 0 {
		e.state.Lock()
		p.Preset = p.MapPresets[0]
		e.state.Unlock()
		e.engine.SendNotModified(fmt.Sprintf("preset_load %d %s", id, p.MapPresets[0]), enginelink.DatatypeBoolean, func(interface{}, bool) {
			e.addressingLoad(actuatorURI)
			if cb != nil {
				cb(true)
			}
		})
		return
	}

	e.addressingLoad(actuatorURI)
	if cb != nil {
		cb(true)
	}
}

// fillTypeAndRange computes addr.Type (and, for :presets, Minimum/Maximum/
// Options) per the addressing rules.
func (e *Engine) fillTypeAndRange(p *model.Plugin, addr *model.Addressing, info model.PortInfo) {
	switch addr.Port {
	case model.BypassPort:
		addr.Type = model.FlagBypass
		addr.Minimum, addr.Maximum = 0, 1
	case model.PresetsPort:
		addr.Type = model.FlagScalePoints | model.FlagEnumeration | model.FlagInteger
		addr.Minimum = 0
		n := len(p.MapPresets)
		if n > model.MaxScalepoints {
			n = model.MaxScalepoints
		}
		addr.Maximum = float32(n)
		for i := 0; i < n; i++ {
			addr.Options = append(addr.Options, model.ScalePoint{Value: float32(i), Label: p.MapPresets[i]})
		}
		if p.Preset != "" {
			idx := indexOf(p.MapPresets, p.Preset)
			if idx >= n {
				addr.Options = append(addr.Options, model.ScalePoint{Value: float32(model.MaxScalepoints), Label: p.Preset})
				addr.Maximum = float32(model.MaxScalepoints) + 1
			}
		}
	default:
		var f model.TypeFlags
		switch {
		case info.Toggled:
			f |= model.FlagToggled
		case info.Integer:
			f |= model.FlagInteger
		default:
			f |= model.FlagLinear
		}
		if info.Logarithmic {
			f |= model.FlagLogarithmic
		}
		if info.Trigger {
			f |= model.FlagTrigger
		}
		if strings.HasPrefix(addr.ActuatorURI, model.FootswitchGroup) {
			f |= model.FlagTapTempo
		}
		if len(info.ScalePoints) > 0 && info.Enumeration {
			f |= model.FlagScalePoints | model.FlagEnumeration
			for _, sp := range info.ScalePoints {
				addr.Options = append(addr.Options, sp)
			}
		}
		addr.Type = f
	}
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

// unaddress removes plugin's addressing at port, if any, fixing up the
// owning ring's cursor, and returns the actuator URI it was bound to (""
// if it was not addressed).
func (e *Engine) unaddress(p *model.Plugin, port string) string {
	e.state.Lock()
	defer e.state.Unlock()

	addr, ok := p.Addressings[port]
	if !ok {
		return ""
	}
	delete(p.Addressings, port)

	ring := e.ringLocked(addr.ActuatorURI)
	removedIdx := -1
	for i, a := range ring.Addrs {
		if a == addr {
			removedIdx = i
			break
		}
	}
	if removedIdx == -1 {
		return addr.ActuatorURI
	}
	ring.Addrs = append(ring.Addrs[:removedIdx], ring.Addrs[removedIdx+1:]...)
	if ring.Idx >= removedIdx && ring.Idx > 0 {
		ring.Idx--
	}
	if len(ring.Addrs) == 0 {
		ring.Idx = 0
	} else if ring.Idx >= len(ring.Addrs) {
		ring.Idx = len(ring.Addrs) - 1
	}
	return addr.ActuatorURI
}

func (e *Engine) ringLocked(actuatorURI string) *model.Ring {
	// state.ActuatorRings is guarded by state's own mutex, which the
	// caller already holds (Lock/unaddress take it explicitly).
	r, ok := e.state.ActuatorRings[actuatorURI]
	if !ok {
		r = &model.Ring{}
		e.state.ActuatorRings[actuatorURI] = r
	}
	return r
}

// AddressNext rotates the ring forward (HMI control_next, P5).
func (e *Engine) AddressNext(actuatorURI string) { e.addressNext(actuatorURI) }

// AddressPrev rotates the ring backward (HMI control_prev).
func (e *Engine) AddressPrev(actuatorURI string) {
	e.state.Lock()
	ring := e.ringLocked(actuatorURI)
	ring.Prev()
	empty := len(ring.Addrs) == 0
	e.state.Unlock()
	if empty {
		if act, ok := e.actuators[actuatorURI]; ok {
			e.hmi.ControlClean(act)
		}
		return
	}
	e.addressingLoad(actuatorURI)
}

func (e *Engine) addressNext(actuatorURI string) {
	e.state.Lock()
	ring := e.ringLocked(actuatorURI)
	ring.Next()
	empty := len(ring.Addrs) == 0
	e.state.Unlock()
	if empty {
		if act, ok := e.actuators[actuatorURI]; ok {
			e.hmi.ControlClean(act)
		}
		return
	}
	e.addressingLoad(actuatorURI)
}

// addressingLoad reads the current value for the ring's visible addressing
// and pushes control_add to the HMI with ring metadata.
func (e *Engine) addressingLoad(actuatorURI string) {
	act, known := e.actuators[actuatorURI]
	if !known {
		return
	}

	e.state.Lock()
	ring := e.ringLocked(actuatorURI)
	addr := ring.Current()
	if addr == nil {
		e.state.Unlock()
		e.hmi.ControlClean(act)
		return
	}
	p, ok := e.state.Plugins[addr.InstanceID]
	if !ok {
		e.state.Unlock()
		return
	}
	value := e.currentValueLocked(p, addr.Port)
	numControllers := len(ring.Addrs)
	index := ring.Idx
	e.state.Unlock()

	e.hmi.ControlAdd(act, addr, value, numControllers, index)
}

func (e *Engine) currentValueLocked(p *model.Plugin, port string) float32 {
	switch port {
	case model.BypassPort:
		if p.Bypassed {
			return 0.0
		}
		return 1.0
	case model.PresetsPort:
		idx := indexOf(p.MapPresets, p.Preset)
		if idx < 0 {
			return 0
		}
		return float32(idx)
	default:
		return p.Ports[port]
	}
}

// reloadAddressingsExceptPresets re-issues control_add for every actuator
// bound to instanceID except the one addressing exceptPort.
func (e *Engine) reloadAddressingsExceptPresets(instanceID int, exceptPort string) {
	e.state.Lock()
	p, ok := e.state.Plugins[instanceID]
	if !ok {
		e.state.Unlock()
		return
	}
	var actuators []string
	for port, addr := range p.Addressings {
		if port == exceptPort {
			continue
		}
		actuators = append(actuators, addr.ActuatorURI)
	}
	e.state.Unlock()

	for _, a := range actuators {
		e.addressingLoad(a)
	}
}

// RemovePlugin cascades plugin removal through the addressing engine:
// for every addressed port, note
// its actuator, tell the HMI to drop the control, unaddress, then issue
// exactly one address_next per distinct actuator before finally removing
// the plugin record from SessionState.
func (e *Engine) RemovePlugin(instance string, cb func(ok bool)) {
	p, id, ok := e.state.PluginByInstance(instance)
	if !ok {
		if cb != nil {
			cb(false)
		}
		return
	}

	e.state.Lock()
	ports := make([]string, 0, len(p.Addressings))
	for port := range p.Addressings {
		ports = append(ports, port)
	}
	e.state.Unlock()

	touched := map[string]bool{}
	for _, port := range ports {
		e.state.Lock()
		addr := p.Addressings[port]
		e.state.Unlock()
		if addr == nil {
			continue
		}
		actuatorURI := addr.ActuatorURI
		if act, known := e.actuators[actuatorURI]; known {
			e.hmi.ControlRemove(act, id, port)
		}
		e.unaddress(p, port)
		touched[actuatorURI] = true
	}

	for actuatorURI := range touched {
		e.addressNext(actuatorURI)
	}

	e.state.RemovePluginRecord(instance, cb)
}

func trimFloat(f float32) string {
	return fmt.Sprintf("%g", f)
}
