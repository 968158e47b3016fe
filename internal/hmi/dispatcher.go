// Package hmi implements the command
// table bound to the hardware control surface's serial protocol, plus
// bank navigation policy.
//
// The command table is a map keyed by the command's first token, the same
// shape as the dispatcher.go OperationType-keyed Dispatcher,
// generalized from topology operations to HMI protocol verbs.
package hmi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

// RingNavigator is the addressing engine's actuator ring navigation,
// reached by control_next/control_prev.
type RingNavigator interface {
	AddressNext(actuatorURI string)
	AddressPrev(actuatorURI string)
}

// EngineClient is the subset of enginelink.Link the dispatcher needs
// directly (bank MIDI-program-channel listening).
type EngineClient interface {
	SendNotModified(msg string, datatype enginelink.Datatype, cb enginelink.Callback)
}

// PedalboardLoader performs a bank/pedalboard-id load; the dispatcher only
// owns the reentrancy bookkeeping (session.State.RequestPedalboardLoad).
type PedalboardLoader interface {
	LoadPedalboard(bankID, pedalboardID int) error
}

// BundleWriter supports pedalboard_save and pedalboard_reset.
type BundleWriter interface {
	SaveCurrent() error
	ResetCurrent() error
}

// TunerControl supports the tuner and tuner_input commands.
type TunerControl interface {
	Enable(on bool) error
	SetCapturePort(port int) error
}

// handlerFunc answers an HMI command: ok plus an optional reply payload.
type handlerFunc func(args []string) (bool, string)

// Dispatcher is the HmiDispatcher.
type Dispatcher struct {
	log       logrus.FieldLogger
	state     *session.State
	engine    EngineClient
	ring      RingNavigator
	loader    PedalboardLoader
	bundles   BundleWriter
	tuner     TunerControl
	banks     []model.Bank
	actuators map[string]model.Actuator
	reverse   map[actuatorTuple]string
	commands  map[string]handlerFunc
}

type actuatorTuple struct {
	hwType, hwID, kind, index int
}

// New builds a Dispatcher. actuators is the same inventory the addressing
// engine uses, so control_next/control_prev tuples resolve to the same
// actuator URIs.
func New(state *session.State, engine EngineClient, ring RingNavigator, loader PedalboardLoader, bundles BundleWriter, tuner TunerControl, actuators map[string]model.Actuator, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		log:       log.WithField("component", "hmi"),
		state:     state,
		engine:    engine,
		ring:      ring,
		loader:    loader,
		bundles:   bundles,
		tuner:     tuner,
		actuators: actuators,
		reverse:   map[actuatorTuple]string{},
	}
	for uri, a := range actuators {
		d.reverse[actuatorTuple{int(a.HWType), a.HWID, int(a.Kind), a.Index}] = uri
	}
	d.commands = map[string]handlerFunc{
		"hw_con":           d.handleHWConnect,
		"hw_dis":           d.handleHWConnect,
		"banks":            d.handleBanks,
		"pedalboards":      d.handlePedalboards,
		"pedalboard":       d.handlePedalboard,
		"control_get":      d.handleControlGet,
		"control_set":      d.handleControlSet,
		"control_next":     d.handleControlNext,
		"control_prev":     d.handleControlPrev,
		"pedalboard_save":  d.handlePedalboardSave,
		"pedalboard_reset": d.handlePedalboardReset,
		"tuner":            d.handleTuner,
		"tuner_input":      d.handleTunerInput,
	}
	return d
}

// SetBanks installs the current bank list (loaded from configuration or a
// pedalboards directory scan).
func (d *Dispatcher) SetBanks(banks []model.Bank) { d.banks = banks }

// Dispatch parses and executes one line of the HMI serial protocol.
func (d *Dispatcher) Dispatch(line string) (ok bool, payload string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, ""
	}
	handler, known := d.commands[fields[0]]
	if !known {
		d.log.WithField("cmd", fields[0]).Warn("unknown HMI command ignored")
		return false, ""
	}
	return handler(fields[1:])
}

func (d *Dispatcher) handleHWConnect(args []string) (bool, string) {
	return true, ""
}

// handleBanks replies "All 0" followed by quoted "title" index pairs.
func (d *Dispatcher) handleBanks(args []string) (bool, string) {
	var b strings.Builder
	b.WriteString(`"All" 0`)
	for i, bank := range d.banks {
		fmt.Fprintf(&b, ` "%s" %d`, strings.ReplaceAll(bank.Title, `"`, ""), i+1)
	}
	return true, b.String()
}

// handlePedalboards replies up to 50 items, each "TITLE" index, truncated
// once the accumulated reply would exceed 960 bytes; titles are
// upper-cased, stripped of quote characters, and capped at 31 characters.
func (d *Dispatcher) handlePedalboards(args []string) (bool, string) {
	bankID, err := parseInt(args, 0)
	if err != nil {
		return false, ""
	}

	var titles []string
	if bankID == 0 {
		for _, bank := range d.banks {
			titles = append(titles, bank.Pedalboards...)
		}
	} else if bankID-1 < len(d.banks) && bankID >= 1 {
		titles = d.banks[bankID-1].Pedalboards
	}

	var b strings.Builder
	count := 0
	for i, title := range titles {
		if count >= 50 {
			break
		}
		clean := strings.ReplaceAll(title, `"`, "")
		clean = strings.ToUpper(clean)
		if len(clean) > 31 {
			clean = clean[:31]
		}
		entry := fmt.Sprintf(` "%s" %d`, clean, i)
		if b.Len()+len(entry) > 960 {
			break
		}
		b.WriteString(entry)
		count++
	}
	return true, strings.TrimSpace(b.String())
}

// handlePedalboard enqueues a load, honoring the reentrancy rule: if
// another load is already in flight, the new target replaces any queued
// one and the command itself reports failure.
func (d *Dispatcher) handlePedalboard(args []string) (bool, string) {
	bankID, err := parseInt(args, 0)
	if err != nil {
		return false, ""
	}
	pbID, err := parseInt(args, 1)
	if err != nil {
		return false, ""
	}

	if !d.state.RequestPedalboardLoad(bankID, pbID) {
		return false, ""
	}

	go d.runLoadChain(bankID, pbID)
	return true, ""
}

func (d *Dispatcher) runLoadChain(bankID, pbID int) {
	for {
		if err := d.loader.LoadPedalboard(bankID, pbID); err != nil {
			d.log.WithError(err).Warn("pedalboard load failed")
		} else {
			d.applyBankNavigation(bankID)
		}
		next, has := d.state.FinishPedalboardLoad()
		if !has {
			return
		}
		bankID, pbID = next.BankID, next.PedalboardID
	}
}

// applyBankNavigation implements the bank navigation mode: when
// footswitches navigate, footswitch1/2 are bound to PEDALBOARD_DOWN/UP
// (left to the addressing engine's own footswitch inventory, nothing to
// do here); otherwise the engine is told to listen for MIDI program
// changes on the bank's channel. The "All" bank (id 0) always uses
// channel 15 and never navigates by footswitch.
func (d *Dispatcher) applyBankNavigation(bankID int) {
	var bank model.Bank
	switch {
	case bankID == 0:
		bank = model.Bank{NavigateChannel: 15}
	case bankID >= 1 && bankID-1 < len(d.banks):
		bank = d.banks[bankID-1]
	default:
		return
	}
	if bank.NavigateFootswitches {
		return
	}
	channel := bank.NavigateChannel
	if channel < 1 || channel > 16 {
		channel = 1
	}
	d.engine.SendNotModified(fmt.Sprintf("midi_program_listen 1 %d", channel-1), enginelink.DatatypeBoolean, nil)
}

func (d *Dispatcher) handleControlGet(args []string) (bool, string) {
	iid, err := parseInt(args, 0)
	if err != nil || len(args) < 2 {
		return false, ""
	}
	symbol := args[1]

	d.state.Lock()
	defer d.state.Unlock()
	p, ok := d.state.Plugins[iid]
	if !ok {
		return false, ""
	}
	return true, strconv.FormatFloat(float64(p.Ports[symbol]), 'g', -1, 32)
}

// handleControlSet implements a three-way branch:
// :bypass toggles bypass (and the enabled designation with it), :presets
// indexes into mapPresets, anything else writes the port directly.
func (d *Dispatcher) handleControlSet(args []string) (bool, string) {
	if len(args) < 3 {
		return false, ""
	}
	iid, err := parseInt(args, 0)
	if err != nil {
		return false, ""
	}
	symbol := args[1]
	value, err := strconv.ParseFloat(args[2], 32)
	if err != nil {
		return false, ""
	}

	instance, ok := d.instanceName(iid)
	if !ok {
		return false, ""
	}

	ok = true
	switch symbol {
	case model.BypassPort:
		d.state.Bypass(instance, value != 0, func(v bool) { ok = v })
	case model.PresetsPort:
		d.state.Lock()
		p, present := d.state.Plugins[iid]
		d.state.Unlock()
		if !present {
			return false, ""
		}
		idx := int(value)
		if idx < 0 || idx >= len(p.MapPresets) {
			return false, "" // AddressingOutOfRange
		}
		d.state.PresetLoad(instance, p.MapPresets[idx], func(v bool) { ok = v })
	default:
		d.state.ParamSet(instance, symbol, float32(value), func(v bool) { ok = v })
	}
	return ok, ""
}

func (d *Dispatcher) instanceName(iid int) (string, bool) {
	d.state.Lock()
	defer d.state.Unlock()
	p, ok := d.state.Plugins[iid]
	if !ok {
		return "", false
	}
	return p.Instance, true
}

func (d *Dispatcher) handleControlNext(args []string) (bool, string) {
	return d.rotateRing(args, d.ring.AddressNext)
}

func (d *Dispatcher) handleControlPrev(args []string) (bool, string) {
	return d.rotateRing(args, d.ring.AddressPrev)
}

func (d *Dispatcher) rotateRing(args []string, rotate func(string)) (bool, string) {
	if len(args) < 4 {
		return false, ""
	}
	hwType, _ := parseInt(args, 0)
	hwID, _ := parseInt(args, 1)
	kind, _ := parseInt(args, 2)
	index, _ := parseInt(args, 3)

	uri, ok := d.reverse[actuatorTuple{hwType, hwID, kind, index}]
	if !ok {
		return false, ""
	}
	rotate(uri)
	return true, ""
}

func (d *Dispatcher) handlePedalboardSave(args []string) (bool, string) {
	if err := d.bundles.SaveCurrent(); err != nil {
		d.log.WithError(err).Warn("pedalboard_save failed")
		return false, ""
	}
	return true, ""
}

func (d *Dispatcher) handlePedalboardReset(args []string) (bool, string) {
	if err := d.bundles.ResetCurrent(); err != nil {
		d.log.WithError(err).Warn("pedalboard_reset failed")
		return false, ""
	}
	return true, ""
}

func (d *Dispatcher) handleTuner(args []string) (bool, string) {
	if len(args) < 1 {
		return false, ""
	}
	on := args[0] == "1" || args[0] == "on" || args[0] == "true"
	if err := d.tuner.Enable(on); err != nil {
		return false, ""
	}
	return true, ""
}

// handleTunerInput validates the capture port is 1 or 2. The source guard
// this fixes tested `0 <= port > 2`, a condition that is never true; the
// correct bound is an inclusive 1..2 range.
func (d *Dispatcher) handleTunerInput(args []string) (bool, string) {
	port, err := parseInt(args, 0)
	if err != nil {
		return false, ""
	}
	if port < 1 || port > 2 {
		return false, ""
	}
	if err := d.tuner.SetCapturePort(port); err != nil {
		return false, ""
	}
	return true, ""
}

func parseInt(args []string, idx int) (int, error) {
	if idx >= len(args) {
		return 0, fmt.Errorf("missing argument %d", idx)
	}
	return strconv.Atoi(args[idx])
}
