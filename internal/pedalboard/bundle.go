package pedalboard

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

// Descriptor is a bundle's on-disk content, the result of reading its
// manifest, main graph and side files.
type Descriptor struct {
	Name         string
	Width        int
	Height       int
	Plugins      []PluginDescriptor
	Connections  []ParsedArc
	MidiIns      map[string]string // alias -> symbol, from the bundle
	MidiOuts     map[string]string
	Addressings  AddressingsFile
	ExtraPresets []PresetEntry
}

// PluginDescriptor is one plugin block read out of the main graph TTL.
type PluginDescriptor struct {
	Instance string // e.g. "delay_1", stripped of /graph/
	URI      string
	X, Y     float64
	Bypassed bool
	Preset   string
	Ports    map[string]ParsedPort
}

// AddressingTarget is a side-channel onto the addressing engine; kept
// narrow so pedalboard need not import the addressing package directly.
type AddressingTarget interface {
	Address(instance, port, actuatorURI, label string, min, max, value float32, steps int, portInfo model.PortInfo, cb func(ok bool))
	AddressNext(actuatorURI string)
}

// MetadataReader resolves a plugin URI to its LV2 port/designation
// metadata; the real reader lives outside this module's scope.
type MetadataReader interface {
	Read(uri string) (model.PluginMetadata, error)
}

// LoadDeps bundles everything Load needs beyond the descriptor itself.
type LoadDeps struct {
	State           *session.State
	Link            *enginelink.Link
	Metadata        MetadataReader
	Addressing      AddressingTarget // nil if HMI is not initialized
	CurrentMidiIns  map[string]string
	CurrentMidiOuts map[string]string
	SaveLastBank    func(bankID int, path string)
	BundlePath      string
}

// Load executes the eight-step pedalboard load algorithm.
func Load(desc Descriptor, deps LoadDeps) error {
	s := deps.State
	s.WS.BroadcastLoadingStart()
	s.WS.BroadcastSize(desc.Width, desc.Height)

	oldIns, oldOuts := desc.MidiIns, desc.MidiOuts
	mergeMidiAliases(s, oldIns, oldOuts, deps.CurrentMidiIns, deps.CurrentMidiOuts)

	replay := enginelink.ReplaySpec{}
	for _, pd := range desc.Plugins {
		plugin, err := buildPluginFromDescriptor(s, pd, deps.Metadata)
		if err != nil {
			continue // ActuatorMissing-style tolerance does not apply to plugin load; skip and keep going
		}
		replay.Plugins = append(replay.Plugins, plugin)
	}

	for _, arc := range desc.Connections {
		src := substituteAlias(arc.Source, oldIns, oldOuts, deps.CurrentMidiIns, deps.CurrentMidiOuts)
		dst := substituteAlias(arc.Target, oldIns, oldOuts, deps.CurrentMidiIns, deps.CurrentMidiOuts)
		conn := model.Connection{Source: "/graph/" + src, Target: "/graph/" + dst}
		if isResolved(src) && isResolved(dst) {
			replay.Connections = append(replay.Connections, conn)
		} else {
			attachPending(s, conn)
		}
	}

	deps.Link.Replay(replay)

	s.Lock()
	snapshot := model.PedalboardPreset{Name: "Default", Plugins: map[int]model.PresetSnapshot{}}
	for _, p := range replay.Plugins {
		snapshot.Plugins[p.InstanceID] = model.PresetSnapshot{URI: p.URI, Ports: copyFloats(p.Params)}
	}
	s.PedalboardPresets = []model.PedalboardPreset{snapshot}
	for _, extra := range desc.ExtraPresets {
		ps := model.PedalboardPreset{Name: extra.Name, Plugins: map[int]model.PresetSnapshot{}}
		for iid, ports := range extra.Ports {
			ps.Plugins[iid] = model.PresetSnapshot{Ports: ports}
		}
		s.PedalboardPresets = append(s.PedalboardPresets, ps)
	}
	s.PedalboardName = desc.Name
	s.PedalboardPath = deps.BundlePath
	s.PedalboardWidth = desc.Width
	s.PedalboardHeight = desc.Height
	s.PedalboardEmpty = len(replay.Plugins) == 0
	s.Unlock()
	s.ClearModified()

	if deps.Addressing != nil {
		touched := map[string]bool{}
		for actuatorURI, records := range desc.Addressings {
			for _, rec := range records {
				instance, ok := instanceByID(s, rec.Instance)
				if !ok {
					continue // ActuatorMissing / stale binding: skip, continue
				}
				deps.Addressing.Address(instance, rec.Port, actuatorURI, rec.Label, rec.Minimum, rec.Maximum, 0, rec.Steps, model.PortInfo{}, func(bool) {})
				touched[actuatorURI] = true
			}
		}
		for actuatorURI := range touched {
			deps.Addressing.AddressNext(actuatorURI)
		}
	}

	if deps.SaveLastBank != nil {
		bank := s.BankID
		if !underCanonicalDir(deps.BundlePath) {
			bank = 0
		}
		deps.SaveLastBank(bank, deps.BundlePath)
	}

	s.WS.BroadcastLoadingEnd()
	return nil
}

func instanceByID(s *session.State, id int) (string, bool) {
	s.Lock()
	defer s.Unlock()
	p, ok := s.Plugins[id]
	if !ok {
		return "", false
	}
	return p.Instance, true
}

func copyFloats(m map[string]float32) map[string]float32 {
	out := make(map[string]float32, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isResolved(symbol string) bool {
	return symbol != "" && !strings.HasPrefix(symbol, "pending:")
}

func attachPending(s *session.State, c model.Connection) {
	s.Lock()
	defer s.Unlock()
	for _, rec := range s.MidiPorts {
		rec.PendingConnections = append(rec.PendingConnections, c)
		return
	}
}

// mergeMidiAliases implements step 2-3: build alias->symbol maps and
// register newly resolvable MIDI port records, retaining stale ones.
func mergeMidiAliases(s *session.State, oldIns, oldOuts, curIns, curOuts map[string]string) {
	s.Lock()
	defer s.Unlock()
	for alias, symbol := range curIns {
		if _, known := oldIns[alias]; !known {
			continue
		}
		if alreadyTracked(s, symbol) {
			continue
		}
		if outSym, paired := curOuts[alias]; paired {
			s.MidiPorts[alias] = &model.MidiPort{StoredSymbol: symbol + ";" + outSym, StoredAlias: alias + ";" + alias}
		} else {
			s.MidiPorts[alias] = &model.MidiPort{StoredSymbol: symbol, StoredAlias: alias}
		}
	}
	for alias, symbol := range oldIns {
		if _, resolved := curIns[alias]; resolved {
			continue
		}
		if _, tracked := s.MidiPorts[alias]; !tracked {
			s.MidiPorts[alias] = &model.MidiPort{StoredSymbol: symbol, StoredAlias: alias}
		}
	}
}

func alreadyTracked(s *session.State, symbol string) bool {
	for _, rec := range s.MidiPorts {
		if strings.Contains(rec.StoredSymbol, symbol) {
			return true
		}
	}
	return false
}

func substituteAlias(path string, oldIns, oldOuts, curIns, curOuts map[string]string) string {
	for alias, oldSym := range oldIns {
		if strings.Contains(path, oldSym) {
			if newSym, ok := curIns[alias]; ok {
				return strings.ReplaceAll(path, oldSym, newSym)
			}
			return "pending:" + path
		}
	}
	for alias, oldSym := range oldOuts {
		if strings.Contains(path, oldSym) {
			if newSym, ok := curOuts[alias]; ok {
				return strings.ReplaceAll(path, oldSym, newSym)
			}
			return "pending:" + path
		}
	}
	return path
}

func buildPluginFromDescriptor(s *session.State, pd PluginDescriptor, reader MetadataReader) (enginelink.ReplayPlugin, error) {
	meta, err := reader.Read(pd.URI)
	if err != nil {
		return enginelink.ReplayPlugin{}, err
	}

	s.Lock()
	id := s.Mapper.GetID("/graph/" + pd.Instance)
	p := model.NewPlugin("/graph/"+pd.Instance, pd.URI, pd.X, pd.Y)
	p.Designations = meta.Designations()
	p.Bypassed = pd.Bypassed
	p.Preset = pd.Preset

	for _, port := range meta.Ports() {
		if !port.IsControl || port.IsOutput {
			continue
		}
		if port.NotOnGUI {
			p.Badports[port.Symbol] = true
		}
		v := port.Default
		if parsed, ok := pd.Ports[port.Symbol]; ok && parsed.HasValue {
			v = parsed.Value
		}
		p.Ports[port.Symbol] = v
		if parsed, ok := pd.Ports[port.Symbol]; ok && parsed.HasMidi {
			p.MidiCCs[port.Symbol] = model.MidiCC{
				Channel: parsed.MidiChannel, Controller: parsed.MidiController,
				Minimum: parsed.MidiMinimum, Maximum: parsed.MidiMaximum,
			}
		}
	}
	if p.Designations.Freewheel != "" {
		p.Ports[p.Designations.Freewheel] = 0.0
	}
	if p.Designations.Enabled != "" {
		if pd.Bypassed {
			p.Ports[p.Designations.Enabled] = 0.0
		} else {
			p.Ports[p.Designations.Enabled] = 1.0
		}
	}
	if bp, ok := pd.Ports[model.BypassPort]; ok && bp.HasMidi {
		p.BypassCC = model.MidiCC{Channel: bp.MidiChannel, Controller: bp.MidiController, Minimum: bp.MidiMinimum, Maximum: bp.MidiMaximum}
	}
	s.Plugins[id] = p
	s.Unlock()

	rp := enginelink.ReplayPlugin{
		InstanceID: id,
		URI:        p.URI,
		Bypassed:   p.Bypassed,
		BypassCC:   p.BypassCC,
		Preset:     p.Preset,
		Params:     copyFloats(p.Ports),
		MidiMaps:   map[string]model.MidiCC{},
	}
	for symbol, cc := range p.MidiCCs {
		if p.Badports[symbol] {
			continue
		}
		rp.MidiMaps[symbol] = cc
	}
	for symbol := range p.Outputs {
		rp.MonitoredOutputs = append(rp.MonitoredOutputs, symbol)
	}
	sort.Strings(rp.MonitoredOutputs)
	return rp, nil
}

func underCanonicalDir(path string) bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	canonical := filepath.Join(home, ".pedalboards")
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, canonical)
}

// SaveDeps bundles what Save needs from the live session.
type SaveDeps struct {
	Title       string
	Plugins     []model.Plugin
	Connections []model.Connection
	Addressings AddressingsFile
	Extras      []PresetEntry
	Width       int
	Height      int
}

// Save produces a bundle directory under dir . It
// returns the final bundle path.
func Save(dir string, deps SaveDeps) (string, error) {
	sym := symbolify(deps.Title)
	target := uniqueBundlePath(dir, sym)
	tmp := target + ".tmp"

	if err := os.RemoveAll(tmp); err != nil {
		return "", err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", err
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(tmp)
		}
	}()

	bundleURI := "file://" + target
	graph := BuildGraph(deps.Title, deps.Width, deps.Height, deps.Plugins, deps.Connections)
	mainDoc, err := RenderMainGraph(bundleURI, graph)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(tmp, sym+".ttl"), []byte(mainDoc), 0o644); err != nil {
		return "", err
	}

	manifestDoc, err := RenderManifest(bundleURI, sym+".ttl")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(tmp, "manifest.ttl"), []byte(manifestDoc), 0o644); err != nil {
		return "", err
	}

	if err := WriteAddressingsJSON(filepath.Join(tmp, "addressings.json"), deps.Addressings); err != nil {
		return "", err
	}
	if err := WritePresetsJSON(filepath.Join(tmp, "presets.json"), deps.Extras); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, target); err != nil {
		return "", err
	}
	ok = true
	return target, nil
}

func uniqueBundlePath(dir, sym string) string {
	target := filepath.Join(dir, sym+".pedalboard")
	for attempt := 0; pathExists(target); attempt++ {
		target = filepath.Join(dir, fmt.Sprintf("%s-%05d.pedalboard", sym, rand.Intn(99999)+1))
		if attempt > 1000 {
			break
		}
	}
	return target
}

var pathExists = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func symbolify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
