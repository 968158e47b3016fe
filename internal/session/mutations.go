package session

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/model"
)

// AddPlugin creates a plugin record and asks the engine to load it.
// designations drives the initial
// enabled/freewheel values (I6: freewheel is always 0.0).
func (s *State) AddPlugin(instance, uri string, x, y float64, designations model.Designations, cb func(ok bool, plugin *model.Plugin, instanceID int)) {
	s.mu.Lock()
	id := s.Mapper.GetID(instance)
	p := model.NewPlugin(instance, uri, x, y)
	p.Designations = designations
	if designations.Freewheel != "" {
		p.Ports[designations.Freewheel] = 0.0
	}
	if designations.Enabled != "" {
		p.Ports[designations.Enabled] = 1.0 // not bypassed by default
	}
	s.Plugins[id] = p
	s.PedalboardEmpty = false
	s.markModifiedLocked()
	s.mu.Unlock()

	s.Engine.SendModified(fmt.Sprintf("add %s %d", uri, id), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if ok {
			s.WS.BroadcastAdd(p, id)
		}
		if cb != nil {
			cb(ok, p, id)
		}
	})
}

// RemovePluginRecord drops the bookkeeping for instance and tells the
// engine to remove it. The addressing cascade (unaddress every bound port,
// advance each touched ring) is the caller's responsibility (package
// addressing), per the plugin removal cascade rule.
func (s *State) RemovePluginRecord(instance string, cb func(ok bool)) {
	s.mu.Lock()
	id, err := s.Mapper.GetIDWithoutCreating(instance)
	if err != nil {
		s.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}
	delete(s.Plugins, id)
	s.removeConnectionsForInstanceLocked(instance)
	if len(s.Plugins) == 0 {
		s.PedalboardEmpty = true
	}
	s.markModifiedLocked()
	s.mu.Unlock()

	s.Engine.SendModified(fmt.Sprintf("remove %d", id), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		s.WS.BroadcastRemove(id)
		if cb != nil {
			cb(ok)
		}
	})
}

func (s *State) removeConnectionsForInstanceLocked(instance string) {
	prefix := "/graph/" + lastSegment(instance) + "/"
	kept := s.Connections[:0]
	for _, c := range s.Connections {
		if strings.HasPrefix(c.Source, prefix) || strings.HasPrefix(c.Target, prefix) {
			continue
		}
		kept = append(kept, c)
	}
	s.Connections = kept
}

func lastSegment(instance string) string {
	parts := strings.Split(strings.TrimPrefix(instance, "/graph/"), "/")
	return parts[len(parts)-1]
}

// ParamSet writes a control-input value. It refuses any symbol listed in
// designations.
func (s *State) ParamSet(instance, symbol string, value float32, cb func(ok bool)) {
	s.mu.Lock()
	id, err := s.Mapper.GetIDWithoutCreating(instance)
	if err != nil {
		s.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}
	p, ok := s.Plugins[id]
	if !ok {
		s.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}
	if symbol == p.Designations.Enabled || symbol == p.Designations.Freewheel {
		s.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}
	s.markModifiedLocked()
	s.mu.Unlock()

	s.Engine.SendModified(fmt.Sprintf("param_set %d %s %s", id, symbol, formatFloat(value)), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if ok {
			s.mu.Lock()
			p.Ports[symbol] = value
			s.mu.Unlock()
			s.WS.BroadcastParamSet(id, symbol, value)
		}
		if cb != nil {
			cb(ok)
		}
	})
}

// Bypass toggles a plugin's bypass state and, when the plugin has an
// enabled designation, writes it as 1.0-bypassed (I6, P3).
func (s *State) Bypass(instance string, bypassed bool, cb func(ok bool)) {
	s.mu.Lock()
	id, err := s.Mapper.GetIDWithoutCreating(instance)
	if err != nil {
		s.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}
	p, ok := s.Plugins[id]
	if !ok {
		s.mu.Unlock()
		if cb != nil {
			cb(false)
		}
		return
	}
	s.markModifiedLocked()
	s.mu.Unlock()

	flag := 0
	if bypassed {
		flag = 1
	}
	s.Engine.SendModified(fmt.Sprintf("bypass %d %d", id, flag), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if !ok {
			if cb != nil {
				cb(false)
			}
			return
		}
		s.mu.Lock()
		p.Bypassed = bypassed
		enabledSym := p.Designations.Enabled
		if enabledSym != "" {
			p.Ports[enabledSym] = enabledValue(bypassed)
		}
		s.mu.Unlock()

		s.WS.BroadcastBypass(id, bypassed)
		if enabledSym == "" {
			if cb != nil {
				cb(true)
			}
			return
		}
		s.Engine.SendNotModified(fmt.Sprintf("param_set %d %s %s", id, enabledSym, formatFloat(enabledValue(bypassed))), enginelink.DatatypeBoolean, func(interface{}, bool) {
			s.WS.BroadcastParamSet(id, enabledSym, enabledValue(bypassed))
			if cb != nil {
				cb(true)
			}
		})
	})
}

func enabledValue(bypassed bool) float32 {
	if bypassed {
		return 0.0
	}
	return 1.0
}

// Connect adds an edge; idempotent.
func (s *State) Connect(source, target string, cb func(ok bool)) {
	s.mu.Lock()
	for _, c := range s.Connections {
		if c.Source == source && c.Target == target {
			s.mu.Unlock()
			if cb != nil {
				cb(true)
			}
			return
		}
	}
	s.mu.Unlock()

	s.Engine.SendModified(fmt.Sprintf("connect %s %s", source, target), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if ok {
			s.mu.Lock()
			s.Connections = append(s.Connections, model.Connection{Source: source, Target: target})
			s.mu.Unlock()
			s.WS.BroadcastConnect(model.Connection{Source: source, Target: target})
		}
		if cb != nil {
			cb(ok)
		}
	})
}

// Disconnect removes an edge; best-effort, the connection is dropped from
// state even if the engine reports failure.
func (s *State) Disconnect(source, target string, cb func(ok bool)) {
	s.Engine.SendModified(fmt.Sprintf("disconnect %s %s", source, target), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		s.mu.Lock()
		kept := s.Connections[:0]
		for _, c := range s.Connections {
			if c.Source == source && c.Target == target {
				continue
			}
			kept = append(kept, c)
		}
		s.Connections = kept
		s.markModifiedLocked()
		s.mu.Unlock()
		s.WS.BroadcastDisconnect(model.Connection{Source: source, Target: target})
		if cb != nil {
			cb(true)
		}
	})
}

// PresetLoad asks the engine to load a plugin preset, then queries port
// values, reapplies designation overrides, and re-loads addressings on
// every actuator bound to this plugin except :presets.
func (s *State) PresetLoad(instance, presetURI string, cb func(ok bool)) {
	p, id, ok := s.PluginByInstance(instance)
	if !ok {
		if cb != nil {
			cb(false)
		}
		return
	}

	s.Engine.SendModified(fmt.Sprintf("preset_load %d %s", id, presetURI), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if !ok {
			if cb != nil {
				cb(false)
			}
			return
		}
		s.Engine.SendNotModified(fmt.Sprintf("preset_show %s", presetURI), enginelink.DatatypeString, func(v interface{}, showOK bool) {
			s.mu.Lock()
			p.Preset = presetURI
			if showOK {
				applyPresetValues(p, v.(string))
			}
			if p.Designations.Freewheel != "" {
				p.Ports[p.Designations.Freewheel] = 0.0
			}
			if p.Designations.Enabled != "" {
				p.Ports[p.Designations.Enabled] = enabledValue(p.Bypassed)
			}
			s.mu.Unlock()

			s.WS.BroadcastPreset(id, presetURI)
			if s.OnAfterPresetLoad != nil {
				s.OnAfterPresetLoad(id, model.PresetsPort)
			}
			if cb != nil {
				cb(true)
			}
		})
	})
}

// applyPresetValues parses the "symbol value" lines of a preset_show TTL
// dump's port-value section. The real dump is Turtle; host-side we only
// need the ingen:value literals, so a line-oriented scan is sufficient and
// avoids pulling in a full RDF parser for a narrow need.
func applyPresetValues(p *model.Plugin, dump string) {
	for _, line := range strings.Split(dump, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		val, err := strconv.ParseFloat(fields[1], 32)
		if err != nil {
			continue
		}
		p.Ports[fields[0]] = float32(val)
	}
}

// PresetSaveNew asks the engine to snapshot the plugin's current values
// into a new preset bundle under a generated, collision-free path.
func (s *State) PresetSaveNew(instance, name, presetDir string, cb func(ok bool, bundle string)) {
	p, id, ok := s.PluginByInstance(instance)
	if !ok {
		if cb != nil {
			cb(false, "")
		}
		return
	}

	sym := symbolify(name)
	bundle := presetDir + "/" + symbolify(lastSegment(instance)) + ".presets"
	for attempt := 0; bundleExists(bundle); attempt++ {
		bundle = fmt.Sprintf("%s/%s-%05d.presets", presetDir, symbolify(lastSegment(instance)), rand.Intn(99999)+1)
		if attempt > 1000 {
			break // pathological collision pressure; give up widening further
		}
	}

	s.Engine.SendModified(fmt.Sprintf("preset_save %d %q %s %s.ttl", id, name, bundle, sym), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if !ok {
			if cb != nil {
				cb(false, "")
			}
			return
		}
		s.Engine.SendNotModified(fmt.Sprintf("bundle_add %q", bundle), enginelink.DatatypeBoolean, func(interface{}, bool) {
			uri := fmt.Sprintf("file://%s/%s.ttl", bundle, sym)
			s.mu.Lock()
			p.Preset = uri
			p.MapPresets = append(p.MapPresets, uri)
			s.markModifiedLocked()
			s.mu.Unlock()
			s.WS.BroadcastPreset(id, uri)
			if cb != nil {
				cb(true, bundle)
			}
		})
	})
}

// bundleExists stats the filesystem. Kept as a package-level var so a
// test in this package can replace it and keep PresetSaveNew deterministic.
var bundleExists = func(path string) bool {
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

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// AddBundle tracks a loaded LV2 plugin-package bundle: bundle_add and
// bundle_remove give the editor a way to add or drop a directory of
// plugins without restarting the host.
func (s *State) AddBundle(path string, cb func(ok bool)) {
	s.mu.Lock()
	if s.LoadedBundles[path] {
		s.mu.Unlock()
		if cb != nil {
			cb(false) // BundleAlreadyLoaded
		}
		return
	}
	s.mu.Unlock()

	s.Engine.SendModified(fmt.Sprintf("bundle_add %q", path), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if ok {
			s.mu.Lock()
			s.LoadedBundles[path] = true
			s.mu.Unlock()
		}
		if cb != nil {
			cb(ok)
		}
	})
}

// RemoveBundle drops a previously loaded bundle, refusing when the caller
// reports through inUse that a plugin instance still references it
// (BundleInUse).
func (s *State) RemoveBundle(path string, inUse bool, cb func(ok bool)) {
	s.mu.Lock()
	loaded := s.LoadedBundles[path]
	s.mu.Unlock()
	if !loaded {
		if cb != nil {
			cb(false) // BundleNotLoaded
		}
		return
	}
	if inUse {
		if cb != nil {
			cb(false) // BundleInUse
		}
		return
	}

	s.Engine.SendModified(fmt.Sprintf("bundle_remove %q", path), enginelink.DatatypeBoolean, func(v interface{}, ok bool) {
		if ok {
			s.mu.Lock()
			delete(s.LoadedBundles, path)
			s.mu.Unlock()
		}
		if cb != nil {
			cb(ok)
		}
	})
}
