package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modpedal/hostd/internal/addressing"
	"github.com/modpedal/hostd/internal/config"
	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/pedalboard"
	"github.com/modpedal/hostd/internal/session"
)

// pedalboardLoader implements hmi.PedalboardLoader by resolving a
// (bank, pedalboard) index pair against the configured bank list, then
// running the bundle through pedalboard.Load.
type pedalboardLoader struct {
	cfg        *config.Config
	state      *session.State
	link       *enginelink.Link
	addressing *addressing.Engine
	metadata   pedalboard.MetadataReader
}

func (l *pedalboardLoader) LoadPedalboard(bankID, pedalboardID int) error {
	path, err := l.resolvePath(bankID, pedalboardID)
	if err != nil {
		return err
	}
	desc, err := pedalboard.OpenBundle(path)
	if err != nil {
		return err
	}
	ins, outs := currentMidiAliases(l.state)
	return pedalboard.Load(desc, pedalboard.LoadDeps{
		State:           l.state,
		Link:            l.link,
		Metadata:        l.metadata,
		Addressing:      l.addressing,
		CurrentMidiIns:  ins,
		CurrentMidiOuts: outs,
		BundlePath:      path,
	})
}

// resolvePath mirrors hmi.Dispatcher.handlePedalboards' bank-0 "All"
// flattening: bank 0 is every configured bank's pedalboards concatenated in
// order.
func (l *pedalboardLoader) resolvePath(bankID, pedalboardID int) (string, error) {
	banks := l.cfg.Banks()
	var list []string
	switch {
	case bankID == 0:
		for _, b := range banks {
			list = append(list, b.Pedalboards...)
		}
	case bankID >= 1 && bankID-1 < len(banks):
		list = banks[bankID-1].Pedalboards
	default:
		return "", fmt.Errorf("hostd: unknown bank %d", bankID)
	}
	if pedalboardID < 0 || pedalboardID >= len(list) {
		return "", fmt.Errorf("hostd: unknown pedalboard %d in bank %d", pedalboardID, bankID)
	}
	p := list[pedalboardID]
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.cfg.Pedalboards.Directory, p)
	}
	return p, nil
}

// currentMidiAliases splits SessionState's stored hardware-port records into
// the alias->symbol maps Load needs to re-resolve a bundle's saved MIDI
// port references. A paired record's StoredSymbol is "insym;outsym"; a
// singleton is kept under both maps since Load only ever matches a given
// port path against whichever map it actually appears in.
func currentMidiAliases(s *session.State) (ins, outs map[string]string) {
	s.Lock()
	defer s.Unlock()
	ins = make(map[string]string, len(s.MidiPorts))
	outs = make(map[string]string, len(s.MidiPorts))
	for alias, rec := range s.MidiPorts {
		parts := strings.Split(rec.StoredSymbol, ";")
		if len(parts) == 2 {
			ins[alias] = parts[0]
			outs[alias] = parts[1]
			continue
		}
		ins[alias] = rec.StoredSymbol
		outs[alias] = rec.StoredSymbol
	}
	return ins, outs
}

// bundleWriter implements hmi.BundleWriter.
type bundleWriter struct {
	state      *session.State
	addressing *addressing.Engine
}

// SaveCurrent implements pedalboard_save: rewrite the loaded bundle's main
// graph file in place from live session state, leaving its manifest,
// addressings and presets untouched.
func (b *bundleWriter) SaveCurrent() error {
	b.state.Lock()
	path := b.state.PedalboardPath
	title := b.state.PedalboardName
	width, height := b.state.PedalboardWidth, b.state.PedalboardHeight
	plugins := make([]model.Plugin, 0, len(b.state.Plugins))
	for _, p := range b.state.Plugins {
		plugins = append(plugins, *p)
	}
	connections := append([]model.Connection(nil), b.state.Connections...)
	b.state.Unlock()

	if path == "" {
		return fmt.Errorf("hostd: no pedalboard loaded")
	}
	if err := pedalboard.RewriteMainGraph(path, pedalboard.SaveDeps{
		Title:       title,
		Plugins:     plugins,
		Connections: connections,
		Width:       width,
		Height:      height,
	}); err != nil {
		return err
	}
	b.state.ClearModified()
	return nil
}

// ResetCurrent implements pedalboard_reset: re-read the loaded bundle's
// stored plugin values and restore ports, bypass and preset on each
// already-loaded plugin, then re-issue each addressing stored in the bundle
// through the addressing engine's Address. Plugin instances themselves are left
// alone -- reset restores values, it does not tear down and recreate the
// engine-side graph.
func (b *bundleWriter) ResetCurrent() error {
	b.state.Lock()
	path := b.state.PedalboardPath
	b.state.Unlock()
	if path == "" {
		return fmt.Errorf("hostd: no pedalboard loaded")
	}

	desc, err := pedalboard.OpenBundle(path)
	if err != nil {
		return err
	}

	for _, pd := range desc.Plugins {
		instance := "/graph/" + pd.Instance
		if _, _, ok := b.state.PluginByInstance(instance); !ok {
			continue
		}

		b.state.Bypass(instance, pd.Bypassed, nil)
		if pd.Preset != "" {
			b.state.PresetLoad(instance, pd.Preset, nil)
		}
		for symbol, parsed := range pd.Ports {
			if !parsed.HasValue {
				continue
			}
			b.state.ParamSet(instance, symbol, parsed.Value, nil)
		}
	}

	if b.addressing != nil {
		for actuatorURI, records := range desc.Addressings {
			for _, rec := range records {
				instance, ok := instanceByMapperID(b.state, rec.Instance)
				if !ok {
					continue
				}
				b.addressing.Address(instance, rec.Port, actuatorURI, rec.Label, rec.Minimum, rec.Maximum, 0, rec.Steps, model.PortInfo{}, func(bool) {})
			}
		}
	}
	return nil
}

func instanceByMapperID(s *session.State, id int) (string, bool) {
	s.Lock()
	defer s.Unlock()
	p, ok := s.Plugins[id]
	if !ok {
		return "", false
	}
	return p.Instance, true
}
