package pedalboard

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var manifestBinaryPattern = regexp.MustCompile(`lv2:binary\s+<([^>]+)>`)

// OpenBundle reads a bundle directory written by Save back into a
// Descriptor ready for Load. The main graph must be in the exact form
// RenderMainGraph emits (see ParseMainGraph); arc paths come back without
// the "/graph/" prefix.
func OpenBundle(dir string) (Descriptor, error) {
	manifest, err := os.ReadFile(filepath.Join(dir, "manifest.ttl"))
	if err != nil {
		return Descriptor{}, fmt.Errorf("pedalboard: reading manifest: %w", err)
	}
	m := manifestBinaryPattern.FindStringSubmatch(string(manifest))
	if m == nil {
		return Descriptor{}, fmt.Errorf("pedalboard: manifest.ttl has no lv2:binary")
	}

	mainDoc, err := os.ReadFile(filepath.Join(dir, m[1]))
	if err != nil {
		return Descriptor{}, fmt.Errorf("pedalboard: reading main graph: %w", err)
	}
	graph := ParseMainGraph(string(mainDoc))

	desc := Descriptor{
		Name:   graph.Name,
		Width:  graph.Width,
		Height: graph.Height,
	}
	for _, b := range graph.Blocks {
		desc.Plugins = append(desc.Plugins, PluginDescriptor{
			Instance: b.Path,
			URI:      b.URI,
			X:        b.X,
			Y:        b.Y,
			Bypassed: !b.Enabled,
			Preset:   b.Preset,
			Ports:    b.Ports,
		})
	}
	desc.Connections = graph.Arcs

	if addressings, err := ReadAddressingsJSON(filepath.Join(dir, "addressings.json")); err == nil {
		desc.Addressings = addressings
	}
	if presets, err := ReadPresetsJSON(filepath.Join(dir, "presets.json")); err == nil {
		desc.ExtraPresets = presets
	}

	return desc, nil
}

// RewriteMainGraph implements pedalboard_save: re-render the bundle's main
// graph file in place from live session data, without touching its
// manifest, addressings.json or presets.json and without picking a new
// bundle path the way Save does for a brand new bundle.
func RewriteMainGraph(dir string, deps SaveDeps) error {
	manifest, err := os.ReadFile(filepath.Join(dir, "manifest.ttl"))
	if err != nil {
		return fmt.Errorf("pedalboard: reading manifest: %w", err)
	}
	m := manifestBinaryPattern.FindStringSubmatch(string(manifest))
	if m == nil {
		return fmt.Errorf("pedalboard: manifest.ttl has no lv2:binary")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	bundleURI := "file://" + abs
	graph := BuildGraph(deps.Title, deps.Width, deps.Height, deps.Plugins, deps.Connections)
	mainDoc, err := RenderMainGraph(bundleURI, graph)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, m[1]), []byte(mainDoc), 0o644)
}
