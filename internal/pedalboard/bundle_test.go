package pedalboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modpedal/hostd/internal/model"
)

type fakeMetadata struct {
	uri          string
	ports        []model.PortInfo
	designations model.Designations
}

func (f fakeMetadata) URI() string                     { return f.uri }
func (f fakeMetadata) Ports() []model.PortInfo         { return f.ports }
func (f fakeMetadata) Designations() model.Designations { return f.designations }
func (f fakeMetadata) VersionQuad() [4]int             { return [4]int{1, 0, 0, 0} }

type fakeReader struct{ byURI map[string]fakeMetadata }

func (r fakeReader) Read(uri string) (model.PluginMetadata, error) {
	return r.byURI[uri], nil
}

// TestRenderThenParseMainGraphRoundTrips covers P4's building block: a
// rendered main-graph document parses back to the same plugin/connection
// shape it was built from.
func TestRenderThenParseMainGraphRoundTrips(t *testing.T) {
	plugin := model.NewPlugin("/graph/gain_1", "urn:ex:gain", 10, 20)
	plugin.Ports["gain"] = 0.75
	plugin.MidiCCs["gain"] = model.MidiCC{Channel: 1, Controller: 7, Minimum: 0, Maximum: 1}
	plugin.Bypassed = false

	conns := []model.Connection{{Source: "/graph/gain_1/out", Target: "/graph/sys/playback_1"}}
	graph := BuildGraph("My Board", 800, 600, []model.Plugin{*plugin}, conns)

	doc, err := RenderMainGraph("file:///tmp/my_board.pedalboard", graph)
	if err != nil {
		t.Fatalf("RenderMainGraph failed: %v", err)
	}

	parsed := ParseMainGraph(doc)
	if parsed.Width != 800 || parsed.Height != 600 {
		t.Fatalf("expected width/height to round-trip, got %d/%d", parsed.Width, parsed.Height)
	}
	if len(parsed.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(parsed.Blocks))
	}
	b := parsed.Blocks[0]
	if b.Path != "gain_1" || b.URI != "urn:ex:gain" {
		t.Fatalf("unexpected block identity: %+v", b)
	}
	port, ok := b.Ports["gain"]
	if !ok || !port.HasValue || port.Value != 0.75 {
		t.Fatalf("expected gain port value to round-trip, got %+v", port)
	}
	if !port.HasMidi || port.MidiController != 7 {
		t.Fatalf("expected MIDI binding to round-trip, got %+v", port)
	}
	if len(parsed.Arcs) != 1 {
		t.Fatalf("expected 1 arc, got %d", len(parsed.Arcs))
	}
}

func TestSaveWritesExpectedFilesAndGraphDescribesPlugin(t *testing.T) {
	dir := t.TempDir()

	plugin := model.NewPlugin("/graph/gain_1", "urn:ex:gain", 0, 0)
	plugin.Ports["gain"] = 0.4

	bundlePath, err := Save(dir, SaveDeps{
		Title:       "Test Board",
		Plugins:     []model.Plugin{*plugin},
		Connections: nil,
		Addressings: AddressingsFile{},
		Width:       100,
		Height:      100,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sym := symbolify("Test Board")
	for _, f := range []string{sym + ".ttl", "manifest.ttl", "addressings.json"} {
		if _, err := os.Stat(filepath.Join(bundlePath, f)); err != nil {
			t.Fatalf("expected %s to exist: %v", f, err)
		}
	}
	if _, err := os.Stat(bundlePath + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected temp directory cleaned up after a successful save")
	}

	doc, err := os.ReadFile(filepath.Join(bundlePath, sym+".ttl"))
	if err != nil {
		t.Fatalf("failed reading saved main graph: %v", err)
	}
	parsed := ParseMainGraph(string(doc))
	if len(parsed.Blocks) != 1 || parsed.Blocks[0].URI != "urn:ex:gain" {
		t.Fatalf("expected saved graph to describe the gain plugin, got %+v", parsed.Blocks)
	}
}
