package pedalboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modpedal/hostd/internal/model"
)

func TestOpenBundleRoundTripsWhatSaveWrote(t *testing.T) {
	dir := t.TempDir()

	plugin := model.NewPlugin("/graph/gain_1", "urn:ex:gain", 5, 6)
	plugin.Ports["gain"] = 0.4
	plugin.Bypassed = true

	conns := []model.Connection{{Source: "/graph/gain_1/out", Target: "/graph/sys/playback_1"}}

	bundlePath, err := Save(dir, SaveDeps{
		Title:       "Round Trip",
		Plugins:     []model.Plugin{*plugin},
		Connections: conns,
		Width:       640,
		Height:      480,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	desc, err := OpenBundle(bundlePath)
	if err != nil {
		t.Fatalf("OpenBundle failed: %v", err)
	}
	if desc.Name != "Round Trip" || desc.Width != 640 || desc.Height != 480 {
		t.Fatalf("unexpected descriptor header: %+v", desc)
	}
	if len(desc.Plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(desc.Plugins))
	}
	pd := desc.Plugins[0]
	if pd.Instance != "gain_1" || pd.URI != "urn:ex:gain" || !pd.Bypassed {
		t.Fatalf("unexpected plugin descriptor: %+v", pd)
	}
	if len(desc.Connections) != 1 || desc.Connections[0].Source != "gain_1/out" || desc.Connections[0].Target != "sys/playback_1" {
		t.Fatalf("unexpected connections: %+v", desc.Connections)
	}
}

func TestRewriteMainGraphUpdatesInPlaceWithoutChangingPath(t *testing.T) {
	dir := t.TempDir()

	plugin := model.NewPlugin("/graph/gain_1", "urn:ex:gain", 0, 0)
	plugin.Ports["gain"] = 0.1

	bundlePath, err := Save(dir, SaveDeps{
		Title:   "Rewrite Me",
		Plugins: []model.Plugin{*plugin},
		Width:   100,
		Height:  100,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sym := symbolify("Rewrite Me")
	mainPath := filepath.Join(bundlePath, sym+".ttl")
	before, err := os.Stat(mainPath)
	if err != nil {
		t.Fatalf("expected main graph file to exist: %v", err)
	}

	plugin.Ports["gain"] = 0.9
	newConns := []model.Connection{{Source: "/graph/gain_1/out", Target: "/graph/sys/playback_2"}}
	if err := RewriteMainGraph(bundlePath, SaveDeps{
		Title:       "Rewrite Me",
		Plugins:     []model.Plugin{*plugin},
		Connections: newConns,
		Width:       100,
		Height:      100,
	}); err != nil {
		t.Fatalf("RewriteMainGraph failed: %v", err)
	}

	after, err := os.Stat(mainPath)
	if err != nil {
		t.Fatalf("expected main graph file to still exist at the same path: %v", err)
	}
	if after.Name() != before.Name() {
		t.Fatalf("RewriteMainGraph must not rename the main graph file")
	}

	desc, err := OpenBundle(bundlePath)
	if err != nil {
		t.Fatalf("OpenBundle after rewrite failed: %v", err)
	}
	if desc.Plugins[0].Ports["gain"].Value != 0.9 {
		t.Fatalf("expected rewritten gain value to round-trip, got %+v", desc.Plugins[0].Ports["gain"])
	}
	if len(desc.Connections) != 1 || desc.Connections[0].Source != "gain_1/out" || desc.Connections[0].Target != "sys/playback_2" {
		t.Fatalf("expected rewritten connections to round-trip, got %+v", desc.Connections)
	}
}

func TestRewriteMainGraphFailsWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	if err := RewriteMainGraph(dir, SaveDeps{Title: "No Manifest"}); err == nil {
		t.Fatal("expected an error when manifest.ttl is missing")
	}
}
