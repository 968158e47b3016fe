package main

import (
	"testing"
	"time"

	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
)

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	cur := time.Second
	const max = 30 * time.Second

	for i := 0; i < 10; i++ {
		cur = nextBackoff(cur, max)
		if cur > max {
			t.Fatalf("backoff exceeded cap: %v", cur)
		}
	}
	if cur != max {
		t.Fatalf("expected backoff to saturate at %v, got %v", max, cur)
	}
}

func TestToReplaySpecCarriesEveryField(t *testing.T) {
	in := session.ReplaySpecInput{
		Plugins: []session.ReplayPluginInput{
			{
				InstanceID:       3,
				URI:              "urn:ex:gain",
				Bypassed:         true,
				BypassCC:         model.MidiCC{Channel: 1, Controller: 2, Minimum: 0, Maximum: 1},
				Preset:           "urn:ex:gain#warm",
				Params:           map[string]float32{"gain": 0.5},
				MidiMaps:         map[string]model.MidiCC{"gain": {Channel: 1, Controller: 7, Minimum: 0, Maximum: 1}},
				MonitoredOutputs: []string{"peak"},
			},
		},
		Connections: []model.Connection{{Source: "/graph/gain_1/out", Target: "/graph/sys/playback_1"}},
	}

	out := toReplaySpec(in)

	if len(out.Plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(out.Plugins))
	}
	p := out.Plugins[0]
	if p.InstanceID != 3 || p.URI != "urn:ex:gain" || !p.Bypassed || p.Preset != "urn:ex:gain#warm" {
		t.Fatalf("unexpected plugin conversion: %+v", p)
	}
	if p.Params["gain"] != 0.5 {
		t.Fatalf("expected params to carry over, got %+v", p.Params)
	}
	if p.MidiMaps["gain"].Controller != 7 {
		t.Fatalf("expected midi maps to carry over, got %+v", p.MidiMaps)
	}
	if len(p.MonitoredOutputs) != 1 || p.MonitoredOutputs[0] != "peak" {
		t.Fatalf("expected monitored outputs to carry over, got %+v", p.MonitoredOutputs)
	}
	if len(out.Connections) != 1 || out.Connections[0] != in.Connections[0] {
		t.Fatalf("expected connections to carry over unchanged, got %+v", out.Connections)
	}
}

func TestToReplaySpecEmptyInputIsNoOp(t *testing.T) {
	out := toReplaySpec(session.ReplaySpecInput{})
	if len(out.Plugins) != 0 || len(out.Connections) != 0 {
		t.Fatalf("expected empty spec to convert to empty spec, got %+v", out)
	}
}
