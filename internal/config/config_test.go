package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hostd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "engine:\n  write_socket: \"127.0.0.1:9000\"\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Engine.WriteSocket != "127.0.0.1:9000" {
		t.Fatalf("expected explicit write_socket preserved, got %q", c.Engine.WriteSocket)
	}
	if c.Engine.ReadSocket == "" {
		t.Fatal("expected read_socket to default")
	}
	if c.Pedalboards.Directory == "" {
		t.Fatal("expected pedalboards directory to default")
	}
	if len(c.ActuatorsConfig) != 8 {
		t.Fatalf("expected 8 default actuators, got %d", len(c.ActuatorsConfig))
	}
}

func TestActuatorsParsesKindAndHWType(t *testing.T) {
	path := writeTempConfig(t, `
actuators:
  - uri: /hmi/knob1
    hw_type: mod
    kind: knob
    index: 0
  - uri: /hmi/footswitch1
    hw_type: mod
    kind: footswitch
    index: 0
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	actuators, err := c.Actuators()
	if err != nil {
		t.Fatalf("Actuators failed: %v", err)
	}
	if len(actuators) != 2 {
		t.Fatalf("expected 2 actuators, got %d", len(actuators))
	}
	if _, ok := actuators["/hmi/knob1"]; !ok {
		t.Fatal("expected /hmi/knob1 present")
	}
}

func TestActuatorsRejectsUnknownKind(t *testing.T) {
	path := writeTempConfig(t, `
actuators:
  - uri: /hmi/weird1
    hw_type: mod
    kind: dial
    index: 0
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := c.Actuators(); err == nil {
		t.Fatal("expected an error for an unknown actuator kind")
	}
}

func TestBanksConvertsToModelBanks(t *testing.T) {
	path := writeTempConfig(t, `
banks:
  - title: Rock
    pedalboards: ["Lead", "Clean"]
    navigate_channel: 2
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	banks := c.Banks()
	if len(banks) != 1 || banks[0].Title != "Rock" || len(banks[0].Pedalboards) != 2 {
		t.Fatalf("unexpected banks conversion: %+v", banks)
	}
}
