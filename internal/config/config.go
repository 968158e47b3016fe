// Package config loads the YAML configuration file that names the engine
// socket addresses, the pedalboards directory, the actuator topology and
// the bank list fed to internal/hmi.
//
// Grounded on the pack's YAML-config idiom (aldrin-isaac-newtron's
// newtest.ParseScenario: os.ReadFile + yaml.Unmarshal + post-parse
// defaulting), generalized from test-scenario parsing to process startup
// configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modpedal/hostd/internal/model"
)

// Config is the top-level document shape.
type Config struct {
	Engine          EngineConfig      `yaml:"engine"`
	HMI             HMIConfig         `yaml:"hmi"`
	Pedalboards     PedalboardsConfig `yaml:"pedalboards"`
	ActuatorsConfig []ActuatorConfig  `yaml:"actuators"`
	BanksConfig     []BankConfig      `yaml:"banks"`
	Websocket       WebsocketConfig   `yaml:"websocket"`
}

// EngineConfig names the dual NUL-framed sockets of C2 EngineLink.
type EngineConfig struct {
	WriteSocket string `yaml:"write_socket"` // e.g. "127.0.0.1:5555"
	ReadSocket  string `yaml:"read_socket"`  // e.g. "127.0.0.1:5556"
}

// HMIConfig names the serial device the hardware control surface is
// reached over. The serial framing itself is an out-of-scope external
// collaborator; this just locates it.
type HMIConfig struct {
	SerialDevice string `yaml:"serial_device"`
	BaudRate     int    `yaml:"baud_rate"`
}

// PedalboardsConfig names the directory PedalboardIO loads/saves bundles
// under, and which one is the boot default.
type PedalboardsConfig struct {
	Directory   string `yaml:"directory"`
	DefaultName string `yaml:"default_name"`
}

// WebsocketConfig names the editor-facing listen address.
type WebsocketConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// ActuatorConfig is one physical control surface slot, in the same shape
// as model.Actuator but with YAML-friendly string enums.
type ActuatorConfig struct {
	URI    string `yaml:"uri"`
	HWType string `yaml:"hw_type"` // mod, pedal, touch, accel, custom
	HWID   int    `yaml:"hw_id"`
	Kind   string `yaml:"kind"` // footswitch, knob, pot
	Index  int    `yaml:"index"`
}

// BankConfig mirrors model.Bank.
type BankConfig struct {
	Title                string   `yaml:"title"`
	Pedalboards          []string `yaml:"pedalboards"`
	NavigateFootswitches bool     `yaml:"navigate_footswitches"`
	NavigateChannel      int      `yaml:"navigate_channel"`
}

// Load reads and parses a YAML configuration file, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Engine.WriteSocket == "" {
		c.Engine.WriteSocket = "127.0.0.1:5555"
	}
	if c.Engine.ReadSocket == "" {
		c.Engine.ReadSocket = "127.0.0.1:5556"
	}
	if c.Pedalboards.Directory == "" {
		c.Pedalboards.Directory = "~/.pedalboards"
	}
	if c.Websocket.ListenAddr == "" {
		c.Websocket.ListenAddr = ":8888"
	}
	if len(c.ActuatorsConfig) == 0 {
		c.ActuatorsConfig = defaultActuatorConfigs()
	}
}

func defaultActuatorConfigs() []ActuatorConfig {
	var out []ActuatorConfig
	for i := 1; i <= 4; i++ {
		out = append(out, ActuatorConfig{URI: fmt.Sprintf("/hmi/knob%d", i), HWType: "mod", Kind: "knob", Index: i - 1})
	}
	for i := 1; i <= 4; i++ {
		out = append(out, ActuatorConfig{URI: fmt.Sprintf("/hmi/footswitch%d", i), HWType: "mod", Kind: "footswitch", Index: i - 1})
	}
	return out
}

// Actuators converts the YAML actuator list into the inventory map
// internal/addressing and internal/hmi both key off of.
func (c *Config) Actuators() (map[string]model.Actuator, error) {
	out := make(map[string]model.Actuator, len(c.ActuatorsConfig))
	for _, a := range c.ActuatorsConfig {
		hwType, err := parseHWType(a.HWType)
		if err != nil {
			return nil, fmt.Errorf("actuator %s: %w", a.URI, err)
		}
		kind, err := parseKind(a.Kind)
		if err != nil {
			return nil, fmt.Errorf("actuator %s: %w", a.URI, err)
		}
		out[a.URI] = model.Actuator{URI: a.URI, HWType: hwType, HWID: a.HWID, Kind: kind, Index: a.Index}
	}
	return out, nil
}

func parseHWType(s string) (model.ActuatorHWType, error) {
	switch s {
	case "", "mod":
		return model.HWTypeMOD, nil
	case "pedal":
		return model.HWTypePedal, nil
	case "touch":
		return model.HWTypeTouch, nil
	case "accel":
		return model.HWTypeAccel, nil
	case "custom":
		return model.HWTypeCustom, nil
	default:
		return 0, fmt.Errorf("unknown hw_type %q", s)
	}
}

func parseKind(s string) (model.ActuatorKind, error) {
	switch s {
	case "footswitch":
		return model.ActuatorFootswitch, nil
	case "knob":
		return model.ActuatorKnob, nil
	case "pot":
		return model.ActuatorPot, nil
	default:
		return 0, fmt.Errorf("unknown actuator kind %q", s)
	}
}

// Banks converts the YAML bank list into the model.Bank slice
// hmi.Dispatcher.SetBanks expects.
func (c *Config) Banks() []model.Bank {
	out := make([]model.Bank, 0, len(c.BanksConfig))
	for _, b := range c.BanksConfig {
		out = append(out, model.Bank{
			Title:                b.Title,
			Pedalboards:          b.Pedalboards,
			NavigateFootswitches: b.NavigateFootswitches,
			NavigateChannel:      b.NavigateChannel,
		})
	}
	return out
}
