// Package model holds the shared pedalboard data types: plugins, ports,
// addressings, MIDI port records and connections. Nothing in this package
// performs I/O; it is the vocabulary every other internal package shares.
package model

// TypeFlags is the addressing type bitset.
type TypeFlags uint32

const (
	FlagLinear      TypeFlags = 0
	FlagBypass      TypeFlags = 1
	FlagTapTempo    TypeFlags = 2
	FlagEnumeration TypeFlags = 4
	FlagScalePoints TypeFlags = 8
	FlagTrigger     TypeFlags = 16
	FlagToggled     TypeFlags = 32
	FlagLogarithmic TypeFlags = 64
	FlagInteger     TypeFlags = 128
)

// Well-known addressing sentinel URIs.
const (
	NullAddressURI  = "null"
	MidiLearnURI    = "/midi-learn"
	MidiUnmapURI    = "/midi-unmap"
	PresetsPort     = ":presets"
	BypassPort      = ":bypass"
	MaxScalepoints  = 50
	FootswitchGroup = "/hmi/footswitch"
)

// MidiCC is a control-change binding, or the sentinel (-1,-1) when unmapped.
type MidiCC struct {
	Channel    int
	Controller int
	Minimum    float32
	Maximum    float32
}

// UnmappedCC is the sentinel binding for a port with no MIDI CC attached.
var UnmappedCC = MidiCC{Channel: -1, Controller: -1}

// IsMapped reports whether cc carries a real channel/controller pair.
func (cc MidiCC) IsMapped() bool { return cc.Channel >= 0 && cc.Controller >= 0 }

// Designations names the designated ports driven by host-side bypass state.
type Designations struct {
	Enabled   string // port symbol driven by 1.0-bypassed, "" if none
	Freewheel string // port symbol always driven to 0.0, "" if none
}

// ScalePoint is one (value,label) option exposed on an enumerated port.
type ScalePoint struct {
	Value float32
	Label string
}

// PortInfo is the tagged, duck-typed-no-more port metadata the external LV2
// reader hands back; only the fields the session layer needs are modeled.
type PortInfo struct {
	Symbol      string
	IsControl   bool
	IsOutput    bool
	Minimum     float32
	Maximum     float32
	Default     float32
	Toggled     bool
	Integer     bool
	Logarithmic bool
	Trigger     bool
	Enumeration bool
	NotOnGUI    bool
	ScalePoints []ScalePoint
}

// PluginMetadata is the narrow interface onto the out-of-scope LV2 metadata
// reader: everything PedalboardIO needs to build a Plugin record.
type PluginMetadata interface {
	URI() string
	Ports() []PortInfo
	Designations() Designations
	VersionQuad() [4]int
}

// Addressing binds one plugin port to one actuator slot.
type Addressing struct {
	ActuatorURI string
	InstanceID  int
	Port        string
	Label       string
	Type        TypeFlags
	Unit        string
	Minimum     float32
	Maximum     float32
	Steps       int
	Options     []ScalePoint // (index, label) pairs for ENUMERATION
}

// Ring is the (addressings, cursor) pair bound to one actuator URI.
type Ring struct {
	Addrs []*Addressing
	Idx   int
}

// Next advances the cursor modularly; no-op on an empty ring.
func (r *Ring) Next() {
	if len(r.Addrs) == 0 {
		r.Idx = 0
		return
	}
	r.Idx = (r.Idx + 1) % len(r.Addrs)
}

// Prev retreats the cursor modularly; no-op on an empty ring.
func (r *Ring) Prev() {
	if len(r.Addrs) == 0 {
		r.Idx = 0
		return
	}
	r.Idx = (r.Idx - 1 + len(r.Addrs)) % len(r.Addrs)
}

// Current returns the addressing the ring currently shows, or nil if empty.
func (r *Ring) Current() *Addressing {
	if len(r.Addrs) == 0 {
		return nil
	}
	return r.Addrs[r.Idx]
}

// Plugin is the in-memory record of a loaded plugin instance, keyed
// elsewhere by its numeric instance id.
type Plugin struct {
	Instance     string // e.g. "/graph/delay_1"
	URI          string
	X, Y         float64
	Bypassed     bool
	BypassCC     MidiCC
	Ports        map[string]float32    // control-input symbol -> value
	Outputs      map[string]*float32   // monitored-output symbol -> last value (nil = never observed)
	MidiCCs      map[string]MidiCC     // control-input symbol -> CC binding
	Badports     map[string]bool       // symbols that must not be addressed
	Designations Designations
	Preset       string   // currently loaded preset URI, "" if none
	MapPresets   []string // ordered preset URIs exposed to the HMI
	Addressings  map[string]*Addressing // port symbol -> active addressing
}

// NewPlugin allocates a Plugin record with its maps initialized.
func NewPlugin(instance, uri string, x, y float64) *Plugin {
	return &Plugin{
		Instance:    instance,
		URI:         uri,
		X:           x,
		Y:           y,
		BypassCC:    UnmappedCC,
		Ports:       make(map[string]float32),
		Outputs:     make(map[string]*float32),
		MidiCCs:     make(map[string]MidiCC),
		Badports:    make(map[string]bool),
		Addressings: make(map[string]*Addressing),
	}
}

// MidiPort is the stored record of a saved MIDI hardware device binding.
type MidiPort struct {
	StoredSymbol       string // single jack port name, or "a;b" paired in;out
	StoredAlias        string // human alias, or "alias;alias" when paired
	PendingConnections []Connection
}

// Paired reports whether this record represents an in+out pair.
func (m MidiPort) Paired() bool {
	return containsSemicolon(m.StoredSymbol)
}

func containsSemicolon(s string) bool {
	for _, r := range s {
		if r == ';' {
			return true
		}
	}
	return false
}

// Connection is a directed edge between two graph port paths.
type Connection struct {
	Source string
	Target string
}

// ActuatorHWType enumerates the hardware families the HMI protocol names.
type ActuatorHWType int

const (
	HWTypeMOD ActuatorHWType = iota
	HWTypePedal
	HWTypeTouch
	HWTypeAccel
	HWTypeCustom
)

// ActuatorKind enumerates the physical control kinds.
type ActuatorKind int

const (
	ActuatorFootswitch ActuatorKind = iota + 1
	ActuatorKnob
	ActuatorPot
)

// Actuator is one physical control surface slot.
type Actuator struct {
	URI     string
	HWType  ActuatorHWType
	HWID    int
	Kind    ActuatorKind
	Index   int
}

// PresetSnapshot is a named snapshot of one plugin's port values.
type PresetSnapshot struct {
	URI   string
	Ports map[string]float32
}

// PedalboardPreset is a named snapshot of the whole board.
type PedalboardPreset struct {
	Name    string
	Plugins map[int]PresetSnapshot
}

// Bank is an ordered collection of pedalboards with its own navigation policy.
type Bank struct {
	Title               string
	Pedalboards         []string // bundle paths
	NavigateFootswitches bool
	NavigateChannel     int // 1..16
}
