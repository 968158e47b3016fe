package pedalboard

import (
	"regexp"
	"strconv"
	"strings"
)

// ParsedBlock is one plugin block recovered from a main-graph TTL document.
type ParsedBlock struct {
	Path        string
	URI         string
	X, Y        float64
	Enabled     bool
	Version     string
	Preset      string
	Ports       map[string]ParsedPort
}

// ParsedPort is one port stub recovered from a block.
type ParsedPort struct {
	Class          string
	HasValue       bool
	Value          float32
	HasMidi        bool
	MidiChannel    int
	MidiController int
	MidiMinimum    float32
	MidiMaximum    float32
}

// ParsedArc is one connection arc recovered from a main-graph TTL document.
type ParsedArc struct {
	Source, Target string
}

// ParsedGraph is everything ParseMainGraph recovers.
type ParsedGraph struct {
	Name    string
	Width   int
	Height  int
	Blocks  []ParsedBlock
	Arcs    []ParsedArc
}

// ParseMainGraph reads back a document produced by RenderMainGraph. This is
// not a Turtle parser: it matches exactly the grammar mainGraphTemplate
// emits, the same narrow-need tradeoff PresetLoad's applyPresetValues
// makes for the engine's preset_show dump. A hand-edited or foreign bundle
// TTL will not parse.
func ParseMainGraph(doc string) ParsedGraph {
	var g ParsedGraph

	if m := rootMeta.FindStringSubmatch(doc); m != nil {
		g.Name = m[1]
		g.Width, _ = strconv.Atoi(m[2])
		g.Height, _ = strconv.Atoi(m[3])
	}

	for _, m := range blockPattern.FindAllStringSubmatch(doc, -1) {
		b := ParsedBlock{
			Path:    m[1],
			URI:     m[2],
			Enabled: m[5] == "true",
			Version: m[6],
			Preset:  m[7],
			Ports:   map[string]ParsedPort{},
		}
		b.X, _ = strconv.ParseFloat(m[3], 64)
		b.Y, _ = strconv.ParseFloat(m[4], 64)
		g.Blocks = append(g.Blocks, b)
	}

	for i := range g.Blocks {
		for _, m := range portStubPattern.FindAllStringSubmatch(doc, -1) {
			path := m[1]
			if !strings.HasPrefix(path, g.Blocks[i].Path+"/") {
				continue
			}
			symbol := strings.TrimPrefix(path, g.Blocks[i].Path+"/")
			pp := ParsedPort{Class: m[2]}
			if m[3] != "" {
				pp.HasValue = true
				v, _ := strconv.ParseFloat(m[3], 32)
				pp.Value = float32(v)
			}
			if m[4] != "" {
				pp.HasMidi = true
				pp.MidiChannel, _ = strconv.Atoi(m[4])
				pp.MidiController, _ = strconv.Atoi(m[5])
				min, _ := strconv.ParseFloat(m[6], 32)
				max, _ := strconv.ParseFloat(m[7], 32)
				pp.MidiMinimum, pp.MidiMaximum = float32(min), float32(max)
			}
			g.Blocks[i].Ports[symbol] = pp
		}
	}

	for _, m := range arcPattern.FindAllStringSubmatch(doc, -1) {
		g.Arcs = append(g.Arcs, ParsedArc{Source: m[1], Target: m[2]})
	}

	return g
}

var (
	rootMeta = regexp.MustCompile(`doap:name\s+"([^"]*)"\s*;\s*pedal:width\s+(\d+)\s*;\s*pedal:height\s+(\d+)\s*;`)

	blockPattern = regexp.MustCompile(`(?s)<([^>]+)>\s+a\s+ingen:Block\s*;\s*` +
		`ingen:prototype\s+<([^>]+)>\s*;\s*` +
		`ingen:canvasX\s+([-0-9.]+)\s*;\s*` +
		`ingen:canvasY\s+([-0-9.]+)\s*;\s*` +
		`pedal:enabled\s+(true|false)\s*;\s*` +
		`lv2:polyphonic\s+false\s*;\s*` +
		`pedal:version\s+"([^"]*)"\s*;\s*` +
		`(?:pedal:preset\s+<([^>]+)>\s*;\s*)?` +
		`lv2:port`)

	portStubPattern = regexp.MustCompile(`<([^>]+)>\s+a\s+(\S+)\s*` +
		`(?:;\s*ingen:value\s+(\S+)\s*)?` +
		`(?:;\s*pedal:midiChannel\s+(-?\d+)\s*;\s*pedal:midiController\s+(-?\d+)\s*;\s*pedal:midiMinimum\s+(\S+)\s*;\s*pedal:midiMaximum\s+(\S+)\s*)?\.`)

	arcPattern = regexp.MustCompile(`(?s)_:\S+\s+ingen:tail\s+<([^>]+)>\s*;\s*ingen:head\s+<([^>]+)>\s*\.`)
)
