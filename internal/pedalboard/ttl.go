// Package pedalboard implements the
// bundle load/save pipeline that moves SessionState to and from a
// directory on disk.
//
// The main graph document is Turtle, generated with text/template: no
// library in the retrieval pack speaks RDF/Turtle, and pulling one in for
// a single fixed-shape document would be a heavier dependency than the
// task needs (DESIGN.md names this explicitly). manifest.ttl is rendered
// from a second, smaller template. The side files -- addressings and
// presets -- are JSON, the own encoding/json idiom (serializer.go, session/cache_store.go).
package pedalboard

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/modpedal/hostd/internal/model"
)

// mainGraphTemplate renders <sym>.ttl: one block per plugin, one arc per
// connection, and the pedalboard root block.
var mainGraphTemplate = template.Must(template.New("main.ttl").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`@prefix doap: <http://usefulinc.com/ns/doap#> .
@prefix ingen: <http://drobilla.net/ns/ingen#> .
@prefix lv2: <http://lv2plug.in/ns/lv2core#> .
@prefix pedal: <http://moddevices.com/ns/modpedal#> .

<> a lv2:Plugin ,
	ingen:Graph ,
	pedal:Pedalboard ;
	lv2:prototype <{{.BundleURI}}> ;
	doap:name "{{.Graph.Name}}" ;
	pedal:width {{.Graph.Width}} ;
	pedal:height {{.Graph.Height}} ;
	pedal:addressings <./addressings.json> ;
	lv2:polyphony 1 ;
	lv2:port {{range $i, $p := .Graph.RootPorts}}{{if $i}} , {{end}}<{{$p}}>{{end}} .
{{range .Graph.Blocks}}
<{{.Path}}> a ingen:Block ;
	ingen:prototype <{{.URI}}> ;
	ingen:canvasX {{.X}} ;
	ingen:canvasY {{.Y}} ;
	pedal:enabled {{.Enabled}} ;
	lv2:polyphonic false ;
	pedal:version "{{.Version}}" ;
	{{if .Preset}}pedal:preset <{{.Preset}}> ;
	{{end}}lv2:port {{range $i, $p := .Ports}}{{if $i}} , {{end}}<{{$p}}>{{end}} .
{{range .PortStubs}}
<{{.Path}}> a {{.Class}} {{if .HasValue}}; ingen:value {{.Value}} {{end}}{{if .HasMidi}}; pedal:midiChannel {{.MidiChannel}} ; pedal:midiController {{.MidiController}} ; pedal:midiMinimum {{.MidiMinimum}} ; pedal:midiMaximum {{.MidiMaximum}} {{end}}.
{{end}}{{end}}
{{range .Graph.Arcs}}
_:{{.ID}} ingen:tail <{{.Source}}> ;
	ingen:head <{{.Target}}> .
{{end}}
`))

// manifestTemplate renders manifest.ttl.
var manifestTemplate = template.Must(template.New("manifest.ttl").Parse(`@prefix lv2: <http://lv2plug.in/ns/lv2core#> .
@prefix ingen: <http://drobilla.net/ns/ingen#> .
@prefix pedal: <http://moddevices.com/ns/modpedal#> .

<{{.BundleURI}}> a lv2:Plugin ,
	ingen:Graph ,
	pedal:Pedalboard ;
	lv2:prototype ingen:GraphPrototype ;
	lv2:binary <{{.TTLFile}}> .
`))

// Arc is a connection between two graph port paths, stripped of the
// "/graph/" prefix per the TTL contract.
type Arc struct {
	ID     string
	Source string
	Target string
}

// PortStub is the per-port block under a plugin.
type PortStub struct {
	Path                                           string
	Class                                          string
	HasValue                                       bool
	Value                                          string
	HasMidi                                        bool
	MidiChannel, MidiController                    int
	MidiMinimum, MidiMaximum                       string
}

// Block is one plugin instance block in the main graph.
type Block struct {
	Path      string
	URI       string
	X, Y      float64
	Enabled   string // "true"/"false"
	Version   string
	Preset    string
	Ports     []string
	PortStubs []PortStub
}

// Graph is everything the main-graph template needs.
type Graph struct {
	Name      string
	Width     int
	Height    int
	RootPorts []string
	Blocks    []Block
	Arcs      []Arc
}

// RenderMainGraph produces the <sym>.ttl document for g.
func RenderMainGraph(bundleURI string, g Graph) (string, error) {
	var b strings.Builder
	err := mainGraphTemplate.Execute(&b, struct {
		BundleURI string
		Graph     Graph
	}{bundleURI, g})
	return b.String(), err
}

// RenderManifest produces manifest.ttl for a bundle whose main graph file
// is ttlFile.
func RenderManifest(bundleURI, ttlFile string) (string, error) {
	var b strings.Builder
	err := manifestTemplate.Execute(&b, struct{ BundleURI, TTLFile string }{bundleURI, ttlFile})
	return b.String(), err
}

// BuildGraph assembles a Graph from live session data for Save.
func BuildGraph(name string, width, height int, plugins []model.Plugin, connections []model.Connection) Graph {
	g := Graph{Name: name, Width: width, Height: height}
	for _, c := range connections {
		g.Arcs = append(g.Arcs, Arc{
			ID:     arcID(c),
			Source: stripGraphPrefix(c.Source),
			Target: stripGraphPrefix(c.Target),
		})
	}
	for _, p := range plugins {
		g.Blocks = append(g.Blocks, buildBlock(p))
	}
	return g
}

func buildBlock(p model.Plugin) Block {
	enabled := "true"
	if p.Bypassed {
		enabled = "false"
	}
	b := Block{
		Path:    stripGraphPrefix(p.Instance),
		URI:     p.URI,
		X:       p.X,
		Y:       p.Y,
		Enabled: enabled,
		Preset:  p.Preset,
	}
	for symbol := range p.Ports {
		if p.Badports[symbol] {
			continue
		}
		portPath := b.Path + "/" + symbol
		b.Ports = append(b.Ports, portPath)
		stub := PortStub{Path: portPath, Class: "lv2:ControlPort", HasValue: true, Value: formatFloat(p.Ports[symbol])}
		if cc, ok := p.MidiCCs[symbol]; ok && cc.IsMapped() {
			stub.HasMidi = true
			stub.MidiChannel = cc.Channel
			stub.MidiController = cc.Controller
			stub.MidiMinimum = formatFloat(cc.Minimum)
			stub.MidiMaximum = formatFloat(cc.Maximum)
		}
		b.PortStubs = append(b.PortStubs, stub)
	}
	for symbol := range p.Outputs {
		portPath := b.Path + "/" + symbol
		b.Ports = append(b.Ports, portPath)
		b.PortStubs = append(b.PortStubs, PortStub{Path: portPath, Class: "lv2:ControlPort"})
	}
	b.Ports = append(b.Ports, b.Path+"/:bypass")
	return b
}

func stripGraphPrefix(path string) string {
	return strings.TrimPrefix(path, "/graph/")
}

func arcID(c model.Connection) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(c.Source + "__" + c.Target)
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
