package main

import "github.com/modpedal/hostd/internal/model"

// stubMetadataReader implements pedalboard.MetadataReader. Real LV2 plugin
// introspection (parsing a plugin bundle's ttl to enumerate ports and
// designations) is an external collaborator this module does not implement;
// every URI resolves to an empty port list so a load can still create a
// plugin record and reach the engine, ports just start out unpopulated until
// the engine's own add response (out of scope here) would normally refresh
// them.
type stubMetadataReader struct{}

func (stubMetadataReader) Read(uri string) (model.PluginMetadata, error) {
	return stubMetadata{uri: uri}, nil
}

type stubMetadata struct{ uri string }

func (m stubMetadata) URI() string                      { return m.uri }
func (m stubMetadata) Ports() []model.PortInfo          { return nil }
func (m stubMetadata) Designations() model.Designations { return model.Designations{} }
func (m stubMetadata) VersionQuad() [4]int              { return [4]int{} }
