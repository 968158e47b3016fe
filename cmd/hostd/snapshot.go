package main

import (
	"github.com/modpedal/hostd/internal/model"
	"github.com/modpedal/hostd/internal/session"
	"github.com/modpedal/hostd/internal/wsbroadcast"
)

// snapshotter implements wsbroadcast.Snapshotter over live SessionState and
// the process's /proc-backed stats source.
type snapshotter struct {
	state *session.State
	stats *wsbroadcast.ProcStatsSource
}

func (s *snapshotter) SnapshotStats() (cpuLoad float64, xruns int, freeMemKB int64) {
	cpu, x := s.stats.CPUAndXruns()
	return cpu, x, s.stats.FreeMemoryKB()
}

func (s *snapshotter) SnapshotHardwarePorts() map[string]string {
	s.state.Lock()
	defer s.state.Unlock()
	out := make(map[string]string, len(s.state.MidiPorts))
	for alias, rec := range s.state.MidiPorts {
		out[alias] = rec.StoredSymbol
	}
	return out
}

func (s *snapshotter) SnapshotPlugins() []*model.Plugin {
	s.state.Lock()
	defer s.state.Unlock()
	out := make([]*model.Plugin, 0, len(s.state.Plugins))
	for _, p := range s.state.Plugins {
		out = append(out, p)
	}
	return out
}

func (s *snapshotter) SnapshotConnections() []model.Connection {
	s.state.Lock()
	defer s.state.Unlock()
	return append([]model.Connection(nil), s.state.Connections...)
}

func (s *snapshotter) SnapshotTrueBypass() bool {
	s.state.Lock()
	defer s.state.Unlock()
	return s.state.TrueBypass
}
