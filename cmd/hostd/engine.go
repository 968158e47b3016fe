package main

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/config"
	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/session"
	"github.com/modpedal/hostd/internal/wsbroadcast"
)

// runEngineLink dials the engine's write and read sockets and keeps
// reconnecting as long as the process runs, replaying the session's current
// belief about the graph after every reconnect that follows a crash (P7).
// The first connect has nothing to replay -- BuildReplaySpec on a fresh
// session returns an empty spec, which Replay handles as a no-op.
// The stats poller tracks the link's lifetime: it only makes sense to poll
// and broadcast CPU/xrun/memory figures while an engine is actually
// attached, so it starts on every successful connect and stops the moment
// the link crashes.
func runEngineLink(link *enginelink.Link, state *session.State, poller *wsbroadcast.StatsPoller, cfg config.EngineConfig, log logrus.FieldLogger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		writeConn, err := net.Dial("tcp", cfg.WriteSocket)
		if err != nil {
			log.WithError(err).WithField("addr", cfg.WriteSocket).Warn("engine write socket dial failed")
			time.Sleep(backoff)
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		readConn, err := net.Dial("tcp", cfg.ReadSocket)
		if err != nil {
			writeConn.Close()
			log.WithError(err).WithField("addr", cfg.ReadSocket).Warn("engine read socket dial failed")
			time.Sleep(backoff)
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = time.Second
		log.Info("engine link connected")
		link.Connect(writeConn, readConn)
		link.Replay(toReplaySpec(state.BuildReplaySpec()))
		poller.Start()

		for !link.Crashed() {
			time.Sleep(200 * time.Millisecond)
		}
		poller.Stop()
		log.Warn("engine link crashed, reconnecting")
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// toReplaySpec converts session's transport-agnostic replay snapshot into
// enginelink's wire-shaped ReplaySpec; session deliberately does not import
// enginelink's replay types, so the composition root does the conversion.
func toReplaySpec(in session.ReplaySpecInput) enginelink.ReplaySpec {
	out := enginelink.ReplaySpec{Connections: in.Connections}
	for _, p := range in.Plugins {
		out.Plugins = append(out.Plugins, enginelink.ReplayPlugin{
			InstanceID:       p.InstanceID,
			URI:              p.URI,
			Bypassed:         p.Bypassed,
			MidiMaps:         p.MidiMaps,
			BypassCC:         p.BypassCC,
			Preset:           p.Preset,
			Params:           p.Params,
			MonitoredOutputs: p.MonitoredOutputs,
		})
	}
	return out
}
