package wsbroadcast

import (
	"sync"
	"time"
)

// StatsSource reads the two periodic measurements the process polls on a
// timer and posts to connected editors: CPU load plus xrun count, and
// memory load. Grounded on original_source/mod/host.py's statstimer_callback
// (get_jack_data -> cpuLoad/xruns) and memtimer_callback (percent of total
// memory in use, derived from /proc/meminfo's MemFree/Buffers/Cached).
type StatsSource interface {
	CPUAndXruns() (cpuLoad float64, xruns int)
	MemoryLoadPercent() float64
}

// StatsPoller drives the two timers and pushes their readings onto a Hub
// as "stats" and "mem_load" events.
type StatsPoller struct {
	source StatsSource
	hub    *Hub

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewStatsPoller builds a poller; call Start to begin the two timers.
func NewStatsPoller(source StatsSource, hub *Hub) *StatsPoller {
	return &StatsPoller{source: source, hub: hub}
}

// Start launches the 1s CPU/xruns timer and the 5s memory timer. Calling
// Start on an already-running poller is a no-op.
func (p *StatsPoller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	go p.runCPUTimer(stop)
	go p.runMemTimer(stop)
}

// Stop halts both timers.
func (p *StatsPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
}

func (p *StatsPoller) runCPUTimer(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cpu, xruns := p.source.CPUAndXruns()
			p.hub.broadcast(Event{Event: "stats", Data: map[string]interface{}{
				"cpu_load": cpu, "xruns": xruns,
			}})
		case <-stop:
			return
		}
	}
}

func (p *StatsPoller) runMemTimer(stop chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.hub.broadcast(Event{Event: "mem_load", Data: p.source.MemoryLoadPercent()})
		case <-stop:
			return
		}
	}
}
