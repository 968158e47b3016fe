package wsbroadcast

import (
	"os"
	"testing"
)

func TestProcStatsSourceCPUAndXruns(t *testing.T) {
	if _, err := os.Stat("/proc/loadavg"); err != nil {
		t.Skip("no /proc/loadavg on this system")
	}
	p := NewProcStatsSource()
	load, xruns := p.CPUAndXruns()
	if load < 0 {
		t.Fatalf("expected non-negative load, got %f", load)
	}
	if xruns != 0 {
		t.Fatalf("expected zero xruns before IncrementXruns, got %d", xruns)
	}
	p.IncrementXruns()
	p.IncrementXruns()
	_, xruns = p.CPUAndXruns()
	if xruns != 2 {
		t.Fatalf("expected xruns to accumulate, got %d", xruns)
	}
}

func TestProcStatsSourceMemory(t *testing.T) {
	if _, err := os.Stat("/proc/meminfo"); err != nil {
		t.Skip("no /proc/meminfo on this system")
	}
	p := NewProcStatsSource()
	if p.FreeMemoryKB() <= 0 {
		t.Fatal("expected positive free memory reading")
	}
	pct := p.MemoryLoadPercent()
	if pct < 0 || pct > 100 {
		t.Fatalf("expected memory load percent in [0,100], got %f", pct)
	}
}
