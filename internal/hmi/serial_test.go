package hmi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/modpedal/hostd/internal/model"
)

func TestSerialClientControlAdd(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)

	actuator := model.Actuator{HWType: 0, HWID: 0, Kind: 1, Index: 2}
	addr := &model.Addressing{
		InstanceID: 5,
		Label:      `Vol"ume`,
		Type:       model.FlagLinear,
		Maximum:    1,
		Minimum:    0,
		Unit:       "",
		Steps:      33,
		Options: []model.ScalePoint{
			{Value: 0, Label: "off"},
		},
	}

	c.ControlAdd(actuator, addr, 0.5, 2, 0)

	want := "control_add 0 0 1 2 5 \"Volume\" 0 0.5 1 0  33 2 1 1 0 \"off\"\n"
	if buf.String() != want {
		t.Fatalf("ControlAdd: got %q want %q", buf.String(), want)
	}
}

func TestSerialClientControlRemove(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)

	c.ControlRemove(model.Actuator{HWType: 0, HWID: 1, Kind: 1, Index: 3}, 7, "/graph/amp:gain")

	want := "control_rm 0 1 1 3 7 /graph/amp:gain\n"
	if buf.String() != want {
		t.Fatalf("ControlRemove: got %q want %q", buf.String(), want)
	}
}

func TestSerialClientControlClean(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)
	c.ControlClean(model.Actuator{HWType: 0, HWID: 2, Kind: 0, Index: 0})

	want := "control_clean 0 2 0 0\n"
	if buf.String() != want {
		t.Fatalf("ControlClean: got %q want %q", buf.String(), want)
	}
}

func TestSerialClientInitialStateStripsQuotes(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)
	c.InitialState(`My "Board"`)

	want := "initial_state \"My Board\"\n"
	if buf.String() != want {
		t.Fatalf("InitialState: got %q want %q", buf.String(), want)
	}
}

func TestSerialClientBankConfig(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)
	c.BankConfig(3, true, 0)

	want := "bank_config 3 1 0\n"
	if buf.String() != want {
		t.Fatalf("BankConfig: got %q want %q", buf.String(), want)
	}
}

func TestSerialClientClearAndTuner(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)
	c.Clear()
	c.Tuner(true)
	c.Tuner(false)

	want := "clear\ntuner 1\ntuner 0\n"
	if buf.String() != want {
		t.Fatalf("Clear/Tuner: got %q want %q", buf.String(), want)
	}
}

func TestSerialClientConcurrentWritesDontInterleave(t *testing.T) {
	var buf bytes.Buffer
	c := NewSerialClient(&buf)
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			c.Tuner(true)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if line != "tuner 1" {
			t.Fatalf("interleaved write: %q", line)
		}
	}
}
