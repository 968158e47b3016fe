package hmi

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/modpedal/hostd/internal/model"
)

// SerialClient formats the outbound half of the HMI serial protocol
// (control_add, control_rm, control_clean, initial_state, bank_config,
// clear and tuner) and writes one newline-terminated command per call. It implements
// addressing.HMIClient. The physical framing of those lines onto a UART
// (baud rate, escaping, checksums) is an external collaborator; this type
// only owns the command grammar.
type SerialClient struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSerialClient wraps w, typically an opened serial device file.
func NewSerialClient(w io.Writer) *SerialClient {
	return &SerialClient{w: w}
}

func (c *SerialClient) writeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, line+"\n")
}

func actuatorTupleString(a model.Actuator) string {
	return fmt.Sprintf("%d %d %d %d", int(a.HWType), a.HWID, int(a.Kind), a.Index)
}

// ControlAdd implements addressing.HMIClient: push the full descriptor for
// the ring's current addressing, including its ring position and any scale
// points.
func (c *SerialClient) ControlAdd(actuator model.Actuator, addr *model.Addressing, value float32, numControllers, index int) {
	var b strings.Builder
	fmt.Fprintf(&b, "control_add %s %d \"%s\" %d %s %s %s %s %d %d %d",
		actuatorTupleString(actuator),
		addr.InstanceID,
		strings.ReplaceAll(addr.Label, `"`, ""),
		addr.Type,
		trimFloat(value),
		trimFloat(addr.Maximum),
		trimFloat(addr.Minimum),
		addr.Unit,
		addr.Steps,
		numControllers,
		index+1,
	)
	fmt.Fprintf(&b, " %d", len(addr.Options))
	for _, sp := range addr.Options {
		fmt.Fprintf(&b, " %s \"%s\"", trimFloat(sp.Value), strings.ReplaceAll(sp.Label, `"`, ""))
	}
	c.writeLine(b.String())
}

// ControlRemove implements addressing.HMIClient.
func (c *SerialClient) ControlRemove(actuator model.Actuator, instanceID int, port string) {
	c.writeLine(fmt.Sprintf("control_rm %s %d %s", actuatorTupleString(actuator), instanceID, port))
}

// ControlClean implements addressing.HMIClient: the ring emptied out, clear
// the actuator's display.
func (c *SerialClient) ControlClean(actuator model.Actuator) {
	c.writeLine(fmt.Sprintf("control_clean %s", actuatorTupleString(actuator)))
}

// InitialState announces the freshly loaded pedalboard's name to the
// control surface once a load completes.
func (c *SerialClient) InitialState(pedalboardName string) {
	c.writeLine(fmt.Sprintf("initial_state \"%s\"", strings.ReplaceAll(pedalboardName, `"`, "")))
}

// BankConfig pushes one bank's navigation policy (footswitch navigation
// versus MIDI program-change channel) to the control surface.
func (c *SerialClient) BankConfig(bankID int, navigateFootswitches bool, navigateChannel int) {
	c.writeLine(fmt.Sprintf("bank_config %d %d %d", bankID, boolToInt(navigateFootswitches), navigateChannel))
}

// Clear tells the control surface to blank every actuator. Neither
// pedalboard_reset nor a pedalboard load calls it.
func (c *SerialClient) Clear() {
	c.writeLine("clear")
}

// Tuner reflects the current tuner on/off state back to the control
// surface's own indicator.
func (c *SerialClient) Tuner(on bool) {
	c.writeLine(fmt.Sprintf("tuner %d", boolToInt(on)))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func trimFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
