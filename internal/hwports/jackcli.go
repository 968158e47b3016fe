package hwports

import (
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/logx"
)

// CLIJackClient implements JackClient by shelling out to the jack_connect
// and jack_disconnect command-line tools, the same way the rest of the
// pack drives external daemons it does not bind directly (ssh, nohup).
// Binding libjack directly is out of this module's scope.
type CLIJackClient struct {
	errs logx.ErrorHandler
}

// NewCLIJackClient builds a CLIJackClient reporting command failures through
// a logrus-backed ErrorHandler built from log.
func NewCLIJackClient(log logrus.FieldLogger) *CLIJackClient {
	return &CLIJackClient{errs: logx.NewLogrusHandler(log)}
}

// ConnectPorts runs jack_connect a b, reporting success by exit code.
func (c *CLIJackClient) ConnectPorts(a, b string) bool {
	if err := exec.Command("jack_connect", a, b).Run(); err != nil {
		c.errs.HandleError("jack_connect", fmt.Errorf("%s -> %s: %w", a, b, err))
		return false
	}
	return true
}

// DisconnectPorts runs jack_disconnect a b, reporting success by exit code.
func (c *CLIJackClient) DisconnectPorts(a, b string) bool {
	if err := exec.Command("jack_disconnect", a, b).Run(); err != nil {
		c.errs.HandleError("jack_disconnect", fmt.Errorf("%s -> %s: %w", a, b, err))
		return false
	}
	return true
}
