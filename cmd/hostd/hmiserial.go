package main

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/modpedal/hostd/internal/hmi"
)

// runHMISerial reads command lines off rw and dispatches each to d, writing
// back "resp 1 <payload>" or "resp 0" the way the write-channel engine
// protocol acknowledges requests. rw is discardReadWriter when no hardware
// control surface is attached, in which case this loop exits immediately
// on the first read (io.EOF) and the dispatcher still runs, reachable
// purely through the websocket editor.
func runHMISerial(d *hmi.Dispatcher, rw io.ReadWriter, log logrus.FieldLogger) {
	sc := bufio.NewScanner(rw)
	for sc.Scan() {
		ok, payload := d.Dispatch(sc.Text())
		switch {
		case !ok:
			fmt.Fprint(rw, "resp 0\n")
		case payload == "":
			fmt.Fprint(rw, "resp 1\n")
		default:
			fmt.Fprintf(rw, "resp 1 %s\n", payload)
		}
	}
	if err := sc.Err(); err != nil {
		log.WithError(err).Warn("HMI serial device read failed")
	}
}
