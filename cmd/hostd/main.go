// Command hostd runs the session coordinator that sits between the audio
// engine, the hardware control surface and the browser-based editor: it
// loads the YAML topology configuration, wires every internal package
// together, and serves the editor websocket until killed.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/modpedal/hostd/internal/addressing"
	"github.com/modpedal/hostd/internal/config"
	"github.com/modpedal/hostd/internal/enginelink"
	"github.com/modpedal/hostd/internal/hmi"
	"github.com/modpedal/hostd/internal/hwports"
	"github.com/modpedal/hostd/internal/logx"
	"github.com/modpedal/hostd/internal/mapper"
	"github.com/modpedal/hostd/internal/midiio"
	"github.com/modpedal/hostd/internal/session"
	"github.com/modpedal/hostd/internal/tuner"
	"github.com/modpedal/hostd/internal/wsbroadcast"
)

var version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "hostd",
	Short:         "Session coordinator between the audio engine, the HMI and the editor",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "hostd.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(newServeCmd(), newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hostd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session coordinator until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
}

func runServe(path string) error {
	log := logx.NewDefault()

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("hostd: loading config: %w", err)
	}
	actuators, err := cfg.Actuators()
	if err != nil {
		return fmt.Errorf("hostd: parsing actuators: %w", err)
	}

	log.WithField("ports", midiio.ListInputPorts()).Info("available MIDI input ports")

	state := session.New(mapper.New(), nil, nil, log)

	statsSource := wsbroadcast.NewProcStatsSource()
	hub := wsbroadcast.New(&snapshotter{state: state, stats: statsSource}, log)
	state.WS = hub

	link := enginelink.New(state, log)
	state.Engine = link

	jack := hwports.NewCLIJackClient(log)
	hwports.New(state, jack, hub, "hostd:midi_in", log)

	var serialDevice io.ReadWriter = discardReadWriter{}
	if cfg.HMI.SerialDevice != "" {
		f, err := os.OpenFile(cfg.HMI.SerialDevice, os.O_RDWR, 0)
		if err != nil {
			log.WithError(err).WithField("device", cfg.HMI.SerialDevice).Warn("failed to open HMI serial device, running without a control surface")
		} else {
			defer f.Close()
			serialDevice = f
		}
	}

	serial := hmi.NewSerialClient(serialDevice)
	addr := addressing.New(state, link, serial, log)
	addr.SetInventory(actuators)

	tunerCtl := tuner.New(state, link, jack, log)

	loader := &pedalboardLoader{cfg: cfg, state: state, link: link, addressing: addr, metadata: stubMetadataReader{}}
	bundles := &bundleWriter{state: state, addressing: addr}

	dispatcher := hmi.New(state, link, addr, loader, bundles, tunerCtl, actuators, log)
	dispatcher.SetBanks(cfg.Banks())

	poller := wsbroadcast.NewStatsPoller(statsSource, hub)
	defer poller.Stop()

	go runEngineLink(link, state, poller, cfg.Engine, log)
	go runHMISerial(dispatcher, serialDevice, log)

	log.WithField("addr", cfg.Websocket.ListenAddr).Info("serving editor websocket")
	return http.ListenAndServe(cfg.Websocket.ListenAddr, hub)
}

// discardReadWriter satisfies io.ReadWriter for a host with no HMI serial
// device attached: writes vanish, reads report io.EOF immediately.
type discardReadWriter struct{}

func (discardReadWriter) Read([]byte) (int, error)    { return 0, io.EOF }
func (discardReadWriter) Write(p []byte) (int, error) { return len(p), nil }
