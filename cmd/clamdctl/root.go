package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DevHatRo/clamd-go"
	"github.com/DevHatRo/clamd-go/internal/config"
	"github.com/DevHatRo/clamd-go/internal/logging"
)

// Exit statuses follow clamdscan: 0 clean, 1 virus found, 2 error.
const (
	exitClean    = 0
	exitInfected = 1
	exitFailure  = 2
)

// exitError carries a process exit status out of a command without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type app struct {
	cfgFile string
	verbose bool
	output  string
	primary string
	cli     bool
	tcp     bool
	socket  bool

	settings *config.Settings
	log      *logrus.Logger
	client   *clamd.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "clamdctl",
		Short:         "clamdctl talks to a ClamAV daemon",
		Long:          `A client for clamd over TCP, a Unix socket or the clamdscan binary.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "Config file (default ./clamdctl.yaml or /etc/clamdctl/clamdctl.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&a.output, "output", "o", "text", "Output format. Must be one of text, json, yaml")
	flags.StringVarP(&a.primary, "transport", "t", "", "Transport to use. Must be one of cli, tcp, socket")
	flags.BoolVar(&a.cli, "cli", false, "Mark the clamdscan binary as available")
	flags.BoolVar(&a.tcp, "tcp", false, "Mark the TCP listener as available")
	flags.BoolVar(&a.socket, "socket", false, "Mark the Unix socket as available")

	root.AddCommand(
		newScanCmd(a),
		newPingCmd(a),
		newVersionCmd(a),
		newSelfTestCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads settings, applies flag overrides and builds the logger and client.
func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format '%s'", a.output)
	}

	settings, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		settings.Log.Level = "debug"
	}
	if a.primary != "" {
		settings.Primary = a.primary
	}
	settings.Found.CLI = settings.Found.CLI || a.cli
	settings.Found.TCP = settings.Found.TCP || a.tcp
	settings.Found.Socket = settings.Found.Socket || a.socket

	log, err := logging.New(logging.Options{
		Level:      settings.Log.Level,
		Format:     settings.Log.Format,
		File:       settings.Log.File,
		MaxSize:    settings.Log.MaxSize,
		MaxBackups: settings.Log.MaxBackups,
		MaxAge:     settings.Log.MaxAge,
		Compress:   settings.Log.Compress,
		Console:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	cfg, avail, err := settings.Client()
	if err != nil {
		return err
	}
	client, err := clamd.NewClient(cfg, avail, clamd.WithLogger(log))
	if err != nil {
		return err
	}

	a.settings, a.log, a.client = settings, log, client
	log.WithFields(logrus.Fields{"primary": cfg.Primary, "available": fmt.Sprintf("%+v", avail)}).Debug("client ready")
	return nil
}

func (a *app) printer(cmd *cobra.Command) *printer {
	return &printer{w: cmd.OutOrStdout(), format: a.output}
}
