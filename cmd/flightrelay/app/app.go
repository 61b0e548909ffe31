package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/flightrelay/cmd/flightrelay/app/options"
	"github.com/autopeer-io/flightrelay/pkg/app"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

const (
	commandName = "flightrelay"
	commandDesc = `The flight relay accepts newline-terminated commands over TCP and
drives a single MAVLink vehicle through mode changes, arming, takeoff and
mission upload. Commands from all clients are executed one at a time.`
)

func NewApp() *app.App {
	opts := options.NewRelayServerOptions()
	application := app.NewApp(
		commandName,
		"Launch the flight command relay",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithLogOptions(func() *log.Options { return opts.Log }),
		app.WithSubCommands(newCommandsCmd()),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.RelayServerOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewRelayServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create relay server: %w", err)
		}

		return server.Run(ctx)
	}
}
