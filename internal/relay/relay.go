// Package relay wires the command relay together: vehicle link, dispatcher,
// TCP command server, probes and the optional MQTT notifier.
package relay

import (
	"context"

	"github.com/autopeer-io/flightrelay/internal/relay/dispatcher"
	"github.com/autopeer-io/flightrelay/internal/relay/server"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

type RelayServer struct {
	vehicle       vehicle.Vehicle
	dispatcher    *dispatcher.Dispatcher
	serverManager *server.Manager
}

// Dispatcher exposes the command dispatcher.
func (s *RelayServer) Dispatcher() *dispatcher.Dispatcher { return s.dispatcher }

// Run serves until ctx is done or a component fails, then releases the
// vehicle link.
func (s *RelayServer) Run(ctx context.Context) error {
	log.Info("Starting flightrelay")

	defer func() {
		if err := s.vehicle.Close(); err != nil {
			log.Error(err, "Failed to close vehicle link")
		}
		log.Info("flightrelay stopped")
	}()

	return s.serverManager.Start(ctx)
}
