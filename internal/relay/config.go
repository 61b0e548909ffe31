package relay

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/autopeer-io/flightrelay/internal/pkg/metrics"
	"github.com/autopeer-io/flightrelay/internal/relay/dispatcher"
	"github.com/autopeer-io/flightrelay/internal/relay/mission"
	"github.com/autopeer-io/flightrelay/internal/relay/notifier"
	"github.com/autopeer-io/flightrelay/internal/relay/operation"
	"github.com/autopeer-io/flightrelay/internal/relay/server"
	httpserver "github.com/autopeer-io/flightrelay/internal/relay/server/http"
	"github.com/autopeer-io/flightrelay/internal/relay/server/tcp"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle/mavlink"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle/sim"
	"github.com/autopeer-io/flightrelay/internal/relay/wait"
	"github.com/autopeer-io/flightrelay/pkg/log"
	"github.com/autopeer-io/flightrelay/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/flightrelay/pkg/mqtt/topic"
	"github.com/autopeer-io/flightrelay/pkg/options"
)

type Config struct {
	RelayOptions   *options.RelayOptions
	TimingOptions  *options.TimingOptions
	VehicleOptions *options.VehicleOptions
	HttpOptions    *options.HttpOptions
	MqttOptions    *options.MqttOptions
}

// NewRelayServer connects the vehicle and assembles every component.
// It blocks until the vehicle link is up or ctx is done.
func (cfg *Config) NewRelayServer(ctx context.Context) (*RelayServer, error) {
	v, err := cfg.ConnectVehicle(ctx)
	if err != nil {
		return nil, err
	}

	n, notifierSrv, err := cfg.initNotifier()
	if err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("failed to init notifier: %w", err)
	}

	d := cfg.NewDispatcher(v, n)

	servers := []server.Server{
		tcp.NewServer(cfg.RelayOptions, d, v),
		vehicle.NewWatcher(v, nil, time.Second,
			func(_ context.Context, up bool) { metrics.SetLinkUp(up) },
			func(ctx context.Context, up bool) {
				n.NotifyLink(ctx, notifier.LinkStatus{Up: up, Timestamp: time.Now()})
			},
		),
	}
	if cfg.HttpOptions != nil && cfg.HttpOptions.Enabled {
		servers = append(servers, httpserver.NewServer(cfg.HttpOptions, v.Healthy))
	}
	if notifierSrv != nil {
		servers = append(servers, notifierSrv)
	}

	return &RelayServer{
		vehicle:       v,
		dispatcher:    d,
		serverManager: server.NewManager(servers...),
	}, nil
}

// NewDispatcher builds the executor and dispatcher for v.
func (cfg *Config) NewDispatcher(v vehicle.Vehicle, n notifier.Notifier) *dispatcher.Dispatcher {
	exec := operation.NewExecutor(operation.Config{
		Vehicle:         v,
		Timing:          cfg.timing(),
		TakeoffAltitude: cfg.RelayOptions.TakeoffAltitude,
		Observer:        metrics.PhaseObserver{},
	})

	return dispatcher.New(exec,
		dispatcher.WithParser(mission.NewParser(cfg.RelayOptions.MaxMissionItems)),
		dispatcher.WithNotifier(n),
	)
}

func (cfg *Config) timing() operation.Timing {
	policy := func(p options.PollOptions) wait.Policy {
		return wait.Policy{Interval: p.Interval, MaxAttempts: p.MaxAttempts}
	}
	t := cfg.TimingOptions
	return operation.Timing{
		Mode:     policy(t.Mode),
		Arm:      policy(t.Arm),
		Disarm:   policy(t.Disarm),
		Altitude: policy(t.Altitude),
	}
}

// ConnectVehicle opens the configured vehicle link. The MAVLink driver keeps
// retrying every ConnectRetry until it succeeds or ctx is done.
func (cfg *Config) ConnectVehicle(ctx context.Context) (vehicle.Vehicle, error) {
	o := cfg.VehicleOptions

	switch o.Driver {
	case options.VehicleDriverSim:
		log.Info("Using simulated vehicle")
		return sim.New(sim.Options{ModeLatency: o.SimModeLatency, ClimbRate: o.SimClimbRate}), nil
	case options.VehicleDriverMavlink:
	default:
		return nil, fmt.Errorf("unknown vehicle driver %q", o.Driver)
	}

	mo := mavlink.Options{
		Endpoint:         o.Endpoint,
		SystemID:         o.SystemID,
		HeartbeatTimeout: o.HeartbeatTimeout,
		ConnectTimeout:   o.ConnectTimeout,
		MissionTimeout:   o.MissionTimeout,
	}

	for {
		log.Info("Connecting to vehicle", "endpoint", o.Endpoint)
		v, err := mavlink.Connect(ctx, mo)
		if err == nil {
			log.Info("Connected to vehicle", "endpoint", o.Endpoint)
			return v, nil
		}
		if ctx.Err() != nil || o.ConnectRetry == 0 {
			return nil, fmt.Errorf("failed to connect vehicle: %w", err)
		}

		log.Error(err, "Connection failed, retrying", "retryIn", o.ConnectRetry)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.ConnectRetry):
		}
	}
}

func (cfg *Config) initNotifier() (notifier.Notifier, server.Server, error) {
	if cfg.MqttOptions == nil || !cfg.MqttOptions.Enabled {
		return notifier.Nop{}, nil, nil
	}

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		hostname, _ := os.Hostname()
		mqttConfig.ClientID = fmt.Sprintf("flightrelay-%s-%s", cfg.MqttOptions.VehicleID, hostname)
	}

	vid := cfg.MqttOptions.VehicleID
	topics := mqtttopic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)
	mqttConfig.Will = notifier.LastWill(vid, topics)

	var n *notifier.MQTT
	mqttConfig.OnConnectionUp = func() { n.Resync(context.Background()) }

	client, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	n = notifier.NewMQTT(vid, client, topics, cfg.MqttOptions.PublishTimeout)
	return n, n, nil
}
