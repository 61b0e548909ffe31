// Package mavlink implements vehicle.Vehicle for ArduCopter autopilots over
// MAVLink 2 using gomavlib.
package mavlink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/vehicle"
	"github.com/autopeer-io/flightrelay/pkg/log"
)

const ackTimeout = 2 * time.Second

// Options configures the MAVLink link.
type Options struct {
	Endpoint         string
	SystemID         int
	HeartbeatTimeout time.Duration
	ConnectTimeout   time.Duration
	MissionTimeout   time.Duration
}

type writer interface {
	WriteMessageAll(m message.Message) error
}

// Vehicle tracks the autopilot state from incoming messages and issues
// requests as COMMAND_LONG and mission protocol messages.
type Vehicle struct {
	opts Options
	out  writer
	node *gomavlib.Node

	mu            sync.RWMutex
	linked        bool
	targetSystem  uint8
	targetComp    uint8
	lastHeartbeat time.Time
	customMode    uint32
	armed         bool
	status        common.MAV_STATE
	relAltitude   float64
	ekfFlags      ardupilotmega.EKF_STATUS_FLAGS
	staged        []model.MissionItem

	// opMu serializes request/acknowledgement exchanges.
	opMu      sync.Mutex
	acks      chan *common.MessageCommandAck
	missionCh chan message.Message

	linkUp    chan struct{}
	linkOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

var _ vehicle.Vehicle = (*Vehicle)(nil)

// Connect opens the endpoint and blocks until the first autopilot heartbeat
// arrives or ConnectTimeout elapses.
func Connect(ctx context.Context, opts Options) (*Vehicle, error) {
	endpoint, err := ParseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     ardupilotmega.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: byte(opts.SystemID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mavlink endpoint %s: %w", opts.Endpoint, err)
	}

	v := newVehicle(opts, node)
	v.node = node
	go v.run()

	log.Info("[Vehicle-MAVLink] Waiting for autopilot heartbeat", "endpoint", opts.Endpoint, "timeout", opts.ConnectTimeout)

	timer := time.NewTimer(opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-v.linkUp:
	case <-timer.C:
		_ = v.Close()
		return nil, fmt.Errorf("no heartbeat from %s within %s: %w", opts.Endpoint, opts.ConnectTimeout, vehicle.ErrLinkLost)
	case <-ctx.Done():
		_ = v.Close()
		return nil, ctx.Err()
	}

	v.mu.RLock()
	log.Info("[Vehicle-MAVLink] Autopilot linked", "system", v.targetSystem, "component", v.targetComp, "mode", modeName(v.customMode))
	v.mu.RUnlock()
	return v, nil
}

func newVehicle(opts Options, out writer) *Vehicle {
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 5 * time.Second
	}
	if opts.MissionTimeout <= 0 {
		opts.MissionTimeout = 15 * time.Second
	}

	return &Vehicle{
		opts:      opts,
		out:       out,
		acks:      make(chan *common.MessageCommandAck, 8),
		missionCh: make(chan message.Message, 16),
		linkUp:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (v *Vehicle) run() {
	for evt := range v.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			v.handle(e.SystemID(), e.ComponentID(), e.Message())
		case *gomavlib.EventChannelOpen:
			log.Debug("[Vehicle-MAVLink] Channel open", "channel", e.Channel)
		case *gomavlib.EventChannelClose:
			log.Warn("[Vehicle-MAVLink] Channel closed", "channel", e.Channel)
		}
	}
}

// handle folds one incoming message into the tracked state.
func (v *Vehicle) handle(sysID, compID uint8, msg message.Message) {
	if hb, ok := msg.(*common.MessageHeartbeat); ok {
		v.handleHeartbeat(sysID, compID, hb)
		return
	}

	v.mu.Lock()
	fromTarget := v.linked && sysID == v.targetSystem
	if fromTarget {
		switch m := msg.(type) {
		case *common.MessageGlobalPositionInt:
			v.relAltitude = float64(m.RelativeAlt) / 1000
		case *ardupilotmega.MessageEkfStatusReport:
			v.ekfFlags = m.Flags
		}
	}
	v.mu.Unlock()

	if !fromTarget {
		return
	}

	switch m := msg.(type) {
	case *common.MessageCommandAck:
		select {
		case v.acks <- m:
		default:
		}
	case *common.MessageMissionRequestInt, *common.MessageMissionRequest, *common.MessageMissionAck:
		select {
		case v.missionCh <- m:
		default:
			log.Warn("[Vehicle-MAVLink] Dropping mission message, no reader")
		}
	}
}

func (v *Vehicle) handleHeartbeat(sysID, compID uint8, hb *common.MessageHeartbeat) {
	if hb.Type == common.MAV_TYPE_GCS || hb.Autopilot == common.MAV_AUTOPILOT_INVALID {
		return
	}

	v.mu.Lock()
	if !v.linked {
		v.linked = true
		v.targetSystem = sysID
		v.targetComp = compID
	}
	if sysID != v.targetSystem {
		v.mu.Unlock()
		return
	}
	v.lastHeartbeat = time.Now()
	v.customMode = hb.CustomMode
	v.armed = hb.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
	v.status = hb.SystemStatus
	v.mu.Unlock()

	v.linkOnce.Do(func() { close(v.linkUp) })
}

// Healthy reports whether an autopilot heartbeat arrived within HeartbeatTimeout.
func (v *Vehicle) Healthy() bool {
	select {
	case <-v.done:
		return false
	default:
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.linked && time.Since(v.lastHeartbeat) < v.opts.HeartbeatTimeout
}

func (v *Vehicle) Close() error {
	v.closeOnce.Do(func() {
		close(v.done)
		if v.node != nil {
			v.node.Close()
		}
	})
	return nil
}

func (v *Vehicle) Mode(ctx context.Context) (string, error) {
	if !v.Healthy() {
		return "", vehicle.ErrLinkLost
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return modeName(v.customMode), nil
}

func (v *Vehicle) Armed(ctx context.Context) (bool, error) {
	if !v.Healthy() {
		return false, vehicle.ErrLinkLost
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.armed, nil
}

func (v *Vehicle) Altitude(ctx context.Context) (float64, error) {
	if !v.Healthy() {
		return 0, vehicle.ErrLinkLost
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.relAltitude, nil
}

func (v *Vehicle) EKFOk(ctx context.Context) (bool, error) {
	if !v.Healthy() {
		return false, vehicle.ErrLinkLost
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ekfOkLocked(), nil
}

func (v *Vehicle) ekfOkLocked() bool {
	f := v.ekfFlags
	if f&ardupilotmega.EKF_CONST_POS_MODE != 0 {
		return false
	}
	need := ardupilotmega.EKF_ATTITUDE | ardupilotmega.EKF_VELOCITY_HORIZ
	if v.armed {
		need |= ardupilotmega.EKF_POS_HORIZ_ABS
	} else {
		need |= ardupilotmega.EKF_PRED_POS_HORIZ_ABS
	}
	return f&need == need
}

func (v *Vehicle) IsArmable(ctx context.Context) (bool, error) {
	if !v.Healthy() {
		return false, vehicle.ErrLinkLost
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	switch v.status {
	case common.MAV_STATE_UNINIT, common.MAV_STATE_BOOT, common.MAV_STATE_CALIBRATING:
		return false, nil
	}
	return v.ekfOkLocked(), nil
}

func (v *Vehicle) SystemStatus(ctx context.Context) (string, error) {
	if !v.Healthy() {
		return "", vehicle.ErrLinkLost
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return systemStatusName(v.status), nil
}

func (v *Vehicle) SetMode(ctx context.Context, mode string) error {
	num, ok := modeNumber(mode)
	if !ok {
		return fmt.Errorf("%w: unknown flight mode %q", vehicle.ErrRejected, mode)
	}
	return v.command(ctx, common.MAV_CMD_DO_SET_MODE,
		float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), float32(num))
}

func (v *Vehicle) SetArmed(ctx context.Context, armed bool) error {
	var p1 float32
	if armed {
		p1 = 1
	}
	return v.command(ctx, common.MAV_CMD_COMPONENT_ARM_DISARM, p1)
}

func (v *Vehicle) Takeoff(ctx context.Context, altitude float64) error {
	return v.command(ctx, common.MAV_CMD_NAV_TAKEOFF, 0, 0, 0, 0, 0, 0, float32(altitude))
}

// command sends a COMMAND_LONG and waits briefly for its acknowledgement.
// A missing ack is not an error: the caller confirms the effect by polling.
func (v *Vehicle) command(ctx context.Context, cmd common.MAV_CMD, params ...float32) error {
	if !v.Healthy() {
		return vehicle.ErrLinkLost
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	var p [7]float32
	copy(p[:], params)

	v.mu.RLock()
	msg := &common.MessageCommandLong{
		TargetSystem:    v.targetSystem,
		TargetComponent: v.targetComp,
		Command:         cmd,
		Param1:          p[0],
		Param2:          p[1],
		Param3:          p[2],
		Param4:          p[3],
		Param5:          p[4],
		Param6:          p[5],
		Param7:          p[6],
	}
	v.mu.RUnlock()

	drain(v.acks)
	if err := v.out.WriteMessageAll(msg); err != nil {
		return fmt.Errorf("send command %v: %w", cmd, err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-v.acks:
			if ack.Command != cmd {
				continue
			}
			switch ack.Result {
			case common.MAV_RESULT_ACCEPTED, common.MAV_RESULT_IN_PROGRESS:
				return nil
			default:
				return fmt.Errorf("%w: command %v result %v", vehicle.ErrRejected, cmd, ack.Result)
			}
		case <-timer.C:
			log.Debug("[Vehicle-MAVLink] No ack for command", "command", cmd)
			return nil
		case <-v.done:
			return vehicle.ErrLinkLost
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *Vehicle) ClearMission(ctx context.Context) error {
	if !v.Healthy() {
		return vehicle.ErrLinkLost
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.staged = nil
	msg := &common.MessageMissionClearAll{
		TargetSystem:    v.targetSystem,
		TargetComponent: v.targetComp,
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	}
	v.mu.Unlock()

	drain(v.missionCh)
	if err := v.out.WriteMessageAll(msg); err != nil {
		return fmt.Errorf("send mission clear: %w", err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()

	for {
		select {
		case m := <-v.missionCh:
			ack, ok := m.(*common.MessageMissionAck)
			if !ok {
				continue
			}
			if ack.Type != common.MAV_MISSION_ACCEPTED {
				return fmt.Errorf("%w: mission clear result %v", vehicle.ErrRejected, ack.Type)
			}
			return nil
		case <-timer.C:
			log.Debug("[Vehicle-MAVLink] No ack for mission clear")
			return nil
		case <-v.done:
			return vehicle.ErrLinkLost
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (v *Vehicle) AddMissionItem(ctx context.Context, item model.MissionItem) error {
	// MISSION_ITEM_INT carries degrees * 1e7 in an int32.
	if math.Abs(item.Latitude) > 90 || math.Abs(item.Longitude) > 180 {
		return fmt.Errorf("%w: coordinate %v,%v out of range", vehicle.ErrRejected, item.Latitude, item.Longitude)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.staged = append(v.staged, item)
	return nil
}

// UploadMission runs the mission upload handshake. Sequence 0 is the home
// slot which ArduPilot overwrites, so staged items start at sequence 1.
func (v *Vehicle) UploadMission(ctx context.Context) error {
	if !v.Healthy() {
		return vehicle.ErrLinkLost
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.RLock()
	items := make([]model.MissionItem, 0, len(v.staged)+1)
	items = append(items, model.MissionItem{Kind: model.ItemWaypoint})
	items = append(items, v.staged...)
	sys, comp := v.targetSystem, v.targetComp
	v.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, v.opts.MissionTimeout)
	defer cancel()

	drain(v.missionCh)
	err := v.out.WriteMessageAll(&common.MessageMissionCount{
		TargetSystem:    sys,
		TargetComponent: comp,
		Count:           uint16(len(items)),
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	})
	if err != nil {
		return fmt.Errorf("send mission count: %w", err)
	}

	for {
		var seq uint16
		select {
		case m := <-v.missionCh:
			switch r := m.(type) {
			case *common.MessageMissionRequestInt:
				seq = r.Seq
			case *common.MessageMissionRequest:
				seq = r.Seq
			case *common.MessageMissionAck:
				if r.Type != common.MAV_MISSION_ACCEPTED {
					return fmt.Errorf("%w: mission upload result %v", vehicle.ErrRejected, r.Type)
				}
				log.Info("[Vehicle-MAVLink] Mission accepted", "items", len(items)-1)
				return nil
			default:
				continue
			}
		case <-v.done:
			return vehicle.ErrLinkLost
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("mission upload timed out after %s", v.opts.MissionTimeout)
			}
			return ctx.Err()
		}

		if int(seq) >= len(items) {
			return fmt.Errorf("%w: autopilot requested mission item %d of %d", vehicle.ErrRejected, seq, len(items))
		}
		if err := v.out.WriteMessageAll(missionItem(sys, comp, seq, items[seq])); err != nil {
			return fmt.Errorf("send mission item %d: %w", seq, err)
		}
	}
}

func missionItem(sys, comp uint8, seq uint16, item model.MissionItem) *common.MessageMissionItemInt {
	cmd := common.MAV_CMD_NAV_WAYPOINT
	switch item.Kind {
	case model.ItemTakeoff:
		cmd = common.MAV_CMD_NAV_TAKEOFF
	case model.ItemLand:
		cmd = common.MAV_CMD_NAV_LAND
	}

	return &common.MessageMissionItemInt{
		TargetSystem:    sys,
		TargetComponent: comp,
		Seq:             seq,
		Frame:           common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		Command:         cmd,
		Autocontinue:    1,
		X:               int32(math.Round(item.Latitude * 1e7)),
		Y:               int32(math.Round(item.Longitude * 1e7)),
		Z:               float32(item.Altitude),
		MissionType:     common.MAV_MISSION_TYPE_MISSION,
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
