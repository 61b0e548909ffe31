package model

// Flight mode names understood by the relay.
const (
	ModeGuided    = "GUIDED"
	ModeAuto      = "AUTO"
	ModeLand      = "LAND"
	ModeRTL       = "RTL"
	ModeStabilize = "STABILIZE"
)

// VehicleState is a point-in-time reading of the vehicle.
// It is never reused across polls.
type VehicleState struct {
	Mode           string
	Armed          bool
	IsArmable      bool
	EKFOk          bool
	SystemStatus   string
	AltitudeMeters float64
}
