package mavlink

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// ArduCopter custom mode numbers.
var copterModes = map[string]uint32{
	"STABILIZE": 0,
	"ACRO":      1,
	"ALT_HOLD":  2,
	"AUTO":      3,
	"GUIDED":    4,
	"LOITER":    5,
	"RTL":       6,
	"CIRCLE":    7,
	"LAND":      9,
	"DRIFT":     11,
	"SPORT":     13,
	"FLIP":      14,
	"AUTOTUNE":  15,
	"POSHOLD":   16,
	"BRAKE":     17,
	"THROW":     18,
	"SMART_RTL": 21,
}

var copterModeNames = func() map[uint32]string {
	m := make(map[uint32]string, len(copterModes))
	for name, num := range copterModes {
		m[num] = name
	}
	return m
}()

func modeNumber(name string) (uint32, bool) {
	n, ok := copterModes[name]
	return n, ok
}

func modeName(num uint32) string {
	if name, ok := copterModeNames[num]; ok {
		return name
	}
	return "UNKNOWN"
}

var systemStatusNames = map[common.MAV_STATE]string{
	common.MAV_STATE_UNINIT:             "UNINIT",
	common.MAV_STATE_BOOT:               "BOOT",
	common.MAV_STATE_CALIBRATING:        "CALIBRATING",
	common.MAV_STATE_STANDBY:            "STANDBY",
	common.MAV_STATE_ACTIVE:             "ACTIVE",
	common.MAV_STATE_CRITICAL:           "CRITICAL",
	common.MAV_STATE_EMERGENCY:          "EMERGENCY",
	common.MAV_STATE_POWEROFF:           "POWEROFF",
	common.MAV_STATE_FLIGHT_TERMINATION: "FLIGHT_TERMINATION",
}

func systemStatusName(s common.MAV_STATE) string {
	if name, ok := systemStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
