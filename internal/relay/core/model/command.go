package model

import (
	"strings"
)

// WaypointsPrefix introduces a mission upload on the wire: WAYPOINTS:<json>.
const WaypointsPrefix = "WAYPOINTS:"

// CommandKind tags the variant of a Command.
type CommandKind int

const (
	// CommandSimple is a bare token such as ARM or LAND.
	CommandSimple CommandKind = iota
	// CommandUploadMission carries a mission payload.
	CommandUploadMission
)

func (k CommandKind) String() string {
	switch k {
	case CommandSimple:
		return "Simple"
	case CommandUploadMission:
		return "UploadMission"
	default:
		return "Unknown"
	}
}

// Command is one parsed request line. It is immutable once built.
type Command struct {
	Kind CommandKind

	// Name is the command token for simple commands and "WAYPOINTS" for uploads.
	Name string

	// Payload holds the undecoded mission description of an upload.
	Payload []byte
}

// ParseLine turns one request line into a Command. Surrounding whitespace is
// ignored; token matching is left to the dispatcher and stays case-sensitive.
func ParseLine(line string) Command {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, WaypointsPrefix); ok {
		return Command{
			Kind:    CommandUploadMission,
			Name:    strings.TrimSuffix(WaypointsPrefix, ":"),
			Payload: []byte(rest),
		}
	}
	return Command{Kind: CommandSimple, Name: line}
}
