package mavlink

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
)

// ParseEndpoint turns an endpoint description into a gomavlib endpoint.
//
//	tcp:HOST:PORT          connect to a TCP server (SITL default)
//	udp:HOST:PORT          listen for UDP packets
//	udp-client:HOST:PORT   send UDP packets to a remote address
//	serial:DEVICE:BAUD     serial port
func ParseEndpoint(s string) (gomavlib.EndpointConf, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("invalid endpoint %q: expected scheme:address", s)
	}

	switch scheme {
	case "tcp":
		return gomavlib.EndpointTCPClient{Address: rest}, nil
	case "udp":
		return gomavlib.EndpointUDPServer{Address: rest}, nil
	case "udp-client":
		return gomavlib.EndpointUDPClient{Address: rest}, nil
	case "serial":
		idx := strings.LastIndex(rest, ":")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid serial endpoint %q: expected serial:DEVICE:BAUD", s)
		}
		baud, err := strconv.Atoi(rest[idx+1:])
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("invalid baud rate in endpoint %q", s)
		}
		return gomavlib.EndpointSerial{Device: rest[:idx], Baud: baud}, nil
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", scheme)
	}
}
