package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/camgrab/pkg/base"
)

// TransportProtocol is a transport protocol.
type TransportProtocol int

// transport protocols.
const (
	TransportProtocolUDP TransportProtocol = iota
	TransportProtocolTCP
)

// String implements fmt.Stringer.
func (p TransportProtocol) String() string {
	if p == TransportProtocolUDP {
		return "RTP/AVP"
	}
	return "RTP/AVP/TCP"
}

// TransportDelivery is a delivery method.
type TransportDelivery int

// transport delivery methods.
const (
	TransportDeliveryUnicast TransportDelivery = iota
	TransportDeliveryMulticast
)

// String implements fmt.Stringer.
func (d TransportDelivery) String() string {
	if d == TransportDeliveryUnicast {
		return "unicast"
	}
	return "multicast"
}

// Transport is a Transport header.
type Transport struct {
	// protocol of the stream
	Protocol TransportProtocol

	// (optional) delivery method of the stream
	Delivery *TransportDelivery

	// (optional) client ports
	ClientPorts *[2]int

	// (optional) server ports
	ServerPorts *[2]int

	// (optional) SSRC of the packets of the stream
	SSRC *uint32
}

func parsePorts(val string) (*[2]int, error) {
	ports := strings.Split(val, "-")

	switch len(ports) {
	case 2:
		port1, err := strconv.ParseUint(ports[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		port2, err := strconv.ParseUint(ports[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		return &[2]int{int(port1), int(port2)}, nil

	case 1:
		port1, err := strconv.ParseUint(ports[0], 10, 16)
		if err != nil || port1 == 65535 {
			return nil, fmt.Errorf("invalid ports (%v)", val)
		}

		return &[2]int{int(port1), int(port1 + 1)}, nil
	}

	return nil, fmt.Errorf("invalid ports (%v)", val)
}

func marshalPorts(ports [2]int) string {
	return strconv.FormatInt(int64(ports[0]), 10) + "-" + strconv.FormatInt(int64(ports[1]), 10)
}

// Unmarshal decodes a Transport header.
func (h *Transport) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	kvs, err := keyValParse(v[0], ';')
	if err != nil {
		return err
	}

	if len(kvs) == 0 {
		return fmt.Errorf("invalid value (%v)", v[0])
	}

	*h = Transport{}

	switch strings.ToUpper(kvs[0].Key) {
	case "RTP/AVP", "RTP/AVP/UDP":
		h.Protocol = TransportProtocolUDP

	case "RTP/AVP/TCP":
		h.Protocol = TransportProtocolTCP

	default:
		return fmt.Errorf("invalid protocol (%v)", v[0])
	}

	for _, kv := range kvs[1:] {
		switch strings.ToLower(kv.Key) {
		case "unicast":
			d := TransportDeliveryUnicast
			h.Delivery = &d

		case "multicast":
			d := TransportDeliveryMulticast
			h.Delivery = &d

		case "client_port":
			ports, err := parsePorts(kv.Value)
			if err != nil {
				return err
			}
			h.ClientPorts = ports

		case "server_port":
			ports, err := parsePorts(kv.Value)
			if err != nil {
				return err
			}
			h.ServerPorts = ports

		case "ssrc":
			tmp, err := strconv.ParseUint(strings.TrimLeft(kv.Value, " "), 16, 32)
			if err != nil {
				return fmt.Errorf("invalid SSRC (%v)", kv.Value)
			}
			ssrc := uint32(tmp)
			h.SSRC = &ssrc
		}

		// ignore non-standard keys
	}

	return nil
}

// Marshal encodes a Transport header.
func (h Transport) Marshal() base.HeaderValue {
	rets := []string{h.Protocol.String()}

	if h.Delivery != nil {
		rets = append(rets, h.Delivery.String())
	}

	if h.ClientPorts != nil {
		rets = append(rets, "client_port="+marshalPorts(*h.ClientPorts))
	}

	if h.ServerPorts != nil {
		rets = append(rets, "server_port="+marshalPorts(*h.ServerPorts))
	}

	if h.SSRC != nil {
		rets = append(rets, fmt.Sprintf("ssrc=%08X", *h.SSRC))
	}

	return base.HeaderValue{strings.Join(rets, ";")}
}
