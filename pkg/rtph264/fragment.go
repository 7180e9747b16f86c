// Package rtph264 contains a RTP/H264 depacketizer that produces an Annex-B stream.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
package rtph264

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// ErrPayloadEmpty is returned when a RTP packet has no payload.
var ErrPayloadEmpty = errors.New("payload is empty")

// ErrInvalidFUState is returned when the FU header of a FU-A packet
// is missing or carries an invalid NALU type.
var ErrInvalidFUState = errors.New("invalid FU-A start/end state")

// ErrUnsupportedAggregation is returned when a packet uses an aggregation
// or a fragmentation mode different than FU-A.
type ErrUnsupportedAggregation struct {
	Type h264.NALUType
}

// Error implements the error interface.
func (e ErrUnsupportedAggregation) Error() string {
	return fmt.Sprintf("packet type not supported (%v)", e.Type)
}

// ErrReserved is returned when a packet uses a reserved NALU type.
type ErrReserved struct {
	Type h264.NALUType
}

// Error implements the error interface.
func (e ErrReserved) Error() string {
	return fmt.Sprintf("reserved NALU type (%d)", uint8(e.Type))
}

// FragmentKind is the packetization of a RTP payload.
type FragmentKind int

// fragment kinds.
const (
	FragmentSingleUnit FragmentKind = iota
	FragmentFUStart
	FragmentFUMiddle
	FragmentFUEnd
)

var fragmentKindLabels = map[FragmentKind]string{
	FragmentSingleUnit: "single",
	FragmentFUStart:    "FU-A start",
	FragmentFUMiddle:   "FU-A middle",
	FragmentFUEnd:      "FU-A end",
}

// String implements fmt.Stringer.
func (k FragmentKind) String() string {
	if l, ok := fragmentKindLabels[k]; ok {
		return l
	}
	return "unknown"
}

// Fragment is the classification of a RTP payload.
type Fragment struct {
	Kind FragmentKind

	// type of the NALU carried by the payload.
	// In case of FU-A packets, this is the type of the fragmented NALU.
	Type h264.NALUType

	// reconstructed NALU header. Only filled by FU-A start fragments.
	Header byte
}

// Classify classifies a RTP/H264 payload.
func Classify(payload []byte) (Fragment, error) {
	if len(payload) == 0 {
		return Fragment{}, ErrPayloadEmpty
	}

	typ := h264.NALUType(payload[0] & 0x1F)

	switch {
	case typ >= h264.NALUTypeNonIDR && typ <= h264.NALUTypeReserved23:
		return Fragment{
			Kind: FragmentSingleUnit,
			Type: typ,
		}, nil

	case typ == h264.NALUTypeFUA:
		return classifyFUA(payload)

	case typ == h264.NALUTypeSTAPA, typ == h264.NALUTypeSTAPB,
		typ == h264.NALUTypeMTAP16, typ == h264.NALUTypeMTAP24,
		typ == h264.NALUTypeFUB:
		return Fragment{}, ErrUnsupportedAggregation{Type: typ}
	}

	// 0, 30, 31
	return Fragment{}, ErrReserved{Type: typ}
}

//  FU indicator     FU header
// +---------------+---------------+
// |0|1|2|3|4|5|6|7|0|1|2|3|4|5|6|7|
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |F|NRI|  Type   |S|E|R|  Type   |
// +---------------+---------------+
func classifyFUA(payload []byte) (Fragment, error) {
	if len(payload) < 2 {
		return Fragment{}, ErrInvalidFUState
	}

	start := payload[1] >> 7
	end := (payload[1] >> 6) & 0x01
	// the R bit is ignored.
	typ := h264.NALUType(payload[1] & 0x1F)

	if typ < h264.NALUTypeNonIDR || typ > h264.NALUTypeReserved23 {
		return Fragment{}, ErrInvalidFUState
	}

	// end wins when both bits are set.
	if end == 1 {
		return Fragment{
			Kind: FragmentFUEnd,
			Type: typ,
		}, nil
	}

	if start == 1 {
		return Fragment{
			Kind:   FragmentFUStart,
			Type:   typ,
			Header: (payload[0] & 0xE0) | byte(typ),
		}, nil
	}

	return Fragment{
		Kind: FragmentFUMiddle,
		Type: typ,
	}, nil
}
