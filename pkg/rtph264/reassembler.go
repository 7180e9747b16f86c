package rtph264

import (
	"errors"

	"github.com/bluenviron/camgrab/pkg/rtpheader"
)

// StartCode is the start code that precedes NALUs in the output stream.
var StartCode = []byte{0x00, 0x00, 0x01}

// ErrExtensionNotSupported is returned when a packet has a header extension
// and extensions are not enabled.
var ErrExtensionNotSupported = errors.New("RTP header extensions are not enabled")

// Stats are reassembler statistics.
type Stats struct {
	// datagrams that produced output.
	Accepted uint64

	// datagrams discarded because they were duplicated or out of order.
	Dropped uint64

	// bytes emitted.
	Bytes uint64
}

// Reassembler converts RTP/H264 datagrams into an Annex-B stream.
//
// Packets are expected to arrive in order: FU-A fragments are emitted
// as soon as they are received, without being buffered, and a single
// NALU can be in flight at a time.
//
// Sequence numbers are compared without taking wraparound into account:
// after the sequence number wraps, every packet is discarded.
type Reassembler struct {
	// allow packets with header extensions. Extensions are skipped.
	// It defaults to false.
	ExtensionEnable bool

	// called when a packet is discarded because it is duplicated or out of order.
	OnOutOfOrder func(seqNum uint16, lastSeqNum uint16)

	lastSeqNum      uint16
	lastSeqNumValid bool
	stats           Stats
}

// Init initializes the reassembler.
func (r *Reassembler) Init() error {
	if r.OnOutOfOrder == nil {
		r.OnOutOfOrder = func(uint16, uint16) {}
	}
	return nil
}

// Stats returns statistics.
func (r *Reassembler) Stats() Stats {
	return r.stats
}

// LastSequenceNumber returns the sequence number of the last accepted packet.
func (r *Reassembler) LastSequenceNumber() (uint16, bool) {
	return r.lastSeqNum, r.lastSeqNumValid
}

// Process processes a RTP datagram and returns the bytes to append to the
// output stream.
// Duplicated and out of order packets produce no bytes and no error.
func (r *Reassembler) Process(datagram []byte) ([]byte, error) {
	var h rtpheader.Header
	offset, err := h.Unmarshal(datagram)
	if err != nil {
		return nil, err
	}

	if h.Extension != nil && !r.ExtensionEnable {
		return nil, ErrExtensionNotSupported
	}

	payload := datagram[offset : len(datagram)-int(h.PaddingSize)]

	frag, err := Classify(payload)
	if err != nil {
		return nil, err
	}

	if r.lastSeqNumValid && h.SequenceNumber <= r.lastSeqNum {
		r.stats.Dropped++
		r.OnOutOfOrder(h.SequenceNumber, r.lastSeqNum)
		return nil, nil
	}

	r.lastSeqNum = h.SequenceNumber
	r.lastSeqNumValid = true

	out := emit(frag, payload)

	r.stats.Accepted++
	r.stats.Bytes += uint64(len(out))

	return out, nil
}

func emit(frag Fragment, payload []byte) []byte {
	switch frag.Kind {
	case FragmentSingleUnit:
		out := make([]byte, len(StartCode)+len(payload))
		n := copy(out, StartCode)
		copy(out[n:], payload)
		return out

	case FragmentFUStart:
		out := make([]byte, len(StartCode)+1+len(payload)-2)
		n := copy(out, StartCode)
		out[n] = frag.Header
		copy(out[n+1:], payload[2:])
		return out
	}

	// middle and end fragments continue the current NALU
	out := make([]byte, len(payload)-2)
	copy(out, payload[2:])
	return out
}
