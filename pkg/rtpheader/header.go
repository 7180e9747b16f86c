// Package rtpheader contains a RTP header decoder.
// Specification: https://datatracker.ietf.org/doc/html/rfc3550#section-5.1
package rtpheader

import (
	"errors"
	"fmt"

	"github.com/q191201771/naza/pkg/bele"
	"github.com/q191201771/naza/pkg/nazabits"
)

//  0                   1                   2                   3
//  0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |V=2|P|X|  CC   |M|     PT      |       sequence number         |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |                           timestamp                           |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
// |           synchronization source (SSRC) identifier            |
// +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
// |            contributing source (CSRC) identifiers             |
// |                             ....                              |
// +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+

const (
	// Version is the only RTP version that is accepted.
	Version = 2

	// FixedSize is the size of the fixed part of the header.
	FixedSize = 12

	extensionHeaderSize = 4
)

// ErrTruncated is returned when the datagram is shorter than the header
// it describes.
var ErrTruncated = errors.New("RTP header is truncated")

// ErrInvalidPadding is returned when the padding count doesn't fit
// in the bytes that follow the header.
var ErrInvalidPadding = fmt.Errorf("%w: invalid padding size", ErrTruncated)

// ErrBadVersion is returned when the version field is not 2.
type ErrBadVersion struct {
	Version uint8
}

// Error implements the error interface.
func (e ErrBadVersion) Error() string {
	return fmt.Sprintf("unsupported RTP version (%d)", e.Version)
}

// Extension is a RTP header extension.
type Extension struct {
	// profile-defined identifier
	Profile uint16

	// length of Payload in 32-bit words
	Length uint16

	Payload []byte
}

// Header is a RTP header.
type Header struct {
	Version        uint8
	Padding        bool
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32

	// (optional) header extension
	Extension *Extension

	// number of padding bytes at the end of the datagram,
	// including the count byte itself. Zero when Padding is false.
	PaddingSize uint8
}

// Size returns the size of the header.
func (h *Header) Size() int {
	n := FixedSize + 4*len(h.CSRC)
	if h.Extension != nil {
		n += extensionHeaderSize + 4*int(h.Extension.Length)
	}
	return n
}

// Unmarshal decodes a header from a datagram.
// It returns the offset of the payload inside the datagram.
func (h *Header) Unmarshal(buf []byte) (int, error) {
	if len(buf) < FixedSize {
		return 0, ErrTruncated
	}

	// the first 16 bits can always be read, errors are not possible.
	br := nazabits.NewBitReader(buf[:2])
	version, _ := br.ReadBits8(2)
	padding, _ := br.ReadBits8(1)
	extension, _ := br.ReadBits8(1)
	csrcCount, _ := br.ReadBits8(4)
	marker, _ := br.ReadBits8(1)
	payloadType, _ := br.ReadBits8(7)

	if version != Version {
		return 0, ErrBadVersion{Version: version}
	}

	n := FixedSize + 4*int(csrcCount)
	if len(buf) < n {
		return 0, ErrTruncated
	}

	var csrc []uint32
	if csrcCount != 0 {
		csrc = make([]uint32, csrcCount)
		for i := range csrc {
			csrc[i] = bele.BeUint32(buf[FixedSize+4*i:])
		}
	}

	var ext *Extension
	if extension == 1 {
		if len(buf) < (n + extensionHeaderSize) {
			return 0, ErrTruncated
		}

		ext = &Extension{
			Profile: bele.BeUint16(buf[n:]),
			Length:  bele.BeUint16(buf[n+2:]),
		}
		n += extensionHeaderSize

		extSize := 4 * int(ext.Length)
		if len(buf) < (n + extSize) {
			return 0, ErrTruncated
		}

		ext.Payload = make([]byte, extSize)
		copy(ext.Payload, buf[n:n+extSize])
		n += extSize
	}

	var paddingSize uint8
	if padding == 1 {
		if len(buf) == n {
			return 0, ErrInvalidPadding
		}

		paddingSize = buf[len(buf)-1]
		if paddingSize == 0 || int(paddingSize) > (len(buf)-n) {
			return 0, ErrInvalidPadding
		}
	}

	*h = Header{
		Version:        version,
		Padding:        padding == 1,
		Marker:         marker == 1,
		PayloadType:    payloadType,
		SequenceNumber: bele.BeUint16(buf[2:]),
		Timestamp:      bele.BeUint32(buf[4:]),
		SSRC:           bele.BeUint32(buf[8:]),
		CSRC:           csrc,
		Extension:      ext,
		PaddingSize:    paddingSize,
	}

	return n, nil
}

// String implements fmt.Stringer.
func (h Header) String() string {
	s := fmt.Sprintf("V=%d P=%v X=%v CC=%d M=%v PT=%d SN=%d TS=%d SSRC=%08x",
		h.Version, h.Padding, h.Extension != nil, len(h.CSRC), h.Marker,
		h.PayloadType, h.SequenceNumber, h.Timestamp, h.SSRC)

	if len(h.CSRC) != 0 {
		s += fmt.Sprintf(" CSRC=%08x", h.CSRC)
	}

	if h.Extension != nil {
		s += fmt.Sprintf(" EXT=%04x/%d", h.Extension.Profile, h.Extension.Length)
	}

	return s
}
