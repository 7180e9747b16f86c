// Package camgrab captures a H264 stream from a RTSP camera
// and rebuilds it into an Annex-B byte stream.
package camgrab

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/google/uuid"
	"github.com/q191201771/naza/pkg/nazalog"

	"github.com/bluenviron/camgrab/pkg/sink"
)

// Log is the logger used by the package.
var Log = nazalog.GetGlobalLogger()

var (
	// ErrNegotiation is wrapped by every error returned during the RTSP exchange.
	ErrNegotiation = errors.New("RTSP negotiation failed")

	// ErrSink is wrapped by errors returned by the sink.
	ErrSink = errors.New("sink error")

	// ErrCaptureTimeout is returned when no datagram is received within the idle timeout.
	ErrCaptureTimeout = errors.New("capture timed out")
)

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// WriteParameterSets writes SPS and PPS to a sink, each one prefixed by
// a 4-byte start code. It must be called before the first chunk produced by
// the reassembler, that uses 3-byte start codes.
func WriteParameterSets(s sink.Sink, sps []byte, pps []byte) error {
	if len(sps) == 0 || len(pps) == 0 {
		return fmt.Errorf("SPS or PPS is empty")
	}

	buf, err := h264.AnnexB{sps, pps}.Marshal()
	if err != nil {
		return err
	}

	return s.Append(buf)
}
