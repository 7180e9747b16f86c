package description

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// H264 contains the parameters of a H264 format.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
type H264 struct {
	PayloadType       uint8
	PacketizationMode int
	ProfileLevelID    string
	SPS               []byte
	PPS               []byte
}

func (f *H264) unmarshal(forma *Format) error {
	f.PayloadType = forma.PayloadType

	for key, val := range forma.FMTP {
		switch key {
		case "sprop-parameter-sets":
			sps, pps, err := ParseSpropParameterSets(val)
			if err != nil {
				// parameters are also sent in band
				continue
			}

			f.SPS = sps
			f.PPS = pps

		case "packetization-mode":
			tmp, err := strconv.ParseUint(val, 10, 31)
			if err != nil {
				return fmt.Errorf("invalid packetization-mode (%v)", val)
			}

			f.PacketizationMode = int(tmp)

		case "profile-level-id":
			f.ProfileLevelID = strings.ToUpper(val)
		}
	}

	return nil
}

// ParseSpropParameterSets decodes the value of a sprop-parameter-sets attribute,
// a comma-separated list of base64 NALUs, and returns the SPS and the PPS.
func ParseSpropParameterSets(val string) ([]byte, []byte, error) {
	var sps []byte
	var pps []byte

	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		nalu, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", val)
		}

		// some cameras ship parameters with Annex-B prefix
		nalu = bytes.TrimPrefix(nalu, []byte{0, 0, 0, 1})

		if len(nalu) == 0 {
			return nil, nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", val)
		}

		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			if sps == nil {
				sps = nalu
			}

		case h264.NALUTypePPS:
			if pps == nil {
				pps = nalu
			}
		}
	}

	if sps == nil || pps == nil {
		return nil, nil, fmt.Errorf("SPS or PPS not found (%v)", val)
	}

	var spsp h264.SPS
	err := spsp.Unmarshal(sps)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid SPS: %w", err)
	}

	return sps, pps, nil
}
