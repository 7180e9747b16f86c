// Package description contains objects to describe streams.
package description

import (
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"

	"github.com/bluenviron/camgrab/pkg/base"
)

func getAttribute(attributes []psdp.Attribute, key string) string {
	for _, attr := range attributes {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}

func getFormatAttribute(attributes []psdp.Attribute, payloadType uint8, key string) string {
	for _, attr := range attributes {
		if attr.Key == key {
			v := strings.TrimSpace(attr.Value)
			if parts := strings.SplitN(v, " ", 2); len(parts) == 2 {
				if tmp, err := strconv.ParseUint(parts[0], 10, 8); err == nil && uint8(tmp) == payloadType {
					return parts[1]
				}
			}
		}
	}
	return ""
}

func decodeFMTP(enc string) map[string]string {
	if enc == "" {
		return nil
	}

	ret := make(map[string]string)

	for _, kv := range strings.Split(enc, ";") {
		kv = strings.Trim(kv, " ")

		if len(kv) == 0 {
			continue
		}

		tmp := strings.SplitN(kv, "=", 2)
		if len(tmp) != 2 {
			continue
		}

		ret[strings.ToLower(tmp[0])] = tmp[1]
	}

	return ret
}

// MediaType is the type of a media stream.
type MediaType string

// media types.
const (
	MediaTypeVideo       MediaType = "video"
	MediaTypeAudio       MediaType = "audio"
	MediaTypeApplication MediaType = "application"
)

// Format is a RTP format of a media, identified by its payload type.
type Format struct {
	// RTP payload type.
	PayloadType uint8

	// codec name, as written in the rtpmap attribute.
	Codec string

	// clock rate, as written in the rtpmap attribute.
	ClockRate int

	// format-specific parameters.
	FMTP map[string]string
}

func (f *Format) unmarshal(payloadType uint8, rtpMap string, fmtp map[string]string) error {
	f.PayloadType = payloadType
	f.FMTP = fmtp

	if rtpMap == "" {
		return nil
	}

	// "H264/90000", "MPEG4-GENERIC/44100/2"
	parts := strings.Split(rtpMap, "/")
	f.Codec = parts[0]

	if len(parts) >= 2 {
		tmp, err := strconv.ParseUint(parts[1], 10, 31)
		if err != nil {
			return fmt.Errorf("invalid clock rate (%v)", rtpMap)
		}
		f.ClockRate = int(tmp)
	}

	return nil
}

// IsH264 checks whether the format carries H264.
func (f Format) IsH264() bool {
	return strings.EqualFold(f.Codec, "H264") && f.ClockRate == 90000
}

// Media is a media stream.
// It contains one or more formats.
type Media struct {
	// Media type.
	Type MediaType

	// Control attribute.
	Control string

	// Formats contained into the media.
	Formats []*Format
}

// Unmarshal decodes the media from the SDP format.
func (m *Media) Unmarshal(md *psdp.MediaDescription) error {
	m.Type = MediaType(md.MediaName.Media)
	m.Control = getAttribute(md.Attributes, "control")

	m.Formats = nil
	for _, payloadType := range md.MediaName.Formats {
		tmp, err := strconv.ParseUint(payloadType, 10, 7)
		if err != nil {
			return fmt.Errorf("invalid payload type (%v)", payloadType)
		}
		payloadTypeInt := uint8(tmp)

		rtpMap := getFormatAttribute(md.Attributes, payloadTypeInt, "rtpmap")
		fmtp := decodeFMTP(getFormatAttribute(md.Attributes, payloadTypeInt, "fmtp"))

		var f Format
		err = f.unmarshal(payloadTypeInt, rtpMap, fmtp)
		if err != nil {
			return err
		}

		m.Formats = append(m.Formats, &f)
	}

	if m.Formats == nil {
		return fmt.Errorf("no formats found")
	}

	return nil
}

// URL returns the absolute URL of the media.
func (m Media) URL(contentBase *base.URL) (*base.URL, error) {
	if contentBase == nil {
		return nil, fmt.Errorf("Content-Base header not provided")
	}

	return contentBase.Resolve(m.Control)
}

// FindH264 returns the first H264 format of the media.
func (m Media) FindH264() (*H264, error) {
	for _, f := range m.Formats {
		if f.IsH264() {
			var h H264
			err := h.unmarshal(f)
			if err != nil {
				return nil, err
			}
			return &h, nil
		}
	}
	return nil, nil
}
