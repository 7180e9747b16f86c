package description

import (
	"fmt"

	psdp "github.com/pion/sdp/v3"
)

// Session is the description of a RTSP stream.
type Session struct {
	// title of the stream (optional).
	Title string

	// available media streams.
	Medias []*Media
}

// Unmarshal decodes the description from SDP.
func (d *Session) Unmarshal(byts []byte) error {
	var sd psdp.SessionDescription
	err := sd.Unmarshal(byts)
	if err != nil {
		return err
	}

	d.Title = string(sd.SessionName)
	if d.Title == " " {
		d.Title = ""
	}

	d.Medias = make([]*Media, len(sd.MediaDescriptions))

	for i, md := range sd.MediaDescriptions {
		var m Media
		err := m.Unmarshal(md)
		if err != nil {
			return fmt.Errorf("media %d is invalid: %w", i+1, err)
		}

		d.Medias[i] = &m
	}

	return nil
}

// FindH264 returns the first video media that carries H264, together with its parameters.
func (d *Session) FindH264() (*Media, *H264, error) {
	for _, media := range d.Medias {
		if media.Type != MediaTypeVideo {
			continue
		}

		forma, err := media.FindH264()
		if err != nil {
			return nil, nil, err
		}

		if forma != nil {
			return media, forma, nil
		}
	}

	return nil, nil, nil
}
