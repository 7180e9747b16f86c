package headers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/camgrab/pkg/base"
)

func unmarshalNPTTime(s string) (time.Duration, error) {
	if s == "now" {
		return 0, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid NPT time (%v)", s)
	}

	var hours uint64
	if len(parts) == 3 {
		tmp, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, err
		}
		hours = tmp
		parts = parts[1:]
	}

	var mins uint64
	if len(parts) == 2 {
		tmp, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, err
		}
		mins = tmp
		parts = parts[1:]
	}

	seconds, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}

	return time.Duration(seconds*float64(time.Second)) +
		time.Duration(mins*60+hours*3600)*time.Second, nil
}

func marshalNPTTime(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// Range is a Range header expressed in NPT units.
// An open-ended range ("npt=0-") has a nil End.
type Range struct {
	Start time.Duration
	End   *time.Duration
}

// Unmarshal decodes a Range header.
func (h *Range) Unmarshal(v base.HeaderValue) error {
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

	for _, kv := range kvs {
		if kv.Key != "npt" {
			continue
		}

		parts := strings.Split(kv.Value, "-")
		if len(parts) != 2 {
			return fmt.Errorf("invalid value (%v)", kv.Value)
		}

		h.Start, err = unmarshalNPTTime(parts[0])
		if err != nil {
			return err
		}

		h.End = nil
		if parts[1] != "" {
			end, err := unmarshalNPTTime(parts[1])
			if err != nil {
				return err
			}
			h.End = &end
		}

		return nil
	}

	return fmt.Errorf("value not found (%v)", v[0])
}

// Marshal encodes a Range header.
func (h Range) Marshal() base.HeaderValue {
	ret := "npt=" + marshalNPTTime(h.Start) + "-"
	if h.End != nil {
		ret += marshalNPTTime(*h.End)
	}
	return base.HeaderValue{ret}
}
