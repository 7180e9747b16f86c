// Package headers contains various RTSP headers.
package headers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/camgrab/pkg/base"
)

// Session is a Session header.
type Session struct {
	// session id
	Session string

	// (optional) a timeout
	Timeout *uint
}

// Unmarshal decodes a Session header.
func (h *Session) Unmarshal(v base.HeaderValue) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	v0 := v[0]

	i := strings.IndexByte(v0, ';')
	if i < 0 {
		i = len(v0)
	}

	h.Session = strings.TrimSpace(v0[:i])
	if h.Session == "" {
		return fmt.Errorf("invalid value (%v)", v0)
	}

	h.Timeout = nil

	if i == len(v0) {
		return nil
	}

	kvs, err := keyValParse(v0[i+1:], ';')
	if err != nil {
		return err
	}

	for _, kv := range kvs {
		// other parameters are ignored
		if kv.Key == "timeout" {
			iv, err := strconv.ParseUint(kv.Value, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid timeout (%v)", kv.Value)
			}
			uiv := uint(iv)
			h.Timeout = &uiv
		}
	}

	return nil
}

// Marshal encodes a Session header.
func (h Session) Marshal() base.HeaderValue {
	ret := h.Session

	if h.Timeout != nil {
		ret += ";timeout=" + strconv.FormatUint(uint64(*h.Timeout), 10)
	}

	return base.HeaderValue{ret}
}
