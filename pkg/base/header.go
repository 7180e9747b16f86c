package base

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const (
	headerMaxEntryCount  = 255
	headerMaxKeyLength   = 512
	headerMaxValueLength = 2048
)

func headerKeyNormalize(in string) string {
	switch strings.ToLower(in) {
	case "rtp-info":
		return "RTP-Info"

	case "www-authenticate":
		return "WWW-Authenticate"

	case "cseq":
		return "CSeq"
	}
	return http.CanonicalHeaderKey(in)
}

// HeaderValue is an header value.
type HeaderValue []string

// Header is a RTSP header, present in both Requests and Responses.
// Keys of decoded headers are normalized.
type Header map[string]HeaderValue

// Get returns the values of a header.
// The lookup is case-insensitive.
func (h Header) Get(key string) (HeaderValue, bool) {
	v, ok := h[headerKeyNormalize(key)]
	if ok {
		return v, true
	}

	// headers filled by hand may not be normalized
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}

	return nil, false
}

// GetSingle returns the value of a header that must be provided once.
func (h Header) GetSingle(key string) (string, error) {
	v, ok := h.Get(key)
	if !ok || len(v) == 0 {
		return "", fmt.Errorf("%s header is missing", headerKeyNormalize(key))
	}

	if len(v) > 1 {
		return "", fmt.Errorf("%s header provided multiple times (%v)", headerKeyNormalize(key), v)
	}

	return v[0], nil
}

func (h *Header) unmarshal(br *bufio.Reader) error {
	*h = make(Header)

	for {
		byt, err := br.ReadByte()
		if err != nil {
			return err
		}

		if byt == '\r' {
			err = readByteEqual(br, '\n')
			if err != nil {
				return err
			}

			break
		}

		if len(*h) >= headerMaxEntryCount {
			return fmt.Errorf("headers count exceeds %d", headerMaxEntryCount)
		}

		key := string([]byte{byt})
		byts, err := readBytesLimited(br, ':', headerMaxKeyLength-1)
		if err != nil {
			return fmt.Errorf("value is missing")
		}

		key += string(byts[:len(byts)-1])
		key = headerKeyNormalize(key)

		// https://tools.ietf.org/html/rfc2616
		// The field value MAY be preceded by any amount of spaces
		for {
			byt, err = br.ReadByte()
			if err != nil {
				return err
			}

			if byt != ' ' {
				break
			}
		}
		br.UnreadByte() //nolint:errcheck

		byts, err = readBytesLimited(br, '\r', headerMaxValueLength)
		if err != nil {
			return err
		}
		val := string(byts[:len(byts)-1])

		err = readByteEqual(br, '\n')
		if err != nil {
			return err
		}

		(*h)[key] = append((*h)[key], val)
	}

	return nil
}

func (h Header) marshal(bb *bytes.Buffer) {
	// sort headers by key
	// in order to obtain deterministic results
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, val := range h[key] {
			bb.WriteString(key + ": " + val + "\r\n")
		}
	}

	bb.WriteString("\r\n")
}
