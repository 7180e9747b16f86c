// Package base contains the primitives of the RTSP protocol.
package base

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
)

const (
	requestMaxMethodLength   = 64
	requestMaxURLLength      = 2048
	requestMaxProtocolLength = 64
)

// Method is the method of a RTSP request.
type Method string

// methods.
const (
	Describe Method = "DESCRIBE"
	Options  Method = "OPTIONS"
	Play     Method = "PLAY"
	Setup    Method = "SETUP"
	Teardown Method = "TEARDOWN"
)

// Request is a RTSP request.
type Request struct {
	// request method
	Method Method

	// request url
	URL *URL

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// Unmarshal reads a request.
func (req *Request) Unmarshal(br *bufio.Reader) error {
	byts, err := readBytesLimited(br, ' ', requestMaxMethodLength)
	if err != nil {
		return err
	}
	req.Method = Method(byts[:len(byts)-1])

	if req.Method == "" {
		return fmt.Errorf("empty method")
	}

	byts, err = readBytesLimited(br, ' ', requestMaxURLLength)
	if err != nil {
		return err
	}
	rawURL := string(byts[:len(byts)-1])

	ur, err := ParseURL(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL (%v)", rawURL)
	}
	req.URL = ur

	byts, err = readBytesLimited(br, '\r', requestMaxProtocolLength)
	if err != nil {
		return err
	}
	proto := byts[:len(byts)-1]

	if string(proto) != rtspProtocol10 {
		return fmt.Errorf("expected '%s', got '%s'", rtspProtocol10, proto)
	}

	err = readByteEqual(br, '\n')
	if err != nil {
		return err
	}

	err = req.Header.unmarshal(br)
	if err != nil {
		return err
	}

	return (*body)(&req.Body).unmarshal(req.Header, br)
}

// Marshal encodes a Request.
func (req Request) Marshal() ([]byte, error) {
	if req.URL == nil {
		return nil, fmt.Errorf("URL is missing")
	}

	var bb bytes.Buffer

	bb.WriteString(string(req.Method) + " " + req.URL.CloneWithoutCredentials().String() +
		" " + rtspProtocol10 + "\r\n")

	h := make(Header, len(req.Header)+1)
	for k, v := range req.Header {
		h[k] = v
	}

	if len(req.Body) != 0 {
		h["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(req.Body)), 10)}
	}

	h.marshal(&bb)
	body(req.Body).marshal(&bb)

	return bb.Bytes(), nil
}

// String implements fmt.Stringer.
func (req Request) String() string {
	buf, _ := req.Marshal()
	return string(buf)
}
