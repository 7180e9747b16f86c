package base

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
)

// StatusCode is the status code of a RTSP response.
type StatusCode int

// status codes.
const (
	StatusOK                        StatusCode = 200
	StatusMovedPermanently          StatusCode = 301
	StatusFound                     StatusCode = 302
	StatusBadRequest                StatusCode = 400
	StatusUnauthorized              StatusCode = 401
	StatusForbidden                 StatusCode = 403
	StatusNotFound                  StatusCode = 404
	StatusMethodNotAllowed          StatusCode = 405
	StatusSessionNotFound           StatusCode = 454
	StatusMethodNotValidInThisState StatusCode = 455
	StatusUnsupportedTransport      StatusCode = 461
	StatusInternalServerError       StatusCode = 500
	StatusNotImplemented            StatusCode = 501
	StatusServiceUnavailable        StatusCode = 503
)

var statusMessages = map[StatusCode]string{
	StatusOK:                        "OK",
	StatusMovedPermanently:          "Moved Permanently",
	StatusFound:                     "Found",
	StatusBadRequest:                "Bad Request",
	StatusUnauthorized:              "Unauthorized",
	StatusForbidden:                 "Forbidden",
	StatusNotFound:                  "Not Found",
	StatusMethodNotAllowed:          "Method Not Allowed",
	StatusSessionNotFound:           "Session Not Found",
	StatusMethodNotValidInThisState: "Method Not Valid In This State",
	StatusUnsupportedTransport:      "Unsupported Transport",
	StatusInternalServerError:       "Internal Server Error",
	StatusNotImplemented:            "Not Implemented",
	StatusServiceUnavailable:        "Service Unavailable",
}

// Response is a RTSP response.
type Response struct {
	// numeric status code
	StatusCode StatusCode

	// status message
	StatusMessage string

	// map of header values
	Header Header

	// optional body
	Body []byte
}

// Unmarshal reads a response.
func (res *Response) Unmarshal(br *bufio.Reader) error {
	byts, err := readBytesLimited(br, ' ', 255)
	if err != nil {
		return err
	}
	proto := byts[:len(byts)-1]

	if string(proto) != rtspProtocol10 {
		return fmt.Errorf("expected '%s', got '%s'", rtspProtocol10, proto)
	}

	byts, err = readBytesLimited(br, ' ', 4)
	if err != nil {
		return err
	}
	statusCodeStr := string(byts[:len(byts)-1])

	statusCode64, err := strconv.ParseInt(statusCodeStr, 10, 32)
	if err != nil {
		return fmt.Errorf("unable to parse status code")
	}
	res.StatusCode = StatusCode(statusCode64)

	byts, err = readBytesLimited(br, '\r', 255)
	if err != nil {
		return err
	}
	res.StatusMessage = string(byts[:len(byts)-1])

	err = readByteEqual(br, '\n')
	if err != nil {
		return err
	}

	err = res.Header.unmarshal(br)
	if err != nil {
		return err
	}

	return (*body)(&res.Body).unmarshal(res.Header, br)
}

// Marshal encodes a Response.
func (res Response) Marshal() ([]byte, error) {
	if res.StatusMessage == "" {
		if status, ok := statusMessages[res.StatusCode]; ok {
			res.StatusMessage = status
		}
	}

	var bb bytes.Buffer

	bb.WriteString(rtspProtocol10 + " " + strconv.FormatInt(int64(res.StatusCode), 10) + " " +
		res.StatusMessage + "\r\n")

	h := make(Header, len(res.Header)+1)
	for k, v := range res.Header {
		h[k] = v
	}

	if len(res.Body) != 0 {
		h["Content-Length"] = HeaderValue{strconv.FormatInt(int64(len(res.Body)), 10)}
	}

	h.marshal(&bb)
	body(res.Body).marshal(&bb)

	return bb.Bytes(), nil
}

// String implements fmt.Stringer.
func (res Response) String() string {
	buf, _ := res.Marshal()
	return string(buf)
}
