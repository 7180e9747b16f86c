// Package conn contains a RTSP connection implementation.
package conn

import (
	"bufio"
	"io"

	"github.com/bluenviron/camgrab/pkg/base"
)

const (
	readBufferSize = 4096
)

// Conn is a RTSP connection.
type Conn struct {
	w  io.Writer
	br *bufio.Reader
}

// NewConn allocates a Conn.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		w:  rw,
		br: bufio.NewReaderSize(rw, readBufferSize),
	}
}

// Read reads a Request or a Response.
func (c *Conn) Read() (interface{}, error) {
	byts, err := c.br.Peek(2)
	if err != nil {
		return nil, err
	}

	if byts[0] == 'R' && byts[1] == 'T' {
		return c.ReadResponse()
	}

	return c.ReadRequest()
}

// ReadRequest reads a Request.
func (c *Conn) ReadRequest() (*base.Request, error) {
	var req base.Request
	err := req.Unmarshal(c.br)
	return &req, err
}

// ReadResponse reads a Response.
func (c *Conn) ReadResponse() (*base.Response, error) {
	var res base.Response
	err := res.Unmarshal(c.br)
	return &res, err
}

// WriteRequest writes a Request.
func (c *Conn) WriteRequest(req *base.Request) error {
	buf, err := req.Marshal()
	if err != nil {
		return err
	}

	_, err = c.w.Write(buf)
	return err
}

// WriteResponse writes a Response.
func (c *Conn) WriteResponse(res *base.Response) error {
	buf, err := res.Marshal()
	if err != nil {
		return err
	}

	_, err = c.w.Write(buf)
	return err
}
