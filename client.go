package camgrab

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/camgrab/pkg/base"
	"github.com/bluenviron/camgrab/pkg/bytecounter"
	"github.com/bluenviron/camgrab/pkg/conn"
	"github.com/bluenviron/camgrab/pkg/description"
	"github.com/bluenviron/camgrab/pkg/headers"
	"github.com/bluenviron/camgrab/pkg/liberrors"
)

const (
	clientDefaultReadTimeout  = 10 * time.Second
	clientDefaultWriteTimeout = 10 * time.Second
	clientDefaultUserAgent    = "camgrab"
)

func findBaseURL(res *base.Response, u *base.URL) (*base.URL, error) {
	// use Content-Base
	if cb, ok := res.Header.Get("Content-Base"); ok {
		if len(cb) != 1 {
			return nil, fmt.Errorf("invalid Content-Base: '%v'", cb)
		}

		ret, err := base.ParseURL(cb[0])
		if err != nil {
			return nil, fmt.Errorf("invalid Content-Base: '%v'", cb)
		}

		// add credentials
		ret.User = u.User

		return ret, nil
	}

	// use URL of request
	return u.Clone(), nil
}

// SessionParams contains the parameters negotiated with the server.
type SessionParams struct {
	// session id.
	Session string

	// session timeout, if provided by the server.
	SessionTimeout *uint

	// IP of the server. Datagrams coming from other IPs are not part of the session.
	ServerIP net.IP

	// client ports confirmed by the server.
	ClientPorts [2]int

	// server RTP and RTCP ports.
	ServerPorts [2]int

	// SSRC announced by the server, if any.
	SSRC *uint32

	// Content-Length of the DESCRIBE response.
	DescribeContentLength int

	// aggregate URL of the stream.
	BaseURL *base.URL

	// URL of the H264 media.
	MediaURL *base.URL

	// H264 parameters.
	// SPS and PPS are filled when they are provided by sprop-parameter-sets.
	Format *description.H264
}

// Client is a RTSP client that negotiates a H264 stream delivered with RTP over UDP.
type Client struct {
	//
	// RTSP parameters (all optional)
	//
	// timeout of read operations.
	// It defaults to 10 seconds.
	ReadTimeout time.Duration
	// timeout of write operations.
	// It defaults to 10 seconds.
	WriteTimeout time.Duration
	// User-Agent header.
	// It defaults to "camgrab".
	UserAgent string

	//
	// system functions (all optional)
	//
	// function used to initialize the TCP connection.
	// It defaults to (&net.Dialer{}).DialContext.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)

	//
	// callbacks (all optional)
	//
	// called before every request.
	OnRequest func(*base.Request)
	// called after every response.
	OnResponse func(*base.Response)
	// called after SETUP and before PLAY.
	BeforePlay func(*SessionParams)

	nconn        net.Conn
	bc           *bytecounter.ByteCounter
	conn         *conn.Conn
	cseq         int
	session      string
	aggregateURL *base.URL
}

func (c *Client) initialize() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = clientDefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = clientDefaultWriteTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = clientDefaultUserAgent
	}
	if c.DialContext == nil {
		c.DialContext = (&net.Dialer{}).DialContext
	}
	if c.OnRequest == nil {
		c.OnRequest = func(*base.Request) {}
	}
	if c.OnResponse == nil {
		c.OnResponse = func(*base.Response) {}
	}
	if c.BeforePlay == nil {
		c.BeforePlay = func(*SessionParams) {}
	}
}

// Negotiate performs DESCRIBE, SETUP and PLAY.
// clientPorts are the local RTP and RTCP ports, that must be already bound by the caller.
// Every returned error wraps ErrNegotiation.
// Close must be called in any case to release the connection.
func (c *Client) Negotiate(ctx context.Context, u *base.URL, clientPorts [2]int) (*SessionParams, error) {
	c.initialize()

	params, err := c.negotiate(ctx, u, clientPorts)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrNegotiation, err)
	}

	return params, nil
}

func (c *Client) negotiate(ctx context.Context, u *base.URL, clientPorts [2]int) (*SessionParams, error) {
	if clientPorts[1] != clientPorts[0]+1 {
		return nil, liberrors.ErrClientUDPPortsNotConsecutive{}
	}

	err := c.connOpen(ctx, u)
	if err != nil {
		return nil, err
	}

	// unblock pending reads and writes when the context is canceled
	stop := context.AfterFunc(ctx, func() {
		c.nconn.Close()
	})
	defer stop()

	params := &SessionParams{}

	err = c.doDescribe(u, params)
	if err != nil {
		return nil, err
	}

	err = c.doSetup(clientPorts, params)
	if err != nil {
		return nil, err
	}

	c.BeforePlay(params)

	err = c.doPlay(params)
	if err != nil {
		return nil, err
	}

	return params, nil
}

// Close sends a TEARDOWN request, if a session is open, and closes the connection.
func (c *Client) Close() error {
	if c.nconn == nil {
		return nil
	}

	if c.session != "" {
		// best effort: the server closes the session after its timeout anyway
		_, err := c.do(&base.Request{
			Method: base.Teardown,
			URL:    c.aggregateURL,
		})
		if err != nil {
			Log.Debugf("TEARDOWN failed: %v", err)
		}
		c.session = ""
	}

	err := c.nconn.Close()
	c.nconn = nil
	return err
}

// BytesReceived returns the number of bytes received on the control connection.
func (c *Client) BytesReceived() uint64 {
	if c.bc == nil {
		return 0
	}
	return c.bc.BytesReceived()
}

// BytesSent returns the number of bytes sent on the control connection.
func (c *Client) BytesSent() uint64 {
	if c.bc == nil {
		return 0
	}
	return c.bc.BytesSent()
}

func (c *Client) connOpen(ctx context.Context, u *base.URL) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.ReadTimeout)
	defer cancel()

	nconn, err := c.DialContext(dialCtx, "tcp", u.CanonicalAddr())
	if err != nil {
		return err
	}

	c.nconn = nconn
	c.bc = bytecounter.New(c.nconn)
	c.conn = conn.NewConn(c.bc)
	c.aggregateURL = u
	return nil
}

func (c *Client) serverIP(u *base.URL) net.IP {
	if addr, ok := c.nconn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	return net.ParseIP(u.Hostname())
}

func (c *Client) do(req *base.Request) (*base.Response, error) {
	if req.Header == nil {
		req.Header = make(base.Header)
	}

	if c.session != "" {
		req.Header["Session"] = base.HeaderValue{c.session}
	}

	c.cseq++
	cseq := strconv.FormatInt(int64(c.cseq), 10)
	req.Header["CSeq"] = base.HeaderValue{cseq}

	req.Header["User-Agent"] = base.HeaderValue{c.UserAgent}

	c.OnRequest(req)

	c.nconn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)) //nolint:errcheck
	err := c.conn.WriteRequest(req)
	if err != nil {
		return nil, err
	}

	c.nconn.SetReadDeadline(time.Now().Add(c.ReadTimeout)) //nolint:errcheck
	res, err := c.conn.ReadResponse()
	if err != nil {
		return nil, err
	}

	c.OnResponse(res)

	if v, ok := res.Header.Get("CSeq"); ok && len(v) == 1 && strings.TrimSpace(v[0]) != cseq {
		return nil, liberrors.ErrClientCSeqMismatch{Expected: cseq, Value: v[0]}
	}

	return res, nil
}

func (c *Client) doDescribe(u *base.URL, params *SessionParams) error {
	res, err := c.do(&base.Request{
		Method: base.Describe,
		URL:    u,
		Header: base.Header{
			"Accept": base.HeaderValue{"application/sdp"},
		},
	})
	if err != nil {
		return err
	}

	if res.StatusCode != base.StatusOK {
		return liberrors.ErrClientWrongStatusCode{
			Method:  base.Describe,
			Code:    res.StatusCode,
			Message: res.StatusMessage,
		}
	}

	cl, err := res.Header.GetSingle("Content-Length")
	if err != nil {
		return liberrors.ErrClientContentLengthMissing{}
	}
	params.DescribeContentLength, err = strconv.Atoi(cl)
	if err != nil {
		return liberrors.ErrClientContentLengthMissing{}
	}

	if ct, ok := res.Header.Get("Content-Type"); ok {
		if len(ct) != 1 || !strings.HasPrefix(strings.ToLower(ct[0]), "application/sdp") {
			return liberrors.ErrClientContentTypeUnsupported{CT: ct}
		}
	}

	var desc description.Session
	err = desc.Unmarshal(res.Body)
	if err != nil {
		return liberrors.ErrClientSDPInvalid{Err: err}
	}

	media, forma, err := desc.FindH264()
	if err != nil {
		return liberrors.ErrClientSDPInvalid{Err: err}
	}
	if media == nil {
		return liberrors.ErrClientNoH264Media{}
	}

	params.BaseURL, err = findBaseURL(res, u)
	if err != nil {
		return err
	}

	params.MediaURL, err = media.URL(params.BaseURL)
	if err != nil {
		return err
	}

	params.Format = forma
	params.ServerIP = c.serverIP(u)
	c.aggregateURL = params.BaseURL

	return nil
}

func (c *Client) doSetup(clientPorts [2]int, params *SessionParams) error {
	delivery := headers.TransportDeliveryUnicast

	res, err := c.do(&base.Request{
		Method: base.Setup,
		URL:    params.MediaURL,
		Header: base.Header{
			"Transport": headers.Transport{
				Protocol:    headers.TransportProtocolUDP,
				Delivery:    &delivery,
				ClientPorts: &clientPorts,
			}.Marshal(),
		},
	})
	if err != nil {
		return err
	}

	if res.StatusCode != base.StatusOK {
		return liberrors.ErrClientWrongStatusCode{
			Method:  base.Setup,
			Code:    res.StatusCode,
			Message: res.StatusMessage,
		}
	}

	sv, ok := res.Header.Get("Session")
	if !ok {
		return liberrors.ErrClientSessionHeaderInvalid{Err: fmt.Errorf("value not provided")}
	}

	var sx headers.Session
	err = sx.Unmarshal(sv)
	if err != nil {
		return liberrors.ErrClientSessionHeaderInvalid{Err: err}
	}

	// the session must be closed even if the rest of the response is invalid
	c.session = sx.Session

	tv, ok := res.Header.Get("Transport")
	if !ok {
		return liberrors.ErrClientTransportHeaderInvalid{Err: fmt.Errorf("value not provided")}
	}

	var th headers.Transport
	err = th.Unmarshal(tv)
	if err != nil {
		return liberrors.ErrClientTransportHeaderInvalid{Err: err}
	}

	if th.Protocol != headers.TransportProtocolUDP {
		return liberrors.ErrClientTransportProtocolUnsupported{Value: th.Protocol.String()}
	}

	if th.ServerPorts == nil {
		return liberrors.ErrClientServerPortsNotProvided{}
	}

	if th.ServerPorts[0] == 0 || th.ServerPorts[1] == 0 {
		return liberrors.ErrClientServerPortsZero{}
	}

	if th.ClientPorts == nil {
		return liberrors.ErrClientTransportHeaderInvalid{Err: fmt.Errorf("client ports not provided")}
	}

	if *th.ClientPorts != clientPorts {
		return liberrors.ErrClientClientPortsMismatch{Expected: clientPorts, Value: *th.ClientPorts}
	}

	params.Session = sx.Session
	params.SessionTimeout = sx.Timeout
	params.ClientPorts = *th.ClientPorts
	params.ServerPorts = *th.ServerPorts
	params.SSRC = th.SSRC

	return nil
}

func (c *Client) doPlay(params *SessionParams) error {
	res, err := c.do(&base.Request{
		Method: base.Play,
		URL:    params.BaseURL,
		Header: base.Header{
			"Range": headers.Range{}.Marshal(),
		},
	})
	if err != nil {
		return err
	}

	if res.StatusCode != base.StatusOK {
		return liberrors.ErrClientWrongStatusCode{
			Method:  base.Play,
			Code:    res.StatusCode,
			Message: res.StatusMessage,
		}
	}

	return nil
}
