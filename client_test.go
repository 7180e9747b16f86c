package camgrab

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camgrab/pkg/base"
	"github.com/bluenviron/camgrab/pkg/conn"
	"github.com/bluenviron/camgrab/pkg/description"
	"github.com/bluenviron/camgrab/pkg/headers"
	"github.com/bluenviron/camgrab/pkg/liberrors"
)

var testSPS = []byte{
	0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0,
	0x4b, 0x42, 0x00, 0x00, 0x03, 0x00, 0x02, 0x00,
	0x00, 0x03, 0x00, 0x3d, 0x08,
}

var testPPS = []byte{0x68, 0xee, 0x3c, 0x80}

const testSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=Stream\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1; profile-level-id=64000c; " +
	"sprop-parameter-sets=Z2QADKw7ULBLQgAAAwACAAADAD0I,aO48gA==\r\n" +
	"a=control:trackID=0\r\n"

const testSDPNoParameterSets = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=Stream\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1\r\n" +
	"a=control:trackID=0\r\n"

// testCamera is a RTSP server that serves a single connection.
type testCamera struct {
	l    net.Listener
	done chan struct{}
}

func newTestCamera(t *testing.T, handle func(conn *conn.Conn)) *testCamera {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := &testCamera{
		l:    l,
		done: make(chan struct{}),
	}

	go func() {
		defer close(c.done)

		nconn, err2 := l.Accept()
		if err2 != nil {
			return
		}
		defer nconn.Close()

		handle(conn.NewConn(nconn))
	}()

	return c
}

func (c *testCamera) url() string {
	return "rtsp://" + c.l.Addr().String() + "/stream"
}

func (c *testCamera) close() {
	c.l.Close()
	<-c.done
}

func readRequest(t *testing.T, conn *conn.Conn, method base.Method) *base.Request {
	req, err := conn.ReadRequest()
	require.NoError(t, err)
	require.Equal(t, method, req.Method)
	return req
}

func writeResponse(t *testing.T, conn *conn.Conn, req *base.Request, res *base.Response) {
	if res.Header == nil {
		res.Header = make(base.Header)
	}
	if _, ok := res.Header["CSeq"]; !ok {
		res.Header["CSeq"] = req.Header["CSeq"]
	}
	err := conn.WriteResponse(res)
	require.NoError(t, err)
}

func writeDescribeResponse(t *testing.T, conn *conn.Conn, req *base.Request, sdp string) {
	writeResponse(t, conn, req, &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Content-Type": base.HeaderValue{"application/sdp"},
			"Content-Base": base.HeaderValue{req.URL.String() + "/"},
		},
		Body: []byte(sdp),
	})
}

func writeSetupResponse(t *testing.T, conn *conn.Conn, req *base.Request, serverPorts [2]int) [2]int {
	var inTH headers.Transport
	err := inTH.Unmarshal(req.Header["Transport"])
	require.NoError(t, err)
	require.Equal(t, headers.TransportProtocolUDP, inTH.Protocol)
	require.NotNil(t, inTH.ClientPorts)

	v := headers.TransportDeliveryUnicast

	writeResponse(t, conn, req, &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Session": base.HeaderValue{"12345678;timeout=60"},
			"Transport": headers.Transport{
				Protocol:    headers.TransportProtocolUDP,
				Delivery:    &v,
				ClientPorts: inTH.ClientPorts,
				ServerPorts: &serverPorts,
			}.Marshal(),
		},
	})

	return *inTH.ClientPorts
}

func writeOK(t *testing.T, conn *conn.Conn, req *base.Request) {
	writeResponse(t, conn, req, &base.Response{
		StatusCode: base.StatusOK,
	})
}

func TestClientNegotiate(t *testing.T) {
	cam := newTestCamera(t, func(conn *conn.Conn) {
		req := readRequest(t, conn, base.Describe)
		require.Equal(t, "/stream", req.URL.Path)
		require.Equal(t, base.HeaderValue{"application/sdp"}, req.Header["Accept"])
		require.Equal(t, base.HeaderValue{"1"}, req.Header["CSeq"])
		require.Equal(t, base.HeaderValue{"testagent"}, req.Header["User-Agent"])
		writeDescribeResponse(t, conn, req, testSDP)

		req = readRequest(t, conn, base.Setup)
		require.Equal(t, "/stream/trackID=0", req.URL.Path)
		require.Equal(t, base.HeaderValue{"2"}, req.Header["CSeq"])
		require.Equal(t, base.HeaderValue{"RTP/AVP;unicast;client_port=35466-35467"}, req.Header["Transport"])
		writeSetupResponse(t, conn, req, [2]int{6970, 6971})

		req = readRequest(t, conn, base.Play)
		require.Equal(t, "/stream/", req.URL.Path)
		require.Equal(t, base.HeaderValue{"3"}, req.Header["CSeq"])
		require.Equal(t, base.HeaderValue{"12345678"}, req.Header["Session"])
		require.Equal(t, base.HeaderValue{"npt=0-"}, req.Header["Range"])
		writeOK(t, conn, req)

		req = readRequest(t, conn, base.Teardown)
		require.Equal(t, "/stream/", req.URL.Path)
		require.Equal(t, base.HeaderValue{"12345678"}, req.Header["Session"])
		writeOK(t, conn, req)
	})
	defer cam.close()

	var requests []base.Method
	var responses []base.StatusCode
	beforePlayCalled := false

	c := &Client{
		UserAgent: "testagent",
		OnRequest: func(req *base.Request) {
			requests = append(requests, req.Method)
		},
		OnResponse: func(res *base.Response) {
			responses = append(responses, res.StatusCode)
		},
		BeforePlay: func(params *SessionParams) {
			require.Equal(t, [2]int{6970, 6971}, params.ServerPorts)
			beforePlayCalled = true
		},
	}

	params, err := c.Negotiate(context.Background(), base.MustParseURL(cam.url()), [2]int{35466, 35467})
	require.NoError(t, err)
	require.True(t, beforePlayCalled)

	require.True(t, params.ServerIP.Equal(net.ParseIP("127.0.0.1")))
	params.ServerIP = nil

	timeout := uint(60)

	require.Equal(t, &SessionParams{
		Session:               "12345678",
		SessionTimeout:        &timeout,
		ClientPorts:           [2]int{35466, 35467},
		ServerPorts:           [2]int{6970, 6971},
		DescribeContentLength: len(testSDP),
		BaseURL:               base.MustParseURL(cam.url() + "/"),
		MediaURL:              base.MustParseURL(cam.url() + "/trackID=0"),
		Format: &description.H264{
			PayloadType:       96,
			PacketizationMode: 1,
			ProfileLevelID:    "64000C",
			SPS:               testSPS,
			PPS:               testPPS,
		},
	}, params)

	require.NotZero(t, c.BytesSent())
	require.NotZero(t, c.BytesReceived())

	err = c.Close()
	require.NoError(t, err)

	require.Equal(t, []base.Method{base.Describe, base.Setup, base.Play, base.Teardown}, requests)
	require.Equal(t, []base.StatusCode{base.StatusOK, base.StatusOK, base.StatusOK, base.StatusOK}, responses)
}

func TestClientNegotiateErrors(t *testing.T) {
	for _, ca := range []struct {
		name   string
		handle func(t *testing.T, conn *conn.Conn)
		target interface{}
		err    string
	}{
		{
			"describe wrong status",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusNotFound,
				})
			},
			&liberrors.ErrClientWrongStatusCode{},
			"RTSP negotiation failed: DESCRIBE: wrong status code: 404 (Not Found)",
		},
		{
			"describe cseq mismatch",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusOK,
					Header: base.Header{
						"CSeq": base.HeaderValue{"5"},
					},
				})
			},
			&liberrors.ErrClientCSeqMismatch{},
			"RTSP negotiation failed: CSeq mismatch, expected 1, got 5",
		},
		{
			"describe content length missing",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeOK(t, conn, req)
			},
			&liberrors.ErrClientContentLengthMissing{},
			"RTSP negotiation failed: Content-Length header is missing",
		},
		{
			"describe content type unsupported",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusOK,
					Header: base.Header{
						"Content-Type": base.HeaderValue{"text/plain"},
					},
					Body: []byte(testSDP),
				})
			},
			&liberrors.ErrClientContentTypeUnsupported{},
			"RTSP negotiation failed: unsupported Content-Type header '[text/plain]'",
		},
		{
			"describe without h264",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, "v=0\r\n"+
					"o=- 0 0 IN IP4 127.0.0.1\r\n"+
					"s=Stream\r\n"+
					"t=0 0\r\n"+
					"m=audio 0 RTP/AVP 0\r\n"+
					"a=control:trackID=0\r\n")
			},
			&liberrors.ErrClientNoH264Media{},
			"RTSP negotiation failed: the stream doesn't contain any H264 media",
		},
		{
			"setup wrong status",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, testSDP)

				req = readRequest(t, conn, base.Setup)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusUnsupportedTransport,
				})
			},
			&liberrors.ErrClientWrongStatusCode{},
			"RTSP negotiation failed: SETUP: wrong status code: 461 (Unsupported Transport)",
		},
		{
			"setup session missing",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, testSDP)

				req = readRequest(t, conn, base.Setup)
				writeOK(t, conn, req)
			},
			&liberrors.ErrClientSessionHeaderInvalid{},
			"RTSP negotiation failed: invalid session header: value not provided",
		},
		{
			"setup server ports missing",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, testSDP)

				req = readRequest(t, conn, base.Setup)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusOK,
					Header: base.Header{
						"Session":   base.HeaderValue{"12345678"},
						"Transport": base.HeaderValue{"RTP/AVP;unicast;client_port=35466-35467"},
					},
				})

				req = readRequest(t, conn, base.Teardown)
				writeOK(t, conn, req)
			},
			&liberrors.ErrClientServerPortsNotProvided{},
			"RTSP negotiation failed: server ports have not been provided",
		},
		{
			"setup tcp",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, testSDP)

				req = readRequest(t, conn, base.Setup)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusOK,
					Header: base.Header{
						"Session":   base.HeaderValue{"12345678"},
						"Transport": base.HeaderValue{"RTP/AVP/TCP;unicast;interleaved=0-1"},
					},
				})

				req = readRequest(t, conn, base.Teardown)
				writeOK(t, conn, req)
			},
			&liberrors.ErrClientTransportProtocolUnsupported{},
			"RTSP negotiation failed: server replied with unsupported transport protocol RTP/AVP/TCP",
		},
		{
			"setup client ports mismatch",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, testSDP)

				req = readRequest(t, conn, base.Setup)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusOK,
					Header: base.Header{
						"Session": base.HeaderValue{"12345678"},
						"Transport": base.HeaderValue{
							"RTP/AVP;unicast;client_port=40000-40001;server_port=6970-6971",
						},
					},
				})

				req = readRequest(t, conn, base.Teardown)
				writeOK(t, conn, req)
			},
			&liberrors.ErrClientClientPortsMismatch{},
			"RTSP negotiation failed: wrong client ports, expected [35466 35467], got [40000 40001]",
		},
		{
			"play wrong status",
			func(t *testing.T, conn *conn.Conn) {
				req := readRequest(t, conn, base.Describe)
				writeDescribeResponse(t, conn, req, testSDP)

				req = readRequest(t, conn, base.Setup)
				writeSetupResponse(t, conn, req, [2]int{6970, 6971})

				req = readRequest(t, conn, base.Play)
				writeResponse(t, conn, req, &base.Response{
					StatusCode: base.StatusSessionNotFound,
				})

				req = readRequest(t, conn, base.Teardown)
				writeOK(t, conn, req)
			},
			&liberrors.ErrClientWrongStatusCode{},
			"RTSP negotiation failed: PLAY: wrong status code: 454 (Session Not Found)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			cam := newTestCamera(t, func(conn *conn.Conn) {
				ca.handle(t, conn)
			})

			c := &Client{}

			_, err := c.Negotiate(context.Background(), base.MustParseURL(cam.url()), [2]int{35466, 35467})
			require.EqualError(t, err, ca.err)
			require.ErrorIs(t, err, ErrNegotiation)
			require.ErrorAs(t, err, ca.target)

			err = c.Close()
			require.NoError(t, err)

			cam.close()
		})
	}
}

func TestClientNegotiatePortsNotConsecutive(t *testing.T) {
	c := &Client{}

	_, err := c.Negotiate(context.Background(), base.MustParseURL("rtsp://127.0.0.1:8554/stream"), [2]int{35466, 35468})
	require.ErrorIs(t, err, ErrNegotiation)
	require.ErrorAs(t, err, &liberrors.ErrClientUDPPortsNotConsecutive{})

	err = c.Close()
	require.NoError(t, err)
}

func TestClientNegotiateContextCanceled(t *testing.T) {
	cam := newTestCamera(t, func(conn *conn.Conn) {
		readRequest(t, conn, base.Describe)

		// wait until the client closes the connection
		_, err := conn.ReadRequest()
		require.Error(t, err)
	})
	defer cam.close()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	c := &Client{}

	_, err := c.Negotiate(ctx, base.MustParseURL(cam.url()), [2]int{35466, 35467})
	require.ErrorIs(t, err, ErrNegotiation)
	require.True(t, errors.Is(err, context.Canceled))

	c.Close() //nolint:errcheck
}
