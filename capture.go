package camgrab

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/bluenviron/camgrab/pkg/base"
	"github.com/bluenviron/camgrab/pkg/liberrors"
	"github.com/bluenviron/camgrab/pkg/readbuffer"
	"github.com/bluenviron/camgrab/pkg/rtph264"
	"github.com/bluenviron/camgrab/pkg/rtplossdetector"
	"github.com/bluenviron/camgrab/pkg/sink"
)

const (
	captureDefaultPacketCount = 500
	captureDefaultIdleTimeout = 15 * time.Second

	// maximum size of a UDP datagram that can be received.
	udpMaxPayloadSize = 65536

	// attempts made to find a free random port pair.
	listenAttempts = 20
)

func randInRange(maxVal int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxVal+1)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// CaptureStats are statistics of a capture.
type CaptureStats struct {
	// datagrams received from the server.
	Received uint64

	// datagrams received from other hosts and discarded.
	Ignored uint64

	// datagrams that produced output.
	Accepted uint64

	// duplicated or out of order datagrams.
	Dropped uint64

	// sequence numbers skipped between accepted datagrams.
	Lost uint64

	// bytes written to the sink, including parameter sets.
	BytesWritten uint64
}

// Capture reads a H264 stream from a RTSP camera and writes it to a sink.
type Capture struct {
	//
	// target
	//
	// RTSP URL of the camera. It is required.
	URL string
	// destination of the Annex-B stream. It is required.
	Sink sink.Sink

	//
	// capture parameters (all optional)
	//
	// local RTP and RTCP ports. RTCP port must be RTP port + 1.
	// It defaults to a random pair.
	ClientPorts [2]int
	// number of datagrams to receive before stopping.
	// It defaults to 500. A negative value means no limit.
	PacketCount int
	// maximum time to wait for a datagram.
	// It defaults to 15 seconds.
	IdleTimeout time.Duration
	// SPS and PPS written at the beginning of the stream.
	// They default to the ones in the session description.
	SPS []byte
	PPS []byte
	// allow RTP header extensions.
	ExtensionEnable bool
	// size of the kernel receive buffer of the RTP socket.
	// It defaults to the operating system default.
	UDPReadBufferSize int

	//
	// RTSP parameters (all optional)
	//
	// timeout of read operations on the control connection.
	ReadTimeout time.Duration
	// timeout of write operations on the control connection.
	WriteTimeout time.Duration
	// User-Agent header.
	UserAgent string

	//
	// system functions (all optional)
	//
	// function used to initialize the TCP connection.
	DialContext func(ctx context.Context, network, address string) (net.Conn, error)
	// function used to initialize UDP listeners.
	// It defaults to net.ListenPacket.
	ListenPacket func(network, address string) (net.PacketConn, error)

	//
	// callbacks (all optional)
	//
	// called before every request.
	OnRequest func(*base.Request)
	// called after every response.
	OnResponse func(*base.Response)

	id       string
	rtpConn  net.PacketConn
	rtcpConn net.PacketConn
	stats    CaptureStats
}

func (c *Capture) initialize() error {
	if c.URL == "" {
		return fmt.Errorf("URL not provided")
	}
	if c.Sink == nil {
		return fmt.Errorf("sink not provided")
	}
	if (c.SPS == nil) != (c.PPS == nil) {
		return fmt.Errorf("SPS and PPS must be provided together")
	}
	if c.PacketCount == 0 {
		c.PacketCount = captureDefaultPacketCount
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = captureDefaultIdleTimeout
	}
	if c.ListenPacket == nil {
		c.ListenPacket = net.ListenPacket
	}
	if c.OnRequest == nil {
		c.OnRequest = func(*base.Request) {}
	}
	if c.OnResponse == nil {
		c.OnResponse = func(*base.Response) {}
	}

	c.id = newID()
	c.stats = CaptureStats{}
	return nil
}

// Stats returns statistics of the last run.
func (c *Capture) Stats() CaptureStats {
	return c.stats
}

// Run negotiates the stream, then receives datagrams until PacketCount
// datagrams have been received, ctx is canceled or an error occurs.
func (c *Capture) Run(ctx context.Context) error {
	err := c.initialize()
	if err != nil {
		return err
	}

	u, err := base.ParseURL(c.URL)
	if err != nil {
		return err
	}

	err = c.listen()
	if err != nil {
		return err
	}
	defer c.rtcpConn.Close()
	defer c.rtpConn.Close()

	clientPorts := [2]int{
		c.rtpConn.LocalAddr().(*net.UDPAddr).Port,
		c.rtcpConn.LocalAddr().(*net.UDPAddr).Port,
	}

	Log.Infof("[%s] connecting to %s, client ports %d-%d",
		c.id, u.CloneWithoutCredentials(), clientPorts[0], clientPorts[1])

	client := &Client{
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		UserAgent:    c.UserAgent,
		DialContext:  c.DialContext,
		OnRequest: func(req *base.Request) {
			Log.Debugf("[%s] c->s %s %s", c.id, req.Method, req.URL.CloneWithoutCredentials())
			c.OnRequest(req)
		},
		OnResponse: func(res *base.Response) {
			Log.Debugf("[%s] s->c %d %s", c.id, res.StatusCode, res.StatusMessage)
			c.OnResponse(res)
		},
		BeforePlay: c.punch,
	}
	defer client.Close() //nolint:errcheck

	params, err := client.Negotiate(ctx, u, clientPorts)
	if err != nil {
		return err
	}

	Log.Infof("[%s] session %s established, server %s ports %d-%d",
		c.id, params.Session, params.ServerIP, params.ServerPorts[0], params.ServerPorts[1])

	err = c.writeParameterSets(params)
	if err != nil {
		return err
	}

	err = c.readLoop(ctx, params)

	Log.Infof("[%s] capture finished, received=%d ignored=%d accepted=%d dropped=%d lost=%d written=%d",
		c.id, c.stats.Received, c.stats.Ignored, c.stats.Accepted, c.stats.Dropped, c.stats.Lost,
		c.stats.BytesWritten)

	return err
}

func (c *Capture) listen() error {
	if c.ClientPorts != [2]int{} {
		if c.ClientPorts[1] != c.ClientPorts[0]+1 {
			return liberrors.ErrClientUDPPortsNotConsecutive{}
		}
		return c.listenPair(c.ClientPorts[0])
	}

	var err error

	for i := 0; i < listenAttempts; i++ {
		var v int
		v, err = randInRange((65535 - 10000) / 2)
		if err != nil {
			return err
		}

		// RTP port must be even
		err = c.listenPair(v*2 + 10000)
		if err == nil {
			return nil
		}
	}

	return err
}

func (c *Capture) listenPair(rtpPort int) error {
	rtpConn, err := c.ListenPacket("udp", ":"+strconv.FormatInt(int64(rtpPort), 10))
	if err != nil {
		return err
	}

	rtcpConn, err := c.ListenPacket("udp", ":"+strconv.FormatInt(int64(rtpPort+1), 10))
	if err != nil {
		rtpConn.Close()
		return err
	}

	if c.UDPReadBufferSize != 0 {
		err = readbuffer.Set(rtpConn, c.UDPReadBufferSize)
		if err != nil {
			rtpConn.Close()
			rtcpConn.Close()
			return err
		}
	}

	c.rtpConn = rtpConn
	c.rtcpConn = rtcpConn
	return nil
}

// punch opens the NAT mapping towards the server ports, so that
// datagrams sent by the server can reach the client.
func (c *Capture) punch(params *SessionParams) {
	byts, _ := (&rtp.Packet{Header: rtp.Header{Version: 2}}).Marshal()
	_, err := c.rtpConn.WriteTo(byts, &net.UDPAddr{IP: params.ServerIP, Port: params.ServerPorts[0]})
	if err != nil {
		Log.Warnf("[%s] unable to send RTP punch packet: %v", c.id, err)
	}

	byts, _ = (&rtcp.ReceiverReport{}).Marshal()
	_, err = c.rtcpConn.WriteTo(byts, &net.UDPAddr{IP: params.ServerIP, Port: params.ServerPorts[1]})
	if err != nil {
		Log.Warnf("[%s] unable to send RTCP punch packet: %v", c.id, err)
	}
}

func (c *Capture) writeParameterSets(params *SessionParams) error {
	sps, pps := c.SPS, c.PPS
	if sps == nil {
		sps, pps = params.Format.SPS, params.Format.PPS
	}

	if sps == nil || pps == nil {
		Log.Warnf("[%s] SPS and PPS are not available, the stream may not be decodable until they are received", c.id)
		return nil
	}

	err := WriteParameterSets(c.Sink, sps, pps)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSink, err)
	}

	c.stats.BytesWritten += uint64(4 + len(sps) + 4 + len(pps))
	return nil
}

func (c *Capture) readLoop(ctx context.Context, params *SessionParams) error {
	r := &rtph264.Reassembler{
		ExtensionEnable: c.ExtensionEnable,
		OnOutOfOrder: func(seqNum uint16, lastSeqNum uint16) {
			Log.Warnf("[%s] discarding packet %d, last accepted is %d", c.id, seqNum, lastSeqNum)
		},
	}
	err := r.Init()
	if err != nil {
		return err
	}

	var ld rtplossdetector.LossDetector

	stop := context.AfterFunc(ctx, func() {
		c.rtpConn.Close()
	})
	defer stop()

	buf := make([]byte, udpMaxPayloadSize)

	for c.PacketCount < 0 || c.stats.Received < uint64(c.PacketCount) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.rtpConn.SetReadDeadline(time.Now().Add(c.IdleTimeout)) //nolint:errcheck
		n, addr, err := c.rtpConn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if c.stats.Received == 0 {
					return fmt.Errorf("%w: %w", ErrCaptureTimeout, liberrors.ErrClientNoUDPPacketsRecently{})
				}
				return fmt.Errorf("%w: %w", ErrCaptureTimeout, liberrors.ErrClientUDPTimeout{})
			}
			return err
		}

		uaddr, ok := addr.(*net.UDPAddr)
		if !ok || !uaddr.IP.Equal(params.ServerIP) {
			c.stats.Ignored++
			continue
		}

		c.stats.Received++

		chunk, err := r.Process(buf[:n])
		if err != nil {
			return err
		}

		rs := r.Stats()
		if rs.Accepted != c.stats.Accepted {
			seqNum, _ := r.LastSequenceNumber()
			if lost := ld.Process(seqNum); lost != 0 {
				c.stats.Lost += lost
				Log.Debugf("[%s] %d packets lost before %d", c.id, lost, seqNum)
			}
		}
		c.stats.Accepted = rs.Accepted
		c.stats.Dropped = rs.Dropped

		if len(chunk) == 0 {
			continue
		}

		err = c.Sink.Append(chunk)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSink, err)
		}

		c.stats.BytesWritten += uint64(len(chunk))
	}

	return nil
}
