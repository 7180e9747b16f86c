// Command camgrab captures a H264 stream from a RTSP camera and saves it
// as an Annex-B byte stream, that can be played with ffplay or VLC.
//
// Usage of camgrab:
//
//	-url string
//	  RTSP URL of the camera
//	-out string
//	  destination: a file path, "-" for standard output or a ws:// URL (default "out.h264")
//	-ports string
//	  local RTP-RTCP ports, for instance 60784-60785. 0 picks a random pair (default "0")
//	-count int
//	  number of datagrams to capture, 0 means until interrupted (default 500)
//
// Example:
//
//	./camgrab -url rtsp://192.168.1.10:554/stream1 -out out.h264 -count 2000
//	./camgrab -url rtsp://192.168.1.10:554/stream1 -out - -count 0 | ffplay -f h264 -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/q191201771/naza/pkg/nazalog"

	"github.com/bluenviron/camgrab"
	"github.com/bluenviron/camgrab/pkg/description"
	"github.com/bluenviron/camgrab/pkg/sink"
)

type config struct {
	url         string
	out         string
	ports       [2]int
	count       int
	timeout     time.Duration
	logLevel    nazalog.Level
	logFile     string
	sps         []byte
	pps         []byte
	userAgent   string
	extensions  bool
	readBufSize int
}

var logLevels = map[string]nazalog.Level{
	"trace": nazalog.LevelTrace,
	"debug": nazalog.LevelDebug,
	"info":  nazalog.LevelInfo,
	"warn":  nazalog.LevelWarn,
	"error": nazalog.LevelError,
	"none":  nazalog.LevelLogNothing,
}

func parsePorts(s string) ([2]int, error) {
	if s == "" || s == "0" {
		return [2]int{}, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return [2]int{}, fmt.Errorf("invalid ports (%v)", s)
	}

	var ports [2]int
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil || v == 0 {
			return [2]int{}, fmt.Errorf("invalid ports (%v)", s)
		}
		ports[i] = int(v)
	}

	if ports[1] != ports[0]+1 {
		return [2]int{}, fmt.Errorf("RTCP port must be RTP port + 1 (%v)", s)
	}

	return ports, nil
}

func parseFlag(args []string) (*config, error) {
	fs := flag.NewFlagSet("camgrab", flag.ContinueOnError)

	u := fs.String("url", "", "RTSP URL of the camera")
	out := fs.String("out", "out.h264", `destination: a file path, "-" for standard output or a ws:// URL`)
	ports := fs.String("ports", "0", "local RTP-RTCP ports, for instance 60784-60785. 0 picks a random pair")
	count := fs.Int("count", 500, "number of datagrams to capture, 0 means until interrupted")
	timeout := fs.Duration("timeout", 15*time.Second, "maximum time without receiving datagrams")
	logLevel := fs.String("loglevel", "info", "log level: trace, debug, info, warn, error or none")
	logFile := fs.String("logfile", "", "write logs to a file instead of standard output")
	sprop := fs.String("sprop", "", "override sprop-parameter-sets, base64 SPS and PPS separated by a comma")
	userAgent := fs.String("user-agent", "", "User-Agent header")
	ext := fs.Bool("ext", false, "accept RTP header extensions")
	readBufSize := fs.Int("udp-read-buffer", 0, "size of the kernel receive buffer of the RTP socket")

	err := fs.Parse(args)
	if err != nil {
		return nil, err
	}

	if *u == "" {
		fs.Usage()
		return nil, fmt.Errorf("-url is required")
	}

	conf := &config{
		url:         *u,
		out:         *out,
		count:       *count,
		timeout:     *timeout,
		logFile:     *logFile,
		userAgent:   *userAgent,
		extensions:  *ext,
		readBufSize: *readBufSize,
	}

	if conf.count == 0 {
		conf.count = -1
	} else if conf.count < 0 {
		return nil, fmt.Errorf("invalid count (%d)", conf.count)
	}

	conf.ports, err = parsePorts(*ports)
	if err != nil {
		return nil, err
	}

	var ok bool
	conf.logLevel, ok = logLevels[strings.ToLower(*logLevel)]
	if !ok {
		return nil, fmt.Errorf("invalid log level (%v)", *logLevel)
	}

	if *sprop != "" {
		conf.sps, conf.pps, err = description.ParseSpropParameterSets(*sprop)
		if err != nil {
			return nil, err
		}
	}

	return conf, nil
}

func initLog(conf *config) error {
	return nazalog.Init(func(option *nazalog.Option) {
		option.Level = conf.logLevel
		option.IsRotateDaily = false

		if conf.logFile != "" {
			option.Filename = conf.logFile
			option.IsToStdout = false
		} else if conf.out == "-" {
			// standard output carries the stream
			option.IsToStdout = false
		}
	})
}

func run(conf *config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := sink.Open(ctx, conf.out)
	if err != nil {
		return err
	}

	c := &camgrab.Capture{
		URL:               conf.url,
		Sink:              s,
		ClientPorts:       conf.ports,
		PacketCount:       conf.count,
		IdleTimeout:       conf.timeout,
		SPS:               conf.sps,
		PPS:               conf.pps,
		ExtensionEnable:   conf.extensions,
		UDPReadBufferSize: conf.readBufSize,
		UserAgent:         conf.userAgent,
	}

	err = c.Run(ctx)

	// interruption is the way to stop an unbounded capture
	if errors.Is(err, context.Canceled) {
		nazalog.Infof("interrupted")
		err = nil
	}

	cerr := s.Close()
	if err == nil {
		err = cerr
	}

	return err
}

func main() {
	conf, err := parseFlag(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		_, _ = fmt.Fprintf(os.Stderr, "ERR: %v\n", err)
		os.Exit(2)
	}

	err = initLog(conf)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init nazalog failed. err=%+v\n", err)
		os.Exit(1)
	}
	defer nazalog.Sync()

	err = run(conf)
	if err != nil {
		nazalog.Errorf("%v", err)
		nazalog.Sync()
		_, _ = fmt.Fprintf(os.Stderr, "ERR: %v\n", err)
		os.Exit(1)
	}
}
