package rtph264

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/bluenviron/camgrab/pkg/rtpheader"
)

func mergeBytes(vals ...[]byte) []byte {
	size := 0
	for _, v := range vals {
		size += len(v)
	}
	res := make([]byte, size)

	pos := 0
	for _, v := range vals {
		n := copy(res[pos:], v)
		pos += n
	}

	return res
}

func datagram(seqNum uint16, marker bool, payload []byte) []byte {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    96,
			SequenceNumber: seqNum,
			Timestamp:      2289527317,
			SSRC:           0x9dbb7812,
		},
		Payload: payload,
	}
	byts, err := pkt.Marshal()
	if err != nil {
		panic(err)
	}
	return byts
}

var casesReassemble = []struct {
	name      string
	datagrams [][]byte
	stream    []byte
}{
	{
		"single idr",
		[][]byte{
			datagram(17645, true, []byte{0x65, 0x01, 0x02, 0x03}),
		},
		[]byte{0x00, 0x00, 0x01, 0x65, 0x01, 0x02, 0x03},
	},
	{
		"parameter sets then slice",
		[][]byte{
			datagram(100, false, []byte{0x67, 0x42, 0xc0, 0x28}),
			datagram(101, false, []byte{0x68, 0xce, 0x3c, 0x80}),
			datagram(102, false, []byte{0x06, 0x05, 0x01}),
			datagram(103, true, []byte{0x41, 0x9a}),
		},
		[]byte{
			0x00, 0x00, 0x01, 0x67, 0x42, 0xc0, 0x28,
			0x00, 0x00, 0x01, 0x68, 0xce, 0x3c, 0x80,
			0x00, 0x00, 0x01, 0x06, 0x05, 0x01,
			0x00, 0x00, 0x01, 0x41, 0x9a,
		},
	},
	{
		"fragmented",
		[][]byte{
			datagram(200, false, mergeBytes(
				[]byte{0x7c, 0x85},
				bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03}, 8),
			)),
			datagram(201, false, mergeBytes(
				[]byte{0x7c, 0x05},
				bytes.Repeat([]byte{0x04, 0x05}, 4),
			)),
			datagram(202, true, []byte{0x7c, 0x45, 0x06, 0x07}),
		},
		mergeBytes(
			[]byte{0x00, 0x00, 0x01, 0x65},
			bytes.Repeat([]byte{0x00, 0x01, 0x02, 0x03}, 8),
			bytes.Repeat([]byte{0x04, 0x05}, 4),
			[]byte{0x06, 0x07},
		),
	},
	{
		"fragmented then single",
		[][]byte{
			datagram(300, false, []byte{0x5c, 0x81, 0xaa}),
			datagram(301, true, []byte{0x5c, 0x41, 0xbb}),
			datagram(302, true, []byte{0x41, 0xcc}),
		},
		[]byte{
			0x00, 0x00, 0x01, 0x41, 0xaa, 0xbb,
			0x00, 0x00, 0x01, 0x41, 0xcc,
		},
	},
}

func TestReassemblerProcess(t *testing.T) {
	for _, ca := range casesReassemble {
		t.Run(ca.name, func(t *testing.T) {
			r := &Reassembler{}
			err := r.Init()
			require.NoError(t, err)

			var stream []byte

			for _, dg := range ca.datagrams {
				clone := append([]byte(nil), dg...)

				var chunk []byte
				chunk, err = r.Process(dg)
				require.NoError(t, err)

				// test input integrity
				require.Equal(t, clone, dg)

				stream = append(stream, chunk...)
			}

			require.Equal(t, ca.stream, stream)
			require.Equal(t, Stats{
				Accepted: uint64(len(ca.datagrams)),
				Bytes:    uint64(len(ca.stream)),
			}, r.Stats())
		})
	}
}

func TestReassemblerFUStartEnd(t *testing.T) {
	r := &Reassembler{}
	err := r.Init()
	require.NoError(t, err)

	chunk1, err := r.Process(datagram(1000, false, []byte{0x7c, 0x85, 0xaa, 0xbb}))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x65, 0xaa, 0xbb}, chunk1)

	chunk2, err := r.Process(datagram(1001, true, []byte{0x7c, 0x45, 0xcc, 0xdd}))
	require.NoError(t, err)
	require.Equal(t, []byte{0xcc, 0xdd}, chunk2)
}

func TestReassemblerOutOfOrder(t *testing.T) {
	var dropped [][2]uint16

	r := &Reassembler{
		OnOutOfOrder: func(seqNum uint16, lastSeqNum uint16) {
			dropped = append(dropped, [2]uint16{seqNum, lastSeqNum})
		},
	}
	err := r.Init()
	require.NoError(t, err)

	chunk, err := r.Process(datagram(10, false, []byte{0x41, 0x01}))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x41, 0x01}, chunk)

	chunk, err = r.Process(datagram(9, false, []byte{0x41, 0x02}))
	require.NoError(t, err)
	require.Empty(t, chunk)

	seqNum, ok := r.LastSequenceNumber()
	require.True(t, ok)
	require.Equal(t, uint16(10), seqNum)

	chunk, err = r.Process(datagram(10, false, []byte{0x41, 0x03}))
	require.NoError(t, err)
	require.Empty(t, chunk)

	chunk, err = r.Process(datagram(11, false, []byte{0x41, 0x04}))
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x41, 0x04}, chunk)

	require.Equal(t, [][2]uint16{{9, 10}, {10, 10}}, dropped)
	require.Equal(t, Stats{Accepted: 2, Dropped: 2, Bytes: 10}, r.Stats())
}

func TestReassemblerFirstPacketZero(t *testing.T) {
	r := &Reassembler{}
	err := r.Init()
	require.NoError(t, err)

	_, ok := r.LastSequenceNumber()
	require.False(t, ok)

	chunk, err := r.Process(datagram(0, false, []byte{0x41, 0x01}))
	require.NoError(t, err)
	require.NotEmpty(t, chunk)

	chunk, err = r.Process(datagram(1, false, []byte{0x41, 0x02}))
	require.NoError(t, err)
	require.NotEmpty(t, chunk)
}

func TestReassemblerNoWraparound(t *testing.T) {
	r := &Reassembler{}
	err := r.Init()
	require.NoError(t, err)

	_, err = r.Process(datagram(65535, false, []byte{0x41, 0x01}))
	require.NoError(t, err)

	chunk, err := r.Process(datagram(0, false, []byte{0x41, 0x02}))
	require.NoError(t, err)
	require.Empty(t, chunk)
}

func TestReassemblerPadding(t *testing.T) {
	r := &Reassembler{}
	err := r.Init()
	require.NoError(t, err)

	chunk, err := r.Process([]byte{
		0xa0, 0x60, 0x00, 0x0c, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x02, 0x65, 0xaa, 0x00, 0x00,
		0x03,
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x65, 0xaa}, chunk)
}

func TestReassemblerExtension(t *testing.T) {
	dg := []byte{
		0x90, 0x60, 0x00, 0x0b, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x02, 0xbe, 0xde, 0x00, 0x01,
		0x11, 0x22, 0x33, 0x44, 0x65, 0xaa,
	}

	r := &Reassembler{}
	err := r.Init()
	require.NoError(t, err)

	_, err = r.Process(dg)
	require.Equal(t, ErrExtensionNotSupported, err)

	_, ok := r.LastSequenceNumber()
	require.False(t, ok)

	r = &Reassembler{ExtensionEnable: true}
	err = r.Init()
	require.NoError(t, err)

	chunk, err := r.Process(dg)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x65, 0xaa}, chunk)
}

func TestReassemblerErrors(t *testing.T) {
	for _, ca := range []struct {
		name     string
		datagram []byte
		check    func(t *testing.T, err error)
	}{
		{
			"truncated",
			[]byte{0x80, 0x60, 0x00},
			func(t *testing.T, err error) {
				require.ErrorIs(t, err, rtpheader.ErrTruncated)
			},
		},
		{
			"bad version",
			[]byte{
				0xc0, 0x60, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
				0x00, 0x00, 0x00, 0x02, 0x65,
			},
			func(t *testing.T, err error) {
				require.Equal(t, rtpheader.ErrBadVersion{Version: 3}, err)
			},
		},
		{
			"empty payload",
			datagram(1, false, nil),
			func(t *testing.T, err error) {
				require.Equal(t, ErrPayloadEmpty, err)
			},
		},
		{
			"mtap16",
			datagram(1, false, []byte{0x1a, 0x00, 0x01}),
			func(t *testing.T, err error) {
				var aerr ErrUnsupportedAggregation
				require.True(t, errors.As(err, &aerr))
				require.Equal(t, h264.NALUTypeMTAP16, aerr.Type)
			},
		},
		{
			"stap-a",
			datagram(1, false, []byte{0x18, 0x00, 0x02, 0xaa, 0xbb}),
			func(t *testing.T, err error) {
				var aerr ErrUnsupportedAggregation
				require.True(t, errors.As(err, &aerr))
			},
		},
		{
			"reserved",
			datagram(1, false, []byte{0x1f, 0x00}),
			func(t *testing.T, err error) {
				var rerr ErrReserved
				require.True(t, errors.As(err, &rerr))
			},
		},
		{
			"fu-a truncated",
			datagram(1, false, []byte{0x7c}),
			func(t *testing.T, err error) {
				require.Equal(t, ErrInvalidFUState, err)
			},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			r := &Reassembler{}
			err := r.Init()
			require.NoError(t, err)

			chunk, err := r.Process(ca.datagram)
			require.Nil(t, chunk)
			ca.check(t, err)

			require.Equal(t, Stats{}, r.Stats())
		})
	}
}

func TestReassemblerClassifyBeforeSequenceCheck(t *testing.T) {
	r := &Reassembler{}
	err := r.Init()
	require.NoError(t, err)

	_, err = r.Process(datagram(10, false, []byte{0x41, 0x01}))
	require.NoError(t, err)

	// an unsupported packet is reported even when it is out of order
	_, err = r.Process(datagram(5, false, []byte{0x1a, 0x00}))
	require.Error(t, err)
}

func FuzzReassemblerProcess(f *testing.F) {
	for _, ca := range casesReassemble {
		for _, dg := range ca.datagrams {
			f.Add(dg)
		}
	}

	f.Fuzz(func(t *testing.T, b []byte) {
		r := &Reassembler{ExtensionEnable: true}
		err := r.Init()
		require.NoError(t, err)

		r.Process(b) //nolint:errcheck
	})
}
