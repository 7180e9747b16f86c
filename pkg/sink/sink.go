// Package sink contains destinations of Annex-B byte streams.
package sink

import (
	"context"
	"os"
	"strings"
)

// Sink receives Annex-B chunks in order.
type Sink interface {
	// Append appends a chunk. Empty chunks are ignored.
	Append(chunk []byte) error
}

// Closer is a Sink that must be closed when no longer needed.
type Closer interface {
	Sink
	Close() error
}

// Open opens a sink from a target, that can be
// - "-", standard output
// - a ws:// or wss:// URL
// - a file path
func Open(ctx context.Context, target string) (Closer, error) {
	switch {
	case target == "-":
		return NewWriter(os.Stdout), nil

	case strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://"):
		s := &WebSocket{
			URL: target,
		}
		err := s.Initialize(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return NewFile(target)
	}
}
