package sink

import (
	"io"
)

// Writer is a Sink that writes through to a io.Writer, like standard output or a named pipe.
type Writer struct {
	w io.Writer
}

// NewWriter allocates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w: w,
	}
}

// Append implements Sink.
func (s *Writer) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	_, err := s.w.Write(chunk)
	return err
}

// Close implements Closer.
// The underlying writer is left open.
func (s *Writer) Close() error {
	if f, ok := s.w.(interface{ Sync() error }); ok {
		f.Sync() //nolint:errcheck
	}
	return nil
}
