package sink

import (
	"bufio"
	"os"
)

const (
	fileWriteBufferSize = 64 * 1024
)

// File is a Sink that writes to a file.
// The file is created or truncated.
type File struct {
	f  *os.File
	bw *bufio.Writer
}

// NewFile allocates a File.
func NewFile(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &File{
		f:  f,
		bw: bufio.NewWriterSize(f, fileWriteBufferSize),
	}, nil
}

// Append implements Sink.
func (s *File) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	_, err := s.bw.Write(chunk)
	return err
}

// Close flushes pending data and closes the file.
func (s *File) Close() error {
	err := s.bw.Flush()
	err2 := s.f.Close()
	if err != nil {
		return err
	}
	return err2
}
