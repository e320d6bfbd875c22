package channel

import (
	"io"
	"os"

	"github.com/klauspost/compress/flate"
)

// spillFile backs the portion of a Body's pending data that no longer fits
// comfortably in memory. Writes are flate-compressed as they land on disk;
// once the channel starts draining the spill, no further writes are
// accepted (the channel only ever spills once per body, which matches a
// request body's single producer/single drain lifecycle).
type spillFile struct {
	f       *os.File
	zw      *flate.Writer
	written int64
	draining bool
	zr      io.ReadCloser
}

func newSpillFile() (*spillFile, error) {
	f, err := os.CreateTemp("", "servkit-body-spill-*")
	if err != nil {
		return nil, err
	}
	// Unlink immediately: the file descriptor keeps the data available to
	// us for the lifetime of the request without leaving a stray file
	// behind if the process is killed mid-request.
	os.Remove(f.Name())
	zw, err := flate.NewWriter(f, flate.BestSpeed)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &spillFile{f: f, zw: zw}, nil
}

func (s *spillFile) Write(p []byte) (int, error) {
	if s.draining {
		panic("channel: write to spill file after draining started")
	}
	n, err := s.zw.Write(p)
	s.written += int64(n)
	return n, err
}

// startDraining flushes pending compressed writes and rewinds the file for
// reading. Must be called exactly once, before any Read.
func (s *spillFile) startDraining() error {
	if s.draining {
		return nil
	}
	s.draining = true
	if err := s.zw.Close(); err != nil {
		return err
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.zr = flate.NewReader(s.f)
	return nil
}

func (s *spillFile) Read(p []byte) (int, error) {
	return s.zr.Read(p)
}

func (s *spillFile) Close() error {
	if s.zr != nil {
		s.zr.Close()
	}
	return s.f.Close()
}
