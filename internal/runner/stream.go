package runner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

const readChunkSize = 32 << 10

// stream pumps one of the child's output pipes. Every chunk is appended to
// the aggregate buffer, echoed, passed to the chunk listener and then split
// into lines for the line listener.
//
// buf is written only by pump and must be read only after pump returns.
type stream struct {
	name    string
	r       io.ReadCloser
	echo    io.Writer // nil when silent
	onChunk func([]byte) error
	onLine  func(string) error
	debug   func(string)

	buf   bytes.Buffer
	lines LineBuffer

	// listenerErr is the first listener failure; after it no more
	// callbacks are made for this stream.
	listenerErr error
}

func newStdoutStream(r io.ReadCloser, echo io.Writer, l Listeners) *stream {
	return &stream{name: "stdout", r: r, echo: echo, onChunk: l.StdoutChunk, onLine: l.StdoutLine, debug: l.Debug}
}

func newStderrStream(r io.ReadCloser, echo io.Writer, l Listeners) *stream {
	return &stream{name: "stderr", r: r, echo: echo, onChunk: l.StderrChunk, onLine: l.StderrLine, debug: l.Debug}
}

// pump reads until EOF, or until the read end is closed by the coordinator
// after the drain grace expired. Both end the stream normally. Only read
// failures are returned; listener failures are kept in listenerErr.
func (s *stream) pump() error {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.r.Read(chunk)
		if n > 0 {
			s.deliver(chunk[:n])
		}
		if err == nil {
			continue
		}
		s.flush()
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", s.name, err)
	}
}

func (s *stream) deliver(chunk []byte) {
	s.buf.Write(chunk)

	if s.echo != nil {
		if _, err := s.echo.Write(chunk); err != nil {
			s.debug("echo of " + s.name + " disabled: " + err.Error())
			s.echo = nil
		}
	}

	if s.listenerErr != nil {
		// Keep the line buffer in step with the aggregate without emitting.
		_ = s.lines.Feed(chunk, discardLine)
		return
	}
	// The read buffer is reused; listeners get their own copy.
	if err := s.onChunk(bytes.Clone(chunk)); err != nil {
		s.listenerErr = err
		_ = s.lines.Feed(chunk, discardLine)
		return
	}
	if err := s.lines.Feed(chunk, s.onLine); err != nil {
		s.listenerErr = err
	}
}

func (s *stream) flush() {
	if s.listenerErr != nil {
		return
	}
	if err := s.lines.Flush(s.onLine); err != nil {
		s.listenerErr = err
	}
}

// seen reports whether any byte arrived on the stream.
func (s *stream) seen() bool {
	return s.buf.Len() > 0
}

func discardLine(string) error { return nil }
