package runner

import "bytes"

// LineBuffer rebuilds lines from arbitrarily chunked reads of one stream.
// Lines end at '\n'; a '\r' directly before it is part of the terminator,
// even if it arrived in an earlier chunk.
//
// The zero value is ready to use. A LineBuffer is not safe for concurrent use.
type LineBuffer struct {
	pending []byte
}

// Feed appends chunk and calls emit once per completed line, in order,
// without the terminator. After emit fails, the rest of the chunk is still
// split and consumed but no further lines are emitted; the first error is
// returned.
func (b *LineBuffer) Feed(chunk []byte, emit func(string) error) error {
	var err error
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			break
		}
		var line []byte
		if len(b.pending) > 0 {
			line = append(b.pending, chunk[:i]...)
			b.pending = b.pending[:0]
		} else {
			line = chunk[:i]
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		chunk = chunk[i+1:]
		if err == nil {
			err = emit(string(line))
		}
	}
	b.pending = append(b.pending, chunk...)
	return err
}

// Flush emits whatever is pending as a final, unterminated line. It does
// nothing when no bytes are pending.
func (b *LineBuffer) Flush(emit func(string) error) error {
	if len(b.pending) == 0 {
		return nil
	}
	line := string(b.pending)
	b.pending = b.pending[:0]
	return emit(line)
}

// Pending returns the bytes received since the last line boundary.
func (b *LineBuffer) Pending() []byte {
	return b.pending
}
