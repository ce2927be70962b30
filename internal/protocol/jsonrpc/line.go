package jsonrpc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Limits constrains line read memory use.
type Limits struct {
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxLineBytes: 8 * 1024 * 1024,
	}
}

// LineReader reads newline-terminated records from a stream.
type LineReader struct {
	r      *bufio.Reader
	limits Limits
}

func NewLineReader(r io.Reader, limits Limits) *LineReader {
	return &LineReader{r: bufio.NewReader(r), limits: limits}
}

// ReadLine returns the next line with the trailing newline stripped.
// End of stream with no pending bytes returns io.EOF unwrapped; a final
// unterminated line is returned as-is.
func (lr *LineReader) ReadLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		line = append(line, chunk...)
		if lr.limits.MaxLineBytes > 0 && len(line) > lr.limits.MaxLineBytes {
			return nil, ErrLineTooLong
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, io.EOF
			}
			break
		}
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// LineWriter writes newline-terminated records and flushes after every
// write. The peer blocks on each record, so buffering a response would
// deadlock the session.
type LineWriter struct {
	w *bufio.Writer
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

func (lw *LineWriter) WriteLine(line []byte) error {
	if bytes.IndexByte(line, '\n') >= 0 {
		return ErrEmbeddedNewline
	}
	if _, err := lw.w.Write(line); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	return lw.w.Flush()
}
