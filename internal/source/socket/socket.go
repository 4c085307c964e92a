package socket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReadError marks a failed read from the byte stream. It is fatal for the
// connection; reconnection policy belongs to the caller.
type ReadError struct {
	cause error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("stream read failed: %v", e.cause)
}

func (e *ReadError) Unwrap() error {
	return e.cause
}

// LineReader splits a byte stream into lines terminated by a single
// configurable delimiter byte. Lines come back in exactly the order read;
// a trailing partial line without a delimiter is discarded at stream end.
type LineReader struct {
	r     *bufio.Reader
	delim byte
}

func NewLineReader(r io.Reader, delim byte) *LineReader {
	return &LineReader{r: bufio.NewReader(r), delim: delim}
}

// Next returns the next line without its delimiter. io.EOF signals clean
// stream close; any other error is wrapped in *ReadError.
func (l *LineReader) Next() ([]byte, error) {
	line, err := l.r.ReadBytes(l.delim)
	if err == nil {
		return line[:len(line)-1], nil
	}
	if err == io.EOF {
		// The bytes before EOF never got their delimiter; drop them.
		return nil, io.EOF
	}
	return nil, &ReadError{cause: err}
}

// Source dials a remote byte stream and hands out its lines one at a time.
// It serves a single connection for its whole lifetime.
type Source struct {
	addr        string
	idleTimeout time.Duration
	logger      *zap.Logger
	conn        net.Conn
	lines       *LineReader
}

// Dial connects to addr and prepares a line reader over the connection.
func Dial(ctx context.Context, addr string, lineDelim byte, idleTimeout time.Duration, logger *zap.Logger) (*Source, error) {
	logger.Info("Dialing changelog source",
		zap.String("addr", addr),
		zap.Uint8("line_delimiter", lineDelim),
		zap.Duration("idle_timeout", idleTimeout))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't dial %s", addr)
	}

	s := &Source{
		addr:        addr,
		idleTimeout: idleTimeout,
		logger:      logger,
		conn:        conn,
		lines:       NewLineReader(conn, lineDelim),
	}

	// Unblock a pending read when the context is canceled. The pipeline
	// checks ctx at the read boundary, so a cancel surfaces there.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Info("Connected to changelog source", zap.String("addr", addr))
	return s, nil
}

// NextLine blocks until a full line is available, the stream closes cleanly
// (io.EOF), or reading fails (*ReadError). The idle timeout, when set,
// bounds the wait; a fired deadline is a read failure.
func (s *Source) NextLine(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.idleTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			return nil, &ReadError{cause: err}
		}
	}
	line, err := s.lines.Next()
	if err != nil {
		// A close triggered by cancellation is not a stream failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return line, nil
}

func (s *Source) Close() error {
	s.logger.Info("Closing changelog source", zap.String("addr", s.addr))
	return s.conn.Close()
}
