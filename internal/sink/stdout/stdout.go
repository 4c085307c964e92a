package stdout

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/tidefall/changesum/internal/types"
)

// Sink writes each changelog record as one text line, e.g. "+I[Alice, 12]".
type Sink struct {
	w      *bufio.Writer
	logger *zap.Logger
}

func New(logger *zap.Logger) *Sink {
	return NewWriter(os.Stdout, logger)
}

func NewWriter(w io.Writer, logger *zap.Logger) *Sink {
	logger.Info("Creating stdout sink")
	return &Sink{w: bufio.NewWriter(w), logger: logger}
}

func (s *Sink) Emit(rec types.ChangelogRecord) error {
	_, err := fmt.Fprintf(s.w, "%s[%s, %d]\n", rec.Kind, rec.Row.Key, rec.Row.Value)
	if err != nil {
		return err
	}
	// Flush per record so the stream is watchable live.
	return s.w.Flush()
}

func (s *Sink) Close() error {
	s.logger.Info("Closing stdout sink")
	return s.w.Flush()
}
