package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tidefall/changesum/internal/aggregate"
	"github.com/tidefall/changesum/internal/decode"
	"github.com/tidefall/changesum/internal/types"
)

// LineSource hands out delimited lines in receipt order. NextLine blocks
// until a line is available, returns io.EOF on clean stream close, and any
// other error is fatal for the stream.
type LineSource interface {
	NextLine(ctx context.Context) ([]byte, error)
}

// Pipeline drives read -> decode -> apply -> emit -> sink over a single
// logical stream. Everything past the read is synchronous; the aggregation
// state is owned by the one goroutine running the loop.
type Pipeline struct {
	source  LineSource
	decoder *decode.Decoder
	state   *aggregate.State
	sink    types.Sink
	logger  *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats counts what the pipeline has seen so far. Non-fatal conditions show
// up here instead of stopping the loop.
type Stats struct {
	LinesRead          int64
	LinesSkipped       int64
	RetractionsIgnored int64
	RecordsEmitted     int64
	Keys               int
}

func New(source LineSource, decoder *decode.Decoder, sink types.Sink, logger *zap.Logger) *Pipeline {
	logger.Info("Creating pipeline")
	return &Pipeline{
		source:  source,
		decoder: decoder,
		state:   aggregate.NewState(),
		sink:    sink,
		logger:  logger,
	}
}

// Run processes the stream until clean end-of-stream (nil), context
// cancellation, or a fatal error. Malformed lines and retractions of
// unknown values are reported and skipped; read failures, overflow, and
// sink failures stop the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("Starting pipeline loop")
	for {
		line, err := p.source.NextLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("Stream closed cleanly", zap.Int64("lines_read", p.linesRead()))
				return nil
			}
			if ctx.Err() != nil {
				p.logger.Info("Pipeline canceled", zap.Int64("lines_read", p.linesRead()))
				return ctx.Err()
			}
			return pkgerrors.Wrapf(err, "reading line %d", p.linesRead()+1)
		}
		lineNo := p.bumpLinesRead()

		kind, row, err := p.decoder.Decode(line)
		if err != nil {
			var decodeErr *decode.Error
			if errors.As(err, &decodeErr) {
				p.logger.Warn("Skipping malformed line",
					zap.Int64("line", lineNo),
					zap.ByteString("content", line),
					zap.Error(err))
				p.bumpSkipped()
				continue
			}
			return pkgerrors.Wrapf(err, "decoding line %d", lineNo)
		}

		transition, err := p.state.Apply(kind, row)
		if err != nil {
			var retraction *aggregate.RetractionError
			if errors.As(err, &retraction) {
				p.logger.Warn("Ignoring retraction of unknown value",
					zap.Int64("line", lineNo),
					zap.String("key", retraction.Key),
					zap.Int64("value", retraction.Value))
				p.bumpRetractionsIgnored()
				continue
			}
			return pkgerrors.Wrapf(err, "applying line %d", lineNo)
		}
		p.trackKeys(transition)

		for _, rec := range aggregate.Records(transition) {
			p.logger.Debug("Emitting changelog record",
				zap.Stringer("kind", rec.Kind),
				zap.String("key", rec.Row.Key),
				zap.Int64("value", rec.Row.Value))
			if err := p.sink.Emit(rec); err != nil {
				return pkgerrors.Wrapf(err, "emitting %v for line %d", rec.Kind, lineNo)
			}
			p.bumpEmitted()
		}
	}
}

// Sums snapshots the current per-key aggregates. Only safe once Run has
// returned; the state is not synchronized with the running loop.
func (p *Pipeline) Sums() map[string]int64 {
	return p.state.Snapshot()
}

// Status is safe to call from other goroutines while Run is looping; the
// aggregation state itself stays private to the loop.
func (p *Pipeline) Status() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) trackKeys(t aggregate.Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch t.Kind {
	case aggregate.Appeared:
		p.stats.Keys++
	case aggregate.Disappeared:
		p.stats.Keys--
	}
}

func (p *Pipeline) linesRead() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.LinesRead
}

func (p *Pipeline) bumpLinesRead() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.LinesRead++
	return p.stats.LinesRead
}

func (p *Pipeline) bumpSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.LinesSkipped++
}

func (p *Pipeline) bumpRetractionsIgnored() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.RetractionsIgnored++
}

func (p *Pipeline) bumpEmitted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.RecordsEmitted++
}
