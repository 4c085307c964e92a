package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tidefall/changesum/internal/types"
)

// Sink materializes the changelog into a Postgres table with columns
// (key text primary key, value bigint). Inserts and update-afters upsert,
// deletes remove the row, update-befores carry no new state and are skipped;
// replaying the stream converges to the same table.
type Sink struct {
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

func New(ctx context.Context, dsn, table string, logger *zap.Logger) (*Sink, error) {
	logger.Info("Creating Postgres sink", zap.String("table", table))

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create connection pool")
	}

	ddl := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (key text PRIMARY KEY, value bigint NOT NULL)", table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, "couldn't ensure table %s", table)
	}

	return &Sink{pool: pool, table: table, logger: logger}, nil
}

func (s *Sink) Emit(rec types.ChangelogRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch rec.Kind {
	case types.KindInsert, types.KindUpdateAfter:
		query := fmt.Sprintf(
			"INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value",
			s.table)
		if _, err := s.pool.Exec(ctx, query, rec.Row.Key, rec.Row.Value); err != nil {
			return errors.Wrapf(err, "upserting key %q", rec.Row.Key)
		}
	case types.KindUpdateBefore:
		// The matching UpdateAfter carries the new state.
		return nil
	case types.KindDelete:
		query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table)
		if _, err := s.pool.Exec(ctx, query, rec.Row.Key); err != nil {
			return errors.Wrapf(err, "deleting key %q", rec.Row.Key)
		}
	}

	s.logger.Debug("Applied changelog record",
		zap.Stringer("kind", rec.Kind),
		zap.String("key", rec.Row.Key))
	return nil
}

func (s *Sink) Close() error {
	s.logger.Info("Closing Postgres sink")
	s.pool.Close()
	return nil
}
