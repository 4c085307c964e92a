package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tidefall/changesum/internal/config"
	"github.com/tidefall/changesum/internal/decode"
	"github.com/tidefall/changesum/internal/pipeline"
	"github.com/tidefall/changesum/internal/schema"
	kafkasink "github.com/tidefall/changesum/internal/sink/kafka"
	pgsink "github.com/tidefall/changesum/internal/sink/postgres"
	"github.com/tidefall/changesum/internal/sink/stdout"
	"github.com/tidefall/changesum/internal/source/socket"
	"github.com/tidefall/changesum/internal/types"
)

type healthz struct {
	Status             string `json:"status"`
	LinesRead          int64  `json:"lines_read"`
	LinesSkipped       int64  `json:"lines_skipped"`
	RetractionsIgnored int64  `json:"retractions_ignored"`
	RecordsEmitted     int64  `json:"records_emitted"`
	Keys               int    `json:"keys"`
	Timestamp          string `json:"timestamp"`
}

var (
	configPath string
	sourceAddr string
)

var rootCmd = &cobra.Command{
	Use:   "changesum",
	Short: "Aggregates a socket changelog stream into a keyed running sum",
	Long: `changesum dials a socket serving delimited changelog lines such as

    INSERT|Alice|12
    DELETE|Alice|12

maintains a per-key running SUM, and emits the resulting changelog
(insert / update-before / update-after / delete) to the configured sink.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config (falls back to CONFIG_PATH)")
	rootCmd.Flags().StringVar(&sourceAddr, "addr", "", "override for the source host:port")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, _ := zapConfig.Build()
	defer logger.Sync()

	logger.Info("Starting changesum")

	var cfg config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return err
	}
	if sourceAddr != "" {
		cfg.Source.Addr = sourceAddr
	}
	logger.Info("Configuration loaded",
		zap.String("source_addr", cfg.Source.Addr),
		zap.String("sink_type", cfg.Sink.Type),
		zap.Int("schema_fields", len(cfg.Schema)))

	sc, err := schema.FromConfig(cfg.Schema)
	if err != nil {
		logger.Error("schema init failed", zap.Error(err))
		return err
	}
	decoder, err := decode.New(cfg.Decode.FieldDelimiter[0], sc)
	if err != nil {
		logger.Error("decoder init failed", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Initializing sink", zap.String("type", cfg.Sink.Type))
	var sink types.Sink
	switch cfg.Sink.Type {
	case "stdout":
		sink = stdout.New(logger)
	case "kafka":
		sink, err = kafkasink.New(cfg.Sink.Kafka.Brokers, cfg.Sink.Kafka.Topic, logger)
	case "postgres":
		sink, err = pgsink.New(ctx, cfg.Sink.Postgres.DSN, cfg.Sink.Postgres.Table, logger)
	default:
		err = errors.New("unknown sink type")
	}
	if err != nil {
		logger.Error("sink init failed", zap.Error(err))
		return err
	}
	defer func() {
		logger.Info("Closing sink")
		sink.Close()
	}()

	src, err := socket.Dial(ctx, cfg.Source.Addr, byte(cfg.Source.LineDelimiter),
		time.Duration(cfg.Source.IdleTimeoutMs)*time.Millisecond, logger)
	if err != nil {
		logger.Error("source init failed", zap.Error(err))
		return err
	}
	defer src.Close()

	pl := pipeline.New(src, decoder, sink, logger)

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		st := pl.Status()
		resp := healthz{
			Status:             "running",
			LinesRead:          st.LinesRead,
			LinesSkipped:       st.LinesSkipped,
			RetractionsIgnored: st.RetractionsIgnored,
			RecordsEmitted:     st.RecordsEmitted,
			Keys:               st.Keys,
			Timestamp:          time.Now().Format(time.RFC3339),
		}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	})
	server := &http.Server{Addr: cfg.HTTP.Addr}
	logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	runErr := pl.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Pipeline failed", zap.Error(runErr))
	} else {
		logger.Info("Pipeline finished")
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Info("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return runErr
}
