package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SourceConfig struct {
	// Addr is the host:port the socket source dials for its byte stream.
	Addr string `yaml:"addr"`
	// LineDelimiter is the byte value terminating each record. Default 10 ('\n').
	LineDelimiter int `yaml:"line_delimiter"`
	// IdleTimeoutMs bounds the wait for the next byte; 0 disables the deadline.
	IdleTimeoutMs int `yaml:"idle_timeout_ms"`
}

type DecodeConfig struct {
	// FieldDelimiter splits the change-kind label and fields. Default "|".
	FieldDelimiter string `yaml:"field_delimiter"`
}

type SchemaField struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type KafkaSink struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type PostgresSink struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type SinkConfig struct {
	Type     string       `yaml:"type"`
	Kafka    KafkaSink    `yaml:"kafka"`
	Postgres PostgresSink `yaml:"postgres"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Source SourceConfig  `yaml:"source"`
	Decode DecodeConfig  `yaml:"decode"`
	Schema []SchemaField `yaml:"schema"`
	Sink   SinkConfig    `yaml:"sink"`
	HTTP   HTTPConfig    `yaml:"http"`
}

func LoadFromEnv() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		return Config{}, errors.New("CONFIG_PATH is not set")
	}
	return Load(path)
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, err
	}

	// Apply defaults
	if c.Source.Addr == "" {
		c.Source.Addr = "localhost:9999"
	}
	if c.Source.LineDelimiter <= 0 {
		c.Source.LineDelimiter = '\n'
	}
	if c.Decode.FieldDelimiter == "" {
		c.Decode.FieldDelimiter = "|"
	}
	if len(c.Schema) == 0 {
		c.Schema = []SchemaField{
			{Name: "name", Type: "string"},
			{Name: "score", Type: "int"},
		}
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "stdout"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}

	return c, c.validate()
}

func (c Config) validate() error {
	if c.Source.LineDelimiter > 255 {
		return fmt.Errorf("line_delimiter %d is not a single byte", c.Source.LineDelimiter)
	}
	if len(c.Decode.FieldDelimiter) != 1 {
		return fmt.Errorf("field_delimiter %q must be a single byte", c.Decode.FieldDelimiter)
	}
	for i, f := range c.Schema {
		if f.Name == "" {
			return fmt.Errorf("schema field %d has no name", i)
		}
	}
	return nil
}
