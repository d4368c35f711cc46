package histore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	badgerbackend "github.com/hupe1980/histore/backend/badger"
	"github.com/hupe1980/histore/codec"
	"github.com/hupe1980/histore/internal/snapshot"
	"github.com/hupe1980/histore/ref"
	"github.com/hupe1980/histore/resource"
	"github.com/hupe1980/histore/wal"
)

// Config is the declarative configuration of a store.
//
// Example:
//
//	name: people
//	keep_all_versions: true
//	log_level: info
//	indexes:
//	  - name: email
//	    reference: "5"
//	    unique: true
//	  - name: tags
//	    reference: "4.[*]"
//	wal:
//	  path: ./data/people.wal
//	  durability: sync
type Config struct {
	Name            string `yaml:"name"`
	KeepAllVersions bool   `yaml:"keep_all_versions"`

	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`

	Indexes []IndexConfig `yaml:"indexes" validate:"dive"`

	Codec       string `yaml:"codec" validate:"omitempty,oneof=json go-json"`
	Compression string `yaml:"compression" validate:"omitempty,oneof=none lz4 zstd"`

	WAL      *WALConfig            `yaml:"wal"`
	Badger   *badgerbackend.Config `yaml:"badger"`
	Resource *resource.Config      `yaml:"resource"`
}

// IndexConfig declares an index. Reference is path text as accepted by ref.Parse.
type IndexConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Reference string `yaml:"reference" validate:"required"`
	Unique    bool   `yaml:"unique"`
}

// WALConfig configures the write-ahead log.
type WALConfig struct {
	Path       string `yaml:"path" validate:"required"`
	Durability string `yaml:"durability" validate:"omitempty,oneof=sync async"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("histore: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("histore: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	for _, ic := range c.Indexes {
		if _, err := ref.Parse(ic.Reference); err != nil {
			return invalidArgument("index %q: %v", ic.Name, err)
		}
	}
	return nil
}

// Options converts the configuration into store options. The badger
// backend is not included; OpenConfig opens it.
func (c *Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var opts []Option
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	opts = append(opts, WithKeepAllVersions(c.KeepAllVersions))

	if c.LogLevel != "" || c.LogFormat != "" {
		level := parseLevel(c.LogLevel)
		if c.LogFormat == "json" {
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		} else {
			opts = append(opts, WithLogger(NewTextLogger(level)))
		}
	}

	for _, ic := range c.Indexes {
		p, err := ref.Parse(ic.Reference)
		if err != nil {
			return nil, invalidArgument("index %q: %v", ic.Name, err)
		}
		opts = append(opts, WithIndex(IndexDef{Name: ic.Name, Reference: p, Unique: ic.Unique}))
	}

	if c.Codec != "" {
		opts = append(opts, WithCodec(codec.MustByName(c.Codec)))
	}
	if c.Compression != "" {
		comp, err := snapshot.ParseCompression(c.Compression)
		if err != nil {
			return nil, invalidArgument("%v", err)
		}
		opts = append(opts, WithCompression(comp))
	}

	if c.WAL != nil {
		durability := wal.DurabilitySync
		if c.WAL.Durability == "async" {
			durability = wal.DurabilityAsync
		}
		opts = append(opts, WithWAL(c.WAL.Path, func(o *wal.Options) {
			o.Durability = durability
		}))
	}
	if c.Resource != nil {
		opts = append(opts, WithResourceController(resource.NewController(*c.Resource)))
	}
	return opts, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OpenConfig opens a store from cfg, including its badger backend. Extra
// options are applied after those derived from cfg.
func OpenConfig(ctx context.Context, cfg *Config, extra ...Option) (*Store, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	if cfg.Badger != nil {
		b, err := badgerbackend.Open(*cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("histore: open badger: %w", err)
		}
		opts = append(opts, WithBackend(b))
	}
	return Open(ctx, append(opts, extra...)...)
}
