package histore

import (
	"log/slog"
	"time"

	"github.com/hupe1980/histore/backend"
	"github.com/hupe1980/histore/blobstore"
	"github.com/hupe1980/histore/codec"
	"github.com/hupe1980/histore/internal/snapshot"
	"github.com/hupe1980/histore/resource"
	"github.com/hupe1980/histore/wal"
)

// Compression selects how snapshot bodies are compressed.
type Compression = snapshot.Compression

const (
	CompressionNone = snapshot.CompressionNone
	CompressionLZ4  = snapshot.CompressionLZ4
	CompressionZSTD = snapshot.CompressionZSTD
)

type options struct {
	name             string
	keepAllVersions  bool
	indexes          []IndexDef
	clock            func() time.Time
	keyGenerator     KeyGenerator
	metricsCollector MetricsCollector
	logger           *Logger
	walPath          string
	walOptions       []func(*wal.Options)
	backend          backend.Backend
	snapshotStore    blobstore.BlobStore
	resource         *resource.Controller
	codec            codec.Codec
	compression      Compression
	readOnly         bool
}

// Option configures a Store.
type Option func(*options)

// WithName sets the store name used in logs.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithKeepAllVersions retains the full history of every property and index
// slot, enabling time-travel reads. It is fixed for the lifetime of the store.
func WithKeepAllVersions(keep bool) Option {
	return func(o *options) {
		o.keepAllVersions = keep
	}
}

// WithIndex defines a secondary index. Index names must be unique.
func WithIndex(def IndexDef) Option {
	return func(o *options) {
		o.indexes = append(o.indexes, def)
	}
}

// WithClock sets the wall clock the version clock reads. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithKeyGenerator sets the generator used for adds without a key.
// Defaults to time-ordered UUIDv7 keys.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(o *options) {
		if g == nil {
			g = NewKey
		}
		o.keyGenerator = g
	}
}

// WithWAL configures Write-Ahead Logging for durability. The log at path is
// replayed on open.
//
// The log is checkpointed once its records are durable elsewhere: with a
// backend when it outgrows wal.Options.CheckpointBytes, without one when
// Snapshot commits to the store given to WithSnapshot. Checkpointing trusts
// the backend's Apply to be durable, so a badger backend should sync writes.
//
// Example:
//
//	histore.WithWAL("./data/histore.wal", func(o *wal.Options) {
//	    o.Durability = wal.DurabilityAsync
//	})
func WithWAL(path string, optFns ...func(*wal.Options)) Option {
	return func(o *options) {
		o.walPath = path
		o.walOptions = optFns
	}
}

// WithBackend persists every applied write to b and loads the store from b
// on open. The store takes ownership of b and closes it on Close.
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithSnapshot restores the store from the current snapshot in bs on open.
// A missing snapshot starts an empty store.
func WithSnapshot(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.snapshotStore = bs
	}
}

// WithResourceController throttles snapshot IO and memory.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resource = rc
	}
}

// WithCodec configures the codec used for encoding snapshot bodies.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression selects the snapshot compression. Defaults to zstd.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &histore.BasicMetricsCollector{}
//	s, _ := histore.Open(ctx, histore.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := histore.NewJSONLogger(slog.LevelInfo)
//	s, _ := histore.Open(ctx, histore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		name:             "default",
		keyGenerator:     NewKey,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		codec:            codec.Default,
		compression:      CompressionZSTD,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o *options) validate() error {
	seen := make(map[string]struct{}, len(o.indexes))
	for _, def := range o.indexes {
		if err := def.validate(); err != nil {
			return err
		}
		if _, dup := seen[def.Name]; dup {
			return invalidArgument("duplicate index %q", def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	if o.backend != nil && o.snapshotStore != nil {
		return invalidArgument("a backend and a snapshot store cannot both seed the store")
	}
	if _, err := snapshot.ParseCompression(o.compression.String()); err != nil {
		return invalidArgument("%v", err)
	}
	return nil
}
