package natsstore

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chrisdevereux/earthstar-data/pkg/retry"
)

// Defaults applied by New.
const (
	DefaultDocsBucket        = "ES_DOCUMENTS"
	DefaultAttachmentsBucket = "ES_ATTACHMENTS"
	DefaultMaxValueSize      = 1024 * 1024 // 1MB
)

// Option is a functional option for configuring the Store.
type Option func(*Store) error

// WithDocsBucket overrides the KV bucket holding document envelopes.
func WithDocsBucket(name string) Option {
	return func(s *Store) error {
		s.docsBucket = name
		return nil
	}
}

// WithAttachmentsBucket overrides the object store bucket holding
// attachment bodies.
func WithAttachmentsBucket(name string) Option {
	return func(s *Store) error {
		s.attachmentsBucket = name
		return nil
	}
}

// WithReplicas sets the JetStream replica count for both buckets.
func WithReplicas(n int) Option {
	return func(s *Store) error {
		if n < 1 {
			n = 1
		}
		s.replicas = n
		return nil
	}
}

// WithBucketTTL ages documents out of the KV bucket. Keys removed by TTL
// vanish between queries without an event unless limit markers are enabled,
// see WithLimitMarkerTTL.
func WithBucketTTL(d time.Duration) Option {
	return func(s *Store) error {
		s.ttl = d
		return nil
	}
}

// WithLimitMarkerTTL makes the server leave a delete marker, kept for the
// given duration, when TTL removes a key. Markers surface on event streams
// as expire events. Requires NATS server 2.11 or later.
func WithLimitMarkerTTL(d time.Duration) Option {
	return func(s *Store) error {
		s.markerTTL = d
		return nil
	}
}

// WithMaxValueSize caps the serialized envelope size accepted by Set.
func WithMaxValueSize(n int) Option {
	return func(s *Store) error {
		if n > 0 {
			s.maxValueSize = n
		}
		return nil
	}
}

// WithRetryConfig replaces the compare-and-swap retry policy. The default
// is retry.Conflict().
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Store) error {
		s.casRetry = cfg
		return nil
	}
}

// WithClock overrides the timestamp source for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) error {
		if clock != nil {
			s.clock = clock
		}
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithMetrics registers operation metrics with the given registerer.
// Metrics are disabled when this option is absent or reg is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) error {
		if reg == nil {
			return nil
		}

		m, err := newStoreMetrics(reg)
		if err != nil {
			return err
		}

		s.metrics = m
		return nil
	}
}
