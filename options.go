package tdauth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defReceiveTimeout = 1 * time.Second
	defReplyTimeout   = 30 * time.Second
	defQueueSize      = 8
	defTombstones     = 64
	defTombstoneTTL   = 10 * time.Minute
	defVerbosity      = -1 // not set
)

type Option func(w *Worker)

// WithParameters sets the engine parameters for the clients that don't
// have their own.
func WithParameters(p Parameters) Option {
	return func(w *Worker) {
		w.params = p
	}
}

// WithApiCredsFile sets the encrypted file to load the API credentials from,
// if they're not in the parameters.  The credentials are saved to it once
// the client is authorized.
func WithApiCredsFile(path string) Option {
	return func(w *Worker) {
		w.credsStrg = credsStorage{filename: path}
	}
}

// WithDebug enables the tracing of the engine traffic to the console.
func WithDebug(enable bool) Option {
	return func(w *Worker) {
		if !enable {
			w.trace = zap.NewNop()
			return
		}
		w.trace = newTraceLogger()
	}
}

// WithLogger sets the logger for the engine traffic tracing.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l == nil {
			return
		}
		w.trace = l
	}
}

// WithReceiveTimeout sets the timeout of a single receive call.  It bounds
// the time the worker takes to stop.
func WithReceiveTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.receiveTimeout = d
		}
	}
}

// WithReplyTimeout sets how long to wait for the engine to reply to an
// authorization request.  A timeout is reported as a dispatch failure.
func WithReplyTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.replyTimeout = d
		}
	}
}

// WithQueueSize sets the size of the per session queue of the authorization
// states waiting for dispatch.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithTombstones sets how many closed sessions and for how long they are
// remembered, to be reported as Closed rather than unknown.
func WithTombstones(size int, ttl time.Duration) Option {
	return func(w *Worker) {
		if size > 0 {
			w.tombstones = size
		}
		if ttl > 0 {
			w.tombstoneTTL = ttl
		}
	}
}

// WithEngineVerbosity sets the engine log verbosity level on start.
func WithEngineVerbosity(level int) Option {
	return func(w *Worker) {
		w.verbosity = level
	}
}

// WithMetrics registers the worker metrics with r.
func WithMetrics(r prometheus.Registerer) Option {
	return func(w *Worker) {
		w.registerer = r
	}
}
