package persistence

import (
	"time"

	"github.com/asaidimu/go-repodb/core/query"
	"github.com/asaidimu/go-repodb/core/schema"
	"go.uber.org/zap"
)

const (
	DefaultBasePath       = "data"
	DefaultPollInterval   = 5 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultMaxRetries     = 5
	DefaultRetryDelay     = 250 * time.Millisecond
	auditCapacity         = 100
)

// Options configures a Store. Zero values select the defaults.
type Options struct {
	// BasePath is the directory collection files live under.
	BasePath string
	// PollInterval is how often a subscribed collection is checked for
	// remote changes.
	PollInterval time.Duration
	// RequestTimeout bounds every remote call.
	RequestTimeout time.Duration
	// MaxRetries is how many times a conflicting write is retried before it
	// fails. Negative disables retries.
	MaxRetries int
	RetryDelay time.Duration
	// Registry validates records. Nil selects schema.DefaultRegistry.
	Registry  *schema.Registry
	Processor *query.DataProcessor
	Logger    *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BasePath == "" {
		o.BasePath = DefaultBasePath
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Registry == nil {
		o.Registry = schema.DefaultRegistry(o.Logger)
	}
	if o.Processor == nil {
		o.Processor = query.NewDataProcessor(o.Logger)
	}
	return o
}
