package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/opcore/driver"
	"github.com/wippyai/opcore/realm"
	"github.com/wippyai/opcore/registry"
)

// MainRealmName names the realm created by New.
const MainRealmName = "main"

type config struct {
	logger    *zap.Logger
	registry  prometheus.Registerer
	tracing   trace.TracerProvider
	reporter  realm.Reporter
	mainTable *registry.Table
	pool      *driver.Pool
	poolSize  int
}

// Option configures a Runtime.
type Option func(*config)

// WithLogger sets the logger passed to the driver, pool and realms.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers driver and runtime collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// WithTracerProvider sets where delivery spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracing = tp
	}
}

// WithPoolSize bounds concurrent native work.
func WithPoolSize(n int) Option {
	return func(c *config) {
		c.poolSize = n
	}
}

// WithPool shares an existing pool, so op start functions built before the
// runtime can spawn on it. Overrides WithPoolSize.
func WithPool(p *driver.Pool) Option {
	return func(c *config) {
		c.pool = p
	}
}

// WithRejectionReporter replaces the default reporter for every realm.
func WithRejectionReporter(fn realm.Reporter) Option {
	return func(c *config) {
		c.reporter = fn
	}
}

// WithMainTable sets the op table of the main realm.
func WithMainTable(t *registry.Table) Option {
	return func(c *config) {
		c.mainTable = t
	}
}
