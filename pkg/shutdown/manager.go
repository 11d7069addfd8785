// Package shutdown coordinates graceful teardown of the gateway's
// long-lived components: the HTTP listener, the sweep scheduler, the
// metrics server and the storage clients.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_gateway_shutdown_duration_seconds",
		Help:    "Total time taken to shut down gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billing_gateway_component_shutdown_duration_seconds",
		Help:    "Time taken to shut down individual components",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_gateway_shutdown_errors_total",
		Help: "Shutdown errors by component",
	}, []string{"component"})
)

// Func tears down one component. The context carries the remaining
// shutdown budget.
type Func func(context.Context) error

type component struct {
	name string
	stop Func
}

// Manager stops registered components in reverse registration order.
// Register storage first and the request edge last, so that during
// shutdown the edge stops taking work before its dependencies go away.
type Manager struct {
	logger     *zap.Logger
	mu         sync.Mutex
	components []component
	timeout    time.Duration
}

// NewManager creates a shutdown manager with a total teardown budget.
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component. Components stop in reverse registration
// order, one at a time.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, stop: fn})
	m.logger.Debug("registered shutdown component",
		zap.String("component", name),
		zap.Int("order", len(m.components)))
}

// RegisterHTTPServer registers anything with an http.Server-shaped
// Shutdown method.
func (m *Manager) RegisterHTTPServer(name string, server interface{ Shutdown(context.Context) error }) {
	m.Register(name, server.Shutdown)
}

// RegisterCloser registers an io.Closer-shaped component.
func (m *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return closer.Close() })
}

// RegisterNoErr registers a teardown that cannot fail.
func (m *Manager) RegisterNoErr(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs Shutdown.
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	m.logger.Info("shutdown signal received",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", m.timeout))

	m.Shutdown()
}

// Shutdown stops every registered component in LIFO order. Each
// component gets whatever remains of the total budget; a hung component
// forfeits the rest of the line when the context expires.
func (m *Manager) Shutdown() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	m.logger.Info("starting graceful shutdown",
		zap.Int("components", len(components)))

	failed := 0
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if ctx.Err() != nil {
			m.logger.Warn("shutdown budget exhausted, skipping remaining components",
				zap.String("next", c.name))
			break
		}

		stepStart := time.Now()
		err := c.stop(ctx)
		componentShutdownDuration.WithLabelValues(c.name).Observe(time.Since(stepStart).Seconds())
		if err != nil {
			failed++
			shutdownErrors.WithLabelValues(c.name).Inc()
			m.logger.Error("component shutdown failed",
				zap.String("component", c.name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(stepStart)))
			continue
		}
		m.logger.Info("component stopped",
			zap.String("component", c.name),
			zap.Duration("elapsed", time.Since(stepStart)))
	}

	shutdownDuration.Observe(time.Since(start).Seconds())
	if failed > 0 {
		m.logger.Error("graceful shutdown completed with errors",
			zap.Int("failed", failed),
			zap.Duration("elapsed", time.Since(start)))
		return
	}
	m.logger.Info("graceful shutdown complete",
		zap.Duration("elapsed", time.Since(start)))
}
