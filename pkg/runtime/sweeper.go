package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Expirer performs one periodic maintenance pass, such as dropping stale
// state, and reports how many items it touched.
type Expirer interface {
	Expire(ctx context.Context) (int, error)
}

// ExpirerFunc adapts a function to Expirer.
type ExpirerFunc func(ctx context.Context) (int, error)

// Expire calls f.
func (f ExpirerFunc) Expire(ctx context.Context) (int, error) {
	return f(ctx)
}

type namedExpirer struct {
	name string
	Expirer
}

// Sweeper runs its expirers every interval until stopped. Each sweep is
// bounded by timeout when positive.
type Sweeper struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	expirers []namedExpirer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(interval, timeout time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{interval: interval, timeout: timeout, logger: logger}
}

// Add registers an expirer. It must be called before Start.
func (s *Sweeper) Add(name string, expirer Expirer) {
	if expirer == nil {
		return
	}
	s.expirers = append(s.expirers, namedExpirer{name: name, Expirer: expirer})
}

// Start launches the sweep loop. Calling it twice restarts the loop.
func (s *Sweeper) Start() {
	if s.interval <= 0 || len(s.expirers) == 0 {
		s.logger.Info("runtime.sweeper.disabled",
			slog.Duration("interval", s.interval),
			slog.Int("expirers", len(s.expirers)),
		)
		return
	}
	s.Stop()
	initSweepMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("runtime.sweeper.start",
			slog.Duration("interval", s.interval),
			slog.Int("expirers", len(s.expirers)),
		)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("runtime.sweeper.stop")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop ends the sweep loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep runs every expirer once.
func (s *Sweeper) Sweep(ctx context.Context) {
	initSweepMetrics()
	sweepStart := time.Now()
	sweepCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	tracer := otel.Tracer("agora/runtime")
	sweepCtx, sweepSpan := tracer.Start(sweepCtx, "runtime.sweep",
		trace.WithAttributes(
			attribute.Int("expirers", len(s.expirers)),
			attribute.String("timeout", s.timeout.String()),
		),
	)
	defer sweepSpan.End()

	total := 0
	for _, expirer := range s.expirers {
		attrs := metric.WithAttributes(attribute.String("expirer", expirer.name))
		expirerCtx, expirerSpan := tracer.Start(sweepCtx, "runtime.expire",
			trace.WithAttributes(attribute.String("expirer", expirer.name)),
		)
		start := time.Now()
		expired, err := expirer.Expire(expirerCtx)
		durationMs := time.Since(start).Seconds() * 1000
		sweepCounter.Add(ctx, 1, attrs)
		sweepLatencyMs.Record(ctx, durationMs, attrs)
		if err != nil {
			sweepErrorCounter.Add(ctx, 1, attrs)
			expirerSpan.RecordError(err)
			expirerSpan.End()
			s.logger.WarnContext(expirerCtx, "runtime.expire.error",
				slog.String("expirer", expirer.name),
				slog.Float64("duration_ms", durationMs),
				slog.String("error", err.Error()),
			)
			continue
		}
		if expired > 0 {
			expiredCounter.Add(ctx, int64(expired), attrs)
		}
		total += expired
		expirerSpan.SetAttributes(
			attribute.Int("expired", expired),
			attribute.Float64("duration_ms", durationMs),
		)
		expirerSpan.End()
		s.logger.DebugContext(expirerCtx, "runtime.expire",
			slog.String("expirer", expirer.name),
			slog.Int("expired", expired),
			slog.Float64("duration_ms", durationMs),
		)
	}
	sweepTotalLatencyMs.Record(ctx, time.Since(sweepStart).Seconds()*1000)
	if total > 0 {
		s.logger.InfoContext(sweepCtx, "runtime.sweep.complete", slog.Int("expired", total))
	}
}

var (
	sweepMetricsOnce    sync.Once
	sweepCounter        metric.Int64Counter
	sweepErrorCounter   metric.Int64Counter
	expiredCounter      metric.Int64Counter
	sweepLatencyMs      metric.Float64Histogram
	sweepTotalLatencyMs metric.Float64Histogram
)

func initSweepMetrics() {
	sweepMetricsOnce.Do(func() {
		meter := otel.Meter("agora/runtime")
		sweepCounter, _ = meter.Int64Counter("agora.runtime.sweep.count")
		sweepErrorCounter, _ = meter.Int64Counter("agora.runtime.sweep.error.count")
		expiredCounter, _ = meter.Int64Counter("agora.runtime.expired.count")
		sweepLatencyMs, _ = meter.Float64Histogram("agora.runtime.sweep.latency_ms")
		sweepTotalLatencyMs, _ = meter.Float64Histogram("agora.runtime.sweep.total_latency_ms")
	})
}
