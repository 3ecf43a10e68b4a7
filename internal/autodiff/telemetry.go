package autodiff

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

// graphMetrics holds the backward-pass instruments. Nil instruments are skipped.
type graphMetrics struct {
	passes        metric.Int64Counter
	failures      metric.Int64Counter
	functionSteps metric.Int64Counter
	passLatency   metric.Float64Histogram
}

// initMetrics lazily creates the instruments.
// Creation failures are logged and leave the instrument nil.
func (g *Graph) initMetrics() {
	g.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		g.metrics.passes, err = g.meter.Int64Counter("autodiff_backward_total",
			metric.WithDescription("Number of backward passes started"),
		)
		if err != nil {
			initErrors = append(initErrors, "passes: "+err.Error())
		}

		g.metrics.failures, err = g.meter.Int64Counter("autodiff_backward_failures_total",
			metric.WithDescription("Number of backward passes that returned an error"),
		)
		if err != nil {
			initErrors = append(initErrors, "failures: "+err.Error())
		}

		g.metrics.functionSteps, err = g.meter.Int64Counter("autodiff_function_backward_total",
			metric.WithDescription("Number of function backward steps executed"),
		)
		if err != nil {
			initErrors = append(initErrors, "function_steps: "+err.Error())
		}

		g.metrics.passLatency, err = g.meter.Float64Histogram("autodiff_backward_duration_seconds",
			metric.WithDescription("Wall time of a backward pass"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pass_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			g.logger.Error("failed to initialize some autodiff metrics",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}
