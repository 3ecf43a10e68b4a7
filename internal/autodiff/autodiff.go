// Package autodiff implements a dynamically built computation graph and the
// dependency-ordered backward pass that drives reverse-mode differentiation.
//
// Architecture:
//   - Variable: a data node holding a value and a gradient accumulator
//   - Function: an operation node wrapping an Operation descriptor
//   - Graph.Connect: wires a Function to its inputs and creates its outputs
//   - Graph.Backward: runs every reachable Function's backward step exactly once,
//     ordered by rank (longest path from a source) with fan-in counting at merges
//
// Usage:
//
//	g := autodiff.NewGraph()
//	x, _ := g.NewVariable(tensor.Shape{2}, tensor.Float32, true)
//	h, _ := g.Connect(autodiff.NewFunction(ops.NewScaleOp(2)), []*autodiff.Variable{x}, 1)
//	y, _ := g.Connect(autodiff.NewFunction(ops.NewMulOp()), []*autodiff.Variable{h[0], x}, 1)
//	_ = y[0].Forward(ctx)
//	_ = y[0].Backward(ctx, autodiff.BackwardConfig{})
//	fmt.Println(x.Grad().AsFloat32())
//
// A Graph is not safe for concurrent construction. Backward passes over one
// graph must be serialized; overlapping calls fail with ErrBackwardInProgress.
package autodiff

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "born.autodiff"

// Graph owns the per-graph state shared by its variables and functions:
// the connection sequence counter, the backward-pass guard and observability.
type Graph struct {
	name   string
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	seq     atomic.Int64 // Connection order, used as the equal-rank tie-break
	running atomic.Bool  // Set while a backward pass is active

	metricsOnce sync.Once
	metrics     graphMetrics
}

// Option configures a Graph.
type Option func(*Graph)

// WithName sets the graph name used in logs and span attributes.
func WithName(name string) Option {
	return func(g *Graph) {
		g.name = name
	}
}

// WithLogger sets the logger. A nil logger keeps the default, which discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider used for backward-pass spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Graph) {
		if tp != nil {
			g.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider sets the meter provider used for backward-pass metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(g *Graph) {
		if mp != nil {
			g.meter = mp.Meter(instrumentationName)
		}
	}
}

// NewGraph creates an empty graph.
// Tracing and metrics default to the global OpenTelemetry providers.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		name:   "graph",
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// nextSeq returns the next connection sequence number.
func (g *Graph) nextSeq() int64 {
	return g.seq.Add(1)
}
