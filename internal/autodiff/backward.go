package autodiff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/born-ml/cgraph/internal/tensor"
)

// BackwardConfig controls a backward pass.
type BackwardConfig struct {
	// Grad seeds each terminal's accumulator. Nil seeds ones.
	Grad *tensor.RawTensor

	// ClearGrads zeroes the accumulators of every reachable variable before the
	// pass, so the first contribution to any variable overwrites it. Without it,
	// source variables add onto whatever earlier passes left in their
	// accumulators, while intermediate variables are still overwritten by their
	// first contribution.
	ClearGrads bool
}

// Backward runs the backward pass from v. See Graph.Backward.
func (v *Variable) Backward(ctx context.Context, cfg BackwardConfig) error {
	return v.graph.Backward(ctx, []*Variable{v}, cfg)
}

// Backward executes the backward step of every Function reachable from the
// terminals exactly once, in reverse topological order.
//
// Algorithm:
//  1. Discover reachable functions along producer links and count, for every
//     producer, how many (consumer, input) edges must report before it may run
//  2. Seed each terminal's accumulator with cfg.Grad (ones when nil)
//  3. Pop ready functions by rank, highest first; ties go to the most recently
//     connected function
//  4. After each step, release the producers of its inputs; a producer becomes
//     ready when all of its reachable consumers have contributed
//
// The first error from an Operation aborts the pass and is returned as a
// *BackwardError. Gradients already written stay as they are.
//
// ctx carries trace context only; the pass is not cancellable.
func (g *Graph) Backward(ctx context.Context, terminals []*Variable, cfg BackwardConfig) error {
	for i, t := range terminals {
		if t == nil {
			return fmt.Errorf("%w: terminal %d", ErrNilVariable, i)
		}
		if t.graph != g {
			return fmt.Errorf("%w: terminal %d (%s)", ErrForeignVariable, i, t)
		}
	}
	if !g.running.CompareAndSwap(false, true) {
		return ErrBackwardInProgress
	}
	defer g.running.Store(false)

	g.initMetrics()

	passID := uuid.NewString()[:12]
	ctx, span := g.tracer.Start(ctx, "autodiff.Backward",
		trace.WithAttributes(
			attribute.String("autodiff.graph", g.name),
			attribute.String("autodiff.pass_id", passID),
			attribute.Int("autodiff.terminals", len(terminals)),
		),
	)
	defer span.End()

	start := time.Now()
	graphAttr := metric.WithAttributes(attribute.String("graph", g.name))
	if g.metrics.passes != nil {
		g.metrics.passes.Add(ctx, 1, graphAttr)
	}

	p := newPass(ctx, g, passID, terminals, cfg.ClearGrads)
	span.SetAttributes(attribute.Int("autodiff.functions", len(p.order)))
	g.logger.Debug("backward pass started",
		slog.String("graph", g.name),
		slog.String("pass_id", passID),
		slog.Int("terminals", len(terminals)),
		slog.Int("functions", len(p.order)),
		slog.Bool("clear_grads", cfg.ClearGrads),
	)

	err := p.execute(cfg.Grad)

	elapsed := time.Since(start)
	if g.metrics.passLatency != nil {
		g.metrics.passLatency.Record(ctx, elapsed.Seconds(), graphAttr)
	}
	span.SetAttributes(attribute.Int("autodiff.executed", p.executed))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backward pass failed")
		if g.metrics.failures != nil {
			g.metrics.failures.Add(ctx, 1, graphAttr)
		}
		g.logger.Debug("backward pass failed",
			slog.String("pass_id", passID),
			slog.Int("executed", p.executed),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return err
	}

	span.SetStatus(codes.Ok, "")
	g.logger.Debug("backward pass completed",
		slog.String("pass_id", passID),
		slog.Int("executed", p.executed),
		slog.Duration("duration", elapsed),
	)
	return nil
}

// pass is the state of one backward traversal. Nothing in it outlives the call.
type pass struct {
	ctx   context.Context
	graph *Graph
	id    string
	clear bool

	terminals   []*Variable
	order       []*Function        // Reachable functions in discovery order
	pending     map[*Function]int  // Unreported consumer edges per producer
	done        map[*Function]bool // Functions already popped
	contributed map[*Variable]bool // Variables written in this pass; later writes accumulate
	queue       readyQueue
	executed    int
}

func newPass(ctx context.Context, g *Graph, id string, terminals []*Variable, clearGrads bool) *pass {
	order, pending := discover(terminals)
	return &pass{
		ctx:         ctx,
		graph:       g,
		id:          id,
		clear:       clearGrads,
		terminals:   terminals,
		order:       order,
		pending:     pending,
		done:        make(map[*Function]bool, len(order)),
		contributed: make(map[*Variable]bool),
	}
}

// discover walks producer links from the terminals, visiting each Function
// once. For every distinct input of a visited function that has a producer,
// the producer's pending count grows by one.
func discover(terminals []*Variable) ([]*Function, map[*Function]int) {
	seen := make(map[*Function]bool)
	pending := make(map[*Function]int)
	var order, stack []*Function

	for _, t := range terminals {
		if f := t.parent; f != nil && !seen[f] {
			seen[f] = true
			stack = append(stack, f)
		}
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, f)

		for _, in := range f.distinctInputs() {
			producer := in.parent
			if producer == nil {
				continue
			}
			pending[producer]++
			if !seen[producer] {
				seen[producer] = true
				stack = append(stack, producer)
			}
		}
	}
	return order, pending
}

// execute seeds the terminals and drains the ready queue.
func (p *pass) execute(grad *tensor.RawTensor) error {
	if p.clear {
		p.clearGrads()
	}
	if err := p.seed(grad); err != nil {
		return err
	}

	for _, f := range p.order {
		if p.pending[f] == 0 {
			p.queue.push(f)
		}
	}

	for p.queue.Len() > 0 {
		f := p.queue.pop()
		if p.done[f] {
			return fmt.Errorf("%w: %s scheduled twice", ErrCyclicGraph, f)
		}
		p.done[f] = true

		if err := p.step(f); err != nil {
			return err
		}

		for _, in := range f.distinctInputs() {
			producer := in.parent
			if producer == nil {
				continue
			}
			p.pending[producer]--
			if p.pending[producer] == 0 {
				p.queue.push(producer)
			}
		}
	}

	if p.executed != len(p.order) {
		return fmt.Errorf("%w: executed %d of %d reachable functions", ErrCyclicGraph, p.executed, len(p.order))
	}
	return nil
}

// step runs one Function's backward.
func (p *pass) step(f *Function) error {
	// Outputs nobody reachable contributed to carry no gradient this pass.
	for _, out := range f.outputs {
		if out.needGrad && !p.contributed[out] {
			out.Grad().Zero()
			p.contributed[out] = true
		}
	}

	accumulate := make([]bool, len(f.inputs))
	for i, in := range f.inputs {
		if !f.propagateDown[i] {
			continue
		}
		accumulate[i] = p.contributed[in] || (in.parent == nil && !p.clear)
		p.contributed[in] = true
	}

	p.graph.logger.Debug("function backward",
		slog.String("pass_id", p.id),
		slog.String("function", f.String()),
		slog.Int("rank", f.rank),
	)

	if err := f.op.Backward(f.Inputs(), f.Outputs(), f.PropagateDown(), accumulate); err != nil {
		return &BackwardError{Function: f, Err: err}
	}
	p.executed++
	if steps := p.graph.metrics.functionSteps; steps != nil {
		steps.Add(p.ctx, 1, metric.WithAttributes(
			attribute.String("graph", p.graph.name),
			attribute.String("operation", f.Name()),
		))
	}
	return nil
}

// seed writes the initial gradient into every terminal that needs one.
// Source terminals add onto their accumulator unless grads were cleared.
func (p *pass) seed(grad *tensor.RawTensor) error {
	for _, t := range p.terminals {
		if !t.needGrad || p.contributed[t] {
			continue
		}
		delta := grad
		if delta == nil {
			ones, err := tensor.Ones(t.Shape(), t.DType())
			if err != nil {
				return fmt.Errorf("%w: seed %s: %w", ErrGradShape, t, err)
			}
			delta = ones
		}

		acc := t.Grad()
		var err error
		if t.parent == nil && !p.clear {
			err = acc.AddInPlace(delta)
		} else {
			err = acc.CopyFrom(delta)
		}
		if err != nil {
			return fmt.Errorf("%w: seed %s: %w", ErrGradShape, t, err)
		}
		p.contributed[t] = true
	}
	return nil
}

// clearGrads zeroes every reachable accumulator that may be written.
func (p *pass) clearGrads() {
	zero := func(v *Variable) {
		if v.needGrad {
			v.ZeroGrad()
		}
	}
	for _, t := range p.terminals {
		zero(t)
	}
	for _, f := range p.order {
		for _, in := range f.inputs {
			zero(in)
		}
		for _, out := range f.outputs {
			zero(out)
		}
	}
}
