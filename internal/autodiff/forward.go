package autodiff

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Forward recomputes every value reachable from v. See Graph.Forward.
func (v *Variable) Forward(ctx context.Context) error {
	return v.graph.Forward(ctx, []*Variable{v})
}

// Forward calls the Forward step of every Function reachable from the
// terminals once, sources first. Functions run in ascending rank, equal ranks
// in connection order, which places every producer before its consumers.
func (g *Graph) Forward(ctx context.Context, terminals []*Variable) error {
	for i, t := range terminals {
		if t == nil {
			return fmt.Errorf("%w: terminal %d", ErrNilVariable, i)
		}
		if t.graph != g {
			return fmt.Errorf("%w: terminal %d (%s)", ErrForeignVariable, i, t)
		}
	}

	order, _ := discover(terminals)
	sort.Slice(order, func(i, j int) bool {
		if order[i].rank != order[j].rank {
			return order[i].rank < order[j].rank
		}
		return order[i].seq < order[j].seq
	})

	_, span := g.tracer.Start(ctx, "autodiff.Forward")
	defer span.End()

	for _, f := range order {
		if err := f.op.Forward(f.Inputs(), f.Outputs()); err != nil {
			span.RecordError(err)
			return fmt.Errorf("forward %s: %w", f, err)
		}
	}

	g.logger.Debug("forward pass completed",
		slog.String("graph", g.name),
		slog.Int("functions", len(order)),
	)
	return nil
}
