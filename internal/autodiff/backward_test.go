package autodiff_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/cgraph/internal/autodiff"
	"github.com/born-ml/cgraph/internal/autodiff/ops"
	"github.com/born-ml/cgraph/internal/tensor"
)

// recorder builds Callback functions that log their backward invocations.
type recorder struct {
	order []string
	flags map[string][][]bool // name -> [propagateDown, accumulate]
}

func newRecorder() *recorder {
	return &recorder{flags: make(map[string][][]bool)}
}

func (r *recorder) fn(name string, numInputs int) *autodiff.Function {
	cb := ops.NewCallback(name, numInputs, 1)
	cb.BackwardFunc = func(_, _ []*autodiff.Variable, propagateDown, accumulate []bool) error {
		r.order = append(r.order, name)
		r.flags[name] = [][]bool{append([]bool(nil), propagateDown...), append([]bool(nil), accumulate...)}
		return nil
	}
	return autodiff.NewFunction(cb)
}

func connect(t *testing.T, g *autodiff.Graph, fn *autodiff.Function, inputs ...*autodiff.Variable) *autodiff.Variable {
	t.Helper()
	outs, err := g.Connect(fn, inputs, 1)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	return outs[0]
}

func source(t *testing.T, g *autodiff.Graph, needGrad bool) *autodiff.Variable {
	t.Helper()
	v, err := g.NewVariable(tensor.Shape{1, 1, 1}, tensor.Float32, needGrad)
	require.NoError(t, err)
	return v
}

func TestBackward_LinearChainOrder(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	input := source(t, g, true)
	h1 := connect(t, g, rec.fn("A", 1), input)
	h2 := connect(t, g, rec.fn("B", 1), h1)
	h3 := connect(t, g, rec.fn("C", 1), h2)

	require.NoError(t, h3.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []string{"C", "B", "A"}, rec.order)
}

func TestBackward_DiamondOrder(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	input := source(t, g, true)
	h1 := connect(t, g, rec.fn("A", 1), input)
	h2 := connect(t, g, rec.fn("B", 1), h1)
	h3 := connect(t, g, rec.fn("C", 1), h1)
	h4 := connect(t, g, rec.fn("D", 1), h2)
	h5 := connect(t, g, rec.fn("E", 2), h3, h4)

	require.NoError(t, h5.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []string{"E", "D", "C", "B", "A"}, rec.order)
}

func TestBackward_LongBranchBeforeShortBranchSharedAncestor(t *testing.T) {
	// x -> A -> B -> C -> D \
	//        \-------------> E
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, true)
	a := connect(t, g, rec.fn("A", 1), x)
	b := connect(t, g, rec.fn("B", 1), a)
	c := connect(t, g, rec.fn("C", 1), b)
	d := connect(t, g, rec.fn("D", 1), c)
	e := connect(t, g, rec.fn("E", 2), a, d)

	require.NoError(t, e.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []string{"E", "D", "C", "B", "A"}, rec.order)
}

func TestBackward_EqualRankTieBreakIsConnectionOrder(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, true)
	p := connect(t, g, rec.fn("P", 1), x)
	q := connect(t, g, rec.fn("Q", 1), x)
	r := connect(t, g, rec.fn("R", 1), x)
	sum := connect(t, g, rec.fn("Sum", autodiff.VariadicInputs), p, q, r)

	require.NoError(t, sum.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []string{"Sum", "R", "Q", "P"}, rec.order)
}

func TestBackward_ExactlyOnceAndNoPrematureExecution(t *testing.T) {
	// Layered graph with heavy fan-out and fan-in.
	g := autodiff.NewGraph()
	executed := make(map[*autodiff.Function]int)
	var fns []*autodiff.Function

	newFn := func(name string, n int) *autodiff.Function {
		var self *autodiff.Function
		cb := ops.NewCallback(name, n, 1)
		cb.BackwardFunc = func(_, outputs []*autodiff.Variable, _, _ []bool) error {
			executed[self]++
			for _, out := range outputs {
				for _, consumer := range out.Consumers() {
					assert.Equal(t, 1, executed[consumer], "consumer %s of %s not done", consumer, self)
				}
			}
			return nil
		}
		self = autodiff.NewFunction(cb)
		fns = append(fns, self)
		return self
	}

	x := source(t, g, true)
	layer := []*autodiff.Variable{x}
	for depth := 0; depth < 4; depth++ {
		var next []*autodiff.Variable
		for i := 0; i < 3; i++ {
			fn := newFn("L", autodiff.VariadicInputs)
			next = append(next, connect(t, g, fn, layer...))
		}
		layer = next
	}
	top := connect(t, g, newFn("Top", autodiff.VariadicInputs), layer...)
	for _, fn := range fns {
		executed[fn] = 0
	}

	require.NoError(t, top.Backward(context.Background(), autodiff.BackwardConfig{}))
	for _, fn := range fns {
		assert.Equal(t, 1, executed[fn], "function %s", fn)
	}
}

func TestBackward_UnreachableFunctionsDoNotRun(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, true)
	a := connect(t, g, rec.fn("A", 1), x)
	b := connect(t, g, rec.fn("B", 1), a)
	_ = connect(t, g, rec.fn("Side", 1), a)

	require.NoError(t, b.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []string{"B", "A"}, rec.order)
}

func TestBackward_RankIsFixedAtConnection(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, true)
	a := connect(t, g, rec.fn("A", 1), x)
	b := connect(t, g, rec.fn("B", 1), a)
	ranks := []int{a.Parent().Rank(), b.Parent().Rank()}

	c := b
	for i := 0; i < 5; i++ {
		c = connect(t, g, rec.fn("Grow", 2), c, a)
	}

	assert.Equal(t, ranks, []int{a.Parent().Rank(), b.Parent().Rank()})
	assert.Equal(t, 0, a.Parent().Rank())
	assert.Equal(t, 1, b.Parent().Rank())
	assert.Equal(t, 6, c.Parent().Rank())
	assert.Equal(t, 6, c.Rank())
	assert.Equal(t, 0, x.Rank())
}

func TestBackward_AccumulateFlags(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, true)
	frozen := source(t, g, false)
	h := connect(t, g, rec.fn("H", 1), x)
	p := connect(t, g, rec.fn("P", 2), h, frozen)
	q := connect(t, g, rec.fn("Q", 2), h, h)
	top := connect(t, g, rec.fn("Top", 2), p, q)

	require.NoError(t, top.Backward(context.Background(), autodiff.BackwardConfig{ClearGrads: true}))
	require.Equal(t, []string{"Top", "Q", "P", "H"}, rec.order)

	// Q runs first: overwrite slot 0, accumulate slot 1 (same variable).
	assert.Equal(t, [][]bool{{true, true}, {false, true}}, rec.flags["Q"])
	// P sees h already contributed; frozen input is not propagated.
	assert.Equal(t, [][]bool{{true, false}, {true, false}}, rec.flags["P"])
	// Cleared source: first contribution overwrites.
	assert.Equal(t, [][]bool{{true}, {false}}, rec.flags["H"])
}

func TestBackward_SourceAccumulatesWithoutClear(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, true)
	h := connect(t, g, rec.fn("H", 1), x)

	require.NoError(t, h.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, [][]bool{{true}, {true}}, rec.flags["H"])
}

func TestBackward_SourceTerminalSeedAccumulatesWithoutClear(t *testing.T) {
	g := autodiff.NewGraph()
	ctx := context.Background()

	x, err := g.NewVariable(tensor.Shape{2}, tensor.Float32, true)
	require.NoError(t, err)

	require.NoError(t, x.Backward(ctx, autodiff.BackwardConfig{}))
	require.NoError(t, x.Backward(ctx, autodiff.BackwardConfig{}))
	assert.Equal(t, []float32{2, 2}, x.Grad().AsFloat32())

	require.NoError(t, x.Backward(ctx, autodiff.BackwardConfig{ClearGrads: true}))
	assert.Equal(t, []float32{1, 1}, x.Grad().AsFloat32())

	bad, _ := tensor.FromFloat32([]float32{1}, tensor.Shape{1})
	err = x.Backward(ctx, autodiff.BackwardConfig{Grad: bad})
	assert.ErrorIs(t, err, autodiff.ErrGradShape)
}

func TestBackward_SourceTerminalKeepsEarlierPasses(t *testing.T) {
	g := autodiff.NewGraph()
	ctx := context.Background()

	data, _ := tensor.FromFloat32([]float32{1}, tensor.Shape{1})
	x, err := g.NewVariableFrom(data, true)
	require.NoError(t, err)
	y := connect(t, g, autodiff.NewFunction(ops.NewScaleOp(2)), x)

	require.NoError(t, y.Backward(ctx, autodiff.BackwardConfig{ClearGrads: true}))
	assert.Equal(t, []float32{2}, x.Grad().AsFloat32())

	// Seed 1 on x, then 2 from the scale: 2 + 1 + 2.
	require.NoError(t, g.Backward(ctx, []*autodiff.Variable{x, y}, autodiff.BackwardConfig{}))
	assert.Equal(t, []float32{5}, x.Grad().AsFloat32())
}

func TestBackward_SeedsOnesAndCustomGrad(t *testing.T) {
	g := autodiff.NewGraph()

	x, err := g.NewVariable(tensor.Shape{2}, tensor.Float32, true)
	require.NoError(t, err)
	y := connect(t, g, autodiff.NewFunction(ops.NewIdentityOp()), x)

	require.NoError(t, y.Backward(context.Background(), autodiff.BackwardConfig{ClearGrads: true}))
	assert.Equal(t, []float32{1, 1}, y.Grad().AsFloat32())
	assert.Equal(t, []float32{1, 1}, x.Grad().AsFloat32())

	seed, _ := tensor.FromFloat32([]float32{3, 4}, tensor.Shape{2})
	require.NoError(t, y.Backward(context.Background(), autodiff.BackwardConfig{Grad: seed, ClearGrads: true}))
	assert.Equal(t, []float32{3, 4}, x.Grad().AsFloat32())

	bad, _ := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{3})
	err = y.Backward(context.Background(), autodiff.BackwardConfig{Grad: bad})
	assert.ErrorIs(t, err, autodiff.ErrGradShape)
}

func TestBackward_NeedGradGating(t *testing.T) {
	g := autodiff.NewGraph()

	frozen, err := g.NewVariable(tensor.Shape{2}, tensor.Float32, false)
	require.NoError(t, err)
	w, err := g.NewVariable(tensor.Shape{2}, tensor.Float32, true)
	require.NoError(t, err)

	sentinel, _ := tensor.FromFloat32([]float32{42, 42}, tensor.Shape{2})
	require.NoError(t, frozen.Grad().CopyFrom(sentinel))

	y := connect(t, g, autodiff.NewFunction(ops.NewAddOp()), frozen, w)
	z := connect(t, g, autodiff.NewFunction(ops.NewMulOp()), y, frozen)

	require.NoError(t, z.Backward(context.Background(), autodiff.BackwardConfig{ClearGrads: true}))
	assert.Equal(t, []float32{42, 42}, frozen.Grad().AsFloat32(), "frozen source must not be written")
	assert.False(t, frozen.NeedGrad())
	assert.True(t, y.NeedGrad())
}

func TestBackward_NothingNeedsGrad(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()

	x := source(t, g, false)
	a := connect(t, g, rec.fn("A", 1), x)
	assert.False(t, a.NeedGrad())

	require.NoError(t, a.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []string{"A"}, rec.order)
	assert.Equal(t, [][]bool{{false}, {false}}, rec.flags["A"])
}

func TestBackward_SourceTerminal(t *testing.T) {
	g := autodiff.NewGraph()
	x, err := g.NewVariable(tensor.Shape{3}, tensor.Float64, true)
	require.NoError(t, err)

	require.NoError(t, x.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []float64{1, 1, 1}, x.Grad().AsFloat64())
}

func TestBackward_ErrorAbortsTraversal(t *testing.T) {
	g := autodiff.NewGraph()
	rec := newRecorder()
	boom := errors.New("boom")

	x := source(t, g, true)
	a := connect(t, g, rec.fn("A", 1), x)
	failing := ops.NewCallback("Fail", 1, 1)
	failing.BackwardFunc = func(_, _ []*autodiff.Variable, _, _ []bool) error {
		rec.order = append(rec.order, "Fail")
		return boom
	}
	b := connect(t, g, autodiff.NewFunction(failing), a)
	c := connect(t, g, rec.fn("C", 1), b)

	err := c.Backward(context.Background(), autodiff.BackwardConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, autodiff.ErrBackwardExecution)
	assert.ErrorIs(t, err, boom)

	var backwardErr *autodiff.BackwardError
	require.ErrorAs(t, err, &backwardErr)
	assert.Equal(t, "Fail", backwardErr.Function.Name())
	assert.Equal(t, []string{"C", "Fail"}, rec.order, "A must not run after the failure")

	// The graph is usable again after a failed pass.
	err = c.Backward(context.Background(), autodiff.BackwardConfig{})
	assert.ErrorIs(t, err, boom)
}

func TestBackward_MultipleTerminals(t *testing.T) {
	g := autodiff.NewGraph()

	x, _ := tensor.FromFloat32([]float32{2}, tensor.Shape{1})
	xv, err := g.NewVariableFrom(x, true)
	require.NoError(t, err)
	y := connect(t, g, autodiff.NewFunction(ops.NewScaleOp(3)), xv)
	z := connect(t, g, autodiff.NewFunction(ops.NewScaleOp(5)), y)

	// d(y+z)/dx = 3 + 15 = 18, where y is both a terminal and z's input.
	require.NoError(t, g.Backward(context.Background(), []*autodiff.Variable{y, z}, autodiff.BackwardConfig{ClearGrads: true}))
	assert.Equal(t, []float32{6}, y.Grad().AsFloat32())
	assert.Equal(t, []float32{18}, xv.Grad().AsFloat32())
}

func TestBackward_RejectsBadTerminals(t *testing.T) {
	g := autodiff.NewGraph()
	other := autodiff.NewGraph()
	foreign := source(t, other, true)

	err := g.Backward(context.Background(), []*autodiff.Variable{nil}, autodiff.BackwardConfig{})
	assert.ErrorIs(t, err, autodiff.ErrNilVariable)

	err = g.Backward(context.Background(), []*autodiff.Variable{foreign}, autodiff.BackwardConfig{})
	assert.ErrorIs(t, err, autodiff.ErrForeignVariable)
}

func TestBackward_ReentrantCallRejected(t *testing.T) {
	g := autodiff.NewGraph()
	x := source(t, g, true)

	var inner error
	cb := ops.NewCallback("Reenter", 1, 1)
	var out *autodiff.Variable
	cb.BackwardFunc = func(_, _ []*autodiff.Variable, _, _ []bool) error {
		inner = out.Backward(context.Background(), autodiff.BackwardConfig{})
		return nil
	}
	out = connect(t, g, autodiff.NewFunction(cb), x)

	require.NoError(t, out.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.ErrorIs(t, inner, autodiff.ErrBackwardInProgress)
}

func TestBackward_UnusedSplitOutputCarriesZeroGrad(t *testing.T) {
	g := autodiff.NewGraph()

	data, _ := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2})
	x, err := g.NewVariableFrom(data, true)
	require.NoError(t, err)
	outs, err := g.Connect(autodiff.NewFunction(ops.NewSplitOp(2)), []*autodiff.Variable{x}, 2)
	require.NoError(t, err)

	// Stale gradient left on the unused output by someone else.
	outs[1].Grad().Fill(100)

	y := connect(t, g, autodiff.NewFunction(ops.NewScaleOp(2)), outs[0])
	require.NoError(t, y.Backward(context.Background(), autodiff.BackwardConfig{}))
	assert.Equal(t, []float32{2, 2}, x.Grad().AsFloat32())
}
