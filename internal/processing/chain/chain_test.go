package chain

import (
	"context"
	"errors"
	"testing"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type incrementStep struct {
	name    string
	skip    bool
	fail    error
	calls   int
	outputs []*safe.Mat
}

func (s *incrementStep) Name() string { return s.name }

func (s *incrementStep) ShouldExecute(processing.Params) bool { return !s.skip }

func (s *incrementStep) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	out, err := input.Clone()
	if err != nil {
		return nil, err
	}
	v, _ := out.GetUCharAt(0, 0)
	if err := out.SetUCharAt(0, 0, v+1); err != nil {
		out.Close()
		return nil, err
	}
	s.outputs = append(s.outputs, out)
	return out, nil
}

func newInput(t *testing.T) *safe.Mat {
	t.Helper()
	mat, err := safe.NewMat(4, 4, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	t.Cleanup(mat.Close)
	return mat
}

func TestExecuteRunsStepsInOrderAndReportsProgress(t *testing.T) {
	input := newInput(t)
	a := &incrementStep{name: "a"}
	b := &incrementStep{name: "b", skip: true}
	c := &incrementStep{name: "c"}

	var events []Progress
	out, err := NewChain(a, b, c).Execute(context.Background(), input, processing.DefaultParams(), func(p Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	defer out.Close()

	v, err := out.GetUCharAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), v)

	orig, _ := input.GetUCharAt(0, 0)
	assert.Equal(t, uint8(0), orig, "input must not be modified")

	assert.Equal(t, 0, b.calls)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Stage)
	assert.Equal(t, 1, events[0].Step)
	assert.Equal(t, 3, events[0].Total)
	assert.True(t, events[1].Skipped)
	assert.Equal(t, 1.0, events[2].Fraction)

	assert.False(t, a.outputs[0].IsValid(), "intermediate results are closed")
}

func TestExecuteEmptyChainReturnsClone(t *testing.T) {
	input := newInput(t)
	out, err := NewChain().Execute(context.Background(), input, processing.DefaultParams(), nil)
	require.NoError(t, err)
	defer out.Close()

	assert.NotEqual(t, input.ID(), out.ID())
	assert.True(t, input.IsValid())
}

func TestExecuteAllSkippedReturnsClone(t *testing.T) {
	input := newInput(t)
	out, err := NewChain(&incrementStep{name: "a", skip: true}).Execute(context.Background(), input, processing.DefaultParams(), nil)
	require.NoError(t, err)
	defer out.Close()
	assert.NotEqual(t, input.ID(), out.ID())
}

func TestExecuteWrapsStepFailure(t *testing.T) {
	input := newInput(t)
	boom := errors.New("boom")
	first := &incrementStep{name: "first"}
	failing := &incrementStep{name: "broken", fail: boom}

	_, err := NewChain(first, failing).Execute(context.Background(), input, processing.DefaultParams(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "step broken failed")
	assert.False(t, first.outputs[0].IsValid())
	assert.True(t, input.IsValid())
}

func TestExecuteHonoursCancellation(t *testing.T) {
	input := newInput(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := &incrementStep{name: "a"}
	_, err := NewChain(step).Execute(ctx, input, processing.DefaultParams(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, step.calls)
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	_, err := NewChain().Execute(context.Background(), nil, processing.DefaultParams(), nil)
	assert.Error(t, err)
}

func TestChainEditing(t *testing.T) {
	c := NewChain(&incrementStep{name: "a"}, &incrementStep{name: "c"})
	require.NoError(t, c.InsertStep(1, &incrementStep{name: "b"}))
	c.AddStep(&incrementStep{name: "d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.StepNames())

	require.NoError(t, c.RemoveStep(0))
	assert.Equal(t, 3, c.StepCount())
	assert.Equal(t, []string{"b", "c", "d"}, c.StepNames())

	assert.Error(t, c.InsertStep(9, &incrementStep{name: "x"}))
	assert.Error(t, c.RemoveStep(-1))
	assert.Error(t, c.RemoveStep(3))
}

func TestRecorderThroughContext(t *testing.T) {
	Record(context.Background(), "ignored", 1)

	r := NewRecorder()
	ctx := WithRecorder(context.Background(), r)
	Record(ctx, "regions", 12)
	Record(ctx, "coverage", 0.25)

	assert.Same(t, r, RecorderFrom(ctx))
	assert.Equal(t, map[string]float64{"regions": 12, "coverage": 0.25}, r.Snapshot())
	assert.Equal(t, []string{"coverage", "regions"}, r.Names())
}
