package chain

import (
	"context"
	"fmt"
	"time"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"
)

// Step is one image-to-image stage. Apply must not modify input and returns a new Mat owned by the caller.
type Step interface {
	Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error)
	Name() string
	ShouldExecute(params processing.Params) bool
}

// Progress is emitted after every step, whether it ran or was skipped.
type Progress struct {
	Stage    string
	Step     int
	Total    int
	Fraction float64
	Skipped  bool
	Elapsed  time.Duration
}

type ProgressFunc func(Progress)

type Chain struct {
	steps []Step
}

func NewChain(steps ...Step) *Chain {
	return &Chain{
		steps: steps,
	}
}

func (c *Chain) Execute(ctx context.Context, input *safe.Mat, params processing.Params, progress ProgressFunc) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(input, "chain execution"); err != nil {
		return nil, err
	}

	if len(c.steps) == 0 {
		return input.Clone()
	}

	current := input
	owned := false
	release := func() {
		if owned {
			current.Close()
		}
	}

	total := len(c.steps)
	for i, step := range c.steps {
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		default:
		}

		started := time.Now()
		skipped := !step.ShouldExecute(params)

		if !skipped {
			result, err := step.Apply(ctx, current, params)
			if err != nil {
				release()
				return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
			}
			if result == nil {
				release()
				return nil, fmt.Errorf("step %s failed: no output produced", step.Name())
			}

			release()
			current = result
			owned = true
		}

		if progress != nil {
			progress(Progress{
				Stage:    step.Name(),
				Step:     i + 1,
				Total:    total,
				Fraction: float64(i+1) / float64(total),
				Skipped:  skipped,
				Elapsed:  time.Since(started),
			})
		}
	}

	if !owned {
		return input.Clone()
	}
	return current, nil
}

func (c *Chain) AddStep(step Step) {
	c.steps = append(c.steps, step)
}

func (c *Chain) InsertStep(index int, step Step) error {
	if index < 0 || index > len(c.steps) {
		return fmt.Errorf("index out of range: %d", index)
	}

	c.steps = append(c.steps[:index], append([]Step{step}, c.steps[index:]...)...)
	return nil
}

func (c *Chain) RemoveStep(index int) error {
	if index < 0 || index >= len(c.steps) {
		return fmt.Errorf("index out of range: %d", index)
	}

	c.steps = append(c.steps[:index], c.steps[index+1:]...)
	return nil
}

func (c *Chain) StepCount() int {
	return len(c.steps)
}

func (c *Chain) StepNames() []string {
	names := make([]string, len(c.steps))
	for i, step := range c.steps {
		names[i] = step.Name()
	}
	return names
}
