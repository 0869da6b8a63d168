// Package timestep implements timesteps of the interaction between an
// agent and an environment. The step type of a TimeStep determines the
// reset flags of the sequences a world model is trained on: the first
// step of an episode resets the belief state of the model.
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType denotes why an episode ended
type EndType string

const (
	// Environment reached a terminal state
	TerminalStateReached EndType = "TerminalStateReached"

	// Episode was cut off by a step limit
	Timeout EndType = "Timeout"

	// Episode has not ended
	Nil EndType = "Nil"
)

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	Reward      float64
	Discount    float64
	Observation *mat.VecDense
	Number      int
	endType     EndType
}

// New returns a new TimeStep
func New(t StepType, r, d float64, o *mat.VecDense, n int) TimeStep {
	return TimeStep{t, r, d, o, n, Nil}
}

// First returns whether a TimeStep is the first in an episode
func (t *TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an episode
func (t *TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an episode
func (t *TimeStep) Last() bool {
	return t.StepType == Last
}

// SetEnd sets the reason the episode ended at this TimeStep
func (t *TimeStep) SetEnd(e EndType) {
	t.endType = e
}

// EndType returns why the episode ended at this TimeStep, which is Nil
// if it did not end
func (t *TimeStep) EndType() EndType {
	return t.endType
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Reward:  %.2f  |  Discount: %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.Reward, t.Discount, t.Number)
}
