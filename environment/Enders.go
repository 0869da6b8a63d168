package environment

import "github.com/samuelfneumann/worldmodel/timestep"

// Condition reports whether a timestep should be the last of its
// episode
type Condition func(*timestep.TimeStep) bool

// conditionEnder ends episodes with a fixed end type when its
// condition holds
type conditionEnder struct {
	cond    Condition
	endType timestep.EndType
}

// NewConditionEnder returns an Ender which marks a timestep as the
// last of its episode, with end type endType, when cond holds
func NewConditionEnder(cond Condition, endType timestep.EndType) Ender {
	return conditionEnder{cond: cond, endType: endType}
}

func (c conditionEnder) End(t *timestep.TimeStep) bool {
	if !c.cond(t) {
		return false
	}
	t.StepType = timestep.Last
	t.SetEnd(c.endType)
	return true
}

// NewStepLimit returns an Ender which times out episodes once they
// reach episodeSteps steps
func NewStepLimit(episodeSteps int) Ender {
	return NewConditionEnder(func(t *timestep.TimeStep) bool {
		return t.Number >= episodeSteps
	}, timestep.Timeout)
}
