// Package gridworld implements a 2D gridworld whose observations are
// one-hot categorical maps, suitable as an observation source for
// world models.
package gridworld

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/worldmodel/environment"
	"github.com/samuelfneumann/worldmodel/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Actions available in the gridworld
const (
	Left int = iota
	Right
	Up
	Down
)

// NumActions is the number of actions, which is also the length of
// the one-hot action vectors taken by Step
const NumActions = 4

// Classes of each cell in an observation
const (
	Empty int = iota
	Agent
	Goal
)

// Channels is the number of classes each cell of an observation takes
const Channels = 3

// Cell is a (row, column) position in the gridworld
type Cell [2]int

// Config describes a gridworld. If Starts is empty, episodes start
// uniformly at random on any cell which is not a goal.
type Config struct {
	Rows, Cols     int
	Goals          []Cell
	Starts         []Cell
	EpisodeSteps   int
	TimestepReward float64
	GoalReward     float64
	Discount       float64
}

// DefaultConfig returns the configuration of a 7 x 7 gridworld with a
// goal in the bottom right corner and episodes of at most 50 steps
func DefaultConfig() Config {
	return Config{
		Rows:           7,
		Cols:           7,
		Goals:          []Cell{{6, 6}},
		EpisodeSteps:   50,
		TimestepReward: -0.1,
		GoalReward:     1.0,
		Discount:       0.99,
	}
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("validate: rows and cols must be > 0, have "+
			"(%v, %v)", c.Rows, c.Cols)
	}
	if c.EpisodeSteps <= 0 {
		return fmt.Errorf("validate: episode steps must be > 0")
	}
	if len(c.Goals) >= c.Rows*c.Cols && len(c.Starts) == 0 {
		return fmt.Errorf("validate: no cells left to start on")
	}
	for _, cells := range [][]Cell{c.Goals, c.Starts} {
		for _, cell := range cells {
			if !c.contains(cell) {
				return fmt.Errorf("validate: cell %v outside of (%v, %v) "+
					"grid", cell, c.Rows, c.Cols)
			}
		}
	}
	return nil
}

// contains returns whether cell lies on the grid
func (c Config) contains(cell Cell) bool {
	return cell[0] >= 0 && cell[0] < c.Rows && cell[1] >= 0 &&
		cell[1] < c.Cols
}

// GridWorld implements a gridworld environment. The agent moves one
// cell per step in one of four directions. Moves off the grid leave
// the agent in place.
type GridWorld struct {
	environment.Starter
	enders []environment.Ender

	config      Config
	goals       map[Cell]bool
	position    Cell
	currentStep timestep.TimeStep
}

// New creates a new gridworld and returns it with its first timestep
func New(c Config, seed uint64) (*GridWorld, timestep.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	goals := make(map[Cell]bool, len(c.Goals))
	for _, goal := range c.Goals {
		goals[goal] = true
	}

	starts := c.Starts
	if len(starts) == 0 {
		for i := 0; i < c.Rows; i++ {
			for j := 0; j < c.Cols; j++ {
				if !goals[Cell{i, j}] {
					starts = append(starts, Cell{i, j})
				}
			}
		}
	}

	candidates := make([]*mat.VecDense, len(starts))
	for i, cell := range starts {
		candidates[i] = mat.NewVecDense(2, []float64{float64(cell[0]),
			float64(cell[1])})
	}
	starter, err := environment.NewChoice(candidates, nil, seed)
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	g := &GridWorld{
		Starter: starter,
		config:  c,
		goals:   goals,
	}

	// Reaching a goal takes precedence over a timeout
	atGoal := func(*timestep.TimeStep) bool { return g.goals[g.position] }
	g.enders = []environment.Ender{
		environment.NewConditionEnder(atGoal, timestep.TerminalStateReached),
		environment.NewStepLimit(c.EpisodeSteps),
	}

	return g, g.Reset(), nil
}

// Reset resets the environment and returns the first timestep of a
// new episode
func (g *GridWorld) Reset() timestep.TimeStep {
	start := g.Start()
	g.position = Cell{int(start.AtVec(0)), int(start.AtVec(1))}

	step := timestep.New(timestep.First, 0, g.config.Discount,
		g.observation(), 0)
	g.currentStep = step
	return step
}

// Step takes a one-hot action of length NumActions and returns the
// next timestep along with whether the episode has ended
func (g *GridWorld) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	if action.Len() != NumActions {
		panic(fmt.Sprintf("step: action must have length %v, have %v",
			NumActions, action.Len()))
	}
	direction := floats.MaxIdx(action.RawVector().Data)

	next := g.position
	switch direction {
	case Left:
		next[1]--
	case Right:
		next[1]++
	case Up:
		next[0]--
	case Down:
		next[0]++
	}
	if g.config.contains(next) {
		g.position = next
	}

	reward := g.config.TimestepReward
	if g.goals[g.position] {
		reward = g.config.GoalReward
	}

	step := timestep.New(timestep.Mid, reward, g.config.Discount,
		g.observation(), g.currentStep.Number+1)
	last := environment.End(g.enders, &step)
	g.currentStep = step

	return step, last
}

// observation returns the current one-hot (Channels, Rows, Cols) map
// of the gridworld flattened into a vector. An agent standing on a
// goal is shown as the agent.
func (g *GridWorld) observation() *mat.VecDense {
	r, c := g.config.Rows, g.config.Cols
	obs := mat.NewVecDense(Channels*r*c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			class := Empty
			if cell := (Cell{i, j}); cell == g.position {
				class = Agent
			} else if g.goals[cell] {
				class = Goal
			}
			obs.SetVec(class*r*c+i*c+j, 1.0)
		}
	}
	return obs
}

// Position returns the (row, column) position of the agent
func (g *GridWorld) Position() Cell {
	return g.position
}

// ObservationShape returns the (Channels, Rows, Cols) shape of
// observations
func (g *GridWorld) ObservationShape() []int {
	return []int{Channels, g.config.Rows, g.config.Cols}
}

// ObservationSpec returns the observation specification of the
// environment
func (g *GridWorld) ObservationSpec() environment.Spec {
	size := Channels * g.config.Rows * g.config.Cols
	shape := mat.NewVecDense(3, []float64{
		Channels,
		float64(g.config.Rows),
		float64(g.config.Cols),
	})
	upper := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		upper.SetVec(i, 1.0)
	}

	return environment.NewSpec(shape, environment.Observation,
		mat.NewVecDense(size, nil), upper, environment.Discrete)
}

// ActionSpec returns the action specification of the environment
func (g *GridWorld) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, []float64{NumActions})
	upper := mat.NewVecDense(NumActions, []float64{1, 1, 1, 1})

	return environment.NewSpec(shape, environment.Action,
		mat.NewVecDense(NumActions, nil), upper, environment.Discrete)
}

// DiscountSpec returns the discount specification of the environment
func (g *GridWorld) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, []float64{1.0})
	bound := mat.NewVecDense(1, []float64{g.config.Discount})

	return environment.NewSpec(shape, environment.Discount, bound,
		bound, environment.Continuous)
}

// String returns the gridworld as a map of characters
func (g *GridWorld) String() string {
	var b strings.Builder
	for i := 0; i < g.config.Rows; i++ {
		for j := 0; j < g.config.Cols; j++ {
			switch cell := (Cell{i, j}); {
			case cell == g.position:
				b.WriteByte('A')
			case g.goals[cell]:
				b.WriteByte('G')
			default:
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// OneHot returns the one-hot action vector for direction
func OneHot(direction int) *mat.VecDense {
	action := mat.NewVecDense(NumActions, nil)
	action.SetVec(direction, 1.0)
	return action
}
