// Package maze implements randomly generated mazes whose observations
// are one-hot categorical maps of walls, passages, the agent, and the
// goal. Mazes are generated with GoMaze.
package maze

import (
	"fmt"
	"strings"

	"github.com/samuelfneumann/gomaze"
	"github.com/samuelfneumann/worldmodel/environment"
	"github.com/samuelfneumann/worldmodel/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Actions available in the maze, in the order GoMaze takes them
const (
	North int = iota
	South
	West
	East
)

// NumActions is the number of actions, which is also the length of
// the one-hot action vectors taken by Step
const NumActions = gomaze.Actions

// Classes of each cell in an observation
const (
	Empty int = iota
	Wall
	Agent
	Goal
)

// Channels is the number of classes each cell of an observation takes
const Channels = 4

// Generator names the algorithm used to carve the passages of a maze
type Generator string

// Available maze generators
const (
	Backtracking Generator = "Backtracking"
	Wilson       Generator = "Wilson"
	AldousBroder Generator = "AldousBroder"
	BinaryTree   Generator = "BinaryTree"
	Iterative    Generator = "Iterative"
)

// initer returns the GoMaze initializer for g
func (g Generator) initer(seed int64) (gomaze.Initer, error) {
	switch g {
	case Backtracking:
		return gomaze.NewBacktracking(seed), nil
	case Wilson:
		return gomaze.NewWilson(seed), nil
	case AldousBroder:
		return gomaze.NewAldousBroder(seed), nil
	case BinaryTree:
		return gomaze.NewBinaryTree(seed), nil
	case Iterative:
		return gomaze.NewIterative(seed), nil
	default:
		return nil, fmt.Errorf("unknown maze generator %q", g)
	}
}

// Config describes a maze of Rows x Cols cells. Episodes start in the
// top left cell and reach the goal in the bottom right cell.
type Config struct {
	Rows, Cols     int
	Generator      Generator
	EpisodeSteps   int
	TimestepReward float64
	GoalReward     float64
	Discount       float64
}

// DefaultConfig returns the configuration of a 3 x 3 maze carved by
// recursive backtracking with episodes of at most 50 steps
func DefaultConfig() Config {
	return Config{
		Rows:           3,
		Cols:           3,
		Generator:      Backtracking,
		EpisodeSteps:   50,
		TimestepReward: -0.1,
		GoalReward:     1.0,
		Discount:       0.99,
	}
}

// Validate returns an error if the configuration is invalid
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 || c.Rows*c.Cols < 2 {
		return fmt.Errorf("validate: maze must have at least 2 cells, have "+
			"(%v, %v)", c.Rows, c.Cols)
	}
	if c.EpisodeSteps <= 0 {
		return fmt.Errorf("validate: episode steps must be > 0")
	}
	if _, err := c.Generator.initer(0); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}

// ObservationShape returns the (Channels, 2 Rows + 1, 2 Cols + 1)
// shape of observations. Cell (r, c) of the maze is drawn at
// (2r + 1, 2c + 1), and the map cells between two maze cells are
// passages or walls.
func (c Config) ObservationShape() []int {
	return []int{Channels, 2*c.Rows + 1, 2*c.Cols + 1}
}

// Maze implements a maze environment
type Maze struct {
	enders []environment.Ender

	config      Config
	maze        *gomaze.Maze
	walls       []bool // (2 Rows + 1) x (2 Cols + 1) map of walls
	currentStep timestep.TimeStep
}

// New generates a new maze and returns it with its first timestep
func New(c Config, seed uint64) (*Maze, timestep.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %v", err)
	}
	init, err := c.Generator.initer(int64(seed))
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	// Negative positions use the default top left start and bottom
	// right goal
	maze, err := gomaze.NewMaze(c.Rows, c.Cols, -1, -1, -1, -1, init, false)
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("new: could not "+
			"generate maze: %v", err)
	}

	m := &Maze{
		config: c,
		maze:   maze,
		walls:  walls(maze),
	}
	atGoal := func(*timestep.TimeStep) bool { return m.maze.AtGoal() }
	m.enders = []environment.Ender{
		environment.NewConditionEnder(atGoal, timestep.TerminalStateReached),
		environment.NewStepLimit(c.EpisodeSteps),
	}

	return m, m.Reset(), nil
}

// walls returns the wall map of a maze, where every map cell is a wall
// unless it is a maze cell or a passage between two linked maze cells
func walls(maze *gomaze.Maze) []bool {
	height, width := 2*maze.Rows()+1, 2*maze.Cols()+1
	out := make([]bool, height*width)
	for i := range out {
		out[i] = true
	}

	for _, cell := range maze.Cells() {
		r, c := 2*cell.Row()+1, 2*cell.Col()+1
		out[r*width+c] = false
		if cell.CanMoveEast() {
			out[r*width+c+1] = false
		}
		if cell.CanMoveSouth() {
			out[(r+1)*width+c] = false
		}
	}
	return out
}

// Reset resets the environment and returns the first timestep of a
// new episode
func (m *Maze) Reset() timestep.TimeStep {
	m.maze.Reset()
	step := timestep.New(timestep.First, 0, m.config.Discount,
		m.observation(), 0)
	m.currentStep = step
	return step
}

// Step takes a one-hot action of length NumActions and returns the
// next timestep along with whether the episode has ended. Moves into
// walls leave the agent in place.
func (m *Maze) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	if action.Len() != NumActions {
		panic(fmt.Sprintf("step: action must have length %v, have %v",
			NumActions, action.Len()))
	}
	if _, _, _, err := m.maze.Step(floats.MaxIdx(action.RawVector().
		Data)); err != nil {
		panic(fmt.Sprintf("step: %v", err))
	}

	reward := m.config.TimestepReward
	if m.maze.AtGoal() {
		reward = m.config.GoalReward
	}

	step := timestep.New(timestep.Mid, reward, m.config.Discount,
		m.observation(), m.currentStep.Number+1)
	last := environment.End(m.enders, &step)
	m.currentStep = step

	return step, last
}

// Position returns the (row, column) maze cell of the agent
func (m *Maze) Position() (int, int) {
	obs := m.maze.Obs()
	return int(obs[1]), int(obs[0])
}

// Goal returns the (row, column) maze cell of the goal
func (m *Maze) Goal() (int, int) {
	return m.maze.Goal()
}

// Wall returns whether map cell (i, j) of an observation is a wall
func (m *Maze) Wall(i, j int) bool {
	return m.walls[i*(2*m.config.Cols+1)+j]
}

// class returns the class of map cell (i, j). An agent standing on the
// goal is shown as the agent.
func (m *Maze) class(i, j int) int {
	row, col := m.Position()
	goalRow, goalCol := m.Goal()
	switch {
	case m.Wall(i, j):
		return Wall
	case i == 2*row+1 && j == 2*col+1:
		return Agent
	case i == 2*goalRow+1 && j == 2*goalCol+1:
		return Goal
	default:
		return Empty
	}
}

// observation returns the current one-hot map of the maze flattened
// into a vector
func (m *Maze) observation() *mat.VecDense {
	shape := m.config.ObservationShape()
	height, width := shape[1], shape[2]
	cells := height * width

	obs := mat.NewVecDense(Channels*cells, nil)
	for i := 0; i < height; i++ {
		for j := 0; j < width; j++ {
			obs.SetVec(m.class(i, j)*cells+i*width+j, 1.0)
		}
	}
	return obs
}

// ObservationShape returns the shape of observations
func (m *Maze) ObservationShape() []int {
	return m.config.ObservationShape()
}

// ObservationSpec returns the observation specification of the
// environment
func (m *Maze) ObservationSpec() environment.Spec {
	shape := m.config.ObservationShape()
	size := shape[0] * shape[1] * shape[2]
	upper := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		upper.SetVec(i, 1.0)
	}

	return environment.NewSpec(
		mat.NewVecDense(3, []float64{float64(shape[0]), float64(shape[1]),
			float64(shape[2])}),
		environment.Observation,
		mat.NewVecDense(size, nil),
		upper,
		environment.Discrete,
	)
}

// ActionSpec returns the action specification of the environment
func (m *Maze) ActionSpec() environment.Spec {
	shape := mat.NewVecDense(1, []float64{NumActions})
	upper := mat.NewVecDense(NumActions, []float64{1, 1, 1, 1})

	return environment.NewSpec(shape, environment.Action,
		mat.NewVecDense(NumActions, nil), upper, environment.Discrete)
}

// DiscountSpec returns the discount specification of the environment
func (m *Maze) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, []float64{1.0})
	bound := mat.NewVecDense(1, []float64{m.config.Discount})

	return environment.NewSpec(shape, environment.Discount, bound,
		bound, environment.Continuous)
}

// String returns the observed map of the maze as characters
func (m *Maze) String() string {
	shape := m.config.ObservationShape()
	glyphs := map[int]byte{Empty: '.', Wall: '#', Agent: 'A', Goal: 'G'}

	var b strings.Builder
	for i := 0; i < shape[1]; i++ {
		for j := 0; j < shape[2]; j++ {
			b.WriteByte(glyphs[m.class(i, j)])
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
