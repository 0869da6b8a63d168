// Package envconfig provides JSON serializable configurations of the
// environments that world models collect sequences from, so that an
// experiment can name its environment in its configuration file.
package envconfig

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/environment"
	"github.com/samuelfneumann/worldmodel/environment/gridworld"
	"github.com/samuelfneumann/worldmodel/environment/maze"
	"github.com/samuelfneumann/worldmodel/timestep"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	GridWorld EnvName = "GridWorld"
	Maze      EnvName = "Maze"
)

// Config describes an environment. Only the configuration of the named
// environment is used.
type Config struct {
	Environment EnvName
	GridWorld   *gridworld.Config `json:",omitempty"`
	Maze        *maze.Config      `json:",omitempty"`
}

// NewGridWorld returns the configuration of the gridworld c
func NewGridWorld(c gridworld.Config) Config {
	return Config{Environment: GridWorld, GridWorld: &c}
}

// NewMaze returns the configuration of the maze c
func NewMaze(c maze.Config) Config {
	return Config{Environment: Maze, Maze: &c}
}

// Default returns the default configuration of the environment name
func Default(name EnvName) (Config, error) {
	switch name {
	case GridWorld:
		return NewGridWorld(gridworld.DefaultConfig()), nil
	case Maze:
		return NewMaze(maze.DefaultConfig()), nil
	default:
		return Config{}, fmt.Errorf("default: no such environment %q", name)
	}
}

// Validate returns an error if the named environment is unknown or its
// configuration is missing or invalid
func (c Config) Validate() error {
	switch c.Environment {
	case GridWorld:
		if c.GridWorld == nil {
			return fmt.Errorf("validate: missing gridworld configuration")
		}
		return c.GridWorld.Validate()
	case Maze:
		if c.Maze == nil {
			return fmt.Errorf("validate: missing maze configuration")
		}
		return c.Maze.Validate()
	default:
		return fmt.Errorf("validate: no such environment %q", c.Environment)
	}
}

// Create returns the environment described by the Config as well as
// the first timestep of the environment
func (c Config) Create(seed uint64) (environment.Environment,
	timestep.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("create: %v", err)
	}

	var env environment.Environment
	var step timestep.TimeStep
	var err error
	switch c.Environment {
	case GridWorld:
		env, step, err = gridworld.New(*c.GridWorld, seed)
	default:
		env, step, err = maze.New(*c.Maze, seed)
	}
	if err != nil {
		return nil, timestep.TimeStep{}, fmt.Errorf("create: %v", err)
	}
	return env, step, nil
}

// ObservationShape returns the (C, H, W) shape of the observations of
// the environment
func (c Config) ObservationShape() ([]int, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("observationShape: %v", err)
	}

	switch c.Environment {
	case GridWorld:
		return []int{gridworld.Channels, c.GridWorld.Rows,
			c.GridWorld.Cols}, nil
	default:
		return c.Maze.ObservationShape(), nil
	}
}

// Actions returns the number of actions of the environment
func (c Config) Actions() int {
	if c.Environment == Maze {
		return maze.NumActions
	}
	return gridworld.NumActions
}

// EpisodeSteps returns the maximum number of steps in an episode
func (c Config) EpisodeSteps() int {
	switch {
	case c.Environment == GridWorld && c.GridWorld != nil:
		return c.GridWorld.EpisodeSteps
	case c.Environment == Maze && c.Maze != nil:
		return c.Maze.EpisodeSteps
	default:
		return 0
	}
}
