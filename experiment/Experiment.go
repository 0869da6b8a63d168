// Package experiment implements functionality for running world model
// experiments: collecting sequences from environments with a behaviour
// policy and training a world model on them window by window.
package experiment

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/environment"
	"github.com/samuelfneumann/worldmodel/environment/envconfig"
	"github.com/samuelfneumann/worldmodel/experiment/checkpointer"
	"github.com/samuelfneumann/worldmodel/experiment/tracker"
	"github.com/samuelfneumann/worldmodel/trainer"
)

// Config represents a configuration of an experiment. One environment
// is created for each sequence in a training batch.
type Config struct {
	Env     envconfig.Config
	Trainer trainer.Config

	// Number of training windows to run
	Windows int

	// Number of steps stored for each sequence
	Capacity int
}

// DefaultConfig returns the default experiment configuration on the
// default configuration of the environment name
func DefaultConfig(name envconfig.EnvName) (Config, error) {
	env, err := envconfig.Default(name)
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}
	obsShape, err := env.ObservationShape()
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}
	t, err := trainer.DefaultConfig(obsShape, env.Actions())
	if err != nil {
		return Config{}, fmt.Errorf("defaultConfig: %v", err)
	}

	return Config{
		Env:      env,
		Trainer:  t,
		Windows:  1000,
		Capacity: 10 * t.SeqLen,
	}, nil
}

// CreateExp creates the experiment described by the configuration
func (c Config) CreateExp(seed uint64, t []tracker.Tracker,
	r []tracker.ResultTracker, check []checkpointer.Checkpointer) (*Online,
	error) {
	envs := make([]environment.Environment, c.Trainer.Batch)
	for i := range envs {
		env, _, err := c.Env.Create(seed + uint64(i))
		if err != nil {
			return nil, fmt.Errorf("createExp: could not create "+
				"environment: %v", err)
		}
		envs[i] = env
	}

	tr, err := trainer.New(c.Trainer, seed)
	if err != nil {
		return nil, fmt.Errorf("createExp: could not create trainer: %v",
			err)
	}

	exp, err := NewOnline(envs, tr, c.Windows, c.Capacity, seed, t, r, check)
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("createExp: %v", err)
	}
	return exp, nil
}
