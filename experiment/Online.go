package experiment

import (
	"fmt"

	env "github.com/samuelfneumann/worldmodel/environment"
	"github.com/samuelfneumann/worldmodel/experiment/checkpointer"
	"github.com/samuelfneumann/worldmodel/experiment/tracker"
	"github.com/samuelfneumann/worldmodel/sequence"
	ts "github.com/samuelfneumann/worldmodel/timestep"
	"github.com/samuelfneumann/worldmodel/trainer"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Online is an experiment which collects experience online with a
// uniform random behaviour policy and trains a world model on each new
// window of experience as soon as it has been collected. Each
// environment feeds one sequence of the training batch, so that the
// belief state carried between windows follows each environment.
//
// Trackers track the timesteps of the first environment only.
type Online struct {
	envs     []env.Environment
	policy   distuv.Categorical
	actions  int
	buffer   *sequence.Buffer
	trainer  *trainer.Trainer
	started  bool
	windows  int
	complete int

	trackers       []tracker.Tracker
	resultTrackers []tracker.ResultTracker
	checkpointers  []checkpointer.Checkpointer
}

// NewOnline creates and returns a new online experiment which trains t
// for the given number of windows. There must be one environment for
// each sequence in the training batch of t, and capacity steps, more
// than the sequence length of t, are stored for each environment.
func NewOnline(envs []env.Environment, t *trainer.Trainer, windows,
	capacity int, seed uint64, trackers []tracker.Tracker,
	resultTrackers []tracker.ResultTracker,
	checkpointers []checkpointer.Checkpointer) (*Online, error) {
	c := t.Config()
	if len(envs) != c.Batch {
		return nil, fmt.Errorf("newOnline: want %v environments, have %v",
			c.Batch, len(envs))
	}
	if windows <= 0 {
		return nil, fmt.Errorf("newOnline: windows must be > 0")
	}
	if capacity <= c.SeqLen {
		return nil, fmt.Errorf("newOnline: capacity %v must exceed the "+
			"sequence length %v", capacity, c.SeqLen)
	}

	actions := c.Core.ActionDim
	for i, e := range envs {
		if size := e.ActionSpec().Size(); size != actions {
			return nil, fmt.Errorf("newOnline: environment %v has %v "+
				"actions, want %v", i, size, actions)
		}
		if dims := e.ObservationSpec().Dims(); !tensorutils.SameShape(dims,
			c.ObsShape()) {
			return nil, fmt.Errorf("newOnline: environment %v has "+
				"observations of shape %v, want %v", i, dims, c.ObsShape())
		}
	}

	buffer, err := sequence.New(len(envs), capacity, c.ObsShape(), actions,
		seed)
	if err != nil {
		return nil, fmt.Errorf("newOnline: %v", err)
	}

	weights := make([]float64, actions)
	for i := range weights {
		weights[i] = 1.0
	}
	policy := distuv.NewCategorical(weights, rand.NewSource(seed))

	return &Online{
		envs:           envs,
		policy:         policy,
		actions:        actions,
		buffer:         buffer,
		trainer:        t,
		windows:        windows,
		trackers:       trackers,
		resultTrackers: resultTrackers,
		checkpointers:  checkpointers,
	}, nil
}

// Register registers a tracker.Tracker with the experiment
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// RegisterResult registers a tracker.ResultTracker with the experiment
func (o *Online) RegisterResult(r tracker.ResultTracker) {
	o.resultTrackers = append(o.resultTrackers, r)
}

// RegisterCheckpointer registers a checkpointer.Checkpointer with the
// experiment
func (o *Online) RegisterCheckpointer(c checkpointer.Checkpointer) {
	o.checkpointers = append(o.checkpointers, c)
}

// RunWindow collects a new window of experience from each environment
// and takes a training step on it. RunWindow returns the losses of the
// step and whether or not all windows of the experiment have been run.
func (o *Online) RunWindow() (trainer.Result, bool, error) {
	if o.Done() {
		return trainer.Result{}, true, nil
	}

	seqLen := o.trainer.Config().SeqLen
	for i := range o.envs {
		if err := o.collect(i, seqLen); err != nil {
			return trainer.Result{}, false, fmt.Errorf("runWindow: %v", err)
		}
	}
	o.started = true

	batch, err := o.buffer.Next(seqLen)
	if err != nil {
		return trainer.Result{}, false, fmt.Errorf("runWindow: %v", err)
	}
	result, err := o.trainer.Step(batch)
	if err != nil {
		return trainer.Result{}, false, fmt.Errorf("runWindow: %v", err)
	}
	o.complete++

	for _, r := range o.resultTrackers {
		r.TrackResult(result)
	}
	for _, c := range o.checkpointers {
		if err := c.Checkpoint(o.complete); err != nil {
			return result, o.Done(), fmt.Errorf("runWindow: %v", err)
		}
	}

	return result, o.Done(), nil
}

// Run runs all windows of the experiment
func (o *Online) Run() error {
	for !o.Done() {
		if _, _, err := o.RunWindow(); err != nil {
			return err
		}
	}
	return nil
}

// Done returns whether all windows of the experiment have been run
func (o *Online) Done() bool {
	return o.complete >= o.windows
}

// Windows returns the number of windows run so far
func (o *Online) Windows() int {
	return o.complete
}

// Trainer returns the trainer of the experiment
func (o *Online) Trainer() *trainer.Trainer {
	return o.trainer
}

// Save saves all the data cached by the trackers to disk
func (o *Online) Save() {
	for _, t := range o.trackers {
		t.Save()
	}
	for _, r := range o.resultTrackers {
		r.Save()
	}
}

// Close releases the resources of the trainer of the experiment
func (o *Online) Close() error {
	return o.trainer.Close()
}

// collect steps environment i until it has at least n steps which
// have not yet been trained on. Episodes which end are restarted
// immediately, and the first step of the new episode is recorded with
// a zero action.
func (o *Online) collect(i, n int) error {
	e := o.envs[i]
	if !o.started {
		if err := o.add(i, nil, e.Reset()); err != nil {
			return err
		}
	}

	for o.buffer.Pending(i) < n {
		action := mat.NewVecDense(o.actions, nil)
		action.SetVec(int(o.policy.Rand()), 1.0)

		step, last := e.Step(action)
		if err := o.add(i, action, step); err != nil {
			return err
		}
		if last {
			if err := o.add(i, nil, e.Reset()); err != nil {
				return err
			}
		}
	}
	return nil
}

// add adds a step of environment i to the buffer and tracks it
func (o *Online) add(i int, action *mat.VecDense, step ts.TimeStep) error {
	if err := o.buffer.Add(i, action, step); err != nil {
		return fmt.Errorf("collect: %v", err)
	}
	if i == 0 {
		for _, t := range o.trackers {
			t.Track(step)
		}
	}
	return nil
}

