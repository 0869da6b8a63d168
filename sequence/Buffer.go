// Package sequence stores streams of environment timesteps and cuts
// them into time-major windows of observations, actions, and reset
// flags for training recurrent world models.
package sequence

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Batch is a window of T steps from each of B streams. Obs has shape
// (T, B, obsShape...), Action has shape (T, B, A), and Reset has shape
// (T, B) with a 1 wherever a step starts a new episode.
//
// Action[t] is the action which led to Obs[t], and is zero at the
// first step of an episode.
type Batch struct {
	Obs    *tensor.Dense
	Action *tensor.Dense
	Reset  *tensor.Dense
}

// Dims returns the number of steps and streams in the batch
func (b Batch) Dims() (steps, batch int) {
	shape := b.Reset.Shape()
	return shape[0], shape[1]
}

// lane is a single stream of steps held in FIFO order
type lane struct {
	obs    []float64
	action []float64
	reset  []float64

	// cursor is the index of the first step not yet returned by Next
	cursor int
}

// len returns the number of steps in the lane
func (l *lane) len() int {
	return len(l.reset)
}

// Buffer holds a number of parallel streams of timesteps, called
// lanes, each of bounded capacity. When a lane is full, its oldest
// step is dropped.
type Buffer struct {
	lanes      []*lane
	capacity   int
	obsShape   []int
	obsSize    int
	actionSize int
	rng        *rand.Rand
}

// New returns a new Buffer with the given number of lanes, each
// holding at most capacity steps of observations with shape obsShape
// and actions of size actionSize.
func New(lanes, capacity int, obsShape []int, actionSize int,
	seed uint64) (*Buffer, error) {
	if lanes <= 0 {
		return nil, fmt.Errorf("new: lanes must be > 0")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("new: capacity must be > 0")
	}
	if actionSize <= 0 {
		return nil, fmt.Errorf("new: action size must be > 0")
	}
	obsSize := 1
	for _, dim := range obsShape {
		if dim <= 0 {
			return nil, fmt.Errorf("new: invalid observation shape %v",
				obsShape)
		}
		obsSize *= dim
	}

	b := &Buffer{
		lanes:      make([]*lane, lanes),
		capacity:   capacity,
		obsShape:   append([]int(nil), obsShape...),
		obsSize:    obsSize,
		actionSize: actionSize,
		rng:        rand.New(rand.NewSource(seed)),
	}
	for i := range b.lanes {
		b.lanes[i] = &lane{}
	}
	return b, nil
}

// Lanes returns the number of lanes in the buffer
func (b *Buffer) Lanes() int {
	return len(b.lanes)
}

// Len returns the number of steps stored in lane i
func (b *Buffer) Len(i int) int {
	return b.lanes[i].len()
}

// Pending returns the number of steps in lane i which have not yet
// been returned by Next
func (b *Buffer) Pending(i int) int {
	l := b.lanes[i]
	return l.len() - l.cursor
}

// Add appends a step to lane i. The action is the action which led to
// the step and may be nil for the first step of an episode, in which
// case a zero action is stored.
func (b *Buffer) Add(i int, action *mat.VecDense,
	step timestep.TimeStep) error {
	if i < 0 || i >= len(b.lanes) {
		return fmt.Errorf("add: lane %v out of range [0, %v)", i,
			len(b.lanes))
	}
	if step.Observation == nil || step.Observation.Len() != b.obsSize {
		return fmt.Errorf("add: invalid observation size \n\twant(%v)",
			b.obsSize)
	}
	if action != nil && action.Len() != b.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			b.actionSize, action.Len())
	}

	l := b.lanes[i]
	l.obs = append(l.obs, step.Observation.RawVector().Data...)
	if action == nil {
		l.action = append(l.action, make([]float64, b.actionSize)...)
	} else {
		for j := 0; j < b.actionSize; j++ {
			l.action = append(l.action, action.AtVec(j))
		}
	}
	reset := 0.0
	if step.First() {
		reset = 1.0
	}
	l.reset = append(l.reset, reset)

	if drop := l.len() - b.capacity; drop > 0 {
		b.drop(l, drop)
	}
	return nil
}

// drop removes the n oldest steps from l
func (b *Buffer) drop(l *lane, n int) {
	l.obs = append(l.obs[:0], l.obs[n*b.obsSize:]...)
	l.action = append(l.action[:0], l.action[n*b.actionSize:]...)
	l.reset = append(l.reset[:0], l.reset[n:]...)

	l.cursor -= n
	if l.cursor < 0 {
		l.cursor = 0
	}
}

// Next returns the next window of steps steps from every lane. Windows
// returned by successive calls are consecutive and non-overlapping, so
// state carried from one window continues into the next.
func (b *Buffer) Next(steps int) (Batch, error) {
	if steps <= 0 {
		return Batch{}, fmt.Errorf("next: steps must be > 0")
	}
	starts := make([]int, len(b.lanes))
	for i, l := range b.lanes {
		if l.cursor+steps > l.len() {
			return Batch{}, &SequenceError{
				Op:  "next",
				Err: errInsufficientSamples,
			}
		}
		starts[i] = l.cursor
	}

	batch := b.window(b.lanes, starts, steps)
	for _, l := range b.lanes {
		l.cursor += steps
	}
	return batch, nil
}

// Sample returns a batch of size windows of steps steps, each drawn
// uniformly at random over all windows held in the buffer.
func (b *Buffer) Sample(size, steps int) (Batch, error) {
	if size <= 0 || steps <= 0 {
		return Batch{}, fmt.Errorf("sample: size and steps must be > 0")
	}

	// Number of windows that start in each lane
	total := 0
	empty := true
	windows := make([]int, len(b.lanes))
	for i, l := range b.lanes {
		if l.len() > 0 {
			empty = false
		}
		if n := l.len() - steps + 1; n > 0 {
			windows[i] = n
			total += n
		}
	}
	if empty {
		return Batch{}, &SequenceError{Op: "sample", Err: errEmptyBuffer}
	}
	if total == 0 {
		return Batch{}, &SequenceError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	lanes := make([]*lane, size)
	starts := make([]int, size)
	for i := range lanes {
		index := b.rng.Intn(total)
		for j, n := range windows {
			if index < n {
				lanes[i], starts[i] = b.lanes[j], index
				break
			}
			index -= n
		}
	}
	return b.window(lanes, starts, steps), nil
}

// window copies steps steps starting at starts[i] of each lanes[i]
// into a time-major Batch
func (b *Buffer) window(lanes []*lane, starts []int, steps int) Batch {
	size := len(lanes)
	obs := make([]float64, steps*size*b.obsSize)
	action := make([]float64, steps*size*b.actionSize)
	reset := make([]float64, steps*size)

	for t := 0; t < steps; t++ {
		for i, l := range lanes {
			step := starts[i] + t
			row := t*size + i

			copy(obs[row*b.obsSize:(row+1)*b.obsSize],
				l.obs[step*b.obsSize:(step+1)*b.obsSize])
			copy(action[row*b.actionSize:(row+1)*b.actionSize],
				l.action[step*b.actionSize:(step+1)*b.actionSize])
			reset[row] = l.reset[step]
		}
	}

	obsShape := append([]int{steps, size}, b.obsShape...)
	return Batch{
		Obs: tensor.New(tensor.WithShape(obsShape...),
			tensor.WithBacking(obs)),
		Action: tensor.New(tensor.WithShape(steps, size, b.actionSize),
			tensor.WithBacking(action)),
		Reset: tensor.New(tensor.WithShape(steps, size),
			tensor.WithBacking(reset)),
	}
}
