// Package checkpointer implements checkpointing of the weights of
// world models during an experiment
package checkpointer

// Serializable is an object that can be saved to a file
type Serializable interface {
	Save(filename string) error
}

// Checkpointer checkpoints/saves serializable objects based on the
// number of training windows run
type Checkpointer interface {
	Checkpoint(window int) error
}
