package checkpointer

import (
	"fmt"
	"os"
	"path/filepath"
)

// nStep implements checkpointing every N windows
type nStep struct {
	interval int
	object   Serializable
	name     Namer
}

// NewNStep returns a checkpointer that saves object every n windows
// to the files named by name. Missing directories are created when
// the first checkpoint is saved.
func NewNStep(n int, object Serializable, name Namer) (Checkpointer,
	error) {
	if n <= 0 {
		return nil, fmt.Errorf("newNStep: interval must be > 0, have %v", n)
	}
	if object == nil || name == nil {
		return nil, fmt.Errorf("newNStep: object and namer must not be nil")
	}
	return &nStep{interval: n, object: object, name: name}, nil
}

// Checkpoint saves the tracked object if window is a positive multiple
// of the checkpointing interval
func (n *nStep) Checkpoint(window int) error {
	if window <= 0 || window%n.interval != 0 {
		return nil
	}

	filename := n.name(window)
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: could not create %v: %v", dir, err)
		}
	}
	if err := n.object.Save(filename); err != nil {
		return fmt.Errorf("checkpoint: window %v: %v", window, err)
	}
	return nil
}
