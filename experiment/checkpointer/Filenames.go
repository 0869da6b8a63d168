package checkpointer

import (
	"fmt"
	"path/filepath"
)

// Namer returns the name of the file that the checkpoint taken after
// the given number of training windows is saved to
type Namer func(window int) string

// Numbered returns a Namer that saves each checkpoint to its own file
// in dir, named by prefix and the zero padded window number, for
// example dir/weights-000100.bin.
func Numbered(dir, prefix, extension string) Namer {
	return func(window int) string {
		return filepath.Join(dir, fmt.Sprintf("%v-%06d%v", prefix, window,
			extension))
	}
}

// Latest returns a Namer that saves every checkpoint to the same file
// in dir, so that only the most recent checkpoint is kept
func Latest(dir, prefix, extension string) Namer {
	name := filepath.Join(dir, prefix+extension)
	return func(int) string {
		return name
	}
}
