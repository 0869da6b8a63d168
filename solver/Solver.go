// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into the configuration files of
// world model trainers.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	RMSProp Type = "RMSProp"
	Vanilla Type = "Vanilla"
)

// configTypes maps each Type to the concrete Config describing it
var configTypes = map[string]reflect.Type{
	string(Vanilla): reflect.TypeOf(VanillaConfig{}),
	string(Adam):    reflect.TypeOf(AdamConfig{}),
	string(RMSProp): reflect.TypeOf(RMSPropConfig{}),
}

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// New returns the solver described by c
func New(c Config) (*Solver, error) {
	if c == nil {
		return nil, fmt.Errorf("new: nil config")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid %v config: %v", c.Type(), err)
	}
	return &Solver{Solver: c.Create(), Type: c.Type(), Config: c}, nil
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var typeName string
	if err := json.Unmarshal(m["Type"], &typeName); err != nil {
		return fmt.Errorf("unmarshalJSON: missing field %q", "Type")
	}
	ty, found := configTypes[typeName]
	if !found {
		return fmt.Errorf("unmarshalJSON: unknown solver type %q", typeName)
	}

	value := reflect.New(ty)
	if raw, ok := m["Config"]; ok {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return fmt.Errorf("unmarshalJSON: %v", err)
		}
	}

	decoded, err := New(value.Elem().Interface().(Config))
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	*s = *decoded
	return nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver
	Type() Type

	// Validate returns an error if the hyperparameters cannot be used
	Validate() error
}
