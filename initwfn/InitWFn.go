// Package initwfn implements seeded weight initializers for the
// networks of world models. Each initializer is described by a Config
// that can be JSON serialized into the configuration files of world
// models, so that a configuration fully determines the initial weights.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU    Type = "GlorotU"
	GlorotN    Type = "GlorotN"
	HeU        Type = "HeU"
	HeN        Type = "HeN"
	Constant   Type = "Constant"
	Uniform    Type = "Uniform"
	Gaussian   Type = "Gaussian"
	Orthogonal Type = "Orthogonal"
)

// configTypes maps each Type to the concrete Config describing it
var configTypes = map[string]reflect.Type{
	string(GlorotU):    reflect.TypeOf(GlorotUConfig{}),
	string(GlorotN):    reflect.TypeOf(GlorotNConfig{}),
	string(HeU):        reflect.TypeOf(HeUConfig{}),
	string(HeN):        reflect.TypeOf(HeNConfig{}),
	string(Constant):   reflect.TypeOf(ConstantConfig{}),
	string(Uniform):    reflect.TypeOf(UniformConfig{}),
	string(Gaussian):   reflect.TypeOf(GaussianConfig{}),
	string(Orthogonal): reflect.TypeOf(OrthogonalConfig{}),
}

// InitWFn wraps a Gorgonia InitWFn together with the Config that
// created it, so that it can be JSON marshalled and unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// New returns the InitWFn described by c
func New(c Config) (*InitWFn, error) {
	if c == nil {
		return nil, fmt.Errorf("new: nil config")
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid %v config: %v", c.Type(), err)
	}
	return &InitWFn{initWFn: c.Create(), Type: c.Type(), Config: c}, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn. Every call of the
// returned function draws from the same random source, so two weight
// tensors initialized in sequence differ.
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (w *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %+v}", w.Type, w.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (w *InitWFn) UnmarshalJSON(data []byte) error {
	config, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return err
	}

	decoded, err := New(config)
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	*w = *decoded
	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into the
// concrete type named by the typeField of data
func unmarshalConfig(data []byte, typeField, valueField string) (Config,
	error) {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	var typeName string
	if err := json.Unmarshal(m[typeField], &typeName); err != nil {
		return nil, fmt.Errorf("unmarshalConfig: missing field %q",
			typeField)
	}
	ty, found := configTypes[typeName]
	if !found {
		return nil, fmt.Errorf("unmarshalConfig: unknown initializer "+
			"type %q", typeName)
	}

	value := reflect.New(ty)
	if raw, ok := m[valueField]; ok {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return nil, fmt.Errorf("unmarshalConfig: %v", err)
		}
	}
	return value.Elem().Interface().(Config), nil
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type

	// Validate returns an error if the Config does not describe a
	// usable initializer
	Validate() error
}

// fill returns n values drawn from next as a slice of dtype dt
func fill(dt tensor.Dtype, n int, next func() float64) interface{} {
	switch dt {
	case tensor.Float64:
		values := make([]float64, n)
		for i := range values {
			values[i] = next()
		}
		return values
	case tensor.Float32:
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(next())
		}
		return values
	default:
		panic(fmt.Sprintf("fill: dtype %v not supported", dt))
	}
}

// fans returns the fan in and fan out of a weight tensor. Matrices
// map rows to columns, and 4D tensors are convolution filters of shape
// (out, in, kh, kw).
func fans(shape ...int) (in, out int) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return shape[0], shape[0]
	case 4:
		field := shape[2] * shape[3]
		return shape[1] * field, shape[0] * field
	default:
		out = 1
		for _, dim := range shape[1:] {
			out *= dim
		}
		return shape[0], out
	}
}
