package network

import (
	"encoding/json"
	"fmt"

	"github.com/samuelfneumann/worldmodel/utils/op"
	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu     activationType = "relu"
	elu      activationType = "elu"
	identity activationType = "identity"
	tanh     activationType = "tanh"
	sigmoid  activationType = "sigmoid"
	nil_     activationType = "nil"
)

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// Fwd performs the forward pass of an Activation
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	if a.IsNil() {
		return x, nil
	}
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// IsNil returns whether an activation is nil
func (a *Activation) IsNil() bool {
	return a == nil || a.activationType == nil_
}

// MarshalJSON implements the json.Marshaler interface
func (a *Activation) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a.activationType))
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (a *Activation) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	decoded, err := activationFromType(activationType(name))
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}
	*a = *decoded
	return nil
}

// activationFromType returns the Activation of the given type
func activationFromType(t activationType) (*Activation, error) {
	switch t {
	case relu:
		return ReLU(), nil
	case elu:
		return ELU(), nil
	case identity:
		return Identity(), nil
	case tanh:
		return TanH(), nil
	case sigmoid:
		return Sigmoid(), nil
	case nil_:
		return Nil(), nil
	default:
		return nil, fmt.Errorf("illegal Activation type %q", t)
	}
}

// Nil returns a nil *Activation
func Nil() *Activation {
	return &Activation{
		activationType: nil_,
		f:              nil,
	}
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              G.Rectify,
	}
}

// ELU returns an exponential linear unit *Activation with α = 1
func ELU() *Activation {
	return &Activation{
		activationType: elu,
		f:              op.ELU,
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f:              G.Tanh,
	}
}

// Sigmoid returns a logistic sigmoid *Activation
func Sigmoid() *Activation {
	return &Activation{
		activationType: sigmoid,
		f:              G.Sigmoid,
	}
}
