package environment

import (
	"testing"

	"github.com/samuelfneumann/worldmodel/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestStepLimit(t *testing.T) {
	limit := NewStepLimit(3)
	obs := mat.NewVecDense(1, nil)

	step := timestep.New(timestep.Mid, 0, 1, obs, 2)
	if limit.End(&step) || !step.Mid() {
		t.Error("step 2 should not end the episode")
	}

	step = timestep.New(timestep.Mid, 0, 1, obs, 3)
	if !limit.End(&step) || !step.Last() {
		t.Fatal("step 3 should end the episode")
	}
	if step.EndType() != timestep.Timeout {
		t.Errorf("end type: want(%v) have(%v)", timestep.Timeout,
			step.EndType())
	}
}

func TestEnd(t *testing.T) {
	atOne := NewConditionEnder(func(t *timestep.TimeStep) bool {
		return t.Observation.AtVec(0) == 1
	}, timestep.TerminalStateReached)
	enders := []Ender{atOne, NewStepLimit(5)}

	step := timestep.New(timestep.Mid, 0, 1, mat.NewVecDense(1, nil), 1)
	if End(enders, &step) {
		t.Error("episode should not end")
	}

	// The first ender to end the episode determines the end type
	step = timestep.New(timestep.Mid, 0, 1, mat.NewVecDense(1,
		[]float64{1}), 5)
	if !End(enders, &step) {
		t.Fatal("episode should end")
	}
	if step.EndType() != timestep.TerminalStateReached {
		t.Errorf("end type: want(%v) have(%v)", timestep.TerminalStateReached,
			step.EndType())
	}
}

func TestChoice(t *testing.T) {
	candidates := []*mat.VecDense{
		mat.NewVecDense(2, []float64{0, 0}),
		mat.NewVecDense(2, []float64{1, 2}),
		mat.NewVecDense(2, []float64{3, 1}),
	}

	s, err := NewChoice(candidates, nil, 7)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[float64]int)
	for i := 0; i < 300; i++ {
		start := s.Start()
		if start.Len() != 2 {
			t.Fatalf("start length: want(2) have(%v)", start.Len())
		}
		seen[start.AtVec(0)]++

		// Modifying a start must not modify the candidates
		start.SetVec(1, -1)
	}
	if len(seen) != len(candidates) {
		t.Errorf("sampled %v of %v candidates", len(seen), len(candidates))
	}
	if candidates[1].AtVec(1) != 2 {
		t.Error("start shares memory with its candidate")
	}

	// Candidates of zero weight are never sampled
	s, err = NewChoice(candidates, []float64{0, 0, 2}, 7)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		if v := s.Start().AtVec(0); v != 3 {
			t.Fatalf("sampled zero weight candidate %v", v)
		}
	}

	invalid := []struct {
		name       string
		candidates []*mat.VecDense
		weights    []float64
	}{
		{"no candidates", nil, nil},
		{"weight count", candidates, []float64{1, 1}},
		{"negative weight", candidates, []float64{1, -1, 1}},
		{"zero weights", candidates, []float64{0, 0, 0}},
		{"lengths", append([]*mat.VecDense{mat.NewVecDense(1, nil)},
			candidates...), nil},
	}
	for _, test := range invalid {
		if _, err := NewChoice(test.candidates, test.weights, 1); err == nil {
			t.Errorf("%v: want error", test.name)
		}
	}
}

func TestSpec(t *testing.T) {
	shape := mat.NewVecDense(3, []float64{3, 4, 5})
	bound := mat.NewVecDense(60, nil)
	s := NewSpec(shape, Observation, bound, bound, Discrete)
	if dims := s.Dims(); len(dims) != 3 || dims[0] != 3 || dims[1] != 4 ||
		dims[2] != 5 {
		t.Errorf("dims: want([3 4 5]) have(%v)", dims)
	}
	if s.Size() != 60 {
		t.Errorf("size: want(60) have(%v)", s.Size())
	}

	defer func() {
		if recover() == nil {
			t.Error("mismatched bounds should panic")
		}
	}()
	NewSpec(shape, Observation, bound, mat.NewVecDense(2, nil), Discrete)
}
