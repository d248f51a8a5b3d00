package optimize

import (
	"errors"
	"math/rand"
	"testing"
)

func TestParameterCardinality(t *testing.T) {
	p := Parameter{Name: "fast", Min: 1, Max: 10, Step: 1}
	if p.Cardinality() != 10 {
		t.Fatalf("cardinality = %d, want 10", p.Cardinality())
	}
	p = Parameter{Name: "x", Values: []float64{0.1, 0.2, 0.5}}
	if p.Cardinality() != 3 {
		t.Fatalf("value-set cardinality = %d, want 3", p.Cardinality())
	}
}

func TestSpaceCombinations(t *testing.T) {
	s := Space{Params: []Parameter{
		{Name: "fast", Min: 5, Max: 15, Step: 5},
		{Name: "slow", Values: []float64{20, 50}},
	}}
	if s.Cardinality() != 6 {
		t.Fatalf("cardinality = %d, want 6", s.Cardinality())
	}
	sets, err := s.Combinations(0)
	if err != nil {
		t.Fatalf("combinations: %v", err)
	}
	if len(sets) != 6 {
		t.Fatalf("materialized %d sets, want 6", len(sets))
	}
	seen := map[[2]float64]bool{}
	for _, ps := range sets {
		key := [2]float64{ps["fast"], ps["slow"]}
		if seen[key] {
			t.Fatalf("duplicate combination %v", key)
		}
		seen[key] = true
	}
}

func TestSpaceTooLarge(t *testing.T) {
	s := Space{Params: []Parameter{
		{Name: "a", Min: 0, Max: 999, Step: 1},
		{Name: "b", Min: 0, Max: 999, Step: 1},
	}}
	_, err := s.Combinations(DefaultMaxCombinations)
	var tooLarge *ParameterSpaceTooLargeError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expected ParameterSpaceTooLargeError, got %v", err)
	}
	if tooLarge.Combinations != 1000000 {
		t.Fatalf("reported %d combinations", tooLarge.Combinations)
	}
}

func TestClamp(t *testing.T) {
	p := Parameter{Name: "x", Min: 1, Max: 10, Step: 1}
	if p.Clamp(-5) != 1 || p.Clamp(50) != 10 {
		t.Fatal("range clamp failed")
	}
	p = Parameter{Name: "y", Values: []float64{1, 5, 9}}
	if p.Clamp(6) != 5 {
		t.Fatalf("value-set clamp = %v, want nearest 5", p.Clamp(6))
	}
}

func TestSampleWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := Parameter{Name: "x", Min: 2, Max: 4, Step: 0.5}
	for i := 0; i < 100; i++ {
		v := p.Sample(rng)
		if v < 2 || v > 4 {
			t.Fatalf("sample %v out of bounds", v)
		}
	}
}
