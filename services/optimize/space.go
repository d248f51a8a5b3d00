// Package optimize searches a parameter space with grid search or a genetic
// algorithm, scoring candidate backtests against single- or multi-objective
// criteria.
package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DefaultMaxCombinations bounds grid materialization.
const DefaultMaxCombinations = 10000

// Parameter is one tunable dimension: either a discrete value set or a
// (min, max, step) range.
type Parameter struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values,omitempty"`
	Min    float64   `json:"min,omitempty"`
	Max    float64   `json:"max,omitempty"`
	Step   float64   `json:"step,omitempty"`
}

// Cardinality is the number of distinct values this parameter can take.
func (p Parameter) Cardinality() int {
	if len(p.Values) > 0 {
		return len(p.Values)
	}
	if p.Step <= 0 || p.Max < p.Min {
		return 0
	}
	return int(math.Floor((p.Max-p.Min)/p.Step+1e-9)) + 1
}

// Enumerate lists every value of the parameter.
func (p Parameter) Enumerate() []float64 {
	if len(p.Values) > 0 {
		return append([]float64(nil), p.Values...)
	}
	n := p.Cardinality()
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.Min+float64(i)*p.Step)
	}
	return out
}

// Sample draws a uniform random value within the parameter's domain.
func (p Parameter) Sample(rng *rand.Rand) float64 {
	if len(p.Values) > 0 {
		return p.Values[rng.Intn(len(p.Values))]
	}
	return p.Min + rng.Float64()*(p.Max-p.Min)
}

// Clamp forces v back into the parameter's valid range. For discrete value
// sets it snaps to the nearest listed value.
func (p Parameter) Clamp(v float64) float64 {
	if len(p.Values) > 0 {
		best, dist := p.Values[0], math.Abs(v-p.Values[0])
		for _, c := range p.Values[1:] {
			if d := math.Abs(v - c); d < dist {
				best, dist = c, d
			}
		}
		return best
	}
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Space is a named parameter collection.
type Space struct {
	Params []Parameter
}

// ParamSet is one concrete assignment of values to parameter names.
type ParamSet map[string]float64

// Clone copies the set.
func (ps ParamSet) Clone() ParamSet {
	out := make(ParamSet, len(ps))
	for k, v := range ps {
		out[k] = v
	}
	return out
}

// Cardinality is the grid size: the product of per-parameter cardinalities.
func (s Space) Cardinality() int {
	if len(s.Params) == 0 {
		return 0
	}
	total := 1
	for _, p := range s.Params {
		total *= p.Cardinality()
	}
	return total
}

// ParameterSpaceTooLargeError reports a grid past the configured ceiling.
// Fatal: the caller must narrow the ranges.
type ParameterSpaceTooLargeError struct {
	Combinations int
	Limit        int
}

func (e *ParameterSpaceTooLargeError) Error() string {
	return fmt.Sprintf("parameter space too large: %d combinations exceed limit %d", e.Combinations, e.Limit)
}

// Combinations materializes every point of the grid in a stable order.
func (s Space) Combinations(limit int) ([]ParamSet, error) {
	if limit <= 0 {
		limit = DefaultMaxCombinations
	}
	total := s.Cardinality()
	if total > limit {
		return nil, &ParameterSpaceTooLargeError{Combinations: total, Limit: limit}
	}
	sets := []ParamSet{{}}
	for _, p := range s.Params {
		values := p.Enumerate()
		next := make([]ParamSet, 0, len(sets)*len(values))
		for _, base := range sets {
			for _, v := range values {
				ps := base.Clone()
				ps[p.Name] = v
				next = append(next, ps)
			}
		}
		sets = next
	}
	return sets, nil
}

// SampleSet draws a random point from the space.
func (s Space) SampleSet(rng *rand.Rand) ParamSet {
	ps := make(ParamSet, len(s.Params))
	for _, p := range s.Params {
		ps[p.Name] = p.Sample(rng)
	}
	return ps
}

// Names returns parameter names in declaration order.
func (s Space) Names() []string {
	out := make([]string, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Name
	}
	return out
}

// sortedKeys gives a deterministic iteration order over a ParamSet.
func sortedKeys(ps ParamSet) []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
