// Package validate checks whether a strategy's edge survives out-of-sample:
// walk-forward folds with embargo, significance testing, and perturbation
// robustness.
package validate

import (
	"fmt"
	"time"
)

// Fold is one non-overlapping train/test window pair. The embargo gap
// between them prevents lookahead leakage; a fold's test window never
// precedes or overlaps its own train window.
type Fold struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"trainStart"`
	TrainEnd   time.Time `json:"trainEnd"`
	TestStart  time.Time `json:"testStart"`
	TestEnd    time.Time `json:"testEnd"`
}

// Validate enforces the fold invariants.
func (f Fold) Validate(embargo time.Duration) error {
	if !f.TrainEnd.After(f.TrainStart) {
		return fmt.Errorf("fold %d: empty train window", f.Index)
	}
	if !f.TestEnd.After(f.TestStart) {
		return fmt.Errorf("fold %d: empty test window", f.Index)
	}
	if f.TestStart.Before(f.TrainEnd.Add(embargo)) {
		return fmt.Errorf("fold %d: test window starts before train end plus embargo", f.Index)
	}
	return nil
}

// FoldMethod selects how the candle range is split.
type FoldMethod string

const (
	MethodRolling FoldMethod = "rolling"
	MethodRatio   FoldMethod = "ratio"
)

// FoldPlan is the fold-generation configuration, using the collaborator
// field names.
type FoldPlan struct {
	Method FoldMethod `json:"method" yaml:"method"`

	// Rolling windows.
	TrainWindowDays int `json:"trainWindowDays,omitempty" yaml:"train_window_days"`
	TestWindowDays  int `json:"testWindowDays,omitempty" yaml:"test_window_days"`
	StepDays        int `json:"stepDays,omitempty" yaml:"step_days"`

	// Ratio-based k-fold.
	TrainRatio float64 `json:"trainRatio,omitempty" yaml:"train_ratio"`
	TestRatio  float64 `json:"testRatio,omitempty" yaml:"test_ratio"`
	NumFolds   int     `json:"numFolds,omitempty" yaml:"num_folds"`

	// EmbargoPeriod is the mandatory train/test gap.
	EmbargoPeriod time.Duration `json:"embargoPeriod" yaml:"embargo_period"`
}

// Folds splits [start, end) according to the plan. Every returned fold
// satisfies Validate and test windows never overlap each other.
func (p FoldPlan) Folds(start, end time.Time) ([]Fold, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("fold plan: empty date range")
	}
	switch p.Method {
	case MethodRatio:
		return p.ratioFolds(start, end)
	case MethodRolling, "":
		return p.rollingFolds(start, end)
	}
	return nil, fmt.Errorf("fold plan: unknown method %q", p.Method)
}

func (p FoldPlan) rollingFolds(start, end time.Time) ([]Fold, error) {
	if p.TrainWindowDays <= 0 || p.TestWindowDays <= 0 {
		return nil, fmt.Errorf("fold plan: trainWindowDays and testWindowDays must be > 0")
	}
	step := p.StepDays
	if step <= 0 {
		step = p.TestWindowDays
	}
	train := time.Duration(p.TrainWindowDays) * 24 * time.Hour
	test := time.Duration(p.TestWindowDays) * 24 * time.Hour
	stride := time.Duration(step) * 24 * time.Hour

	var folds []Fold
	for cursor := start; ; cursor = cursor.Add(stride) {
		trainEnd := cursor.Add(train)
		testStart := trainEnd.Add(p.EmbargoPeriod)
		testEnd := testStart.Add(test)
		if testEnd.After(end) {
			break
		}
		folds = append(folds, Fold{
			Index:      len(folds),
			TrainStart: cursor,
			TrainEnd:   trainEnd,
			TestStart:  testStart,
			TestEnd:    testEnd,
		})
	}
	if len(folds) == 0 {
		return nil, fmt.Errorf("fold plan: range too short for any fold")
	}
	return folds, nil
}

// ratioFolds divides the range into NumFolds equal segments; inside each,
// train takes TrainRatio and test takes TestRatio of the segment, separated
// by the embargo.
func (p FoldPlan) ratioFolds(start, end time.Time) ([]Fold, error) {
	if p.NumFolds <= 0 {
		return nil, fmt.Errorf("fold plan: numFolds must be > 0")
	}
	trainRatio, testRatio := p.TrainRatio, p.TestRatio
	if trainRatio <= 0 {
		trainRatio = 0.7
	}
	if testRatio <= 0 {
		testRatio = 1 - trainRatio
	}
	if trainRatio+testRatio > 1+1e-9 {
		return nil, fmt.Errorf("fold plan: trainRatio+testRatio must not exceed 1")
	}
	segment := end.Sub(start) / time.Duration(p.NumFolds)
	if segment <= p.EmbargoPeriod {
		return nil, fmt.Errorf("fold plan: segments shorter than embargo period")
	}
	usable := segment - p.EmbargoPeriod

	var folds []Fold
	for i := 0; i < p.NumFolds; i++ {
		segStart := start.Add(time.Duration(i) * segment)
		trainEnd := segStart.Add(time.Duration(float64(usable) * trainRatio))
		testStart := trainEnd.Add(p.EmbargoPeriod)
		testEnd := testStart.Add(time.Duration(float64(usable) * testRatio))
		f := Fold{Index: i, TrainStart: segStart, TrainEnd: trainEnd, TestStart: testStart, TestEnd: testEnd}
		if err := f.Validate(p.EmbargoPeriod); err != nil {
			return nil, err
		}
		folds = append(folds, f)
	}
	return folds, nil
}
