package validate

import (
	"testing"
	"time"
)

func TestRollingFolds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(100 * 24 * time.Hour)
	plan := FoldPlan{
		Method:          MethodRolling,
		TrainWindowDays: 30,
		TestWindowDays:  10,
		StepDays:        10,
		EmbargoPeriod:   24 * time.Hour,
	}
	folds, err := plan.Folds(start, end)
	if err != nil {
		t.Fatalf("folds: %v", err)
	}
	if len(folds) == 0 {
		t.Fatal("expected folds")
	}
	for i, f := range folds {
		if err := f.Validate(plan.EmbargoPeriod); err != nil {
			t.Fatalf("fold %d invalid: %v", i, err)
		}
		if f.TestStart.Before(f.TrainEnd.Add(plan.EmbargoPeriod)) {
			t.Fatalf("fold %d: embargo violated", i)
		}
		if i > 0 && folds[i].TestStart.Before(folds[i-1].TestEnd) {
			t.Fatalf("fold %d: test windows overlap", i)
		}
		if f.TestEnd.After(end) {
			t.Fatalf("fold %d: extends past range end", i)
		}
	}
}

func TestRatioFolds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(200 * 24 * time.Hour)
	plan := FoldPlan{
		Method:        MethodRatio,
		NumFolds:      4,
		TrainRatio:    0.7,
		TestRatio:     0.3,
		EmbargoPeriod: 12 * time.Hour,
	}
	folds, err := plan.Folds(start, end)
	if err != nil {
		t.Fatalf("folds: %v", err)
	}
	if len(folds) != 4 {
		t.Fatalf("got %d folds, want 4", len(folds))
	}
	for i, f := range folds {
		if err := f.Validate(plan.EmbargoPeriod); err != nil {
			t.Fatalf("fold %d invalid: %v", i, err)
		}
	}
}

func TestFoldsRejectBadPlans(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := (FoldPlan{Method: MethodRolling, TrainWindowDays: 30, TestWindowDays: 10}).Folds(start, start.Add(5*24*time.Hour)); err == nil {
		t.Fatal("expected error for range too short")
	}
	if _, err := (FoldPlan{Method: MethodRatio, NumFolds: 2, TrainRatio: 0.8, TestRatio: 0.5}).Folds(start, start.Add(100*24*time.Hour)); err == nil {
		t.Fatal("expected error for ratios exceeding 1")
	}
	if _, err := (FoldPlan{}).Folds(start, start); err == nil {
		t.Fatal("expected error for empty range")
	}
}
