// Package config loads YAML run files for the command line tools.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/montecarlo"
	"strategy-backtest/services/optimize"
	"strategy-backtest/services/validate"
)

// Strategy selects a built-in signal source and its fixed parameters.
type Strategy struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// ParameterSpec is the YAML shape of one optimizable parameter.
type ParameterSpec struct {
	Name   string    `yaml:"name"`
	Min    float64   `yaml:"min"`
	Max    float64   `yaml:"max"`
	Step   float64   `yaml:"step"`
	Values []float64 `yaml:"values"`
}

// OptimizeSpec configures the optimizer CLI.
type OptimizeSpec struct {
	Mode            string          `yaml:"mode"` // grid or genetic
	Metric          string          `yaml:"metric"`
	Workers         int             `yaml:"workers"`
	MaxCombinations int             `yaml:"maxCombinations"`
	Parameters      []ParameterSpec `yaml:"parameters"`
	MaxDrawdown     float64         `yaml:"maxDrawdownPercent"`
	MinTrades       int             `yaml:"minTrades"`

	PopulationSize int     `yaml:"populationSize"`
	Generations    int     `yaml:"generations"`
	ElitismRate    float64 `yaml:"elitismRate"`
	MutationRate   float64 `yaml:"mutationRate"`
	Seed           int64   `yaml:"seed"`
}

// WalkForwardSpec configures fold generation for validation runs.
type WalkForwardSpec struct {
	Enabled         bool    `yaml:"enabled"`
	Method          string  `yaml:"method"` // rolling or ratio
	TrainWindowDays int     `yaml:"trainWindowDays"`
	TestWindowDays  int     `yaml:"testWindowDays"`
	StepDays        int     `yaml:"stepDays"`
	TrainRatio      float64 `yaml:"trainRatio"`
	TestRatio       float64 `yaml:"testRatio"`
	NumFolds        int     `yaml:"numFolds"`
	EmbargoDays     int     `yaml:"embargoDays"`
}

// MonteCarloSpec configures the resampling pass.
type MonteCarloSpec struct {
	Enabled         bool    `yaml:"enabled"`
	NumRuns         int     `yaml:"numRuns"`
	ConfidenceLevel float64 `yaml:"confidenceLevel"`
	BootstrapMethod string  `yaml:"bootstrapMethod"`
	Seed            int64   `yaml:"seed"`
	Workers         int     `yaml:"workers"`
}

// RunFile is the top-level YAML document.
type RunFile struct {
	DataFile    string          `yaml:"dataFile"`
	OutputDir   string          `yaml:"outputDir"`
	Backtest    engine.Config   `yaml:"backtest"`
	Strategy    Strategy        `yaml:"strategy"`
	Optimize    OptimizeSpec    `yaml:"optimize"`
	WalkForward WalkForwardSpec `yaml:"walkForward"`
	MonteCarlo  MonteCarloSpec  `yaml:"monteCarlo"`
}

// Load reads and validates a run file.
func Load(path string) (*RunFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var rf RunFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Validate checks what the CLIs need up front; the engine re-validates
// its own section on every run.
func (rf *RunFile) Validate() error {
	if rf.DataFile == "" {
		return fmt.Errorf("dataFile is required")
	}
	rf.Backtest = rf.Backtest.WithDefaults()
	if err := rf.Backtest.Validate(); err != nil {
		return err
	}
	switch rf.Strategy.Name {
	case "", "crossover", "scripted":
	default:
		return fmt.Errorf("unknown strategy %q", rf.Strategy.Name)
	}
	switch rf.Optimize.Mode {
	case "", "grid", "genetic":
	default:
		return fmt.Errorf("unknown optimize mode %q", rf.Optimize.Mode)
	}
	if rf.WalkForward.Enabled {
		switch rf.WalkForward.Method {
		case "rolling", "ratio":
		default:
			return fmt.Errorf("unknown walk-forward method %q", rf.WalkForward.Method)
		}
	}
	if rf.MonteCarlo.Enabled {
		switch rf.MonteCarlo.BootstrapMethod {
		case "", string(montecarlo.MethodShuffle), string(montecarlo.MethodBootstrap):
		default:
			return fmt.Errorf("unknown bootstrap method %q", rf.MonteCarlo.BootstrapMethod)
		}
	}
	return nil
}

// Space converts the parameter list to an optimizer search space.
func (o OptimizeSpec) Space() optimize.Space {
	sp := optimize.Space{Params: make([]optimize.Parameter, 0, len(o.Parameters))}
	for _, p := range o.Parameters {
		sp.Params = append(sp.Params, optimize.Parameter{
			Name:   p.Name,
			Min:    p.Min,
			Max:    p.Max,
			Step:   p.Step,
			Values: p.Values,
		})
	}
	return sp
}

// Objective builds the scoring objective for the optimizer.
func (o OptimizeSpec) Objective() optimize.Objective {
	metric := o.Metric
	if metric == "" {
		metric = optimize.MetricSharpe
	}
	return optimize.Objective{
		Metric: metric,
		Constraints: optimize.Constraints{
			MaxDrawdownPercent: o.MaxDrawdown,
			MinTrades:          o.MinTrades,
		},
	}
}

// Plan converts the walk-forward section to a fold plan.
func (wf WalkForwardSpec) Plan() validate.FoldPlan {
	plan := validate.FoldPlan{
		EmbargoPeriod: time.Duration(wf.EmbargoDays) * 24 * time.Hour,
	}
	if wf.Method == "ratio" {
		plan.Method = validate.MethodRatio
		plan.TrainRatio = wf.TrainRatio
		plan.TestRatio = wf.TestRatio
		plan.NumFolds = wf.NumFolds
	} else {
		plan.Method = validate.MethodRolling
		plan.TrainWindowDays = wf.TrainWindowDays
		plan.TestWindowDays = wf.TestWindowDays
		plan.StepDays = wf.StepDays
	}
	return plan
}

// Config converts the Monte Carlo section to an engine config.
func (mc MonteCarloSpec) Config() montecarlo.Config {
	method := montecarlo.MethodShuffle
	if mc.BootstrapMethod != "" {
		method = montecarlo.BootstrapMethod(mc.BootstrapMethod)
	}
	conf := mc.ConfidenceLevel
	if conf == 0 {
		conf = 0.95
	}
	return montecarlo.Config{
		NumRuns:         mc.NumRuns,
		ConfidenceLevel: conf,
		BootstrapMethod: method,
		Seed:            mc.Seed,
		Workers:         mc.Workers,
	}
}
