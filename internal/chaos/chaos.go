// Package chaos runs fault-injection experiments against the catalog loader.
package chaos

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Experiment defines one chaos test: a method that drives the system under
// injected faults and reports observations, and assertions over them.
type Experiment struct {
	Name       string
	Hypothesis string
	Method     func(context.Context) (Observations, error)
	Validation []Assertion
	Timeout    time.Duration
}

// Observations are named measurements taken while the experiment ran.
type Observations map[string]float64

// Assertion validates one observation.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// ExperimentResult captures experiment execution data.
type ExperimentResult struct {
	ExperimentName string        `json:"experiment_name"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	HypothesisHeld bool          `json:"hypothesis_held"`
	Observations   Observations  `json:"observations"`
	Violations     []string      `json:"violations,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// Engine orchestrates chaos experiments.
type Engine struct {
	tracer      trace.Tracer
	logger      *zap.Logger
	experiments []Experiment
	results     []ExperimentResult
	mu          sync.Mutex
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		tracer: otel.Tracer("gallery/chaos"),
		logger: logger,
	}
}

// RegisterExperiment adds an experiment to the suite.
func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Experiment, len(e.experiments))
	copy(out, e.experiments)
	return out
}

// Results returns every result recorded so far.
func (e *Engine) Results() []ExperimentResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ExperimentResult, len(e.results))
	copy(out, e.results)
	return out
}

// RunExperiment executes a single experiment. An error from the method is
// recorded on the result and fails the hypothesis; it is not returned.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) ExperimentResult {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	if exp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exp.Timeout)
		defer cancel()
	}

	result := ExperimentResult{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
	}

	span.AddEvent("injecting_chaos")
	obs, err := exp.Method(ctx)
	result.Observations = obs
	if err != nil {
		span.RecordError(err)
		result.Error = err.Error()
	}

	span.AddEvent("validating_assertions")
	result.Violations = validate(exp.Validation, obs)
	result.HypothesisHeld = err == nil && len(result.Violations) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	e.logger.Info("chaos experiment finished",
		zap.String("experiment", exp.Name),
		zap.Bool("hypothesis_held", result.HypothesisHeld),
		zap.Strings("violations", result.Violations),
		zap.Duration("duration", result.Duration),
	)
	return result
}

// RunAll executes every registered experiment in order and prints a report to w.
func (e *Engine) RunAll(ctx context.Context, w io.Writer) []ExperimentResult {
	exps := e.Experiments()
	results := make([]ExperimentResult, 0, len(exps))
	for i, exp := range exps {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(w, "\n🔬 Experiment %d/%d: %s\n", i+1, len(exps), exp.Name)
		fmt.Fprintf(w, "💡 Hypothesis: %s\n", exp.Hypothesis)
		res := e.RunExperiment(ctx, exp)
		printResult(w, res)
		results = append(results, res)
	}
	return results
}

func validate(assertions []Assertion, obs Observations) []string {
	var violations []string
	for _, a := range assertions {
		v, ok := obs[a.Metric]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: not observed", a.Metric))
			continue
		}
		if !a.Condition(v) {
			violations = append(violations, fmt.Sprintf("%s: %s (got %.2f)", a.Metric, a.Message, v))
		}
	}
	return violations
}

func printResult(w io.Writer, result ExperimentResult) {
	if result.HypothesisHeld {
		fmt.Fprintf(w, "✅ Hypothesis held - System behaved as expected\n")
	} else {
		fmt.Fprintf(w, "❌ Hypothesis violated - Unexpected behavior observed\n")
	}
	if result.Error != "" {
		fmt.Fprintf(w, "⚠️  Error: %s\n", result.Error)
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "   - %s\n", v)
	}
	fmt.Fprintf(w, "📊 Duration: %s\n", result.Duration)
}
