package state

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoEvaluator = errors.New("state: evaluator not configured")

// computedEvaluator runs expression-backed definitions through the configured
// engine, instrumenting every evaluation.
type computedEvaluator struct {
	mu        sync.Mutex
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	logger    EvaluatorLogger
}

func (e *computedEvaluator) evaluate(name, expression string, env Snapshot) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	evaluator, err := e.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	ctx := EvalContext{Snapshot: map[string]any(env), Computed: name}.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expression)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, expression, ctx.computedLabel(), evalErr)
	e.evaluatorLogger().LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expression,
		Computed: ctx.computedLabel(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func (e *computedEvaluator) resolveEvaluator() (Evaluator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evaluator != nil {
		return e.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if e.cache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(e.cache))
	}
	if e.functions != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(e.functions))
	}
	defaultEvaluator := NewExprEvaluator(exprOpts...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	e.evaluator = defaultEvaluator
	return defaultEvaluator, nil
}

func (e *computedEvaluator) evaluatorLogger() EvaluatorLogger {
	if e.logger != nil {
		return e.logger
	}
	return noopEvaluatorLogger{}
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*state.exprEvaluator":
		return "expr"
	case "*state.celEvaluator":
		return "cel"
	case "*state.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
