package processor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"google.golang.org/protobuf/types/known/structpb"
)

// CELExecutor evaluates scripts as CEL expressions over req and res.
// Expressions have no console or db access; the expression value is the result.
type CELExecutor struct {
	timeout time.Duration

	once    sync.Once
	env     *cel.Env
	envErr  error
	mu      sync.Mutex
	program map[string]cel.Program
}

// NewCELExecutor creates a CEL executor
func NewCELExecutor(timeout time.Duration) *CELExecutor {
	return &CELExecutor{timeout: timeout, program: make(map[string]cel.Program)}
}

// Execute implements Executor
func (x *CELExecutor) Execute(ctx context.Context, source string, b Bindings) (Result, error) {
	prg, err := x.compile(source)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := withBudget(ctx, x.timeout)
	defer cancel()

	out, _, err := prg.ContextEval(ctx, map[string]any{
		"req": b.Request.toMap(),
		"res": b.Response,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %s", ErrTimeout, x.timeout)
		}
		return Result{}, err
	}
	if types.IsError(out) {
		return Result{}, fmt.Errorf("%v", out)
	}

	native, err := out.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return Result{}, fmt.Errorf("unsupported CEL result type %s: %w", out.Type(), err)
	}
	return Result{Value: native.(*structpb.Value).AsInterface(), Response: b.Response}, nil
}

func (x *CELExecutor) compile(source string) (cel.Program, error) {
	x.once.Do(func() {
		x.env, x.envErr = cel.NewEnv(
			cel.Variable("req", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("res", cel.DynType),
		)
	})
	if x.envErr != nil {
		return nil, x.envErr
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if prg, ok := x.program[source]; ok {
		return prg, nil
	}

	ast, issues := x.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}
	prg, err := x.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}
	x.program[source] = prg
	return prg, nil
}
