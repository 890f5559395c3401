package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// JSExecutor runs scripts as the body of an async JavaScript function with
// req, res, console and db in scope.
type JSExecutor struct {
	timeout time.Duration
}

// NewJSExecutor creates a JavaScript executor. A zero timeout disables the budget.
func NewJSExecutor(timeout time.Duration) *JSExecutor {
	return &JSExecutor{timeout: timeout}
}

// Execute implements Executor. A fresh runtime is used for every call.
func (x *JSExecutor) Execute(ctx context.Context, source string, b Bindings) (Result, error) {
	ctx, cancel := withBudget(ctx, x.timeout)
	defer cancel()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if b.Console == nil {
		b.Console = &Console{}
	}
	if err := x.bind(ctx, vm, b); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ErrTimeout)
		case <-done:
		}
	}()

	value, err := vm.RunString("(async function () {\n" + source + "\n})()")
	if err != nil {
		return Result{}, x.runError(ctx, err)
	}

	res := exportValue(vm.Get("res"))
	promise, ok := value.Export().(*goja.Promise)
	if !ok {
		return Result{Value: exportValue(value), Response: res}, nil
	}

	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return Result{Value: exportValue(promise.Result()), Response: res}, nil
	case goja.PromiseStateRejected:
		return Result{}, errors.New(errorMessage(promise.Result()))
	}
	return Result{}, errors.New("processor did not complete: awaited promise never settled")
}

func (x *JSExecutor) bind(ctx context.Context, vm *goja.Runtime, b Bindings) error {
	if err := vm.Set("req", b.Request.toMap()); err != nil {
		return err
	}
	if err := vm.Set("res", b.Response); err != nil {
		return err
	}

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = stringifyArg(exportValue(arg))
		}
		b.Console.Log(strings.Join(parts, " "))
		return goja.Undefined()
	}
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, logFn); err != nil {
			return err
		}
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	db := vm.NewObject()
	if err := db.Set("query", func(call goja.FunctionCall) goja.Value {
		return settle(vm, func() (any, error) {
			if b.DB == nil {
				return nil, ErrNoDatastore
			}
			rows, err := b.DB.Query(ctx, call.Argument(0).String(), params(call.Argument(1)))
			if err != nil {
				return nil, err
			}
			out := make([]any, len(rows))
			for i, row := range rows {
				out[i] = row
			}
			return out, nil
		})
	}); err != nil {
		return err
	}
	if err := db.Set("exec", func(call goja.FunctionCall) goja.Value {
		return settle(vm, func() (any, error) {
			if b.DB == nil {
				return nil, ErrNoDatastore
			}
			result, err := b.DB.Exec(ctx, call.Argument(0).String(), params(call.Argument(1)))
			if err != nil {
				return nil, err
			}
			return map[string]any{"changes": result.Changes, "lastID": result.LastID}, nil
		})
	}); err != nil {
		return err
	}
	return vm.Set("db", db)
}

// settle runs fn and hands its outcome to the script as a promise
func settle(vm *goja.Runtime, fn func() (any, error)) goja.Value {
	promise, resolve, reject := vm.NewPromise()
	if value, err := fn(); err != nil {
		reject(vm.NewGoError(err))
	} else {
		resolve(value)
	}
	return vm.ToValue(promise)
}

func (x *JSExecutor) runError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, x.timeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTimeout
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return errors.New(errorMessage(exception.Value()))
	}
	return err
}

// errorMessage returns the message of a thrown value; Error objects yield their message property
func errorMessage(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return v.String()
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func params(v goja.Value) []any {
	switch p := exportValue(v).(type) {
	case nil:
		return nil
	case []any:
		return p
	default:
		return []any{p}
	}
}
