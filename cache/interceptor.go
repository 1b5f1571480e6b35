package cache

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/kv"
	"github.com/shopmonkeyus/go-kvcache/logger"
)

// Invocation is one call of an instrumented operation.
type Invocation struct {
	// Operation is the identity used for the call counter and history keys.
	Operation string
	// Args are the rendered arguments of the call.
	Args []string
}

// Input is the textual form of the call's arguments as recorded in history.
func (i Invocation) Input() string {
	return strings.Join(i.Args, ", ")
}

// Operation performs a call and returns its rendered result.
type Operation func(ctx context.Context, inv Invocation) (string, error)

// Interceptor wraps an Operation with additional behavior.
type Interceptor func(next Operation) Operation

// Chain wraps op so the first interceptor is the outermost one.
func Chain(op Operation, interceptors ...Interceptor) Operation {
	for i := len(interceptors) - 1; i >= 0; i-- {
		op = interceptors[i](op)
	}
	return op
}

// HistoryKeys returns the list keys holding the inputs and outputs of operation.
func HistoryKeys(operation string) (inputs string, outputs string) {
	return operation + ":inputs", operation + ":outputs"
}

// CountCalls increments the counter named by the operation identity before
// calling next. next is called even when the increment fails; both errors are
// reported.
func CountCalls(store kv.Store) Interceptor {
	return func(next Operation) Operation {
		return func(ctx context.Context, inv Invocation) (string, error) {
			var countErr error
			if _, err := store.Incr(ctx, inv.Operation); err != nil {
				countErr = errors.Wrapf(err, "error incrementing call counter for %s", inv.Operation)
			}
			out, err := next(ctx, inv)
			return out, errors.CombineErrors(countErr, err)
		}
	}
}

// RecordHistory appends the call's input to the inputs list, calls next and
// appends its result to the outputs list. Every step is attempted regardless
// of earlier failures and nothing is rolled back.
func RecordHistory(store kv.Store) Interceptor {
	return func(next Operation) Operation {
		return func(ctx context.Context, inv Invocation) (string, error) {
			inputs, outputs := HistoryKeys(inv.Operation)
			var inErr, outErr error
			if err := store.Append(ctx, inputs, []byte(inv.Input())); err != nil {
				inErr = errors.Wrapf(err, "error recording input for %s", inv.Operation)
			}
			out, err := next(ctx, inv)
			if appendErr := store.Append(ctx, outputs, []byte(out)); appendErr != nil {
				outErr = errors.Wrapf(appendErr, "error recording output for %s", inv.Operation)
			}
			return out, errors.CombineErrors(errors.CombineErrors(inErr, err), outErr)
		}
	}
}

// LogCalls traces every call and warns when one fails.
func LogCalls(log logger.Logger) Interceptor {
	return func(next Operation) Operation {
		return func(ctx context.Context, inv Invocation) (string, error) {
			started := time.Now()
			out, err := next(ctx, inv)
			if err != nil {
				log.Warn("%s(%s) failed after %v: %s", inv.Operation, inv.Input(), time.Since(started), err)
			} else {
				log.Trace("%s(%s) -> %s took %v", inv.Operation, inv.Input(), out, time.Since(started))
			}
			return out, err
		}
	}
}
