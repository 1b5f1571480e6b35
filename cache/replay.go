package cache

import (
	"context"
	"fmt"
	"io"
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/kv"
)

// Call is one recorded invocation: the rendered input and the output it produced.
type Call struct {
	Input  string
	Output string
}

// Replay walks the recorded history of an operation in call order. It is
// consumed as it is read and cannot be restarted.
type Replay struct {
	// Operation is the identity whose history is replayed.
	Operation string
	// Count is the number of recorded calls, known before any call is read.
	Count int

	inputs  [][]byte
	outputs [][]byte
	pos     int
}

// ReplayOf reads the input and output history of operation from store. An
// operation with no history replays as zero calls.
func ReplayOf(ctx context.Context, store kv.Store, operation string) (*Replay, error) {
	inputsKey, outputsKey := HistoryKeys(operation)
	inputs, err := store.Range(ctx, inputsKey, 0, -1)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading inputs of %s", operation)
	}
	outputs, err := store.Range(ctx, outputsKey, 0, -1)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading outputs of %s", operation)
	}
	return &Replay{
		Operation: operation,
		Count:     len(inputs),
		inputs:    inputs,
		outputs:   outputs,
	}, nil
}

// Degraded reports whether the two history lists differ in length. Pairing
// then stops at the shorter list.
func (r *Replay) Degraded() bool {
	return len(r.inputs) != len(r.outputs)
}

// Next returns the next recorded call, or false once the history is exhausted.
func (r *Replay) Next() (Call, bool) {
	if r.pos >= min(len(r.inputs), len(r.outputs)) {
		return Call{}, false
	}
	call := Call{Input: string(r.inputs[r.pos]), Output: string(r.outputs[r.pos])}
	r.pos++
	return call, true
}

// Calls yields the calls that have not been read yet.
func (r *Replay) Calls() iter.Seq[Call] {
	return func(yield func(Call) bool) {
		for {
			call, ok := r.Next()
			if !ok || !yield(call) {
				return
			}
		}
	}
}

// WriteTo prints the call count followed by one line per remaining call.
func (r *Replay) WriteTo(w io.Writer) (int64, error) {
	var total int64
	n, err := fmt.Fprintf(w, "%s was called %d times:\n", r.Operation, r.Count)
	total += int64(n)
	if err != nil {
		return total, err
	}
	for call := range r.Calls() {
		n, err := fmt.Fprintf(w, "%s(%s) -> %s\n", r.Operation, call.Input, call.Output)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
