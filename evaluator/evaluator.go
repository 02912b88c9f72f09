// Package evaluator runs a subject's contract deterministically: no
// wall-clock, randomness, environment, or network access reaches the guest,
// only the four host primitives bound onto a fresh MemoryArena per call.
package evaluator

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/taple-project/taple-core-go/digest"
	"github.com/taple-project/taple-core-go/model"
	"github.com/taple-project/taple-core-go/observability/metrics"
	"github.com/taple-project/taple-core-go/wire"
)

// Evaluator executes schema contracts in an isolated goja runtime.
type Evaluator struct{}

func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs contractSource's execute() entry point against req, and
// derives the EvaluationResponse the Proposal carries. approvalRequired is
// decided by the schema (supplied by the governance oracle via the caller),
// not by the contract itself.
func (e *Evaluator) Evaluate(contractSource string, req model.EvaluationRequest, approvalRequired bool) (model.EvaluationResponse, error) {
	arena := NewMemoryArena()

	vm := goja.New()
	bindHostPrimitives(vm, arena)

	statePtr := arena.WriteBytes(req.PriorState)
	stateLen := uint32(len(req.PriorState))

	eventPayload, err := eventPayloadJSON(req.Request.Content)
	if err != nil {
		return model.EvaluationResponse{}, fmt.Errorf("evaluator: encode event payload: %w", err)
	}
	eventPtr := arena.WriteBytes(eventPayload)
	eventLen := uint32(len(eventPayload))

	if _, err := vm.RunString(contractSource); err != nil {
		return failedResponse(req)
	}

	executeFn, ok := goja.AssertFunction(vm.Get("execute"))
	if !ok {
		return model.EvaluationResponse{}, fmt.Errorf("evaluator: contract does not export execute()")
	}

	result, err := executeFn(goja.Undefined(),
		vm.ToValue(statePtr), vm.ToValue(stateLen),
		vm.ToValue(eventPtr), vm.ToValue(eventLen))
	if err != nil {
		return failedResponse(req)
	}

	resultPtr := uint32(result.ToInteger())
	resultLen, err := arena.PointerLength(resultPtr)
	if err != nil {
		return failedResponse(req)
	}
	newState, err := arena.ReadBytes(resultPtr, resultLen)
	if err != nil {
		return failedResponse(req)
	}
	if !json.Valid(newState) {
		return failedResponse(req)
	}

	patch, err := wire.Diff(req.PriorState, newState)
	if err != nil {
		return model.EvaluationResponse{}, fmt.Errorf("evaluator: diff state: %w", err)
	}

	stateHash := digest.MustOf(newState)
	reqHash := digest.MustOf(req)

	return model.EvaluationResponse{
		Patch:             patch,
		EvaluationReqHash: reqHash,
		StateHash:         stateHash,
		EvaluationSuccess: true,
		ApprovalRequired:  approvalRequired,
	}, nil
}

// failedResponse marks the evaluation as Acceptance::Error-equivalent: the
// prior state carries through unchanged and EvaluationSuccess is false.
// The event may still reach quorum with this failure as the unanimous
// decision, making it durable, per spec.
func failedResponse(req model.EvaluationRequest) (model.EvaluationResponse, error) {
	metrics.EvaluationFailures.Inc()
	reqHash := digest.MustOf(req)
	stateHash := digest.MustOf(req.PriorState)
	return model.EvaluationResponse{
		Patch:             json.RawMessage("[]"),
		EvaluationReqHash: reqHash,
		StateHash:         stateHash,
		EvaluationSuccess: false,
		ApprovalRequired:  false,
	}, nil
}

func eventPayloadJSON(r model.EventRequest) ([]byte, error) {
	switch r.Kind {
	case model.RequestFact:
		return r.Fact.Payload, nil
	case model.RequestCreate:
		return json.Marshal(r.Create)
	case model.RequestTransfer:
		return json.Marshal(r.Transfer)
	case model.RequestEOL:
		return json.Marshal(r.EOL)
	default:
		return []byte("null"), nil
	}
}

func bindHostPrimitives(vm *goja.Runtime, arena *MemoryArena) {
	vm.Set("allocate", func(length uint32) uint32 {
		return arena.Allocate(length)
	})
	vm.Set("write_byte", func(ptr, offset uint32, b byte) {
		_ = arena.WriteByte(ptr, offset, b)
	})
	vm.Set("read_byte", func(ptr uint32) byte {
		b, _ := arena.ReadByte(ptr)
		return b
	})
	vm.Set("pointer_length", func(ptr uint32) uint32 {
		length, _ := arena.PointerLength(ptr)
		return length
	})
}
