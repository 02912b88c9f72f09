package evaluator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taple-project/taple-core-go/model"
)

const incrementContract = `
function execute(statePtr, stateLen, eventPtr, eventLen) {
  var stateBytes = [];
  for (var i = 0; i < stateLen; i++) {
    stateBytes.push(read_byte(statePtr + i));
  }
  var state = JSON.parse(String.fromCharCode.apply(null, stateBytes));
  state.count = state.count + 1;
  var out = JSON.stringify(state);
  var outPtr = allocate(out.length);
  for (var i = 0; i < out.length; i++) {
    write_byte(outPtr, i, out.charCodeAt(i));
  }
  return outPtr;
}
`

func TestEvaluateIncrementsCount(t *testing.T) {
	req := model.EvaluationRequest{
		PriorState: json.RawMessage(`{"count":0}`),
		Request: model.Signed[model.EventRequest]{
			Content: model.EventRequest{
				Kind: model.RequestFact,
				Fact: &model.FactRequest{Payload: json.RawMessage(`{"op":"inc"}`)},
			},
		},
	}

	resp, err := New().Evaluate(incrementContract, req, false)
	require.NoError(t, err)
	require.True(t, resp.EvaluationSuccess)
	require.NotEmpty(t, resp.Patch)
	require.False(t, resp.ApprovalRequired)
}

func TestEvaluateFailsOnBrokenContract(t *testing.T) {
	req := model.EvaluationRequest{
		PriorState: json.RawMessage(`{"count":0}`),
		Request: model.Signed[model.EventRequest]{
			Content: model.EventRequest{
				Kind: model.RequestFact,
				Fact: &model.FactRequest{Payload: json.RawMessage(`{}`)},
			},
		},
	}

	resp, err := New().Evaluate("function execute() { throw new Error('boom'); }", req, false)
	require.NoError(t, err)
	require.False(t, resp.EvaluationSuccess)
}
