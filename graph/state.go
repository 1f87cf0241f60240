package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a partial state update into the accumulated state and
// returns the result. The engine folds node deltas through the reducer in
// launch order, so a reducer defines the per-field merge disciplines for
// its state type: overwrite fields take the delta value when present, and
// append fields concatenate contributions. Fields absent from the delta
// must be carried over from prev unchanged.
//
// Reducers must be pure. Launch-order folding makes the merged result
// deterministic regardless of which concurrent branch finishes first.
type Reducer[S any] func(prev, delta S) S

// deepCopy clones state through a JSON round trip.
//
// Every node invocation receives its own copy so that concurrent fan-out
// branches share nothing; all mutation flows through the post-join merge.
// State types must therefore be JSON-serializable, which the checkpoint
// stores require anyway.
func deepCopy[S any](state S) (S, error) {
	var out S
	data, err := json.Marshal(state)
	if err != nil {
		return out, fmt.Errorf("marshal state: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshal state: %w", err)
	}
	return out, nil
}
