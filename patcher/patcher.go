package patcher

import (
	"errors"
	"fmt"

	differ "github.com/defistate/sandman-swap/differ"
	engine "github.com/defistate/sandman-swap/engine"
)

// PatcherFunc applies a diff to a previous state to produce a new state.
//
// CONTRACT:
// 1. Immutability: Implementations MUST NOT mutate 'prevState'. They must create a copy.
// 2. nil Handling: 'prevState' may be nil if this is a newly added protocol.
type PatcherFunc func(prevState any, diffData any) (newState any, err error)

type StatePatcherConfig struct {
	// Map Schema -> Patcher Function
	// Example: "sandman/exchange/PoolView@v1" -> exchange.Patcher
	Patchers map[engine.ProtocolSchema]PatcherFunc
}

func (c *StatePatcherConfig) validate() error {
	for _, patcher := range c.Patchers {
		if patcher == nil {
			return errors.New("patcher cannot be nil")
		}
	}
	return nil
}

// StatePatcher is the generic engine for applying state updates.
type StatePatcher struct {
	patchers map[engine.ProtocolSchema]PatcherFunc
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	patchers := make(map[engine.ProtocolSchema]PatcherFunc, len(cfg.Patchers))
	for k, v := range cfg.Patchers {
		patchers[k] = v
	}

	return &StatePatcher{
		patchers: patchers,
	}, nil
}

// Patch creates a new State by applying the Diff to the Old State.
// Protocols the diff does not mention are shared by reference with oldState; the
// rest are replaced by the output of their PatcherFunc.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState.Sequence.Number != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence.Number, diff.FromSequence)
	}

	newProtocols := make(map[engine.ProtocolID]engine.ProtocolState, len(oldState.Protocols))
	for k, v := range oldState.Protocols {
		newProtocols[k] = v
	}

	for protocolID, protocolDiff := range diff.Protocols {
		patcherFunc, ok := p.patchers[protocolDiff.Schema]
		if !ok {
			return nil, fmt.Errorf("patcher: no patcher registered for schema %q (protocol=%s)", protocolDiff.Schema, protocolID)
		}

		var oldData any
		if oldResult, exists := oldState.Protocols[protocolID]; exists {
			// Schema migration is not supported; schemas must match.
			if oldResult.Schema != protocolDiff.Schema {
				return nil, fmt.Errorf("patcher: schema mismatch for protocol %s (old=%s, diff=%s)", protocolID, oldResult.Schema, protocolDiff.Schema)
			}
			oldData = oldResult.Data
		}

		newData, err := patcherFunc(oldData, protocolDiff.Data)
		if err != nil {
			return nil, fmt.Errorf("patcher: failed to patch protocol %s: %w", protocolID, err)
		}

		newProtocols[protocolID] = engine.ProtocolState{
			Meta:           protocolDiff.Meta,
			SyncedSequence: protocolDiff.SyncedSequence,
			Schema:         protocolDiff.Schema,
			Data:           newData,
			Error:          protocolDiff.Error,
		}
	}

	// Protocols the diff skipped are still current as of the new sequence.
	for protocolID, state := range newProtocols {
		if _, changed := diff.Protocols[protocolID]; changed {
			continue
		}
		seq := diff.ToSequence.Number
		state.SyncedSequence = &seq
		newProtocols[protocolID] = state
	}

	return &engine.State{
		Timestamp: diff.Timestamp,
		Sequence:  diff.ToSequence,
		Protocols: newProtocols,
	}, nil
}
