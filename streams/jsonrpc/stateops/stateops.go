// Package stateops binds the schema-keyed differ and patcher to the protocols the
// exchange publishes, and decodes their JSON payloads.
package stateops

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/sandman-swap/differ"
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/patcher"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateOps is a facade over the two halves of the state stream:
// the Differ computes the delta between two states (server side) and the Patcher
// applies a delta to rebuild the present state (client side).
type StateOps struct {
	*differ.StateDiffer
	*patcher.StatePatcher
}

func NewStateOps(
	logger Logger,
	prometheusRegistry prometheus.Registerer,
) (*StateOps, error) {
	protocolDiffers := map[engine.ProtocolSchema]differ.ProtocolDiffer{
		tokenregistry.Schema: func(old, new any) (diff any, err error) {
			return tokenregistry.Differ(old.([]tokenregistry.Token), new.([]tokenregistry.Token)), nil
		},
		exchange.Schema: func(old, new any) (diff any, err error) {
			return exchange.Differ(old.([]exchange.PoolView), new.([]exchange.PoolView)), nil
		},
	}

	protocolPatchers := map[engine.ProtocolSchema]patcher.PatcherFunc{
		tokenregistry.Schema: func(prevState, diff any) (newState any, err error) {
			prev, _ := prevState.([]tokenregistry.Token)
			return tokenregistry.Patcher(prev, diff.(tokenregistry.TokenSystemDiff))
		},
		exchange.Schema: func(prevState, diff any) (newState any, err error) {
			prev, _ := prevState.([]exchange.PoolView)
			return exchange.Patcher(prev, diff.(exchange.ExchangeSystemDiff))
		},
	}

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		ProtocolDiffers: protocolDiffers,
		Logger:          logger,
		Registry:        prometheusRegistry,
	})
	if err != nil {
		return nil, err
	}

	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{
		Patchers: protocolPatchers,
	})
	if err != nil {
		return nil, err
	}

	return &StateOps{
		StateDiffer:  stateDiffer,
		StatePatcher: statePatcher,
	}, nil
}

func decode[T any](data json.RawMessage) (any, error) {
	var typedData T
	if err := json.Unmarshal(data, &typedData); err != nil {
		return nil, err
	}
	return typedData, nil
}

// DecodeStateJSON decodes the Data of a full protocol state.
func (ops *StateOps) DecodeStateJSON(
	schema engine.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[[]tokenregistry.Token](data)
	case exchange.Schema:
		return decode[[]exchange.PoolView](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}

// DecodeStateDiffJSON decodes the Data of a protocol diff.
func (ops *StateOps) DecodeStateDiffJSON(
	schema engine.ProtocolSchema,
	data json.RawMessage,
) (any, error) {
	switch schema {
	case tokenregistry.Schema:
		return decode[tokenregistry.TokenSystemDiff](data)
	case exchange.Schema:
		return decode[exchange.ExchangeSystemDiff](data)
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
}
