package client

import (
	"encoding/json"

	"github.com/defistate/sandman-swap/engine"
)

// clientState mirrors engine.State but strictly types the Data field as RawMessage.
// This prevents the Go JSON decoder from unmarshaling into map[string]interface{}.
type clientState struct {
	Timestamp uint64                                    `json:"timestamp"`
	Sequence  engine.SequenceSummary                    `json:"sequence"`
	Protocols map[engine.ProtocolID]clientProtocolState `json:"protocols"`
}

type clientProtocolState struct {
	Meta           engine.ProtocolMeta   `json:"meta"`
	SyncedSequence *uint64               `json:"syncedSequence,omitempty"`
	Schema         engine.ProtocolSchema `json:"schema"`
	Error          string                `json:"error,omitempty"`

	// Data is kept as raw bytes. We decode this later using the specific Schema.
	Data json.RawMessage `json:"data,omitempty"`
}

// clientStateDiff mirrors differ.StateDiff but keeps the protocol diffs as raw bytes.
type clientStateDiff struct {
	Timestamp    uint64                                    `json:"timestamp"`
	FromSequence uint64                                    `json:"fromSequence"`
	ToSequence   engine.SequenceSummary                    `json:"toSequence"`
	Protocols    map[engine.ProtocolID]clientProtocolState `json:"protocols"`
}
