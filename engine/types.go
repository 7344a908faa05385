package engine

type ProtocolName string
type ProtocolID string

// ProtocolSchema defines the decode contract for a protocol's data
type ProtocolSchema string

type ProtocolMeta struct {
	Name ProtocolName `json:"name"`           // human label
	Tags []string     `json:"tags,omitempty"` // "dex", "ledger", etc.
}

type ProtocolState struct {
	Meta ProtocolMeta `json:"meta"`

	// which committed operation is the protocol's data current with?
	SyncedSequence *uint64 `json:"syncedSequence,omitempty"`

	// Schema is the decode contract for Data.
	// Example:
	// "sandman/exchange/PoolView@v1"
	Schema ProtocolSchema `json:"schema"`

	// Data is the protocol view, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol failed to produce a view.
	Error string `json:"error,omitempty"`
}

// SequenceSummary identifies the committed operation a State reflects.
type SequenceSummary struct {
	Number     uint64 `json:"number"`
	Operation  string `json:"operation,omitempty"`
	Timestamp  uint64 `json:"timestamp"`  // Unix seconds of the commit.
	ReceivedAt int64  `json:"receivedAt"` // The Unix nanosecond timestamp when the operation started executing.
}

// State is the main data structure broadcast to subscribers.
type State struct {
	Timestamp uint64                       `json:"timestamp"`
	Sequence  SequenceSummary              `json:"sequence"`
	Protocols map[ProtocolID]ProtocolState `json:"protocols"`
}

func (state *State) HasErrors() bool {
	for _, pr := range state.Protocols {
		if pr.Error != "" {
			return true
		}
	}
	return false
}
