package differ

import "github.com/defistate/sandman-swap/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	SyncedSequence *uint64 `json:"syncedSequence,omitempty"`

	// Schema is the decode contract for Data.
	// Examples:
	// "sandman/tokenregistry/Token@v1"
	// "sandman/exchange/PoolView@v1"
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes from sequence FromSequence to ToSequence.
type StateDiff struct {
	Timestamp    uint64                             `json:"timestamp"`
	FromSequence uint64                             `json:"fromSequence"`
	ToSequence   engine.SequenceSummary             `json:"toSequence"`
	Protocols    map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
}
