package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/sandman-swap/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---
type ProtocolDiffer func(old, new any) (diff any, err error)

// emptier is implemented by protocol diffs that can report having no changes.
type emptier interface {
	IsEmpty() bool
}

// StateDifferConfig holds all the individual differ functions and dependencies.
type StateDifferConfig struct {
	// One differ per schema (data contract), not per protocol identity.
	ProtocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
	Registry        prometheus.Registerer
	Logger          Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	for schema, d := range c.ProtocolDiffers {
		if d == nil {
			return fmt.Errorf("config: differ for schema %q cannot be nil", schema)
		}
	}
	return nil
}

// StateDiffer is the main differ engine.
type StateDiffer struct {
	metrics         *Metrics
	logger          Logger
	protocolDiffers map[engine.ProtocolSchema]ProtocolDiffer
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	protocolDiffers := make(map[engine.ProtocolSchema]ProtocolDiffer, len(cfg.ProtocolDiffers))
	for schema, protocolDiffer := range cfg.ProtocolDiffers {
		protocolDiffers[schema] = protocolDiffer
	}

	return &StateDiffer{
		metrics:         NewMetrics(cfg.Registry),
		logger:          cfg.Logger,
		protocolDiffers: protocolDiffers,
	}, nil
}

// Diff computes the changes between two error-free states. Protocols whose diff
// reports no changes are left out; a patcher carries them over unchanged.
func (d *StateDiffer) Diff(old, new *engine.State) (*StateDiff, error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()

	if old.HasErrors() || new.HasErrors() {
		return nil, errors.New("differ: received state with protocol errors")
	}

	protocolDiffs := make(map[engine.ProtocolID]ProtocolDiff)
	for protocolID, newProtocolState := range new.Protocols {
		oldProtocolState, ok := old.Protocols[protocolID]
		if !ok {
			d.metrics.diffsTotal.WithLabelValues(string(protocolID), "error").Inc()
			return nil, fmt.Errorf("protocolID %s does not exist in old state", protocolID)
		}

		differFunc, exists := d.protocolDiffers[newProtocolState.Schema]
		if !exists {
			d.metrics.diffsTotal.WithLabelValues(string(protocolID), "error").Inc()
			return nil, fmt.Errorf("no differ registered for schema %q", newProtocolState.Schema)
		}

		start := time.Now()
		diffData, err := differFunc(oldProtocolState.Data, newProtocolState.Data)
		d.metrics.subsystemDuration.WithLabelValues(string(protocolID)).Observe(time.Since(start).Seconds())
		if err != nil {
			d.metrics.diffsTotal.WithLabelValues(string(protocolID), "error").Inc()
			d.logger.Error("protocol differ failed", "protocol", protocolID, "error", err)
			return nil, err
		}
		d.metrics.diffsTotal.WithLabelValues(string(protocolID), "success").Inc()

		if e, ok := diffData.(emptier); ok && e.IsEmpty() {
			continue
		}

		protocolDiffs[protocolID] = ProtocolDiff{
			Meta:           newProtocolState.Meta,
			SyncedSequence: newProtocolState.SyncedSequence,
			Schema:         newProtocolState.Schema,
			Data:           diffData,
		}
	}

	return &StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		FromSequence: old.Sequence.Number,
		ToSequence:   new.Sequence,
		Protocols:    protocolDiffs,
	}, nil
}
