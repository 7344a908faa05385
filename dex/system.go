// Package dex is the execution environment of the exchange: it owns every ledger,
// the factory and its exchanges, runs each operation as an all-or-nothing
// transaction in a single global order, and publishes the committed state.
package dex

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/journal"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/factory"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/defistate/sandman-swap/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

// Protocols carried by every published State.
const (
	ProtocolTokens    engine.ProtocolID = "sandman-tokens"
	ProtocolExchanges engine.ProtocolID = "sandman-exchanges"
)

// ErrSubscriberLagging ends a state subscription whose channel was full when a
// State was committed.
var ErrSubscriberLagging = errors.New("state subscriber fell behind")

// DefaultFactoryAddress is used when Config.FactoryAddress is zero.
var DefaultFactoryAddress = common.HexToAddress("0x5A4D00000000000000000000000000000000FAC7")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of a System.
type Config struct {
	Logger   Logger
	Registry prometheus.Registerer
	// FactoryAddress is the account exchange addresses are derived from.
	FactoryAddress common.Address
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// System provides a concurrency-safe layer over the ledgers and exchanges.
// Operations are serialized by a sync.RWMutex; the last committed State is kept
// behind an atomic.Pointer so it can be read without taking the lock.
type System struct {
	mu      sync.RWMutex
	logger  Logger
	metrics *Metrics

	journal    *journal.Journal
	base       *ledger.Token
	tokens     []*ledger.Token
	tokenIndex map[common.Address]int
	nonces     map[common.Address]uint64
	factory    *factory.Factory
	sequence   uint64

	state atomic.Pointer[engine.State]

	// publishMu is taken before mu is released so states reach subscribers in
	// commit order. It guards subscribers.
	publishMu   sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	ch      chan<- *engine.State
	dropped chan struct{}
}

// NewSystem creates an environment holding only the base currency.
func NewSystem(cfg *Config) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	factoryAddress := cfg.FactoryAddress
	if factoryAddress == (common.Address{}) {
		factoryAddress = DefaultFactoryAddress
	}

	j := journal.New()
	s := &System{
		logger:     cfg.Logger,
		metrics:    NewMetrics(cfg.Registry),
		journal:    j,
		base:       ledger.NewNative(j),
		tokenIndex: make(map[common.Address]int),
		nonces:     make(map[common.Address]uint64),

		subscribers: make(map[*subscriber]struct{}),
	}
	f, err := factory.New(&factory.Config{
		Address: factoryAddress,
		Base:    s.base,
		Ledgers: factory.LedgerResolverFunc(s.assetLedger),
		Journal: j,
	})
	if err != nil {
		return nil, err
	}
	s.factory = f
	s.state.Store(s.buildState("", time.Now()))
	return s, nil
}

// assetLedger resolves deployed tokens only; share tokens are not tradeable assets.
func (s *System) assetLedger(asset common.Address) (ledger.AssetLedger, bool) {
	tok, err := s.token(asset)
	if err != nil {
		return nil, false
	}
	return tok, true
}

func (s *System) token(asset common.Address) (*ledger.Token, error) {
	index, ok := s.tokenIndex[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownAsset, asset)
	}
	return s.tokens[index], nil
}

// execute runs fn as one transaction. On error every change fn made is reverted and
// the sequence does not move. On success the changes are committed, the sequence
// advances and the new State is published.
func (s *System) execute(op string, fn func() error) error {
	start := time.Now()
	s.mu.Lock()

	snapshot := s.journal.Snapshot()
	if err := fn(); err != nil {
		s.journal.RevertToSnapshot(snapshot)
		s.mu.Unlock()
		s.metrics.observe(op, err, start)
		s.logger.Debug("operation rejected", "op", op, "kind", types.Kind(err), "error", err)
		return err
	}
	s.journal.Commit()
	s.sequence++
	state := s.buildState(op, start)
	s.state.Store(state)
	s.metrics.sequence.Set(float64(s.sequence))
	s.metrics.exchanges.Set(float64(s.factory.ExchangeCount()))

	s.publishMu.Lock()
	s.mu.Unlock()
	s.publish(state)
	s.publishMu.Unlock()

	s.metrics.observe(op, nil, start)
	s.logger.Debug("operation committed", "op", op, "sequence", state.Sequence.Number)
	return nil
}

// publish hands state to every subscriber without blocking. A subscriber whose
// channel is full is dropped, since skipping a State would break its diff chain. It
// MUST be called with publishMu held.
func (s *System) publish(state *engine.State) {
	for sub := range s.subscribers {
		select {
		case sub.ch <- state:
		default:
			delete(s.subscribers, sub)
			close(sub.dropped)
			s.metrics.laggingDropped.Inc()
			s.logger.Warn("dropped lagging state subscriber", "sequence", state.Sequence.Number)
		}
	}
}

// buildState snapshots every protocol. It MUST be called with mu held.
func (s *System) buildState(op string, receivedAt time.Time) *engine.State {
	now := time.Now()
	seq := s.sequence

	tokens := make([]tokenregistry.Token, 0, len(s.tokens)+1)
	tokens = append(tokens, tokenregistry.FromLedger(0, s.base))
	for i, tok := range s.tokens {
		tokens = append(tokens, tokenregistry.FromLedger(uint64(i+1), tok))
	}

	return &engine.State{
		Timestamp: uint64(now.UnixNano()),
		Sequence: engine.SequenceSummary{
			Number:     seq,
			Operation:  op,
			Timestamp:  uint64(now.Unix()),
			ReceivedAt: receivedAt.UnixNano(),
		},
		Protocols: map[engine.ProtocolID]engine.ProtocolState{
			ProtocolTokens: {
				Meta:           engine.ProtocolMeta{Name: "Sandman Tokens", Tags: []string{"ledger"}},
				SyncedSequence: &seq,
				Schema:         tokenregistry.Schema,
				Data:           tokens,
			},
			ProtocolExchanges: {
				Meta:           engine.ProtocolMeta{Name: "Sandman Swap", Tags: []string{"dex"}},
				SyncedSequence: &seq,
				Schema:         exchange.Schema,
				Data:           s.factory.Views(),
			},
		},
	}
}

// State returns the last committed State. Callers must not modify it.
func (s *System) State() *engine.State {
	return s.state.Load()
}

// Sequence returns the number of committed operations.
func (s *System) Sequence() uint64 {
	return s.state.Load().Sequence.Number
}

// SubscribeState returns the last committed State and a subscription delivering
// every State committed after it, in commit order, with no gap and no repeat.
// Commits never wait on ch: if ch is full when a State is committed, the
// subscription ends with ErrSubscriberLagging and ch receives nothing more.
func (s *System) SubscribeState(ch chan<- *engine.State) (*engine.State, event.Subscription) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// No commit can be between storing its State and sending it while both are held.
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	sub := &subscriber{ch: ch, dropped: make(chan struct{})}
	s.subscribers[sub] = struct{}{}
	return s.state.Load(), event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-quit:
			s.publishMu.Lock()
			delete(s.subscribers, sub)
			s.publishMu.Unlock()
			return nil
		case <-sub.dropped:
			return ErrSubscriberLagging
		}
	})
}
