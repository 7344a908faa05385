package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/defistate/sandman-swap/differ"
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Setup: Mock RPC Server ---

type MockStateStreamer struct {
	events chan *SubscriptionEvent
	t      *testing.T
}

func SetupMockStateStreamer(ctx context.Context, t *testing.T, port int, events []*SubscriptionEvent) (<-chan error, error) {
	eventChan := make(chan *SubscriptionEvent, len(events))
	for _, e := range events {
		eventChan <- e
	}
	close(eventChan)

	api := &MockStateStreamer{events: eventChan, t: t}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(server.RpcNamespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %v", err)
	}

	wsHandler := rpcServer.WebsocketHandler([]string{"*"})
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: wsHandler}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	go func() {
		<-ctx.Done()
		rpcServer.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	return errChan, nil
}

func (api *MockStateStreamer) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go func() {
		for event := range api.events {
			select {
			case <-rpcSub.Err():
				return
			default:
				if err := notifier.Notify(rpcSub.ID, event); err != nil {
					api.t.Logf("Error notifying subscriber: %v", err)
					return
				}
			}
		}
	}()
	return rpcSub, nil
}

// --- Test Helpers & Data Generation ---

var discardLogger = slog.New(slog.DiscardHandler)

var mockDecoder = func(schema engine.ProtocolSchema, data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var genericMap map[string]any
	err := json.Unmarshal(data, &genericMap)
	return genericMap, err
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func fullEvent(t *testing.T, seq uint64) *SubscriptionEvent {
	return &SubscriptionEvent{Type: server.EventTypeFull, Payload: mustMarshal(t, engine.State{
		Sequence: engine.SequenceSummary{Number: seq, ReceivedAt: time.Now().UnixNano()},
	})}
}

func diffEvent(t *testing.T, from, to uint64, protocols map[engine.ProtocolID]differ.ProtocolDiff) *SubscriptionEvent {
	return &SubscriptionEvent{Type: server.EventTypeDiff, Payload: mustMarshal(t, differ.StateDiff{
		Timestamp:    uint64(time.Now().UnixNano()),
		FromSequence: from,
		ToSequence:   engine.SequenceSummary{Number: to, Operation: "swapBaseForAsset", ReceivedAt: time.Now().UnixNano()},
		Protocols:    protocols,
	})}
}

func generateTestEvents(t *testing.T) []*SubscriptionEvent {
	pID := engine.ProtocolID("sandman-exchanges")
	schema := engine.ProtocolSchema("sandman/exchange/PoolView@v1")

	// --- Event 1: Full View ---
	fullViewPayload := engine.State{
		Sequence: engine.SequenceSummary{
			Number:     100,
			ReceivedAt: time.Now().UnixNano(),
		},
		Protocols: map[engine.ProtocolID]engine.ProtocolState{
			pID: {
				Meta:   engine.ProtocolMeta{Name: "Sandman Swap"},
				Schema: schema,
				Data:   map[string]any{"id": 1, "baseReserve": 1000},
			},
		},
	}
	event1 := &SubscriptionEvent{Type: server.EventTypeFull, Payload: mustMarshal(t, fullViewPayload)}

	// --- Event 2: Diff ---
	event2 := diffEvent(t, 100, 101, map[engine.ProtocolID]differ.ProtocolDiff{
		pID: {
			Schema: schema,
			Data:   map[string]any{"id": 1, "baseReserve": 12345},
		},
	})

	// --- Event 3: Malformed ---
	event3 := &SubscriptionEvent{Type: server.EventTypeFull, Payload: json.RawMessage(`{"sequence":{"number":"not-a-number"}}`)}

	// --- Event 4: Another Full ---
	event4 := fullEvent(t, 2)

	return []*SubscriptionEvent{event1, event2, event3, event4}
}

// --- Tests ---

var noopStatePatcher = func(prevView *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	return &engine.State{
		Sequence:  diff.ToSequence,
		Protocols: map[engine.ProtocolID]engine.ProtocolState{},
	}, nil
}

func TestNewClient_Config(t *testing.T) {
	valid := Config{
		URL:              "ws://localhost:1",
		Logger:           discardLogger,
		BufferSize:       1,
		StatePatcher:     noopStatePatcher,
		StateDecoder:     mockDecoder,
		StateDiffDecoder: mockDecoder,
	}

	testCases := []struct {
		name   string
		modify func(c *Config)
	}{
		{"missing URL", func(c *Config) { c.URL = "" }},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
		{"missing patcher", func(c *Config) { c.StatePatcher = nil }},
		{"missing state decoder", func(c *Config) { c.StateDecoder = nil }},
		{"missing diff decoder", func(c *Config) { c.StateDiffDecoder = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.modify(&cfg)
			_, err := NewClient(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestClient_SuccessfulSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockStateStreamer(ctx, t, 9988, testEvents[:1])
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:              "ws://localhost:9988",
		Logger:           discardLogger,
		BufferSize:       10,
		StatePatcher:     noopStatePatcher,
		StateDecoder:     mockDecoder,
		StateDiffDecoder: mockDecoder,
	})
	require.NoError(t, err)

	select {
	case view := <-client.State():
		assert.Equal(t, uint64(100), view.Sequence.Number)
		protocolData, ok := view.Protocols["sandman-exchanges"]
		require.True(t, ok, "Protocol data should exist")
		dataMap := protocolData.Data.(map[string]any)
		assert.Equal(t, float64(1), dataMap["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for state view")
	}
}

func TestClient_DiffReconstruction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockStateStreamer(ctx, t, 9987, testEvents[:2])
	require.NoError(t, err)

	patched := make(chan *differ.StateDiff, 1)
	mockPatcher := func(prevView *engine.State, diff *differ.StateDiff) (*engine.State, error) {
		if prevView.Sequence.Number != 100 {
			return nil, fmt.Errorf("unexpected previous sequence %d", prevView.Sequence.Number)
		}
		patched <- diff
		return &engine.State{
			Sequence:  diff.ToSequence,
			Protocols: make(map[engine.ProtocolID]engine.ProtocolState),
		}, nil
	}

	client, err := NewClient(ctx, Config{
		URL:              "ws://localhost:9987",
		Logger:           discardLogger,
		BufferSize:       10,
		StatePatcher:     mockPatcher,
		StateDecoder:     mockDecoder,
		StateDiffDecoder: mockDecoder,
	})
	require.NoError(t, err)

	select {
	case view1 := <-client.State():
		assert.Equal(t, uint64(100), view1.Sequence.Number)
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for initial full view")
	}

	select {
	case view2 := <-client.State():
		assert.Equal(t, uint64(101), view2.Sequence.Number)
		assert.Equal(t, "swapBaseForAsset", view2.Sequence.Operation)
	case <-time.After(2 * time.Second):
		t.Fatal("Test timed out waiting for reconstructed diff view")
	}

	diff := <-patched
	assert.Equal(t, uint64(100), diff.FromSequence)
	pDiff, ok := diff.Protocols["sandman-exchanges"]
	require.True(t, ok)
	assert.Equal(t, float64(12345), pDiff.Data.(map[string]any)["baseReserve"])
}

func TestClient_DropsMalformedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testEvents := generateTestEvents(t)
	_, err := SetupMockStateStreamer(ctx, t, 9989, append(testEvents[0:1], testEvents[2:4]...))
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		URL:              "ws://localhost:9989",
		Logger:           discardLogger,
		BufferSize:       10,
		StatePatcher:     noopStatePatcher,
		StateDecoder:     mockDecoder,
		StateDiffDecoder: mockDecoder,
	})
	require.NoError(t, err)

	seen := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case view := <-client.State():
			seen[view.Sequence.Number] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("Test timed out waiting for view %d", i+1)
		}
	}
	assert.Equal(t, map[uint64]bool{100: true, 2: true}, seen)
}

func TestClient_Reconnection(t *testing.T) {
	const testPort = 9990
	clientCtx, clientCancel := context.WithCancel(context.Background())
	defer clientCancel()

	client, err := NewClient(clientCtx, Config{
		URL:              fmt.Sprintf("ws://localhost:%d", testPort),
		Logger:           discardLogger,
		BufferSize:       10,
		StatePatcher:     noopStatePatcher,
		StateDecoder:     mockDecoder,
		StateDiffDecoder: mockDecoder,
	})
	require.NoError(t, err)

	server1Ctx, server1Cancel := context.WithCancel(clientCtx)
	_, err = SetupMockStateStreamer(server1Ctx, t, testPort, []*SubscriptionEvent{fullEvent(t, 1)})
	require.NoError(t, err)

	select {
	case view := <-client.State():
		assert.Equal(t, uint64(1), view.Sequence.Number)
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for first message")
	}

	server1Cancel()
	time.Sleep(100 * time.Millisecond)

	server2Ctx, server2Cancel := context.WithCancel(clientCtx)
	defer server2Cancel()
	_, err = SetupMockStateStreamer(server2Ctx, t, testPort, []*SubscriptionEvent{fullEvent(t, 2)})
	require.NoError(t, err)

	select {
	case view := <-client.State():
		assert.Equal(t, uint64(2), view.Sequence.Number)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for client to reconnect")
	}
}

func TestClient_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, err := NewClient(ctx, Config{
		URL:              "ws://localhost:9991",
		Logger:           discardLogger,
		BufferSize:       1,
		StatePatcher:     noopStatePatcher,
		StateDecoder:     mockDecoder,
		StateDiffDecoder: mockDecoder,
	})
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-client.Err():
		assert.False(t, ok, "error channel is closed on shutdown")
	case <-time.After(3 * time.Second):
		t.Fatal("client did not stop after cancel")
	}
}

// --- StreamProcessor Tests ---

func TestStreamProcessor_FullAndDiffFlow(t *testing.T) {
	statePatcher := func(prev *engine.State, diff *differ.StateDiff) (*engine.State, error) {
		return &engine.State{
			Sequence:  diff.ToSequence,
			Protocols: prev.Protocols,
		}, nil
	}

	sp := NewStreamProcessor(discardLogger, 10, statePatcher, mockDecoder, mockDecoder)
	events := generateTestEvents(t)

	fullEventBytes := mustMarshal(t, events[0])
	require.NoError(t, sp.ProcessMessage(fullEventBytes))

	select {
	case state := <-sp.State():
		assert.Equal(t, uint64(100), state.Sequence.Number)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for full state")
	}

	diffEventBytes := mustMarshal(t, events[1])
	require.NoError(t, sp.ProcessMessage(diffEventBytes))

	select {
	case state := <-sp.State():
		assert.Equal(t, uint64(101), state.Sequence.Number)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for diff state")
	}
}

func TestStreamProcessor_ValidationErrors(t *testing.T) {
	sp := NewStreamProcessor(discardLogger, 10, noopStatePatcher, mockDecoder, mockDecoder)
	events := generateTestEvents(t)

	err := sp.ProcessMessage(mustMarshal(t, events[1]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "received diff before full state")

	err = sp.ProcessMessage([]byte(`{not-json}`))
	require.Error(t, err)

	err = sp.ProcessMessage(mustMarshal(t, SubscriptionEvent{Type: "snapshot", Payload: json.RawMessage(`{}`)}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestStreamProcessor_OutOfOrderDiff(t *testing.T) {
	sp := NewStreamProcessor(discardLogger, 10, noopStatePatcher, mockDecoder, mockDecoder)

	events := generateTestEvents(t)
	require.NoError(t, sp.ProcessMessage(mustMarshal(t, events[0]))) // sequence 100
	<-sp.State()

	gap := diffEvent(t, 105, 106, map[engine.ProtocolID]differ.ProtocolDiff{})

	// Should not error, but log warn and not emit state
	require.NoError(t, sp.ProcessMessage(mustMarshal(t, gap)))

	select {
	case <-sp.State():
		t.Fatal("Should not emit state for out-of-order diff")
	default:
	}
}
