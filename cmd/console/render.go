package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/defistate/sandman-swap/dex"
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(w io.Writer, title string) {
	fmt.Fprintln(w, "\n"+Bold+Cyan+":: "+title+" ::"+Reset)
}

// SafeState is a thread-safe container for the latest engine state.
type SafeState struct {
	mu    sync.RWMutex
	state *engine.State
}

func (s *SafeState) Update(newState *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// symbols maps token addresses to their symbols for display.
func symbols(tokens []tokenregistry.Token) map[common.Address]string {
	m := make(map[common.Address]string, len(tokens))
	for _, t := range tokens {
		m[t.Address] = t.Symbol
	}
	return m
}

func printTokens(w io.Writer, tokens []tokenregistry.Token) {
	header(w, "TOKENS")
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tNAME\tDECIMALS\tSUPPLY\tHOLDERS\tADDRESS\t")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%s\t\n", t.ID, t.Symbol, t.Name, t.Decimals, t.TotalSupply.Dec(), t.Holders, t.Address.Hex())
	}
	tw.Flush()
}

func printPools(w io.Writer, pools []exchange.PoolView, symbolOf map[common.Address]string) {
	header(w, "EXCHANGES")
	if len(pools) == 0 {
		fmt.Fprintln(w, Gray+"No exchanges yet."+Reset)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tASSET\tBASE RESERVE\tASSET RESERVE\tSHARES\tHOLDERS\tEXCHANGE\t")
	for _, p := range pools {
		name := symbolOf[p.Asset]
		if name == "" {
			name = p.Asset.Hex()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t\n", p.ID, name, p.BaseReserve.Dec(), p.AssetReserve.Dec(), p.ShareSupply.Dec(), p.Holders, p.Exchange.Hex())
	}
	tw.Flush()
}

func printPool(w io.Writer, p exchange.PoolView, symbol string) {
	header(w, "EXCHANGE "+symbol)
	fmt.Fprintf(w, " %s%-15s%s %d\n", Gray, "ID:", Reset, p.ID)
	fmt.Fprintf(w, " %s%-15s%s %s\n", Gray, "Exchange:", Reset, p.Exchange.Hex())
	fmt.Fprintf(w, " %s%-15s%s %s\n", Gray, "Asset:", Reset, p.Asset.Hex())
	fmt.Fprintf(w, " %s%-15s%s %s\n", Gray, "Base reserve:", Reset, p.BaseReserve.Dec())
	fmt.Fprintf(w, " %s%-15s%s %s\n", Gray, "Asset reserve:", Reset, p.AssetReserve.Dec())
	fmt.Fprintf(w, " %s%-15s%s %s\n", Gray, "Share supply:", Reset, p.ShareSupply.Dec())
	fmt.Fprintf(w, " %s%-15s%s %d\n", Gray, "Holders:", Reset, p.Holders)
}

// printSequence prints a one-line summary of the committed operation a state reflects.
func printSequence(w io.Writer, state *engine.State) {
	ts := time.Unix(int64(state.Sequence.Timestamp), 0).Format("15:04:05")
	pools, _ := state.Protocols[dex.ProtocolExchanges].Data.([]exchange.PoolView)
	fmt.Fprintf(w, "%sSTATUS  ::%s Sequence %s#%d%s | %s%s%s | Exchanges %s%d%s | Time %s%s%s\n",
		Green, Reset,
		Bold, state.Sequence.Number, Reset,
		Yellow, state.Sequence.Operation, Reset,
		Bold, len(pools), Reset,
		Bold, ts, Reset,
	)
}

func printProtocolSummary(w io.Writer, state *engine.State) {
	header(w, "PROTOCOL SUMMARY")

	tw := tabwriter.NewWriter(w, 0, 0, 4, ' ', 0)
	fmt.Fprintln(tw, "PROTOCOL ID\tSCHEMA\tSYNCED\tSTATUS\t")
	fmt.Fprintln(tw, "-----------\t------\t------\t------\t")
	for _, id := range slices.Sorted(maps.Keys(state.Protocols)) {
		p := state.Protocols[id]
		status := Green + "OK" + Reset
		if p.Error != "" {
			status = Red + "ERROR" + Reset
		}
		synced := "-"
		if p.SyncedSequence != nil {
			synced = fmt.Sprintf("#%d", *p.SyncedSequence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", id, p.Schema, synced, status)
	}
	tw.Flush()
}
