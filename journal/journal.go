// Package journal implements an undo log for in-memory state.
//
// Every mutation appends an Entry that knows how to revert itself. A caller takes a
// Snapshot before a unit of work and either reverts to it on failure or commits on
// success. Snapshots nest: an inner unit of work may revert without touching entries
// recorded before it.
package journal

import "fmt"

// Entry is a single reversible change.
type Entry interface {
	Revert()
}

// RevertFunc adapts a plain function to the Entry interface.
type RevertFunc func()

func (f RevertFunc) Revert() { f() }

// Journal records entries in application order. It is NOT safe for concurrent use;
// callers serialize access.
type Journal struct {
	entries []Entry
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{}
}

// Append records a change that has already been applied.
func (j *Journal) Append(e Entry) {
	j.entries = append(j.entries, e)
}

// Snapshot returns an identifier for the current position in the journal.
func (j *Journal) Snapshot() int {
	return len(j.entries)
}

// RevertToSnapshot undoes every entry recorded after the snapshot, newest first.
// It panics when given an id that was never handed out, which is a programmer error.
func (j *Journal) RevertToSnapshot(id int) {
	if id < 0 || id > len(j.entries) {
		panic(fmt.Sprintf("journal: snapshot id %d out of range [0, %d]", id, len(j.entries)))
	}
	for i := len(j.entries) - 1; i >= id; i-- {
		j.entries[i].Revert()
		j.entries[i] = nil
	}
	j.entries = j.entries[:id]
}

// Commit discards every recorded entry, making the applied changes permanent.
func (j *Journal) Commit() {
	clear(j.entries)
	j.entries = j.entries[:0]
}

// Len returns the number of pending entries.
func (j *Journal) Len() int {
	return len(j.entries)
}
