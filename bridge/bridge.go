// Package bridge mirrors reaction records to remote persistence.
//
// Every bridge is write-through in the loosest sense: the local store is
// authoritative, the remote write is attempted once in the background, and
// a failure is logged and dropped. Nothing here retries and nothing here
// reports back to the store; ephemeral reactions are not worth more.
package bridge

import (
	"context"

	"github.com/coastlinevibe/tide/reaction"
)

// Nop discards every write-through. Useful in tests and standalone runs.
type Nop struct{}

func (Nop) WriteThrough(context.Context, reaction.Record) {}

func (Nop) Close() error { return nil }
