// Package event defines the observability events the driver core emits:
// command monitoring, CMAP connection-pool events, and SDAM events. None of
// these are required for correctness; a nil *Monitor anywhere in the stack
// means "don't bother building the event".
package event

import (
	"time"

	"github.com/nodaldb/nodal-go-driver/address"
	"github.com/nodaldb/nodal-go-driver/bson"
)

// redactedCommands lists command names whose document bodies are replaced
// with an empty placeholder in CommandStartedEvent/CommandSucceededEvent,
// since they carry credentials.
var redactedCommands = map[string]bool{
	"authenticate":    true,
	"saslStart":       true,
	"saslContinue":    true,
	"getnonce":        true,
	"createUser":      true,
	"updateUser":      true,
	"copydbgetnonce":  true,
	"copydbsaslstart": true,
	"copydb":          true,
}

// CommandStartedEvent is emitted immediately before a command is written to
// the wire.
type CommandStartedEvent struct {
	Command      bson.Raw
	DatabaseName string
	CommandName  string
	RequestID    int64
	ConnectionID string
	ServerAddr   address.Address
}

// CommandSucceededEvent is emitted once a command's reply has been decoded
// without a command-level error.
type CommandSucceededEvent struct {
	Duration     time.Duration
	Reply        bson.Raw
	CommandName  string
	RequestID    int64
	ConnectionID string
	ServerAddr   address.Address
}

// CommandFailedEvent is emitted when a command fails, whether from a
// network error or a command-level error in the reply.
type CommandFailedEvent struct {
	Duration     time.Duration
	CommandName  string
	Failure      error
	RequestID    int64
	ConnectionID string
	ServerAddr   address.Address
}

// CommandMonitor receives command lifecycle events. Any subset of the three
// fields may be nil; a nil field means the driver skips building that
// event entirely rather than calling a no-op.
type CommandMonitor struct {
	Started   func(CommandStartedEvent)
	Succeeded func(CommandSucceededEvent)
	Failed    func(CommandFailedEvent)
}

// Redact reports whether commandName's document bodies must be redacted
// from started/succeeded events.
func Redact(commandName string) bool {
	return redactedCommands[commandName]
}
