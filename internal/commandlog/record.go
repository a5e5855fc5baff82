package commandlog

import "encoding/json"

// EntryType distinguishes a persisted command from an informational event
// record (spec.md §6 "Command log format").
type EntryType string

const (
	EntryCommand EntryType = "command"
	EntryEvent   EntryType = "event"
)

// CommandKind names the operation a command payload carries.
type CommandKind string

const (
	CommandSubmitOrder CommandKind = "submit_order"
	CommandCancelOrder CommandKind = "cancel_order"
)

// Record is one line of the log. Payload is kept as raw JSON so the log
// package never needs to know the engine's request/event shapes.
type Record struct {
	EntryType   EntryType       `json:"entryType"`
	TimestampMs int64           `json:"timestampMs"`
	CommandID   string          `json:"commandId,omitempty"`
	Kind        CommandKind     `json:"kind,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}
