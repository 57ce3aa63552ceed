package observer

import "github.com/dronesim/dronesim/sim"

// clientMessage is the decoded form of any message a client sends. Which
// fields are set depends on Type.
type clientMessage struct {
	Type    string          `json:"type"`
	Stride  int64           `json:"stride"`
	Command sim.CommandKind `json:"command"`
	Pos     sim.Position    `json:"pos"`
	Enabled bool            `json:"enabled"`
	Count   int             `json:"count"`
}

func (m clientMessage) toCommand() sim.Command {
	return sim.Command{Kind: m.Command, Pos: m.Pos, Enabled: m.Enabled, Count: m.Count}
}

// snapshotMessage is streamed to subscribers.
type snapshotMessage struct {
	Type     string        `json:"type"` // "snapshot"
	Snapshot *sim.Snapshot `json:"snapshot"`
}

// ackMessage confirms a command was queued. It is applied at the next tick.
type ackMessage struct {
	Type    string          `json:"type"` // "ack"
	Command sim.CommandKind `json:"command"`
}

// errorMessage reports a rejected client message.
type errorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
