package streaming

import (
	"encoding/json"

	"github.com/ferryqueue/ferrysim/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartRun = "start_run"
	TypeEndRun   = "end_run"
	TypeTick     = "tick"
	TypeEvent    = "event"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartRunPayload carries the run identity and route.
type StartRunPayload struct {
	Run *core.Run `json:"run"`
}

// EndRunPayload carries the final summary.
type EndRunPayload struct {
	Summary *core.RunSummary `json:"summary"`
}
