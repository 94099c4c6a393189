package messages

import (
	"encoding/json"

	"github.com/cbodonnell/hokm/pkg/delta"
)

const (
	// MessageBufferSize represents the maximum size of an inbound message
	MessageBufferSize = 64 * 1024
)

type MessageType string

// Server message types
const (
	MessageTypeDeltaUpdate         MessageType = "delta_update"
	MessageTypeFullSync            MessageType = "full_sync"
	MessageTypeReconciliation      MessageType = "reconnection_reconciliation"
	MessageTypeSpecificUpdate      MessageType = "specific_update"
	MessageTypeServerPong          MessageType = "pong"
	MessageTypeServerLoginSuccess  MessageType = "login_success"
	MessageTypeServerLoginFailure  MessageType = "login_failure"
	MessageTypeServerError         MessageType = "error"
	MessageTypeServerActionApplied MessageType = "action_applied"
)

// Client message types
const (
	MessageTypeClientLogin  MessageType = "login"
	MessageTypeClientAck    MessageType = "ack"
	MessageTypeClientResync MessageType = "resync"
	MessageTypeClientAction MessageType = "action"
	MessageTypeClientPing   MessageType = "ping"
)

// ReconciliationMode tells a reconnecting client what a reconciliation holds.
type ReconciliationMode string

const (
	ReconciliationModePatch    ReconciliationMode = "patch"
	ReconciliationModeFullSync ReconciliationMode = "full_sync"
)

// DeltaUpdate carries one player's filtered delta. When Compressed is set the
// delta is omitted and Data holds it serialized, zstd compressed and base64
// encoded.
type DeltaUpdate struct {
	Type         MessageType       `json:"type"`
	Room         string            `json:"room"`
	TargetPlayer string            `json:"target_player"`
	Delta        *delta.StateDelta `json:"delta,omitempty"`
	Compressed   bool              `json:"compressed"`
	Data         string            `json:"data,omitempty"`
}

// FullSync carries a complete filtered snapshot.
type FullSync struct {
	Type         MessageType `json:"type"`
	Room         string      `json:"room"`
	TargetPlayer string      `json:"target_player"`
	*delta.FullSyncPayload
	Compressed bool   `json:"compressed"`
	Data       string `json:"data,omitempty"`
}

// Reconciliation answers a reconnect or resync request with either a merged
// patch or a full sync.
type Reconciliation struct {
	Type            MessageType            `json:"type"`
	Room            string                 `json:"room"`
	TargetPlayer    string                 `json:"target_player"`
	Mode            ReconciliationMode     `json:"mode"`
	MissedSequences []uint64               `json:"missed_sequences"`
	Patch           *delta.Patch           `json:"patch,omitempty"`
	FullSync        *delta.FullSyncPayload `json:"full_sync,omitempty"`
	Compressed      bool                   `json:"compressed"`
	Data            string                 `json:"data,omitempty"`
}

// reconciliationBody is what gets compressed for a Reconciliation.
type reconciliationBody struct {
	Patch    *delta.Patch           `json:"patch,omitempty"`
	FullSync *delta.FullSyncPayload `json:"full_sync,omitempty"`
}

// SpecificUpdate is the lightweight message of the high frequency path.
type SpecificUpdate struct {
	Type       MessageType            `json:"type"`
	Room       string                 `json:"room"`
	UpdateType delta.UpdateType       `json:"update_type"`
	SequenceID uint64                 `json:"sequence_id"`
	Changes    map[string]interface{} `json:"changes"`
	Timestamp  int64                  `json:"timestamp"`
	YourTurn   *bool                  `json:"your_turn,omitempty"`
}

// ServerPong answers a client ping.
type ServerPong struct {
	Type            MessageType `json:"type"`
	Timestamp       int64       `json:"timestamp"`
	ClientTimestamp int64       `json:"client_timestamp"`
}

// ServerLoginSuccess confirms the identity bound to a connection.
type ServerLoginSuccess struct {
	Type   MessageType `json:"type"`
	Player string      `json:"player"`
	Room   string      `json:"room"`
}

// ServerLoginFailure is sent before a connection is closed on a failed login.
type ServerLoginFailure struct {
	Type   MessageType `json:"type"`
	Reason string      `json:"reason"`
}

// ServerError reports a failed client request. The connection stays open.
type ServerError struct {
	Type    MessageType `json:"type"`
	Request MessageType `json:"request"`
	Reason  string      `json:"reason"`
}

// ServerActionApplied confirms a game action to the player that sent it.
type ServerActionApplied struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// ClientMessage is any message sent by a client. Only the fields of its type
// are set.
type ClientMessage struct {
	Type MessageType `json:"type"`
	// login
	Token string `json:"token,omitempty"`
	Room  string `json:"room,omitempty"`
	// ack
	SequenceID uint64 `json:"sequence_id,omitempty"`
	// resync
	LastSequence *uint64 `json:"last_sequence,omitempty"`
	// action
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// ping
	Timestamp int64 `json:"timestamp,omitempty"`
}
