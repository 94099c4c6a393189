package messages

import (
	"encoding/json"
	"fmt"

	"github.com/cbodonnell/hokm/pkg/delta"
)

// SerializeMessage encodes any server or client message.
func SerializeMessage(m interface{}) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %v", err)
	}
	return b, nil
}

// DeserializeClientMessage decodes a message received from a client.
func DeserializeClientMessage(b []byte) (*ClientMessage, error) {
	m := &ClientMessage{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("failed to deserialize client message: %v", err)
	}
	switch m.Type {
	case MessageTypeClientLogin, MessageTypeClientAck, MessageTypeClientResync,
		MessageTypeClientAction, MessageTypeClientPing:
		return m, nil
	default:
		return nil, fmt.Errorf("unknown client message type: %q", m.Type)
	}
}

// DeserializeServerMessage decodes a message received from the server into
// its concrete type.
func DeserializeServerMessage(b []byte) (interface{}, error) {
	envelope := struct {
		Type MessageType `json:"type"`
	}{}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, fmt.Errorf("failed to deserialize server message: %v", err)
	}

	var m interface{}
	switch envelope.Type {
	case MessageTypeDeltaUpdate:
		m = &DeltaUpdate{}
	case MessageTypeFullSync:
		m = &FullSync{}
	case MessageTypeReconciliation:
		m = &Reconciliation{}
	case MessageTypeSpecificUpdate:
		m = &SpecificUpdate{}
	case MessageTypeServerPong:
		m = &ServerPong{}
	case MessageTypeServerLoginSuccess:
		m = &ServerLoginSuccess{}
	case MessageTypeServerLoginFailure:
		m = &ServerLoginFailure{}
	case MessageTypeServerError:
		m = &ServerError{}
	case MessageTypeServerActionApplied:
		m = &ServerActionApplied{}
	default:
		return nil, fmt.Errorf("unknown server message type: %q", envelope.Type)
	}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("failed to deserialize %s message: %v", envelope.Type, err)
	}
	return m, nil
}

// NewDeltaUpdate builds the delta_update for one player, compressing the
// delta when it is large. d.CompressedSize is set when compression applies.
func NewDeltaUpdate(c *delta.Compressor, room, player string, d *delta.StateDelta) (*DeltaUpdate, *delta.Encoded, error) {
	encoded, err := c.Compress(d)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compress delta: %v", err)
	}
	m := &DeltaUpdate{
		Type:         MessageTypeDeltaUpdate,
		Room:         room,
		TargetPlayer: player,
	}
	if encoded.Compressed {
		d.CompressedSize = encoded.Size()
		m.Compressed = true
		m.Data = encoded.Data
		return m, encoded, nil
	}
	m.Delta = d
	return m, encoded, nil
}

// Decode returns the delta carried by m.
func (m *DeltaUpdate) Decode(c *delta.Compressor) (*delta.StateDelta, error) {
	if !m.Compressed {
		if m.Delta == nil {
			return nil, fmt.Errorf("delta update has no delta")
		}
		return m.Delta, nil
	}
	raw, err := c.Decompress(m.Data, true)
	if err != nil {
		return nil, err
	}
	d := &delta.StateDelta{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("%w: %v", delta.ErrDecode, err)
	}
	return d, nil
}

// NewFullSync builds the full_sync message for one player.
func NewFullSync(c *delta.Compressor, room, player string, payload *delta.FullSyncPayload) (*FullSync, *delta.Encoded, error) {
	encoded, err := c.Compress(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compress full sync: %v", err)
	}
	m := &FullSync{
		Type:         MessageTypeFullSync,
		Room:         room,
		TargetPlayer: player,
	}
	if encoded.Compressed {
		m.Compressed = true
		m.Data = encoded.Data
		return m, encoded, nil
	}
	m.FullSyncPayload = payload
	return m, encoded, nil
}

// Decode returns the full sync payload carried by m.
func (m *FullSync) Decode(c *delta.Compressor) (*delta.FullSyncPayload, error) {
	if !m.Compressed {
		if m.FullSyncPayload == nil {
			return nil, fmt.Errorf("full sync has no payload")
		}
		return m.FullSyncPayload, nil
	}
	raw, err := c.Decompress(m.Data, true)
	if err != nil {
		return nil, err
	}
	payload := &delta.FullSyncPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", delta.ErrDecode, err)
	}
	return payload, nil
}

// NewReconciliation builds the reconnection_reconciliation message for r.
func NewReconciliation(c *delta.Compressor, room, player string, r *delta.Reconciliation) (*Reconciliation, *delta.Encoded, error) {
	body := &reconciliationBody{Patch: r.Patch, FullSync: r.FullSync}
	encoded, err := c.Compress(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compress reconciliation: %v", err)
	}
	m := &Reconciliation{
		Type:            MessageTypeReconciliation,
		Room:            room,
		TargetPlayer:    player,
		Mode:            ReconciliationModePatch,
		MissedSequences: r.MissedSequences,
	}
	if m.MissedSequences == nil {
		m.MissedSequences = []uint64{}
	}
	if r.IsFullSync() {
		m.Mode = ReconciliationModeFullSync
	}
	if encoded.Compressed {
		m.Compressed = true
		m.Data = encoded.Data
		return m, encoded, nil
	}
	m.Patch = r.Patch
	m.FullSync = r.FullSync
	return m, encoded, nil
}

// Decode returns the patch or full sync carried by m.
func (m *Reconciliation) Decode(c *delta.Compressor) (*delta.Reconciliation, error) {
	r := &delta.Reconciliation{MissedSequences: m.MissedSequences}
	if !m.Compressed {
		r.Patch = m.Patch
		r.FullSync = m.FullSync
	} else {
		raw, err := c.Decompress(m.Data, true)
		if err != nil {
			return nil, err
		}
		body := &reconciliationBody{}
		if err := json.Unmarshal(raw, body); err != nil {
			return nil, fmt.Errorf("%w: %v", delta.ErrDecode, err)
		}
		r.Patch = body.Patch
		r.FullSync = body.FullSync
	}
	if r.Patch == nil && r.FullSync == nil {
		return nil, fmt.Errorf("reconciliation has neither patch nor full sync")
	}
	return r, nil
}
