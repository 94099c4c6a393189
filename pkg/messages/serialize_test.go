package messages

import (
	"strings"
	"testing"

	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompressor(t *testing.T) *delta.Compressor {
	c, err := delta.NewCompressor(delta.DefaultCompressionThreshold)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestDeltaUpdate(t *testing.T) {
	c := newCompressor(t)
	tests := []struct {
		name           string
		changes        map[string]interface{}
		wantCompressed bool
	}{
		{
			name:    "small delta travels inline",
			changes: map[string]interface{}{"current_turn": float64(1)},
		},
		{
			name:           "large delta is compressed",
			changes:        map[string]interface{}{"current_trick": strings.Repeat("AS,", 300)},
			wantCompressed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &delta.StateDelta{
				UpdateType:      delta.UpdateTypeTurnTransition,
				SequenceID:      7,
				Changes:         tt.changes,
				AffectedPlayers: []string{"A"},
			}
			m, encoded, err := NewDeltaUpdate(c, "room-1", "A", d)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCompressed, m.Compressed)
			assert.Equal(t, tt.wantCompressed, m.Delta == nil)
			assert.Equal(t, tt.wantCompressed, d.CompressedSize > 0)
			assert.Equal(t, tt.wantCompressed, encoded.Compressed)

			b, err := SerializeMessage(m)
			require.NoError(t, err)
			decoded, err := DeserializeServerMessage(b)
			require.NoError(t, err)
			update, ok := decoded.(*DeltaUpdate)
			require.True(t, ok)
			assert.Equal(t, "A", update.TargetPlayer)

			got, err := update.Decode(c)
			require.NoError(t, err)
			assert.Equal(t, uint64(7), got.SequenceID)
			assert.Equal(t, tt.changes, got.Changes)
		})
	}
}

func TestDeltaUpdate_MalformedData(t *testing.T) {
	c := newCompressor(t)
	m := &DeltaUpdate{Type: MessageTypeDeltaUpdate, Compressed: true, Data: "!!"}
	_, err := m.Decode(c)
	assert.ErrorIs(t, err, delta.ErrDecode)
}

func TestFullSync(t *testing.T) {
	c := newCompressor(t)
	payload := &delta.FullSyncPayload{
		SequenceID: 3,
		State:      state.Snapshot{"hokm": "hearts"},
		Checksum:   "0000000000000001",
		YourTurn:   true,
	}
	m, _, err := NewFullSync(c, "room-1", "A", payload)
	require.NoError(t, err)
	require.False(t, m.Compressed)

	b, err := SerializeMessage(m)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sequence_id":3`)
	assert.Contains(t, string(b), `"type":"full_sync"`)

	decoded, err := DeserializeServerMessage(b)
	require.NoError(t, err)
	got, err := decoded.(*FullSync).Decode(c)
	require.NoError(t, err)
	assert.Equal(t, payload.State, got.State)
	assert.True(t, got.YourTurn)
}

func TestReconciliation(t *testing.T) {
	c := newCompressor(t)
	r := &delta.Reconciliation{
		Patch: &delta.Patch{
			SequenceID:   9,
			FromSequence: 5,
			Changes:      map[string]interface{}{"current_turn": float64(3)},
		},
		MissedSequences: []uint64{6, 7, 8},
	}
	m, _, err := NewReconciliation(c, "room-1", "B", r)
	require.NoError(t, err)
	assert.Equal(t, ReconciliationModePatch, m.Mode)

	b, err := SerializeMessage(m)
	require.NoError(t, err)
	decoded, err := DeserializeServerMessage(b)
	require.NoError(t, err)
	got, err := decoded.(*Reconciliation).Decode(c)
	require.NoError(t, err)
	assert.False(t, got.IsFullSync())
	assert.Equal(t, []uint64{6, 7, 8}, got.MissedSequences)
	assert.Equal(t, r.Patch.Changes, got.Patch.Changes)
}

func TestDeserializeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *ClientMessage
		wantErr bool
	}{
		{
			name:  "ack",
			input: `{"type":"ack","sequence_id":12}`,
			want:  &ClientMessage{Type: MessageTypeClientAck, SequenceID: 12},
		},
		{
			name:  "ping",
			input: `{"type":"ping","timestamp":5}`,
			want:  &ClientMessage{Type: MessageTypeClientPing, Timestamp: 5},
		},
		{
			name:    "unknown type",
			input:   `{"type":"teleport"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeserializeClientMessage([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	m, err := DeserializeClientMessage([]byte(`{"type":"resync","last_sequence":0}`))
	require.NoError(t, err)
	require.NotNil(t, m.LastSequence)
	assert.Equal(t, uint64(0), *m.LastSequence)
}
