package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/config"
	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receivingChannel applies everything sent on it to a Receiver.
type receivingChannel struct {
	lock     sync.Mutex
	id       string
	receiver *Receiver
	updates  []*Update
	errs     []error
}

func (c *receivingChannel) ID() string { return c.id }

func (c *receivingChannel) Send(ctx context.Context, b []byte) error {
	m, err := messages.DeserializeServerMessage(b)
	if err != nil {
		return err
	}
	u, err := c.receiver.Apply(m)
	c.lock.Lock()
	defer c.lock.Unlock()
	if err != nil {
		c.errs = append(c.errs, err)
		return nil
	}
	c.updates = append(c.updates, u)
	return nil
}

func (c *receivingChannel) Close() error { return nil }

func (c *receivingChannel) errors() []error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]error(nil), c.errs...)
}

func (c *receivingChannel) lastUpdate() *Update {
	c.lock.Lock()
	defer c.lock.Unlock()
	if len(c.updates) == 0 {
		return nil
	}
	return c.updates[len(c.updates)-1]
}

var seats = []string{"A", "B", "C", "D"}

func table(turn int, handA []string) state.Snapshot {
	return state.Snapshot{
		"players":      []string{"A", "B", "C", "D"},
		"current_turn": turn,
		"hokm":         "hearts",
		"hand_A":       handA,
		"hand_B":       []string{"4S", "5S", "6S"},
	}
}

type fixture struct {
	clients     *network.ClientManager
	broadcaster *broadcast.Broadcaster
	receivers   map[string]*Receiver
	channels    map[string]*receivingChannel
}

func newFixture(t *testing.T, threshold int) *fixture {
	cfg := config.DefaultSync()
	cfg.CompressionThreshold = threshold
	clients := network.NewClientManager()
	b, err := broadcast.NewBroadcaster(broadcast.NewBroadcasterOptions{Registry: clients, Config: cfg})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	compressor, err := delta.NewCompressor(threshold)
	require.NoError(t, err)
	t.Cleanup(compressor.Close)

	f := &fixture{
		clients:     clients,
		broadcaster: b,
		receivers:   make(map[string]*Receiver),
		channels:    make(map[string]*receivingChannel),
	}
	for _, p := range seats {
		f.receivers[p] = NewReceiver(p, compressor)
		f.connect(p, "ch-"+p)
	}
	return f
}

func (f *fixture) connect(player, id string) *receivingChannel {
	ch := &receivingChannel{id: id, receiver: f.receivers[player]}
	f.channels[player] = ch
	f.clients.Register("room-1", player, ch)
	return ch
}

func (f *fixture) assertConverged(t *testing.T) {
	t.Helper()
	last, ok := f.broadcaster.LastState("room-1")
	require.True(t, ok)
	sequence, _ := f.broadcaster.Sequence("room-1")
	for _, p := range seats {
		assert.Empty(t, f.channels[p].errors(), "player %s", p)
		assert.True(t, state.ValueEqual(last.FilterForPlayer(p), f.receivers[p].State()), "player %s", p)
		got, synced := f.receivers[p].Sequence()
		assert.True(t, synced)
		assert.LessOrEqual(t, got, sequence)
	}
}

func TestReceiver_ReconstructsFilteredView(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
	}{
		{name: "plain", threshold: 100000},
		{name: "compressed", threshold: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.threshold)
			ctx := context.Background()

			_, err := f.broadcaster.BroadcastStateChange(ctx, "room-1", table(0, []string{"2H", "3H"}), broadcast.BroadcastOptions{})
			require.NoError(t, err)
			f.assertConverged(t)
			assert.True(t, f.receivers["A"].YourTurn())
			assert.False(t, f.receivers["B"].YourTurn())

			_, err = f.broadcaster.BroadcastStateChange(ctx, "room-1", table(1, []string{"3H"}), broadcast.BroadcastOptions{})
			require.NoError(t, err)
			f.assertConverged(t)
			assert.Equal(t, messages.MessageTypeDeltaUpdate, f.channels["C"].lastUpdate().Kind)
			assert.True(t, f.receivers["B"].YourTurn())
			assert.False(t, f.receivers["A"].YourTurn())

			removed := table(1, []string{"3H"})
			delete(removed, "hokm")
			_, err = f.broadcaster.BroadcastStateChange(ctx, "room-1", removed, broadcast.BroadcastOptions{})
			require.NoError(t, err)
			f.assertConverged(t)
			assert.NotContains(t, f.receivers["D"].State(), "hokm")
		})
	}
}

func TestReceiver_ReconcilesAfterReconnect(t *testing.T) {
	f := newFixture(t, 100000)
	ctx := context.Background()

	_, err := f.broadcaster.BroadcastStateChange(ctx, "room-1", table(0, []string{"2H", "3H"}), broadcast.BroadcastOptions{})
	require.NoError(t, err)
	before, _ := f.receivers["B"].Sequence()

	require.True(t, f.clients.Remove("room-1", "B", "ch-B"))
	f.broadcaster.MarkDisconnected("room-1", "B")
	_, err = f.broadcaster.BroadcastStateChange(ctx, "room-1", table(1, []string{"3H"}), broadcast.BroadcastOptions{})
	require.NoError(t, err)
	_, err = f.broadcaster.BroadcastStateChange(ctx, "room-1", table(2, []string{"3H"}), broadcast.BroadcastOptions{})
	require.NoError(t, err)
	stale, _ := f.receivers["B"].Sequence()
	assert.Equal(t, before, stale)

	ch := f.connect("B", "ch-B-2")
	result, err := f.broadcaster.ReconcileOnReconnect(ctx, "room-1", "B", ch)
	require.NoError(t, err)
	assert.False(t, result.FullSync)

	update := ch.lastUpdate()
	require.NotNil(t, update)
	assert.Equal(t, messages.MessageTypeReconciliation, update.Kind)
	assert.False(t, update.FullSync)
	f.assertConverged(t)
}

func fullSyncOf(t *testing.T, snapshot state.Snapshot, player string, sequence uint64) *messages.FullSync {
	t.Helper()
	checksum, err := state.Checksum(snapshot)
	require.NoError(t, err)
	payload, err := delta.NewFullSync(snapshot, player, sequence, checksum, time.Now())
	require.NoError(t, err)
	return &messages.FullSync{Type: messages.MessageTypeFullSync, Room: "room-1", TargetPlayer: player, FullSyncPayload: payload}
}

func TestReceiver_Apply(t *testing.T) {
	compressor, err := delta.NewCompressor(0)
	require.NoError(t, err)
	defer compressor.Close()

	r := NewReceiver("B", compressor)
	_, err = r.Apply(&messages.DeltaUpdate{Type: messages.MessageTypeDeltaUpdate, Delta: &delta.StateDelta{SequenceID: 1}})
	assert.ErrorIs(t, err, ErrNotSynced)

	u, err := r.Apply(&messages.ServerPong{Type: messages.MessageTypeServerPong})
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = r.Apply(fullSyncOf(t, table(0, []string{"2H"}), "B", 5))
	require.NoError(t, err)
	assert.True(t, u.FullSync)
	assert.NotContains(t, r.State(), "hand_A")

	before := r.State()
	_, err = r.Apply(&messages.DeltaUpdate{Type: messages.MessageTypeDeltaUpdate, Delta: &delta.StateDelta{
		SequenceID:   6,
		Changes:      map[string]interface{}{"hokm": "spades"},
		ViewChecksum: "bogus",
	}})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Equal(t, before, r.State())
	sequence, _ := r.Sequence()
	assert.Equal(t, uint64(5), sequence)

	u, err = r.Apply(&messages.DeltaUpdate{Type: messages.MessageTypeDeltaUpdate, Delta: &delta.StateDelta{
		SequenceID: 4,
		Changes:    map[string]interface{}{"hokm": "clubs"},
	}})
	require.NoError(t, err)
	assert.True(t, u.Stale)
	assert.Equal(t, "hearts", r.State()["hokm"])

	u, err = r.Apply(&messages.SpecificUpdate{
		Type:       messages.MessageTypeSpecificUpdate,
		UpdateType: delta.UpdateTypeTurnTransition,
		SequenceID: 8,
		Changes:    map[string]interface{}{"current_turn": float64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), u.Skipped)
	assert.True(t, u.YourTurn)
	assert.True(t, r.YourTurn())

	_, err = r.Apply(&messages.FullSync{Type: messages.MessageTypeFullSync})
	assert.Error(t, err)
}

func TestReceiver_SpecificUpdateType(t *testing.T) {
	compressor, err := delta.NewCompressor(0)
	require.NoError(t, err)
	defer compressor.Close()

	tests := []struct {
		name       string
		updateType delta.UpdateType
		wantErr    error
	}{
		{name: "hand update", updateType: delta.UpdateTypeHandUpdate},
		{name: "trick result", updateType: delta.UpdateTypeTrickResult},
		{name: "empty", updateType: "", wantErr: ErrUnknownUpdateType},
		{name: "unknown", updateType: "shuffle", wantErr: ErrUnknownUpdateType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReceiver("B", compressor)
			_, err := r.Apply(fullSyncOf(t, table(0, []string{"2H"}), "B", 5))
			require.NoError(t, err)

			u, err := r.Apply(&messages.SpecificUpdate{
				Type:       messages.MessageTypeSpecificUpdate,
				UpdateType: tt.updateType,
				SequenceID: 6,
				Changes:    map[string]interface{}{"hokm": "spades"},
			})
			sequence, _ := r.Sequence()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, uint64(5), sequence)
				assert.Equal(t, "hearts", r.State()["hokm"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.updateType, u.UpdateType)
			assert.Equal(t, uint64(6), sequence)
			assert.Equal(t, "spades", r.State()["hokm"])
		})
	}
}
