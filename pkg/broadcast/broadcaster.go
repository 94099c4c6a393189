package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/hokm/pkg/config"
	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/network"
	"github.com/cbodonnell/hokm/pkg/state"
)

var (
	// ErrNoPlayers is returned when a room has no members to deliver to.
	ErrNoPlayers = errors.New("room has no players")
	// ErrUnknownRoom is returned when a room has no sync context or no state yet.
	ErrUnknownRoom = errors.New("unknown room")
)

// Registry resolves the live channel of a player and tears down dead ones.
type Registry interface {
	Get(room, player string) (network.Channel, bool)
	Remove(room, player, channelID string) bool
}

// SyncStatus is where a player stands in the reconnection state machine.
type SyncStatus int

const (
	SyncStatusUnknown SyncStatus = iota
	SyncStatusSynced
	SyncStatusDisconnected
	SyncStatusReconciling
)

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusUnknown:
		return "unknown"
	case SyncStatusSynced:
		return "synced"
	case SyncStatusDisconnected:
		return "disconnected"
	case SyncStatusReconciling:
		return "reconciling"
	default:
		return "invalid"
	}
}

// BroadcastOptions tune a single state broadcast.
type BroadcastOptions struct {
	// UpdateType overrides delta classification.
	UpdateType delta.UpdateType
	// AffectedPlayers overrides affected player inference.
	AffectedPlayers []string
	// ForceFullSync sends every player a full sync instead of a delta.
	ForceFullSync bool
}

// Result describes the outcome of a broadcast. A failed delivery to one player
// never fails the broadcast; the player is listed in Failed instead.
type Result struct {
	Room       string
	SequenceID uint64
	FullSync   bool
	NoOp       bool
	Delivered  []string
	Failed     []string
	// Offline lists recipients without a live channel.
	Offline   []string
	BytesSent int
}

type pendingBroadcast struct {
	timer    *time.Timer
	snapshot state.Snapshot
	opts     BroadcastOptions
}

// roomContext is the sync state of one room. Every field is guarded by lock,
// which is held for the whole of a broadcast so sequence assignment and
// per-player delivery order stay consistent.
type roomContext struct {
	lock         sync.Mutex
	room         string
	lastState    state.Snapshot
	hasState     bool
	engine       *delta.Engine
	members      []string
	lastSequence map[string]uint64
	status       map[string]SyncStatus
	pending      *pendingBroadcast
}

// takePendingLocked stops the room's scheduled broadcast and returns it.
func (rc *roomContext) takePendingLocked() *pendingBroadcast {
	p := rc.pending
	if p != nil {
		p.timer.Stop()
		rc.pending = nil
	}
	return p
}

func (rc *roomContext) recipients(snapshot state.Snapshot) []string {
	if len(rc.members) > 0 {
		return rc.members
	}
	players := snapshot.Players()
	sort.Strings(players)
	return players
}

// Broadcaster turns snapshot transitions into per-player wire messages and
// tracks what every player has received.
type Broadcaster struct {
	lock       sync.RWMutex
	rooms      map[string]*roomContext
	registry   Registry
	compressor *delta.Compressor
	stats      *BandwidthStats
	config     config.SyncConfig
	now        func() time.Time
}

type NewBroadcasterOptions struct {
	Registry Registry
	Config   config.SyncConfig
	// Stats defaults to counters that are not exported to Prometheus.
	Stats *BandwidthStats
	Now   func() time.Time
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(opts NewBroadcasterOptions) (*Broadcaster, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Stats == nil {
		opts.Stats = NewBandwidthStats(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.SendTimeout <= 0 {
		opts.Config.SendTimeout = config.DefaultSync().SendTimeout
	}
	if opts.Config.BatchDelay <= 0 {
		opts.Config.BatchDelay = config.DefaultSync().BatchDelay
	}
	compressor, err := delta.NewCompressor(opts.Config.CompressionThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %v", err)
	}
	return &Broadcaster{
		rooms:      make(map[string]*roomContext),
		registry:   opts.Registry,
		compressor: compressor,
		stats:      opts.Stats,
		config:     opts.Config,
		now:        opts.Now,
	}, nil
}

// Close releases the broadcaster's resources and cancels pending broadcasts.
func (b *Broadcaster) Close() {
	for _, room := range b.Rooms() {
		b.CleanupRoom(room)
	}
	b.compressor.Close()
}

func (b *Broadcaster) getRoom(room string) *roomContext {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.rooms[room]
}

func (b *Broadcaster) getOrCreateRoom(room string) *roomContext {
	b.lock.Lock()
	defer b.lock.Unlock()
	rc, ok := b.rooms[room]
	if !ok {
		rc = &roomContext{
			room: room,
			engine: delta.NewEngine(delta.NewEngineOptions{
				HistorySize:     b.config.HistorySize,
				HistoryMaxAge:   b.config.HistoryMaxAge,
				MaxReplayDeltas: b.config.MaxReplayDeltas,
				Now:             b.now,
			}),
			lastSequence: make(map[string]uint64),
			status:       make(map[string]SyncStatus),
		}
		b.rooms[room] = rc
		log.Debug("Created sync context for room %s", room)
	}
	return rc
}

// SetMembers sets the explicit membership of room. Members receive every
// broadcast; without them the players field of the snapshot is used.
func (b *Broadcaster) SetMembers(room string, members []string) {
	rc := b.getOrCreateRoom(room)
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	rc.lock.Lock()
	defer rc.lock.Unlock()
	rc.members = sorted
}

// BroadcastStateChange delivers the transition from the room's last snapshot
// to snapshot. Nothing is sent when nothing changed. The room's last snapshot
// is replaced whatever the delivery outcome. A scheduled broadcast still
// waiting for room is superseded by this one.
func (b *Broadcaster) BroadcastStateChange(ctx context.Context, room string, snapshot state.Snapshot, opts BroadcastOptions) (*Result, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot for room %s is nil", room)
	}
	rc := b.getOrCreateRoom(room)
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if p := rc.takePendingLocked(); p != nil {
		opts = mergeOptions(p.opts, opts)
	}
	return b.broadcastLocked(ctx, rc, snapshot, opts)
}

func (b *Broadcaster) broadcastLocked(ctx context.Context, rc *roomContext, snapshot state.Snapshot, opts BroadcastOptions) (*Result, error) {
	result := &Result{Room: rc.room}
	recipients := rc.recipients(snapshot)

	fullSync := opts.ForceFullSync || !rc.hasState
	changed := !rc.hasState || delta.HasChanges(rc.lastState, snapshot)
	if !fullSync && !changed {
		b.stats.recordNoOp()
		log.Trace("No changes in room %s, skipping broadcast", rc.room)
		result.NoOp = true
		return result, nil
	}

	var d *delta.StateDelta
	var checksum string
	if rc.hasState && changed {
		var err error
		d, err = rc.engine.Diff(rc.lastState, snapshot, delta.DiffOptions{
			UpdateType:      opts.UpdateType,
			AffectedPlayers: opts.AffectedPlayers,
			Members:         recipients,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to diff room %s: %w", rc.room, err)
		}
		result.SequenceID = d.SequenceID
		checksum = d.Checksum
	} else {
		var err error
		checksum, err = state.Checksum(snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum room %s: %w", rc.room, err)
		}
		result.SequenceID = rc.engine.NextSequence()
	}
	result.FullSync = fullSync
	rc.lastState = snapshot.Clone()
	rc.hasState = true

	if len(recipients) == 0 {
		log.Warn("Room %s has no players, nothing to broadcast", rc.room)
		return result, ErrNoPlayers
	}

	players := snapshot.Players()
	for _, player := range recipients {
		ch, ok := b.registry.Get(rc.room, player)
		if !ok {
			if rc.status[player] == SyncStatusSynced {
				rc.status[player] = SyncStatusDisconnected
			}
			result.Offline = append(result.Offline, player)
			continue
		}

		var n int
		var err error
		if fullSync || rc.status[player] != SyncStatusSynced {
			n, err = b.sendFullSync(ctx, rc, player, ch, rc.lastState, result.SequenceID, checksum)
		} else {
			filtered := delta.FilterForPlayer(d, player, players)
			if filtered.IsEmpty() {
				b.stats.recordSkippedEmpty()
				rc.lastSequence[player] = result.SequenceID
				continue
			}
			n, err = b.sendDelta(ctx, rc, player, ch, filtered)
		}
		if err != nil {
			result.Failed = append(result.Failed, player)
			continue
		}
		result.Delivered = append(result.Delivered, player)
		result.BytesSent += n
	}
	return result, nil
}

func (b *Broadcaster) sendFullSync(ctx context.Context, rc *roomContext, player string, ch network.Channel, snapshot state.Snapshot, sequence uint64, checksum string) (int, error) {
	payload, err := delta.NewFullSync(snapshot, player, sequence, checksum, b.now())
	if err != nil {
		return 0, err
	}
	m, encoded, err := messages.NewFullSync(b.compressor, rc.room, player, payload)
	if err != nil {
		return 0, err
	}
	n, err := b.deliver(ctx, rc, player, ch, KindFullSync, m, encoded)
	if err != nil {
		return 0, err
	}
	rc.lastSequence[player] = sequence
	rc.status[player] = SyncStatusSynced
	return n, nil
}

func (b *Broadcaster) sendDelta(ctx context.Context, rc *roomContext, player string, ch network.Channel, d *delta.StateDelta) (int, error) {
	viewChecksum, err := delta.ViewChecksum(rc.lastState, player)
	if err != nil {
		return 0, err
	}
	d.ViewChecksum = viewChecksum
	m, encoded, err := messages.NewDeltaUpdate(b.compressor, rc.room, player, d)
	if err != nil {
		return 0, err
	}
	n, err := b.deliver(ctx, rc, player, ch, KindDelta, m, encoded)
	if err != nil {
		return 0, err
	}
	rc.lastSequence[player] = d.SequenceID
	return n, nil
}

// deliver sends one message. A failed send tears the channel down and marks
// the player disconnected.
func (b *Broadcaster) deliver(ctx context.Context, rc *roomContext, player string, ch network.Channel, kind string, m interface{}, encoded *delta.Encoded) (int, error) {
	payload, err := messages.SerializeMessage(m)
	if err != nil {
		return 0, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.config.SendTimeout)
	defer cancel()
	if err := ch.Send(sendCtx, payload); err != nil {
		b.stats.recordFailure()
		log.Warn("Failed to send %s to player %s in room %s: %v", kind, player, rc.room, err)
		if b.registry.Remove(rc.room, player, ch.ID()) {
			log.Debug("Removed channel %s of player %s", ch.ID(), player)
		}
		rc.status[player] = SyncStatusDisconnected
		return 0, err
	}

	compressed, rawSize, wireSize := false, 0, 0
	if encoded != nil {
		compressed, rawSize, wireSize = encoded.Compressed, encoded.RawSize, encoded.Size()
	}
	b.stats.recordSent(kind, len(payload), compressed, rawSize, wireSize)
	return len(payload), nil
}

// ApplyKnownFieldChanges is the high frequency path: it records a caller
// supplied change set without diffing, merges it into the room's last
// snapshot and sends it only to the affected players. Callers must pass
// every player who can see the changed fields.
func (b *Broadcaster) ApplyKnownFieldChanges(ctx context.Context, room string, updateType delta.UpdateType, changes map[string]interface{}, affected []string) (*Result, error) {
	rc := b.getRoom(room)
	if rc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if p := rc.takePendingLocked(); p != nil {
		if _, err := b.broadcastLocked(ctx, rc, p.snapshot, p.opts); err != nil && !errors.Is(err, ErrNoPlayers) {
			return nil, fmt.Errorf("failed to flush scheduled broadcast for room %s: %w", room, err)
		}
	}
	if !rc.hasState {
		return nil, fmt.Errorf("%w: %s has no state", ErrUnknownRoom, room)
	}

	result := &Result{Room: room}
	if len(changes) == 0 {
		b.stats.recordNoOp()
		result.NoOp = true
		return result, nil
	}

	merged := rc.lastState.Merge(changes)
	if affected == nil {
		affected = delta.InferAffectedPlayers(rc.lastState, merged, changes, rc.recipients(merged))
	}
	d := rc.engine.Record(updateType, changes, affected)
	rc.lastState = merged
	result.SequenceID = d.SequenceID

	players := merged.Players()
	var checksum string
	for _, player := range d.AffectedPlayers {
		ch, ok := b.registry.Get(room, player)
		if !ok {
			if rc.status[player] == SyncStatusSynced {
				rc.status[player] = SyncStatusDisconnected
			}
			result.Offline = append(result.Offline, player)
			continue
		}

		if rc.status[player] != SyncStatusSynced {
			if checksum == "" {
				var err error
				if checksum, err = state.Checksum(merged); err != nil {
					return nil, fmt.Errorf("failed to checksum room %s: %w", room, err)
				}
			}
			n, err := b.sendFullSync(ctx, rc, player, ch, merged, d.SequenceID, checksum)
			if err != nil {
				result.Failed = append(result.Failed, player)
				continue
			}
			result.Delivered = append(result.Delivered, player)
			result.BytesSent += n
			continue
		}

		filtered := delta.FilterForPlayer(d, player, players)
		if filtered.IsEmpty() {
			b.stats.recordSkippedEmpty()
			rc.lastSequence[player] = d.SequenceID
			continue
		}
		m := &messages.SpecificUpdate{
			Type:       messages.MessageTypeSpecificUpdate,
			Room:       room,
			UpdateType: d.UpdateType,
			SequenceID: d.SequenceID,
			Changes:    filtered.Changes,
			Timestamp:  d.Timestamp,
			YourTurn:   filtered.YourTurn,
		}
		n, err := b.deliver(ctx, rc, player, ch, KindSpecific, m, nil)
		if err != nil {
			result.Failed = append(result.Failed, player)
			continue
		}
		rc.lastSequence[player] = d.SequenceID
		result.Delivered = append(result.Delivered, player)
		result.BytesSent += n
	}
	return result, nil
}

// ReconcileOnReconnect brings a reconnecting player up to date on ch from the
// last sequence the room delivered to it.
func (b *Broadcaster) ReconcileOnReconnect(ctx context.Context, room, player string, ch network.Channel) (*Result, error) {
	return b.reconcile(ctx, room, player, ch, nil)
}

// Resync answers a client request to be brought up to date. lastSequence is
// what the client reports having applied; it is only trusted for players the
// room already tracks.
func (b *Broadcaster) Resync(ctx context.Context, room, player string, lastSequence *uint64) (*Result, error) {
	ch, ok := b.registry.Get(room, player)
	if !ok {
		return nil, fmt.Errorf("%w: %s in room %s", network.ErrNoChannel, player, room)
	}
	return b.reconcile(ctx, room, player, ch, lastSequence)
}

func (b *Broadcaster) reconcile(ctx context.Context, room, player string, ch network.Channel, claimed *uint64) (*Result, error) {
	rc := b.getRoom(room)
	if rc == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if !rc.hasState {
		return nil, fmt.Errorf("%w: %s has no state", ErrUnknownRoom, room)
	}

	previous := rc.status[player]
	last, tracked := rc.lastSequence[player]
	if tracked && claimed != nil && *claimed < last {
		last = *claimed
	}
	rc.status[player] = SyncStatusReconciling

	var r *delta.Reconciliation
	var err error
	if tracked {
		r, err = rc.engine.ReconciliationPatch(player, last, rc.lastState)
	} else {
		var fullSync *delta.FullSyncPayload
		fullSync, err = rc.engine.FullSync(rc.lastState, player)
		r = &delta.Reconciliation{FullSync: fullSync}
	}
	if err != nil {
		rc.status[player] = previous
		return nil, fmt.Errorf("failed to reconcile player %s: %w", player, err)
	}
	if r.IsFullSync() {
		b.stats.recordReconciliationFullSync()
	}
	log.Debug("Reconciling player %s in room %s from sequence %d (tracked %t): full sync %t, %d missed",
		player, room, last, tracked, r.IsFullSync(), len(r.MissedSequences))

	m, encoded, err := messages.NewReconciliation(b.compressor, room, player, r)
	if err != nil {
		rc.status[player] = previous
		return nil, err
	}

	result := &Result{Room: room, SequenceID: r.SequenceID(), FullSync: r.IsFullSync()}
	n, err := b.deliver(ctx, rc, player, ch, KindReconciliation, m, encoded)
	if err != nil {
		result.Failed = append(result.Failed, player)
		return result, fmt.Errorf("failed to deliver reconciliation to player %s: %w", player, err)
	}
	rc.lastSequence[player] = r.SequenceID()
	rc.status[player] = SyncStatusSynced
	result.Delivered = append(result.Delivered, player)
	result.BytesSent = n
	return result, nil
}

// Acknowledge records that player applied sequence. The acknowledged sequence
// never moves backwards and acks from untracked players are ignored.
func (b *Broadcaster) Acknowledge(room, player string, sequence uint64) error {
	rc := b.getRoom(room)
	if rc == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, room)
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if current := rc.engine.Sequence(); sequence > current {
		return fmt.Errorf("sequence %d is ahead of room %s at %d", sequence, room, current)
	}
	last, tracked := rc.lastSequence[player]
	if !tracked {
		return nil
	}
	if sequence > last {
		rc.lastSequence[player] = sequence
	}
	return nil
}

// MarkDisconnected moves a tracked player to the disconnected state.
func (b *Broadcaster) MarkDisconnected(room, player string) {
	rc := b.getRoom(room)
	if rc == nil {
		return
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if _, tracked := rc.lastSequence[player]; tracked {
		rc.status[player] = SyncStatusDisconnected
	}
}

// ScheduleStateChange broadcasts snapshot after the batch delay. A change
// scheduled before the delay elapses replaces the pending one.
func (b *Broadcaster) ScheduleStateChange(room string, snapshot state.Snapshot, opts BroadcastOptions) {
	rc := b.getOrCreateRoom(room)
	rc.lock.Lock()
	defer rc.lock.Unlock()

	if previous := rc.takePendingLocked(); previous != nil {
		opts = mergeOptions(previous.opts, opts)
	}
	p := &pendingBroadcast{
		snapshot: snapshot.Clone(),
		opts:     opts,
	}
	p.timer = time.AfterFunc(b.config.BatchDelay, func() {
		b.flushPending(rc, p)
	})
	rc.pending = p
}

func mergeOptions(previous, next BroadcastOptions) BroadcastOptions {
	merged := next
	merged.ForceFullSync = previous.ForceFullSync || next.ForceFullSync
	if merged.UpdateType == "" {
		merged.UpdateType = previous.UpdateType
	}
	if previous.AffectedPlayers == nil || next.AffectedPlayers == nil {
		merged.AffectedPlayers = nil
	} else {
		merged.AffectedPlayers = append(append([]string(nil), previous.AffectedPlayers...), next.AffectedPlayers...)
	}
	return merged
}

func (b *Broadcaster) flushPending(rc *roomContext, p *pendingBroadcast) {
	if b.getRoom(rc.room) != rc {
		return
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if rc.pending != p {
		return
	}
	rc.pending = nil

	result, err := b.broadcastLocked(context.Background(), rc, p.snapshot, p.opts)
	if err != nil {
		log.Warn("Scheduled broadcast for room %s failed: %v", rc.room, err)
		return
	}
	log.Trace("Scheduled broadcast for room %s delivered to %d players", rc.room, len(result.Delivered))
}

// HasPending reports whether a scheduled broadcast is waiting for room.
func (b *Broadcaster) HasPending(room string) bool {
	rc := b.getRoom(room)
	if rc == nil {
		return false
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return rc.pending != nil
}

// CleanupRoom drops the room's sync context, its history and any pending
// broadcast. It reports whether the room existed.
func (b *Broadcaster) CleanupRoom(room string) bool {
	b.lock.Lock()
	rc, ok := b.rooms[room]
	delete(b.rooms, room)
	b.lock.Unlock()
	if !ok {
		return false
	}

	rc.lock.Lock()
	defer rc.lock.Unlock()
	rc.takePendingLocked()
	log.Debug("Cleaned up sync context for room %s", room)
	return true
}

// PruneHistory prunes the delta history of every room and returns how many
// entries were dropped.
func (b *Broadcaster) PruneHistory() int {
	b.lock.RLock()
	contexts := make([]*roomContext, 0, len(b.rooms))
	for _, rc := range b.rooms {
		contexts = append(contexts, rc)
	}
	b.lock.RUnlock()

	pruned := 0
	for _, rc := range contexts {
		pruned += rc.engine.PruneHistory()
	}
	return pruned
}

// GetBandwidthStatistics returns the process wide delivery counters.
func (b *Broadcaster) GetBandwidthStatistics() BandwidthSnapshot {
	s := b.stats.Snapshot()
	b.lock.RLock()
	s.ActiveRooms = len(b.rooms)
	b.lock.RUnlock()
	return s
}

// Rooms returns the rooms with a sync context.
func (b *Broadcaster) Rooms() []string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	rooms := make([]string, 0, len(b.rooms))
	for room := range b.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// PlayerStatus returns the sync status of player in room.
func (b *Broadcaster) PlayerStatus(room, player string) SyncStatus {
	rc := b.getRoom(room)
	if rc == nil {
		return SyncStatusUnknown
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	return rc.status[player]
}

// LastSequence returns the last sequence delivered to player.
func (b *Broadcaster) LastSequence(room, player string) (uint64, bool) {
	rc := b.getRoom(room)
	if rc == nil {
		return 0, false
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	seq, ok := rc.lastSequence[player]
	return seq, ok
}

// Sequence returns the current sequence of room.
func (b *Broadcaster) Sequence(room string) (uint64, bool) {
	rc := b.getRoom(room)
	if rc == nil {
		return 0, false
	}
	return rc.engine.Sequence(), true
}

// LastState returns a copy of the last snapshot broadcast to room.
func (b *Broadcaster) LastState(room string) (state.Snapshot, bool) {
	rc := b.getRoom(room)
	if rc == nil {
		return nil, false
	}
	rc.lock.Lock()
	defer rc.lock.Unlock()
	if !rc.hasState {
		return nil, false
	}
	return rc.lastState.Clone(), true
}

// History returns a copy of the retained deltas of room.
func (b *Broadcaster) History(room string) []*delta.StateDelta {
	rc := b.getRoom(room)
	if rc == nil {
		return nil
	}
	return rc.engine.History()
}
