package delta

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/hokm/pkg/state"
)

const (
	DefaultHistorySize     = 50
	DefaultHistoryMaxAge   = 300 * time.Second
	DefaultMaxReplayDeltas = 10
)

// Engine computes deltas for a single room. It owns the room's sequence
// counter and its bounded delta history. It is safe for concurrent use.
type Engine struct {
	lock          sync.Mutex
	historySize   int
	historyMaxAge time.Duration
	maxReplay     int
	now           func() time.Time

	sequence uint64
	history  []*StateDelta
	// evictedThrough is the highest sequence dropped from history.
	evictedThrough uint64
}

type NewEngineOptions struct {
	HistorySize     int
	HistoryMaxAge   time.Duration
	MaxReplayDeltas int
	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// NewEngine creates a new delta engine. Zero options take their defaults.
func NewEngine(opts NewEngineOptions) *Engine {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.HistoryMaxAge <= 0 {
		opts.HistoryMaxAge = DefaultHistoryMaxAge
	}
	if opts.MaxReplayDeltas <= 0 {
		opts.MaxReplayDeltas = DefaultMaxReplayDeltas
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		historySize:   opts.HistorySize,
		historyMaxAge: opts.HistoryMaxAge,
		maxReplay:     opts.MaxReplayDeltas,
		now:           opts.Now,
	}
}

// Sequence returns the last sequence id handed out.
func (e *Engine) Sequence() uint64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.sequence
}

// NextSequence allocates a fresh sequence id.
func (e *Engine) NextSequence() uint64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.sequence++
	return e.sequence
}

// ChangedFields returns the fields of the key union of old and new whose
// values differ. Removed fields map to nil.
func ChangedFields(old, new state.Snapshot) map[string]interface{} {
	changes := make(map[string]interface{})
	for k, nv := range new {
		ov, ok := old[k]
		if !ok || !state.ValueEqual(ov, nv) {
			changes[k] = nv
		}
	}
	for k := range old {
		if _, ok := new[k]; !ok {
			changes[k] = nil
		}
	}
	return changes
}

// HasChanges reports whether old and new differ in any field.
func HasChanges(old, new state.Snapshot) bool {
	if len(old) != len(new) {
		return true
	}
	for k, nv := range new {
		ov, ok := old[k]
		if !ok || !state.ValueEqual(ov, nv) {
			return true
		}
	}
	return false
}

type DiffOptions struct {
	// UpdateType overrides classification when set.
	UpdateType UpdateType
	// AffectedPlayers overrides inference when non-nil.
	AffectedPlayers []string
	// Members is the room membership used when a change affects everyone.
	Members []string
}

// Diff computes the delta from old to new, stamps it with the next sequence
// id and appends it to the history.
func (e *Engine) Diff(old, new state.Snapshot, opts DiffOptions) (*StateDelta, error) {
	checksum, err := state.Checksum(new)
	if err != nil {
		return nil, fmt.Errorf("failed to compute checksum: %v", err)
	}

	changes := ChangedFields(old, new)
	updateType := opts.UpdateType
	if updateType == "" {
		updateType = Classify(changes)
	}
	affected := opts.AffectedPlayers
	if affected == nil {
		affected = InferAffectedPlayers(old, new, changes, opts.Members)
	} else {
		affected = dedupe(affected)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	e.sequence++
	now := e.now()
	d := &StateDelta{
		UpdateType:      updateType,
		Timestamp:       now.UnixMilli(),
		SequenceID:      e.sequence,
		Changes:         changes,
		AffectedPlayers: affected,
		Checksum:        checksum,
		RecordedAt:      now,
	}
	e.appendLocked(d.Copy())
	return d, nil
}

// Record stores a caller supplied change set without diffing or checksumming
// it and returns the stamped delta.
func (e *Engine) Record(updateType UpdateType, changes map[string]interface{}, affected []string) *StateDelta {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.sequence++
	now := e.now()
	d := &StateDelta{
		UpdateType:      updateType,
		Timestamp:       now.UnixMilli(),
		SequenceID:      e.sequence,
		Changes:         state.Snapshot(changes).Clone(),
		AffectedPlayers: dedupe(affected),
		RecordedAt:      now,
	}
	e.appendLocked(d.Copy())
	return d
}

func (e *Engine) appendLocked(d *StateDelta) {
	e.history = append(e.history, d)
	if over := len(e.history) - e.historySize; over > 0 {
		e.evictedThrough = e.history[over-1].SequenceID
		e.history = append([]*StateDelta(nil), e.history[over:]...)
	}
}

// PruneHistory drops entries older than the maximum age and returns how many
// were removed.
func (e *Engine) PruneHistory() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	cutoff := e.now().Add(-e.historyMaxAge)
	i := 0
	for i < len(e.history) && e.history[i].RecordedAt.Before(cutoff) {
		i++
	}
	if i == 0 {
		return 0
	}
	e.evictedThrough = e.history[i-1].SequenceID
	e.history = append([]*StateDelta(nil), e.history[i:]...)
	return i
}

// History returns a copy of the retained deltas, oldest first.
func (e *Engine) History() []*StateDelta {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]*StateDelta, 0, len(e.history))
	for _, d := range e.history {
		out = append(out, d.Copy())
	}
	return out
}

// FilterForPlayer returns the view of d that player may see. players resolves
// current_turn; when nil the players field of the delta is used.
func FilterForPlayer(d *StateDelta, player string, players []string) *StateDelta {
	out := d.Copy()
	out.Changes = make(map[string]interface{}, len(d.Changes))
	for k, v := range d.Changes {
		if state.VisibleTo(k, player) {
			out.Changes[k] = v
		}
	}
	out.YourTurn = nil
	if players == nil {
		players = state.PlayerList(d.Changes[state.FieldPlayers])
	}
	if yourTurn, ok := resolvesTo(out.Changes, players, player); ok && yourTurn {
		out.YourTurn = &yourTurn
	}
	return out
}

func resolvesTo(changes map[string]interface{}, players []string, player string) (bool, bool) {
	v, ok := changes[state.FieldCurrentTurn]
	if !ok {
		return false, false
	}
	index, ok := state.AsIndex(v)
	if !ok {
		return false, false
	}
	p, ok := state.PlayerAt(players, index)
	if !ok {
		return false, false
	}
	return p == player, true
}

// NewFullSync builds the full sync payload of snapshot for player at the
// given sequence.
func NewFullSync(snapshot state.Snapshot, player string, sequence uint64, checksum string, now time.Time) (*FullSyncPayload, error) {
	yourTurn := false
	if index, ok := snapshot.CurrentTurn(); ok {
		if p, ok := state.PlayerAt(snapshot.Players(), index); ok {
			yourTurn = p == player
		}
	}
	view := snapshot.FilterForPlayer(player)
	viewChecksum, err := state.Checksum(view)
	if err != nil {
		return nil, fmt.Errorf("failed to compute view checksum: %v", err)
	}
	return &FullSyncPayload{
		SequenceID:   sequence,
		State:        view,
		Checksum:     checksum,
		ViewChecksum: viewChecksum,
		YourTurn:     yourTurn,
		Timestamp:    now.UnixMilli(),
	}, nil
}

// ViewChecksum returns the checksum of the projection of snapshot that
// player may see.
func ViewChecksum(snapshot state.Snapshot, player string) (string, error) {
	return state.Checksum(snapshot.FilterForPlayer(player))
}

// FullSync builds a full sync of snapshot for player with a fresh sequence.
func (e *Engine) FullSync(snapshot state.Snapshot, player string) (*FullSyncPayload, error) {
	checksum, err := state.Checksum(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to compute checksum: %v", err)
	}
	seq := e.NextSequence()
	return NewFullSync(snapshot, player, seq, checksum, e.now())
}

// ReconciliationPatch brings a player that last saw lastKnown up to current.
// It returns a merged patch of the missed deltas, or a full sync when too many
// were missed or the history no longer covers the gap.
func (e *Engine) ReconciliationPatch(player string, lastKnown uint64, current state.Snapshot) (*Reconciliation, error) {
	checksum, err := state.Checksum(current)
	if err != nil {
		return nil, fmt.Errorf("failed to compute checksum: %v", err)
	}

	e.lock.Lock()
	var missed []*StateDelta
	for _, d := range e.history {
		if d.SequenceID > lastKnown {
			missed = append(missed, d)
		}
	}
	missedSequences := make([]uint64, 0, len(missed))
	for _, d := range missed {
		missedSequences = append(missedSequences, d.SequenceID)
	}
	sort.Slice(missedSequences, func(i, j int) bool { return missedSequences[i] < missedSequences[j] })

	needFullSync := lastKnown > e.sequence ||
		len(missed) > e.maxReplay ||
		lastKnown < e.evictedThrough

	e.sequence++
	seq := e.sequence
	now := e.now()
	if needFullSync {
		e.lock.Unlock()
		fullSync, err := NewFullSync(current, player, seq, checksum, now)
		if err != nil {
			return nil, err
		}
		return &Reconciliation{
			FullSync:        fullSync,
			MissedSequences: missedSequences,
		}, nil
	}

	merged := make(map[string]interface{})
	for _, d := range missed {
		for k, v := range d.Changes {
			if state.VisibleTo(k, player) {
				merged[k] = v
			}
		}
	}
	merged = state.Snapshot(merged).Clone()
	e.lock.Unlock()

	viewChecksum, err := ViewChecksum(current, player)
	if err != nil {
		return nil, fmt.Errorf("failed to compute view checksum: %v", err)
	}
	patch := &Patch{
		SequenceID:   seq,
		FromSequence: lastKnown,
		Changes:      merged,
		Checksum:     checksum,
		ViewChecksum: viewChecksum,
		Timestamp:    now.UnixMilli(),
	}
	if yourTurn, ok := resolvesTo(merged, current.Players(), player); ok && yourTurn {
		patch.YourTurn = &yourTurn
	}
	return &Reconciliation{
		Patch:           patch,
		MissedSequences: missedSequences,
	}, nil
}

func dedupe(players []string) []string {
	set := make(map[string]struct{}, len(players))
	for _, p := range players {
		set[p] = struct{}{}
	}
	return sortedPlayers(set)
}
