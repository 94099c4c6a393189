package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/hokm/pkg/broadcast"
	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/repositories"
	"github.com/cbodonnell/hokm/pkg/state"
)

// ErrUnknownAction is returned for client actions GameSync does not handle.
var ErrUnknownAction = errors.New("unknown action")

// Broadcaster is the part of the broadcast layer GameSync drives.
type Broadcaster interface {
	BroadcastStateChange(ctx context.Context, room string, snapshot state.Snapshot, opts broadcast.BroadcastOptions) (*broadcast.Result, error)
	ApplyKnownFieldChanges(ctx context.Context, room string, updateType delta.UpdateType, changes map[string]interface{}, affected []string) (*broadcast.Result, error)
	ScheduleStateChange(room string, snapshot state.Snapshot, opts broadcast.BroadcastOptions)
	HasPending(room string) bool
	SetMembers(room string, members []string)
	Sequence(room string) (uint64, bool)
	CleanupRoom(room string) bool
}

// GameSync runs game actions through the rule engine and broadcasts the
// resulting snapshots. Actions on one room are serialized.
type GameSync struct {
	rules        RuleEngine
	states       state.StateManager
	broadcaster  Broadcaster
	repository   repositories.Repository
	saveRequests chan<- string
	debounce     bool

	lock  sync.Mutex
	rooms map[string]*roomGame
}

type roomGame struct {
	lock    sync.Mutex
	members []string

	batchDepth int
	batchDirty bool
	batchForce bool
}

type NewGameSyncOptions struct {
	// RuleEngine may be nil, in which case every action fails with
	// ErrNoRuleEngine.
	RuleEngine   RuleEngine
	StateManager state.StateManager
	Broadcaster  Broadcaster
	// Repository is optional and only used to restore and delete rooms.
	Repository repositories.Repository
	// SaveRequests receives the id of every room whose snapshot changed.
	SaveRequests chan<- string
	// DebounceActions schedules the broadcasts of client actions so that a
	// burst of actions on one room goes out as a single update.
	DebounceActions bool
}

func NewGameSync(opts NewGameSyncOptions) *GameSync {
	return &GameSync{
		rules:        opts.RuleEngine,
		states:       opts.StateManager,
		broadcaster:  opts.Broadcaster,
		repository:   opts.Repository,
		saveRequests: opts.SaveRequests,
		debounce:     opts.DebounceActions,
		rooms:        make(map[string]*roomGame),
	}
}

func (g *GameSync) room(room string) *roomGame {
	g.lock.Lock()
	defer g.lock.Unlock()
	rg, ok := g.rooms[room]
	if !ok {
		rg = &roomGame{}
		g.rooms[room] = rg
	}
	return rg
}

// publishOptions say how a new snapshot reaches the players.
type publishOptions struct {
	updateType    delta.UpdateType
	forceFullSync bool
	// knownFields sends the changed fields on the high frequency path.
	knownFields bool
	// schedule hands the snapshot to the broadcaster's debounce timer.
	schedule bool
}

// AssignTeams seats players and broadcasts a full sync of the new table.
func (g *GameSync) AssignTeams(ctx context.Context, room string, players []string) error {
	if g.rules == nil {
		return ErrNoRuleEngine
	}
	rg := g.room(room)
	rg.lock.Lock()
	defer rg.lock.Unlock()

	snapshot, err := g.rules.AssignTeams(ctx, room, players)
	if err != nil {
		return fmt.Errorf("failed to assign teams: %w", err)
	}
	members := append([]string(nil), players...)
	sort.Strings(members)
	rg.members = members
	g.broadcaster.SetMembers(room, members)
	return g.publishLocked(ctx, room, rg, snapshot, publishOptions{
		updateType:    delta.UpdateTypeGameSetup,
		forceFullSync: true,
	})
}

// DealInitialHand deals the first cards. Every player only learns about their
// own hand.
func (g *GameSync) DealInitialHand(ctx context.Context, room string) error {
	if g.rules == nil {
		return ErrNoRuleEngine
	}
	rg := g.room(room)
	rg.lock.Lock()
	defer rg.lock.Unlock()

	snapshot, err := g.rules.DealInitialHand(ctx, room)
	if err != nil {
		return fmt.Errorf("failed to deal initial hand: %w", err)
	}
	return g.publishLocked(ctx, room, rg, snapshot, publishOptions{updateType: delta.UpdateTypeHandUpdate})
}

// SelectHokm sets the trump suit chosen by the hakem.
func (g *GameSync) SelectHokm(ctx context.Context, room, player, suit string) error {
	return g.selectHokm(ctx, room, player, suit, false)
}

func (g *GameSync) selectHokm(ctx context.Context, room, player, suit string, schedule bool) error {
	if g.rules == nil {
		return ErrNoRuleEngine
	}
	rg := g.room(room)
	rg.lock.Lock()
	defer rg.lock.Unlock()

	snapshot, err := g.rules.SelectHokm(ctx, room, player, suit)
	if err != nil {
		return fmt.Errorf("failed to select hokm: %w", err)
	}
	return g.publishLocked(ctx, room, rg, snapshot, publishOptions{
		updateType:    delta.UpdateTypeGameSetup,
		forceFullSync: true,
		schedule:      schedule,
	})
}

// PlayCard plays a card. The resulting hand, turn and trick changes are sent
// on the high frequency path.
func (g *GameSync) PlayCard(ctx context.Context, room, player, card string) error {
	return g.playCard(ctx, room, player, card, false)
}

func (g *GameSync) playCard(ctx context.Context, room, player, card string, schedule bool) error {
	if g.rules == nil {
		return ErrNoRuleEngine
	}
	rg := g.room(room)
	rg.lock.Lock()
	defer rg.lock.Unlock()

	snapshot, err := g.rules.PlayCard(ctx, room, player, card)
	if err != nil {
		return fmt.Errorf("failed to play card: %w", err)
	}
	return g.publishLocked(ctx, room, rg, snapshot, publishOptions{knownFields: true, schedule: schedule})
}

// StartNewRound starts the next round and resynchronizes every player.
func (g *GameSync) StartNewRound(ctx context.Context, room string) error {
	if g.rules == nil {
		return ErrNoRuleEngine
	}
	rg := g.room(room)
	rg.lock.Lock()
	defer rg.lock.Unlock()

	snapshot, err := g.rules.StartNewRound(ctx, room)
	if err != nil {
		return fmt.Errorf("failed to start new round: %w", err)
	}
	return g.publishLocked(ctx, room, rg, snapshot, publishOptions{
		updateType:    delta.UpdateTypePhaseChange,
		forceFullSync: true,
	})
}

// ApplyAction runs an action sent by player. With DebounceActions set the
// resulting broadcast is scheduled rather than sent right away.
func (g *GameSync) ApplyAction(ctx context.Context, room, player, action string, payload json.RawMessage) error {
	switch action {
	case ActionSelectHokm:
		p := &SelectHokmPayload{}
		if err := json.Unmarshal(payload, p); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %v", action, err)
		}
		return g.selectHokm(ctx, room, player, p.Suit, g.debounce)
	case ActionPlayCard:
		p := &PlayCardPayload{}
		if err := json.Unmarshal(payload, p); err != nil {
			return fmt.Errorf("failed to unmarshal %s payload: %v", action, err)
		}
		return g.playCard(ctx, room, player, p.Card, g.debounce)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Batch runs fn with automatic broadcasting suspended for room. One broadcast
// of the final snapshot is made when the outermost batch ends, as a full sync
// if any action inside asked for one.
func (g *GameSync) Batch(ctx context.Context, room string, fn func(ctx context.Context) error) error {
	rg := g.room(room)
	rg.lock.Lock()
	rg.batchDepth++
	rg.lock.Unlock()

	fnErr := fn(ctx)

	rg.lock.Lock()
	defer rg.lock.Unlock()
	rg.batchDepth--
	if rg.batchDepth > 0 || !rg.batchDirty {
		return fnErr
	}
	force := rg.batchForce
	rg.batchDirty = false
	rg.batchForce = false

	snapshot, ok := g.states.Get(ctx, room)
	if !ok {
		return fnErr
	}
	flushErr := g.broadcastLocked(ctx, room, snapshot, broadcast.BroadcastOptions{ForceFullSync: force})
	return errors.Join(fnErr, flushErr)
}

func (g *GameSync) publishLocked(ctx context.Context, room string, rg *roomGame, snapshot state.Snapshot, opts publishOptions) error {
	if snapshot == nil {
		return fmt.Errorf("rule engine returned no snapshot for room %s", room)
	}
	old, hadOld := g.states.Get(ctx, room)
	if err := g.states.Set(ctx, room, snapshot); err != nil {
		return fmt.Errorf("failed to store snapshot: %v", err)
	}
	g.requestSave(room)

	if rg.batchDepth > 0 {
		rg.batchDirty = true
		rg.batchForce = rg.batchForce || opts.forceFullSync
		return nil
	}

	if opts.schedule {
		g.broadcaster.ScheduleStateChange(room, snapshot, broadcast.BroadcastOptions{
			UpdateType:    opts.updateType,
			ForceFullSync: opts.forceFullSync,
		})
		return nil
	}
	// While a broadcast is scheduled the broadcaster's baseline lags the
	// store, so the whole diff is sent and the scheduled one is dropped.
	if opts.knownFields && hadOld && !g.broadcaster.HasPending(room) {
		return g.applyKnownFieldsLocked(ctx, room, rg, old, snapshot)
	}
	return g.broadcastLocked(ctx, room, snapshot, broadcast.BroadcastOptions{
		UpdateType:    opts.updateType,
		ForceFullSync: opts.forceFullSync,
	})
}

func (g *GameSync) broadcastLocked(ctx context.Context, room string, snapshot state.Snapshot, opts broadcast.BroadcastOptions) error {
	result, err := g.broadcaster.BroadcastStateChange(ctx, room, snapshot, opts)
	if err != nil {
		if errors.Is(err, broadcast.ErrNoPlayers) {
			log.Warn("Room %s has no players, state stored without broadcast", room)
			return nil
		}
		return fmt.Errorf("failed to broadcast room %s: %w", room, err)
	}
	if len(result.Failed) > 0 {
		log.Warn("Broadcast %d in room %s failed for %v", result.SequenceID, room, result.Failed)
	}
	return nil
}

// applyKnownFieldsLocked splits the changes of a single action into per-owner
// hand updates and one public update for the whole table.
func (g *GameSync) applyKnownFieldsLocked(ctx context.Context, room string, rg *roomGame, old, new state.Snapshot) error {
	changes := delta.ChangedFields(old, new)
	if len(changes) == 0 {
		return nil
	}

	hands := make(map[string]map[string]interface{})
	public := make(map[string]interface{})
	for field, value := range changes {
		if owner, ok := state.HandOwner(field); ok {
			if hands[owner] == nil {
				hands[owner] = make(map[string]interface{})
			}
			hands[owner][field] = value
			continue
		}
		public[field] = value
	}

	owners := make([]string, 0, len(hands))
	for owner := range hands {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		_, err := g.broadcaster.ApplyKnownFieldChanges(ctx, room, delta.UpdateTypeHandUpdate, hands[owner], []string{owner})
		if err != nil {
			return g.fallbackLocked(ctx, room, new, err)
		}
	}
	if len(public) > 0 {
		audience := rg.members
		if len(audience) == 0 {
			audience = new.Players()
		}
		_, err := g.broadcaster.ApplyKnownFieldChanges(ctx, room, knownFieldsType(public), public, audience)
		if err != nil {
			return g.fallbackLocked(ctx, room, new, err)
		}
	}
	return nil
}

// fallbackLocked resynchronizes the room through a full broadcast when the
// broadcaster has no baseline for the high frequency path.
func (g *GameSync) fallbackLocked(ctx context.Context, room string, snapshot state.Snapshot, cause error) error {
	if !errors.Is(cause, broadcast.ErrUnknownRoom) {
		return fmt.Errorf("failed to send known field changes: %w", cause)
	}
	log.Debug("No sync context for room %s, falling back to full sync", room)
	return g.broadcastLocked(ctx, room, snapshot, broadcast.BroadcastOptions{ForceFullSync: true})
}

func knownFieldsType(changes map[string]interface{}) delta.UpdateType {
	_, tricks := changes[state.FieldTricks]
	_, completed := changes[state.FieldCompletedTricks]
	_, scores := changes[state.FieldRoundScores]
	_, turn := changes[state.FieldCurrentTurn]
	switch {
	case tricks || completed:
		return delta.UpdateTypeTrickResult
	case scores:
		return delta.UpdateTypeScoreChange
	case turn:
		return delta.UpdateTypeTurnTransition
	default:
		return delta.Classify(changes)
	}
}

func (g *GameSync) requestSave(room string) {
	if g.saveRequests == nil {
		return
	}
	select {
	case g.saveRequests <- room:
	default:
		log.Warn("Save request channel full, dropping save of room %s", room)
	}
}

// GetPlayerOptimizedState returns the view of room that player may see,
// shaped like a full sync and stamped with the room's current sequence.
func (g *GameSync) GetPlayerOptimizedState(ctx context.Context, room, player string) (*delta.FullSyncPayload, error) {
	snapshot, ok := g.states.Get(ctx, room)
	if !ok {
		return nil, fmt.Errorf("%w: %s", broadcast.ErrUnknownRoom, room)
	}
	sequence, _ := g.broadcaster.Sequence(room)
	checksum, err := state.Checksum(snapshot)
	if err != nil {
		return nil, err
	}
	return delta.NewFullSync(snapshot, player, sequence, checksum, time.Now())
}

// Members returns the seated players of room.
func (g *GameSync) Members(room string) []string {
	g.lock.Lock()
	rg, ok := g.rooms[room]
	g.lock.Unlock()
	if !ok {
		return nil
	}
	rg.lock.Lock()
	defer rg.lock.Unlock()
	return append([]string(nil), rg.members...)
}

// RestoreRooms loads every stored room and makes it the baseline of its sync
// context. Delta histories do not survive restarts, so every returning player
// is brought back with a full sync.
func (g *GameSync) RestoreRooms(ctx context.Context) error {
	if g.repository == nil {
		return nil
	}
	rooms, err := g.repository.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %v", err)
	}
	for _, room := range rooms {
		if err := g.RestoreRoom(ctx, room); err != nil {
			log.Error("Failed to restore room %s: %v", room, err)
		}
	}
	return nil
}

// RestoreRoom loads one stored room.
func (g *GameSync) RestoreRoom(ctx context.Context, room string) error {
	if g.repository == nil {
		return fmt.Errorf("no repository configured")
	}
	stored, err := g.repository.LoadRoom(ctx, room)
	if err != nil {
		return err
	}

	rg := g.room(room)
	rg.lock.Lock()
	defer rg.lock.Unlock()
	if err := g.states.Set(ctx, room, stored.Snapshot); err != nil {
		return fmt.Errorf("failed to store snapshot: %v", err)
	}
	rg.members = append([]string(nil), stored.Players...)
	sort.Strings(rg.members)
	if len(rg.members) > 0 {
		g.broadcaster.SetMembers(room, rg.members)
	}
	log.Info("Restored room %s with %d players", room, len(rg.members))
	return g.broadcastLocked(ctx, room, stored.Snapshot, broadcast.BroadcastOptions{ForceFullSync: true})
}

// CloseRoom ends the game in room and drops everything kept for it.
func (g *GameSync) CloseRoom(ctx context.Context, room string) error {
	g.lock.Lock()
	_, existed := g.rooms[room]
	delete(g.rooms, room)
	g.lock.Unlock()

	cleaned := g.broadcaster.CleanupRoom(room)
	_, stored := g.states.Get(ctx, room)
	g.states.Delete(ctx, room)
	if g.repository != nil {
		if err := g.repository.DeleteRoom(ctx, room); err != nil {
			return fmt.Errorf("failed to delete room: %v", err)
		}
	}
	if !existed && !cleaned && !stored {
		return fmt.Errorf("%w: %s", broadcast.ErrUnknownRoom, room)
	}
	return nil
}
