package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cbodonnell/hokm/pkg/delta"
	"github.com/cbodonnell/hokm/pkg/log"
	"github.com/cbodonnell/hokm/pkg/messages"
	"github.com/cbodonnell/hokm/pkg/state"
)

var (
	// ErrNotSynced is returned for incremental updates received before any
	// full sync.
	ErrNotSynced = errors.New("receiver has no baseline state")
	// ErrChecksumMismatch is returned when the reconstructed view does not
	// match the checksum sent by the server.
	ErrChecksumMismatch = errors.New("view checksum mismatch")
	// ErrUnknownUpdateType is returned for specific updates whose update type
	// is not one the server sends.
	ErrUnknownUpdateType = errors.New("unknown update type")
)

// Update describes a server message after it was applied.
type Update struct {
	Kind       messages.MessageType
	UpdateType delta.UpdateType
	SequenceID uint64
	Changes    map[string]interface{}
	FullSync   bool
	YourTurn   bool
	// Skipped counts the sequence ids between the previous and this update
	// that were never delivered. Deltas with nothing visible to the player
	// are not sent, so a gap alone is not an error.
	Skipped uint64
	// Stale is set when the update was older than the current state and was
	// ignored.
	Stale bool
}

// Receiver reconstructs one player's view of a room from sync messages.
type Receiver struct {
	lock       sync.Mutex
	player     string
	compressor *delta.Compressor
	view       state.Snapshot
	sequence   uint64
	synced     bool
	yourTurn   bool
}

func NewReceiver(player string, compressor *delta.Compressor) *Receiver {
	return &Receiver{
		player:     player,
		compressor: compressor,
	}
}

// Apply applies a server message. Messages that do not carry state return a
// nil Update. ErrNotSynced and ErrChecksumMismatch mean the receiver should
// request a resync; the state is left as it was before the message.
func (r *Receiver) Apply(m interface{}) (*Update, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	switch m := m.(type) {
	case *messages.FullSync:
		payload, err := m.Decode(r.compressor)
		if err != nil {
			return nil, fmt.Errorf("failed to decode full sync: %v", err)
		}
		return r.applyFullSync(messages.MessageTypeFullSync, payload)
	case *messages.DeltaUpdate:
		d, err := m.Decode(r.compressor)
		if err != nil {
			return nil, fmt.Errorf("failed to decode delta: %v", err)
		}
		return r.applyDelta(d)
	case *messages.Reconciliation:
		rec, err := m.Decode(r.compressor)
		if err != nil {
			return nil, fmt.Errorf("failed to decode reconciliation: %v", err)
		}
		if rec.IsFullSync() {
			return r.applyFullSync(messages.MessageTypeReconciliation, rec.FullSync)
		}
		return r.applyPatch(rec.Patch, rec.MissedSequences)
	case *messages.SpecificUpdate:
		return r.applySpecific(m)
	default:
		return nil, nil
	}
}

func (r *Receiver) applyFullSync(kind messages.MessageType, payload *delta.FullSyncPayload) (*Update, error) {
	if payload.ViewChecksum != "" {
		if err := verify(payload.State, payload.ViewChecksum); err != nil {
			return nil, err
		}
	}
	r.view = payload.State.Clone()
	if r.view == nil {
		r.view = state.Snapshot{}
	}
	r.sequence = payload.SequenceID
	r.synced = true
	r.yourTurn = payload.YourTurn
	return &Update{
		Kind:       kind,
		UpdateType: delta.UpdateTypeFullSync,
		SequenceID: payload.SequenceID,
		FullSync:   true,
		YourTurn:   payload.YourTurn,
	}, nil
}

func (r *Receiver) applyDelta(d *delta.StateDelta) (*Update, error) {
	if !r.synced {
		return nil, ErrNotSynced
	}
	u := &Update{
		Kind:       messages.MessageTypeDeltaUpdate,
		UpdateType: d.UpdateType,
		SequenceID: d.SequenceID,
		Changes:    d.Changes,
	}
	if d.SequenceID <= r.sequence {
		u.Stale = true
		return u, nil
	}
	next := r.view.Merge(d.Changes)
	if d.ViewChecksum != "" {
		if err := verify(next, d.ViewChecksum); err != nil {
			return nil, err
		}
	}
	u.Skipped = d.SequenceID - r.sequence - 1
	if u.Skipped > 0 {
		log.Debug("Player %s skipped %d sequences before %d", r.player, u.Skipped, d.SequenceID)
	}
	r.commit(next, d.SequenceID, d.YourTurn)
	u.YourTurn = r.yourTurn
	return u, nil
}

func (r *Receiver) applyPatch(p *delta.Patch, missed []uint64) (*Update, error) {
	if !r.synced {
		return nil, ErrNotSynced
	}
	u := &Update{
		Kind:       messages.MessageTypeReconciliation,
		SequenceID: p.SequenceID,
		Changes:    p.Changes,
	}
	if p.SequenceID < r.sequence {
		u.Stale = true
		return u, nil
	}
	next := r.view.Merge(p.Changes)
	if err := verify(next, p.ViewChecksum); err != nil {
		return nil, err
	}
	log.Debug("Player %s reconciled %d missed sequences", r.player, len(missed))
	r.commit(next, p.SequenceID, p.YourTurn)
	u.YourTurn = r.yourTurn
	return u, nil
}

// applySpecific merges a high frequency update. These carry no checksum.
func (r *Receiver) applySpecific(m *messages.SpecificUpdate) (*Update, error) {
	if !r.synced {
		return nil, ErrNotSynced
	}
	if !m.UpdateType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUpdateType, m.UpdateType)
	}
	u := &Update{
		Kind:       messages.MessageTypeSpecificUpdate,
		UpdateType: m.UpdateType,
		SequenceID: m.SequenceID,
		Changes:    m.Changes,
	}
	if m.SequenceID <= r.sequence {
		u.Stale = true
		return u, nil
	}
	u.Skipped = m.SequenceID - r.sequence - 1
	r.commit(r.view.Merge(m.Changes), m.SequenceID, m.YourTurn)
	u.YourTurn = r.yourTurn
	return u, nil
}

func (r *Receiver) commit(next state.Snapshot, sequence uint64, yourTurn *bool) {
	r.view = next
	r.sequence = sequence
	if yourTurn != nil {
		r.yourTurn = *yourTurn
	} else if _, ok := r.view.CurrentTurn(); ok {
		r.yourTurn = r.turnIsMine()
	}
}

func (r *Receiver) turnIsMine() bool {
	turn, ok := r.view.CurrentTurn()
	if !ok {
		return false
	}
	p, ok := state.PlayerAt(r.view.Players(), turn)
	return ok && p == r.player
}

func verify(view state.Snapshot, expected string) error {
	got, err := state.Checksum(view)
	if err != nil {
		return fmt.Errorf("failed to checksum view: %v", err)
	}
	if got != expected {
		return fmt.Errorf("%w: got %s, expected %s", ErrChecksumMismatch, got, expected)
	}
	return nil
}

// State returns a copy of the reconstructed view.
func (r *Receiver) State() state.Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.view.Clone()
}

// Sequence returns the sequence id of the last applied update and whether the
// receiver has a baseline.
func (r *Receiver) Sequence() (uint64, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.sequence, r.synced
}

func (r *Receiver) YourTurn() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.yourTurn
}
