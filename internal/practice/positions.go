package practice

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pavelanni/pushups/internal/model"
)

const lastSetKey = "pushups-last-set-id"

func positionKey(id model.SetID) string {
	return fmt.Sprintf("pushups-quiz-position-%d", id)
}

// Positions persists the resumable index of each set and the most recently
// started set. Store failures are logged and swallowed. The mixed set is
// never written.
type Positions struct {
	store PositionStore
}

// NewPositions wraps a key-value store. A nil store disables persistence.
func NewPositions(store PositionStore) *Positions {
	return &Positions{store: store}
}

// Load returns the saved index for a set. ok is false when nothing usable
// is stored.
func (p *Positions) Load(id model.SetID) (index int, ok bool) {
	if p == nil || p.store == nil || id == model.MixedSetID {
		return 0, false
	}
	v, err := p.store.GetMetadata(positionKey(id))
	if err != nil {
		slog.Warn("read saved position", "set_id", id, "error", err)
		return 0, false
	}
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed saved position", "set_id", id, "value", v)
		return 0, false
	}
	return n, true
}

// Save records index as the resume point of a set.
func (p *Positions) Save(id model.SetID, index int) {
	if p == nil || p.store == nil || id == model.MixedSetID {
		return
	}
	if err := p.store.SetMetadata(positionKey(id), strconv.Itoa(index)); err != nil {
		slog.Warn("save position", "set_id", id, "index", index, "error", err)
	}
}

// Clear forgets the resume point of a set.
func (p *Positions) Clear(id model.SetID) {
	if p == nil || p.store == nil || id == model.MixedSetID {
		return
	}
	if err := p.store.DeleteMetadata(positionKey(id)); err != nil {
		slog.Warn("clear position", "set_id", id, "error", err)
	}
}

// SetLast remembers id as the most recently started set.
func (p *Positions) SetLast(id model.SetID) {
	if p == nil || p.store == nil || id == model.MixedSetID {
		return
	}
	if err := p.store.SetMetadata(lastSetKey, strconv.FormatInt(int64(id), 10)); err != nil {
		slog.Warn("save last set", "set_id", id, "error", err)
	}
}

// Last returns the most recently started set, if any.
func (p *Positions) Last() (model.SetID, bool) {
	if p == nil || p.store == nil {
		return 0, false
	}
	v, err := p.store.GetMetadata(lastSetKey)
	if err != nil {
		slog.Warn("read last set", "error", err)
		return 0, false
	}
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return model.SetID(n), true
}

// ClearLast forgets the most recently started set.
func (p *Positions) ClearLast() {
	if p == nil || p.store == nil {
		return
	}
	if err := p.store.DeleteMetadata(lastSetKey); err != nil {
		slog.Warn("clear last set", "error", err)
	}
}
