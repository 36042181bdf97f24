// Package transfer implements the mark state machine: who holds the mark,
// when it may move and what happens after it does.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/notify"
	"github.com/humanalog/markedfordeath/internal/registry"
	"github.com/humanalog/markedfordeath/internal/storage"
)

var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrEmptyRoster      = errors.New("no players online")
	ErrMarkDisconnected = errors.New("marked player is not connected")
	ErrUnassigned       = errors.New("nobody is marked")
	ErrNoHistory        = errors.New("transfer history not available")
)

// RosterLookup is the live view of connected participants. All returns them
// in connection order.
type RosterLookup interface {
	All() []model.Participant
	FindByID(id uint64) (model.Participant, bool)
	FindByName(name string) (model.Participant, bool)
}

// RandomSource yields uniform integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

// Obfuscator turns a position into a jittered grid label.
type Obfuscator interface {
	Obfuscate(pos model.Position, radius int) string
}

// Stats receives one point per transfer.
type Stats interface {
	RecordTransfer(ctx context.Context, t model.Transfer) error
}

// Dependencies wires an Engine. History, Stats and Sink may be nil.
type Dependencies struct {
	Registry     *registry.Registry
	Roster       RosterLookup
	Grid         Obfuscator
	Random       RandomSource
	Sink         notify.Sink
	History      storage.TransferLog
	Stats        Stats
	JitterRadius int
	Logger       *slog.Logger
	Now          func() time.Time
}

// Engine applies transfers. It is not safe for concurrent use: every method
// except Snapshot must be called from the event loop.
type Engine struct {
	deps Dependencies
	last atomic.Pointer[model.MarkRecord]
}

// New creates an Engine.
func New(deps Dependencies) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = notify.Discard{}
	}
	return &Engine{deps: deps}
}

// Snapshot returns the last record the engine read or wrote. Safe to call
// from any goroutine.
func (e *Engine) Snapshot() model.MarkRecord {
	if r := e.last.Load(); r != nil {
		return *r
	}
	return model.UnassignedRecord()
}

func (e *Engine) remember(r model.MarkRecord) {
	e.last.Store(&r)
}

// Current loads the persisted record.
func (e *Engine) Current(ctx context.Context) (model.MarkRecord, error) {
	r, err := e.deps.Registry.Load(ctx)
	if err != nil {
		return model.MarkRecord{}, err
	}
	e.remember(r)
	return r, nil
}

// SetMark makes p the mark. The record is saved with a freshly obfuscated
// location before history, stats and the panel are updated.
func (e *Engine) SetMark(ctx context.Context, p model.Participant, reason model.TransferReason, details map[string]any) (model.MarkRecord, error) {
	prev, err := e.Current(ctx)
	if err != nil {
		return model.MarkRecord{}, err
	}

	next := model.MarkRecord{
		MarkedID:     p.ID,
		MarkedName:   p.Name,
		GridLocation: e.deps.Grid.Obfuscate(p.Position, e.deps.JitterRadius),
	}
	if err := e.deps.Registry.Save(ctx, next); err != nil {
		return prev, err
	}
	e.remember(next)

	e.deps.Logger.Info("Mark transferred",
		"reason", reason,
		"previousID", prev.MarkedID, "previousName", prev.MarkedName,
		"markedID", next.MarkedID, "markedName", next.MarkedName)

	e.record(ctx, model.Transfer{
		ID:           uuid.NewString(),
		Time:         e.deps.Now().UTC(),
		Reason:       reason,
		PreviousID:   prev.MarkedID,
		PreviousName: prev.MarkedName,
		MarkedID:     next.MarkedID,
		MarkedName:   next.MarkedName,
		GridLocation: next.GridLocation,
		Details:      details,
	})
	e.publish(ctx, next)
	return next, nil
}

func (e *Engine) record(ctx context.Context, t model.Transfer) {
	if e.deps.History != nil {
		if err := e.deps.History.AppendTransfer(ctx, t); err != nil {
			e.deps.Logger.Warn("Failed to record transfer history", "transferID", t.ID, "error", err)
		}
	}
	if e.deps.Stats != nil {
		if err := e.deps.Stats.RecordTransfer(ctx, t); err != nil {
			e.deps.Logger.Warn("Failed to record transfer stats", "transferID", t.ID, "error", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context, r model.MarkRecord) {
	if err := notify.Publish(ctx, e.deps.Sink, r); err != nil {
		e.deps.Logger.Warn("Failed to update mark panel", "error", err)
	}
}

// RollMark marks a participant chosen uniformly from the live roster.
func (e *Engine) RollMark(ctx context.Context) (model.MarkRecord, error) {
	players := e.deps.Roster.All()
	if len(players) == 0 {
		return model.MarkRecord{}, ErrEmptyRoster
	}
	p := players[e.deps.Random.IntN(len(players))]
	return e.SetMark(ctx, p, model.ReasonRoll, map[string]any{"rosterSize": len(players)})
}

// SetMarkByName marks the live participant whose name matches, ignoring case.
func (e *Engine) SetMarkByName(ctx context.Context, name string) (model.MarkRecord, error) {
	p, ok := e.deps.Roster.FindByName(name)
	if !ok {
		return model.MarkRecord{}, fmt.Errorf("%w: name %q", ErrPlayerNotFound, name)
	}
	return e.SetMark(ctx, p, model.ReasonName, map[string]any{"query": name})
}

// SetMarkByID marks the live participant with the given id.
func (e *Engine) SetMarkByID(ctx context.Context, id uint64) (model.MarkRecord, error) {
	p, ok := e.deps.Roster.FindByID(id)
	if !ok {
		return model.MarkRecord{}, fmt.Errorf("%w: id %d", ErrPlayerNotFound, id)
	}
	return e.SetMark(ctx, p, model.ReasonID, nil)
}

// OnDeath moves the mark to the killer when the marked participant is killed
// by another connected participant. Deaths without a player killer, suicides
// and deaths of anyone else leave the mark where it is; the returned bool
// reports whether it moved.
func (e *Engine) OnDeath(ctx context.Context, ev model.DeathEvent) (model.MarkRecord, bool, error) {
	cur, err := e.Current(ctx)
	if err != nil {
		return model.MarkRecord{}, false, err
	}
	if !cur.IsAssigned() || ev.VictimID != cur.MarkedID {
		return cur, false, nil
	}
	if ev.KillerID == 0 || ev.KillerNPC || ev.KillerID == ev.VictimID {
		e.deps.Logger.Debug("Mark kept, no player killer",
			"markedID", cur.MarkedID, "killerID", ev.KillerID, "npc", ev.KillerNPC)
		return cur, false, nil
	}

	killer, ok := e.deps.Roster.FindByID(ev.KillerID)
	if !ok {
		return cur, false, fmt.Errorf("%w: killer %d", ErrMarkDisconnected, ev.KillerID)
	}

	next, err := e.SetMark(ctx, killer, model.ReasonKill, map[string]any{
		"victimId": strconv.FormatUint(ev.VictimID, 10),
		"killerId": strconv.FormatUint(ev.KillerID, 10),
	})
	if err != nil {
		return cur, false, err
	}
	return next, true, nil
}

// RefreshLocation recomputes the grid label of the current mark from their
// live position. It never changes who is marked.
func (e *Engine) RefreshLocation(ctx context.Context) (model.MarkRecord, error) {
	cur, err := e.Current(ctx)
	if err != nil {
		return model.MarkRecord{}, err
	}
	if !cur.IsAssigned() {
		return cur, ErrUnassigned
	}

	p, ok := e.deps.Roster.FindByID(cur.MarkedID)
	if !ok {
		return cur, fmt.Errorf("%w: %s", ErrMarkDisconnected, cur.MarkedName)
	}

	next := cur
	next.GridLocation = e.deps.Grid.Obfuscate(p.Position, e.deps.JitterRadius)
	if err := e.deps.Registry.Save(ctx, next); err != nil {
		return cur, err
	}
	e.remember(next)

	e.deps.Logger.Debug("Mark location refreshed",
		"markedID", next.MarkedID, "gridLocation", next.GridLocation)
	e.publish(ctx, next)
	return next, nil
}

// Repaint pushes the persisted record to the panel without changing it.
func (e *Engine) Repaint(ctx context.Context) error {
	cur, err := e.Current(ctx)
	if err != nil {
		return err
	}
	e.publish(ctx, cur)
	return nil
}

// Reset restores the configured default record.
func (e *Engine) Reset(ctx context.Context) (model.MarkRecord, error) {
	prev, err := e.Current(ctx)
	if err != nil {
		return model.MarkRecord{}, err
	}
	next, err := e.deps.Registry.Reset(ctx)
	if err != nil {
		return prev, err
	}
	e.remember(next)

	e.record(ctx, model.Transfer{
		ID:           uuid.NewString(),
		Time:         e.deps.Now().UTC(),
		Reason:       model.ReasonDefault,
		PreviousID:   prev.MarkedID,
		PreviousName: prev.MarkedName,
		MarkedID:     next.MarkedID,
		MarkedName:   next.MarkedName,
		GridLocation: next.GridLocation,
	})
	e.publish(ctx, next)
	return next, nil
}

// History returns up to limit past transfers, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]model.Transfer, error) {
	if e.deps.History == nil {
		return nil, ErrNoHistory
	}
	return e.deps.History.ListTransfers(ctx, limit)
}
