// Package handlers processes host events: participant lifecycle, deaths,
// forwarded log lines and the scheduler's timer ticks.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/humanalog/markedfordeath/internal/dispatcher"
	"github.com/humanalog/markedfordeath/internal/geo"
	"github.com/humanalog/markedfordeath/internal/logging"
	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/roster"
	"github.com/humanalog/markedfordeath/internal/scheduler"
	"github.com/humanalog/markedfordeath/internal/transfer"
	"github.com/humanalog/markedfordeath/internal/util"
)

const (
	EventPlayerConnected    = ":PLAYER:CONNECTED:"
	EventPlayerDisconnected = ":PLAYER:DISCONNECTED:"
	EventPlayerPosition     = ":PLAYER:POSITION:"
	EventPlayerDeath        = ":PLAYER:DEATH:"
	EventLog                = ":LOG:"
)

// Killer kinds carried by :PLAYER:DEATH:.
const (
	KillerPlayer = "player"
	KillerNPC    = "npc"
	KillerNone   = "none"
)

var ErrBadArgs = errors.New("bad event arguments")

// ConnectScheduler is told about every new participant.
type ConnectScheduler interface {
	OnConnect(id uint64) error
}

// Registrar accepts handler registrations.
type Registrar interface {
	Register(command string, h dispatcher.HandlerFunc, opts ...dispatcher.Option)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Roster     *roster.Roster
	Engine     *transfer.Engine
	Scheduler  ConnectScheduler
	LogManager *logging.SlogManager
}

// Service provides handler methods for host events
type Service struct {
	deps         Dependencies
	writeLogFunc func(functionName, data, level string)
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	s := &Service{deps: deps}
	s.writeLogFunc = func(functionName, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(functionName, data, level)
		}
	}
	return s
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}

// Register adds every host event and timer handler to r.
func (s *Service) Register(r Registrar) {
	r.Register(EventPlayerConnected, s.PlayerConnected, dispatcher.Logged())
	r.Register(EventPlayerDisconnected, s.PlayerDisconnected, dispatcher.Logged())
	r.Register(EventPlayerPosition, s.PlayerPosition)
	r.Register(EventPlayerDeath, s.PlayerDeath, dispatcher.Logged())
	r.Register(EventLog, s.HostLog)
	r.Register(scheduler.CommandRefresh, s.RefreshTick, dispatcher.Logged())
	r.Register(scheduler.CommandRepaint, s.RepaintTick)
}

// PlayerConnected adds a participant: [id, name, "x,y,z"].
func (s *Service) PlayerConnected(_ context.Context, e dispatcher.Event) (any, error) {
	data := util.CleanArgs(e.Args)
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %s expects [id, name, position], got %d args", ErrBadArgs, EventPlayerConnected, len(data))
	}
	id, err := util.ParseSteamID(data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	name := data[1]
	if name == "" {
		return nil, fmt.Errorf("%w: empty name for %d", ErrBadArgs, id)
	}

	var pos model.Position
	if len(data) > 2 {
		if pos, err = geo.PositionFromString(data[2]); err != nil {
			s.logger().Warn("Ignoring bad connect position", "id", id, "position", data[2], "error", err)
		}
	}

	p := s.deps.Roster.Connect(id, name, pos)
	s.logger().Debug("Player connected", "id", p.ID, "name", p.Name, "seq", p.Seq)

	if s.deps.Scheduler != nil {
		if err := s.deps.Scheduler.OnConnect(id); err != nil {
			s.logger().Debug("Repaint not scheduled", "id", id, "error", err)
		}
	}
	return nil, nil
}

// PlayerDisconnected removes a participant: [id].
func (s *Service) PlayerDisconnected(_ context.Context, e dispatcher.Event) (any, error) {
	data := util.CleanArgs(e.Args)
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: %s expects [id]", ErrBadArgs, EventPlayerDisconnected)
	}
	id, err := util.ParseSteamID(data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	if !s.deps.Roster.Disconnect(id) {
		s.logger().Debug("Disconnect for unknown player", "id", id)
	}
	return nil, nil
}

// PlayerPosition records a participant's position: [id, "x,y,z"].
func (s *Service) PlayerPosition(_ context.Context, e dispatcher.Event) (any, error) {
	data := util.CleanArgs(e.Args)
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %s expects [id, position]", ErrBadArgs, EventPlayerPosition)
	}
	id, err := util.ParseSteamID(data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	pos, err := geo.PositionFromString(data[1])
	if err != nil {
		return nil, fmt.Errorf("%w: position %q: %v", ErrBadArgs, data[1], err)
	}
	if !s.deps.Roster.UpdatePosition(id, pos) {
		s.logger().Debug("Position for unknown player", "id", id)
	}
	return nil, nil
}

// PlayerDeath feeds a death into the transfer engine:
// [victimID, killerID, killerKind]. killerID may be empty or 0 when the
// death had no killer.
func (s *Service) PlayerDeath(ctx context.Context, e dispatcher.Event) (any, error) {
	ev, err := ParseDeath(e.Args)
	if err != nil {
		return nil, err
	}

	rec, moved, err := s.deps.Engine.OnDeath(ctx, ev)
	if err != nil {
		return nil, err
	}
	if moved {
		s.writeLogFunc(EventPlayerDeath, fmt.Sprintf("%s is now marked for death.", rec.MarkedName), "INFO")
	}
	return rec, nil
}

// ParseDeath decodes :PLAYER:DEATH: arguments.
func ParseDeath(args []string) (model.DeathEvent, error) {
	data := util.CleanArgs(args)
	if len(data) < 1 {
		return model.DeathEvent{}, fmt.Errorf("%w: %s expects [victim, killer, kind]", ErrBadArgs, EventPlayerDeath)
	}
	victim, err := util.ParseSteamID(data[0])
	if err != nil {
		return model.DeathEvent{}, fmt.Errorf("%w: victim: %v", ErrBadArgs, err)
	}

	ev := model.DeathEvent{VictimID: victim}
	if len(data) > 1 && data[1] != "" {
		if ev.KillerID, err = util.ParseSteamID(data[1]); err != nil {
			return model.DeathEvent{}, fmt.Errorf("%w: killer: %v", ErrBadArgs, err)
		}
	}

	kind := KillerPlayer
	if len(data) > 2 && data[2] != "" {
		kind = strings.ToLower(data[2])
	}
	switch kind {
	case KillerPlayer:
	case KillerNPC:
		ev.KillerNPC = true
	case KillerNone:
		ev.KillerID = 0
	default:
		return model.DeathEvent{}, fmt.Errorf("%w: unknown killer kind %q", ErrBadArgs, kind)
	}
	return ev, nil
}

// HostLog forwards a host log line: [function, message, level].
func (s *Service) HostLog(_ context.Context, e dispatcher.Event) (any, error) {
	data := util.CleanArgs(e.Args)
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %s expects [function, message, level]", ErrBadArgs, EventLog)
	}
	level := "INFO"
	if len(data) > 2 {
		level = data[2]
	}
	s.writeLogFunc(data[0], data[1], level)
	return nil, nil
}

// RefreshTick re-jitters the mark's location. An unassigned or offline mark
// is expected between ticks and is not an error.
func (s *Service) RefreshTick(ctx context.Context, _ dispatcher.Event) (any, error) {
	rec, err := s.deps.Engine.RefreshLocation(ctx)
	switch {
	case errors.Is(err, transfer.ErrUnassigned):
		s.logger().Debug("Refresh skipped, nobody is marked")
		return nil, nil
	case errors.Is(err, transfer.ErrMarkDisconnected):
		s.logger().Info("Refresh skipped, marked player offline", "markedID", rec.MarkedID, "markedName", rec.MarkedName)
		return nil, nil
	case err != nil:
		return nil, err
	}
	return rec, nil
}

// RepaintTick repaints the panel without touching the record.
func (s *Service) RepaintTick(ctx context.Context, _ dispatcher.Event) (any, error) {
	return nil, s.deps.Engine.Repaint(ctx)
}
