// Package commands implements the operator and chat commands. Every command
// replies with a single line; failures are logged and turned into replies.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/humanalog/markedfordeath/internal/dispatcher"
	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/transfer"
	"github.com/humanalog/markedfordeath/internal/util"
)

const (
	RollMark           = "rollmark"
	WhoMark            = "whomark"
	SetMark            = "setmark"
	SetMarkByID        = "setmarkbyid"
	UpdateMarkLocation = "updatemarklocation"
	Refresh            = "refresh"
	MarkHistory        = "markhistory"
)

// DefaultHistoryLimit is how many transfers markhistory lists without an argument.
const DefaultHistoryLimit = 5

const maxHistoryLimit = 50

// Engine is the part of the transfer engine commands drive.
type Engine interface {
	Current(ctx context.Context) (model.MarkRecord, error)
	RollMark(ctx context.Context) (model.MarkRecord, error)
	SetMarkByName(ctx context.Context, name string) (model.MarkRecord, error)
	SetMarkByID(ctx context.Context, id uint64) (model.MarkRecord, error)
	RefreshLocation(ctx context.Context) (model.MarkRecord, error)
	Repaint(ctx context.Context) error
	History(ctx context.Context, limit int) ([]model.Transfer, error)
}

// Registrar accepts handler registrations.
type Registrar interface {
	Register(command string, h dispatcher.HandlerFunc, opts ...dispatcher.Option)
}

// Manager holds the command handlers.
type Manager struct {
	engine Engine
	logger *slog.Logger
}

// NewManager creates a command Manager.
func NewManager(engine Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{engine: engine, logger: logger}
}

// RegisterHandlers registers every command with the dispatcher.
func (m *Manager) RegisterHandlers(d Registrar) {
	d.Register(RollMark, m.handleRollMark, dispatcher.Logged())
	d.Register(WhoMark, m.handleWhoMark)
	d.Register(SetMark, m.handleSetMark, dispatcher.Logged())
	d.Register(SetMarkByID, m.handleSetMarkByID, dispatcher.Logged())
	d.Register(UpdateMarkLocation, m.handleUpdateMarkLocation, dispatcher.Logged())
	d.Register(Refresh, m.handleRefresh)
	d.Register(MarkHistory, m.handleMarkHistory)
}

// Names lists every command in registration order.
func Names() []string {
	return []string{RollMark, WhoMark, SetMark, SetMarkByID, UpdateMarkLocation, Refresh, MarkHistory}
}

func usage(command, args string) string {
	if args == "" {
		return "Usage: " + command
	}
	return "Usage: " + command + " " + args
}

func marked(name string) string {
	return name + " is now marked for death."
}

func (m *Manager) fail(command string, err error) {
	m.logger.Warn("Command failed", "command", command, "error", err)
}

func (m *Manager) handleRollMark(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(util.CleanArgs(e.Args)) != 0 {
		return usage(RollMark, ""), nil
	}
	r, err := m.engine.RollMark(ctx)
	if err != nil {
		m.fail(RollMark, err)
		if errors.Is(err, transfer.ErrEmptyRoster) {
			return "No players are online to mark.", nil
		}
		return "Could not mark a player.", nil
	}
	return marked(r.MarkedName), nil
}

func (m *Manager) handleWhoMark(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(util.CleanArgs(e.Args)) != 0 {
		return usage(WhoMark, ""), nil
	}
	r, err := m.engine.Current(ctx)
	if err != nil {
		m.fail(WhoMark, err)
		return "Could not read the current mark.", nil
	}
	return r.MarkedName, nil
}

func (m *Manager) handleSetMark(ctx context.Context, e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	if len(args) != 1 || args[0] == "" {
		return usage(SetMark, "<name>"), nil
	}
	name := args[0]

	r, err := m.engine.SetMarkByName(ctx, name)
	if err != nil {
		m.fail(SetMark, err)
		if errors.Is(err, transfer.ErrPlayerNotFound) {
			return "Could not find player with name " + name, nil
		}
		return "Could not mark " + name + ".", nil
	}
	return marked(r.MarkedName), nil
}

func (m *Manager) handleSetMarkByID(ctx context.Context, e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	if len(args) != 1 {
		return usage(SetMarkByID, "<steamID>"), nil
	}
	id, err := util.ParseSteamID(args[0])
	if err != nil {
		return usage(SetMarkByID, "<steamID>"), nil
	}

	r, err := m.engine.SetMarkByID(ctx, id)
	if err != nil {
		m.fail(SetMarkByID, err)
		if errors.Is(err, transfer.ErrPlayerNotFound) {
			return fmt.Sprintf("Could not find player with SteamID %d", id), nil
		}
		return fmt.Sprintf("Could not mark player %d.", id), nil
	}
	return marked(r.MarkedName), nil
}

func (m *Manager) handleUpdateMarkLocation(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(util.CleanArgs(e.Args)) != 0 {
		return usage(UpdateMarkLocation, ""), nil
	}
	r, err := m.engine.RefreshLocation(ctx)
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, transfer.ErrMarkDisconnected):
		m.fail(UpdateMarkLocation, err)
		return "Marked player " + r.MarkedName + " is not connected.", nil
	case errors.Is(err, transfer.ErrUnassigned):
		return "Nobody is marked for death.", nil
	default:
		m.fail(UpdateMarkLocation, err)
		return "Could not update the mark location.", nil
	}
}

func (m *Manager) handleRefresh(ctx context.Context, _ dispatcher.Event) (any, error) {
	if err := m.engine.Repaint(ctx); err != nil {
		m.fail(Refresh, err)
	}
	return "", nil
}

func (m *Manager) handleMarkHistory(ctx context.Context, e dispatcher.Event) (any, error) {
	args := util.CleanArgs(e.Args)
	limit := DefaultHistoryLimit
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return usage(MarkHistory, "[count]"), nil
		}
		limit = min(n, maxHistoryLimit)
	default:
		return usage(MarkHistory, "[count]"), nil
	}

	transfers, err := m.engine.History(ctx, limit)
	if err != nil {
		m.fail(MarkHistory, err)
		return "Transfer history is not available.", nil
	}
	if len(transfers) == 0 {
		return "No transfers recorded.", nil
	}

	lines := make([]string, len(transfers))
	for i, t := range transfers {
		lines[i] = FormatTransfer(t)
	}
	return strings.Join(lines, "\n"), nil
}

// FormatTransfer renders one history line.
func FormatTransfer(t model.Transfer) string {
	return fmt.Sprintf("%s %s: %s -> %s (%s)",
		t.Time.UTC().Format(time.RFC3339), t.Reason, t.PreviousName, t.MarkedName, t.GridLocation)
}
