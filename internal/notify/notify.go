// Package notify pushes the current mark to the host's display panel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/humanalog/markedfordeath/internal/model"
)

const (
	Owner            = "MarkedForDeath"
	Panel            = "CurrentMarkPanel"
	TextElement      = "CurrentMarkPanelText"
	ContentAttribute = "Content"
)

// Host panel functions invoked through the host link.
const (
	FuncSendPanelInfo     = "SendPanelInfo"
	FuncPanelRegister     = "PanelRegister"
	FuncSetPanelAttribute = "SetPanelAttribute"
	FuncRefreshPanel      = "RefreshPanel"
)

// ErrUnavailable is returned when the panel host cannot be reached.
var ErrUnavailable = errors.New("notification sink unavailable")

// Sink is a display surface for the mark.
type Sink interface {
	RegisterPanel(ctx context.Context, owner string, panels []string) error
	SetAttribute(ctx context.Context, owner, element, key, value string) error
	Repaint(ctx context.Context, owner, panel string) error
}

// LayoutDefiner is implemented by sinks that accept a panel layout.
type LayoutDefiner interface {
	DefineLayout(ctx context.Context, owner, panel, layoutJSON string) error
}

// PanelText is the line shown on the panel for r.
func PanelText(r model.MarkRecord) string {
	return fmt.Sprintf("'%s' is marked for death. Last seen near %s.", r.MarkedName, r.GridLocation)
}

// Register announces the panel to the host, defines its layout when the sink
// supports it and paints it once.
func Register(ctx context.Context, sink Sink) error {
	if err := sink.RegisterPanel(ctx, Owner, []string{Panel}); err != nil {
		return err
	}
	if d, ok := sink.(LayoutDefiner); ok {
		layout, err := PanelLayout()
		if err != nil {
			return err
		}
		if err := d.DefineLayout(ctx, Owner, Panel, layout); err != nil {
			return err
		}
	}
	return sink.Repaint(ctx, Owner, Panel)
}

// Publish writes the panel text for r and repaints the panel.
func Publish(ctx context.Context, sink Sink, r model.MarkRecord) error {
	if err := sink.SetAttribute(ctx, Owner, TextElement, ContentAttribute, PanelText(r)); err != nil {
		return err
	}
	return sink.Repaint(ctx, Owner, Panel)
}

// Caller performs a named host function call and waits for its acknowledgement.
type Caller interface {
	Call(ctx context.Context, function string, args ...any) error
}

// HostSink reaches the panel host through a Caller. Every call is bounded by
// a timeout and retried at most Retries times.
type HostSink struct {
	caller  Caller
	timeout time.Duration
	retries int
	logger  *slog.Logger
}

// NewHostSink creates a HostSink.
func NewHostSink(caller Caller, timeout time.Duration, retries int, logger *slog.Logger) *HostSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HostSink{caller: caller, timeout: timeout, retries: retries, logger: logger}
}

func (s *HostSink) RegisterPanel(ctx context.Context, owner string, panels []string) error {
	return s.call(ctx, FuncSendPanelInfo, owner, panels)
}

func (s *HostSink) DefineLayout(ctx context.Context, owner, panel, layoutJSON string) error {
	return s.call(ctx, FuncPanelRegister, owner, panel, layoutJSON)
}

func (s *HostSink) SetAttribute(ctx context.Context, owner, element, key, value string) error {
	return s.call(ctx, FuncSetPanelAttribute, owner, element, key, value)
}

func (s *HostSink) Repaint(ctx context.Context, owner, panel string) error {
	return s.call(ctx, FuncRefreshPanel, owner, panel)
}

func (s *HostSink) call(ctx context.Context, function string, args ...any) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("Retrying panel call", "function", function, "attempt", attempt, "error", err)
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err = s.caller.Call(callCtx, function, args...)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, function, err)
}

// Discard is a Sink that accepts and drops everything.
type Discard struct{}

func (Discard) RegisterPanel(context.Context, string, []string) error              { return nil }
func (Discard) SetAttribute(context.Context, string, string, string, string) error { return nil }
func (Discard) Repaint(context.Context, string, string) error                      { return nil }
