package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsDynamicAttrs(t *testing.T) {
	var buf bytes.Buffer
	current := uint64(1)
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.Uint64("markedID", current)}
	})
	logger := slog.New(h)

	logger.Info("first")
	current = 2
	logger.Info("second")

	out := buf.String()
	assert.Contains(t, out, "msg=first markedID=1")
	assert.Contains(t, out, "msg=second markedID=2")
}

func TestContextHandler_WithAttrsAndGroupKeepProvider(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr {
		return []slog.Attr{slog.String("mark", "bob")}
	})

	slog.New(h.WithAttrs([]slog.Attr{slog.String("component", "engine")})).Info("attrs")
	slog.New(h.WithGroup("g")).Info("grouped", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "mark=bob")
	assert.Contains(t, out, "g.k=v")
	assert.Equal(t, h, h.WithGroup(""))
}

func TestContextHandler_NilProvider(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), nil)).Info("plain")
	assert.Contains(t, buf.String(), "plain")
}

func TestContextHandler_EmptyProviderLeavesRecord(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), func() []slog.Attr { return nil })).Info("bare")
	assert.NotContains(t, buf.String(), "markedID")
	assert.Contains(t, buf.String(), "msg=bare")
}

func newText(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanoutHandler(t *testing.T) {
	var info, debug bytes.Buffer
	f := NewFanoutHandler(nil, newText(&info, slog.LevelInfo), nil, newText(&debug, slog.LevelDebug))
	require.Len(t, f.handlers, 2)

	logger := slog.New(f)
	logger.Debug("quiet")
	logger.Info("loud")

	assert.NotContains(t, info.String(), "quiet")
	assert.Contains(t, info.String(), "loud")
	assert.Contains(t, debug.String(), "quiet")
	assert.Contains(t, debug.String(), "loud")
}

func TestFanoutHandler_Enabled(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		handlers []slog.Handler
		level    slog.Level
		want     bool
	}{
		{"empty", nil, slog.LevelError, false},
		{"below every handler", []slog.Handler{newText(&bytes.Buffer{}, slog.LevelInfo)}, slog.LevelDebug, false},
		{"any handler enables", []slog.Handler{
			newText(&bytes.Buffer{}, slog.LevelInfo),
			newText(&bytes.Buffer{}, slog.LevelDebug),
		}, slog.LevelDebug, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewFanoutHandler(tt.handlers...).Enabled(ctx, tt.level))
		})
	}
}

func TestFanoutHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanoutHandler(newText(&buf, slog.LevelInfo))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "engine")})).Info("a")
	slog.New(f.WithGroup("panel")).Info("b", "owner", "MarkedForDeath")

	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "panel.owner=MarkedForDeath")
	assert.Same(t, f, f.WithGroup(""))
}

type failingHandler struct {
	slog.Handler
}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("graylog unreachable")
}

func TestFanoutHandler_ErrorDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	f := NewFanoutHandler(failingHandler{}, newText(&buf, slog.LevelInfo))

	rec := slog.NewRecord(time.Time{}, slog.LevelInfo, "still delivered", 0)
	err := f.Handle(context.Background(), rec)

	assert.EqualError(t, err, "graylog unreachable")
	assert.Contains(t, buf.String(), "still delivered")
}
