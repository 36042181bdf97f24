package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanalog/markedfordeath/internal/model"
)

type recordedCall struct {
	function string
	args     []any
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  int
	block bool
}

func (f *fakeCaller) Call(ctx context.Context, function string, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{function, args})
	fail := f.fail > 0
	if fail {
		f.fail--
	}
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("host gone")
	}
	return nil
}

func (f *fakeCaller) functions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.function
	}
	return out
}

func TestPanelText(t *testing.T) {
	r := model.MarkRecord{MarkedID: 7, MarkedName: "bob", GridLocation: "O:14"}
	assert.Equal(t, "'bob' is marked for death. Last seen near O:14.", PanelText(r))
	assert.Equal(t, "'Unassigned' is marked for death. Last seen near A1.", PanelText(model.UnassignedRecord()))
}

func TestPanelLayout(t *testing.T) {
	s, err := PanelLayout()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	assert.Equal(t, "TopRightDock", m["Dock"])
	assert.Equal(t, float64(7), m["Order"])

	text, ok := m["Text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "No Content", text["Content"])
	assert.Equal(t, float64(14), text["FontSize"])
}

func TestPublish(t *testing.T) {
	c := &fakeCaller{}
	sink := NewHostSink(c, time.Second, 0, nil)

	err := Publish(context.Background(), sink, model.MarkRecord{MarkedID: 1, MarkedName: "alice", GridLocation: "P:15"})
	require.NoError(t, err)

	require.Len(t, c.calls, 2)
	assert.Equal(t, FuncSetPanelAttribute, c.calls[0].function)
	assert.Equal(t, []any{Owner, TextElement, ContentAttribute, "'alice' is marked for death. Last seen near P:15."}, c.calls[0].args)
	assert.Equal(t, FuncRefreshPanel, c.calls[1].function)
	assert.Equal(t, []any{Owner, Panel}, c.calls[1].args)
}

func TestRegister(t *testing.T) {
	c := &fakeCaller{}
	sink := NewHostSink(c, time.Second, 0, nil)

	require.NoError(t, Register(context.Background(), sink))
	assert.Equal(t, []string{FuncSendPanelInfo, FuncPanelRegister, FuncRefreshPanel}, c.functions())
	assert.Equal(t, []any{Owner, []string{Panel}}, c.calls[0].args)
}

func TestRegister_WithoutLayoutSupport(t *testing.T) {
	assert.NoError(t, Register(context.Background(), Discard{}))
}

func TestHostSink_RetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		fail      int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{"success first try", 0, 1, false, 1},
		{"success on retry", 1, 1, false, 2},
		{"fails twice", 2, 1, true, 2},
		{"no retries", 1, 0, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCaller{fail: tt.fail}
			sink := NewHostSink(c, time.Second, tt.retries, nil)

			err := sink.Repaint(context.Background(), Owner, Panel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnavailable)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, c.calls, tt.wantCalls)
		})
	}
}

func TestHostSink_Timeout(t *testing.T) {
	c := &fakeCaller{block: true}
	sink := NewHostSink(c, 20*time.Millisecond, 1, nil)

	start := time.Now()
	err := sink.SetAttribute(context.Background(), Owner, TextElement, ContentAttribute, "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, c.calls, 2)
}

func TestHostSink_CancelledParentSkipsRetry(t *testing.T) {
	c := &fakeCaller{block: true}
	sink := NewHostSink(c, time.Second, 3, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sink.Repaint(ctx, Owner, Panel)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, c.calls, 1)
}
