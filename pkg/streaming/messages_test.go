package streaming

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	data, err := Marshal(TypeCallback, CallbackPayload{ID: "c1", Function: "RefreshPanel", Args: []any{"MarkedForDeath", "CurrentMarkPanel"}})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, TypeCallback, env.Type)

	var cb CallbackPayload
	require.NoError(t, json.Unmarshal(env.Payload, &cb))
	assert.Equal(t, "c1", cb.ID)
	assert.Equal(t, "RefreshPanel", cb.Function)
	assert.Equal(t, []any{"MarkedForDeath", "CurrentMarkPanel"}, cb.Args)
}

func TestMarshal_Unencodable(t *testing.T) {
	_, err := Marshal(TypeReply, ReplyPayload{ID: "x", Result: []any{make(chan int)}})
	assert.Error(t, err)
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name   string
		result any
		err    error
		want   []any
	}{
		{"error", nil, errors.New("boom"), []any{"error", "whomark", "boom"}},
		{"nil result", nil, nil, []any{"ok", "whomark"}},
		{"string result", "bob", nil, []any{"ok", "whomark", "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatResult("whomark", tt.result, tt.err))
		})
	}
}
