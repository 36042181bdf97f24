package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"MarkData", &MarkData{}, "marked_for_death_data"},
		{"MarkTransfer", &MarkTransfer{}, "mark_transfers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestMarkRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  MarkRecord
		wantErr bool
	}{
		{"unassigned", UnassignedRecord(), false},
		{"assigned", MarkRecord{MarkedID: 76561198000000001, MarkedName: "Bob", GridLocation: "C:4"}, false},
		{"zero id with name", MarkRecord{MarkedID: 0, MarkedName: "Bob"}, true},
		{"id with sentinel name", MarkRecord{MarkedID: 5, MarkedName: Unassigned}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInconsistentRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnassignedRecord(t *testing.T) {
	r := UnassignedRecord()
	assert.Equal(t, MarkRecord{MarkedID: 0, MarkedName: "Unassigned", GridLocation: "A1"}, r)
	assert.False(t, r.IsAssigned())
}

func TestMarkData_FullUint64Range(t *testing.T) {
	r := MarkRecord{MarkedID: math.MaxUint64, MarkedName: "Max", GridLocation: "Z:9"}

	row := MarkDataFromRecord(r)
	assert.Equal(t, uint(MarkDataSingletonID), row.ID)
	assert.Equal(t, "18446744073709551615", row.MarkedPlayerSteamID)

	back, err := row.ToRecord()
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

func TestMarkData_ToRecordRejectsGarbage(t *testing.T) {
	_, err := MarkData{MarkedPlayerSteamID: "not-a-number"}.ToRecord()
	assert.Error(t, err)
}

func TestMarkTransfer_Conversion(t *testing.T) {
	tr := Transfer{
		ID:           "f3a1",
		Reason:       ReasonKill,
		PreviousID:   1001,
		PreviousName: "alice",
		MarkedID:     1002,
		MarkedName:   "bob",
		GridLocation: "O:14",
		Details:      map[string]any{"victimId": "1001"},
	}

	row := MarkTransferFromTransfer(tr)
	assert.Equal(t, "kill", row.Reason)
	assert.Equal(t, "1001", row.PreviousID)
	assert.Equal(t, "1002", row.MarkedID)

	assert.Equal(t, tr, row.ToTransfer())
}
