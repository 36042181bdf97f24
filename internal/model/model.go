package model

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&MarkData{},
	&MarkTransfer{},
}

// MarkDataSingletonID is the primary key of the only MarkData row.
const MarkDataSingletonID = 1

// MarkData is the SQL row holding the persisted MarkRecord.
// The steam id is kept as text so the full uint64 range survives signed BIGINT columns.
type MarkData struct {
	ID                   uint      `json:"id" gorm:"primarykey;autoIncrement:false"`
	UpdatedAt            time.Time `json:"updatedAt"`
	MarkedPlayerSteamID  string    `json:"MarkedPlayerSteamID" gorm:"size:20;not null;default:'0'"`
	MarkedPlayerName     string    `json:"MarkedPlayerName" gorm:"size:255;not null"`
	MarkedPlayerLocation string    `json:"MarkedPlayerLocation" gorm:"size:32;not null"`
}

func (*MarkData) TableName() string {
	return "marked_for_death_data"
}

// MarkDataFromRecord converts a MarkRecord to its singleton row.
func MarkDataFromRecord(r MarkRecord) MarkData {
	return MarkData{
		ID:                   MarkDataSingletonID,
		MarkedPlayerSteamID:  strconv.FormatUint(r.MarkedID, 10),
		MarkedPlayerName:     r.MarkedName,
		MarkedPlayerLocation: r.GridLocation,
	}
}

// ToRecord converts the row back to a MarkRecord.
func (d MarkData) ToRecord() (MarkRecord, error) {
	id, err := strconv.ParseUint(d.MarkedPlayerSteamID, 10, 64)
	if err != nil {
		return MarkRecord{}, err
	}
	return MarkRecord{
		MarkedID:     id,
		MarkedName:   d.MarkedPlayerName,
		GridLocation: d.MarkedPlayerLocation,
	}, nil
}

// MarkTransfer is one row of the mark history table.
type MarkTransfer struct {
	ID           string            `json:"id" gorm:"primarykey;size:36"`
	Time         time.Time         `json:"time" gorm:"type:timestamptz;index"`
	Reason       string            `json:"reason" gorm:"size:16;index"`
	PreviousID   string            `json:"previousId" gorm:"size:20"`
	PreviousName string            `json:"previousName" gorm:"size:255"`
	MarkedID     string            `json:"markedId" gorm:"size:20;index"`
	MarkedName   string            `json:"markedName" gorm:"size:255"`
	GridLocation string            `json:"gridLocation" gorm:"size:32"`
	Details      datatypes.JSONMap `json:"details" gorm:"type:jsonb"`
}

func (*MarkTransfer) TableName() string {
	return "mark_transfers"
}

// MarkTransferFromTransfer converts a Transfer to its history row.
func MarkTransferFromTransfer(t Transfer) MarkTransfer {
	return MarkTransfer{
		ID:           t.ID,
		Time:         t.Time,
		Reason:       string(t.Reason),
		PreviousID:   strconv.FormatUint(t.PreviousID, 10),
		PreviousName: t.PreviousName,
		MarkedID:     strconv.FormatUint(t.MarkedID, 10),
		MarkedName:   t.MarkedName,
		GridLocation: t.GridLocation,
		Details:      datatypes.JSONMap(t.Details),
	}
}

// ToTransfer converts the history row back to a Transfer.
func (m MarkTransfer) ToTransfer() Transfer {
	prev, _ := strconv.ParseUint(m.PreviousID, 10, 64)
	marked, _ := strconv.ParseUint(m.MarkedID, 10, 64)
	return Transfer{
		ID:           m.ID,
		Time:         m.Time,
		Reason:       TransferReason(m.Reason),
		PreviousID:   prev,
		PreviousName: m.PreviousName,
		MarkedID:     marked,
		MarkedName:   m.MarkedName,
		GridLocation: m.GridLocation,
		Details:      map[string]any(m.Details),
	}
}
