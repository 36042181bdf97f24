package model

import (
	"errors"
	"fmt"
	"time"
)

// Unassigned is the display name stored alongside the sentinel id 0.
const Unassigned = "Unassigned"

// DefaultGridLocation is the label stored before any jitter computation has run.
const DefaultGridLocation = "A1"

// ErrInconsistentRecord is returned when a record breaks the id/name sentinel pairing.
var ErrInconsistentRecord = errors.New("mark record id and name disagree on the unassigned sentinel")

// MarkRecord is the singleton persisted state: who is marked and where they were last seen.
type MarkRecord struct {
	MarkedID     uint64 `json:"MarkedPlayerSteamID,string"`
	MarkedName   string `json:"MarkedPlayerName"`
	GridLocation string `json:"MarkedPlayerLocation"`
}

// UnassignedRecord returns the record used when nobody holds the mark.
func UnassignedRecord() MarkRecord {
	return MarkRecord{
		MarkedID:     0,
		MarkedName:   Unassigned,
		GridLocation: DefaultGridLocation,
	}
}

// IsAssigned reports whether a participant currently holds the mark.
func (r MarkRecord) IsAssigned() bool {
	return r.MarkedID != 0
}

// Validate checks that MarkedID == 0 if and only if MarkedName == Unassigned.
func (r MarkRecord) Validate() error {
	if (r.MarkedID == 0) != (r.MarkedName == Unassigned) {
		return fmt.Errorf("%w: id=%d name=%q", ErrInconsistentRecord, r.MarkedID, r.MarkedName)
	}
	return nil
}

// Position is a world position in host-native axis order. Y is vertical.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Participant is a connected player as seen by the live roster.
type Participant struct {
	ID          uint64
	Name        string
	Position    Position
	ConnectedAt time.Time

	// Seq orders participants by connection; lower connected earlier.
	Seq uint64
}

// DeathEvent describes a participant death reported by the host.
type DeathEvent struct {
	VictimID uint64
	// KillerID is 0 when the death had no attributable killer.
	KillerID  uint64
	KillerNPC bool
}

// TransferReason explains why the mark changed hands.
type TransferReason string

const (
	ReasonRoll    TransferReason = "roll"
	ReasonName    TransferReason = "name"
	ReasonID      TransferReason = "id"
	ReasonKill    TransferReason = "kill"
	ReasonDefault TransferReason = "default"
)

// Transfer is one entry of the mark history.
type Transfer struct {
	ID           string
	Time         time.Time
	Reason       TransferReason
	PreviousID   uint64
	PreviousName string
	MarkedID     uint64
	MarkedName   string
	GridLocation string
	Details      map[string]any
}

// Status is a point-in-time view of the running extension.
type Status struct {
	Time          time.Time `json:"time"`
	PlayersOnline int       `json:"playersOnline"`
	HostConnected bool      `json:"hostConnected"`
	MarkedID      uint64    `json:"markedId,string"`
	MarkedName    string    `json:"markedName"`
	GridLocation  string    `json:"gridLocation"`
}
