// Package state holds the canonical in-process view of pump and gateway
// hardware state. All mutation goes through the Store, which classifies
// each update as significant or redundant before deciding whether it is
// worth a history entry and a database row.
package state

import (
	"errors"
	"time"
)

var (
	// ErrInvalidTarget is returned when a pump identifier is not known.
	ErrInvalidTarget = errors.New("unknown pump id")

	// ErrInvalidValue is returned when an enum value is out of range and
	// the field does not clamp.
	ErrInvalidValue = errors.New("value out of range")
)

// PumpID identifies one of the fixed set of pumps driven by the gateway.
type PumpID int

const (
	Pump1 PumpID = 1
	Pump2 PumpID = 2

	// PumpCount is the number of pumps the gateway controls.
	PumpCount = 2
)

// Valid reports whether the id is a known pump.
func (p PumpID) Valid() bool {
	return p >= Pump1 && p <= PumpID(PumpCount)
}

// FeedbackStatus is the hardware-reported state of a pump.
type FeedbackStatus int

const (
	FeedbackUnknown FeedbackStatus = iota
	FeedbackRunning
	FeedbackStopped
	FeedbackError
)

// ClampFeedback normalizes an arbitrary integer to a valid FeedbackStatus.
// Out-of-range values collapse to FeedbackUnknown rather than failing;
// the hardware is the authority on its own status codes and a newer
// firmware must not be able to wedge the gateway.
func ClampFeedback(v int) FeedbackStatus {
	if v < int(FeedbackUnknown) || v > int(FeedbackError) {
		return FeedbackUnknown
	}
	return FeedbackStatus(v)
}

func (f FeedbackStatus) String() string {
	switch f {
	case FeedbackRunning:
		return "Running"
	case FeedbackStopped:
		return "Stopped"
	case FeedbackError:
		return "Error"
	default:
		return "Unknown"
	}
}

// BusyState is the mutually exclusive system-level activity flag.
type BusyState int

const (
	BusyIdle BusyState = iota
	BusyStartingPump1
	BusyStartingPump2
)

// Valid reports whether the value is one of the enumerated busy states.
func (b BusyState) Valid() bool {
	return b >= BusyIdle && b <= BusyStartingPump2
}

func (b BusyState) String() string {
	switch b {
	case BusyStartingPump1:
		return "Starting_P1"
	case BusyStartingPump2:
		return "Starting_P2"
	default:
		return "Idle"
	}
}

// PumpState is the single mutable record of commanded and reported pump
// state. It is always copied by value out of the Store; readers never see
// a partially updated record.
type PumpState struct {
	// Commands holds the commanded on/off state, indexed by pump id - 1.
	Commands [PumpCount]bool

	// Feedback holds the hardware-reported status, indexed by pump id - 1.
	Feedback [PumpCount]FeedbackStatus

	Busy  BusyState
	Alarm bool

	// LastUpdated is stamped in the same critical section as every field
	// mutation above.
	LastUpdated time.Time
}

// Command returns the commanded state for a valid pump id.
func (s PumpState) Command(id PumpID) bool {
	return s.Commands[id-1]
}

// Status returns the reported status for a valid pump id.
func (s PumpState) Status(id PumpID) FeedbackStatus {
	return s.Feedback[id-1]
}

// Snapshot is an immutable copy of PumpState at the moment a significant
// change was committed. Its JSON form is the wire contract for both the
// periodic status publication and the history API.
type Snapshot struct {
	Pump1Cmd    int   `json:"pump1"`
	Pump1Status int   `json:"pump1_status"`
	Pump2Cmd    int   `json:"pump2"`
	Pump2Status int   `json:"pump2_status"`
	Busy        int   `json:"busy"`
	Alarm       int   `json:"alarm"`
	Timestamp   int64 `json:"timestamp"`
}

// Snapshot captures the record as a Snapshot tagged with the record's
// last-updated time in unix seconds.
func (s PumpState) Snapshot() Snapshot {
	return Snapshot{
		Pump1Cmd:    boolToInt(s.Commands[0]),
		Pump1Status: int(s.Feedback[0]),
		Pump2Cmd:    boolToInt(s.Commands[1]),
		Pump2Status: int(s.Feedback[1]),
		Busy:        int(s.Busy),
		Alarm:       boolToInt(s.Alarm),
		Timestamp:   s.LastUpdated.Unix(),
	}
}

// CommitResult reports whether an update changed the committed baseline.
type CommitResult struct {
	// Significant is true when the update differed from the last committed
	// value for its field group and was therefore recorded in history.
	Significant bool
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
