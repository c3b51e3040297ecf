package state

import (
	"context"
	"sync"
	"time"

	"github.com/pumpgate-io/pumpgate/internal/pkg/metrics"
	"github.com/pumpgate-io/pumpgate/pkg/log"
)

// Recorder receives durable writes for committed changes. Implementations
// must tolerate being called from multiple goroutines. A nil Recorder
// disables persistence entirely.
type Recorder interface {
	RecordCommand(ctx context.Context, pumpID int, on bool, timestamp int64, source string) error
	RecordFeedback(ctx context.Context, pumpID int, status int, timestamp int64) error
	RecordHeartbeat(ctx context.Context, deviceID, firmware string, status int, timestamp int64) error
	RecordSnapshot(ctx context.Context, snap Snapshot) error
}

// Store is the synchronization point between every ingest path and every
// reader. One mutex covers the pump record, the gateway liveness record,
// the change baseline and the in-memory history ring; persistence happens
// after the lock is released so a slow disk can never stall ingest.
type Store struct {
	mu       sync.Mutex
	pump     PumpState
	gateway  gatewayLiveness
	baseline *baseline
	ring     *historyRing

	recorder Recorder
	logger   log.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewStore builds a Store with an empty record and history. recorder may
// be nil to run without durable storage.
func NewStore(recorder Recorder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{
		baseline: newBaseline(),
		ring:     newHistoryRing(HistoryCapacity),
		recorder: recorder,
		logger:   logger.WithName("state"),
		now:      time.Now,
	}
}

// SetPumpCommand records a commanded on/off state for one pump. The live
// record always reflects the latest command; history and storage only see
// it when it differs from the committed baseline.
func (s *Store) SetPumpCommand(ctx context.Context, id PumpID, on bool, source string) (CommitResult, error) {
	if !id.Valid() {
		return CommitResult{}, ErrInvalidTarget
	}
	group := commandGroup(id)

	s.mu.Lock()
	now := s.now()
	s.pump.Commands[id-1] = on
	s.pump.LastUpdated = now
	significant := s.baseline.significant(group, on)
	var snap Snapshot
	if significant {
		s.baseline.commit(group, on)
		snap = s.pump.Snapshot()
		s.ring.append(snap)
	}
	s.mu.Unlock()

	metrics.CommitsTotal.WithLabelValues(group, outcome(significant)).Inc()
	if significant {
		s.persist(ctx, "pump_commands", func(ctx context.Context) error {
			return s.recorder.RecordCommand(ctx, int(id), on, snap.Timestamp, source)
		})
		s.persistSnapshot(ctx, snap)
	}
	return CommitResult{Significant: significant}, nil
}

// SetPumpFeedback records a hardware-reported pump status. Out-of-range
// status codes clamp to FeedbackUnknown instead of being rejected.
func (s *Store) SetPumpFeedback(ctx context.Context, id PumpID, status int) (CommitResult, error) {
	if !id.Valid() {
		return CommitResult{}, ErrInvalidTarget
	}
	fb := ClampFeedback(status)
	group := feedbackGroup(id)

	s.mu.Lock()
	now := s.now()
	s.pump.Feedback[id-1] = fb
	s.pump.LastUpdated = now
	significant := s.baseline.significant(group, fb)
	var snap Snapshot
	if significant {
		s.baseline.commit(group, fb)
		snap = s.pump.Snapshot()
		s.ring.append(snap)
	}
	s.mu.Unlock()

	metrics.CommitsTotal.WithLabelValues(group, outcome(significant)).Inc()
	if significant {
		s.persist(ctx, "pump_feedback", func(ctx context.Context) error {
			return s.recorder.RecordFeedback(ctx, int(id), int(fb), snap.Timestamp)
		})
		s.persistSnapshot(ctx, snap)
	}
	return CommitResult{Significant: significant}, nil
}

// SetSystemFlags records the busy indicator and alarm flag together. The
// two are evaluated for significance independently; a commit of either
// produces a single snapshot. An out-of-range busy value makes the whole
// call a no-op.
func (s *Store) SetSystemFlags(ctx context.Context, busy BusyState, alarm bool) (CommitResult, error) {
	if !busy.Valid() {
		s.logger.Warn("ignoring out-of-range busy value", "busy", int(busy))
		return CommitResult{}, ErrInvalidValue
	}

	s.mu.Lock()
	now := s.now()
	s.pump.Busy = busy
	s.pump.Alarm = alarm
	s.pump.LastUpdated = now
	busySig := s.baseline.significant(groupBusy, busy)
	alarmSig := s.baseline.significant(groupAlarm, alarm)
	significant := busySig || alarmSig
	var snap Snapshot
	if significant {
		if busySig {
			s.baseline.commit(groupBusy, busy)
		}
		if alarmSig {
			s.baseline.commit(groupAlarm, alarm)
		}
		snap = s.pump.Snapshot()
		s.ring.append(snap)
	}
	s.mu.Unlock()

	metrics.CommitsTotal.WithLabelValues(groupBusy, outcome(busySig)).Inc()
	metrics.CommitsTotal.WithLabelValues(groupAlarm, outcome(alarmSig)).Inc()
	if significant {
		s.persistSnapshot(ctx, snap)
	}
	return CommitResult{Significant: significant}, nil
}

// RecordHeartbeat ingests a gateway heartbeat. lastSeenAt always moves
// forward; the heartbeat is significant when it is the first ever, when
// the reported status or firmware changed, or when the gateway had been
// offline long enough to time out.
func (s *Store) RecordHeartbeat(ctx context.Context, deviceID, firmware string, status int) CommitResult {
	deviceID = truncate(deviceID, maxDeviceIDLen)
	firmware = truncate(firmware, maxFirmwareLen)

	s.mu.Lock()
	now := s.now()
	first := s.gateway.lastSeenAt.IsZero()
	wasOnline := s.gateway.onlineAt(now)
	significant := first ||
		!wasOnline ||
		status != s.gateway.reportedStatus ||
		(firmware != "" && firmware != s.gateway.firmware)

	s.gateway.reportedStatus = status
	s.gateway.lastSeenAt = now
	if deviceID != "" {
		s.gateway.deviceID = deviceID
	}
	if firmware != "" {
		s.gateway.firmware = firmware
	}
	rec := s.gateway
	s.mu.Unlock()

	metrics.CommitsTotal.WithLabelValues(groupGateway, outcome(significant)).Inc()
	if significant {
		s.persist(ctx, "gateway_heartbeats", func(ctx context.Context) error {
			return s.recorder.RecordHeartbeat(ctx, rec.deviceID, rec.firmware, rec.reportedStatus, now.Unix())
		})
	}
	return CommitResult{Significant: significant}
}

// ReadCurrent returns a copy of the live pump record.
func (s *Store) ReadCurrent() PumpState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pump
}

// CurrentSnapshot captures the live record as a Snapshot stamped with the
// current time, whether or not anything changed. Used by the periodic
// status publisher.
func (s *Store) CurrentSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.pump
	cur.LastUpdated = s.now()
	return cur.Snapshot()
}

// GatewayStatus derives the liveness view at the current instant.
func (s *Store) GatewayStatus() GatewayStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := GatewayStatus{
		Status:          s.gateway.reportedStatus,
		IsOnline:        s.gateway.onlineAt(now),
		DeviceID:        s.gateway.deviceID,
		FirmwareVersion: s.gateway.firmware,
	}
	if !s.gateway.lastSeenAt.IsZero() {
		out.LastSeen = s.gateway.lastSeenAt.Unix()
		out.SecondsSinceLastSeen = int64(now.Sub(s.gateway.lastSeenAt).Seconds())
	}
	return out
}

// Recent returns up to k committed snapshots, newest first.
func (s *Store) Recent(k int) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.recent(k)
}

// HistoryLen returns the number of snapshots held in memory.
func (s *Store) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.len()
}

// persist runs one durable write outside the lock. Failures are counted
// and logged but never surfaced to the ingest path.
func (s *Store) persist(ctx context.Context, table string, write func(context.Context) error) {
	if s.recorder == nil {
		return
	}
	if err := write(ctx); err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues(table).Inc()
		s.logger.Error(err, "persistence write failed", "table", table)
	}
}

func (s *Store) persistSnapshot(ctx context.Context, snap Snapshot) {
	s.persist(ctx, "pump_snapshots", func(ctx context.Context) error {
		return s.recorder.RecordSnapshot(ctx, snap)
	})
}

func outcome(significant bool) string {
	if significant {
		return "significant"
	}
	return "redundant"
}
