package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeRecorder struct {
	mu         sync.Mutex
	commands   int
	feedback   int
	heartbeats int
	snapshots  int
	fail       bool
}

func (f *fakeRecorder) RecordCommand(_ context.Context, _ int, _ bool, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands++
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeRecorder) RecordFeedback(_ context.Context, _, _ int, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback++
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeRecorder) RecordHeartbeat(_ context.Context, _, _ string, _ int, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeRecorder) RecordSnapshot(_ context.Context, _ Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func (f *fakeRecorder) counts() (commands, feedback, heartbeats, snapshots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands, f.feedback, f.heartbeats, f.snapshots
}

// testStore returns a store with a controllable clock starting at a fixed
// instant. advance moves the clock forward.
func testStore(rec Recorder) (s *Store, advance func(time.Duration)) {
	s = NewStore(rec, nil)
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance = func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return s, advance
}

func TestSetPumpCommandFirstObservationSignificant(t *testing.T) {
	s, _ := testStore(nil)
	res, err := s.SetPumpCommand(context.Background(), Pump1, false, "http")
	if err != nil {
		t.Fatalf("SetPumpCommand: %v", err)
	}
	if !res.Significant {
		t.Error("first observation should be significant even for the zero value")
	}
	if s.HistoryLen() != 1 {
		t.Errorf("history length = %d, want 1", s.HistoryLen())
	}
}

func TestSetPumpCommandRedundantRefreshesRecord(t *testing.T) {
	s, advance := testStore(nil)
	ctx := context.Background()

	if _, err := s.SetPumpCommand(ctx, Pump1, true, "mqtt"); err != nil {
		t.Fatalf("SetPumpCommand: %v", err)
	}
	first := s.ReadCurrent().LastUpdated
	advance(3 * time.Second)

	res, err := s.SetPumpCommand(ctx, Pump1, true, "mqtt")
	if err != nil {
		t.Fatalf("SetPumpCommand: %v", err)
	}
	if res.Significant {
		t.Error("repeated identical command should be redundant")
	}
	if s.HistoryLen() != 1 {
		t.Errorf("history length = %d, want 1", s.HistoryLen())
	}
	cur := s.ReadCurrent()
	if !cur.Command(Pump1) {
		t.Error("live record lost commanded state")
	}
	if !cur.LastUpdated.After(first) {
		t.Error("redundant update should still refresh LastUpdated")
	}
}

func TestSetPumpCommandInvalidTarget(t *testing.T) {
	s, _ := testStore(nil)
	if _, err := s.SetPumpCommand(context.Background(), PumpID(3), true, "http"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v, want ErrInvalidTarget", err)
	}
	if s.HistoryLen() != 0 {
		t.Error("invalid target must not touch history")
	}
}

func TestSetPumpFeedbackClampsOutOfRange(t *testing.T) {
	s, _ := testStore(nil)
	ctx := context.Background()

	res, err := s.SetPumpFeedback(ctx, Pump2, 99)
	if err != nil {
		t.Fatalf("SetPumpFeedback: %v", err)
	}
	if !res.Significant {
		t.Error("first feedback should be significant")
	}
	if got := s.ReadCurrent().Status(Pump2); got != FeedbackUnknown {
		t.Errorf("status = %v, want Unknown", got)
	}

	// A second out-of-range value clamps to the same Unknown and is
	// therefore redundant.
	res, err = s.SetPumpFeedback(ctx, Pump2, -7)
	if err != nil {
		t.Fatalf("SetPumpFeedback: %v", err)
	}
	if res.Significant {
		t.Error("repeated clamped feedback should be redundant")
	}
}

func TestSetSystemFlagsInvalidBusyIsNoOp(t *testing.T) {
	s, _ := testStore(nil)
	ctx := context.Background()

	if _, err := s.SetSystemFlags(ctx, BusyStartingPump1, false); err != nil {
		t.Fatalf("SetSystemFlags: %v", err)
	}

	res, err := s.SetSystemFlags(ctx, BusyState(7), true)
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if res.Significant {
		t.Error("invalid call must not be significant")
	}
	cur := s.ReadCurrent()
	if cur.Busy != BusyStartingPump1 {
		t.Errorf("busy = %v, invalid call must not mutate the record", cur.Busy)
	}
	if cur.Alarm {
		t.Error("alarm mutated by an invalid call")
	}
}

func TestSetSystemFlagsIndependentSignificance(t *testing.T) {
	s, _ := testStore(nil)
	ctx := context.Background()

	if _, err := s.SetSystemFlags(ctx, BusyIdle, false); err != nil {
		t.Fatalf("SetSystemFlags: %v", err)
	}
	before := s.HistoryLen()

	// Alarm flips, busy does not: still one snapshot.
	res, err := s.SetSystemFlags(ctx, BusyIdle, true)
	if err != nil {
		t.Fatalf("SetSystemFlags: %v", err)
	}
	if !res.Significant {
		t.Error("alarm change should be significant on its own")
	}
	if got := s.HistoryLen(); got != before+1 {
		t.Errorf("history length = %d, want %d", got, before+1)
	}

	// Neither changes: redundant.
	res, err = s.SetSystemFlags(ctx, BusyIdle, true)
	if err != nil {
		t.Fatalf("SetSystemFlags: %v", err)
	}
	if res.Significant {
		t.Error("unchanged flags should be redundant")
	}
}

func TestHeartbeatSignificance(t *testing.T) {
	rec := &fakeRecorder{}
	s, advance := testStore(rec)
	ctx := context.Background()

	if res := s.RecordHeartbeat(ctx, "gw-01", "1.0.0", 1); !res.Significant {
		t.Error("first heartbeat should be significant")
	}

	advance(5 * time.Second)
	if res := s.RecordHeartbeat(ctx, "gw-01", "1.0.0", 1); res.Significant {
		t.Error("steady heartbeat within the online window should be redundant")
	}

	// Offline gap: the next heartbeat is an online transition.
	advance(31 * time.Second)
	if res := s.RecordHeartbeat(ctx, "gw-01", "1.0.0", 1); !res.Significant {
		t.Error("heartbeat after an offline gap should be significant")
	}

	advance(time.Second)
	if res := s.RecordHeartbeat(ctx, "gw-01", "1.0.1", 1); !res.Significant {
		t.Error("firmware change should be significant")
	}
	advance(time.Second)
	if res := s.RecordHeartbeat(ctx, "gw-01", "1.0.1", 0); !res.Significant {
		t.Error("status change should be significant")
	}

	if _, _, hb, _ := rec.counts(); hb != 4 {
		t.Errorf("recorded heartbeats = %d, want 4", hb)
	}

	st := s.GatewayStatus()
	if !st.IsOnline {
		t.Error("gateway should be online right after a heartbeat")
	}
	if st.DeviceID != "gw-01" || st.FirmwareVersion != "1.0.1" || st.Status != 0 {
		t.Errorf("unexpected status view: %+v", st)
	}
}

func TestHeartbeatTruncatesIdentity(t *testing.T) {
	s, _ := testStore(nil)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	s.RecordHeartbeat(context.Background(), string(long), string(long), 1)
	st := s.GatewayStatus()
	if len(st.DeviceID) != 64 {
		t.Errorf("device id length = %d, want 64", len(st.DeviceID))
	}
	if len(st.FirmwareVersion) != 32 {
		t.Errorf("firmware length = %d, want 32", len(st.FirmwareVersion))
	}
}

func TestGatewayStatusBeforeAnyHeartbeat(t *testing.T) {
	s, _ := testStore(nil)
	st := s.GatewayStatus()
	if st.IsOnline {
		t.Error("gateway with no heartbeats must be offline")
	}
	if st.LastSeen != 0 || st.SecondsSinceLastSeen != 0 {
		t.Errorf("unexpected last-seen fields: %+v", st)
	}
}

func TestGatewayGoesOfflineAfterTimeout(t *testing.T) {
	s, advance := testStore(nil)
	s.RecordHeartbeat(context.Background(), "gw-01", "", 1)
	advance(29 * time.Second)
	if !s.GatewayStatus().IsOnline {
		t.Error("gateway should still be online at 29s")
	}
	advance(2 * time.Second)
	st := s.GatewayStatus()
	if st.IsOnline {
		t.Error("gateway should be offline at 31s")
	}
	if st.SecondsSinceLastSeen != 31 {
		t.Errorf("SecondsSinceLastSeen = %d, want 31", st.SecondsSinceLastSeen)
	}
}

// Exercises the commit pipeline end to end: only changes relative to the
// committed baseline produce history entries.
func TestCommitSequenceProducesExpectedHistory(t *testing.T) {
	rec := &fakeRecorder{}
	s, _ := testStore(rec)
	ctx := context.Background()

	steps := []struct {
		run  func() (CommitResult, error)
		want bool
	}{
		{func() (CommitResult, error) { return s.SetPumpCommand(ctx, Pump1, true, "http") }, true},
		{func() (CommitResult, error) { return s.SetPumpCommand(ctx, Pump1, true, "http") }, false},
		{func() (CommitResult, error) { return s.SetPumpFeedback(ctx, Pump1, int(FeedbackRunning)) }, true},
		{func() (CommitResult, error) { return s.SetPumpFeedback(ctx, Pump1, int(FeedbackRunning)) }, false},
		{func() (CommitResult, error) { return s.SetSystemFlags(ctx, BusyIdle, false) }, true},
		{func() (CommitResult, error) { return s.SetPumpCommand(ctx, Pump1, false, "mqtt") }, true},
		{func() (CommitResult, error) { return s.SetSystemFlags(ctx, BusyIdle, false) }, false},
		{func() (CommitResult, error) { return s.SetPumpCommand(ctx, Pump2, true, "http") }, true},
	}
	for i, step := range steps {
		res, err := step.run()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Significant != step.want {
			t.Errorf("step %d: significant = %v, want %v", i, res.Significant, step.want)
		}
	}

	if got := s.HistoryLen(); got != 5 {
		t.Errorf("history length = %d, want 5", got)
	}
	if _, _, _, snaps := rec.counts(); snaps != 5 {
		t.Errorf("recorded snapshots = %d, want 5", snaps)
	}
	newest := s.Recent(1)
	if len(newest) != 1 || newest[0].Pump2Cmd != 1 || newest[0].Pump1Cmd != 0 {
		t.Errorf("unexpected newest snapshot: %+v", newest)
	}
}

func TestPersistenceFailureDoesNotSurface(t *testing.T) {
	rec := &fakeRecorder{fail: true}
	s, _ := testStore(rec)
	res, err := s.SetPumpCommand(context.Background(), Pump1, true, "http")
	if err != nil {
		t.Fatalf("persistence failure leaked to the caller: %v", err)
	}
	if !res.Significant {
		t.Error("commit should succeed even when storage fails")
	}
}

func TestConcurrentIngest(t *testing.T) {
	s, _ := testStore(&fakeRecorder{})
	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch g % 4 {
				case 0:
					s.SetPumpCommand(ctx, Pump1, i%2 == 0, "mqtt")
				case 1:
					s.SetPumpFeedback(ctx, Pump2, i%4)
				case 2:
					s.SetSystemFlags(ctx, BusyState(i%3), i%2 == 0)
				default:
					s.RecordHeartbeat(ctx, "gw-01", "1.0.0", i%2)
				}
				s.ReadCurrent()
				s.Recent(10)
			}
		}(g)
	}
	wg.Wait()
	if s.HistoryLen() > HistoryCapacity {
		t.Errorf("history length %d exceeds capacity", s.HistoryLen())
	}
}
