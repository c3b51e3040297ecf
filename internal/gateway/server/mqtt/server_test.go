package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pumpgate-io/pumpgate/internal/gateway/state"
	"github.com/pumpgate-io/pumpgate/internal/pkg/mqtt/paths"
	"github.com/pumpgate-io/pumpgate/pkg/mqtt"
)

// fakeClient records subscriptions and publishes and lets tests inject
// inbound messages.
type fakeClient struct {
	mu         sync.Mutex
	handlers   map[string]mqtt.MessageHandler
	published  []fakeMessage
	publishErr error
}

type fakeMessage struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) Start(context.Context) error           { return nil }
func (f *fakeClient) Disconnect(context.Context)            {}
func (f *fakeClient) AwaitConnection(context.Context) error { return nil }

func (f *fakeClient) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, fakeMessage{topic: topic, qos: qos, retain: retain, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

// deliver injects an inbound message as the broker would.
func (f *fakeClient) deliver(ctx context.Context, topic string, payload string) {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler != nil {
		handler(ctx, topic, []byte(payload))
	}
}

func (f *fakeClient) lastPublished() (fakeMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return fakeMessage{}, false
	}
	return f.published[len(f.published)-1], true
}

// startIngest runs the ingest server until the test ends and waits for
// its subscriptions to land.
func startIngest(t *testing.T, client *fakeClient, store *state.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- NewServer(client, store).Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("ingest server: %v", err)
		}
	})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		client.mu.Lock()
		n := len(client.handlers)
		client.mu.Unlock()
		if n == 3 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("ingest server never subscribed")
}

func TestIngestControlAndFeedback(t *testing.T) {
	client := newFakeClient()
	store := state.NewStore(nil, nil)
	startIngest(t, client, store)
	ctx := context.Background()

	client.deliver(ctx, paths.Control, `{"pump_id": 1, "state": 1}`)
	client.deliver(ctx, paths.Feedback, `{"pump_id": 1, "status": 1, "busy": 1, "alarm": 0}`)

	cur := store.ReadCurrent()
	if !cur.Command(state.Pump1) {
		t.Error("control message did not set the command")
	}
	if cur.Status(state.Pump1) != state.FeedbackRunning {
		t.Errorf("feedback status = %v, want Running", cur.Status(state.Pump1))
	}
	if cur.Busy != state.BusyStartingPump1 {
		t.Errorf("busy = %v, want Starting_P1", cur.Busy)
	}
}

func TestIngestFeedbackWithoutFlagsKeepsFlags(t *testing.T) {
	client := newFakeClient()
	store := state.NewStore(nil, nil)
	startIngest(t, client, store)
	ctx := context.Background()

	client.deliver(ctx, paths.Feedback, `{"pump_id": 1, "status": 1, "busy": 2, "alarm": 1}`)
	client.deliver(ctx, paths.Feedback, `{"pump_id": 2, "status": 2}`)

	cur := store.ReadCurrent()
	if cur.Busy != state.BusyStartingPump2 || !cur.Alarm {
		t.Errorf("flags changed by a flagless feedback: busy=%v alarm=%v", cur.Busy, cur.Alarm)
	}
}

func TestIngestDropsMalformedPayloads(t *testing.T) {
	client := newFakeClient()
	store := state.NewStore(nil, nil)
	startIngest(t, client, store)
	ctx := context.Background()

	client.deliver(ctx, paths.Control, `not json`)
	client.deliver(ctx, paths.Control, `{"state": 1}`)
	client.deliver(ctx, paths.Control, `{"pump_id": 9, "state": 1}`)
	client.deliver(ctx, paths.Feedback, `{"pump_id": 1}`)

	cur := store.ReadCurrent()
	if cur.Command(state.Pump1) || cur.Command(state.Pump2) {
		t.Error("malformed payloads mutated state")
	}
	if store.HistoryLen() != 0 {
		t.Errorf("history length = %d, want 0", store.HistoryLen())
	}
}

func TestIngestHeartbeatDefaultsStatus(t *testing.T) {
	client := newFakeClient()
	store := state.NewStore(nil, nil)
	startIngest(t, client, store)

	client.deliver(context.Background(), paths.Heartbeat, `{"device_id": "gw-01", "firmware": "1.2.3"}`)

	st := store.GatewayStatus()
	if !st.IsOnline {
		t.Error("gateway should be online after a heartbeat")
	}
	if st.Status != 1 {
		t.Errorf("status = %d, want default 1", st.Status)
	}
	if st.DeviceID != "gw-01" || st.FirmwareVersion != "1.2.3" {
		t.Errorf("unexpected identity: %+v", st)
	}
}

func TestPublisherPublishesRetainedSnapshot(t *testing.T) {
	client := newFakeClient()
	store := state.NewStore(nil, nil)
	ctx := context.Background()
	if _, err := store.SetPumpCommand(ctx, state.Pump1, true, "test"); err != nil {
		t.Fatalf("SetPumpCommand: %v", err)
	}

	p := NewPublisher(client, store)
	p.publishOnce(ctx)

	msg, ok := client.lastPublished()
	if !ok {
		t.Fatal("nothing published")
	}
	if msg.topic != paths.Status || !msg.retain || msg.qos != 1 {
		t.Errorf("unexpected publish envelope: %+v", msg)
	}
	var snap state.Snapshot
	if err := json.Unmarshal(msg.payload, &snap); err != nil {
		t.Fatalf("payload not a snapshot: %v", err)
	}
	if snap.Pump1Cmd != 1 || snap.Pump2Cmd != 0 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Timestamp == 0 {
		t.Error("snapshot timestamp missing")
	}
}

func TestPublisherSurvivesPublishFailure(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("broker away")
	p := NewPublisher(client, state.NewStore(nil, nil))
	// Must not panic or return anything; next tick retries.
	p.publishOnce(context.Background())
}
