// Package mqtt bridges the broker to the state store: it ingests
// heartbeat, control and feedback messages and periodically publishes the
// retained status snapshot.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pumpgate-io/pumpgate/internal/gateway/state"
	"github.com/pumpgate-io/pumpgate/internal/pkg/metrics"
	"github.com/pumpgate-io/pumpgate/internal/pkg/mqtt/paths"
	"github.com/pumpgate-io/pumpgate/pkg/log"
	"github.com/pumpgate-io/pumpgate/pkg/mqtt"
)

// qosAtLeastOnce is used for every gateway topic; the devices dedupe on
// content, so duplicate delivery is harmless while loss is not.
const qosAtLeastOnce = 1

// heartbeatPayload is the gateway liveness report. All fields are
// optional on the wire; a missing status means healthy.
type heartbeatPayload struct {
	DeviceID string `json:"device_id"`
	Firmware string `json:"firmware"`
	Status   *int   `json:"status"`
}

// controlPayload is a pump on/off command.
type controlPayload struct {
	PumpID *int `json:"pump_id"`
	State  *int `json:"state"`
}

// feedbackPayload is the hardware status report. Busy and alarm ride
// along optionally.
type feedbackPayload struct {
	PumpID *int `json:"pump_id"`
	Status *int `json:"status"`
	Busy   *int `json:"busy"`
	Alarm  *int `json:"alarm"`
}

// Server subscribes to the device topics and feeds the state store.
// Malformed payloads are dropped at this boundary; they never reach the
// store and never fail the server.
type Server struct {
	client mqtt.Client
	store  *state.Store
	logger log.Logger
}

// NewServer creates the ingest server on an already managed client.
func NewServer(client mqtt.Client, store *state.Store) *Server {
	return &Server{
		client: client,
		store:  store,
		logger: log.Std().WithName("mqtt-ingest"),
	}
}

// Name implements server.Server.
func (s *Server) Name() string {
	return "mqtt-ingest"
}

// Start subscribes to the device topics and blocks until ctx is
// canceled. The client's connect/disconnect lifecycle is owned by the
// gateway, not by this server; subscriptions survive reconnects.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.AwaitConnection(ctx); err != nil {
		return err
	}
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{paths.Heartbeat, s.handleHeartbeat},
		{paths.Control, s.handleControl},
		{paths.Feedback, s.handleFeedback},
	}
	for _, sub := range subs {
		if err := s.client.Subscribe(ctx, sub.topic, qosAtLeastOnce, sub.handler); err != nil {
			return err
		}
		s.logger.Info("subscribed", "topic", sub.topic)
	}
	<-ctx.Done()
	return nil
}

func (s *Server) handleHeartbeat(ctx context.Context, topic string, payload []byte) {
	var hb heartbeatPayload
	if err := json.Unmarshal(payload, &hb); err != nil {
		s.drop(topic, payload, err)
		return
	}
	status := 1
	if hb.Status != nil {
		status = *hb.Status
	}
	res := s.store.RecordHeartbeat(ctx, hb.DeviceID, hb.Firmware, status)
	if res.Significant {
		s.logger.Info("gateway heartbeat", "device_id", hb.DeviceID, "firmware", hb.Firmware, "status", status)
	}
}

func (s *Server) handleControl(ctx context.Context, topic string, payload []byte) {
	var cmd controlPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.drop(topic, payload, err)
		return
	}
	if cmd.PumpID == nil || cmd.State == nil {
		s.drop(topic, payload, errors.New("missing pump_id or state"))
		return
	}
	on := *cmd.State != 0
	res, err := s.store.SetPumpCommand(ctx, state.PumpID(*cmd.PumpID), on, "mqtt")
	if err != nil {
		s.drop(topic, payload, err)
		return
	}
	s.logger.Debug("pump command", "pump_id", *cmd.PumpID, "on", on, "significant", res.Significant)
}

func (s *Server) handleFeedback(ctx context.Context, topic string, payload []byte) {
	var fb feedbackPayload
	if err := json.Unmarshal(payload, &fb); err != nil {
		s.drop(topic, payload, err)
		return
	}
	if fb.PumpID == nil || fb.Status == nil {
		s.drop(topic, payload, errors.New("missing pump_id or status"))
		return
	}
	if _, err := s.store.SetPumpFeedback(ctx, state.PumpID(*fb.PumpID), *fb.Status); err != nil {
		s.drop(topic, payload, err)
		return
	}

	// Busy and alarm are optional riders. Absent fields keep their
	// current values so the pair can be committed together.
	if fb.Busy != nil || fb.Alarm != nil {
		cur := s.store.ReadCurrent()
		busy := cur.Busy
		if fb.Busy != nil {
			busy = state.BusyState(*fb.Busy)
		}
		alarm := cur.Alarm
		if fb.Alarm != nil {
			alarm = *fb.Alarm != 0
		}
		if _, err := s.store.SetSystemFlags(ctx, busy, alarm); err != nil {
			s.logger.Warn("ignoring system flags", "topic", topic, "err", err.Error())
		}
	}
}

// drop discards an unusable payload with a warning. The ingest loop must
// survive anything a device can send.
func (s *Server) drop(topic string, payload []byte, err error) {
	metrics.DroppedMessagesTotal.WithLabelValues(topic).Inc()
	s.logger.Warn("dropping message", "topic", topic, "bytes", len(payload), "reason", err.Error())
}
