package messaging

import (
	"encoding/json"
	"log"
	"time"

	"qckiosk/engine"
)

// Telemetry forwards selected engine events to the plant broker so
// supervisors can watch inspection throughput without polling kiosks.
// Publishing is fire-and-forget; a down broker never blocks the kiosk.
type Telemetry struct {
	client   *Client
	deviceID string
	topic    string
	subID    engine.SubscriberID
	bus      *engine.EventBus
}

type telemetryMsg struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id"`
	Time     int64  `json:"time"`
	Payload  any    `json:"payload,omitempty"`
}

// NewTelemetry creates a telemetry forwarder; call Attach to begin.
func NewTelemetry(client *Client, deviceID, topic string) *Telemetry {
	return &Telemetry{client: client, deviceID: deviceID, topic: topic}
}

// Attach subscribes to the engine bus. Events are published on the emitting
// goroutine; Publish failures are logged and dropped.
func (t *Telemetry) Attach(bus *engine.EventBus) {
	t.bus = bus
	t.subID = bus.SubscribeTypes(t.forward,
		engine.EventSessionInit,
		engine.EventSessionLoaded,
		engine.EventSessionRemoved,
		engine.EventStateChanged,
		engine.EventUploadProgress,
		engine.EventStorageAlert,
	)
}

// Detach unsubscribes from the engine bus.
func (t *Telemetry) Detach() {
	if t.bus != nil {
		t.bus.Unsubscribe(t.subID)
		t.bus = nil
	}
}

func (t *Telemetry) forward(evt engine.Event) {
	payload, err := json.Marshal(telemetryMsg{
		Kind:     kindFor(evt.Type),
		DeviceID: t.deviceID,
		Time:     time.Now().UnixMilli(),
		Payload:  evt.Payload,
	})
	if err != nil {
		log.Printf("telemetry: marshal: %v", err)
		return
	}
	if err := t.client.Publish(t.topic, payload); err != nil {
		log.Printf("telemetry: publish: %v", err)
	}
}

func kindFor(t engine.EventType) string {
	switch t {
	case engine.EventSessionInit:
		return "session.init"
	case engine.EventSessionLoaded:
		return "session.loaded"
	case engine.EventSessionRemoved:
		return "session.removed"
	case engine.EventStateChanged:
		return "controller.state"
	case engine.EventUploadProgress:
		return "upload.progress"
	case engine.EventStorageAlert:
		return "storage.alert"
	default:
		return "event"
	}
}
