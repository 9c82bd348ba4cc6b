package messaging

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

// Heartbeater announces the kiosk on startup and reports liveness
// periodically so the plant dashboard can flag dead stations.
type Heartbeater struct {
	client    *Client
	deviceID  string
	version   string
	topic     string
	interval  time.Duration
	startTime time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type registerMsg struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Time     int64  `json:"time"`
}

type heartbeatMsg struct {
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id"`
	Uptime   int64  `json:"uptime"`
	Time     int64  `json:"time"`
}

// NewHeartbeater creates a heartbeater for the given kiosk identity.
func NewHeartbeater(client *Client, deviceID, version, topic string, interval time.Duration) *Heartbeater {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Heartbeater{
		client:   client,
		deviceID: deviceID,
		version:  version,
		topic:    topic,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial registration and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendRegister()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) sendRegister() {
	hostname, _ := os.Hostname()
	payload, err := json.Marshal(registerMsg{
		Kind:     "kiosk.register",
		DeviceID: h.deviceID,
		Hostname: hostname,
		Version:  h.version,
		Time:     time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("heartbeater: build register: %v", err)
		return
	}
	if err := h.client.Publish(h.topic, payload); err != nil {
		log.Printf("heartbeater: send register: %v", err)
	} else {
		log.Printf("heartbeater: sent kiosk.register (device=%s)", h.deviceID)
	}
}

func (h *Heartbeater) sendHeartbeat() {
	payload, err := json.Marshal(heartbeatMsg{
		Kind:     "kiosk.heartbeat",
		DeviceID: h.deviceID,
		Uptime:   int64(time.Since(h.startTime).Seconds()),
		Time:     time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("heartbeater: build heartbeat: %v", err)
		return
	}
	if err := h.client.Publish(h.topic, payload); err != nil {
		log.Printf("heartbeater: send heartbeat: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}
